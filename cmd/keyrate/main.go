package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"keyrate/internal/bitrate"
	"keyrate/internal/config"
	"keyrate/internal/errno"
	"keyrate/internal/metrics"
	"keyrate/internal/report"
	"keyrate/internal/statusserver"
	"keyrate/pkg/demux"
)

const exe = "keyrate"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(exe, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {} // run prints usage after the error

	opts, err := config.Configure(fs, args)
	switch {
	case err == flag.ErrHelp:
		config.Usage(stdout)
		return 0
	case err == config.ErrVersion:
		config.PrintVersion(stdout)
		return 0
	case err != nil:
		fmt.Fprintf(stderr, "%s: %v\n", exe, err)
		config.Usage(stderr)
		return errno.ExitCode(err)
	}

	if opts.Log.LogPath == "" {
		opts.Log.SetOutput(stderr)
	}
	logger, err := opts.Log.NewLogger()
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", exe, errno.ErrInit.WithCause(err))
		return errno.ErrInit.Code()
	}

	runID := uuid.New().String()
	entry := logger.WithFields(logrus.Fields{
		"run":   runID,
		"input": opts.Input,
	})

	if err := execute(opts, runID, entry, stdout); err != nil {
		if coded, ok := errno.As(err); ok {
			entry.Debug(coded.WithID(runID).String())
		}
		entry.WithField("code", errno.ExitCode(err)).Error(err)
		if opts.Log.LogPath != "" {
			fmt.Fprintf(stderr, "%s: %v\n", exe, err)
		}
		return errno.ExitCode(err)
	}

	return 0
}

func execute(opts *config.Options, runID string, logger *logrus.Entry, stdout io.Writer) error {
	kitLogger, err := opts.Log.NewKitLogger()
	if err != nil {
		return errno.ErrInit.WithCause(err)
	}

	if err := demux.Init(); err != nil {
		return errno.ErrInit.WithCause(err)
	}

	src, err := demux.Open(opts.Input, kitLogger)
	if err != nil {
		return errno.ErrInit.WithCause(err)
	}
	defer src.Close()

	recorder := metrics.NewRecorder()
	if opts.MetricsAddr != "" {
		srv := statusserver.NewStatusServer(opts.MetricsAddr, runID, recorder.Registry(), logger)
		if err := srv.Start(); err != nil {
			return errno.ErrInit.WithCause(err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	out := report.NewWriter(stdout)
	out.WriteMetadata(src.Metadata())

	coordOpts := []bitrate.Option{
		bitrate.WithSink(bitrate.MultiSink{out, recorder}),
		bitrate.WithObserver(recorder),
		bitrate.WithLogger(logger),
	}
	if opts.NativeTimeBase {
		coordOpts = append(coordOpts, bitrate.WithNativeTimeBase())
	}

	coord := bitrate.NewCoordinator(src.Streams(), coordOpts...)
	for _, acc := range coord.Accumulators() {
		logger.WithFields(logrus.Fields{
			"stream": acc.Index(),
			"type":   acc.Type().String(),
			"scale":  acc.Scale(),
		}).Info("track stream")
	}

	if err := coord.Run(src); err != nil {
		return errno.ErrRead.WithCause(err)
	}
	coord.Finalize()

	if err := out.Err(); err != nil {
		return errno.ErrOutput.WithCause(err)
	}

	logger.WithFields(logrus.Fields{
		"format":  src.Format(),
		"dropped": coord.Dropped(),
	}).Info("report complete")
	return nil
}
