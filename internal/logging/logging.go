package logging

import (
	"io"
	"os"
	"strings"
	"time"

	kitlog "github.com/go-kit/kit/log"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"
)

type LogConfig struct {
	LogPath         string        `yaml:"path"`
	RotationTime    time.Duration `yaml:"rotation_time"`
	RetainDays      int           `yaml:"retain_days"`
	Level           string        `yaml:"level"`
	Format          string        `yaml:"format"`
	SetReportCaller bool          `yaml:"report_caller"`

	out io.Writer
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		RotationTime: 24 * time.Hour,
		RetainDays:   7,
		Level:        "error",
		Format:       "text",
	}
}

// SetOutput overrides the destination chosen from LogPath.
func (lc *LogConfig) SetOutput(w io.Writer) {
	lc.out = w
}

// Output is stderr unless LogPath is set, in which case logs go to a file
// rotated every RotationTime.
func (lc *LogConfig) Output() (io.Writer, error) {
	if lc.out != nil {
		return lc.out, nil
	}

	if lc.LogPath == "" {
		lc.out = os.Stderr
		return lc.out, nil
	}

	rotation := lc.RotationTime
	if rotation <= 0 {
		rotation = 24 * time.Hour
	}
	logWriter, err := rotatelogs.New(
		lc.LogPath+"_%Y%m%d",
		rotatelogs.WithLinkName(lc.LogPath),
		rotatelogs.WithRotationTime(rotation),
		rotatelogs.WithMaxAge(time.Duration(lc.RetainDays)*24*time.Hour),
	)
	if err != nil {
		return nil, err
	}

	lc.out = logWriter
	return lc.out, nil
}

func (lc *LogConfig) ParseLevel() logrus.Level {
	level, err := logrus.ParseLevel(lc.Level)
	if err != nil {
		return logrus.ErrorLevel
	}
	return level
}

func (lc *LogConfig) NewLogger() (*logrus.Logger, error) {
	out, err := lc.Output()
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(out)

	switch strings.ToLower(lc.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		fallthrough
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			DisableColors: true,
			FullTimestamp: true,
		})
	}

	logger.SetLevel(lc.ParseLevel())

	if lc.SetReportCaller {
		logger.SetReportCaller(true)
	}

	return logger, nil
}

var kitLevels = map[string]logrus.Level{
	"ERROR": logrus.ErrorLevel,
	"WARN":  logrus.WarnLevel,
	"INFO":  logrus.InfoLevel,
	"DEBUG": logrus.DebugLevel,
	"TRACE": logrus.TraceLevel,
}

// NewKitLogger returns a logfmt go-kit logger on the same output. Records
// carrying a "level" value above the configured level are discarded.
func (lc *LogConfig) NewKitLogger() (kitlog.Logger, error) {
	out, err := lc.Output()
	if err != nil {
		return nil, err
	}

	max := lc.ParseLevel()
	base := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(out))
	if strings.ToLower(lc.Format) == "json" {
		base = kitlog.NewJSONLogger(kitlog.NewSyncWriter(out))
	}

	filtered := kitlog.LoggerFunc(func(keyvals ...interface{}) error {
		for i := 0; i+1 < len(keyvals); i += 2 {
			if keyvals[i] != "level" {
				continue
			}
			if s, ok := keyvals[i+1].(string); ok {
				if lvl, known := kitLevels[s]; known && lvl > max {
					return nil
				}
			}
		}
		return base.Log(keyvals...)
	})

	return kitlog.With(filtered, "time", kitlog.DefaultTimestamp), nil
}
