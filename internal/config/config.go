package config

import (
	"flag"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"keyrate/internal/errno"
	"keyrate/internal/logging"
)

var VERSION string = "1.0.0"

var usageStr = `
Usage: keyrate [options] <input-file>

Report Options:
	-native-timebase                 Keep each stream on its own time base
	                                 (default: use the first video stream's)
	-metrics-addr <host:port>        Serve /ping and /metrics while running

Logging Options:
	-log-level <level>               trace, debug, info, warn, error (default: error)
	-log-format <format>             text or json (default: text)
	-log-path <path>                 Rotating log file (default: stderr)

Common Options:
	-c, -config <file>               YAML configuration file
	-h, -help                        Show this message
	-v, -version                     Show version
`

// ErrVersion is returned when -v was given.
var ErrVersion = errors.New("version requested")

type Options struct {
	Input      string `yaml:"-"`
	ConfigFile string `yaml:"-"`

	NativeTimeBase bool              `yaml:"native_timebase"`
	MetricsAddr    string            `yaml:"metrics_addr"`
	Log            logging.LogConfig `yaml:"log"`
}

func DefaultOptions() *Options {
	return &Options{
		Log: logging.DefaultLogConfig(),
	}
}

func Usage(w io.Writer) {
	fmt.Fprintf(w, "%s\n", usageStr)
}

func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "keyrate: v%s\n", VERSION)
}

// Configure parses args. Values from the config file apply only where the
// matching flag was not given. flag.ErrHelp and ErrVersion are returned
// as-is; every other failure is an errno.ErrUsage.
func Configure(fs *flag.FlagSet, args []string) (*Options, error) {
	opts := DefaultOptions()

	var (
		showVersion bool
		showHelp    bool
	)

	fs.BoolVar(&showHelp, "h", false, "Show this message")
	fs.BoolVar(&showHelp, "help", false, "Show this message")
	fs.BoolVar(&showVersion, "v", false, "Show Version")
	fs.BoolVar(&showVersion, "version", false, "Show Version")
	fs.StringVar(&opts.ConfigFile, "c", "", "YAML configuration file.")
	fs.StringVar(&opts.ConfigFile, "config", "", "YAML configuration file.")
	fs.BoolVar(&opts.NativeTimeBase, "native-timebase", false, "Keep each stream on its own time base.")
	fs.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve /ping and /metrics on this address.")
	fs.StringVar(&opts.Log.Level, "log-level", opts.Log.Level, "Log level.")
	fs.StringVar(&opts.Log.Format, "log-format", opts.Log.Format, "Log format, text or json.")
	fs.StringVar(&opts.Log.LogPath, "log-path", "", "Rotating log file.")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, err
		}
		return nil, errno.ErrUsage.WithCause(err)
	}

	if showHelp {
		return nil, flag.ErrHelp
	}
	if showVersion {
		return nil, ErrVersion
	}

	if opts.ConfigFile != "" {
		set := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

		if err := opts.merge(opts.ConfigFile, set); err != nil {
			return nil, errno.ErrUsage.WithCause(err)
		}
	}

	switch fs.NArg() {
	case 0:
		return nil, errno.ErrUsage.WithCause(errors.New("please specify input file as command line argument"))
	case 1:
		opts.Input = fs.Arg(0)
	default:
		return nil, errno.ErrUsage.WithCause(errors.Errorf("expected one input file, got %d", fs.NArg()))
	}

	return opts, nil
}

// merge loads path and copies every value whose flag was not set.
func (o *Options) merge(path string, set map[string]bool) error {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config")
	}

	file := DefaultOptions()
	if err := yaml.UnmarshalStrict(raw, file); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}

	if !set["native-timebase"] {
		o.NativeTimeBase = file.NativeTimeBase
	}
	if !set["metrics-addr"] {
		o.MetricsAddr = file.MetricsAddr
	}
	if !set["log-level"] {
		o.Log.Level = file.Log.Level
	}
	if !set["log-format"] {
		o.Log.Format = file.Log.Format
	}
	if !set["log-path"] {
		o.Log.LogPath = file.Log.LogPath
	}
	o.Log.RotationTime = file.Log.RotationTime
	o.Log.RetainDays = file.Log.RetainDays
	o.Log.SetReportCaller = file.Log.SetReportCaller

	return nil
}
