package common

import (
	"io"
	"log/slog"
	"os"
)

// LoggingOpts configures SetupLogger.
type LoggingOpts struct {
	Debug   bool
	JSON    bool
	Service string
	Version string

	// Output defaults to os.Stdout.
	Output io.Writer
}

// SetupLogger builds the process logger. Service and Version, when set, are
// attached to every record.
func SetupLogger(opts *LoggingOpts) (log *slog.Logger) {
	logLevel := slog.LevelInfo
	if opts.Debug {
		logLevel = slog.LevelDebug
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	if opts.JSON {
		log = slog.New(slog.NewJSONHandler(out, handlerOpts))
	} else {
		log = slog.New(slog.NewTextHandler(out, handlerOpts))
	}

	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}
	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}
	return log
}
