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

	// Output defaults to os.Stderr.
	Output io.Writer
}

// SetupLogger builds the process logger: text or JSON, info or debug level,
// tagged with service and version when set.
func SetupLogger(opts *LoggingOpts) (log *slog.Logger) {
	logLevel := slog.LevelInfo
	if opts.Debug {
		logLevel = slog.LevelDebug
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	if opts.JSON {
		log = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: logLevel}))
	} else {
		log = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: logLevel}))
	}

	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}

	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}

	return log
}

// DiscardLogger drops everything; libraries fall back to it when no logger
// is configured.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
