// Package common holds service-wide constants and the logger setup shared
// by every binary.
package common

import (
	"log/slog"
	"os"
)

// PackageName tags metrics and logs emitted by this service.
const PackageName = "keyfate"

// Version is set at build time via -ldflags.
var Version = "dev"

// LoggingOpts configures SetupLogger.
type LoggingOpts struct {
	// Debug lowers the log level to debug.
	Debug bool

	// JSON switches to JSON output for log collectors.
	JSON bool

	// Service is added as a "service" attribute to all records.
	Service string

	// Version is added as a "version" attribute to all records.
	Version string
}

// SetupLogger creates the process-wide slog logger.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	log := slog.New(handler)
	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}
	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}
	return log
}
