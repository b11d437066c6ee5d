// Package app wires configuration into the concrete components shared by
// the planner, harvester and operator binaries.
package app

import (
	"log/slog"
	"os"
)

// NewLogger returns a text logger on terminals and a JSON logger
// otherwise, at debug level when verbose.
func NewLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

// SetupLogging installs the logger of NewLogger as the default.
func SetupLogging(verbose bool) {
	logger, level := NewLogger(verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
