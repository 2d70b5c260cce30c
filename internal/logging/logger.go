// Package logging provides structured logging and the kernel console for
// teachos.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a new structured logger on stderr with the specified
// format and level.
// Format should be "json" or "text".
// Level should be "debug", "info", "warn", or "error".
func NewLogger(format, level string, verbose bool) *slog.Logger {
	return NewLoggerWithWriter(os.Stderr, format, level, verbose)
}

// NewLoggerWithWriter creates a logger that writes to a custom writer.
// The dashboard uses it to move logs off the terminal.
func NewLoggerWithWriter(w io.Writer, format, level string, verbose bool) *slog.Logger {
	logLevel := parseLevel(level)
	if verbose {
		logLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
		// Add source location for debug level
		AddSource: logLevel == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		// Default to JSON for structured logging
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetDefault sets the default logger for the slog package.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
