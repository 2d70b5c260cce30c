package config

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Frame bounds accepted by Validate.
const (
	MinFrames = 64
	MaxFrames = 1 << 20
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	// Apps must be non-empty names when given
	for i, name := range cfg.Apps {
		if name == "" {
			errs = append(errs, ValidationError{
				Field:   "apps",
				Message: fmt.Sprintf("entry %d is empty", i),
			})
		}
	}

	if cfg.Frames < MinFrames || cfg.Frames > MaxFrames {
		errs = append(errs, ValidationError{
			Field:   "frames",
			Message: fmt.Sprintf("must be between %d and %d (got %d)", MinFrames, MaxFrames, cfg.Frames),
		})
	}

	if cfg.Duration < 0 {
		errs = append(errs, ValidationError{
			Field:   "duration",
			Message: "must not be negative",
		})
	}

	if cfg.SleepMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "sleep_ms",
			Message: "must not be negative",
		})
	}

	// A sleep longer than the run can never finish
	if cfg.Duration > 0 && time.Duration(cfg.SleepMs)*time.Millisecond > cfg.Duration {
		errs = append(errs, ValidationError{
			Field:   "sleep_ms",
			Message: fmt.Sprintf("exceeds duration %v", cfg.Duration),
		})
	}

	if cfg.ConsoleLines < 1 {
		errs = append(errs, ValidationError{
			Field:   "console_lines",
			Message: "must be at least 1",
		})
	}

	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics_addr",
				Message: err.Error(),
			})
		}
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[cfg.LogLevel] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	// The dashboard owns the terminal; text logs would tear it
	if cfg.TUIEnabled && cfg.TraceFile == "-" {
		errs = append(errs, ValidationError{
			Field:   "trace_file",
			Message: "cannot write spans to stdout while the dashboard is enabled",
		})
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ApplyCheckMode modifies config for --check mode.
func ApplyCheckMode(cfg *Config) {
	cfg.Apps = []string{"hello"}
	cfg.Duration = 10 * time.Second
	cfg.Verbose = true
	cfg.TUIEnabled = false
}
