// Package config provides configuration management for teachos.
package config

import "time"

// Config holds all configuration options for a kernel run.
type Config struct {
	// Workload
	Apps     []string      `json:"apps" yaml:"apps"`
	Duration time.Duration `json:"duration" yaml:"duration"` // 0 = until every process exits
	SleepMs  int64         `json:"sleep_ms" yaml:"sleep_ms"`

	// Machine
	Frames int `json:"frames" yaml:"frames"`

	// Observability
	MetricsAddr    string `json:"metrics_addr" yaml:"metrics_addr"` // empty = disabled
	ProcessMetrics bool   `json:"process_metrics" yaml:"process_metrics"`
	TraceFile      string `json:"trace_file" yaml:"trace_file"` // empty = disabled
	MetricsDump    string `json:"metrics_dump" yaml:"metrics_dump"`
	Verbose        bool   `json:"verbose" yaml:"verbose"`
	LogFormat      string `json:"log_format" yaml:"log_format"` // json, text
	LogLevel       string `json:"log_level" yaml:"log_level"`
	ConsoleLines   int    `json:"console_lines" yaml:"console_lines"`

	// Dashboard
	TUIEnabled bool `json:"tui" yaml:"tui"`

	// Diagnostic modes
	ConfigFile    string `json:"-" yaml:"-"`
	ListApps      bool   `json:"-" yaml:"-"`
	Check         bool   `json:"-" yaml:"-"`
	SkipPreflight bool   `json:"skip_preflight" yaml:"skip_preflight"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Workload
		Apps:     nil, // built-in default list
		Duration: 0,
		SleepMs:  50,

		// Machine: 8 MiB of RAM
		Frames: 2048,

		// Observability
		MetricsAddr:    "127.0.0.1:17092",
		ProcessMetrics: false,
		Verbose:        false,
		LogFormat:      "text",
		LogLevel:       "info",
		ConsoleLines:   100,

		// Dashboard
		TUIEnabled: false,
	}
}
