package config

import (
	"bytes"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Test appList type
func TestAppList_String(t *testing.T) {
	testCases := []struct {
		input    appList
		expected string
	}{
		{appList{}, ""},
		{appList{"hello"}, "hello"},
		{appList{"hello", "yield"}, "hello, yield"},
	}

	for _, tc := range testCases {
		result := tc.input.String()
		if result != tc.expected {
			t.Errorf("String() = %q, want %q", result, tc.expected)
		}
	}
}

func TestAppList_Set(t *testing.T) {
	var a appList

	if err := a.Set("hello"); err != nil {
		t.Errorf("Set returned error: %v", err)
	}
	if len(a) != 1 || a[0] != "hello" {
		t.Errorf("After first Set: %v", a)
	}

	// Comma separated values split and append
	if err := a.Set("yield, mmap,"); err != nil {
		t.Errorf("Set returned error: %v", err)
	}
	if len(a) != 3 || a[1] != "yield" || a[2] != "mmap" {
		t.Errorf("After second Set: %v", a)
	}

	// Empty string adds nothing
	if err := a.Set(""); err != nil {
		t.Errorf("Set with empty string returned error: %v", err)
	}
	if len(a) != 3 {
		t.Errorf("Empty string should not be appended: %v", a)
	}
}

func TestFlagType(t *testing.T) {
	testCases := []struct {
		name     string
		defValue string
		expected string
	}{
		{"bool_true", "true", ""},
		{"bool_false", "false", ""},
		{"duration_seconds", "30s", "duration"},
		{"duration_minutes", "5m", "duration"},
		{"int", "2048", "int"},
		{"string", "127.0.0.1:17092", "string"},
		{"string_ending_in_s", "apps", "string"},
		{"empty", "", "string"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := &flag.Flag{DefValue: tc.defValue}
			if got := flagType(f); got != tc.expected {
				t.Errorf("flagType(%q) = %q, want %q", tc.defValue, got, tc.expected)
			}
		})
	}
}

func TestFlagType_FromValue(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Bool("b", false, "")
	fs.Int("frames", 2048, "")
	fs.Int64("sleep", 50, "")
	fs.Duration("d", 0, "")
	fs.String("metrics", "127.0.0.1:17092", "")
	fs.String("empty", "", "")
	var apps appList
	fs.Var(&apps, "app", "")

	want := map[string]string{
		"b":       "",
		"frames":  "int",
		"sleep":   "int",
		"d":       "duration",
		"metrics": "string",
		"empty":   "string",
		"app":     "string",
	}
	for name, expected := range want {
		if got := flagType(fs.Lookup(name)); got != expected {
			t.Errorf("flagType(-%s) = %q, want %q", name, got, expected)
		}
	}
}

func TestUsage_MetricsIsString(t *testing.T) {
	var buf bytes.Buffer
	_, err := ParseArgs([]string{"-h"}, &buf)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("ParseArgs(-h) error = %v, want flag.ErrHelp", err)
	}
	if !strings.Contains(buf.String(), "-metrics string") {
		t.Errorf("usage should show -metrics as a string flag:\n%s", buf.String())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Frames != 2048 {
		t.Errorf("Frames = %d, want 2048", cfg.Frames)
	}
	if cfg.SleepMs != 50 {
		t.Errorf("SleepMs = %d, want 50", cfg.SleepMs)
	}
	if cfg.Apps != nil {
		t.Errorf("Apps = %v, want nil", cfg.Apps)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, want text", cfg.LogFormat)
	}
	if cfg.TUIEnabled {
		t.Error("TUIEnabled should default to false")
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("DefaultConfig should validate: %v", err)
	}
}

func TestParseArgs(t *testing.T) {
	testCases := []struct {
		name  string
		args  []string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "defaults",
			args: nil,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Apps != nil {
					t.Errorf("Apps = %v, want nil", cfg.Apps)
				}
			},
		},
		{
			name: "positional apps",
			args: []string{"-frames", "512", "hello", "yield"},
			check: func(t *testing.T, cfg *Config) {
				if strings.Join(cfg.Apps, ",") != "hello,yield" {
					t.Errorf("Apps = %v", cfg.Apps)
				}
				if cfg.Frames != 512 {
					t.Errorf("Frames = %d, want 512", cfg.Frames)
				}
			},
		},
		{
			name: "app flag before positional",
			args: []string{"-app", "mmap,munmap", "-app", "taskinfo", "hello"},
			check: func(t *testing.T, cfg *Config) {
				if strings.Join(cfg.Apps, ",") != "mmap,munmap,taskinfo,hello" {
					t.Errorf("Apps = %v", cfg.Apps)
				}
			},
		},
		{
			name: "observability",
			args: []string{"-metrics", "", "-trace-file", "t.json", "-metrics-dump", "-", "-log-format", "json", "-v", "-duration", "2s"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.MetricsAddr != "" {
					t.Errorf("MetricsAddr = %q, want empty", cfg.MetricsAddr)
				}
				if cfg.TraceFile != "t.json" || cfg.MetricsDump != "-" || cfg.LogFormat != "json" || !cfg.Verbose {
					t.Errorf("unexpected config: %+v", cfg)
				}
				if cfg.Duration != 2*time.Second {
					t.Errorf("Duration = %v, want 2s", cfg.Duration)
				}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := ParseArgs(tc.args, &bytes.Buffer{})
			if err != nil {
				t.Fatalf("ParseArgs: %v", err)
			}
			tc.check(t, cfg)
		})
	}
}

func TestParseArgs_UnknownFlag(t *testing.T) {
	var out bytes.Buffer
	if _, err := ParseArgs([]string{"-nope"}, &out); err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(out.String(), "Workload Flags:") {
		t.Errorf("usage not printed: %q", out.String())
	}
}

func TestParseArgs_ConfigFilePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workload.yaml")
	data := "apps: [hello, sleep]\nframes: 4096\nsleep_ms: 10\nlog_format: json\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := ParseArgs([]string{"-config=" + path, "-frames", "1024"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}

	// File beats defaults, flags beat file
	if cfg.Frames != 1024 {
		t.Errorf("Frames = %d, want flag value 1024", cfg.Frames)
	}
	if cfg.SleepMs != 10 || cfg.LogFormat != "json" {
		t.Errorf("file values lost: %+v", cfg)
	}
	if strings.Join(cfg.Apps, ",") != "hello,sleep" {
		t.Errorf("Apps = %v", cfg.Apps)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q", cfg.ConfigFile)
	}

	// Positional apps replace the file's list
	cfg, err = ParseArgs([]string{"--config", path, "yield"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if strings.Join(cfg.Apps, ",") != "yield" {
		t.Errorf("Apps = %v, want [yield]", cfg.Apps)
	}
}

func TestParseArgs_MissingConfigFile(t *testing.T) {
	_, err := ParseArgs([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error should wrap ErrNotExist: %v", err)
	}
}

func TestFindConfigFlag(t *testing.T) {
	testCases := []struct {
		args     []string
		expected string
	}{
		{nil, ""},
		{[]string{"-config", "a.yaml"}, "a.yaml"},
		{[]string{"--config=b.yaml"}, "b.yaml"},
		{[]string{"-v", "-config"}, ""},
		{[]string{"config", "c.yaml"}, ""},
		{[]string{"--", "-config", "d.yaml"}, ""},
	}

	for _, tc := range testCases {
		if got := findConfigFlag(tc.args); got != tc.expected {
			t.Errorf("findConfigFlag(%v) = %q, want %q", tc.args, got, tc.expected)
		}
	}
}

func TestDecode(t *testing.T) {
	cfg := DefaultConfig()
	if err := Decode([]byte("duration: 3s\ntui: true\n"), cfg); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Duration != 3*time.Second || !cfg.TUIEnabled {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Frames != 2048 {
		t.Errorf("absent key should keep default, got Frames=%d", cfg.Frames)
	}

	if err := Decode([]byte("bogus: 1\n"), DefaultConfig()); err == nil {
		t.Error("unknown key should fail")
	}

	if err := Decode(nil, DefaultConfig()); err != nil {
		t.Errorf("empty document should be accepted: %v", err)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		modify  func(*Config)
		field   string
		wantErr bool
	}{
		{"valid", func(c *Config) {}, "", false},
		{"empty app name", func(c *Config) { c.Apps = []string{"hello", ""} }, "apps", true},
		{"too few frames", func(c *Config) { c.Frames = 10 }, "frames", true},
		{"too many frames", func(c *Config) { c.Frames = MaxFrames + 1 }, "frames", true},
		{"negative duration", func(c *Config) { c.Duration = -time.Second }, "duration", true},
		{"negative sleep", func(c *Config) { c.SleepMs = -1 }, "sleep_ms", true},
		{"sleep beyond duration", func(c *Config) { c.Duration = 10 * time.Millisecond; c.SleepMs = 50 }, "sleep_ms", true},
		{"console lines", func(c *Config) { c.ConsoleLines = 0 }, "console_lines", true},
		{"bad metrics addr", func(c *Config) { c.MetricsAddr = "localhost" }, "metrics_addr", true},
		{"metrics disabled", func(c *Config) { c.MetricsAddr = "" }, "", false},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format", true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level", true},
		{"trace to stdout with tui", func(c *Config) { c.TUIEnabled = true; c.TraceFile = "-" }, "trace_file", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(cfg)
			err := Validate(cfg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), tc.field+":") {
				t.Errorf("error %q should name field %q", err, tc.field)
			}
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Frames = 0
	cfg.LogFormat = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}

	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error should contain a ValidationError: %v", err)
	}
	if !strings.Contains(err.Error(), "frames") || !strings.Contains(err.Error(), "log_format") {
		t.Errorf("both failures should be reported: %v", err)
	}
}

func TestApplyCheckMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Apps = []string{"mmap", "yield"}
	cfg.TUIEnabled = true

	ApplyCheckMode(cfg)

	if len(cfg.Apps) != 1 || cfg.Apps[0] != "hello" {
		t.Errorf("Apps = %v, want [hello]", cfg.Apps)
	}
	if cfg.Duration != 10*time.Second {
		t.Errorf("Duration = %v, want 10s", cfg.Duration)
	}
	if !cfg.Verbose || cfg.TUIEnabled {
		t.Errorf("check mode should be verbose without dashboard: %+v", cfg)
	}
}
