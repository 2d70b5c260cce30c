package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// appList is a custom flag type for repeatable -app flags.
type appList []string

func (a *appList) String() string {
	return strings.Join(*a, ", ")
}

func (a *appList) Set(value string) error {
	for _, name := range strings.Split(value, ",") {
		if name = strings.TrimSpace(name); name != "" {
			*a = append(*a, name)
		}
	}
	return nil
}

// ParseFlags parses command-line flags and returns a Config.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[1:], os.Stderr)
}

// ParseArgs parses args into a Config. Values come from, in increasing
// precedence: defaults, the -config file, flags. Positional arguments are
// app names.
func ParseArgs(args []string, usageOut io.Writer) (*Config, error) {
	cfg := DefaultConfig()

	if path := findConfigFlag(args); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
		cfg.ConfigFile = path
	}

	fs := flag.NewFlagSet("teachos", flag.ContinueOnError)
	fs.SetOutput(usageOut)
	var apps appList

	// Custom usage message
	fs.Usage = func() {
		fmt.Fprintf(usageOut, `teachos - a teaching kernel simulator: processes, syscalls, and SV39 memory

Usage:
  teachos [flags] [app ...]

Workload Flags:
`)
		printFlagCategory(fs, usageOut, []string{"app", "duration", "sleep-ms", "config"})

		fmt.Fprintf(usageOut, "\nMachine:\n")
		printFlagCategory(fs, usageOut, []string{"frames"})

		fmt.Fprintf(usageOut, "\nObservability:\n")
		printFlagCategory(fs, usageOut, []string{"metrics", "process-metrics", "trace-file", "metrics-dump", "v", "log-format", "log-level", "console-lines"})

		fmt.Fprintf(usageOut, "\nDashboard:\n")
		printFlagCategory(fs, usageOut, []string{"tui"})

		fmt.Fprintf(usageOut, "\nDiagnostics:\n")
		printFlagCategory(fs, usageOut, []string{"list", "check", "skip-preflight"})

		fmt.Fprintf(usageOut, `
Examples:
  # Run the default app set
  teachos

  # Run two apps side by side with a live dashboard
  teachos -tui yield taskinfo

  # Load a workload file and write one span per syscall
  teachos -config workload.yaml -trace-file trace.json

`)
	}

	// Workload
	fs.Var(&apps, "app", "App to boot (repeatable, or comma separated)")
	fs.DurationVar(&cfg.Duration, "duration", cfg.Duration, "Stop after this long (0 = until every process exits)")
	fs.Int64Var(&cfg.SleepMs, "sleep-ms", cfg.SleepMs, "How long the sleep app sleeps")
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML workload file")

	// Machine
	fs.IntVar(&cfg.Frames, "frames", cfg.Frames, "Physical memory size in 4 KiB frames")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, `Prometheus metrics address ("" disables)`)
	fs.BoolVar(&cfg.ProcessMetrics, "process-metrics", cfg.ProcessMetrics, "Label syscall metrics by process name")
	fs.StringVar(&cfg.TraceFile, "trace-file", cfg.TraceFile, "Write OpenTelemetry syscall spans to this file")
	fs.StringVar(&cfg.MetricsDump, "metrics-dump", cfg.MetricsDump, `Write final metrics in text format to this file ("-" for stdout)`)
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn", "error"`)
	fs.IntVar(&cfg.ConsoleLines, "console-lines", cfg.ConsoleLines, "Console lines kept per process")

	// Dashboard
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")

	// Diagnostics
	fs.BoolVar(&cfg.ListApps, "list", cfg.ListApps, "List built-in apps and exit")
	fs.BoolVar(&cfg.Check, "check", cfg.Check, "Validate config, run preflight and boot hello only")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// -app flags and positional names replace the file's list.
	apps = append(apps, fs.Args()...)
	if len(apps) > 0 {
		cfg.Apps = apps
	}

	return cfg, nil
}

// findConfigFlag returns the value of -config in args without parsing
// the rest.
func findConfigFlag(args []string) string {
	for i, a := range args {
		if a == "--" {
			return ""
		}
		name := strings.TrimLeft(a, "-")
		if len(name) == len(a) {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	if g, ok := f.Value.(flag.Getter); ok {
		switch g.Get().(type) {
		case bool:
			return ""
		case time.Duration:
			return "duration"
		case int, int64, uint, uint64:
			return "int"
		case float64:
			return "float"
		default:
			return "string"
		}
	}

	// Custom values: infer from the default's format
	switch f.DefValue {
	case "true", "false":
		return ""
	}
	if _, err := strconv.Atoi(f.DefValue); err == nil {
		return "int"
	}
	if _, err := time.ParseDuration(f.DefValue); err == nil {
		return "duration"
	}
	return "string"
}
