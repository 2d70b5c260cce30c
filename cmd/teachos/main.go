// Package main provides the teachos CLI entry point.
//
// teachos boots a simulated RISC-V teaching kernel, runs a set of user apps
// against its syscall interface and reports how each of them exited.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/randomizedcoder/go-teachos/internal/apps"
	"github.com/randomizedcoder/go-teachos/internal/config"
	"github.com/randomizedcoder/go-teachos/internal/logging"
	"github.com/randomizedcoder/go-teachos/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/teachos
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("teachos %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	if cfg.ListApps {
		printApps(os.Stdout)
		return 0
	}

	// Apply -check mode modifications
	if cfg.Check {
		config.ApplyCheckMode(cfg)
	}

	// When the TUI is enabled, suppress logs to avoid interfering with rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", cfg.LogLevel, false)
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	if cfg.Check {
		logger.Info("check_mode_enabled", "apps", cfg.Apps, "duration", cfg.Duration)
	}

	logger.Info("starting",
		"version", version,
		"apps", cfg.Apps,
		"frames", cfg.Frames,
		"metrics_addr", cfg.MetricsAddr,
	)

	orch, err := orchestrator.New(cfg, logger, orchestrator.Options{
		Version:       version,
		Registry:      apps.Registry(cfg.SleepMs),
		Stdout:        os.Stdout,
		HandleSignals: true,
	})
	if err != nil {
		logger.Error("orchestrator_init_failed", "error", err)
		return 1
	}

	if !cfg.TUIEnabled {
		printBanner(os.Stdout, cfg, orch.Apps())
	}

	if err := orch.Run(context.Background()); err != nil {
		logger.Error("orchestrator_failed", "error", err)
		return 1
	}

	if n := orch.FailedProcesses(); n > 0 {
		logger.Warn("processes_failed", "count", n)
		return 1
	}
	return 0
}

// printBanner prints the startup banner.
func printBanner(w io.Writer, cfg *config.Config, names []string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                             teachos                               ║")
	fmt.Fprintln(w, "║        Process descriptors and syscalls on a teaching kernel      ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Apps:        %s\n", strings.Join(names, ", "))
	fmt.Fprintf(w, "  Memory:      %d frames (%d KiB)\n", cfg.Frames, cfg.Frames*4)
	if cfg.Duration > 0 {
		fmt.Fprintf(w, "  Duration:    %s\n", cfg.Duration)
	}
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(w, "  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	if cfg.TraceFile != "" {
		fmt.Fprintf(w, "  Trace:       %s\n", cfg.TraceFile)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Press Ctrl+C to stop.")
	fmt.Fprintln(w)
}

// printApps lists the built-in apps, marking the ones booted by default.
func printApps(w io.Writer) {
	def := make(map[string]bool, len(apps.Default))
	for _, n := range apps.Default {
		def[n] = true
	}
	fmt.Fprintln(w, "Built-in apps (* = booted by default):")
	for _, n := range apps.Registry(apps.DefaultSleepMs).Names() {
		mark := " "
		if def[n] {
			mark = "*"
		}
		fmt.Fprintf(w, "  %s %s\n", mark, n)
	}
}
