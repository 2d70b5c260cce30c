// Package orchestrator boots one kernel run and wires everything around it:
// console capture, stats, Prometheus metrics, tracing, the dashboard, signal
// handling and the exit summary.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-teachos/internal/apps"
	"github.com/randomizedcoder/go-teachos/internal/config"
	"github.com/randomizedcoder/go-teachos/internal/idgen"
	"github.com/randomizedcoder/go-teachos/internal/kernel"
	"github.com/randomizedcoder/go-teachos/internal/loader"
	"github.com/randomizedcoder/go-teachos/internal/logging"
	"github.com/randomizedcoder/go-teachos/internal/metrics"
	"github.com/randomizedcoder/go-teachos/internal/preflight"
	"github.com/randomizedcoder/go-teachos/internal/stats"
	"github.com/randomizedcoder/go-teachos/internal/syscalls"
	"github.com/randomizedcoder/go-teachos/internal/task"
	"github.com/randomizedcoder/go-teachos/internal/timer"
	"github.com/randomizedcoder/go-teachos/internal/tracing"
	"github.com/randomizedcoder/go-teachos/internal/tui"
)

const (
	shutdownTimeout  = 10 * time.Second
	progressInterval = time.Second

	// summaryTailLines is how many console lines of a failed process the
	// exit summary shows.
	summaryTailLines = 5
)

// Options carries the dependencies a caller may replace.
type Options struct {
	// Version is reported in boot_info and trace resources.
	Version string

	// Registry holds the bootable apps. Defaults to the built-in apps.
	Registry *loader.Registry

	// Stdout receives the preflight report, process console output (when
	// the dashboard is off) and the exit summary. Defaults to os.Stdout.
	Stdout io.Writer

	// Clock defaults to the host clock.
	Clock timer.Clock

	// HandleSignals stops the run on SIGINT and SIGTERM.
	HandleSignals bool
}

// Orchestrator coordinates all components for one kernel run.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger
	opts   Options
	out    io.Writer
	bootID string
	apps   []string

	kernel        *kernel.Kernel
	console       *logging.ConsoleHandler
	aggregator    *stats.Aggregator
	registry      *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server
	tracer        *tracing.Tracer

	startTime time.Time
	duration  time.Duration
	summaryMu sync.Mutex
	final     *stats.AggregatedStats
}

// New creates the kernel and every observer attached to it. Nothing runs
// until Run.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Orchestrator, error) {
	if opts.Registry == nil {
		opts.Registry = apps.Registry(cfg.SleepMs)
	}
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	appNames := cfg.Apps
	if len(appNames) == 0 {
		appNames = apps.Default
	}

	o := &Orchestrator{
		config:     cfg,
		logger:     logger,
		opts:       opts,
		out:        out,
		bootID:     idgen.BootID(),
		apps:       appNames,
		aggregator: stats.NewAggregator(),
		registry:   prometheus.NewRegistry(),
	}

	// The dashboard owns the terminal, so console output is only kept
	// in the ring buffers when it is on.
	var consoleOut io.Writer = out
	if cfg.TUIEnabled {
		consoleOut = nil
	}
	o.console = logging.NewConsoleHandler(logger, consoleOut, cfg.ConsoleLines, cfg.Verbose)

	observers := []syscalls.Observer{o.aggregator}
	if cfg.TraceFile != "" {
		tr, err := tracing.Open(cfg.TraceFile, tracing.Config{
			ServiceName:    "teachos",
			ServiceVersion: opts.Version,
			BootID:         o.bootID,
		})
		if err != nil {
			return nil, err
		}
		o.tracer = tr
		observers = append(observers, tr)
	}

	o.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	o.metrics = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		BootID:         o.bootID,
		Version:        opts.Version,
		Frames:         cfg.Frames,
		ProcessMetrics: cfg.ProcessMetrics,
		Memory:         kernelMemory{o},
	}, o.registry)
	observers = append(observers, o.metrics)

	hooks := []task.Callbacks{
		o.aggregator.Callbacks(),
		o.metrics.Callbacks(),
		{OnExit: func(pid int, _ string, _ int32, _ uint64) { o.console.Flush(pid) }},
	}
	if o.tracer != nil {
		hooks = append(hooks, o.tracer.Callbacks())
	}

	k, err := kernel.New(kernel.Config{
		Logger:    logger,
		Frames:    cfg.Frames,
		Clock:     opts.Clock,
		Console:   o.console,
		Observers: observers,
		Callbacks: chainCallbacks(hooks...),
		OnPanic:   o.onPanic,
	})
	if err != nil {
		o.closeTracer()
		return nil, err
	}
	o.kernel = k

	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, o.registry, logger)
	}

	return o, nil
}

// kernelMemory reads the frame pool of the kernel once it exists.
type kernelMemory struct{ o *Orchestrator }

func (m kernelMemory) TotalFrames() int {
	if m.o.kernel == nil {
		return 0
	}
	return m.o.kernel.Phys().TotalFrames()
}

func (m kernelMemory) FreeFrames() int {
	if m.o.kernel == nil {
		return 0
	}
	return m.o.kernel.Phys().FreeFrames()
}

// Run executes the kernel. It blocks until every process has exited, the
// configured duration elapses, a signal arrives, or ctx ends.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()
	defer o.closeTracer()

	if !o.config.SkipPreflight {
		result := preflight.RunAll(preflight.Input{
			Apps:        o.apps,
			Frames:      o.config.Frames,
			MetricsAddr: o.config.MetricsAddr,
			Registry:    o.opts.Registry,
		})
		preflight.PrintResults(o.out, result)
		if !result.Passed {
			return fmt.Errorf("preflight checks failed (use -skip-preflight to override)")
		}
	}

	images, err := o.opts.Registry.Resolve(o.apps)
	if err != nil {
		return err
	}

	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	if err := o.kernel.Boot(images); err != nil {
		o.stopMetricsServer()
		return err
	}
	if o.metricsServer != nil {
		o.metricsServer.SetReady(true)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if o.config.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.config.Duration)
		defer cancel()
	}
	if o.opts.HandleSignals {
		ctx, cancel = signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
		defer cancel()
	}

	o.logger.Info("run_starting",
		"boot_id", o.bootID,
		"apps", o.apps,
		"frames", o.config.Frames,
		"duration", o.config.Duration.String(),
	)

	runErr := make(chan error, 1)
	go func() { runErr <- o.kernel.Run(ctx) }()

	if o.config.TUIEnabled {
		err = o.runWithTUI(ctx, cancel, runErr)
	} else {
		err = o.runPlain(runErr)
	}
	o.duration = time.Since(o.startTime)

	switch {
	case err == nil:
		o.logger.Info("run_complete", "duration", o.duration.String())
	case errors.Is(err, context.DeadlineExceeded):
		o.logger.Info("duration_elapsed", "duration", o.config.Duration.String())
		err = nil
	case errors.Is(err, context.Canceled):
		o.logger.Info("run_cancelled")
		err = nil
	}

	o.stopMetricsServer()
	o.printExitSummary()
	if dumpErr := o.dumpMetrics(); dumpErr != nil {
		o.logger.Warn("metrics_dump_failed", "path", o.config.MetricsDump, "error", dumpErr)
	}
	return err
}

// dumpMetrics writes the final registry contents when configured.
func (o *Orchestrator) dumpMetrics() error {
	switch o.config.MetricsDump {
	case "":
		return nil
	case "-":
		return metrics.WriteText(o.out, o.registry)
	}
	f, err := os.Create(o.config.MetricsDump)
	if err != nil {
		return fmt.Errorf("create metrics dump: %w", err)
	}
	if err := metrics.WriteText(f, o.registry); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// runPlain waits for the kernel, logging progress periodically.
func (o *Orchestrator) runPlain(runErr <-chan error) error {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-runErr:
			return err
		case <-ticker.C:
			s := o.aggregator.Aggregate()
			o.logger.Info("run_progress",
				"exited", s.Exited,
				"processes", s.TotalProcesses,
				"syscalls", s.TotalSyscalls,
				"syscall_rate", fmt.Sprintf("%.1f", s.InstantRate),
				"frames_free", o.kernel.Phys().FreeFrames(),
			)
		}
	}
}

// runWithTUI shows the dashboard until the kernel finishes or the user
// quits, which stops the run.
func (o *Orchestrator) runWithTUI(ctx context.Context, cancel context.CancelFunc, runErr <-chan error) error {
	model := tui.New(tui.Config{
		TargetProcesses: len(o.apps),
		BootID:          o.bootID,
		MetricsAddr:     o.config.MetricsAddr,
		StatsSource:     o.aggregator,
		ConsoleSource:   o.console,
		MemorySource:    o.kernel.Phys(),
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	tuiDone := make(chan struct{})
	go func() {
		defer close(tuiDone)
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			o.logger.Warn("tui_error", "error", err)
		}
		// Leaving the dashboard ends the run.
		cancel()
	}()

	err := <-runErr
	tui.SendStats(p, o.aggregator.Aggregate())
	tui.SendQuit(p)
	<-tuiDone
	return err
}

func (o *Orchestrator) stopMetricsServer() {
	if o.metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := o.metricsServer.Shutdown(ctx); err != nil {
		o.logger.Warn("metrics_server_shutdown_error", "error", err)
	}
}

func (o *Orchestrator) closeTracer() {
	if o.tracer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := o.tracer.Shutdown(ctx); err != nil {
		o.logger.Warn("tracer_shutdown_error", "error", err)
	}
}

// onPanic runs once before the kernel halts: the summary and trace are
// flushed so the run is not lost.
func (o *Orchestrator) onPanic(info kernel.PanicInfo) {
	fmt.Fprintf(o.out, "\nkernel panic in pid %d (%s): %v\n%s\n", info.PID, info.Name, info.Value, info.Stack)
	o.duration = time.Since(o.startTime)
	o.printExitSummary()
	o.closeTracer()
}

// printExitSummary writes the exit summary once.
func (o *Orchestrator) printExitSummary() {
	o.summaryMu.Lock()
	defer o.summaryMu.Unlock()
	if o.final != nil {
		return
	}
	o.final = o.aggregator.Aggregate()

	tails := make(map[int][]string)
	for _, p := range o.final.Processes {
		if p.Exited && p.ExitCode != 0 {
			tails[p.PID] = o.console.RecentLines(p.PID, summaryTailLines)
		}
	}

	phys := o.kernel.Phys()
	fmt.Fprint(o.out, stats.FormatExitSummary(o.final, stats.SummaryConfig{
		BootID:          o.bootID,
		Duration:        o.duration,
		MetricsAddr:     o.MetricsAddr(),
		Frames:          phys.TotalFrames(),
		FreeFrames:      phys.FreeFrames(),
		ShowPerProcess:  true,
		ConsoleTail:     tails,
		ConsoleFailures: o.console.CountFailures(),
	}))
}

// FailedProcesses returns how many processes exited with a non-zero code.
// Only meaningful once Run has returned.
func (o *Orchestrator) FailedProcesses() int {
	o.summaryMu.Lock()
	defer o.summaryMu.Unlock()
	if o.final == nil {
		return 0
	}
	n := 0
	for code, count := range o.final.ExitCodes {
		if code != 0 {
			n += count
		}
	}
	return n
}

// BootID returns the identifier of this run.
func (o *Orchestrator) BootID() string {
	return o.bootID
}

// Apps returns the app names this run boots.
func (o *Orchestrator) Apps() []string {
	return o.apps
}

// Kernel returns the kernel for external access.
func (o *Orchestrator) Kernel() *kernel.Kernel {
	return o.kernel
}

// Aggregator returns the stats aggregator for external access.
func (o *Orchestrator) Aggregator() *stats.Aggregator {
	return o.aggregator
}

// Metrics returns the metrics collector for external access.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Console returns the console handler for external access.
func (o *Orchestrator) Console() *logging.ConsoleHandler {
	return o.console
}

// Registry returns the Prometheus registry of this run.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}

// MetricsAddr returns the bound metrics address, or "" when disabled.
func (o *Orchestrator) MetricsAddr() string {
	if o.metricsServer == nil {
		return ""
	}
	return o.metricsServer.Addr()
}
