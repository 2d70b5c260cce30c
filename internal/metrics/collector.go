// Package metrics provides Prometheus metrics for teachos.
//
// Metrics are organized into two tiers:
//   - Tier 1 (always enabled): kernel-wide aggregates
//   - Tier 2 (optional, -process-metrics): per-process syscall counters
package metrics

import (
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-teachos/internal/abi"
	"github.com/randomizedcoder/go-teachos/internal/syscalls"
	"github.com/randomizedcoder/go-teachos/internal/task"
)

// Namespace prefixes every metric name.
const Namespace = "teachos"

// MemoryStats is the view of physical memory exported as gauges.
type MemoryStats interface {
	TotalFrames() int
	FreeFrames() int
}

// Collector manages all Prometheus metrics for one kernel run.
type Collector struct {
	// Configuration
	processMetrics bool
	bootID         string

	// Timing
	startTime time.Time
	now       func() time.Time

	// --- Panel 1: Boot ---
	info *prometheus.GaugeVec

	// --- Panel 2: Syscalls ---
	syscallsTotal   *prometheus.CounterVec
	syscallDuration *prometheus.HistogramVec
	consoleBytes    prometheus.Counter

	// --- Panel 3: Processes ---
	processes     *prometheus.GaugeVec
	processExits  *prometheus.CounterVec
	processUptime prometheus.Histogram

	// Tier 2
	processSyscalls *prometheus.CounterVec

	// For summary generation
	mu            sync.Mutex
	live          int
	peakLive      int
	totalSyscalls int64
	failed        int64
	exitCodes     map[int32]int64
	uptimes       []time.Duration
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	BootID         string
	Version        string
	Frames         int
	ProcessMetrics bool

	// Memory, when set, is sampled on every scrape.
	Memory MemoryStats
}

// NewCollector creates a new metrics collector on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		processMetrics: cfg.ProcessMetrics,
		bootID:         cfg.BootID,
		startTime:      time.Now(),
		now:            time.Now,
		exitCodes:      make(map[int32]int64),

		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "boot_info",
				Help:      "Information about the kernel run (value always 1)",
			},
			[]string{"boot_id", "version", "frames"},
		),

		syscallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "syscalls_total",
				Help:      "Syscalls handled, by syscall and result (ok or error)",
			},
			[]string{"syscall", "result"},
		),
		syscallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "syscall_duration_seconds",
				Help:      "Host time spent inside the kernel per syscall",
				Buckets: []float64{
					0.000001, 0.0000025, 0.000005, 0.00001, 0.000025,
					0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.01,
				},
			},
			[]string{"syscall"},
		),
		consoleBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "console_bytes_total",
				Help:      "Bytes written to stdout by user processes",
			},
		),

		processes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "processes",
				Help:      "Processes by status",
			},
			[]string{"status"},
		),
		processExits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "process_exits_total",
				Help:      "Process exits by category (success, error, fault, shutdown)",
			},
			[]string{"category"},
		),
		processUptime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "process_uptime_seconds",
				Help:      "Process lifetime from creation to exit",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),
	}

	// Register Tier 1 metrics (always)
	registry.MustRegister(
		// Panel 1: Boot
		c.info,

		// Panel 2: Syscalls
		c.syscallsTotal,
		c.syscallDuration,
		c.consoleBytes,

		// Panel 3: Processes
		c.processes,
		c.processExits,
		c.processUptime,
	)

	if cfg.Memory != nil {
		mem := cfg.Memory
		registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "frames_total",
				Help:      "Physical frames in the machine",
			}, func() float64 { return float64(mem.TotalFrames()) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "frames_free",
				Help:      "Physical frames not allocated",
			}, func() float64 { return float64(mem.FreeFrames()) }),
		)
	}

	// Register Tier 2 metrics (optional)
	if cfg.ProcessMetrics {
		c.processSyscalls = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "process_syscalls_total",
				Help:      "Syscalls by process and syscall",
			},
			[]string{"pid", "name", "syscall"},
		)
		registry.MustRegister(c.processSyscalls)
	}

	// Set initial values
	c.info.WithLabelValues(cfg.BootID, cfg.Version, strconv.Itoa(cfg.Frames)).Set(1)
	for _, s := range []task.Status{task.StatusReady, task.StatusRunning, task.StatusExited} {
		c.processes.WithLabelValues(s.String()).Set(0)
	}

	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// ObserveSyscall records one completed syscall.
func (c *Collector) ObserveSyscall(ev syscalls.Event) {
	name := "unknown"
	if ev.ID.Known() {
		name = ev.ID.String()
	}
	result := "ok"
	if ev.Result < 0 {
		result = "error"
	}
	c.syscallsTotal.WithLabelValues(name, result).Inc()
	c.syscallDuration.WithLabelValues(name).Observe(ev.End.Sub(ev.Start).Seconds())

	if ev.ID == abi.SysWrite && ev.Result > 0 {
		c.consoleBytes.Add(float64(ev.Result))
	}
	if c.processMetrics {
		c.processSyscalls.WithLabelValues(strconv.Itoa(ev.PID), ev.Name, name).Inc()
	}

	c.mu.Lock()
	c.totalSyscalls++
	if ev.Result < 0 {
		c.failed++
	}
	c.mu.Unlock()
}

// ProcessAdded records a process entering the ready queue.
func (c *Collector) ProcessAdded(_ int, _ string) {
	c.processes.WithLabelValues(task.StatusReady.String()).Inc()

	c.mu.Lock()
	c.live++
	if c.live > c.peakLive {
		c.peakLive = c.live
	}
	c.mu.Unlock()
}

// StateChanged moves a process between status gauges.
func (c *Collector) StateChanged(_ int, _ string, from, to task.Status) {
	c.processes.WithLabelValues(from.String()).Dec()
	c.processes.WithLabelValues(to.String()).Inc()
}

// RecordExit records a process exit event.
func (c *Collector) RecordExit(exitCode int32, uptime time.Duration) {
	c.processExits.WithLabelValues(exitCategory(exitCode)).Inc()
	c.processUptime.Observe(uptime.Seconds())

	c.mu.Lock()
	c.live--
	c.exitCodes[exitCode]++
	c.uptimes = append(c.uptimes, uptime)
	c.mu.Unlock()
}

// Callbacks returns scheduler callbacks that feed the collector.
func (c *Collector) Callbacks() task.Callbacks {
	return task.Callbacks{
		OnAdd:         c.ProcessAdded,
		OnStateChange: c.StateChanged,
		OnExit: func(_ int, _ string, code int32, uptimeMicros uint64) {
			c.RecordExit(code, time.Duration(uptimeMicros)*time.Microsecond)
		},
	}
}

// exitCategory groups exit codes for the exits counter.
func exitCategory(code int32) string {
	switch code {
	case 0:
		return "success"
	case task.ExitCodeFault:
		return "fault"
	case task.ExitCodeShutdown:
		return "shutdown"
	default:
		return "error"
	}
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	BootID         string
	Duration       time.Duration
	PeakProcesses  int
	TotalSyscalls  int64
	FailedSyscalls int64
	ExitCodes      map[int32]int64
	UptimeP50      time.Duration
	UptimeP95      time.Duration
	UptimeP99      time.Duration
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		BootID:         c.bootID,
		Duration:       c.now().Sub(c.startTime),
		PeakProcesses:  c.peakLive,
		TotalSyscalls:  c.totalSyscalls,
		FailedSyscalls: c.failed,
		ExitCodes:      make(map[int32]int64, len(c.exitCodes)),
	}

	// Copy exit codes
	for code, count := range c.exitCodes {
		s.ExitCodes[code] = count
	}

	// Calculate percentiles
	if len(c.uptimes) > 0 {
		sorted := slices.Clone(c.uptimes)
		slices.Sort(sorted)

		s.UptimeP50 = percentile(sorted, 0.50)
		s.UptimeP95 = percentile(sorted, 0.95)
		s.UptimeP99 = percentile(sorted, 0.99)
	}

	return s
}

// PeakProcesses returns the largest number of live processes seen.
func (c *Collector) PeakProcesses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakLive
}

// ProcessMetricsEnabled returns whether per-process metrics are enabled.
func (c *Collector) ProcessMetricsEnabled() bool {
	return c.processMetrics
}

// =============================================================================
// Helper Functions
// =============================================================================

// percentile returns the value at the given percentile (0.0-1.0).
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
