package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-teachos/internal/abi"
	"github.com/randomizedcoder/go-teachos/internal/syscalls"
	"github.com/randomizedcoder/go-teachos/internal/task"
)

// AggregatedStats is a snapshot across every process.
type AggregatedStats struct {
	Timestamp time.Time
	Elapsed   time.Duration

	// Process counts
	TotalProcesses int
	Ready          int
	Running        int
	Exited         int

	// Syscalls
	TotalSyscalls   int64
	FailedSyscalls  int64
	UnknownSyscalls int64
	PerSyscall      map[abi.SyscallID]int64
	SyscallRate     float64 // average since start, per second
	InstantRate     float64 // since the previous Aggregate call

	// Latency (host time inside the kernel)
	LatencyP50 time.Duration
	LatencyP95 time.Duration
	LatencyP99 time.Duration
	LatencyMax time.Duration

	// I/O and memory
	ConsoleBytes int64
	MappedBytes  int64

	// Exits
	ExitCodes map[int32]int

	// Per process, in pid order
	Processes []Summary
}

// rateSnapshot holds values for calculating instantaneous rates
type rateSnapshot struct {
	timestamp time.Time
	syscalls  int64
}

// Aggregator collects stats from every process. It is a syscall observer
// and supplies scheduler callbacks.
type Aggregator struct {
	mu        sync.RWMutex
	procs     map[int]*ProcessStats
	startTime time.Time
	now       func() time.Time

	// Kernel-wide latency digest
	digest   *tdigest.TDigest
	digestMu sync.Mutex

	// Previous snapshot for rate calculation
	prevSnapshot atomic.Pointer[rateSnapshot]
}

// NewAggregator creates a new aggregator.
func NewAggregator() *Aggregator {
	return newAggregator(time.Now)
}

func newAggregator(now func() time.Time) *Aggregator {
	agg := &Aggregator{
		procs:     make(map[int]*ProcessStats),
		startTime: now(),
		now:       now,
		digest:    tdigest.NewWithCompression(DigestCompression),
	}
	agg.prevSnapshot.Store(&rateSnapshot{timestamp: agg.startTime})
	return agg
}

// AddProcess registers a process for aggregation.
func (a *Aggregator) AddProcess(pid int, name string) *ProcessStats {
	s := NewProcessStats(pid, name, a.now())
	a.mu.Lock()
	a.procs[pid] = s
	a.mu.Unlock()
	return s
}

// GetProcess returns the stats for pid, or nil.
func (a *Aggregator) GetProcess(pid int) *ProcessStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.procs[pid]
}

// ProcessCount returns the number of registered processes.
func (a *Aggregator) ProcessCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.procs)
}

// ObserveSyscall records one completed syscall.
func (a *Aggregator) ObserveSyscall(ev syscalls.Event) {
	s := a.GetProcess(ev.PID)
	if s == nil {
		s = a.AddProcess(ev.PID, ev.Name)
	}
	latency := ev.End.Sub(ev.Start)
	s.RecordSyscall(ev.ID, ev.Args, ev.Result, latency)

	a.digestMu.Lock()
	a.digest.Add(float64(max(latency, 0)), 1)
	a.digestMu.Unlock()
}

// Callbacks returns scheduler callbacks that feed the aggregator.
func (a *Aggregator) Callbacks() task.Callbacks {
	return task.Callbacks{
		OnAdd: func(pid int, name string) { a.AddProcess(pid, name) },
		OnStateChange: func(pid int, _ string, _, to task.Status) {
			if s := a.GetProcess(pid); s != nil {
				s.SetStatus(to)
			}
		},
		OnExit: func(pid int, _ string, code int32, uptimeMicros uint64) {
			if s := a.GetProcess(pid); s != nil {
				s.RecordExit(code, time.Duration(uptimeMicros)*time.Microsecond)
			}
		},
	}
}

// Aggregate computes aggregated statistics across all processes.
//
// This creates a snapshot of current metrics. The returned struct is
// safe to use after the call returns.
func (a *Aggregator) Aggregate() *AggregatedStats {
	a.mu.RLock()
	procs := make([]*ProcessStats, 0, len(a.procs))
	for _, s := range a.procs {
		procs = append(procs, s)
	}
	a.mu.RUnlock()

	sort.Slice(procs, func(i, j int) bool { return procs[i].PID < procs[j].PID })

	now := a.now()
	result := &AggregatedStats{
		Timestamp:      now,
		Elapsed:        now.Sub(a.startTime),
		TotalProcesses: len(procs),
		PerSyscall:     make(map[abi.SyscallID]int64),
		ExitCodes:      make(map[int32]int),
		Processes:      make([]Summary, 0, len(procs)),
	}

	for _, s := range procs {
		sum := s.GetSummary(now)
		result.Processes = append(result.Processes, sum)

		switch sum.Status {
		case task.StatusReady:
			result.Ready++
		case task.StatusRunning:
			result.Running++
		case task.StatusExited:
			result.Exited++
		}
		if sum.Exited {
			result.ExitCodes[sum.ExitCode]++
		}

		result.TotalSyscalls += sum.Syscalls
		result.FailedSyscalls += sum.Failed
		result.UnknownSyscalls += sum.Unknown
		result.ConsoleBytes += sum.ConsoleBytes
		result.MappedBytes += sum.MappedBytes
		for id, n := range sum.PerSyscall {
			result.PerSyscall[id] += n
		}
		if sum.LatencyMax > result.LatencyMax {
			result.LatencyMax = sum.LatencyMax
		}
	}

	if result.TotalSyscalls > 0 {
		a.digestMu.Lock()
		result.LatencyP50 = time.Duration(a.digest.Quantile(0.50))
		result.LatencyP95 = time.Duration(a.digest.Quantile(0.95))
		result.LatencyP99 = time.Duration(a.digest.Quantile(0.99))
		a.digestMu.Unlock()
	}

	// Rates
	if secs := result.Elapsed.Seconds(); secs > 0 {
		result.SyscallRate = float64(result.TotalSyscalls) / secs
	}
	cur := &rateSnapshot{timestamp: now, syscalls: result.TotalSyscalls}
	if prev := a.prevSnapshot.Swap(cur); prev != nil {
		if dt := now.Sub(prev.timestamp).Seconds(); dt > 0 {
			result.InstantRate = float64(result.TotalSyscalls-prev.syscalls) / dt
		}
	}

	return result
}

// StartTime returns when the aggregator was created.
func (a *Aggregator) StartTime() time.Time {
	return a.startTime
}

// Elapsed returns the time since the aggregator was created.
func (a *Aggregator) Elapsed() time.Duration {
	return a.now().Sub(a.startTime)
}

// ForEachProcess calls fn for every process in pid order.
func (a *Aggregator) ForEachProcess(fn func(pid int, stats *ProcessStats)) {
	a.mu.RLock()
	pids := make([]int, 0, len(a.procs))
	for pid := range a.procs {
		pids = append(pids, pid)
	}
	a.mu.RUnlock()

	sort.Ints(pids)
	for _, pid := range pids {
		if s := a.GetProcess(pid); s != nil {
			fn(pid, s)
		}
	}
}
