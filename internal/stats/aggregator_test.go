package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/randomizedcoder/go-teachos/internal/abi"
	"github.com/randomizedcoder/go-teachos/internal/syscalls"
	"github.com/randomizedcoder/go-teachos/internal/task"
)

// fakeNow is a clock advanced by hand.
type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestAggregator() (*Aggregator, *fakeNow) {
	clock := &fakeNow{t: time.Unix(1000, 0)}
	return newAggregator(clock.now), clock
}

func ev(pid int, name string, id abi.SyscallID, result int64) syscalls.Event {
	start := time.Unix(1000, 0)
	return syscalls.Event{PID: pid, Name: name, ID: id, Result: result, Start: start, End: start.Add(2 * time.Microsecond)}
}

func TestNewAggregator(t *testing.T) {
	agg := NewAggregator()
	if agg.ProcessCount() != 0 {
		t.Errorf("ProcessCount = %d, want 0", agg.ProcessCount())
	}
	if agg.StartTime().IsZero() {
		t.Error("StartTime not set")
	}
}

func TestAggregator_AggregateEmpty(t *testing.T) {
	agg, _ := newTestAggregator()
	s := agg.Aggregate()

	if s.TotalProcesses != 0 || s.TotalSyscalls != 0 {
		t.Errorf("empty aggregate = %+v", s)
	}
	if s.LatencyP50 != 0 || s.SyscallRate != 0 {
		t.Errorf("empty aggregate should have zero latency and rate: %+v", s)
	}
}

func TestAggregator_Callbacks(t *testing.T) {
	agg, clock := newTestAggregator()
	cb := agg.Callbacks()

	cb.OnAdd(0, "a")
	cb.OnAdd(1, "b")
	cb.OnStateChange(0, "a", task.StatusReady, task.StatusRunning)

	s := agg.Aggregate()
	if s.TotalProcesses != 2 || s.Ready != 1 || s.Running != 1 {
		t.Errorf("counts = %d/%d/%d", s.TotalProcesses, s.Ready, s.Running)
	}

	clock.advance(time.Second)
	cb.OnStateChange(0, "a", task.StatusRunning, task.StatusExited)
	cb.OnExit(0, "a", 0, 5000)
	cb.OnStateChange(1, "b", task.StatusReady, task.StatusRunning)
	cb.OnStateChange(1, "b", task.StatusRunning, task.StatusExited)
	cb.OnExit(1, "b", task.ExitCodeFault, 7000)

	// Unknown pids are ignored
	cb.OnStateChange(9, "x", task.StatusReady, task.StatusRunning)
	cb.OnExit(9, "x", 1, 0)

	s = agg.Aggregate()
	if s.Exited != 2 {
		t.Errorf("Exited = %d, want 2", s.Exited)
	}
	if s.ExitCodes[0] != 1 || s.ExitCodes[task.ExitCodeFault] != 1 {
		t.Errorf("ExitCodes = %v", s.ExitCodes)
	}
	if s.Processes[1].Uptime != 7*time.Millisecond {
		t.Errorf("b uptime = %v, want 7ms", s.Processes[1].Uptime)
	}
	if agg.ProcessCount() != 2 {
		t.Errorf("ProcessCount = %d, want 2", agg.ProcessCount())
	}
}

func TestAggregator_ObserveSyscall(t *testing.T) {
	agg, clock := newTestAggregator()
	agg.AddProcess(0, "hello")

	agg.ObserveSyscall(ev(0, "hello", abi.SysWrite, 14))
	agg.ObserveSyscall(ev(0, "hello", abi.SysExit, 0))
	// A syscall from a process the aggregator never saw registers it
	agg.ObserveSyscall(ev(4, "late", abi.SysYield, 0))
	agg.ObserveSyscall(ev(4, "late", abi.SyscallID(1000), -1))

	clock.advance(2 * time.Second)
	s := agg.Aggregate()

	if s.TotalProcesses != 2 {
		t.Errorf("TotalProcesses = %d, want 2", s.TotalProcesses)
	}
	if s.TotalSyscalls != 4 || s.FailedSyscalls != 1 || s.UnknownSyscalls != 1 {
		t.Errorf("syscalls total=%d failed=%d unknown=%d", s.TotalSyscalls, s.FailedSyscalls, s.UnknownSyscalls)
	}
	if s.PerSyscall[abi.SysWrite] != 1 || s.PerSyscall[abi.SysYield] != 1 {
		t.Errorf("PerSyscall = %v", s.PerSyscall)
	}
	if s.ConsoleBytes != 14 {
		t.Errorf("ConsoleBytes = %d, want 14", s.ConsoleBytes)
	}
	if s.SyscallRate != 2 {
		t.Errorf("SyscallRate = %v, want 2/s", s.SyscallRate)
	}
	if s.LatencyP50 != 2*time.Microsecond || s.LatencyMax != 2*time.Microsecond {
		t.Errorf("latency p50=%v max=%v, want 2us", s.LatencyP50, s.LatencyMax)
	}
	if s.Processes[0].PID != 0 || s.Processes[1].PID != 4 || s.Processes[1].Name != "late" {
		t.Errorf("Processes out of order: %+v", s.Processes)
	}
}

func TestAggregator_InstantRate(t *testing.T) {
	agg, clock := newTestAggregator()
	for i := 0; i < 10; i++ {
		agg.ObserveSyscall(ev(0, "a", abi.SysYield, 0))
	}
	clock.advance(time.Second)
	if s := agg.Aggregate(); s.InstantRate != 10 {
		t.Errorf("first InstantRate = %v, want 10", s.InstantRate)
	}

	for i := 0; i < 5; i++ {
		agg.ObserveSyscall(ev(0, "a", abi.SysYield, 0))
	}
	clock.advance(500 * time.Millisecond)
	if s := agg.Aggregate(); s.InstantRate != 10 {
		t.Errorf("second InstantRate = %v, want 10", s.InstantRate)
	}

	// No time passed: rate stays zero rather than dividing by zero
	if s := agg.Aggregate(); s.InstantRate != 0 {
		t.Errorf("InstantRate with no elapsed time = %v, want 0", s.InstantRate)
	}
}

func TestAggregator_ForEachProcess(t *testing.T) {
	agg, _ := newTestAggregator()
	for _, pid := range []int{3, 1, 2} {
		agg.AddProcess(pid, "p")
	}

	var seen []int
	agg.ForEachProcess(func(pid int, s *ProcessStats) {
		if s.PID != pid {
			t.Errorf("stats pid %d under key %d", s.PID, pid)
		}
		seen = append(seen, pid)
	})
	if len(seen) != 3 || seen[0] != 1 || seen[1] != 2 || seen[2] != 3 {
		t.Errorf("ForEachProcess order = %v", seen)
	}
	if agg.GetProcess(7) != nil {
		t.Error("GetProcess of unknown pid should be nil")
	}
}

func TestAggregator_ConcurrentAggregation(t *testing.T) {
	agg := NewAggregator()
	for pid := 0; pid < 4; pid++ {
		agg.AddProcess(pid, "w")
	}

	var wg sync.WaitGroup
	for pid := 0; pid < 4; pid++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				agg.ObserveSyscall(ev(pid, "w", abi.SysGetTime, 0))
			}
		}(pid)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = agg.Aggregate()
		}
	}()
	wg.Wait()

	if s := agg.Aggregate(); s.TotalSyscalls != 1000 {
		t.Errorf("TotalSyscalls = %d, want 1000", s.TotalSyscalls)
	}
}

func BenchmarkAggregator_Aggregate(b *testing.B) {
	agg := NewAggregator()
	for pid := 0; pid < 16; pid++ {
		agg.AddProcess(pid, "bench")
		for i := 0; i < 100; i++ {
			agg.ObserveSyscall(ev(pid, "bench", abi.SysYield, 0))
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = agg.Aggregate()
	}
}
