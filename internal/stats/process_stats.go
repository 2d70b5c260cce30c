// Package stats provides per-process and aggregated statistics for a
// kernel run.
//
// This file implements ProcessStats which tracks one process:
// - Syscall counts by id, failures, unknown ids
// - Host latency of each syscall (t-digest)
// - Console bytes and mapped memory
// - Scheduling: status, dispatch count, exit code
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-teachos/internal/abi"
	"github.com/randomizedcoder/go-teachos/internal/mm"
	"github.com/randomizedcoder/go-teachos/internal/task"
)

// DigestCompression bounds the centroids of each latency digest.
const DigestCompression = 100

// ProcessStats holds per-process statistics.
//
// Thread-safe: counters are atomics, the digest has its own mutex.
type ProcessStats struct {
	PID       int
	Name      string
	StartTime time.Time

	// Syscall counts (atomic, lock-free), indexed by id
	syscalls [abi.MaxSyscallNum]atomic.Int64
	Total    atomic.Int64
	Failed   atomic.Int64
	Unknown  atomic.Int64 // ids outside the counter table

	// I/O and memory
	ConsoleBytes atomic.Int64
	mappedBytes  atomic.Int64

	// Scheduling
	status     atomic.Int32 // task.Status
	Dispatches atomic.Int64 // times the process got the CPU
	exited     atomic.Bool
	exitCode   atomic.Int32
	uptime     atomic.Int64 // time.Duration, set at exit

	// Latency
	latencySum atomic.Int64 // nanoseconds
	latencyMax atomic.Int64 // nanoseconds
	digest     *tdigest.TDigest
	digestMu   sync.Mutex // TDigest is not thread-safe
}

// NewProcessStats creates stats for a Ready process.
func NewProcessStats(pid int, name string, start time.Time) *ProcessStats {
	s := &ProcessStats{
		PID:       pid,
		Name:      name,
		StartTime: start,
		digest:    tdigest.NewWithCompression(DigestCompression),
	}
	s.status.Store(int32(task.StatusReady))
	return s
}

// --- Syscall Recording ---

// RecordSyscall records one completed syscall.
func (s *ProcessStats) RecordSyscall(id abi.SyscallID, args [3]uint64, result int64, latency time.Duration) {
	s.Total.Add(1)
	if id.Valid() {
		s.syscalls[id].Add(1)
	} else {
		s.Unknown.Add(1)
	}
	if result < 0 {
		s.Failed.Add(1)
	}

	if result >= 0 {
		switch id {
		case abi.SysWrite:
			s.ConsoleBytes.Add(result)
		case abi.SysMmap:
			s.mappedBytes.Add(pageBytes(args[1]))
		case abi.SysMunmap:
			s.mappedBytes.Add(-pageBytes(args[1]))
		}
	}

	s.recordLatency(latency)
}

// pageBytes rounds length up to whole pages.
func pageBytes(length uint64) int64 {
	return int64(mm.VirtAddr(length).Ceil()) * mm.PageSize
}

func (s *ProcessStats) recordLatency(d time.Duration) {
	ns := d.Nanoseconds()
	if ns < 0 {
		ns = 0
	}
	s.latencySum.Add(ns)
	for {
		cur := s.latencyMax.Load()
		if ns <= cur || s.latencyMax.CompareAndSwap(cur, ns) {
			break
		}
	}

	s.digestMu.Lock()
	s.digest.Add(float64(ns), 1)
	s.digestMu.Unlock()
}

// SyscallCount returns how many times id was called.
func (s *ProcessStats) SyscallCount(id abi.SyscallID) int64 {
	if !id.Valid() {
		return 0
	}
	return s.syscalls[id].Load()
}

// MappedBytes returns the bytes currently mapped through mmap.
func (s *ProcessStats) MappedBytes() int64 {
	return s.mappedBytes.Load()
}

// LatencyQuantile returns the q-quantile of syscall latency.
func (s *ProcessStats) LatencyQuantile(q float64) time.Duration {
	if s.Total.Load() == 0 {
		return 0
	}
	s.digestMu.Lock()
	defer s.digestMu.Unlock()
	return time.Duration(s.digest.Quantile(q))
}

// --- Scheduling ---

// SetStatus records a status transition.
func (s *ProcessStats) SetStatus(st task.Status) {
	s.status.Store(int32(st))
	if st == task.StatusRunning {
		s.Dispatches.Add(1)
	}
}

// Status returns the last recorded status.
func (s *ProcessStats) Status() task.Status {
	return task.Status(s.status.Load())
}

// RecordExit records the exit code and lifetime. The address space is
// gone, so mapped bytes drop to zero.
func (s *ProcessStats) RecordExit(code int32, uptime time.Duration) {
	s.mappedBytes.Store(0)
	s.exitCode.Store(code)
	s.uptime.Store(int64(uptime))
	s.exited.Store(true)
	s.status.Store(int32(task.StatusExited))
}

// ExitCode returns the exit code and whether the process has exited.
func (s *ProcessStats) ExitCode() (int32, bool) {
	return s.exitCode.Load(), s.exited.Load()
}

// Uptime returns the lifetime at exit, or the time since start for a live
// process.
func (s *ProcessStats) Uptime(now time.Time) time.Duration {
	if s.exited.Load() {
		return time.Duration(s.uptime.Load())
	}
	return now.Sub(s.StartTime)
}

// Summary is a point-in-time copy of one process's stats.
type Summary struct {
	PID          int
	Name         string
	Status       task.Status
	Exited       bool
	ExitCode     int32
	Uptime       time.Duration
	Dispatches   int64
	Syscalls     int64
	Failed       int64
	Unknown      int64
	PerSyscall   map[abi.SyscallID]int64
	ConsoleBytes int64
	MappedBytes  int64
	LatencyAvg   time.Duration
	LatencyP50   time.Duration
	LatencyP99   time.Duration
	LatencyMax   time.Duration
}

// GetSummary returns a snapshot of the process's stats.
func (s *ProcessStats) GetSummary(now time.Time) Summary {
	code, exited := s.ExitCode()
	sum := Summary{
		PID:          s.PID,
		Name:         s.Name,
		Status:       s.Status(),
		Exited:       exited,
		ExitCode:     code,
		Uptime:       s.Uptime(now),
		Dispatches:   s.Dispatches.Load(),
		Syscalls:     s.Total.Load(),
		Failed:       s.Failed.Load(),
		Unknown:      s.Unknown.Load(),
		PerSyscall:   make(map[abi.SyscallID]int64),
		ConsoleBytes: s.ConsoleBytes.Load(),
		MappedBytes:  s.MappedBytes(),
		LatencyP50:   s.LatencyQuantile(0.50),
		LatencyP99:   s.LatencyQuantile(0.99),
		LatencyMax:   time.Duration(s.latencyMax.Load()),
	}
	for _, id := range abi.KnownSyscalls() {
		if n := s.syscalls[id].Load(); n > 0 {
			sum.PerSyscall[id] = n
		}
	}
	if sum.Syscalls > 0 {
		sum.LatencyAvg = time.Duration(s.latencySum.Load() / sum.Syscalls)
	}
	return sum
}
