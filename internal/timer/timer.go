// Package timer provides the microsecond clock the kernel reads for
// get_time, task creation stamps, and task_info elapsed time.
package timer

import (
	"sync/atomic"
	"time"
)

// Clock reads the current time in microseconds.
type Clock interface {
	NowMicros() uint64
}

// HostClock counts microseconds since it was created using the Go
// monotonic clock.
type HostClock struct {
	boot time.Time
}

// NewHostClock creates a clock starting at zero.
func NewHostClock() *HostClock {
	return &HostClock{boot: time.Now()}
}

// NowMicros returns microseconds since boot.
func (c *HostClock) NowMicros() uint64 {
	return uint64(time.Since(c.boot).Microseconds())
}

// ManualClock is a clock that only moves when told to. Useful for testing.
type ManualClock struct {
	us atomic.Uint64
}

// NewManualClock creates a clock reading us.
func NewManualClock(us uint64) *ManualClock {
	c := &ManualClock{}
	c.us.Store(us)
	return c
}

// NowMicros returns the current reading.
func (c *ManualClock) NowMicros() uint64 {
	return c.us.Load()
}

// Set replaces the reading.
func (c *ManualClock) Set(us uint64) {
	c.us.Store(us)
}

// Advance moves the clock forward by d and returns the new reading.
func (c *ManualClock) Advance(d time.Duration) uint64 {
	return c.us.Add(uint64(d.Microseconds()))
}

// Monotonic wraps a clock so readings never go backward, even if the
// underlying source does.
type Monotonic struct {
	src  Clock
	last atomic.Uint64
}

// NewMonotonic wraps src.
func NewMonotonic(src Clock) *Monotonic {
	return &Monotonic{src: src}
}

// NowMicros returns max(source reading, highest reading returned so far).
func (m *Monotonic) NowMicros() uint64 {
	now := m.src.NowMicros()
	for {
		last := m.last.Load()
		if now <= last {
			return last
		}
		if m.last.CompareAndSwap(last, now) {
			return now
		}
	}
}
