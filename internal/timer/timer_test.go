package timer

import (
	"sync"
	"testing"
	"time"
)

func TestHostClock_NeverBackward(t *testing.T) {
	c := NewHostClock()
	prev := c.NowMicros()
	for i := 0; i < 1000; i++ {
		now := c.NowMicros()
		if now < prev {
			t.Fatalf("clock moved backward: %d -> %d", prev, now)
		}
		prev = now
	}
}

func TestHostClock_Advances(t *testing.T) {
	c := NewHostClock()
	start := c.NowMicros()
	time.Sleep(2 * time.Millisecond)
	if got := c.NowMicros() - start; got < 2000 {
		t.Errorf("elapsed = %dus, want >= 2000us", got)
	}
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(1_000_000)
	if got := c.NowMicros(); got != 1_000_000 {
		t.Errorf("NowMicros() = %d, want 1000000", got)
	}

	if got := c.Advance(1500 * time.Microsecond); got != 1_001_500 {
		t.Errorf("Advance() = %d, want 1001500", got)
	}

	c.Set(42)
	if got := c.NowMicros(); got != 42 {
		t.Errorf("after Set, NowMicros() = %d, want 42", got)
	}
}

func TestMonotonic_ClampsBackwardSource(t *testing.T) {
	src := NewManualClock(500)
	m := NewMonotonic(src)

	if got := m.NowMicros(); got != 500 {
		t.Fatalf("first reading = %d, want 500", got)
	}

	src.Set(100)
	if got := m.NowMicros(); got != 500 {
		t.Errorf("reading after source went back = %d, want 500", got)
	}

	src.Set(900)
	if got := m.NowMicros(); got != 900 {
		t.Errorf("reading after source advanced = %d, want 900", got)
	}
}

func TestMonotonic_Concurrent(t *testing.T) {
	src := NewHostClock()
	m := NewMonotonic(src)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prev := uint64(0)
			for i := 0; i < 500; i++ {
				now := m.NowMicros()
				if now < prev {
					t.Errorf("monotonic reading went backward: %d -> %d", prev, now)
					return
				}
				prev = now
			}
		}()
	}
	wg.Wait()
}
