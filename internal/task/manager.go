package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/randomizedcoder/go-teachos/internal/timer"
)

// Exit codes the kernel assigns when a process does not exit by itself.
const (
	// ExitCodeFault is used when a process is killed for a fault.
	ExitCodeFault int32 = -2

	// ExitCodeShutdown is used for processes retired because the kernel
	// is stopping.
	ExitCodeShutdown int32 = -3
)

// Context is the saved scheduling state of a process: the channel its
// goroutine parks on while another process holds the CPU.
type Context struct {
	wake    chan struct{}
	started bool
}

func newContext() *Context {
	return &Context{wake: make(chan struct{}, 1)}
}

// Callbacks contains optional callback functions for scheduler events.
// They run on whichever goroutine holds the CPU.
type Callbacks struct {
	// OnAdd is called when a Ready process joins the queue.
	OnAdd func(slot int, name string)

	// OnStateChange is called when a process changes status.
	OnStateChange func(slot int, name string, oldStatus, newStatus Status)

	// OnExit is called when a process exits.
	OnExit func(slot int, name string, code int32, uptimeMicros uint64)
}

// Config holds configuration for creating a new Manager.
type Config struct {
	Logger    *slog.Logger
	Clock     timer.Clock
	Callbacks Callbacks

	// Launch runs on a new goroutine the first time a process gets the
	// CPU. It leaves only through ExitCurrentAndRunNext.
	Launch func(*ControlBlock)
}

// Manager is a round-robin scheduler over a fixed set of processes.
//
// Exactly one goroutine runs at a time: the CPU is handed between process
// goroutines (and the goroutine in Run, while idle) through each
// Context's wake channel. State below is only touched by the CPU holder.
type Manager struct {
	logger    *slog.Logger
	clock     timer.Clock
	callbacks Callbacks
	launch    func(*ControlBlock)

	tasks   []*ControlBlock
	current *ControlBlock
	idle    *Context

	running  atomic.Bool
	stopping atomic.Bool
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Launch == nil {
		panic("task: manager requires a launch function")
	}
	return &Manager{
		logger:    logger,
		clock:     cfg.Clock,
		callbacks: cfg.Callbacks,
		launch:    cfg.Launch,
		idle:      newContext(),
	}
}

// Add appends a Ready process. Slots must match the order of Add calls.
func (m *Manager) Add(t *ControlBlock) {
	if m.running.Load() {
		panic("task: add while running")
	}
	if t.slot != len(m.tasks) {
		panic(fmt.Sprintf("task: %s added with slot %d, want %d", t.name, t.slot, len(m.tasks)))
	}
	m.tasks = append(m.tasks, t)
	if m.callbacks.OnAdd != nil {
		m.callbacks.OnAdd(t.slot, t.name)
	}
}

// Tasks returns every process in slot order.
func (m *Manager) Tasks() []*ControlBlock {
	out := make([]*ControlBlock, len(m.tasks))
	copy(out, m.tasks)
	return out
}

// Current returns the process holding the CPU, or nil when idle.
func (m *Manager) Current() *ControlBlock {
	return m.current
}

// Stopping reports whether Run's context has ended.
func (m *Manager) Stopping() bool {
	return m.stopping.Load()
}

// Run schedules processes until all have exited. If ctx ends first, each
// remaining process is retired the next time it would run, and Run
// returns ctx.Err() once the last one is gone.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("task: manager already running")
	}

	next := m.findNext(len(m.tasks) - 1)
	if next == nil {
		return nil
	}

	stop := context.AfterFunc(ctx, func() { m.stopping.Store(true) })
	defer stop()

	m.logger.Info("scheduler_start", "processes", len(m.tasks))
	m.switchTo(m.idle, next)
	m.logger.Info("scheduler_idle")

	if m.stopping.Load() {
		return ctx.Err()
	}
	return nil
}

// SuspendCurrentAndRunNext puts the current process back in the ready
// queue and runs the next one. It returns when the caller is scheduled
// again.
func (m *Manager) SuspendCurrentAndRunNext() {
	cur := m.mustCurrent("suspend")
	m.transition(cur, StatusReady)
	m.switchTo(cur.context, m.findNext(cur.slot))

	if m.stopping.Load() {
		m.ExitCurrentAndRunNext(ExitCodeShutdown)
	}
}

// ExitCurrentAndRunNext terminates the current process, releases its
// memory, and runs the next one. It does not return: the calling
// goroutine ends.
func (m *Manager) ExitCurrentAndRunNext(code int32) {
	cur := m.mustCurrent("exit")
	m.retire(cur, code)
	m.current = nil
	m.switchTo(nil, m.findNext(cur.slot))
	runtime.Goexit()
}

func (m *Manager) mustCurrent(op string) *ControlBlock {
	if m.current == nil {
		panic(fmt.Sprintf("task: %s with no current process", op))
	}
	return m.current
}

// findNext returns the first Ready process after slot, wrapping around
// and ending with slot itself.
func (m *Manager) findNext(slot int) *ControlBlock {
	n := len(m.tasks)
	for i := 1; i <= n; i++ {
		t := m.tasks[(slot+i)%n]
		if t.status == StatusReady {
			return t
		}
	}
	return nil
}

// switchTo gives the CPU to next and parks the caller on from until it is
// switched back. A nil next wakes Run. A nil from does not park.
func (m *Manager) switchTo(from *Context, next *ControlBlock) {
	for next != nil && m.stopping.Load() && !next.context.started {
		m.retire(next, ExitCodeShutdown)
		next = m.findNext(next.slot)
	}

	if next == nil {
		m.current = nil
		if from == m.idle {
			return
		}
		m.idle.wake <- struct{}{}
		if from != nil {
			<-from.wake
		}
		return
	}

	m.transition(next, StatusRunning)
	m.current = next
	if next.context == from {
		return
	}

	if !next.context.started {
		next.context.started = true
		go m.start(next)
	} else {
		next.context.wake <- struct{}{}
	}
	if from != nil {
		<-from.wake
	}
}

func (m *Manager) start(t *ControlBlock) {
	m.launch(t)
	panic(fmt.Sprintf("task: %s returned to the scheduler without exiting", t.name))
}

func (m *Manager) transition(t *ControlBlock, to Status) {
	from := t.status
	if err := t.setStatus(to); err != nil {
		panic(err)
	}
	m.logger.Debug("process_state_change",
		"pid", t.slot,
		"name", t.name,
		"from", from.String(),
		"to", to.String(),
	)
	if m.callbacks.OnStateChange != nil {
		m.callbacks.OnStateChange(t.slot, t.name, from, to)
	}
}

// retire moves a Ready or Running process to Exited and frees it.
func (m *Manager) retire(t *ControlBlock, code int32) {
	if t.status == StatusReady {
		m.transition(t, StatusRunning)
	}
	m.transition(t, StatusExited)
	t.exitCode = code
	t.release()

	var uptime uint64
	if m.clock != nil {
		if now := m.clock.NowMicros(); now > t.startTime {
			uptime = now - t.startTime
		}
	}
	m.logger.Info("process_exited",
		"pid", t.slot,
		"name", t.name,
		"exit_code", code,
		"uptime_us", uptime,
	)
	if m.callbacks.OnExit != nil {
		m.callbacks.OnExit(t.slot, t.name, code, uptime)
	}
}
