// Package kernel boots the simulated machine: physical memory, kernel
// space, one process per program image, and the trap path between user
// programs and the syscall dispatcher.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/randomizedcoder/go-teachos/internal/loader"
	"github.com/randomizedcoder/go-teachos/internal/mm"
	"github.com/randomizedcoder/go-teachos/internal/syscalls"
	"github.com/randomizedcoder/go-teachos/internal/task"
	"github.com/randomizedcoder/go-teachos/internal/timer"
	"github.com/randomizedcoder/go-teachos/internal/trap"
)

// Kernel image addresses.
const (
	KernelBase = 0x8020_0000
	// TrapHandlerAddr is where trap entry jumps once on the kernel stack.
	TrapHandlerAddr = KernelBase + 0x1000
)

// DefaultFrames is the size of RAM when Config.Frames is zero: 8 MiB.
const DefaultFrames = 2048

// Config holds configuration for creating a new Kernel.
type Config struct {
	Logger *slog.Logger

	// Frames is the number of 4 KiB physical frames.
	Frames int

	// Clock is read for get_time and task accounting. It is wrapped so
	// readings never go backward. Defaults to a host clock.
	Clock timer.Clock

	Console   syscalls.Console
	Observers []syscalls.Observer
	Callbacks task.Callbacks

	// OnPanic is called once, before the kernel halts.
	OnPanic func(PanicInfo)
}

// Kernel is one booted machine.
type Kernel struct {
	logger *slog.Logger
	phys   *mm.PhysMemory
	kspace *mm.MemorySet
	clock  timer.Clock
	mgr    *task.Manager
	disp   *syscalls.Dispatcher

	onPanic   func(PanicInfo)
	panicOnce sync.Once
	booted    bool
}

// New creates the machine. No process exists until Boot.
func New(cfg Config) (*Kernel, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	frames := cfg.Frames
	if frames == 0 {
		frames = DefaultFrames
	}
	if frames < 0 {
		return nil, fmt.Errorf("kernel: invalid frame count %d", frames)
	}
	src := cfg.Clock
	if src == nil {
		src = timer.NewHostClock()
	}

	phys := mm.NewPhysMemory(frames)
	kspace, err := mm.NewMemorySet(phys)
	if err != nil {
		return nil, fmt.Errorf("kernel: kernel space: %w", err)
	}

	k := &Kernel{
		logger:  logger,
		phys:    phys,
		kspace:  kspace,
		clock:   timer.NewMonotonic(src),
		onPanic: cfg.OnPanic,
	}
	k.mgr = task.NewManager(task.Config{
		Logger:    logger,
		Clock:     k.clock,
		Callbacks: cfg.Callbacks,
		Launch:    k.launch,
	})
	k.disp = syscalls.New(syscalls.Config{
		Logger:    logger,
		Scheduler: k.mgr,
		Memory:    phys,
		Clock:     k.clock,
		Console:   cfg.Console,
		Observers: cfg.Observers,
	})
	return k, nil
}

// Boot loads one process per image; image i gets slot i.
func (k *Kernel) Boot(images []*loader.Image) error {
	if k.booted {
		return errors.New("kernel: already booted")
	}
	env := task.Env{
		Phys:        k.phys,
		KernelSpace: k.kspace,
		Clock:       k.clock,
		TrapHandler: TrapHandlerAddr,
	}
	var created []*task.ControlBlock
	for i, img := range images {
		tcb, err := task.New(env, img, i)
		if err != nil {
			return fmt.Errorf("kernel: load app %d: %w", i, err)
		}
		created = append(created, tcb)
		k.logger.Info("process_loaded",
			"pid", i,
			"name", img.Name,
			"base_size", tcb.BaseSize(),
			"pages", tcb.MappedPages(),
		)
	}
	for _, tcb := range created {
		k.mgr.Add(tcb)
	}
	k.booted = true
	k.logger.Info("kernel_booted",
		"processes", len(images),
		"frames_total", k.phys.TotalFrames(),
		"frames_free", k.phys.FreeFrames(),
	)
	return nil
}

// Run schedules processes until all have exited or ctx ends.
func (k *Kernel) Run(ctx context.Context) error {
	if !k.booted {
		return errors.New("kernel: run before boot")
	}
	return k.mgr.Run(ctx)
}

// Tasks returns every process in slot order. Only safe to inspect once Run
// has returned.
func (k *Kernel) Tasks() []*task.ControlBlock {
	return k.mgr.Tasks()
}

// Phys returns physical memory.
func (k *Kernel) Phys() *mm.PhysMemory {
	return k.phys
}

// trapHandler services one trap from the current process.
func (k *Kernel) trapHandler(cause trap.Cause, addr uint64, fault error) {
	if k.mgr.Stopping() {
		k.mgr.ExitCurrentAndRunNext(task.ExitCodeShutdown)
	}
	if cause.IsFault() {
		k.kill(cause, addr, fault)
	}

	f := k.mgr.Current().TrapFrame()
	f.AdvancePC()
	id, args := f.Syscall()
	f.Release()

	ret := k.disp.Dispatch(id, args)

	// The process may have been switched out and back in; reopen.
	f = k.mgr.Current().TrapFrame()
	f.SetReturn(ret)
	f.Release()
}

// kill terminates the current process for a fault. It does not return.
func (k *Kernel) kill(cause trap.Cause, addr uint64, err error) {
	cur := k.mgr.Current()
	k.logger.Warn("process_killed",
		"pid", cur.Slot(),
		"name", cur.Name(),
		"cause", cause.String(),
		"addr", fmt.Sprintf("%#x", addr),
		"error", err,
	)
	k.mgr.ExitCurrentAndRunNext(task.ExitCodeFault)
}
