// Package syscalls implements the kernel side of every syscall: decoding,
// per-process accounting, and the operations themselves.
package syscalls

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-teachos/internal/abi"
	"github.com/randomizedcoder/go-teachos/internal/mm"
	"github.com/randomizedcoder/go-teachos/internal/task"
	"github.com/randomizedcoder/go-teachos/internal/timer"
)

// ErrExitReturned is the panic value raised when exit hands control back
// to its caller.
var ErrExitReturned = errors.New("exit returned to the syscall layer")

// Scheduler supplies the current process and the two control transfers
// syscalls may request.
type Scheduler interface {
	Current() *task.ControlBlock
	SuspendCurrentAndRunNext()
	ExitCurrentAndRunNext(code int32)
}

// Translator resolves user pointers into kernel byte ranges.
type Translator interface {
	TranslateUserBuffer(token, ptr uint64, length int, access mm.Access) (mm.UserBuffer, error)
}

// Console receives what processes write to stdout. p aliases user memory
// and is only valid for the duration of the call.
type Console interface {
	Write(pid int, name string, p []byte)
}

// Event describes one completed syscall.
type Event struct {
	PID    int
	Name   string
	ID     abi.SyscallID
	Args   [3]uint64
	Result int64
	Start  time.Time
	End    time.Time
}

// Observer is told about every syscall once its result is known.
type Observer interface {
	ObserveSyscall(Event)
}

// Config holds configuration for creating a new Dispatcher.
type Config struct {
	Logger    *slog.Logger
	Scheduler Scheduler
	Memory    Translator
	Clock     timer.Clock
	Console   Console
	Observers []Observer
}

// Dispatcher routes a decoded syscall to its implementation. It holds no
// process state of its own.
type Dispatcher struct {
	logger    *slog.Logger
	sched     Scheduler
	mem       Translator
	clock     timer.Clock
	console   Console
	observers []Observer
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:    logger,
		sched:     cfg.Scheduler,
		mem:       cfg.Memory,
		clock:     cfg.Clock,
		console:   cfg.Console,
		observers: cfg.Observers,
	}
}

// Dispatch runs syscall id for the current process and returns the value
// to place in a0. The call is counted before it takes effect.
func (d *Dispatcher) Dispatch(id uint64, args [3]uint64) int64 {
	cur := d.sched.Current()
	if cur == nil {
		panic("syscalls: dispatch with no current process")
	}
	sid := abi.SyscallID(id)
	cur.RecordSyscall(sid)
	start := time.Now()

	var ret int64
	switch sid {
	case abi.SysWrite:
		ret = d.sysWrite(cur, args[0], args[1], args[2])
	case abi.SysExit:
		d.observe(cur, sid, args, 0, start)
		d.sysExit(cur, int32(args[0]))
	case abi.SysYield:
		ret = d.sysYield()
	case abi.SysGetTime:
		ret = d.sysGetTime(cur, args[0])
	case abi.SysSetPriority:
		ret = d.sysSetPriority(int64(args[0]))
	case abi.SysMmap:
		ret = d.sysMmap(cur, args[0], args[1], abi.MapPort(args[2]))
	case abi.SysMunmap:
		ret = d.sysMunmap(cur, args[0], args[1])
	case abi.SysTaskInfo:
		ret = d.sysTaskInfo(cur, args[0])
	default:
		d.logger.Warn("unsupported_syscall",
			"pid", cur.Slot(),
			"name", cur.Name(),
			"syscall_id", id,
		)
		ret = -1
	}

	d.observe(cur, sid, args, ret, start)
	return ret
}

func (d *Dispatcher) observe(cur *task.ControlBlock, id abi.SyscallID, args [3]uint64, ret int64, start time.Time) {
	if len(d.observers) == 0 {
		return
	}
	ev := Event{
		PID:    cur.Slot(),
		Name:   cur.Name(),
		ID:     id,
		Args:   args,
		Result: ret,
		Start:  start,
		End:    time.Now(),
	}
	for _, o := range d.observers {
		o.ObserveSyscall(ev)
	}
}

// writeOut copies src into user memory at ptr.
func (d *Dispatcher) writeOut(cur *task.ControlBlock, ptr uint64, src []byte) error {
	buf, err := d.mem.TranslateUserBuffer(cur.Token(), ptr, len(src), mm.AccessWrite)
	if err != nil {
		return err
	}
	if n := buf.Write(src); n != len(src) {
		panic(fmt.Sprintf("syscalls: translated buffer holds %d of %d bytes", n, len(src)))
	}
	return nil
}

func (d *Dispatcher) badPointer(cur *task.ControlBlock, op string, ptr uint64, err error) int64 {
	d.logger.Debug("bad_user_pointer",
		"pid", cur.Slot(),
		"syscall", op,
		"ptr", fmt.Sprintf("%#x", ptr),
		"error", err,
	)
	return -1
}
