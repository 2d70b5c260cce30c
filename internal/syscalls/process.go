package syscalls

import (
	"fmt"

	"github.com/randomizedcoder/go-teachos/internal/abi"
	"github.com/randomizedcoder/go-teachos/internal/task"
)

func (d *Dispatcher) sysExit(cur *task.ControlBlock, code int32) {
	d.logger.Info("process_exit",
		"pid", cur.Slot(),
		"name", cur.Name(),
		"exit_code", code,
	)
	d.sched.ExitCurrentAndRunNext(code)
	panic(fmt.Errorf("%w: pid %d", ErrExitReturned, cur.Slot()))
}

func (d *Dispatcher) sysYield() int64 {
	d.sched.SuspendCurrentAndRunNext()
	return 0
}

func (d *Dispatcher) sysGetTime(cur *task.ControlBlock, ptr uint64) int64 {
	tv := abi.TimeValFromMicros(d.clock.NowMicros())
	if err := d.writeOut(cur, ptr, tv.Bytes()); err != nil {
		return d.badPointer(cur, "get_time", ptr, err)
	}
	return 0
}

// sysSetPriority fails for every value: priority scheduling does not exist.
func (d *Dispatcher) sysSetPriority(int64) int64 {
	return -1
}

func (d *Dispatcher) sysMmap(cur *task.ControlBlock, start, length uint64, port abi.MapPort) int64 {
	if err := cur.Mmap(start, length, port); err != nil {
		d.logger.Debug("mmap_failed",
			"pid", cur.Slot(),
			"start", fmt.Sprintf("%#x", start),
			"len", length,
			"port", uint64(port),
			"error", err,
		)
		return -1
	}
	return 0
}

func (d *Dispatcher) sysMunmap(cur *task.ControlBlock, start, length uint64) int64 {
	if err := cur.Munmap(start, length); err != nil {
		d.logger.Debug("munmap_failed",
			"pid", cur.Slot(),
			"start", fmt.Sprintf("%#x", start),
			"len", length,
			"error", err,
		)
		return -1
	}
	return 0
}

func (d *Dispatcher) sysTaskInfo(cur *task.ControlBlock, ptr uint64) int64 {
	info := cur.Snapshot().TaskInfo(d.clock.NowMicros())
	if err := d.writeOut(cur, ptr, info.Bytes()); err != nil {
		return d.badPointer(cur, "task_info", ptr, err)
	}
	return 0
}
