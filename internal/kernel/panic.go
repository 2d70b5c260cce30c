package kernel

import (
	"runtime/debug"

	"github.com/randomizedcoder/go-teachos/internal/task"
)

// PanicInfo describes a kernel invariant violation.
type PanicInfo struct {
	PID   int
	Name  string
	Value any
	Stack []byte
}

// halt reports a kernel-mode panic once and re-raises it. It does not
// return.
func (k *Kernel) halt(tcb *task.ControlBlock, r any) {
	k.panicOnce.Do(func() {
		info := PanicInfo{
			PID:   tcb.Slot(),
			Name:  tcb.Name(),
			Value: r,
			Stack: debug.Stack(),
		}
		k.logger.Error("kernel_panic",
			"pid", info.PID,
			"name", info.Name,
			"panic", r,
		)
		if k.onPanic != nil {
			k.onPanic(info)
		}
	})
	panic(r)
}
