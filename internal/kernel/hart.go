package kernel

import (
	"fmt"

	"github.com/randomizedcoder/go-teachos/internal/abi"
	"github.com/randomizedcoder/go-teachos/internal/mm"
	"github.com/randomizedcoder/go-teachos/internal/task"
	"github.com/randomizedcoder/go-teachos/internal/trap"
)

// hart runs one process's user code. It is the user.Sys the program sees.
type hart struct {
	k   *Kernel
	tcb *task.ControlBlock
	sp  uint64
	// inKernel is set between trap entry and trap return.
	inKernel bool
}

// launch is the body of a process goroutine.
func (k *Kernel) launch(tcb *task.ControlBlock) {
	f := tcb.TrapFrame()
	sp := f.Reg(trap.RegSP)
	f.Release()

	h := &hart{k: k, tcb: tcb, sp: sp}
	defer h.recover()

	code := tcb.Program()(h)
	h.Ecall(abi.SysExit, uint64(int64(code)), 0, 0)
}

// recover turns a panic in user mode into a kill and a panic in kernel
// mode into a halt.
func (h *hart) recover() {
	r := recover()
	if r == nil {
		return
	}
	if h.inKernel {
		h.k.halt(h.tcb, r)
	}
	h.trap(trap.CauseIllegalInstruction, 0, fmt.Errorf("user panic: %v", r))
}

// trap enters the kernel with the given cause.
func (h *hart) trap(cause trap.Cause, addr uint64, fault error) {
	h.inKernel = true
	h.k.trapHandler(cause, addr, fault)
}

// Ecall saves the syscall registers into the trap frame, traps, and
// reloads a0 and sp on return.
func (h *hart) Ecall(id abi.SyscallID, a0, a1, a2 uint64) int64 {
	f := h.tcb.TrapFrame()
	f.SetSyscall(uint64(id), [3]uint64{a0, a1, a2})
	f.SetReg(trap.RegSP, h.sp)
	f.Release()

	h.trap(trap.CauseUserEnvCall, 0, nil)

	f = h.tcb.TrapFrame()
	h.sp = f.Reg(trap.RegSP)
	ret := f.Return()
	f.Release()
	h.inKernel = false
	return ret
}

func (h *hart) Load(va uint64, n int) []byte {
	buf, err := h.k.phys.TranslateUserBuffer(h.tcb.Token(), va, n, mm.AccessRead)
	if err != nil {
		h.trap(trap.CauseLoadPageFault, va, err)
	}
	return buf.Bytes()
}

func (h *hart) Store(va uint64, data []byte) {
	buf, err := h.k.phys.TranslateUserBuffer(h.tcb.Token(), va, len(data), mm.AccessWrite)
	if err != nil {
		h.trap(trap.CauseStorePageFault, va, err)
	}
	buf.Write(data)
}

func (h *hart) SP() uint64      { return h.sp }
func (h *hart) SetSP(sp uint64) { h.sp = sp }
