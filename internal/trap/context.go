// Package trap defines the saved user register state and the scoped handle
// the kernel uses to read and modify it while handling a trap.
package trap

import (
	"encoding/binary"
	"fmt"
)

// Register numbers used by the syscall convention.
const (
	RegSP = 2
	RegA0 = 10
	RegA1 = 11
	RegA2 = 12
	RegA7 = 17
)

// sstatus bits.
const (
	SstatusSPIE = uint64(1) << 5
	SstatusSPP  = uint64(1) << 8
)

// ContextSize is the encoded size of Context.
const ContextSize = 37 * 8

const (
	offSstatus     = 32 * 8
	offSepc        = offSstatus + 8
	offKernelSatp  = offSepc + 8
	offKernelSp    = offKernelSatp + 8
	offTrapHandler = offKernelSp + 8
)

// Context is the trap frame: general registers, the two CSRs a trap must
// restore, and the kernel entry state the trampoline loads.
type Context struct {
	X           [32]uint64
	Sstatus     uint64
	Sepc        uint64
	KernelSatp  uint64
	KernelSp    uint64
	TrapHandler uint64
}

// AppInitContext returns the context a new process starts from: user mode,
// pc at entry, sp at the top of its user stack.
func AppInitContext(entry, sp, kernelSatp, kernelSp, trapHandler uint64) Context {
	c := Context{
		Sstatus:     SstatusSPIE &^ SstatusSPP,
		Sepc:        entry,
		KernelSatp:  kernelSatp,
		KernelSp:    kernelSp,
		TrapHandler: trapHandler,
	}
	c.X[RegSP] = sp
	return c
}

// Encode writes c into b, which must hold ContextSize bytes.
func (c *Context) Encode(b []byte) {
	if len(b) < ContextSize {
		panic(fmt.Sprintf("trap: buffer of %d bytes too small for context", len(b)))
	}
	for i, x := range c.X {
		binary.LittleEndian.PutUint64(b[i*8:], x)
	}
	binary.LittleEndian.PutUint64(b[offSstatus:], c.Sstatus)
	binary.LittleEndian.PutUint64(b[offSepc:], c.Sepc)
	binary.LittleEndian.PutUint64(b[offKernelSatp:], c.KernelSatp)
	binary.LittleEndian.PutUint64(b[offKernelSp:], c.KernelSp)
	binary.LittleEndian.PutUint64(b[offTrapHandler:], c.TrapHandler)
}

// Decode reads a context from b.
func Decode(b []byte) Context {
	if len(b) < ContextSize {
		panic(fmt.Sprintf("trap: buffer of %d bytes too small for context", len(b)))
	}
	var c Context
	for i := range c.X {
		c.X[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	c.Sstatus = binary.LittleEndian.Uint64(b[offSstatus:])
	c.Sepc = binary.LittleEndian.Uint64(b[offSepc:])
	c.KernelSatp = binary.LittleEndian.Uint64(b[offKernelSatp:])
	c.KernelSp = binary.LittleEndian.Uint64(b[offKernelSp:])
	c.TrapHandler = binary.LittleEndian.Uint64(b[offTrapHandler:])
	return c
}

// Cause is why user execution entered the kernel.
type Cause uint64

// scause exception codes.
const (
	CauseIllegalInstruction Cause = 2
	CauseLoadFault          Cause = 5
	CauseStoreFault         Cause = 7
	CauseUserEnvCall        Cause = 8
	CauseLoadPageFault      Cause = 13
	CauseStorePageFault     Cause = 15
)

func (c Cause) String() string {
	switch c {
	case CauseIllegalInstruction:
		return "illegal_instruction"
	case CauseLoadFault:
		return "load_fault"
	case CauseStoreFault:
		return "store_fault"
	case CauseUserEnvCall:
		return "user_env_call"
	case CauseLoadPageFault:
		return "load_page_fault"
	case CauseStorePageFault:
		return "store_page_fault"
	default:
		return fmt.Sprintf("cause_%d", uint64(c))
	}
}

// IsFault reports whether the cause kills the process.
func (c Cause) IsFault() bool {
	return c != CauseUserEnvCall
}
