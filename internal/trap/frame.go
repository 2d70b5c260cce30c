package trap

import (
	"encoding/binary"
	"fmt"
)

// ecallSize is the length of the instruction that raised a syscall.
const ecallSize = 4

// Frame is exclusive access to a trap frame in memory. It is valid from
// Open until Release; using it afterward panics.
type Frame struct {
	b []byte
}

// Open starts a scope over the encoded trap frame in page.
func Open(page []byte) *Frame {
	if len(page) < ContextSize {
		panic(fmt.Sprintf("trap: page of %d bytes too small for context", len(page)))
	}
	return &Frame{b: page[:ContextSize:ContextSize]}
}

func (f *Frame) bytes() []byte {
	if f.b == nil {
		panic("trap: frame used after release")
	}
	return f.b
}

// Release ends the scope.
func (f *Frame) Release() {
	f.b = nil
}

// Released reports whether the scope has ended.
func (f *Frame) Released() bool {
	return f.b == nil
}

// Reg returns register x[i].
func (f *Frame) Reg(i int) uint64 {
	return binary.LittleEndian.Uint64(f.bytes()[i*8:])
}

// SetReg writes register x[i]. Writes to x0 are dropped.
func (f *Frame) SetReg(i int, v uint64) {
	if i == 0 {
		return
	}
	binary.LittleEndian.PutUint64(f.bytes()[i*8:], v)
}

// Syscall decodes the pending syscall: id in a7, arguments in a0..a2.
func (f *Frame) Syscall() (id uint64, args [3]uint64) {
	return f.Reg(RegA7), [3]uint64{f.Reg(RegA0), f.Reg(RegA1), f.Reg(RegA2)}
}

// SetSyscall stores a syscall request the way user code loads it before
// ecall.
func (f *Frame) SetSyscall(id uint64, args [3]uint64) {
	f.SetReg(RegA7, id)
	f.SetReg(RegA0, args[0])
	f.SetReg(RegA1, args[1])
	f.SetReg(RegA2, args[2])
}

// SetReturn writes the syscall result into a0.
func (f *Frame) SetReturn(v int64) {
	f.SetReg(RegA0, uint64(v))
}

// Return reads a0 as a signed result.
func (f *Frame) Return() int64 {
	return int64(f.Reg(RegA0))
}

func (f *Frame) Sepc() uint64 {
	return binary.LittleEndian.Uint64(f.bytes()[offSepc:])
}

func (f *Frame) SetSepc(v uint64) {
	binary.LittleEndian.PutUint64(f.bytes()[offSepc:], v)
}

// AdvancePC steps sepc past the ecall so trap return resumes after it.
func (f *Frame) AdvancePC() {
	f.SetSepc(f.Sepc() + ecallSize)
}

// Context decodes the whole frame.
func (f *Frame) Context() Context {
	return Decode(f.bytes())
}

// Store overwrites the whole frame.
func (f *Frame) Store(c Context) {
	c.Encode(f.bytes())
}
