// Package user is the library user programs link against: raw syscall
// entry, MMU-checked memory access, and thin typed wrappers.
package user

import "github.com/randomizedcoder/go-teachos/internal/abi"

// Sys is the hart as seen from user mode.
//
// Load and Store go through the process's page table. A fault does not
// return: the process is killed.
type Sys interface {
	// Ecall traps into the kernel with a7=id and a0..a2 set, and returns a0.
	Ecall(id abi.SyscallID, a0, a1, a2 uint64) int64
	Load(va uint64, n int) []byte
	Store(va uint64, data []byte)
	SP() uint64
	SetSP(sp uint64)
}

// Program is the body of a user application. Its return value becomes the
// exit code.
type Program func(Sys) int32

// stackAlloc reserves n bytes on the user stack, 16-byte aligned, and
// returns the address and a function that pops the reservation.
func stackAlloc(s Sys, n int) (uint64, func()) {
	old := s.SP()
	sp := (old - uint64(n)) &^ 15
	s.SetSP(sp)
	return sp, func() { s.SetSP(old) }
}
