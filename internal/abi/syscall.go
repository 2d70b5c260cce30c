// Package abi defines the fixed contract between user programs and the kernel:
// syscall numbers and the byte layouts the kernel writes into user memory.
//
// The numeric values are shared with user space and must never change.
package abi

import "fmt"

// SyscallID identifies the operation a trap requests.
type SyscallID uint64

// Syscall numbers.
const (
	SysWrite       SyscallID = 64
	SysExit        SyscallID = 93
	SysYield       SyscallID = 124
	SysSetPriority SyscallID = 140
	SysGetTime     SyscallID = 169
	SysMunmap      SyscallID = 215
	SysMmap        SyscallID = 222
	SysTaskInfo    SyscallID = 410
)

// MaxSyscallNum bounds the per-process syscall counter table.
const MaxSyscallNum = 500

var syscallNames = map[SyscallID]string{
	SysWrite:       "write",
	SysExit:        "exit",
	SysYield:       "yield",
	SysSetPriority: "set_priority",
	SysGetTime:     "get_time",
	SysMunmap:      "munmap",
	SysMmap:        "mmap",
	SysTaskInfo:    "task_info",
}

// String returns the syscall name.
func (id SyscallID) String() string {
	if name, ok := syscallNames[id]; ok {
		return name
	}
	return fmt.Sprintf("{syscall %d}", uint64(id))
}

// Valid reports whether id indexes the counter table.
func (id SyscallID) Valid() bool {
	return id < MaxSyscallNum
}

// Known reports whether id is bound to an operation.
func (id SyscallID) Known() bool {
	_, ok := syscallNames[id]
	return ok
}

// KnownSyscalls returns every bound syscall id in ascending order.
func KnownSyscalls() []SyscallID {
	return []SyscallID{
		SysWrite,
		SysExit,
		SysYield,
		SysSetPriority,
		SysGetTime,
		SysMunmap,
		SysMmap,
		SysTaskInfo,
	}
}

// MapPort is the permission argument of mmap.
type MapPort uint64

const (
	PortRead  MapPort = 1 << 0
	PortWrite MapPort = 1 << 1
	PortExec  MapPort = 1 << 2

	// PortMask covers every defined permission bit.
	PortMask = PortRead | PortWrite | PortExec
)

// Valid reports whether p sets at least one permission and nothing outside PortMask.
func (p MapPort) Valid() bool {
	return p&^PortMask == 0 && p&PortMask != 0
}

// Stdout is the only file descriptor write accepts.
const Stdout = 1
