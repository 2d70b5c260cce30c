package user

import (
	"fmt"

	"github.com/randomizedcoder/go-teachos/internal/abi"
)

// Write writes n bytes at va to fd.
func Write(s Sys, fd uint64, va uint64, n int) int64 {
	return s.Ecall(abi.SysWrite, fd, va, uint64(n))
}

// Print copies str onto the user stack and writes it to stdout.
func Print(s Sys, str string) int64 {
	if len(str) == 0 {
		return 0
	}
	va, pop := stackAlloc(s, len(str))
	defer pop()
	s.Store(va, []byte(str))
	return Write(s, abi.Stdout, va, len(str))
}

// Println is Print with a trailing newline.
func Println(s Sys, str string) int64 {
	return Print(s, str+"\n")
}

// Printf formats and prints.
func Printf(s Sys, format string, args ...any) int64 {
	return Print(s, fmt.Sprintf(format, args...))
}

// Exit terminates the process. It does not return.
func Exit(s Sys, code int32) {
	s.Ecall(abi.SysExit, uint64(int64(code)), 0, 0)
	panic("user: exit returned")
}

func Yield(s Sys) int64 {
	return s.Ecall(abi.SysYield, 0, 0, 0)
}

// GetTimeAt asks the kernel to write a TimeVal at va.
func GetTimeAt(s Sys, va uint64) int64 {
	return s.Ecall(abi.SysGetTime, va, 0, 0)
}

// GetTime reads the clock through a TimeVal on the user stack.
func GetTime(s Sys) (abi.TimeVal, int64) {
	va, pop := stackAlloc(s, abi.TimeValSize)
	defer pop()
	ret := GetTimeAt(s, va)
	if ret != 0 {
		return abi.TimeVal{}, ret
	}
	return abi.UnmarshalTimeVal(s.Load(va, abi.TimeValSize)), 0
}

// GetTimeMs returns the clock in milliseconds, or -1.
func GetTimeMs(s Sys) int64 {
	tv, ret := GetTime(s)
	if ret != 0 {
		return ret
	}
	return int64(tv.Sec*1000 + tv.Usec/1000)
}

// SleepMs yields until at least ms milliseconds have passed.
func SleepMs(s Sys, ms int64) {
	deadline := GetTimeMs(s) + ms
	for GetTimeMs(s) < deadline {
		Yield(s)
	}
}

func SetPriority(s Sys, prio int64) int64 {
	return s.Ecall(abi.SysSetPriority, uint64(prio), 0, 0)
}

func Mmap(s Sys, start, length uint64, port abi.MapPort) int64 {
	return s.Ecall(abi.SysMmap, start, length, uint64(port))
}

func Munmap(s Sys, start, length uint64) int64 {
	return s.Ecall(abi.SysMunmap, start, length, 0)
}

// TaskInfoAt asks the kernel to write a TaskInfo at va.
func TaskInfoAt(s Sys, va uint64) int64 {
	return s.Ecall(abi.SysTaskInfo, va, 0, 0)
}

// TaskInfo reads the calling process's info through the user stack.
func TaskInfo(s Sys) (abi.TaskInfo, int64) {
	va, pop := stackAlloc(s, abi.TaskInfoSize)
	defer pop()
	ret := TaskInfoAt(s, va)
	if ret != 0 {
		return abi.TaskInfo{}, ret
	}
	return abi.UnmarshalTaskInfo(s.Load(va, abi.TaskInfoSize)), 0
}
