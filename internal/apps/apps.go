// Package apps contains the built-in user programs. Each exercises one
// syscall family and exits with 0 when every check passes.
package apps

import (
	"github.com/randomizedcoder/go-teachos/internal/abi"
	"github.com/randomizedcoder/go-teachos/internal/loader"
	"github.com/randomizedcoder/go-teachos/internal/user"
)

// Exit code for a failed check.
const checkFailed = 1

// DefaultSleepMs is how long the sleep app waits unless told otherwise.
const DefaultSleepMs int64 = 50

// mmapBase is where the memory apps map.
const mmapBase = 0x1000_0000

const pageSize = 0x1000

// Registry returns a registry holding every built-in app. sleepMs sets how
// long the sleep app waits; values below zero fall back to DefaultSleepMs.
func Registry(sleepMs int64) *loader.Registry {
	if sleepMs < 0 {
		sleepMs = DefaultSleepMs
	}
	r := loader.NewRegistry()
	for name, prog := range programs(sleepMs) {
		r.MustRegister(loader.NewImage(name, prog))
	}
	return r
}

func programs(sleepMs int64) map[string]user.Program {
	return map[string]user.Program{
		"hello":    hello,
		"yield":    yield,
		"sleep":    sleep(sleepMs),
		"gettime":  getTime,
		"setprio":  setPriority,
		"mmap":     mmap,
		"munmap":   munmap,
		"mmapbad":  mmapBad,
		"taskinfo": taskInfo,
		"fault":    fault,
	}
}

// Default is the app list booted when none is configured.
var Default = []string{"hello", "yield", "gettime", "setprio", "mmap", "munmap", "mmapbad", "taskinfo"}

func check(s user.Sys, ok bool, what string) bool {
	if !ok {
		user.Printf(s, "FAIL: %s\n", what)
	}
	return ok
}

func hello(s user.Sys) int32 {
	user.Println(s, "Hello, world!")
	return 0
}

func yield(s user.Sys) int32 {
	for i := 0; i < 5; i++ {
		user.Printf(s, "yield round %d\n", i)
		if !check(s, user.Yield(s) == 0, "yield returns 0") {
			return checkFailed
		}
	}
	return 0
}

func sleep(ms int64) user.Program {
	return func(s user.Sys) int32 {
		start := user.GetTimeMs(s)
		user.SleepMs(s, ms)
		elapsed := user.GetTimeMs(s) - start
		if !check(s, elapsed >= ms, "slept long enough") {
			return checkFailed
		}
		user.Printf(s, "slept %d ms\n", elapsed)
		return 0
	}
}

func getTime(s user.Sys) int32 {
	prev, ret := user.GetTime(s)
	if !check(s, ret == 0, "get_time succeeds") {
		return checkFailed
	}
	for i := 0; i < 10; i++ {
		now, _ := user.GetTime(s)
		if !check(s, now.Micros() >= prev.Micros(), "clock never goes backward") {
			return checkFailed
		}
		if !check(s, now.Usec < 1_000_000, "microseconds below one second") {
			return checkFailed
		}
		prev = now
	}
	if !check(s, user.GetTimeAt(s, 0) == -1, "get_time rejects a null pointer") {
		return checkFailed
	}
	return 0
}

func setPriority(s user.Sys) int32 {
	for _, p := range []int64{0, 1, 10, 1 << 40, -5} {
		if !check(s, user.SetPriority(s, p) == -1, "set_priority fails") {
			return checkFailed
		}
	}
	return 0
}

func mmap(s user.Sys) int32 {
	rw := abi.PortRead | abi.PortWrite
	if !check(s, user.Mmap(s, mmapBase, 2*pageSize, rw) == 0, "mmap succeeds") {
		return checkFailed
	}
	msg := []byte("across the page boundary")
	va := uint64(mmapBase + pageSize - 8)
	s.Store(va, msg)
	if !check(s, string(s.Load(va, len(msg))) == string(msg), "mapped memory holds data") {
		return checkFailed
	}
	if !check(s, user.Mmap(s, mmapBase, 2*pageSize, rw) == -1, "second mmap overlaps") {
		return checkFailed
	}
	return 0
}

func munmap(s user.Sys) int32 {
	rw := abi.PortRead | abi.PortWrite
	if !check(s, user.Mmap(s, mmapBase, 0x2000, rw) == 0, "mmap succeeds") {
		return checkFailed
	}
	if !check(s, user.Munmap(s, mmapBase, 0x2000) == 0, "munmap succeeds") {
		return checkFailed
	}
	if !check(s, user.Munmap(s, mmapBase, 0x2000) == -1, "munmap of unmapped range fails") {
		return checkFailed
	}
	if !check(s, user.Mmap(s, mmapBase, 0x2000, rw) == 0, "range is reusable") {
		return checkFailed
	}
	if !check(s, user.Munmap(s, mmapBase+pageSize, pageSize) == 0, "partial munmap") {
		return checkFailed
	}
	if !check(s, user.Munmap(s, mmapBase, 0x2000) == -1, "munmap over a hole fails") {
		return checkFailed
	}
	return 0
}

func mmapBad(s user.Sys) int32 {
	cases := []struct {
		what          string
		start, length uint64
		port          abi.MapPort
	}{
		{"misaligned start", mmapBase + 1, pageSize, abi.PortRead},
		{"zero length", mmapBase, 0, abi.PortRead},
		{"no permission", mmapBase, pageSize, 0},
		{"stray permission bits", mmapBase, pageSize, 0x8 | abi.PortRead},
		{"kernel half", 1 << 38, pageSize, abi.PortRead},
	}
	for _, c := range cases {
		if !check(s, user.Mmap(s, c.start, c.length, c.port) == -1, c.what) {
			return checkFailed
		}
	}
	if !check(s, user.Munmap(s, mmapBase+1, pageSize) == -1, "misaligned munmap") {
		return checkFailed
	}
	return 0
}

func taskInfo(s user.Sys) int32 {
	for i := 0; i < 3; i++ {
		user.Yield(s)
	}
	user.GetTime(s)

	info, ret := user.TaskInfo(s)
	switch {
	case !check(s, ret == 0, "task_info succeeds"),
		!check(s, info.Status == abi.StatusRunning, "status is running"),
		!check(s, info.SyscallTimes[abi.SysYield] == 3, "three yields counted"),
		!check(s, info.SyscallTimes[abi.SysGetTime] == 1, "one get_time counted"),
		!check(s, info.SyscallTimes[abi.SysTaskInfo] == 1, "task_info counts itself"):
		return checkFailed
	}
	user.Printf(s, "task_info: %d ms since start\n", info.Time)
	return 0
}

// fault writes to a read-only page. The kernel kills it.
func fault(s user.Sys) int32 {
	if user.Mmap(s, mmapBase, pageSize, abi.PortRead) != 0 {
		return checkFailed
	}
	user.Println(s, "writing to a read-only page")
	s.Store(mmapBase, []byte{0xff})
	user.Println(s, "FAIL: write succeeded")
	return checkFailed
}
