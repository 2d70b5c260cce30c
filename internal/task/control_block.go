package task

import (
	"fmt"

	"github.com/randomizedcoder/go-teachos/internal/abi"
	"github.com/randomizedcoder/go-teachos/internal/loader"
	"github.com/randomizedcoder/go-teachos/internal/mm"
	"github.com/randomizedcoder/go-teachos/internal/timer"
	"github.com/randomizedcoder/go-teachos/internal/trap"
	"github.com/randomizedcoder/go-teachos/internal/user"
)

// Env is the kernel state a descriptor is built against.
type Env struct {
	Phys *mm.PhysMemory
	// KernelSpace receives the per-slot kernel stack.
	KernelSpace *mm.MemorySet
	Clock       timer.Clock
	// TrapHandler is the kernel address trap entry jumps to.
	TrapHandler uint64
}

// ControlBlock is the kernel's record of one process.
type ControlBlock struct {
	slot    int
	name    string
	program user.Program

	status  Status
	context *Context

	memorySet   *mm.MemorySet
	kernelSpace *mm.MemorySet
	trapCxPPN   mm.PhysPageNum
	phys        *mm.PhysMemory
	baseSize    uint64

	syscallTimes [abi.MaxSyscallNum]uint32
	startTime    uint64
	exitCode     int32
}

// New builds the descriptor for img in slot: its address space, kernel
// stack and initial trap frame. The returned descriptor is Ready.
//
// Creation only fails on resource exhaustion: the error wraps
// mm.ErrOutOfMemory when physical frames run out while building the address
// space or the kernel stack, and every frame taken so far is returned.
// Images from a loader.Registry are validated on registration; an
// unregistered image that fails loader.Validate is rejected with
// loader.ErrInvalidImage.
func New(env Env, img *loader.Image, slot int) (*ControlBlock, error) {
	layout, err := loader.Build(env.Phys, img)
	if err != nil {
		return nil, err
	}
	ms := layout.MemorySet

	tc, ok := ms.Translate(mm.VirtAddr(mm.TrapContextBase).Floor())
	if !ok {
		ms.Release()
		return nil, fmt.Errorf("task %s: trap context not mapped", img.Name)
	}

	kbottom, ktop := mm.KernelStackPosition(slot)
	if err := env.KernelSpace.InsertFramedArea(kbottom, ktop, mm.PermR|mm.PermW); err != nil {
		ms.Release()
		return nil, fmt.Errorf("task %s: kernel stack: %w", img.Name, err)
	}

	tcb := &ControlBlock{
		slot:        slot,
		name:        img.Name,
		program:     img.Main,
		status:      StatusUnInit,
		context:     newContext(),
		memorySet:   ms,
		kernelSpace: env.KernelSpace,
		trapCxPPN:   tc.PPN(),
		phys:        env.Phys,
		baseSize:    layout.BaseSize,
		startTime:   env.Clock.NowMicros(),
	}

	f := tcb.TrapFrame()
	f.Store(trap.AppInitContext(layout.Entry, layout.UserSP, env.KernelSpace.Token(), uint64(ktop), env.TrapHandler))
	f.Release()

	if err := tcb.setStatus(StatusReady); err != nil {
		panic(err)
	}
	return tcb, nil
}

func (t *ControlBlock) Slot() int { return t.slot }
func (t *ControlBlock) Name() string { return t.name }
func (t *ControlBlock) Status() Status { return t.status }
func (t *ControlBlock) StartTime() uint64 { return t.startTime }
func (t *ControlBlock) BaseSize() uint64 { return t.baseSize }
func (t *ControlBlock) ExitCode() int32 { return t.exitCode }

// Program returns the user code the process runs.
func (t *ControlBlock) Program() user.Program { return t.program }

// TrapFrame opens the process's trap frame. The caller must Release it
// before the process gives up the CPU.
func (t *ControlBlock) TrapFrame() *trap.Frame {
	if t.memorySet == nil {
		panic(fmt.Sprintf("task %s: trap frame of released process", t.name))
	}
	return trap.Open(t.phys.Page(t.trapCxPPN))
}

// Token returns the address-space token user pointers resolve against.
func (t *ControlBlock) Token() uint64 {
	if t.memorySet == nil {
		panic(fmt.Sprintf("task %s: token of released process", t.name))
	}
	return t.memorySet.Token()
}

// RecordSyscall counts one call of id. Ids outside the table are ignored.
func (t *ControlBlock) RecordSyscall(id abi.SyscallID) {
	if !id.Valid() {
		return
	}
	t.syscallTimes[id]++
}

// SyscallCount returns how many times id has been recorded.
func (t *ControlBlock) SyscallCount(id abi.SyscallID) uint32 {
	if !id.Valid() {
		return 0
	}
	return t.syscallTimes[id]
}

// Mmap maps anonymous memory into the process.
func (t *ControlBlock) Mmap(start, length uint64, port abi.MapPort) error {
	return t.memorySet.Mmap(start, length, port)
}

// Munmap removes a mapped range from the process.
func (t *ControlBlock) Munmap(start, length uint64) error {
	return t.memorySet.Munmap(start, length)
}

// MappedPages returns the number of pages in the address space.
func (t *ControlBlock) MappedPages() int {
	if t.memorySet == nil {
		return 0
	}
	return t.memorySet.MappedPages()
}

// Snapshot is a copy of the descriptor's accounting.
type Snapshot struct {
	Status       Status
	StartTime    uint64
	SyscallTimes [abi.MaxSyscallNum]uint32
}

// Snapshot returns the current accounting.
func (t *ControlBlock) Snapshot() Snapshot {
	return Snapshot{
		Status:       t.status,
		StartTime:    t.startTime,
		SyscallTimes: t.syscallTimes,
	}
}

// TaskInfo projects the snapshot at clock reading nowMicros. Elapsed time
// is truncated milliseconds and never negative.
func (s Snapshot) TaskInfo(nowMicros uint64) abi.TaskInfo {
	var elapsed uint64
	if nowMicros > s.StartTime {
		elapsed = (nowMicros - s.StartTime) / 1000
	}
	return abi.TaskInfo{
		Status:       s.Status.ABI(),
		SyscallTimes: s.SyscallTimes,
		Time:         elapsed,
	}
}

func (t *ControlBlock) setStatus(to Status) error {
	if err := checkTransition(t.status, to); err != nil {
		return fmt.Errorf("task %s: %w", t.name, err)
	}
	t.status = to
	return nil
}

// release returns the address space and kernel stack to the allocator.
func (t *ControlBlock) release() {
	if t.memorySet == nil {
		return
	}
	t.memorySet.Release()
	t.memorySet = nil
	kbottom, _ := mm.KernelStackPosition(t.slot)
	if err := t.kernelSpace.RemoveAreaWithStart(kbottom.Floor()); err != nil {
		panic(fmt.Sprintf("task %s: %v", t.name, err))
	}
}
