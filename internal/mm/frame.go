package mm

import (
	"fmt"
	"sync"
)

// PhysMemory is simulated RAM plus its frame allocator.
//
// Frames are handed out from a never-used watermark first and from a
// recycle stack after that. Every allocated frame is zeroed.
type PhysMemory struct {
	mem  []byte
	base PhysPageNum
	end  PhysPageNum

	mu       sync.Mutex
	current  PhysPageNum
	recycled []PhysPageNum
	free     map[PhysPageNum]struct{}
}

// NewPhysMemory creates RAM with the given number of frames.
func NewPhysMemory(frames int) *PhysMemory {
	if frames <= 0 {
		panic(fmt.Sprintf("mm: invalid frame count %d", frames))
	}
	base := PhysPageNum(PhysBase >> PageSizeBits)
	return &PhysMemory{
		mem:     make([]byte, frames*PageSize),
		base:    base,
		end:     base + PhysPageNum(frames),
		current: base,
		free:    make(map[PhysPageNum]struct{}),
	}
}

// Alloc returns a zeroed frame.
func (m *PhysMemory) Alloc() (PhysPageNum, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ppn PhysPageNum
	if n := len(m.recycled); n > 0 {
		ppn = m.recycled[n-1]
		m.recycled = m.recycled[:n-1]
		delete(m.free, ppn)
	} else if m.current < m.end {
		ppn = m.current
		m.current++
	} else {
		return 0, ErrOutOfMemory
	}

	clear(m.page(ppn))
	return ppn, nil
}

// Free returns a frame to the allocator. Freeing a frame that was never
// allocated, or freeing it twice, panics.
func (m *PhysMemory) Free(ppn PhysPageNum) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ppn < m.base || ppn >= m.current {
		panic(fmt.Sprintf("mm: frame %#x was never allocated", uint64(ppn)))
	}
	if _, ok := m.free[ppn]; ok {
		panic(fmt.Sprintf("mm: frame %#x freed twice", uint64(ppn)))
	}
	m.free[ppn] = struct{}{}
	m.recycled = append(m.recycled, ppn)
}

// Page returns the bytes of a frame. The slice aliases RAM.
func (m *PhysMemory) Page(ppn PhysPageNum) []byte {
	if ppn < m.base || ppn >= m.end {
		panic(fmt.Sprintf("mm: frame %#x outside physical memory", uint64(ppn)))
	}
	return m.page(ppn)
}

func (m *PhysMemory) page(ppn PhysPageNum) []byte {
	off := int(ppn-m.base) * PageSize
	return m.mem[off : off+PageSize : off+PageSize]
}

// TotalFrames returns the size of RAM in frames.
func (m *PhysMemory) TotalFrames() int {
	return int(m.end - m.base)
}

// FreeFrames returns how many frames can still be allocated.
func (m *PhysMemory) FreeFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int(m.end-m.current) + len(m.recycled)
}
