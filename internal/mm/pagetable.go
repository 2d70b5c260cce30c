package mm

import (
	"encoding/binary"
	"fmt"
)

// PTEFlags are the low eight bits of an SV39 page-table entry.
type PTEFlags uint8

const (
	PTEValid PTEFlags = 1 << iota
	PTERead
	PTEWrite
	PTEExec
	PTEUser
	PTEGlobal
	PTEAccessed
	PTEDirty
)

// PageTableEntry is one 64-bit SV39 entry: ppn<<10 | flags.
type PageTableEntry uint64

// NewPTE builds an entry.
func NewPTE(ppn PhysPageNum, flags PTEFlags) PageTableEntry {
	return PageTableEntry(uint64(ppn)<<10 | uint64(flags))
}

func (e PageTableEntry) PPN() PhysPageNum {
	return PhysPageNum((uint64(e) >> 10) & (1<<PPNBits - 1))
}

func (e PageTableEntry) Flags() PTEFlags { return PTEFlags(e) }
func (e PageTableEntry) Valid() bool     { return e.Flags()&PTEValid != 0 }
func (e PageTableEntry) Readable() bool  { return e.Flags()&PTERead != 0 }
func (e PageTableEntry) Writable() bool  { return e.Flags()&PTEWrite != 0 }
func (e PageTableEntry) Executable() bool {
	return e.Flags()&PTEExec != 0
}
func (e PageTableEntry) User() bool { return e.Flags()&PTEUser != 0 }

// satpModeSV39 is the MODE field of an SV39 satp value.
const satpModeSV39 = uint64(8) << 60

// PageTable is a three-level SV39 table stored in simulated frames.
type PageTable struct {
	phys *PhysMemory
	root PhysPageNum
	// frames owns the table's node frames. Nil for a borrowed walker.
	frames []PhysPageNum
	// links[i] is the entry pointing at frames[i]; zero for the root.
	links []nodeLink
}

// nodeLink locates the parent entry of a node frame.
type nodeLink struct {
	parent PhysPageNum
	idx    uint64
}

// NewPageTable allocates an empty root.
func NewPageTable(phys *PhysMemory) (*PageTable, error) {
	root, err := phys.Alloc()
	if err != nil {
		return nil, err
	}
	return &PageTable{phys: phys, root: root, frames: []PhysPageNum{root}, links: []nodeLink{{}}}, nil
}

// PageTableFromToken returns a non-owning walker over the table a satp
// token names. It must not be used to map or release.
func PageTableFromToken(phys *PhysMemory, token uint64) (*PageTable, error) {
	if token&(uint64(0xf)<<60) != satpModeSV39 {
		return nil, fmt.Errorf("%w: %#x", ErrBadToken, token)
	}
	root := PhysPageNum(token & (1<<PPNBits - 1))
	if root < phys.base || root >= phys.end {
		return nil, fmt.Errorf("%w: root %#x outside memory", ErrBadToken, uint64(root))
	}
	return &PageTable{phys: phys, root: root}, nil
}

// Token returns the satp value that activates this table.
func (pt *PageTable) Token() uint64 {
	return satpModeSV39 | uint64(pt.root)
}

func (pt *PageTable) entry(node PhysPageNum, idx uint64) PageTableEntry {
	page := pt.phys.Page(node)
	return PageTableEntry(binary.LittleEndian.Uint64(page[idx*8:]))
}

func (pt *PageTable) setEntry(node PhysPageNum, idx uint64, e PageTableEntry) {
	page := pt.phys.Page(node)
	binary.LittleEndian.PutUint64(page[idx*8:], uint64(e))
}

// walk returns the leaf node and index for vpn. With create set, missing
// intermediate nodes are allocated.
func (pt *PageTable) walk(vpn VirtPageNum, create bool) (PhysPageNum, uint64, error) {
	idx := vpn.Indexes()
	node := pt.root
	for level := 0; level < 2; level++ {
		e := pt.entry(node, idx[level])
		if !e.Valid() {
			if !create {
				return 0, 0, ErrNotMapped
			}
			frame, err := pt.phys.Alloc()
			if err != nil {
				return 0, 0, err
			}
			pt.frames = append(pt.frames, frame)
			pt.links = append(pt.links, nodeLink{parent: node, idx: idx[level]})
			e = NewPTE(frame, PTEValid)
			pt.setEntry(node, idx[level], e)
		}
		node = e.PPN()
	}
	return node, idx[2], nil
}

// Map installs vpn -> ppn with flags | V.
func (pt *PageTable) Map(vpn VirtPageNum, ppn PhysPageNum, flags PTEFlags) error {
	if pt.frames == nil {
		panic("mm: map through a borrowed page table")
	}
	node, i, err := pt.walk(vpn, true)
	if err != nil {
		return err
	}
	if pt.entry(node, i).Valid() {
		return fmt.Errorf("%w: vpn %#x", ErrAlreadyMapped, uint64(vpn))
	}
	pt.setEntry(node, i, NewPTE(ppn, flags|PTEValid))
	return nil
}

// Unmap clears the leaf for vpn.
func (pt *PageTable) Unmap(vpn VirtPageNum) error {
	node, i, err := pt.walk(vpn, false)
	if err != nil || !pt.entry(node, i).Valid() {
		return fmt.Errorf("%w: vpn %#x", ErrNotMapped, uint64(vpn))
	}
	pt.setEntry(node, i, 0)
	return nil
}

// Translate returns the leaf entry for vpn if it is valid.
func (pt *PageTable) Translate(vpn VirtPageNum) (PageTableEntry, bool) {
	node, i, err := pt.walk(vpn, false)
	if err != nil {
		return 0, false
	}
	e := pt.entry(node, i)
	return e, e.Valid()
}

// TranslateVA resolves a virtual address to a physical one.
func (pt *PageTable) TranslateVA(va VirtAddr) (PhysAddr, bool) {
	e, ok := pt.Translate(va.Floor())
	if !ok {
		return 0, false
	}
	return e.PPN().Addr() + PhysAddr(va.PageOffset()), true
}

// NodeFrames returns how many frames the table itself occupies.
func (pt *PageTable) NodeFrames() int { return len(pt.frames) }

// mark returns a point rollback can return the table to.
func (pt *PageTable) mark() int { return len(pt.frames) }

// rollback frees the nodes allocated since m, newest first, and clears
// the entries that pointed at them. Every leaf below those nodes must
// already be unmapped.
func (pt *PageTable) rollback(m int) {
	for i := len(pt.frames) - 1; i >= m; i-- {
		l := pt.links[i]
		pt.setEntry(l.parent, l.idx, 0)
		pt.phys.Free(pt.frames[i])
	}
	pt.frames = pt.frames[:m]
	pt.links = pt.links[:m]
}

// Release frees every node frame the table owns.
func (pt *PageTable) Release() {
	for _, f := range pt.frames {
		pt.phys.Free(f)
	}
	pt.frames = nil
	pt.links = nil
}
