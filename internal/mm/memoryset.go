package mm

import (
	"fmt"
	"sort"

	"github.com/randomizedcoder/go-teachos/internal/abi"
)

// MapPermission is the subset of PTE flags a mapping may carry.
type MapPermission uint8

const (
	PermR MapPermission = MapPermission(PTERead)
	PermW MapPermission = MapPermission(PTEWrite)
	PermX MapPermission = MapPermission(PTEExec)
	PermU MapPermission = MapPermission(PTEUser)
)

// PermissionFromPort converts mmap port bits (R=1, W=2, X=4) into a user
// mapping permission.
func PermissionFromPort(port abi.MapPort) MapPermission {
	return MapPermission(uint8(port&abi.PortMask)<<1) | PermU
}

// MapArea is a contiguous run of framed virtual pages with one permission.
type MapArea struct {
	Range  VPNRange
	Perm   MapPermission
	frames map[VirtPageNum]PhysPageNum
}

// Pages returns how many pages the area currently backs.
func (a *MapArea) Pages() int { return len(a.frames) }

// MemorySet is an address space: a page table plus the areas mapped into it.
type MemorySet struct {
	phys  *PhysMemory
	pt    *PageTable
	areas []*MapArea
}

// NewMemorySet creates an empty address space.
func NewMemorySet(phys *PhysMemory) (*MemorySet, error) {
	pt, err := NewPageTable(phys)
	if err != nil {
		return nil, err
	}
	return &MemorySet{phys: phys, pt: pt}, nil
}

// Token returns the satp value of the address space.
func (ms *MemorySet) Token() uint64 { return ms.pt.Token() }

// Phys returns the backing physical memory.
func (ms *MemorySet) Phys() *PhysMemory { return ms.phys }

// Translate returns the leaf entry for vpn.
func (ms *MemorySet) Translate(vpn VirtPageNum) (PageTableEntry, bool) {
	return ms.pt.Translate(vpn)
}

// Areas returns the current areas ordered by start page.
func (ms *MemorySet) Areas() []*MapArea {
	out := make([]*MapArea, len(ms.areas))
	copy(out, ms.areas)
	sort.Slice(out, func(i, j int) bool { return out[i].Range.Start < out[j].Range.Start })
	return out
}

// MappedPages returns the number of leaf pages backed by frames.
func (ms *MemorySet) MappedPages() int {
	n := 0
	for _, a := range ms.areas {
		n += a.Pages()
	}
	return n
}

// InsertFramedArea maps [start, end) with fresh zeroed frames.
func (ms *MemorySet) InsertFramedArea(start, end VirtAddr, perm MapPermission) error {
	return ms.InsertArea(start, end, perm, nil)
}

// InsertArea maps [start, end) with fresh frames and copies data into the
// area starting at its first page. data may be shorter than the area.
func (ms *MemorySet) InsertArea(start, end VirtAddr, perm MapPermission, data []byte) error {
	r := VPNRange{Start: start.Floor(), End: end.Ceil()}
	if r.Len() == 0 {
		return ErrZeroLength
	}
	if len(data) > r.Len()*PageSize {
		return fmt.Errorf("mm: %d bytes do not fit in %d pages", len(data), r.Len())
	}
	for vpn := r.Start; vpn < r.End; vpn++ {
		if _, ok := ms.pt.Translate(vpn); ok {
			return fmt.Errorf("%w: vpn %#x", ErrOverlap, uint64(vpn))
		}
	}

	area, err := ms.mapRange(r, perm)
	if err != nil {
		return err
	}
	for off := 0; off < len(data); off += PageSize {
		vpn := r.Start + VirtPageNum(off/PageSize)
		copy(ms.phys.Page(area.frames[vpn]), data[off:])
	}
	return nil
}

// checkFrames fails when r needs more leaf frames than are free.
func (ms *MemorySet) checkFrames(r VPNRange) error {
	if free := ms.phys.FreeFrames(); r.Len() > free {
		return fmt.Errorf("%w: %d pages requested, %d frames free", ErrOutOfMemory, r.Len(), free)
	}
	return nil
}

// mapRange backs every page of r with a new frame. On failure every page
// it mapped and every table node it added are rolled back.
func (ms *MemorySet) mapRange(r VPNRange, perm MapPermission) (*MapArea, error) {
	if err := ms.checkFrames(r); err != nil {
		return nil, err
	}
	mark := ms.pt.mark()
	area := &MapArea{Range: r, Perm: perm, frames: make(map[VirtPageNum]PhysPageNum, r.Len())}
	for vpn := r.Start; vpn < r.End; vpn++ {
		ppn, err := ms.phys.Alloc()
		if err == nil {
			err = ms.pt.Map(vpn, ppn, PTEFlags(perm))
			if err != nil {
				ms.phys.Free(ppn)
			}
		}
		if err != nil {
			ms.unmapArea(area)
			ms.pt.rollback(mark)
			return nil, err
		}
		area.frames[vpn] = ppn
	}
	ms.areas = append(ms.areas, area)
	return area, nil
}

func (ms *MemorySet) unmapArea(area *MapArea) {
	for vpn, ppn := range area.frames {
		if err := ms.pt.Unmap(vpn); err != nil {
			panic(fmt.Sprintf("mm: area page %#x missing from page table", uint64(vpn)))
		}
		ms.phys.Free(ppn)
		delete(area.frames, vpn)
	}
}

// RemoveAreaWithStart unmaps the area beginning at vpn.
func (ms *MemorySet) RemoveAreaWithStart(vpn VirtPageNum) error {
	for i, a := range ms.areas {
		if a.Range.Start == vpn {
			ms.unmapArea(a)
			ms.areas = append(ms.areas[:i], ms.areas[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: no area starts at vpn %#x", ErrNotMapped, uint64(vpn))
}

// checkUserRange validates a page-aligned user range and returns its pages.
func checkUserRange(start, length uint64) (VPNRange, error) {
	if !VirtAddr(start).Aligned() {
		return VPNRange{}, ErrUnaligned
	}
	if length == 0 {
		return VPNRange{}, ErrZeroLength
	}
	end := start + length
	if end < start {
		return VPNRange{}, ErrRangeOverflows
	}
	if end > UserSpaceEnd {
		return VPNRange{}, ErrOutOfRange
	}
	return VPNRange{Start: VirtAddr(start).Floor(), End: VirtAddr(end).Ceil()}, nil
}

// Mmap maps [start, start+length) as anonymous user memory with the
// permissions named by port. The address space is unchanged on failure.
func (ms *MemorySet) Mmap(start, length uint64, port abi.MapPort) error {
	if !port.Valid() {
		return fmt.Errorf("%w: port %#x", ErrBadPermission, uint64(port))
	}
	r, err := checkUserRange(start, length)
	if err != nil {
		return err
	}
	if err := ms.checkFrames(r); err != nil {
		return err
	}
	for vpn := r.Start; vpn < r.End; vpn++ {
		if _, ok := ms.pt.Translate(vpn); ok {
			return fmt.Errorf("%w: vpn %#x", ErrOverlap, uint64(vpn))
		}
	}
	_, err = ms.mapRange(r, PermissionFromPort(port))
	return err
}

// Munmap removes every page of [start, start+length). All pages must be
// mapped user pages owned by an area; otherwise nothing is removed.
func (ms *MemorySet) Munmap(start, length uint64) error {
	r, err := checkUserRange(start, length)
	if err != nil {
		return err
	}

	owners := make([]*MapArea, 0, r.Len())
	for vpn := r.Start; vpn < r.End; vpn++ {
		e, ok := ms.pt.Translate(vpn)
		if !ok || !e.User() {
			return fmt.Errorf("%w: vpn %#x", ErrNotMapped, uint64(vpn))
		}
		a := ms.owner(vpn)
		if a == nil {
			return fmt.Errorf("%w: vpn %#x has no owning area", ErrNotMapped, uint64(vpn))
		}
		owners = append(owners, a)
	}

	for i, a := range owners {
		vpn := r.Start + VirtPageNum(i)
		if err := ms.pt.Unmap(vpn); err != nil {
			panic(fmt.Sprintf("mm: validated page %#x vanished", uint64(vpn)))
		}
		ms.phys.Free(a.frames[vpn])
		delete(a.frames, vpn)
	}
	ms.dropEmptyAreas()
	return nil
}

func (ms *MemorySet) owner(vpn VirtPageNum) *MapArea {
	for _, a := range ms.areas {
		if _, ok := a.frames[vpn]; ok {
			return a
		}
	}
	return nil
}

func (ms *MemorySet) dropEmptyAreas() {
	kept := ms.areas[:0]
	for _, a := range ms.areas {
		if a.Pages() > 0 {
			kept = append(kept, a)
		}
	}
	clear(ms.areas[len(kept):])
	ms.areas = kept
}

// Release frees every frame of the address space, data pages and page
// table nodes alike. The set must not be used afterward.
func (ms *MemorySet) Release() {
	for _, a := range ms.areas {
		ms.unmapArea(a)
	}
	ms.areas = nil
	ms.pt.Release()
}
