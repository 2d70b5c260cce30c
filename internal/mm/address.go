// Package mm simulates the memory subsystem the kernel core delegates to:
// physical frames, SV39 page tables, per-process memory sets, and the
// translation of user pointers into kernel-accessible byte ranges.
package mm

// Page geometry.
const (
	PageSizeBits = 12
	PageSize     = 1 << PageSizeBits

	// VABits is the width of an SV39 virtual address.
	VABits = 39
	// PPNBits is the width of a physical page number in a PTE.
	PPNBits = 44
)

// Virtual layout shared by every address space.
const (
	// MaxVA is one past the highest virtual address.
	MaxVA = uint64(1) << VABits

	// Trampoline is the top page of every address space.
	Trampoline = MaxVA - PageSize

	// TrapContextBase is the page holding the trap frame in user spaces.
	TrapContextBase = Trampoline - PageSize

	// UserSpaceEnd bounds the region user programs may map into.
	UserSpaceEnd = uint64(1) << (VABits - 1)

	UserStackSize   = 2 * PageSize
	KernelStackSize = 2 * PageSize
)

// PhysBase is where simulated RAM starts.
const PhysBase = 0x8000_0000

// VirtAddr is a virtual address.
type VirtAddr uint64

// PhysAddr is a physical address.
type PhysAddr uint64

// VirtPageNum is a virtual page number.
type VirtPageNum uint64

// PhysPageNum is a physical page number.
type PhysPageNum uint64

// Floor returns the page containing va.
func (va VirtAddr) Floor() VirtPageNum {
	return VirtPageNum(uint64(va) >> PageSizeBits)
}

// Ceil returns the first page at or after va.
func (va VirtAddr) Ceil() VirtPageNum {
	return VirtPageNum((uint64(va) + PageSize - 1) >> PageSizeBits)
}

// PageOffset returns the offset of va within its page.
func (va VirtAddr) PageOffset() uint64 {
	return uint64(va) & (PageSize - 1)
}

// Aligned reports whether va is page aligned.
func (va VirtAddr) Aligned() bool {
	return va.PageOffset() == 0
}

// Addr returns the first address of the page.
func (vpn VirtPageNum) Addr() VirtAddr {
	return VirtAddr(uint64(vpn) << PageSizeBits)
}

// Indexes splits vpn into its three SV39 page-table indexes, root first.
func (vpn VirtPageNum) Indexes() [3]uint64 {
	v := uint64(vpn)
	var idx [3]uint64
	for i := 2; i >= 0; i-- {
		idx[i] = v & 0x1ff
		v >>= 9
	}
	return idx
}

// Addr returns the first address of the frame.
func (ppn PhysPageNum) Addr() PhysAddr {
	return PhysAddr(uint64(ppn) << PageSizeBits)
}

// VPNRange is a half-open range of virtual pages.
type VPNRange struct {
	Start VirtPageNum
	End   VirtPageNum
}

// Len returns the number of pages in r.
func (r VPNRange) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return int(r.End - r.Start)
}

// Contains reports whether vpn is inside r.
func (r VPNRange) Contains(vpn VirtPageNum) bool {
	return vpn >= r.Start && vpn < r.End
}

// Overlaps reports whether r and o share a page.
func (r VPNRange) Overlaps(o VPNRange) bool {
	return r.Start < o.End && o.Start < r.End
}

// KernelStackPosition returns the kernel stack of a task slot in kernel
// space. Slots are separated by one unmapped guard page.
func KernelStackPosition(slot int) (bottom, top VirtAddr) {
	top = VirtAddr(Trampoline - uint64(slot)*(KernelStackSize+PageSize))
	bottom = top - KernelStackSize
	return bottom, top
}
