// Package loader turns program images into address spaces.
package loader

import (
	"errors"
	"fmt"

	"github.com/randomizedcoder/go-teachos/internal/mm"
	"github.com/randomizedcoder/go-teachos/internal/user"
)

// ErrInvalidImage is returned by Validate.
var ErrInvalidImage = errors.New("invalid program image")

// Default layout used by NewImage.
const (
	DefaultTextVA = 0x10000
	DefaultDataVA = DefaultTextVA + mm.PageSize
	// DefaultDataSize is the size of the writable data segment.
	DefaultDataSize = mm.PageSize
)

// Segment is one loadable region of an image.
type Segment struct {
	VA   uint64
	Data []byte
	// MemSize is the in-memory size; bytes past len(Data) are zero.
	MemSize uint64
	// Perm is some of mm.PermR, PermW, PermX. PermU is added by Build.
	Perm mm.MapPermission
}

func (s Segment) pages() mm.VPNRange {
	return mm.VPNRange{
		Start: mm.VirtAddr(s.VA).Floor(),
		End:   mm.VirtAddr(s.VA + s.MemSize).Ceil(),
	}
}

// Image is a program ready to be loaded.
type Image struct {
	Name     string
	Entry    uint64
	Segments []Segment
	Main     user.Program
}

// NewImage returns an image with a read-execute text page and a
// read-write data page at the default addresses.
func NewImage(name string, main user.Program) *Image {
	return &Image{
		Name:  name,
		Entry: DefaultTextVA,
		Segments: []Segment{
			{VA: DefaultTextVA, Data: []byte(name), MemSize: mm.PageSize, Perm: mm.PermR | mm.PermX},
			{VA: DefaultDataVA, MemSize: DefaultDataSize, Perm: mm.PermR | mm.PermW},
		},
		Main: main,
	}
}

// stackBottom returns where the user stack begins: one guard page above
// the highest segment.
func (img *Image) stackBottom() uint64 {
	var top mm.VirtPageNum
	for _, s := range img.Segments {
		top = max(top, s.pages().End)
	}
	return uint64(top.Addr()) + mm.PageSize
}

func invalid(img *Image, format string, args ...any) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidImage, img.Name, fmt.Sprintf(format, args...))
}

// Validate rejects images Build cannot load.
func Validate(img *Image) error {
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidImage)
	}
	if img.Name == "" {
		return invalid(img, "empty name")
	}
	if img.Main == nil {
		return invalid(img, "no program")
	}
	if len(img.Segments) == 0 {
		return invalid(img, "no segments")
	}

	const allowed = mm.PermR | mm.PermW | mm.PermX
	entryOK := false
	for i, s := range img.Segments {
		switch {
		case !mm.VirtAddr(s.VA).Aligned():
			return invalid(img, "segment %d at %#x not page aligned", i, s.VA)
		case s.MemSize == 0:
			return invalid(img, "segment %d is empty", i)
		case uint64(len(s.Data)) > s.MemSize:
			return invalid(img, "segment %d data exceeds its size", i)
		case s.Perm == 0 || s.Perm&^allowed != 0:
			return invalid(img, "segment %d has permission %#x", i, uint8(s.Perm))
		case s.VA+s.MemSize < s.VA || s.VA+s.MemSize > mm.UserSpaceEnd:
			return invalid(img, "segment %d outside user space", i)
		}
		for j := 0; j < i; j++ {
			if s.pages().Overlaps(img.Segments[j].pages()) {
				return invalid(img, "segments %d and %d overlap", j, i)
			}
		}
		if s.Perm&mm.PermX != 0 && img.Entry >= s.VA && img.Entry < s.VA+s.MemSize {
			entryOK = true
		}
	}
	if !entryOK {
		return invalid(img, "entry %#x not in an executable segment", img.Entry)
	}
	if img.stackBottom()+mm.UserStackSize > mm.UserSpaceEnd {
		return invalid(img, "no room for the user stack")
	}
	return nil
}

// Layout is what Build produced.
type Layout struct {
	MemorySet *mm.MemorySet
	// UserSP is the initial stack pointer: the top of the user stack.
	UserSP uint64
	Entry  uint64
	// BaseSize is the extent of the image plus its user stack.
	BaseSize uint64
}

// Build creates the address space of a validated image: every segment,
// a guard page, the user stack, and a kernel-only trap-context page.
func Build(phys *mm.PhysMemory, img *Image) (Layout, error) {
	if err := Validate(img); err != nil {
		return Layout{}, err
	}
	ms, err := mm.NewMemorySet(phys)
	if err != nil {
		return Layout{}, err
	}

	for i, s := range img.Segments {
		end := mm.VirtAddr(s.VA + s.MemSize)
		if err := ms.InsertArea(mm.VirtAddr(s.VA), end, s.Perm|mm.PermU, s.Data); err != nil {
			ms.Release()
			return Layout{}, fmt.Errorf("load %s segment %d: %w", img.Name, i, err)
		}
	}

	stackBottom := img.stackBottom()
	stackTop := stackBottom + mm.UserStackSize
	err = ms.InsertFramedArea(mm.VirtAddr(stackBottom), mm.VirtAddr(stackTop), mm.PermR|mm.PermW|mm.PermU)
	if err == nil {
		err = ms.InsertFramedArea(mm.VirtAddr(mm.TrapContextBase), mm.VirtAddr(mm.Trampoline), mm.PermR|mm.PermW)
	}
	if err != nil {
		ms.Release()
		return Layout{}, fmt.Errorf("load %s: %w", img.Name, err)
	}

	return Layout{
		MemorySet: ms,
		UserSP:    stackTop,
		Entry:     img.Entry,
		BaseSize:  stackTop,
	}, nil
}
