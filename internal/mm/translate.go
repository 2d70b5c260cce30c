package mm

import "fmt"

// Access is the kind of user access a translation must permit.
type Access int

const (
	AccessRead Access = iota
	AccessWrite
)

func (a Access) String() string {
	if a == AccessWrite {
		return "write"
	}
	return "read"
}

// UserBuffer is a user range seen from the kernel: one slice per touched
// page, in address order. The slices alias physical memory.
type UserBuffer struct {
	Segments [][]byte
}

// Len returns the total number of bytes covered.
func (b UserBuffer) Len() int {
	n := 0
	for _, s := range b.Segments {
		n += len(s)
	}
	return n
}

// Write copies src into the buffer segment by segment and returns the
// number of bytes copied.
func (b UserBuffer) Write(src []byte) int {
	n := 0
	for _, s := range b.Segments {
		if n == len(src) {
			break
		}
		n += copy(s, src[n:])
	}
	return n
}

// Read copies from the buffer into dst and returns the number of bytes
// copied.
func (b UserBuffer) Read(dst []byte) int {
	n := 0
	for _, s := range b.Segments {
		if n == len(dst) {
			break
		}
		n += copy(dst[n:], s)
	}
	return n
}

// Bytes returns a copy of the buffer contents.
func (b UserBuffer) Bytes() []byte {
	out := make([]byte, 0, b.Len())
	for _, s := range b.Segments {
		out = append(out, s...)
	}
	return out
}

// TranslateUserBuffer resolves [ptr, ptr+length) in the address space named
// by token. Every touched page must be a valid user page allowing access;
// otherwise ErrFault is returned. A zero length yields an empty buffer.
func (m *PhysMemory) TranslateUserBuffer(token, ptr uint64, length int, access Access) (UserBuffer, error) {
	if length < 0 {
		return UserBuffer{}, fmt.Errorf("%w: negative length %d", ErrFault, length)
	}
	if length == 0 {
		return UserBuffer{}, nil
	}
	end := ptr + uint64(length)
	if end < ptr || end > MaxVA {
		return UserBuffer{}, fmt.Errorf("%w: range %#x+%d outside address space", ErrFault, ptr, length)
	}
	pt, err := PageTableFromToken(m, token)
	if err != nil {
		return UserBuffer{}, err
	}

	var buf UserBuffer
	for cur := ptr; cur < end; {
		va := VirtAddr(cur)
		e, ok := pt.Translate(va.Floor())
		if !ok || !e.User() {
			return UserBuffer{}, fmt.Errorf("%w: %s of unmapped address %#x", ErrFault, access, cur)
		}
		if access == AccessWrite && !e.Writable() || access == AccessRead && !e.Readable() {
			return UserBuffer{}, fmt.Errorf("%w: %s of protected address %#x", ErrFault, access, cur)
		}
		pageEnd := uint64((va.Floor() + 1).Addr())
		segEnd := min(end, pageEnd)
		off := va.PageOffset()
		page := m.Page(e.PPN())
		buf.Segments = append(buf.Segments, page[off:off+(segEnd-cur)])
		cur = segEnd
	}
	return buf, nil
}
