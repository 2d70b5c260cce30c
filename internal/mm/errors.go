package mm

import "errors"

var (
	ErrOutOfMemory    = errors.New("out of physical frames")
	ErrUnaligned      = errors.New("address not page aligned")
	ErrZeroLength     = errors.New("zero length")
	ErrBadPermission  = errors.New("invalid permission bits")
	ErrOutOfRange     = errors.New("range outside user address space")
	ErrOverlap        = errors.New("range overlaps an existing mapping")
	ErrNotMapped      = errors.New("page not mapped")
	ErrAlreadyMapped  = errors.New("page already mapped")
	ErrFault          = errors.New("user memory fault")
	ErrBadToken       = errors.New("invalid address space token")
	ErrRangeOverflows = errors.New("range wraps around address space")
)
