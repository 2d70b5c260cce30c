// Package idgen generates identifiers for kernel runs.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// NewFunc produces a fresh UUID string. Tests replace it.
var NewFunc = uuid.NewString

// BootID returns a new identifier for one boot of the kernel.
func BootID() string {
	return NewFunc()
}

// Short returns the first block of id, for display.
func Short(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
