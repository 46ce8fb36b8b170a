package allocator

import "github.com/cockroachdb/errors"

var (
	// ErrOutOfMemory indicates that a new block was needed and the page allocator could not supply it.
	ErrOutOfMemory = errors.New("allocator: out of memory")
)
