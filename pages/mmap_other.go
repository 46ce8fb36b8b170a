//go:build !unix

package pages

import "github.com/cockroachdb/errors"

// Mmap is unavailable on this platform, every request fails.
type Mmap struct{}

var _ Allocator = &Mmap{}

// NewMmap ...
func NewMmap() *Mmap {
	return &Mmap{}
}

// RequestPages ...
func (m *Mmap) RequestPages(count int) ([]byte, error) {
	validateCount(count)
	return nil, errors.Mark(ErrNotSupported, ErrNoMemory)
}

// ReleasePages ...
func (m *Mmap) ReleasePages(region []byte) {
	panic(errors.AssertionFailedf("mmap: release of region %#x never mapped", regionAddr(region)))
}

// LivePages ...
func (m *Mmap) LivePages() int {
	return 0
}
