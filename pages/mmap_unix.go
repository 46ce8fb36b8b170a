//go:build unix

package pages

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// Mmap is a page source backed by anonymous private mappings. Every request
// is its own mapping and is unmapped on release.
type Mmap struct {
	outstanding map[uintptr][]byte
	livePages   int
}

var _ Allocator = &Mmap{}

// NewMmap ...
func NewMmap() *Mmap {
	return &Mmap{
		outstanding: make(map[uintptr][]byte),
	}
}

// RequestPages ...
func (m *Mmap) RequestPages(count int) ([]byte, error) {
	validateCount(count)

	region, err := unix.Mmap(-1, 0, count*PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "mmap: map %d pages", count), ErrNoMemory)
	}

	m.outstanding[regionAddr(region)] = region
	m.livePages += count
	return region, nil
}

// ReleasePages ...
func (m *Mmap) ReleasePages(region []byte) {
	addr := regionAddr(region)
	mapped, ok := m.outstanding[addr]
	if !ok {
		panic(errors.AssertionFailedf("mmap: release of unknown region %#x", addr))
	}
	delete(m.outstanding, addr)
	m.livePages -= len(mapped) >> pageShift

	// the mapper in x/sys only accepts the exact slice returned by Mmap
	if err := unix.Munmap(mapped); err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "mmap: unmap region %#x", addr))
	}
}

// LivePages ...
func (m *Mmap) LivePages() int {
	return m.livePages
}
