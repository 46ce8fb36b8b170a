package pages

import (
	"math"
	"math/bits"

	"github.com/cockroachdb/errors"
)

// BuddyConfig ...
type BuddyConfig struct {
	// MemLimit is the arena size in bytes, rounded up to whole pages.
	MemLimit int
}

// Buddy is a page source carving power-of-two runs of pages out of one
// arena allocated up front. A request for count pages occupies the run of
// the next power of two.
type Buddy struct {
	buddy  buddy
	base   uintptr
	orders map[uint32]uint32

	livePages int
}

var _ Allocator = &Buddy{}

func findNumPages(limit int) uint32 {
	mask := PageSize - 1
	return uint32((limit + mask) >> pageShift)
}

func allocateArena(numPages uint32) []uint64 {
	return make([]uint64, int(numPages)<<(pageShift-3))
}

func orderFor(count int) uint32 {
	return uint32(bits.Len32(uint32(count - 1)))
}

// NewBuddy ...
func NewBuddy(conf BuddyConfig) *Buddy {
	if conf.MemLimit <= 0 {
		panic("MemLimit must > 0")
	}
	if uint64(conf.MemLimit) > uint64(math.MaxUint32)<<pageShift>>1 {
		panic("MemLimit too large")
	}

	arena := wordsToBytes(allocateArena(findNumPages(conf.MemLimit)))

	result := &Buddy{
		base:   regionAddr(arena),
		orders: make(map[uint32]uint32),
	}
	result.buddy.init(arena)
	return result
}

// RequestPages ...
func (b *Buddy) RequestPages(count int) ([]byte, error) {
	validateCount(count)
	if count > int(b.buddy.numPages) {
		return nil, errors.Wrapf(ErrNoMemory, "buddy: %d pages exceed arena of %d", count, b.buddy.numPages)
	}

	order := orderFor(count)
	page, ok := b.buddy.allocate(order)
	if !ok {
		return nil, errors.Wrapf(ErrNoMemory, "buddy: no free run of %d pages", 1<<order)
	}
	b.orders[page] = order
	b.livePages += 1 << order

	begin := int(page) << pageShift
	end := begin + count<<pageShift
	return b.buddy.arena[begin:end:end], nil
}

// ReleasePages ...
func (b *Buddy) ReleasePages(region []byte) {
	addr := regionAddr(region)
	if addr < b.base || addr >= b.base+uintptr(len(b.buddy.arena)) {
		panic(errors.AssertionFailedf("buddy: region %#x outside of arena", addr))
	}

	offset := addr - b.base
	if offset&(PageSize-1) != 0 {
		panic(errors.AssertionFailedf("buddy: region %#x not page aligned", addr))
	}

	page := uint32(offset >> pageShift)
	order, ok := b.orders[page]
	if !ok {
		panic(errors.AssertionFailedf("buddy: release of page %d which is not allocated", page))
	}
	delete(b.orders, page)
	b.livePages -= 1 << order

	b.buddy.deallocate(page, order)
}

// LivePages returns the pages held by outstanding runs, including the
// rounding to a power of two.
func (b *Buddy) LivePages() int {
	return b.livePages
}

// NumPages returns the arena size in pages.
func (b *Buddy) NumPages() int {
	return int(b.buddy.numPages)
}
