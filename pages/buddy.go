package pages

import (
	"math"
	"unsafe"
)

const (
	buddyNullPage uint32 = math.MaxUint32
)

// buddy is a binary buddy allocator over an arena measured in pages.
// Free runs carry a buddyListHead in their first page; the bitset has one
// bit per page, set when that page starts a free run.
type buddy struct {
	maxOrder uint32
	numPages uint32
	arena    []byte
	buckets  []uint32
	bitset   []uint64
}

type buddyListHead struct {
	next  uint32
	prev  uint32
	order uint32
}

func findOrderList(numPages uint32) []uint32 {
	var result []uint32
	for order := uint32(0); numPages != 0; order++ {
		if numPages&0x1 != 0 {
			result = append(result, order)
		}
		numPages >>= 1
	}
	return result
}

func makeBitSet(numPages uint32) []uint64 {
	if numPages <= 64 {
		return make([]uint64, 1)
	}
	return make([]uint64, (numPages+63)>>6)
}

// init splits the arena into power-of-two runs, largest first, so every
// run starts at a page index aligned to its own size.
func (b *buddy) init(arena []byte) {
	numPages := uint32(len(arena) >> pageShift)
	if numPages == 0 {
		panic("arena must hold at least one page")
	}

	orderList := findOrderList(numPages)
	last := orderList[len(orderList)-1]

	b.maxOrder = last
	b.numPages = numPages
	b.arena = arena
	b.buckets = make([]uint32, last+1)
	b.bitset = makeBitSet(numPages)

	for i := range b.buckets {
		b.buckets[i] = buddyNullPage
	}

	page := uint32(0)
	for i := len(orderList) - 1; i >= 0; i-- {
		order := orderList[i]
		b.addListHead(order, page)
		b.setBit(page)

		page += 1 << order
	}
}

func (b *buddy) headAt(page uint32) *buddyListHead {
	return (*buddyListHead)(unsafe.Pointer(&b.arena[uintptr(page)<<pageShift]))
}

func (b *buddy) setBit(page uint32) {
	b.bitset[page>>6] |= uint64(1) << (page & 0x3f)
}

func (b *buddy) clearBit(page uint32) {
	b.bitset[page>>6] &^= uint64(1) << (page & 0x3f)
}

func (b *buddy) isBitSet(page uint32) bool {
	return b.bitset[page>>6]&(uint64(1)<<(page&0x3f)) != 0
}

func (b *buddy) addListHead(order uint32, page uint32) {
	root := &b.buckets[order]
	if *root != buddyNullPage {
		b.headAt(*root).prev = page
	}

	node := b.headAt(page)
	node.next = *root
	node.prev = buddyNullPage
	node.order = order
	*root = page
}

func (b *buddy) removeListHead(order uint32, page uint32) {
	node := b.headAt(page)
	if node.next != buddyNullPage {
		b.headAt(node.next).prev = node.prev
	}

	if node.prev != buddyNullPage {
		b.headAt(node.prev).next = node.next
	} else {
		b.buckets[order] = node.next
	}
}

func (b *buddy) contentOfList(order uint32) []uint32 {
	var result []uint32
	page := b.buckets[order]
	for page != buddyNullPage {
		node := b.headAt(page)
		if node.order == order {
			result = append(result, page)
		}
		page = node.next
	}
	return result
}

// allocate returns the first page of a free run of 1<<order pages.
func (b *buddy) allocate(order uint32) (uint32, bool) {
	emptyOrder := order
	for ; emptyOrder <= b.maxOrder && b.buckets[emptyOrder] == buddyNullPage; emptyOrder++ {
	}
	if emptyOrder > b.maxOrder {
		return 0, false
	}

	page := b.buckets[emptyOrder]
	b.removeListHead(emptyOrder, page)
	b.clearBit(page)

	for i := int(emptyOrder) - 1; i >= int(order); i-- {
		half := page + (1 << uint32(i))
		b.addListHead(uint32(i), half)
		b.setBit(half)
	}

	return page, true
}

func computeRootAndNeighbor(page uint32, order uint32) (uint32, uint32) {
	mask := uint32(math.MaxUint32) << (order + 1)
	root := page & mask
	if root == page {
		return root, page + (1 << order)
	}
	return root, root
}

// deallocate gives back a run of 1<<order pages and merges it with its
// free buddies.
func (b *buddy) deallocate(page uint32, order uint32) {
	for order < b.maxOrder {
		root, neighbor := computeRootAndNeighbor(page, order)
		if neighbor >= b.numPages {
			break
		}

		if !b.isBitSet(neighbor) {
			break
		}

		if b.headAt(neighbor).order != order {
			break
		}

		b.removeListHead(order, neighbor)
		b.clearBit(neighbor)

		page = root
		order++
	}

	b.addListHead(order, page)
	b.setBit(page)
}
