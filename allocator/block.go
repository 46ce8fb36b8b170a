package allocator

import (
	"unsafe"

	"github.com/QuangTung97/memalloc/pages"
	"github.com/cockroachdb/errors"
)

const blockMagic uint32 = 0x6b6c6262

// blockFooter sits at the high end of a block region. Its first field is
// the sentinel chunk, so walking the chunks from the start of the region
// stops exactly on it. Only plain integers are stored in page memory.
type blockFooter struct {
	end   chunk
	magic uint32
	pages uint32
	id    uint64
}

const footerSize = unsafe.Sizeof(blockFooter{})

type block struct {
	id     uint64
	region []byte
	footer *blockFooter

	prev *block
	next *block
}

func blockAllocSizeFor(dataSize uintptr) uintptr {
	return footerSize + chunkAllocSizeFor(dataSize)
}

// initBlock lays out one free chunk followed by the footer over region.
func initBlock(region []byte, id uint64) *block {
	size := uintptr(len(region))
	if size < blockAllocSizeFor(0) || size&7 != 0 {
		panic(errors.AssertionFailedf("block region of %d bytes must be a multiple of 8 and hold a chunk", size))
	}

	chunkArea := size - footerSize
	footer := (*blockFooter)(unsafe.Pointer(&region[chunkArea]))
	footer.end.init(headerSize)
	footer.end.setEnd(true)
	footer.magic = blockMagic
	footer.pages = uint32(size / pages.PageSize)
	footer.id = id

	b := &block{
		id:     id,
		region: region,
		footer: footer,
	}
	b.firstChunk().init(chunkArea)
	return b
}

func (b *block) firstChunk() *chunk {
	return (*chunk)(unsafe.Pointer(&b.region[0]))
}

func (b *block) sentinel() *chunk {
	return &b.footer.end
}

func (b *block) offsetOf(c *chunk) int {
	return int(uintptr(unsafe.Pointer(c)) - uintptr(unsafe.Pointer(&b.region[0])))
}

func (b *block) checkCursor(c *chunk) {
	if uintptr(unsafe.Pointer(c)) > uintptr(unsafe.Pointer(b.sentinel())) {
		panic(errors.AssertionFailedf("chunk walk of block %d ran past its sentinel", b.id))
	}
}

// findFree returns the first free chunk able to hold n bytes, merged with
// its free successors, split to size and marked allocated.
func (b *block) findFree(n uintptr) *chunk {
	c := b.firstChunk()
	for ; !c.isEnd(); c = c.next() {
		b.checkCursor(c)
		if c.isAllocated() {
			continue
		}

		c.mergeWithNext()

		if n > c.dataSize() {
			continue
		}

		c.split(n)
		c.setAllocated(true)
		return c
	}

	if c != b.sentinel() {
		panic(errors.AssertionFailedf("chunk walk of block %d ended at offset %d", b.id, b.offsetOf(c)))
	}
	return nil
}

func (b *block) hasAllocations() bool {
	c := b.firstChunk()
	for ; !c.isEnd(); c = c.next() {
		b.checkCursor(c)
		if c.isAllocated() {
			return true
		}
	}

	if c != b.sentinel() {
		panic(errors.AssertionFailedf("chunk walk of block %d ended at offset %d", b.id, b.offsetOf(c)))
	}
	return false
}

// contains reports whether p points into the chunk area of b.
func (b *block) contains(p unsafe.Pointer) bool {
	addr := uintptr(p)
	return addr >= uintptr(unsafe.Pointer(&b.region[0])) && addr < uintptr(unsafe.Pointer(b.sentinel()))
}

// isChunkStart reports whether p is the data pointer of one of b's chunks.
func (b *block) isChunkStart(p unsafe.Pointer) bool {
	for c := b.firstChunk(); !c.isEnd(); c = c.next() {
		b.checkCursor(c)
		if c.data() == p {
			return true
		}
	}
	return false
}
