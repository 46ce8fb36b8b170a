package allocator

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// chunk is the header in front of every data region of a block. Chunks of a
// block follow each other without gaps and end with a sentinel chunk.
type chunk struct {
	size sizeField
}

const headerSize = unsafe.Sizeof(chunk{})

func chunkAllocSizeFor(dataSize uintptr) uintptr {
	return headerSize + dataSize
}

func chunkFromData(p unsafe.Pointer) *chunk {
	return (*chunk)(unsafe.Add(p, -int(headerSize)))
}

func (c *chunk) init(allocSize uintptr) {
	if allocSize&3 != 0 || allocSize < headerSize {
		panic(errors.AssertionFailedf("chunk alloc size %d must be a multiple of 4 and hold a header", allocSize))
	}
	c.size = sizeField(0).withDataSize(allocSize - headerSize)
}

func (c *chunk) data() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(c), headerSize)
}

func (c *chunk) dataSize() uintptr {
	return c.size.dataSize()
}

func (c *chunk) setDataSize(size uintptr) {
	c.size = c.size.withDataSize(size)
}

func (c *chunk) allocSize() uintptr {
	return chunkAllocSizeFor(c.dataSize())
}

func (c *chunk) isEnd() bool {
	return c.size.isEnd()
}

func (c *chunk) setEnd(end bool) {
	c.size = c.size.withEnd(end)
}

func (c *chunk) isAllocated() bool {
	return c.size.isAllocated()
}

func (c *chunk) setAllocated(allocated bool) {
	if c.isEnd() {
		panic(errors.AssertionFailedf("set allocated on sentinel chunk %p", c))
	}
	c.size = c.size.withAllocated(allocated)
}

func (c *chunk) next() *chunk {
	if c.isEnd() {
		panic(errors.AssertionFailedf("next of sentinel chunk %p", c))
	}
	return (*chunk)(unsafe.Add(unsafe.Pointer(c), c.allocSize()))
}

func (c *chunk) assertFree(op string) {
	if c.isEnd() || c.isAllocated() {
		panic(errors.AssertionFailedf("%s on chunk %p which is not a free chunk", op, c))
	}
}

// split shrinks a free chunk to dataSize when the rest can hold another
// chunk with a non-empty payload. Otherwise the chunk keeps its size.
func (c *chunk) split(dataSize uintptr) {
	c.assertFree("split")

	available := c.dataSize()
	if dataSize > available {
		panic(errors.AssertionFailedf("split of %d bytes from chunk of %d", dataSize, available))
	}

	if available <= dataSize+chunkAllocSizeFor(0) {
		return
	}

	c.setDataSize(dataSize)
	c.next().init(available - dataSize)
}

// mergeWithNext absorbs the free chunks that directly follow c.
func (c *chunk) mergeWithNext() {
	c.assertFree("merge")

	for next := c.next(); !next.isEnd() && !next.isAllocated(); next = c.next() {
		c.setDataSize(c.dataSize() + next.allocSize())
	}
}
