package allocator

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestChunkAllocSizeFor(t *testing.T) {
	assert.Equal(t, uintptr(8), headerSize)
	assert.Equal(t, uintptr(8), chunkAllocSizeFor(0))
	assert.Equal(t, uintptr(24), chunkAllocSizeFor(16))
}

func TestChunk_Init(t *testing.T) {
	region := newTestRegion(1)
	c := (*chunk)(unsafe.Pointer(&region[0]))

	c.init(64)
	assert.Equal(t, uintptr(56), c.dataSize())
	assert.Equal(t, uintptr(64), c.allocSize())
	assert.False(t, c.isEnd())
	assert.False(t, c.isAllocated())
	assert.Equal(t, unsafe.Pointer(&region[8]), c.data())
	assert.Same(t, c, chunkFromData(c.data()))

	assert.Panics(t, func() {
		c.init(62)
	})
	assert.Panics(t, func() {
		c.init(4)
	})
}

func TestChunk_Next(t *testing.T) {
	region := newTestRegion(1)
	c := (*chunk)(unsafe.Pointer(&region[0]))
	c.init(64)

	assert.Same(t, (*chunk)(unsafe.Pointer(&region[64])), c.next())
}

func TestChunk_Sentinel(t *testing.T) {
	b := initBlock(newTestRegion(1), 1)
	end := b.sentinel()

	assert.True(t, end.isEnd())
	assert.Equal(t, uintptr(0), end.dataSize())
	assert.Panics(t, func() {
		end.setAllocated(true)
	})
	assert.Panics(t, func() {
		end.next()
	})
	assert.Panics(t, func() {
		end.split(0)
	})
	assert.Panics(t, func() {
		end.mergeWithNext()
	})
}

func TestChunk_Split(t *testing.T) {
	table := []struct {
		name         string
		dataSize     uintptr
		expectedSize uintptr
		nextSize     uintptr
	}{
		{
			name:         "small",
			dataSize:     16,
			expectedSize: 16,
			nextSize:     4040,
		},
		{
			name:         "remainder-holds-smallest-payload",
			dataSize:     4048,
			expectedSize: 4048,
			nextSize:     8,
		},
		{
			name:         "remainder-only-holds-header",
			dataSize:     4056,
			expectedSize: 4064,
		},
		{
			name:         "remainder-too-small",
			dataSize:     4060,
			expectedSize: 4064,
		},
		{
			name:         "exact",
			dataSize:     4064,
			expectedSize: 4064,
		},
	}

	for _, e := range table {
		t.Run(e.name, func(t *testing.T) {
			b := initBlock(newTestRegion(1), 1)
			c := b.firstChunk()
			assert.Equal(t, uintptr(4064), c.dataSize())

			c.split(e.dataSize)
			assert.Equal(t, e.expectedSize, c.dataSize())

			next := c.next()
			if e.nextSize == 0 {
				assert.Same(t, b.sentinel(), next)
				return
			}
			assert.False(t, next.isEnd())
			assert.False(t, next.isAllocated())
			assert.Equal(t, e.nextSize, next.dataSize())
			assert.Same(t, b.sentinel(), next.next())
		})
	}
}

func TestChunk_Split_Invalid(t *testing.T) {
	b := initBlock(newTestRegion(1), 1)
	c := b.firstChunk()

	assert.Panics(t, func() {
		c.split(4072)
	})

	c.setAllocated(true)
	assert.Panics(t, func() {
		c.split(8)
	})
}

func TestChunk_MergeWithNext(t *testing.T) {
	b := initBlock(newTestRegion(1), 1)

	c0 := b.firstChunk()
	c0.split(16)
	c0.setAllocated(true)

	c1 := c0.next()
	c1.split(16)
	c1.setAllocated(true)

	c2 := c1.next()
	assert.Equal(t, uintptr(4016), c2.dataSize())

	c0.setAllocated(false)
	c0.mergeWithNext()
	assert.Equal(t, uintptr(16), c0.dataSize())

	c1.setAllocated(false)
	c1.mergeWithNext()
	assert.Equal(t, uintptr(4040), c1.dataSize())
	assert.Same(t, b.sentinel(), c1.next())

	c0.mergeWithNext()
	assert.Equal(t, uintptr(4064), c0.dataSize())
	assert.Same(t, b.sentinel(), c0.next())

	c0.setAllocated(true)
	assert.Panics(t, func() {
		c0.mergeWithNext()
	})
}

func TestChunk_MergeWithNext_Chain(t *testing.T) {
	b := initBlock(newTestRegion(1), 1)

	var chunks []*chunk
	c := b.firstChunk()
	for i := 0; i < 5; i++ {
		c.split(8)
		chunks = append(chunks, c)
		c = c.next()
	}
	last := c
	last.split(8)
	last.setAllocated(true)

	for _, free := range chunks {
		assert.Equal(t, uintptr(8), free.dataSize())
	}

	chunks[0].mergeWithNext()
	assert.Equal(t, uintptr(8+4*16), chunks[0].dataSize())
	assert.Same(t, last, chunks[0].next())
}
