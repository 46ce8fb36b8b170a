package allocator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Empty(t *testing.T) {
	a, _ := newTestAllocator()
	assert.NoError(t, a.Validate())
}

func TestValidate_Corruption(t *testing.T) {
	table := []struct {
		name    string
		corrupt func(a *Allocator)
		errMsg  string
	}{
		{
			name: "chunk-overlaps-footer",
			corrupt: func(a *Allocator) {
				a.head.firstChunk().setDataSize(8192)
			},
			errMsg: "block 2: chunk at offset 0 of 8192 bytes overlaps the footer",
		},
		{
			name: "footer-magic",
			corrupt: func(a *Allocator) {
				a.head.footer.magic = 0
			},
			errMsg: "block 2: footer magic is 0x0",
		},
		{
			name: "footer-id",
			corrupt: func(a *Allocator) {
				a.head.footer.id = 7
			},
			errMsg: "block 2: footer names block 7",
		},
		{
			name: "sentinel-allocated",
			corrupt: func(a *Allocator) {
				a.head.footer.end.size = a.head.footer.end.size.withAllocated(true)
			},
			errMsg: "block 2: sentinel header is 0x3",
		},
		{
			name: "usage",
			corrupt: func(a *Allocator) {
				a.memoryUsage++
			},
			errMsg: "chunks hold 8000 allocated bytes, but usage is 8001",
		},
		{
			name: "live-chunks",
			corrupt: func(a *Allocator) {
				a.liveChunks = 5
			},
			errMsg: "found 2 allocated chunks, but 5 are live",
		},
		{
			name: "list-link",
			corrupt: func(a *Allocator) {
				a.head.next.prev = nil
			},
			errMsg: "block 2 is not the predecessor of block 1",
		},
		{
			name: "head-prev",
			corrupt: func(a *Allocator) {
				a.head.prev = a.head.next
			},
			errMsg: "head block 2 has a predecessor",
		},
		{
			name: "unregistered",
			corrupt: func(a *Allocator) {
				delete(a.blocks, 1)
			},
			errMsg: "block list is longer than the 1 registered blocks",
		},
	}

	for _, e := range table {
		t.Run(e.name, func(t *testing.T) {
			a, _ := newTestAllocator()
			require.NotNil(t, a.Alloc(4000))
			require.NotNil(t, a.Alloc(4000))
			require.NoError(t, a.Validate())

			e.corrupt(a)

			err := a.Validate()
			require.Error(t, err)
			assert.Equal(t, e.errMsg, err.Error())
		})
	}
}

func TestValidate_EmptyBlockKept(t *testing.T) {
	a, _ := newTestAllocator()
	p := a.Alloc(16)

	c := chunkFromData(p)
	c.setAllocated(false)
	a.memoryUsage = 0
	a.liveChunks = 0

	err := a.Validate()
	require.Error(t, err)
	assert.Equal(t, "block 1 has no allocations but was not released", err.Error())
}
