package allocator

import (
	"unsafe"

	"github.com/QuangTung97/memalloc/pages"
	"github.com/cockroachdb/errors"
)

// Validate checks the block list and every chunk header against the
// allocator's invariants. It reads headers without trusting them, so a
// corrupt heap yields an error instead of a fault.
func (a *Allocator) Validate() error {
	if a.head != nil && a.head.prev != nil {
		return errors.Newf("head block %d has a predecessor", a.head.id)
	}

	var numBlocks int
	var usedBytes, usedChunks uint64
	for b := a.head; b != nil; b = b.next {
		numBlocks++
		if numBlocks > len(a.blocks) {
			return errors.Newf("block list is longer than the %d registered blocks", len(a.blocks))
		}
		if b.next != nil && b.next.prev != b {
			return errors.Newf("block %d is not the predecessor of block %d", b.id, b.next.id)
		}
		if a.blocks[b.id] != b {
			return errors.Newf("block %d is not registered", b.id)
		}

		bytes, chunks, err := validateBlock(b)
		if err != nil {
			return errors.Wrapf(err, "block %d", b.id)
		}
		if chunks == 0 {
			return errors.Newf("block %d has no allocations but was not released", b.id)
		}
		usedBytes += bytes
		usedChunks += chunks
	}

	if numBlocks != len(a.blocks) {
		return errors.Newf("%d blocks are registered, but the list holds %d", len(a.blocks), numBlocks)
	}
	if usedBytes != a.memoryUsage {
		return errors.Newf("chunks hold %d allocated bytes, but usage is %d", usedBytes, a.memoryUsage)
	}
	if usedChunks != a.liveChunks {
		return errors.Newf("found %d allocated chunks, but %d are live", usedChunks, a.liveChunks)
	}
	return nil
}

func validateBlock(b *block) (uint64, uint64, error) {
	size := uintptr(len(b.region))
	if size%pages.PageSize != 0 {
		return 0, 0, errors.Newf("region of %d bytes is not a whole number of pages", size)
	}

	chunkArea := size - footerSize
	if unsafe.Pointer(b.footer) != unsafe.Pointer(&b.region[chunkArea]) {
		return 0, 0, errors.New("footer is not at the end of the region")
	}
	if b.footer.magic != blockMagic {
		return 0, 0, errors.Newf("footer magic is %#x", b.footer.magic)
	}
	if b.footer.id != b.id {
		return 0, 0, errors.Newf("footer names block %d", b.footer.id)
	}
	if uintptr(b.footer.pages)*pages.PageSize != size {
		return 0, 0, errors.Newf("footer records %d pages for a region of %d bytes", b.footer.pages, size)
	}

	end := b.footer.end.size
	if !end.isEnd() || end.isAllocated() || end.dataSize() != 0 {
		return 0, 0, errors.Newf("sentinel header is %#x", uint64(end))
	}

	var usedBytes, usedChunks uint64
	offset := uintptr(0)
	for offset < chunkArea {
		if chunkArea-offset < headerSize {
			return 0, 0, errors.Newf("chunk at offset %d overlaps the footer", offset)
		}

		c := (*chunk)(unsafe.Pointer(&b.region[offset]))
		if c.isEnd() {
			return 0, 0, errors.Newf("chunk at offset %d is marked as sentinel", offset)
		}

		allocSize := c.allocSize()
		if allocSize > chunkArea-offset {
			return 0, 0, errors.Newf("chunk at offset %d of %d bytes overlaps the footer", offset, c.dataSize())
		}
		if c.isAllocated() {
			usedBytes += uint64(c.dataSize())
			usedChunks++
		}
		offset += allocSize
	}
	return usedBytes, usedChunks, nil
}
