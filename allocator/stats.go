package allocator

// ChunkInfo describes one chunk met by VisitChunks.
type ChunkInfo struct {
	Block     uint64
	Offset    int
	Size      int
	Allocated bool
}

// Stats ...
type Stats struct {
	Blocks int
	Pages  int

	AllocatedChunks int
	AllocatedBytes  uint64
	FreeChunks      int
	FreeBytes       uint64

	BlocksCreated      uint64
	BlocksReleased     uint64
	FailedPageRequests uint64
}

func chunkInfoOf(b *block, c *chunk) ChunkInfo {
	return ChunkInfo{
		Block:     b.id,
		Offset:    b.offsetOf(c),
		Size:      int(c.dataSize()),
		Allocated: c.isAllocated(),
	}
}

// walkChunks calls fn for every chunk of every live block until fn returns
// false.
func (a *Allocator) walkChunks(fn func(b *block, c *chunk) bool) {
	for b := a.head; b != nil; b = b.next {
		for c := b.firstChunk(); !c.isEnd(); c = c.next() {
			b.checkCursor(c)
			if !fn(b, c) {
				return
			}
		}
	}
}

// VisitChunks calls fn for every chunk of every live block, blocks in search
// order and chunks by address. It stops at the first error fn returns.
func (a *Allocator) VisitChunks(fn func(info ChunkInfo) error) error {
	var err error
	a.walkChunks(func(b *block, c *chunk) bool {
		err = fn(chunkInfoOf(b, c))
		return err == nil
	})
	return err
}

// Stats walks every block and returns the current occupancy.
func (a *Allocator) Stats() Stats {
	s := Stats{
		BlocksCreated:      a.blocksCreated,
		BlocksReleased:     a.blocksReleased,
		FailedPageRequests: a.failedRequests,
	}

	for b := a.head; b != nil; b = b.next {
		s.Blocks++
		s.Pages += int(b.footer.pages)
	}

	a.walkChunks(func(b *block, c *chunk) bool {
		if c.isAllocated() {
			s.AllocatedChunks++
			s.AllocatedBytes += uint64(c.dataSize())
		} else {
			s.FreeChunks++
			s.FreeBytes += uint64(c.dataSize())
		}
		return true
	})
	return s
}
