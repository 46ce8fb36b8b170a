package allocator

import (
	"io"
	"log/slog"
	"unsafe"

	"github.com/QuangTung97/memalloc/pages"
	"github.com/cockroachdb/errors"
)

// Config ...
type Config struct {
	// Pages supplies the regions blocks are built on.
	Pages pages.Allocator

	// Logger receives block lifecycle events at debug level. Nil discards.
	Logger *slog.Logger

	// CheckPointers makes Free verify that a pointer is the start of a chunk
	// in a live block before reading its header.
	CheckPointers bool
}

// Allocator hands out variable sized regions carved from blocks of pages.
//
// Blocks are kept in a list with the most recently created block first.
// Allocation takes the first free chunk that fits, searching blocks in list
// order and chunks from the start of each block. A block goes back to the
// page allocator as soon as nothing in it is allocated.
//
// Allocator is not safe for concurrent use.
type Allocator struct {
	pages         pages.Allocator
	logger        *slog.Logger
	checkPointers bool

	head   *block
	blocks map[uint64]*block
	nextID uint64

	memoryUsage    uint64
	liveChunks     uint64
	blocksCreated  uint64
	blocksReleased uint64
	failedRequests uint64
}

const alignment = 8

func allocatorValidateConfig(conf Config) {
	if conf.Pages == nil {
		panic("Pages must not be nil")
	}
}

// New ...
func New(conf Config) *Allocator {
	allocatorValidateConfig(conf)

	logger := conf.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Allocator{
		pages:         conf.Pages,
		logger:        logger,
		checkPointers: conf.CheckPointers,
		blocks:        make(map[uint64]*block),
	}
}

func alignSize(n int) uintptr {
	return (uintptr(n) + alignment - 1) &^ (alignment - 1)
}

func pageCountFor(size uintptr) int {
	return int((blockAllocSizeFor(size) + pages.PageSize - 1) / pages.PageSize)
}

// Alloc returns a pointer to at least n writable bytes aligned to 8 bytes.
// It returns nil when n is zero or when no more pages can be obtained.
func (a *Allocator) Alloc(n int) unsafe.Pointer {
	p, _ := a.TryAlloc(n)
	return p
}

// TryAlloc is Alloc reporting why no memory was returned. The error matches
// ErrOutOfMemory and the cause given by the page allocator.
func (a *Allocator) TryAlloc(n int) (unsafe.Pointer, error) {
	if n < 0 {
		panic("size must >= 0")
	}
	if n == 0 {
		return nil, nil
	}

	size := alignSize(n)
	for b := a.head; b != nil; b = b.next {
		if c := b.findFree(size); c != nil {
			return a.track(c), nil
		}
	}

	b, err := a.acquireBlock(size)
	if err != nil {
		return nil, err
	}

	c := b.findFree(size)
	if c == nil {
		panic(errors.AssertionFailedf("new block %d cannot hold %d bytes", b.id, size))
	}
	return a.track(c), nil
}

func (a *Allocator) track(c *chunk) unsafe.Pointer {
	a.memoryUsage += uint64(c.dataSize())
	a.liveChunks++
	return c.data()
}

func (a *Allocator) acquireBlock(size uintptr) (*block, error) {
	count := pageCountFor(size)
	region, err := a.pages.RequestPages(count)
	if err != nil {
		a.failedRequests++
		a.logger.Debug("page request failed",
			slog.Int("pages", count), slog.Uint64("size", uint64(size)), slog.Any("error", err))
		return nil, errors.Mark(errors.Wrapf(err, "allocate %d bytes", size), ErrOutOfMemory)
	}
	if len(region) != count*pages.PageSize {
		panic(errors.AssertionFailedf("page allocator returned %d bytes for %d pages", len(region), count))
	}

	a.nextID++
	b := initBlock(region, a.nextID)
	a.pushBlock(b)
	a.blocks[b.id] = b
	a.blocksCreated++

	a.logger.Debug("block acquired", slog.Uint64("block", b.id), slog.Int("pages", count))
	return b, nil
}

func (a *Allocator) pushBlock(b *block) {
	b.prev = nil
	b.next = a.head
	if a.head != nil {
		a.head.prev = b
	}
	a.head = b
}

func (a *Allocator) unlinkBlock(b *block) {
	if b.prev != nil {
		b.prev.next = b.next
	}
	if b.next != nil {
		b.next.prev = b.prev
	}
	if a.head == b {
		a.head = b.next
	}
	b.prev = nil
	b.next = nil
}

func (a *Allocator) releaseBlock(b *block) {
	a.unlinkBlock(b)
	delete(a.blocks, b.id)
	a.blocksReleased++

	pageCount := int(b.footer.pages)
	b.footer.magic = 0
	a.pages.ReleasePages(b.region)

	a.logger.Debug("block released", slog.Uint64("block", b.id), slog.Int("pages", pageCount))
}

// ownerOf walks from c to the sentinel of its block and resolves the block
// through the id stored in the footer.
func (a *Allocator) ownerOf(c *chunk) *block {
	for !c.isEnd() {
		c = c.next()
	}

	footer := (*blockFooter)(unsafe.Pointer(c))
	if footer.magic != blockMagic {
		panic(errors.AssertionFailedf("corrupt block footer at %p", footer))
	}

	b, ok := a.blocks[footer.id]
	if !ok || b.footer != footer {
		panic(errors.AssertionFailedf("block footer at %p names unknown block %d", footer, footer.id))
	}
	return b
}

func (a *Allocator) checkPointer(p unsafe.Pointer) {
	for b := a.head; b != nil; b = b.next {
		if !b.contains(p) {
			continue
		}
		if !b.isChunkStart(p) {
			panic(errors.AssertionFailedf("free of %p which is not the start of a chunk in block %d", p, b.id))
		}
		return
	}
	panic(errors.AssertionFailedf("free of %p which is not in any live block", p))
}

// Free releases memory returned by Alloc. A nil pointer is ignored. Freeing
// a pointer that is not currently allocated panics.
func (a *Allocator) Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	if a.checkPointers {
		a.checkPointer(p)
	}

	c := chunkFromData(p)
	if !c.isAllocated() {
		panic(errors.AssertionFailedf("double free of %p", p))
	}

	a.memoryUsage -= uint64(c.dataSize())
	a.liveChunks--

	c.setAllocated(false)
	c.mergeWithNext()

	b := a.ownerOf(c)
	if !b.hasAllocations() {
		a.releaseBlock(b)
	}
}

// Allocate is Alloc returning a slice of length n.
func (a *Allocator) Allocate(n int) []byte {
	p := a.Alloc(n)
	if p == nil {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}

// Deallocate releases a slice returned by Allocate.
func (a *Allocator) Deallocate(b []byte) {
	a.Free(unsafe.Pointer(unsafe.SliceData(b)))
}

// GetMemUsage returns the data bytes held by allocated chunks, including
// the rounding of each request.
func (a *Allocator) GetMemUsage() uint64 {
	return a.memoryUsage
}
