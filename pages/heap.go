package pages

import "github.com/cockroachdb/errors"

// maxHeapRequestPages bounds a single request, 4 GiB.
const maxHeapRequestPages = 1 << 20

// HeapConfig ...
type HeapConfig struct {
	// MaxPages bounds the pages outstanding at once, 0 means no bound.
	MaxPages int
}

// Heap is a page source backed by the Go heap. Exhaustion can be simulated
// with SetExhausted.
type Heap struct {
	maxPages  int
	exhausted bool

	outstanding map[uintptr]int
	livePages   int
	requests    uint64
	releases    uint64
}

var _ Allocator = &Heap{}

// NewHeap ...
func NewHeap(conf HeapConfig) *Heap {
	if conf.MaxPages < 0 {
		panic("MaxPages must >= 0")
	}
	return &Heap{
		maxPages:    conf.MaxPages,
		outstanding: make(map[uintptr]int),
	}
}

// SetExhausted makes every following request fail until reset.
func (h *Heap) SetExhausted(exhausted bool) {
	h.exhausted = exhausted
}

// RequestPages ...
func (h *Heap) RequestPages(count int) ([]byte, error) {
	validateCount(count)
	if h.exhausted {
		return nil, errors.Wrapf(ErrNoMemory, "heap: request of %d pages", count)
	}
	if count > maxHeapRequestPages {
		return nil, errors.Wrapf(ErrNoMemory, "heap: request of %d pages exceeds %d", count, maxHeapRequestPages)
	}
	if h.maxPages > 0 && h.livePages+count > h.maxPages {
		return nil, errors.Wrapf(ErrNoMemory, "heap: %d pages in use, limit %d", h.livePages, h.maxPages)
	}

	region := wordsToBytes(make([]uint64, count<<(pageShift-3)))
	h.outstanding[regionAddr(region)] = count
	h.livePages += count
	h.requests++
	return region, nil
}

// ReleasePages ...
func (h *Heap) ReleasePages(region []byte) {
	addr := regionAddr(region)
	count, ok := h.outstanding[addr]
	if !ok {
		panic(errors.AssertionFailedf("heap: release of unknown region %#x", addr))
	}
	if len(region) != count*PageSize {
		panic(errors.AssertionFailedf("heap: release of %d bytes, region has %d pages", len(region), count))
	}
	delete(h.outstanding, addr)
	h.livePages -= count
	h.releases++
}

// LivePages returns the number of pages currently handed out.
func (h *Heap) LivePages() int {
	return h.livePages
}

// Requests returns the number of successful requests.
func (h *Heap) Requests() uint64 {
	return h.requests
}

// Releases ...
func (h *Heap) Releases() uint64 {
	return h.releases
}
