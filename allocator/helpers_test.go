package allocator

import (
	"unsafe"

	"github.com/QuangTung97/memalloc/pages"
)

func newTestRegion(numPages int) []byte {
	words := make([]uint64, numPages*pages.PageSize/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*8)
}

func newTestAllocator() (*Allocator, *pages.Heap) {
	heap := pages.NewHeap(pages.HeapConfig{})
	return New(Config{Pages: heap}), heap
}

func fillBytes(p unsafe.Pointer, n int, tag byte) {
	data := unsafe.Slice((*byte)(p), n)
	for i := range data {
		data[i] = tag + byte(i)
	}
}

func checkBytes(p unsafe.Pointer, n int, tag byte) bool {
	data := unsafe.Slice((*byte)(p), n)
	for i := range data {
		if data[i] != tag+byte(i) {
			return false
		}
	}
	return true
}
