// Package pages provides page-granular memory sources.
//
// A page source hands out contiguous regions whose length is a whole number
// of PageSize pages and takes them back as a unit. The allocator package
// builds its blocks on top of any Allocator implementation.
//
// None of the implementations are safe for concurrent use.
package pages

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// PageSize is the granularity of every region returned by RequestPages.
const PageSize = 4096

const pageShift = 12

// Allocator ...
type Allocator interface {
	// RequestPages returns a region of exactly count*PageSize bytes, aligned
	// to at least 8 bytes. count must be > 0. When no memory is available the
	// returned error matches ErrNoMemory.
	RequestPages(count int) ([]byte, error)

	// ReleasePages gives back a region returned by RequestPages. Releasing a
	// region that is not outstanding is a contract violation and panics.
	ReleasePages(region []byte)
}

func validateCount(count int) {
	if count <= 0 {
		panic("count must > 0")
	}
}

func regionAddr(region []byte) uintptr {
	if len(region) == 0 {
		panic(errors.AssertionFailedf("pages: release of an empty region"))
	}
	return uintptr(unsafe.Pointer(&region[0]))
}

// wordsToBytes views a word slice as bytes, keeping the 8-byte alignment of
// the words.
func wordsToBytes(words []uint64) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*8)
}
