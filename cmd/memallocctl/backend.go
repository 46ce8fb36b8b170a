package main

import (
	"github.com/cockroachdb/errors"

	"github.com/QuangTung97/memalloc/pages"
)

// pageSource is a page allocator that reports how many pages it has out.
type pageSource interface {
	pages.Allocator
	LivePages() int
}

func newPageSource(backend string, memLimit int) (pageSource, error) {
	if memLimit < pages.PageSize {
		return nil, errors.Newf("mem-limit must be at least %d bytes, got %d", pages.PageSize, memLimit)
	}

	switch backend {
	case "heap":
		return pages.NewHeap(pages.HeapConfig{MaxPages: memLimit / pages.PageSize}), nil

	case "buddy":
		return pages.NewBuddy(pages.BuddyConfig{MemLimit: memLimit}), nil

	case "mmap":
		return pages.NewMmap(), nil

	default:
		return nil, errors.Newf("unknown backend %q (want heap, buddy or mmap)", backend)
	}
}
