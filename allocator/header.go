package allocator

import "github.com/cockroachdb/errors"

// sizeField packs the data size of a chunk together with two flags. Data
// sizes are multiples of 4, which leaves the two low bits for the flags.
type sizeField uint64

const (
	allocatedFlag sizeField = 1 << 0
	endFlag       sizeField = 1 << 1

	flagMask = allocatedFlag | endFlag
)

func (f sizeField) dataSize() uintptr {
	return uintptr(f &^ flagMask)
}

func (f sizeField) withDataSize(size uintptr) sizeField {
	if sizeField(size)&flagMask != 0 {
		panic(errors.AssertionFailedf("chunk data size %d is not a multiple of 4", size))
	}
	return sizeField(size) | f&flagMask
}

func (f sizeField) isEnd() bool {
	return f&endFlag != 0
}

func (f sizeField) withEnd(end bool) sizeField {
	if end {
		return f | endFlag
	}
	return f &^ endFlag
}

func (f sizeField) isAllocated() bool {
	return f&allocatedFlag != 0
}

func (f sizeField) withAllocated(allocated bool) sizeField {
	if allocated {
		return f | allocatedFlag
	}
	return f &^ allocatedFlag
}
