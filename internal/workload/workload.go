// Package workload contains deterministic allocation workloads that fill
// every allocation with a pattern and check it before freeing.
package workload

import (
	"math/rand"
	"unsafe"

	"github.com/cockroachdb/errors"
)

var (
	// ErrExhausted is returned when the allocator returns nil mid workload.
	ErrExhausted = errors.New("workload: allocator exhausted")

	// ErrCorrupted is returned when an allocation no longer holds its pattern
	// or an address expectation does not hold.
	ErrCorrupted = errors.New("workload: corrupted allocation")
)

// Allocator is the allocation surface a workload drives.
type Allocator interface {
	Alloc(n int) unsafe.Pointer
	Free(p unsafe.Pointer)
}

// Result counts what a workload did.
type Result struct {
	Name        string
	Allocations int
	Frees       int
	Bytes       uint64
}

type runner struct {
	a      Allocator
	result Result
}

func newRunner(a Allocator, name string) *runner {
	return &runner{
		a:      a,
		result: Result{Name: name},
	}
}

func (r *runner) alloc(n int) (unsafe.Pointer, error) {
	p := r.a.Alloc(n)
	if p == nil {
		return nil, errors.Wrapf(ErrExhausted, "%s: allocate %d bytes", r.result.Name, n)
	}
	r.result.Allocations++
	r.result.Bytes += uint64(n)
	return p, nil
}

func (r *runner) free(p unsafe.Pointer) {
	r.a.Free(p)
	r.result.Frees++
}

func fill(p unsafe.Pointer, n int, tag byte) {
	data := unsafe.Slice((*byte)(p), n)
	for i := range data {
		data[i] = tag + byte(i)
	}
}

func check(p unsafe.Pointer, n int, tag byte) bool {
	data := unsafe.Slice((*byte)(p), n)
	for i := range data {
		if data[i] != tag+byte(i) {
			return false
		}
	}
	return true
}

// Stress allocates count regions of size i%77+1, replaces every third one
// with a region of size i%99+3, then checks and frees all of them.
func Stress(a Allocator, count int) (Result, error) {
	r := newRunner(a, "stress")

	ptrs := make([]unsafe.Pointer, count)
	sizes := make([]int, count)
	tags := make([]byte, count)

	for i := 0; i < count; i++ {
		p, err := r.alloc(i%77 + 1)
		if err != nil {
			return r.result, err
		}
		ptrs[i], sizes[i], tags[i] = p, i%77+1, byte(i)
		fill(p, sizes[i], tags[i])
	}

	for i := 0; i < count; i += 3 {
		r.free(ptrs[i])

		p, err := r.alloc(i%99 + 3)
		if err != nil {
			return r.result, err
		}
		ptrs[i], sizes[i], tags[i] = p, i%99+3, byte(i*7)
		fill(p, sizes[i], tags[i])
	}

	for i := 0; i < count; i++ {
		if !check(ptrs[i], sizes[i], tags[i]) {
			return r.result, errors.Wrapf(ErrCorrupted, "stress: allocation %d of %d bytes", i, sizes[i])
		}
		r.free(ptrs[i])
	}
	return r.result, nil
}

// Sequential allocates, checks and frees one region of every size from 1 to
// count-1.
func Sequential(a Allocator, count int) (Result, error) {
	r := newRunner(a, "sequential")

	for n := 1; n < count; n++ {
		p, err := r.alloc(n)
		if err != nil {
			return r.result, err
		}
		fill(p, n, byte(n))
		if !check(p, n, byte(n)) {
			return r.result, errors.Wrapf(ErrCorrupted, "sequential: allocation of %d bytes", n)
		}
		r.free(p)
	}
	return r.result, nil
}

// Reuse allocates 100 one byte regions, frees the 43rd and expects the
// next one byte allocation to return the same address.
func Reuse(a Allocator) (res Result, err error) {
	r := newRunner(a, "reuse")

	ptrs := make([]unsafe.Pointer, 0, 100)
	defer func() {
		for _, p := range ptrs {
			r.free(p)
		}
		res = r.result
	}()

	for i := 0; i < 100; i++ {
		p, err := r.alloc(1)
		if err != nil {
			return r.result, err
		}
		ptrs = append(ptrs, p)
	}

	freed := ptrs[42]
	r.free(freed)

	p, err := r.alloc(1)
	if err != nil {
		ptrs = append(ptrs[:42], ptrs[43:]...)
		return r.result, err
	}
	ptrs[42] = p

	if p != freed {
		return r.result, errors.Wrapf(ErrCorrupted, "reuse: got %p after freeing %p", p, freed)
	}
	return r.result, nil
}

// Growth allocates and frees 10, 20 and 30 bytes in turn and expects the
// same address every time. A small region stays allocated throughout so
// the block is not given back between the steps.
func Growth(a Allocator) (res Result, err error) {
	r := newRunner(a, "growth")

	keep, err := r.alloc(8)
	if err != nil {
		return r.result, err
	}
	defer func() {
		r.free(keep)
		res = r.result
	}()

	var first unsafe.Pointer
	for _, n := range []int{10, 20, 30} {
		p, err := r.alloc(n)
		if err != nil {
			return r.result, err
		}
		r.free(p)

		if first == nil {
			first = p
		} else if p != first {
			return r.result, errors.Wrapf(ErrCorrupted, "growth: %d bytes at %p, expected %p", n, p, first)
		}
	}
	return r.result, nil
}

// StablePointer keeps one value allocated across cycles allocation and free
// pairs and checks that it was never overwritten.
func StablePointer(a Allocator, cycles int) (res Result, err error) {
	r := newRunner(a, "stable-pointer")

	p, err := r.alloc(4)
	if err != nil {
		return r.result, err
	}
	defer func() {
		r.free(p)
		res = r.result
	}()

	value := (*int32)(p)
	*value = 42

	for i := 0; i < cycles; i++ {
		q, err := r.alloc(4)
		if err != nil {
			return r.result, err
		}
		*(*int32)(q) = 43
		r.free(q)
	}

	if *value != 42 {
		return r.result, errors.Wrapf(ErrCorrupted, "stable-pointer: value changed to %d", *value)
	}
	return r.result, nil
}

// Interleave mixes allocations of random sizes with frees of random live
// regions, driven by seed. An occasional allocation spans several pages.
func Interleave(a Allocator, seed int64, steps int) (res Result, err error) {
	r := newRunner(a, "interleave")
	rnd := rand.New(rand.NewSource(seed))

	type allocation struct {
		p   unsafe.Pointer
		n   int
		tag byte
	}

	var live []allocation
	defer func() {
		for _, e := range live {
			r.free(e.p)
		}
		res = r.result
	}()

	for i := 0; i < steps; i++ {
		if len(live) > 0 && rnd.Intn(3) == 0 {
			index := rnd.Intn(len(live))
			e := live[index]
			if !check(e.p, e.n, e.tag) {
				return r.result, errors.Wrapf(ErrCorrupted, "interleave: allocation of %d bytes at step %d", e.n, i)
			}
			live[index] = live[len(live)-1]
			live = live[:len(live)-1]
			r.free(e.p)
			continue
		}

		n := rnd.Intn(700) + 1
		if rnd.Intn(50) == 0 {
			n = rnd.Intn(20000) + 1
		}
		p, err := r.alloc(n)
		if err != nil {
			return r.result, err
		}
		fill(p, n, byte(i))
		live = append(live, allocation{p: p, n: n, tag: byte(i)})
	}

	for _, e := range live {
		if !check(e.p, e.n, e.tag) {
			return r.result, errors.Wrapf(ErrCorrupted, "interleave: allocation of %d bytes", e.n)
		}
	}
	return r.result, nil
}

// All runs every workload in turn, sized by count, and stops at the first
// failure.
func All(a Allocator, count int) ([]Result, error) {
	steps := []func() (Result, error){
		func() (Result, error) { return Sequential(a, 1000) },
		func() (Result, error) { return Reuse(a) },
		func() (Result, error) { return Growth(a) },
		func() (Result, error) { return StablePointer(a, 1234) },
		func() (Result, error) { return Stress(a, count) },
		func() (Result, error) { return Interleave(a, 1, count/2) },
	}

	results := make([]Result, 0, len(steps))
	for _, step := range steps {
		res, err := step()
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
