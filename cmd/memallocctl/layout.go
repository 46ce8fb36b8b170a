package main

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"

	"github.com/QuangTung97/memalloc/allocator"
)

func newLayoutCmd(opts *rootOptions) *cobra.Command {
	var sizes []int
	var free []int

	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Allocate the given sizes and print the chunk map",
		Long: `The layout command allocates one region per size, in order, frees the
regions at the given indexes and prints every block with its chunks as JSON.

Example:
  memallocctl layout --sizes 16,8,100
  memallocctl layout --sizes 16,8,100 --free 1
  memallocctl layout --sizes 4000,4000,16 --backend buddy`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout(cmd, opts, sizes, free)
		},
	}

	cmd.Flags().IntSliceVar(&sizes, "sizes", []int{16, 32, 64}, "Sizes to allocate, in order")
	cmd.Flags().IntSliceVar(&free, "free", nil, "Indexes into --sizes to free afterwards")
	return cmd
}

func runLayout(cmd *cobra.Command, opts *rootOptions, sizes []int, free []int) error {
	for _, n := range sizes {
		if n < 0 {
			return errors.Newf("sizes must not be negative, got %d", n)
		}
	}

	freed := make(map[int]bool, len(free))
	for _, index := range free {
		if index < 0 || index >= len(sizes) {
			return errors.Newf("free index %d is out of range for %d sizes", index, len(sizes))
		}
		if freed[index] {
			return errors.Newf("free index %d is given twice", index)
		}
		freed[index] = true
	}

	src, err := newPageSource(opts.backend, opts.memLimit)
	if err != nil {
		return err
	}

	a := allocator.New(allocator.Config{
		Pages:         src,
		Logger:        opts.newLogger(cmd),
		CheckPointers: true,
	})

	ptrs := make([]unsafe.Pointer, len(sizes))
	for i, n := range sizes {
		p, err := a.TryAlloc(n)
		if err != nil {
			return errors.Wrapf(err, "allocation %d", i)
		}
		ptrs[i] = p
	}
	for _, index := range free {
		a.Free(ptrs[index])
	}

	if err := a.Validate(); err != nil {
		return errors.Wrap(err, "heap validation")
	}

	w := jwriter.NewWriter()
	obj := w.Object()
	a.PrintDetailedMap(obj)
	obj.End()
	if err := w.Error(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if _, err := out.Write(w.Bytes()); err != nil {
		return err
	}
	_, err = out.Write([]byte("\n"))
	return err
}
