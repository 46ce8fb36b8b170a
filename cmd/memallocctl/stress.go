package main

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"

	"github.com/QuangTung97/memalloc/allocator"
	"github.com/QuangTung97/memalloc/internal/workload"
)

func newStressCmd(opts *rootOptions) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run the allocation workloads and check the heap",
		Long: `The stress command runs every allocation workload against a fresh
allocator, checks the contents of each allocation, validates the heap and
prints what the allocator did.

Example:
  memallocctl stress
  memallocctl stress --count 50000 --backend buddy
  memallocctl stress --backend mmap --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(cmd, opts, count)
		},
	}

	cmd.Flags().IntVar(&count, "count", 10000, "Number of allocations in the stress workload")
	return cmd
}

type stressReport struct {
	backend   string
	results   []workload.Result
	stats     allocator.Stats
	livePages int
}

func runStress(cmd *cobra.Command, opts *rootOptions, count int) error {
	if count <= 0 {
		return errors.Newf("count must be positive, got %d", count)
	}

	src, err := newPageSource(opts.backend, opts.memLimit)
	if err != nil {
		return err
	}

	logger := opts.newLogger(cmd)
	a := allocator.New(allocator.Config{
		Pages:         src,
		Logger:        logger,
		CheckPointers: true,
	})

	results, err := workload.All(a, count)
	if err != nil {
		return errors.Wrapf(err, "stress on %s backend", opts.backend)
	}
	if err := a.Validate(); err != nil {
		return errors.Wrap(err, "heap validation")
	}
	logger.Debug("stress finished", slog.Int("workloads", len(results)))

	report := stressReport{
		backend:   opts.backend,
		results:   results,
		stats:     a.Stats(),
		livePages: src.LivePages(),
	}

	if opts.jsonOut {
		return writeStressJSON(cmd, report)
	}
	writeStressText(cmd, report)
	return nil
}

func writeStressText(cmd *cobra.Command, r stressReport) {
	p := newPrinter(cmd)

	p.printf("Backend: %s\n\n", r.backend)

	p.printf("Workloads:\n")
	for _, res := range r.results {
		p.printf("  %-16s %d allocations, %d frees, %d bytes\n",
			res.Name, res.Allocations, res.Frees, res.Bytes)
	}

	p.printf("\nAllocator:\n")
	p.printf("  Blocks created: %d\n", r.stats.BlocksCreated)
	p.printf("  Blocks released: %d\n", r.stats.BlocksReleased)
	p.printf("  Live blocks: %d\n", r.stats.Blocks)
	p.printf("  Failed page requests: %d\n", r.stats.FailedPageRequests)
	p.printf("  Live pages: %d\n", r.livePages)
}

func writeStressJSON(cmd *cobra.Command, r stressReport) error {
	w := jwriter.NewWriter()
	obj := w.Object()
	obj.Name("backend").String(r.backend)

	arr := obj.Name("workloads").Array()
	for _, res := range r.results {
		item := arr.Object()
		item.Name("name").String(res.Name)
		item.Name("allocations").Int(res.Allocations)
		item.Name("frees").Int(res.Frees)
		item.Name("bytes").Int(int(res.Bytes))
		item.End()
	}
	arr.End()

	stats := obj.Name("stats").Object()
	stats.Name("blocksCreated").Int(int(r.stats.BlocksCreated))
	stats.Name("blocksReleased").Int(int(r.stats.BlocksReleased))
	stats.Name("liveBlocks").Int(r.stats.Blocks)
	stats.Name("failedPageRequests").Int(int(r.stats.FailedPageRequests))
	stats.End()

	obj.Name("livePages").Int(r.livePages)
	obj.End()

	if err := w.Error(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if _, err := out.Write(w.Bytes()); err != nil {
		return err
	}
	_, err := out.Write([]byte("\n"))
	return err
}
