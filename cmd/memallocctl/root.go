package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const defaultMemLimit = 64 << 20

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	verbose  bool
	jsonOut  bool
	backend  string
	memLimit int
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "memallocctl",
		Short: "Drive the block allocator against a page backend",
		Long: `memallocctl runs allocation workloads against the block allocator and
prints statistics and chunk layouts. Blocks are built on pages taken from
the Go heap, a buddy arena or anonymous memory mappings.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log block activity at debug level")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(&opts.backend, "backend", "heap", "Page backend: heap, buddy or mmap")
	cmd.PersistentFlags().
		IntVar(&opts.memLimit, "mem-limit", defaultMemLimit, "Memory limit in bytes for the heap and buddy backends")

	cmd.AddCommand(
		newStressCmd(opts),
		newLayoutCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger writes text records to the command's error stream.
func (o *rootOptions) newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// printer formats numbers with digit grouping.
type printer struct {
	out io.Writer
	p   *message.Printer
}

func newPrinter(cmd *cobra.Command) *printer {
	return &printer{
		out: cmd.OutOrStdout(),
		p:   message.NewPrinter(language.English),
	}
}

func (p *printer) printf(format string, args ...interface{}) {
	_, _ = p.p.Fprintf(p.out, format, args...)
}
