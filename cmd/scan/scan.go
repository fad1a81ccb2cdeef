// Package scan implements the one-shot backlog ingest command.
package scan

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/anprfile/lpr-ingest/internal/app"
	"github.com/anprfile/lpr-ingest/internal/errors"
	"github.com/anprfile/lpr-ingest/internal/ingest"
	"github.com/anprfile/lpr-ingest/internal/logger"
)

// ErrScanIncomplete is returned when files or directories could not be processed.
var ErrScanIncomplete = errors.NewStd("scan completed with failures")

// Command creates the scan command.
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [directory]",
		Short: "Ingest the existing .lpr files under a directory and exit",
		Long: `Walk a directory below the configured watch root and ingest every
matching file. The directory defaults to the watch root. Files that were
already ingested are reported as duplicates.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return Run(cmd.Context(), ctx.App, dir, cmd.OutOrStdout())
		},
	}

	return cmd
}

// Run ingests dir, or the watch root when dir is empty, and writes a summary to out.
func Run(ctx context.Context, a *app.App, dir string, out io.Writer) error {
	log := logger.Global().Module("scan")

	store, err := a.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("closing datastore failed", logger.Error(err))
		}
	}()

	orch, err := a.NewOrchestrator(store)
	if err != nil {
		return err
	}

	if dir == "" {
		dir = orch.Root()
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve scan directory: %w", err)
	}
	if _, err := orch.RelPath(dir); err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot scan %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cannot scan %s: not a directory", dir)
	}

	sum := orch.ProcessDirectoryRecursive(ctx, dir)
	printSummary(out, dir, sum)

	if err := ctx.Err(); err != nil {
		return err
	}
	if sum.FilesFailed > 0 || sum.DirsFailed > 0 {
		return ErrScanIncomplete
	}
	return nil
}

func printSummary(out io.Writer, dir string, sum ingest.ScanSummary) {
	bold := color.New(color.Bold)
	good := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	bad := color.New(color.FgRed)

	_, _ = bold.Fprintf(out, "Scanned %s in %s\n", dir, sum.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  files:      %d\n", sum.FilesSeen)
	fmt.Fprintf(out, "  lines:      %d\n", sum.Lines)
	_, _ = good.Fprintf(out, "  persisted:  %d\n", sum.Persisted)
	fmt.Fprintf(out, "  duplicates: %d\n", sum.Duplicates+sum.Conflicts)
	fmt.Fprintf(out, "  empty:      %d\n", sum.Empty)
	if n := sum.Rejected + sum.Invalid; n > 0 {
		_, _ = warn.Fprintf(out, "  rejected:   %d\n", n)
	}
	if n := sum.Failed + sum.FilesFailed + sum.DirsFailed; n > 0 {
		_, _ = bad.Fprintf(out, "  failures:   %d (lines %d, files %d, directories %d)\n",
			n, sum.Failed, sum.FilesFailed, sum.DirsFailed)
	}
}
