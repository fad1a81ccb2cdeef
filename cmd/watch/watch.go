// Package watch implements the long-running ingest command.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/anprfile/lpr-ingest/internal/app"
	"github.com/anprfile/lpr-ingest/internal/ingest"
	"github.com/anprfile/lpr-ingest/internal/logger"
	"github.com/anprfile/lpr-ingest/internal/observability"
	"github.com/anprfile/lpr-ingest/internal/watcher"
)

// Command creates the watch command.
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a directory tree and ingest .lpr files as they appear",
		Long: `Watch the configured root directory, including subdirectories created
later, and ingest every matching file. Existing files are ingested first
unless --scan-on-start=false. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), ctx.App)
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}

	return cmd
}

// setupFlags defines flags specific to the watch command.
func setupFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.StringP("root", "r", "", "Directory tree to watch")
	flags.String("pattern", ingest.DefaultPattern, "Doublestar pattern of files to ingest, relative to the root")
	flags.IntP("workers", "w", 0, "Worker goroutines, 0 selects the CPU count capped at 8")
	flags.Bool("scan-on-start", true, "Ingest existing files before processing events")
	flags.Bool("metrics", false, "Serve Prometheus metrics")
	flags.String("metrics-listen", "127.0.0.1:9464", "Metrics listen address")

	return app.BindFlags(flags, map[string]string{
		"watch.root":        "root",
		"watch.pattern":     "pattern",
		"ingest.workers":    "workers",
		"watch.scanonstart": "scan-on-start",
		"metrics.enabled":   "metrics",
		"metrics.listen":    "metrics-listen",
	})
}

// Run watches the configured root until ctx is cancelled or the metrics
// endpoint fails.
func Run(ctx context.Context, a *app.App) error {
	log := logger.Global().Module("watch")

	root, err := filepath.Abs(a.Settings.Watch.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve watch root: %w", err)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return fmt.Errorf("failed to create watch root: %w", err)
	}

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

	w, err := watcher.New(root, a.Settings.Watch.Recursive)
	if err != nil {
		return err
	}

	svc := ingest.NewService(a.ServiceConfig(root), w, orch,
		ingest.WithServiceRecorder(a.Recorder()))

	g, gctx := errgroup.WithContext(ctx)
	if err := svc.Start(gctx); err != nil {
		_ = w.Close()
		return err
	}

	if a.Metrics != nil {
		endpoint, err := observability.NewEndpoint(&a.Settings.Metrics, a.Metrics)
		if err != nil {
			_ = svc.Stop()
			return err
		}
		g.Go(func() error { return endpoint.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		return svc.Stop()
	})

	log.Info("watching for lpr files",
		logger.String("root", root),
		logger.String("pattern", orch.Pattern()),
		logger.String("datastore", store.Backend()))

	return g.Wait()
}
