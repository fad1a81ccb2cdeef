// Package app wires configuration, logging, telemetry, metrics and storage
// into the components used by the CLI commands.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/anprfile/lpr-ingest/internal/buildinfo"
	"github.com/anprfile/lpr-ingest/internal/conf"
	"github.com/anprfile/lpr-ingest/internal/datastore"
	"github.com/anprfile/lpr-ingest/internal/fileio"
	"github.com/anprfile/lpr-ingest/internal/ingest"
	"github.com/anprfile/lpr-ingest/internal/logger"
	"github.com/anprfile/lpr-ingest/internal/observability"
	"github.com/anprfile/lpr-ingest/internal/observability/metrics"
	"github.com/anprfile/lpr-ingest/internal/telemetry"
)

// App holds the process-wide components built from Settings.
type App struct {
	Settings *conf.Settings
	Build    *buildinfo.Context
	Logger   *logger.CentralLogger
	Metrics  *observability.Metrics // nil when metrics are disabled
	Reporter *telemetry.Reporter    // nil when Sentry is disabled
}

// Option configures Bootstrap.
type Option func(*options)

type options struct {
	loggerOpts    []logger.CentralLoggerOption
	telemetryOpts []telemetry.Option
}

// WithLoggerOptions passes options to the central logger.
func WithLoggerOptions(opts ...logger.CentralLoggerOption) Option {
	return func(o *options) { o.loggerOpts = append(o.loggerOpts, opts...) }
}

// WithTelemetryOptions passes options to telemetry.Init.
func WithTelemetryOptions(opts ...telemetry.Option) Option {
	return func(o *options) { o.telemetryOpts = append(o.telemetryOpts, opts...) }
}

// Bootstrap loads configuration and installs the global logger, the Sentry
// reporter and, when enabled, the metrics registry.
func Bootstrap(configFile string, build *buildinfo.Context, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	settings, err := conf.Load(configFile)
	if err != nil {
		return nil, err
	}

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging, o.loggerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	a := &App{Settings: settings, Build: build, Logger: central}
	log := a.log()

	topts := append([]telemetry.Option{telemetry.WithRelease(build.GetVersion())}, o.telemetryOpts...)
	a.Reporter, err = telemetry.Init(&settings.Sentry, topts...)
	if err != nil {
		log.Warn("sentry telemetry unavailable", logger.Error(err))
	}

	if settings.Metrics.Enabled {
		a.Metrics, err = observability.NewMetrics()
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	log.Info("lpr-ingest starting",
		logger.String("version", build.GetVersion()),
		logger.String("build_date", build.GetBuildDate()),
		logger.String("config_file", conf.ConfigFileUsed()))
	return a, nil
}

// Recorder returns the ingest metrics, or a no-op recorder when disabled.
func (a *App) Recorder() metrics.Recorder {
	if a.Metrics == nil {
		return metrics.NoOpRecorder{}
	}
	return a.Metrics.Ingest
}

// OpenStore opens the configured backend and migrates its schema.
func (a *App) OpenStore(ctx context.Context) (*datastore.DataStore, error) {
	var opts []datastore.Option
	if a.Metrics != nil {
		opts = append(opts, datastore.WithMetrics(a.Metrics.Datastore))
	}

	store, err := datastore.Open(&a.Settings.Datastore, opts...)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureInitialized(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	if a.Metrics != nil {
		a.Metrics.Datastore.SetHandlesMax(store.MaxHandles())
	}
	return store, nil
}

// NewReader builds the retrying file reader. Retries are counted in metrics.
func (a *App) NewReader() *fileio.Reader {
	rec := a.Recorder()
	cfg := fileio.RetryConfig{
		MaxRetries:   a.Settings.Reader.MaxRetries,
		InitialDelay: a.Settings.Reader.InitialDelay,
		MaxJitter:    a.Settings.Reader.MaxJitter,
	}
	return fileio.NewReader(cfg, fileio.WithRetryHook(func(string, int, time.Duration, error) {
		rec.RecordReadRetry()
	}))
}

// NewOrchestrator builds an orchestrator over the configured watch root.
func (a *App) NewOrchestrator(store datastore.Interface) (*ingest.Orchestrator, error) {
	root, err := filepath.Abs(a.Settings.Watch.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch root: %w", err)
	}
	return ingest.NewOrchestrator(root, a.NewReader(), store,
		ingest.WithPattern(a.Settings.Watch.Pattern),
		ingest.WithRecorder(a.Recorder()))
}

// ServiceConfig maps settings onto the ingest service configuration.
func (a *App) ServiceConfig(root string) ingest.ServiceConfig {
	s := a.Settings
	return ingest.ServiceConfig{
		Root:         root,
		Pattern:      s.Watch.Pattern,
		Workers:      s.Ingest.Workers,
		QueueSize:    s.Ingest.QueueSize,
		DedupeWindow: s.Ingest.DedupeWindow,
		StopTimeout:  s.Ingest.StopTimeout,
		ScanOnStart:  s.Watch.ScanOnStart,
		ScanRate:     s.Ingest.ScanRate,
	}
}

// Close flushes telemetry and closes the log outputs.
func (a *App) Close() error {
	if a.Reporter != nil {
		a.Reporter.Close(telemetry.DefaultFlushTimeout)
	}
	if a.Logger != nil {
		return a.Logger.Close()
	}
	return nil
}

func (a *App) log() logger.Logger {
	return a.Logger.Module("app")
}

// Context is shared by the CLI commands. App is set by the root command
// before a subcommand runs.
type Context struct {
	ConfigFile string
	Build      *buildinfo.Context
	App        *App
}

// AnnotationSkipBootstrap marks commands that run without loading configuration.
const AnnotationSkipBootstrap = "lpr-ingest/skip-bootstrap"

// SkipsBootstrap reports whether cmd is annotated with AnnotationSkipBootstrap.
func SkipsBootstrap(cmd *cobra.Command) bool {
	_, ok := cmd.Annotations[AnnotationSkipBootstrap]
	return ok
}

// Close closes the bootstrapped App, if any.
func (c *Context) Close() error {
	if c.App == nil {
		return nil
	}
	return c.App.Close()
}

// BindFlags binds each config key to the named flag in fs. A flag set on the
// command line overrides the environment and the config file.
func BindFlags(fs *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		flag := fs.Lookup(name)
		if flag == nil {
			return fmt.Errorf("unknown flag %q for config key %s", name, key)
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}
