package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/anprfile/lpr-ingest/internal/conf"
	"github.com/anprfile/lpr-ingest/internal/errors"
	"github.com/anprfile/lpr-ingest/internal/logger"
	"github.com/anprfile/lpr-ingest/internal/observability/metrics"
	"github.com/anprfile/lpr-ingest/internal/watcher"
)

// Default service tuning.
const (
	DefaultQueueSize    = 256
	DefaultDedupeWindow = 2 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// Service state errors.
var (
	ErrAlreadyStarted = errors.NewStd("ingest service already started")
	ErrStopped        = errors.NewStd("ingest service stopped")
	ErrStopTimeout    = errors.NewStd("ingest workers did not stop in time")
)

// EventSource produces created-path notifications. watcher.Watcher
// implements it.
type EventSource interface {
	// Start delivers events until ctx is cancelled or Close is called, then
	// closes the Events channel.
	Start(ctx context.Context) error
	Events() <-chan watcher.Event
	Close() error
}

// PathHandler processes one path taken from the queue. Orchestrator
// implements it.
type PathHandler interface {
	OnPathCreated(ctx context.Context, path string)
}

// ContentWaiter is implemented by handlers that want write notifications for
// files they read while still empty. Writes to other paths are dropped.
type ContentWaiter interface {
	AwaitingContent(path string) bool
	OnPathWritten(ctx context.Context, path string)
}

// ServiceConfig tunes the dispatcher and worker pool.
type ServiceConfig struct {
	Root         string        // absolute watched root
	Pattern      string        // doublestar pattern for the backlog scan
	Workers      int           // 0 selects NumCPU capped at 8
	QueueSize    int           // bounded queue capacity
	DedupeWindow time.Duration // 0 disables notification suppression
	StopTimeout  time.Duration
	ScanOnStart  bool
	ScanRate     float64 // backlog files per second, 0 is unlimited
}

type job struct {
	path    string
	source  string
	written bool
}

// Service dispatches events from an EventSource to a pool of workers through
// a bounded queue. A full queue blocks the dispatcher.
type Service struct {
	cfg     ServiceConfig
	source  EventSource
	handler PathHandler
	metrics metrics.Recorder
	log     logger.Logger

	recent  *cache.Cache
	limiter *rate.Limiter
	queue   chan job

	mu       sync.Mutex
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopErr  error
	stopOnce sync.Once
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceRecorder attaches a metrics recorder.
func WithServiceRecorder(m metrics.Recorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithServiceLogger replaces the service logger.
func WithServiceLogger(l logger.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService creates a stopped Service.
func NewService(cfg ServiceConfig, source EventSource, handler PathHandler, opts ...ServiceOption) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = conf.DefaultWorkers()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultPattern
	}

	limit := rate.Inf
	if cfg.ScanRate > 0 {
		limit = rate.Limit(cfg.ScanRate)
	}

	s := &Service{
		cfg:     cfg,
		source:  source,
		handler: handler,
		metrics: metrics.NoOpRecorder{},
		log:     logger.Global().Module("ingest"),
		limiter: rate.NewLimiter(limit, 1),
		queue:   make(chan job, cfg.QueueSize),
	}
	if cfg.DedupeWindow > 0 {
		// Expired entries are purged by the dispatcher, so no janitor goroutine.
		s.recent = cache.New(cfg.DedupeWindow, 0)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Service) Config() ServiceConfig { return s.cfg }

// Start launches the event source, the dispatcher, the optional backlog scan
// and the workers. It returns immediately.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Go(func() {
		if err := s.source.Start(ctx); err != nil {
			s.log.Error("event source stopped", logger.Error(err))
		}
	})

	var producers sync.WaitGroup
	producers.Go(func() { s.dispatch(ctx) })
	if s.cfg.ScanOnStart {
		producers.Go(func() { s.scanBacklog(ctx) })
	}
	s.wg.Go(func() {
		producers.Wait()
		close(s.queue)
	})

	for i := range s.cfg.Workers {
		s.wg.Go(func() { s.work(ctx, i) })
	}

	s.log.Info("ingest service started",
		logger.String("root", s.cfg.Root),
		logger.Int("workers", s.cfg.Workers),
		logger.Int("queue_size", s.cfg.QueueSize),
		logger.Bool("scan_on_start", s.cfg.ScanOnStart))
	return nil
}

// Stop closes the event source, cancels in-flight work and waits up to
// StopTimeout for all goroutines. It is idempotent.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		started := s.started
		s.stopped = true
		s.mu.Unlock()

		if err := s.source.Close(); err != nil {
			s.log.Warn("closing event source failed", logger.Error(err))
		}
		if !started {
			return
		}
		s.cancel()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			s.log.Info("ingest service stopped")
		case <-time.After(s.cfg.StopTimeout):
			s.stopErr = errors.New(ErrStopTimeout).
				Component("ingest").
				Category(errors.CategoryWorker).
				Context("timeout", s.cfg.StopTimeout.String()).
				Build()
			s.log.Error("ingest service stop timed out", logger.Duration("timeout", s.cfg.StopTimeout))
		}
	})
	return s.stopErr
}

func (s *Service) dispatch(ctx context.Context) {
	var purge <-chan time.Time
	if s.recent != nil {
		ticker := time.NewTicker(s.cfg.DedupeWindow)
		defer ticker.Stop()
		purge = ticker.C
	}

	events := s.source.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case <-purge:
			s.recent.DeleteExpired()
		case ev, ok := <-events:
			if !ok {
				return
			}
			written := ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create)
			if written {
				w, ok := s.handler.(ContentWaiter)
				if !ok || !w.AwaitingContent(ev.Path) {
					continue
				}
			}
			s.metrics.RecordEvent(metrics.SourceWatch, metrics.ActionReceived)
			if !written && !ev.Overflow && s.suppressed(ev.Path) {
				s.metrics.RecordEvent(metrics.SourceWatch, metrics.ActionSuppressed)
				s.log.Debug("suppressing repeated notification", logger.String("path", ev.Path))
				continue
			}
			if ev.Overflow {
				s.log.Warn("rescanning root after lost notifications", logger.String("root", ev.Path))
			}
			if !s.enqueue(ctx, job{path: ev.Path, source: metrics.SourceWatch, written: written}) {
				return
			}
		}
	}
}

// suppressed reports whether path was seen within the dedupe window, and
// records it otherwise.
func (s *Service) suppressed(path string) bool {
	if s.recent == nil {
		return false
	}
	if err := s.recent.Add(path, struct{}{}, cache.DefaultExpiration); err != nil {
		return true
	}
	return false
}

// enqueue blocks until the job is queued or ctx is done.
func (s *Service) enqueue(ctx context.Context, j job) bool {
	select {
	case s.queue <- j:
		s.metrics.RecordEvent(j.source, metrics.ActionEnqueued)
		s.metrics.SetQueueDepth(len(s.queue))
		return true
	case <-ctx.Done():
		s.metrics.RecordEvent(j.source, metrics.ActionDropped)
		return false
	}
}

// scanBacklog queues files already present under the root.
func (s *Service) scanBacklog(ctx context.Context) {
	start := time.Now()
	queued := 0
	err := doublestar.GlobWalk(os.DirFS(s.cfg.Root), s.cfg.Pattern, func(p string, d fs.DirEntry) error {
		if d.IsDir() {
			return nil
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		s.metrics.RecordEvent(metrics.SourceScan, metrics.ActionReceived)
		if !s.enqueue(ctx, job{path: filepath.Join(s.cfg.Root, filepath.FromSlash(p)), source: metrics.SourceScan}) {
			return ctx.Err()
		}
		queued++
		return nil
	})
	if err != nil && ctx.Err() == nil {
		s.log.Error("backlog scan failed", logger.String("root", s.cfg.Root), logger.Error(err))
	}
	s.metrics.RecordScan(time.Since(start).Seconds())
	s.log.Info("backlog scan queued files",
		logger.String("root", s.cfg.Root),
		logger.Int("files", queued),
		logger.Duration("elapsed", time.Since(start)))
}

func (s *Service) work(ctx context.Context, id int) {
	log := s.log.With(logger.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-s.queue:
			if !ok {
				return
			}
			s.metrics.SetQueueDepth(len(s.queue))
			s.handle(ctx, log, j)
		}
	}
}

func (s *Service) handle(ctx context.Context, log logger.Logger, j job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling path",
				logger.String("path", j.path),
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())))
		}
	}()
	if w, ok := s.handler.(ContentWaiter); ok && j.written {
		w.OnPathWritten(ctx, j.path)
		return
	}
	s.handler.OnPathCreated(ctx, j.path)
}
