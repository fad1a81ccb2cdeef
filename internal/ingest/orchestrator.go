// Package ingest turns created paths into persisted plate reads. The
// Orchestrator contains failures at line, file and directory boundaries; the
// Service feeds it from an event source through a bounded worker pool.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/anprfile/lpr-ingest/internal/datastore"
	"github.com/anprfile/lpr-ingest/internal/datastore/entities"
	"github.com/anprfile/lpr-ingest/internal/errors"
	"github.com/anprfile/lpr-ingest/internal/logger"
	"github.com/anprfile/lpr-ingest/internal/lpr"
	"github.com/anprfile/lpr-ingest/internal/observability/metrics"
)

// DefaultPattern selects the files that are ingested.
const DefaultPattern = "**/*.lpr"

// emptyFileWait is how long a file that was empty when read stays eligible
// for a re-read on its next write notification.
const emptyFileWait = 10 * time.Minute

// LineReader reads a whole file as lines. fileio.Reader implements it.
type LineReader interface {
	ReadAllLines(ctx context.Context, path string) ([]string, error)
}

// Orchestrator processes created files and directories under a root.
type Orchestrator struct {
	root    string
	pattern string
	reader  LineReader
	store   datastore.Interface
	metrics metrics.Recorder
	log     logger.Logger
	now     func() time.Time
	readDir func(string) ([]os.DirEntry, error)

	// awaiting holds absolute paths of files that had no lines when read.
	awaiting *cache.Cache
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithPattern sets the doublestar pattern matched against root-relative paths.
func WithPattern(pattern string) OrchestratorOption {
	return func(o *Orchestrator) {
		if pattern != "" {
			o.pattern = pattern
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(m metrics.Recorder) OrchestratorOption {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithLogger replaces the ingest module logger.
func WithLogger(l logger.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock replaces time.Now for CreatedAt stamps.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an Orchestrator. root is made absolute; relative
// record paths are computed against it.
func NewOrchestrator(root string, reader LineReader, store datastore.Interface, opts ...OrchestratorOption) (*Orchestrator, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.New(err).
			Component("ingest").
			Category(errors.CategoryConfiguration).
			Context("root", root).
			Build()
	}

	o := &Orchestrator{
		root:    abs,
		pattern: DefaultPattern,
		reader:  reader,
		store:   store,
		metrics: metrics.NoOpRecorder{},
		log:     logger.Global().Module("ingest"),
		now:     time.Now,
		readDir: os.ReadDir,

		// No janitor goroutine; expired entries are purged on insert.
		awaiting: cache.New(emptyFileWait, 0),
	}
	for _, opt := range opts {
		opt(o)
	}
	if !doublestar.ValidatePattern(o.pattern) {
		return nil, errors.Newf("invalid ingest pattern %q", o.pattern).
			Component("ingest").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return o, nil
}

// Root returns the absolute root.
func (o *Orchestrator) Root() string { return o.root }

// Pattern returns the ingest pattern.
func (o *Orchestrator) Pattern() string { return o.pattern }

// RelPath returns path relative to the root with forward slashes.
func (o *Orchestrator) RelPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(o.root, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", abs, o.root)
	}
	return filepath.ToSlash(rel), nil
}

// Matches reports whether path is under the root and matches the pattern.
func (o *Orchestrator) Matches(path string) bool {
	rel, err := o.RelPath(path)
	if err != nil {
		return false
	}
	ok, err := doublestar.Match(o.pattern, rel)
	return err == nil && ok
}

// OnPathCreated handles one created path. Directories are traversed, matching
// files ingested, anything else ignored. Failures are logged, never returned.
func (o *Orchestrator) OnPathCreated(ctx context.Context, path string) {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		o.log.Warn("created path vanished before processing",
			logger.String("path", path), logger.Error(err))
	case info.IsDir():
		o.ProcessDirectoryRecursive(ctx, path)
	case o.Matches(path):
		if _, err := o.ProcessFile(ctx, path); err != nil {
			o.log.Error("file not ingested", logger.String("path", path), logger.Error(err))
		}
	default:
		o.log.Debug("ignoring non-matching file", logger.String("path", path))
	}
}

// AwaitingContent reports whether path was empty when last read and has not
// been re-read since.
func (o *Orchestrator) AwaitingContent(path string) bool {
	_, ok := o.awaiting.Get(path)
	return ok
}

// OnPathWritten re-reads a file that was empty when it was created. Writes to
// any other file are ignored.
func (o *Orchestrator) OnPathWritten(ctx context.Context, path string) {
	if !o.AwaitingContent(path) {
		return
	}
	o.awaiting.Delete(path)
	if _, err := o.ProcessFile(ctx, path); err != nil {
		o.log.Error("file not ingested", logger.String("path", path), logger.Error(err))
	}
}

// ProcessDirectoryRecursive ingests matching files directly in dir in lexical
// order, then descends into each subdirectory. A failing subdirectory is
// logged and skipped.
func (o *Orchestrator) ProcessDirectoryRecursive(ctx context.Context, dir string) ScanSummary {
	start := time.Now()
	var sum ScanSummary

	if err := o.walkDir(ctx, dir, &sum); err != nil {
		sum.DirsFailed++
		o.log.Error("directory not processed", logger.String("dir", dir), logger.Error(err))
	}

	sum.Duration = time.Since(start)
	o.metrics.RecordScan(sum.Duration.Seconds())
	o.log.Info("directory processed",
		logger.String("dir", dir),
		logger.Int("files", sum.FilesSeen),
		logger.Int("files_failed", sum.FilesFailed),
		logger.Int("dirs_failed", sum.DirsFailed),
		logger.Int("persisted", sum.Persisted),
		logger.Duration("elapsed", sum.Duration))
	return sum
}

func (o *Orchestrator) walkDir(ctx context.Context, dir string, sum *ScanSummary) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r, "walk_dir", dir)
		}
	}()

	entries, err := o.readDir(dir)
	if err != nil {
		return errors.New(err).
			Component("ingest").
			Category(errors.CategoryFileIO).
			Context("operation", "read_dir").
			Context("dir", dir).
			Build()
	}

	var subdirs []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			subdirs = append(subdirs, path)
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if !o.Matches(path) {
			continue
		}
		sum.FilesSeen++
		res, err := o.ProcessFile(ctx, path)
		sum.add(res)
		if err != nil {
			sum.FilesFailed++
			o.log.Error("file not ingested", logger.String("path", path), logger.Error(err))
		}
	}

	for _, sub := range subdirs {
		if ctx.Err() != nil {
			return nil
		}
		if err := o.walkDir(ctx, sub, sum); err != nil {
			sum.DirsFailed++
			o.log.Error("subdirectory not processed", logger.String("dir", sub), logger.Error(err))
		}
	}
	return nil
}

// ProcessFile reads path and ingests each line independently. The returned
// error is a file-level failure: unreadable file, unavailable store, or a
// panic outside line processing.
func (o *Orchestrator) ProcessFile(ctx context.Context, path string) (res FileResult, err error) {
	start := time.Now()
	ctx = logger.WithTraceID(ctx, uuid.NewString())
	log := o.log.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			err = panicError(r, "process_file", path)
		}
		res.Duration = time.Since(start)
		outcome := metrics.FileProcessed
		switch {
		case errors.Is(err, errReadFailed):
			outcome = metrics.FileReadFailed
		case err != nil:
			outcome = metrics.FileFailed
		}
		o.metrics.RecordFile(outcome, res.Duration.Seconds())
	}()

	rel, err := o.RelPath(path)
	if err != nil {
		return res, errors.New(err).
			Component("ingest").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}
	res.Path = rel
	log = log.With(logger.String("path", rel))

	lines, err := o.reader.ReadAllLines(ctx, path)
	if err != nil {
		return res, fmt.Errorf("%w: %w", errReadFailed, err)
	}
	res.Lines = len(lines)
	log.Debug("file read", logger.Int("lines", len(lines)))
	if len(lines) == 0 {
		o.awaiting.DeleteExpired()
		o.awaiting.SetDefault(path, struct{}{})
		log.Debug("file is empty, waiting for a write")
		return res, nil
	}

	h, err := o.store.Acquire(ctx)
	if err != nil {
		return res, err
	}
	defer h.Release()
	gate := NewDedupGate(h)

	for i, line := range lines {
		if ctx.Err() != nil {
			log.Warn("file processing interrupted", logger.Int("line", i+1))
			break
		}
		o.processLine(ctx, log.With(logger.Int("line", i+1)), h, gate, line, rel, &res)
	}

	log.Info("file processed",
		logger.Int("lines", res.Lines),
		logger.Int("persisted", res.Persisted),
		logger.Int("duplicates", res.Duplicates),
		logger.Int("rejected", res.Rejected+res.Empty),
		logger.Int("invalid", res.Invalid),
		logger.Int("failed", res.Failed+res.Conflicts))
	return res, nil
}

// errReadFailed marks a failure to read the file itself.
var errReadFailed = errors.NewStd("read failed")

func (o *Orchestrator) processLine(ctx context.Context, log logger.Logger, h datastore.Handle, gate *DedupGate, line, rel string, res *FileResult) {
	defer func() {
		if r := recover(); r != nil {
			res.record(o.metrics, metrics.LineFailed)
			log.Error("panic while processing line",
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())))
		}
	}()

	log.Debug("processing line")

	cand, err := lpr.ParseLine(line, rel)
	if err != nil {
		switch lpr.ReasonOf(err) {
		case lpr.EmptyLine:
			res.record(o.metrics, metrics.LineEmpty)
			log.Debug("skipping empty line")
		default:
			res.record(o.metrics, metrics.LineRejected)
			log.Warn("rejecting malformed line", logger.Error(err))
		}
		return
	}

	for _, field := range cand.ConversionFailures {
		res.ConversionFailures++
		o.metrics.RecordLine(metrics.LineConversion)
		log.Warn("could not convert field to a number", logger.String("field", field))
	}

	exists, err := gate.Exists(ctx, rel)
	if err != nil {
		res.record(o.metrics, metrics.LineFailed)
		log.Error("duplicate check failed", logger.Error(err))
		return
	}
	if exists {
		res.record(o.metrics, metrics.LineDuplicate)
		log.Info("record already exists, skipping")
		return
	}

	cand.Stamp(o.now())
	if fieldErrs := lpr.Validate(cand); len(fieldErrs) > 0 {
		for _, fe := range fieldErrs {
			log.Warn("validation failed",
				logger.String("field", fe.Field),
				logger.String("reason", fe.Message))
		}
		res.record(o.metrics, metrics.LineInvalid)
		return
	}

	err = h.Save(ctx, toEntity(cand))
	switch {
	case errors.Is(err, datastore.ErrDuplicateKey):
		res.record(o.metrics, metrics.LineConflict)
		log.Warn("record was stored concurrently, skipping", logger.Error(err))
	case err != nil:
		res.record(o.metrics, metrics.LineFailed)
		log.Error("failed to persist record", logger.Error(err))
	default:
		res.record(o.metrics, metrics.LinePersisted)
		log.Info("record persisted",
			logger.String("reg_number", cand.RegNumber),
			logger.String("camera", cand.CameraName))
	}
}

func toEntity(c *lpr.Candidate) *entities.PlateRead {
	return &entities.PlateRead{
		CountryOfVehicle: c.CountryOfVehicle,
		RegNumber:        c.RegNumber,
		ConfidenceLevel:  c.ConfidenceLevel,
		CameraName:       c.CameraName,
		Date:             c.Date,
		Time:             c.Time,
		ImageFilename:    c.ImageFilename,
		Path:             c.Path,
		CreatedAt:        c.CreatedAt,
	}
}

func panicError(r any, operation, path string) error {
	return errors.Newf("panic: %v", r).
		Component("ingest").
		Category(errors.CategoryProcessing).
		Priority(errors.PriorityHigh).
		Context("operation", operation).
		Context("path", path).
		Context("stack", string(debug.Stack())).
		Build()
}
