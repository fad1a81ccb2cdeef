// Package datastore persists plate reads through GORM on SQLite or MySQL.
package datastore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anprfile/lpr-ingest/internal/datastore/entities"
	"github.com/anprfile/lpr-ingest/internal/errors"
	"github.com/anprfile/lpr-ingest/internal/logger"
)

const tableFiles = "files"

// Sentinel errors
var (
	// ErrDuplicateKey is returned by Save when a record with the same path exists.
	ErrDuplicateKey = errors.NewStd("duplicate key: path already ingested")
	// ErrNotInitialized is returned by Acquire before EnsureInitialized succeeded.
	ErrNotInitialized = errors.NewStd("datastore not initialized")
	// ErrClosed is returned after Close.
	ErrClosed = errors.NewStd("datastore closed")
	// ErrHandleReleased is returned by a handle used after Release.
	ErrHandleReleased = errors.NewStd("datastore handle released")
)

// Interface is the repository contract used by the ingest pipeline.
type Interface interface {
	// EnsureInitialized creates the schema. It is idempotent.
	EnsureInitialized(ctx context.Context) error
	// Acquire returns a handle, blocking while all handles are in use.
	Acquire(ctx context.Context) (Handle, error)
	Close() error
}

// Handle is a bounded unit of repository access, held for one file.
type Handle interface {
	ExistsByPath(ctx context.Context, relPath string) (bool, error)
	// Save inserts rec. A record with the same Path yields ErrDuplicateKey.
	Save(ctx context.Context, rec *entities.PlateRead) error
	// Release returns the handle. Further calls are no-ops.
	Release()
}

// Metrics receives datastore measurements.
type Metrics interface {
	RecordDbOperation(operation, table, status string)
	RecordDbOperationDuration(operation, table string, seconds float64)
	RecordDbOperationError(operation, table, errorType string)
	SetHandlesInUse(n int)
}

// DataStore implements Interface on a GORM connection.
type DataStore struct {
	DB         *gorm.DB
	backend    string
	location   string
	maxHandles int64
	handles    *semaphore.Weighted
	inUse      atomic.Int64
	metrics    Metrics
	log        logger.Logger

	initMu      sync.Mutex
	initialized atomic.Bool
	closed      atomic.Bool
}

// Option configures a DataStore.
type Option func(*DataStore)

// WithMetrics attaches a metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(ds *DataStore) { ds.metrics = m }
}

// WithLogger replaces the datastore module logger.
func WithLogger(l logger.Logger) Option {
	return func(ds *DataStore) {
		if l != nil {
			ds.log = l
		}
	}
}

// newDataStore wraps an open connection. maxHandles below 1 is treated as 1.
func newDataStore(db *gorm.DB, backend, location string, maxHandles int, opts ...Option) *DataStore {
	if maxHandles < 1 {
		maxHandles = 1
	}
	ds := &DataStore{
		DB:         db,
		backend:    backend,
		location:   location,
		maxHandles: int64(maxHandles),
		handles:    semaphore.NewWeighted(int64(maxHandles)),
		log:        getLogger(),
	}
	for _, opt := range opts {
		opt(ds)
	}
	return ds
}

// Backend returns "sqlite" or "mysql".
func (ds *DataStore) Backend() string { return ds.backend }

// Location returns a loggable description of the store without credentials.
func (ds *DataStore) Location() string { return ds.location }

// EnsureInitialized migrates the PlateRead schema. Concurrent and repeated
// calls are safe.
func (ds *DataStore) EnsureInitialized(ctx context.Context) error {
	if ds.closed.Load() {
		return stateError(ErrClosed, "ensure_initialized")
	}
	if ds.initialized.Load() {
		return nil
	}

	ds.initMu.Lock()
	defer ds.initMu.Unlock()
	if ds.initialized.Load() {
		return nil
	}

	start := time.Now()
	if err := ds.DB.WithContext(ctx).AutoMigrate(&entities.PlateRead{}); err != nil {
		ds.recordError("migrate", err)
		return dbError(fmt.Errorf("failed to migrate %s schema: %w", ds.backend, err),
			"auto_migrate", errors.PriorityCritical,
			"backend", ds.backend,
			"location", ds.location)
	}
	ds.record("migrate", start)

	ds.initialized.Store(true)
	ds.log.Info("datastore initialized",
		logger.String("backend", ds.backend),
		logger.String("location", ds.location),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// Acquire blocks until a handle slot is free or ctx is done.
func (ds *DataStore) Acquire(ctx context.Context) (Handle, error) {
	if ds.closed.Load() {
		return nil, stateError(ErrClosed, "acquire")
	}
	if !ds.initialized.Load() {
		return nil, stateError(ErrNotInitialized, "acquire")
	}

	if err := ds.handles.Acquire(ctx, 1); err != nil {
		return nil, errors.New(fmt.Errorf("acquire datastore handle: %w", err)).
			Component("datastore").
			Category(errors.CategoryCancellation).
			Context("operation", "acquire").
			Build()
	}

	ds.setInUse(ds.inUse.Add(1))
	return &handle{ds: ds}, nil
}

// MaxHandles returns the handle bound.
func (ds *DataStore) MaxHandles() int {
	return int(ds.maxHandles)
}

// HandlesInUse returns the number of handles currently acquired.
func (ds *DataStore) HandlesInUse() int {
	return int(ds.inUse.Load())
}

// Close refuses further handles and closes the connection. It is idempotent.
func (ds *DataStore) Close() error {
	if !ds.closed.CompareAndSwap(false, true) {
		return nil
	}

	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "close", errors.PriorityMedium, "backend", ds.backend)
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", errors.PriorityMedium, "backend", ds.backend)
	}

	ds.log.Debug("datastore closed", logger.String("backend", ds.backend))
	return nil
}

func (ds *DataStore) release() {
	ds.setInUse(ds.inUse.Add(-1))
	ds.handles.Release(1)
}

func (ds *DataStore) setInUse(n int64) {
	if ds.metrics != nil {
		ds.metrics.SetHandlesInUse(int(n))
	}
}

func (ds *DataStore) record(operation string, start time.Time) {
	if ds.metrics == nil {
		return
	}
	ds.metrics.RecordDbOperation(operation, tableFiles, "success")
	ds.metrics.RecordDbOperationDuration(operation, tableFiles, time.Since(start).Seconds())
}

func (ds *DataStore) recordError(operation string, err error) {
	if ds.metrics == nil {
		return
	}
	ds.metrics.RecordDbOperation(operation, tableFiles, "error")
	ds.metrics.RecordDbOperationError(operation, tableFiles, categorizeError(err))
}

// handle is a semaphore slot bound to the store.
type handle struct {
	ds       *DataStore
	once     sync.Once
	released atomic.Bool
}

func (h *handle) ExistsByPath(ctx context.Context, relPath string) (bool, error) {
	if h.released.Load() {
		return false, stateError(ErrHandleReleased, "exists_by_path")
	}

	start := time.Now()
	var count int64
	err := h.ds.DB.WithContext(ctx).
		Model(&entities.PlateRead{}).
		Where("path = ?", relPath).
		Count(&count).Error
	if err != nil {
		h.ds.recordError("exists", err)
		return false, dbError(err, "exists_by_path", errors.PriorityMedium, "path", relPath)
	}
	h.ds.record("exists", start)

	return count > 0, nil
}

// Save inserts rec with ON CONFLICT(path) DO NOTHING. Zero affected rows, or
// a unique violation from the driver, is reported as ErrDuplicateKey.
func (h *handle) Save(ctx context.Context, rec *entities.PlateRead) error {
	if h.released.Load() {
		return stateError(ErrHandleReleased, "save")
	}
	if rec == nil {
		return validationError("record must not be nil", "record", nil)
	}
	if rec.Path == "" {
		return validationError("record path must not be empty", "path", rec.Path)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	result := h.ds.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			DoNothing: true,
		}).
		Create(rec)

	switch {
	case result.Error != nil && isUniqueViolation(result.Error):
		h.ds.recordError("insert", ErrDuplicateKey)
		return conflictError(fmt.Errorf("%w: %s: %w", ErrDuplicateKey, rec.Path, result.Error),
			"save", "unique_path", "path", rec.Path)
	case result.Error != nil:
		h.ds.recordError("insert", result.Error)
		return dbError(result.Error, "save", errors.PriorityHigh, "path", rec.Path)
	case result.RowsAffected == 0:
		h.ds.recordError("insert", ErrDuplicateKey)
		return conflictError(fmt.Errorf("%w: %s", ErrDuplicateKey, rec.Path),
			"save", "unique_path", "path", rec.Path)
	}

	h.ds.record("insert", start)
	return nil
}

func (h *handle) Release() {
	h.once.Do(func() {
		h.released.Store(true)
		h.ds.release()
	})
}

var (
	_ Interface = (*DataStore)(nil)
	_ Handle    = (*handle)(nil)
)
