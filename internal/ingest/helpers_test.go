package ingest

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anprfile/lpr-ingest/internal/conf"
	"github.com/anprfile/lpr-ingest/internal/datastore"
	"github.com/anprfile/lpr-ingest/internal/datastore/entities"
	"github.com/anprfile/lpr-ingest/internal/fileio"
	"github.com/anprfile/lpr-ingest/internal/logger"
)

const sampleLine = `GB\rAB12CDE\rHIGH\rCAM1\20240610\1530\img001.jpg`

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newTestStore opens an initialized SQLite store that is closed with the test.
func newTestStore(t *testing.T, maxHandles int) *datastore.DataStore {
	t.Helper()
	ds, err := datastore.OpenSQLite(&conf.DatastoreSettings{
		MaxHandles: maxHandles,
		SQLite:     conf.SQLiteSettings{Enabled: true, Path: filepath.Join(t.TempDir(), "lpr.db")},
	}, datastore.WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	require.NoError(t, ds.EnsureInitialized(context.Background()))
	return ds
}

func newTestReader() *fileio.Reader {
	return fileio.NewReader(fileio.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond},
		fileio.WithLogger(quietLogger()))
}

func newTestOrchestrator(t *testing.T, root string, store datastore.Interface, opts ...OrchestratorOption) *Orchestrator {
	t.Helper()
	opts = append([]OrchestratorOption{WithLogger(quietLogger())}, opts...)
	o, err := NewOrchestrator(root, newTestReader(), store, opts...)
	require.NoError(t, err)
	return o
}

// writeFile creates root/rel with the given lines.
func writeFile(t *testing.T, root, rel string, lines ...string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	content := ""
	for _, l := range lines {
		content += l + "\r\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func storedRecords(t *testing.T, ds *datastore.DataStore) []entities.PlateRead {
	t.Helper()
	var recs []entities.PlateRead
	require.NoError(t, ds.DB.Order("path").Find(&recs).Error)
	return recs
}

func storedPaths(t *testing.T, ds *datastore.DataStore) []string {
	t.Helper()
	var paths []string
	for _, r := range storedRecords(t, ds) {
		paths = append(paths, r.Path)
	}
	return paths
}
