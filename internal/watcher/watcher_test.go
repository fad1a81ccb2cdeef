package watcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anprfile/lpr-ingest/internal/logger"
	"github.com/anprfile/lpr-ingest/internal/testutil"
)

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

// startWatcher runs w until the test ends.
func startWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := testutil.Done(func() { _ = w.Start(ctx) })
	t.Cleanup(func() {
		cancel()
		_ = w.Close()
		testutil.WaitForChannel(t, done, testutil.DefaultTestTimeout, "watcher did not stop")
	})
}

// nextCreate waits for a create event for path, skipping unrelated events.
func nextCreate(t *testing.T, w *Watcher, path string) Event {
	t.Helper()
	for {
		ev := testutil.Receive(t, w.Events(), testutil.DefaultTestTimeout, "no event for "+path)
		if ev.Path == path && ev.Op.Has(fsnotify.Create) {
			return ev
		}
	}
}

func TestNewWatchesExistingTree(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cam1", "2024"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cam2"), 0o755))

	w, err := New(root, true, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, []string{
		root,
		filepath.Join(root, "cam1"),
		filepath.Join(root, "cam1", "2024"),
		filepath.Join(root, "cam2"),
	}, w.WatchedDirs())
}

func TestNewNonRecursive(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cam1"), 0o755))

	w, err := New(root, false, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, []string{root}, w.WatchedDirs())
	assert.Equal(t, root, w.Root())
}

func TestNewRejectsMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	file := filepath.Join(t.TempDir(), "file.lpr")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(file, true)
	require.Error(t, err)
}

func TestCreatedFileIsReported(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, true, WithLogger(quietLogger()))
	require.NoError(t, err)
	startWatcher(t, w)

	path := filepath.Join(root, "a.lpr")
	require.NoError(t, os.WriteFile(path, []byte("x\n"), 0o644))

	ev := nextCreate(t, w, path)
	assert.True(t, ev.Op.Has(fsnotify.Create))
	assert.False(t, ev.Overflow)
}

func TestWriteToExistingFileIsReported(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.lpr")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	w, err := New(root, true, WithLogger(quietLogger()))
	require.NoError(t, err)
	startWatcher(t, w)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("x\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ev := testutil.Receive(t, w.Events(), testutil.DefaultTestTimeout, "no write event")
	assert.Equal(t, path, ev.Path)
	assert.True(t, ev.Op.Has(fsnotify.Write))
	assert.False(t, ev.Op.Has(fsnotify.Create))
}

func TestNewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, true, WithLogger(quietLogger()))
	require.NoError(t, err)
	startWatcher(t, w)

	dir := filepath.Join(root, "cam3")
	require.NoError(t, os.Mkdir(dir, 0o755))
	nextCreate(t, w, dir)
	assert.Contains(t, w.WatchedDirs(), dir)

	path := filepath.Join(dir, "b.lpr")
	require.NoError(t, os.WriteFile(path, []byte("x\n"), 0o644))
	nextCreate(t, w, path)
}

func TestRemovedDirectoryIsForgotten(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "cam1")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))

	w, err := New(root, true, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer w.Close()

	w.forget(dir)
	assert.Equal(t, []string{root}, w.WatchedDirs())
}

func TestCloseStopsStart(t *testing.T) {
	w, err := New(t.TempDir(), true, WithLogger(quietLogger()))
	require.NoError(t, err)

	done := testutil.Done(func() { _ = w.Start(context.Background()) })
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	testutil.WaitForChannel(t, done, testutil.DefaultTestTimeout, "Start did not return after Close")

	_, ok := <-w.Events()
	assert.False(t, ok, "events channel is closed")
}

func TestOverflowRequestsRescan(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, false, WithLogger(quietLogger()), WithBufferSize(1))
	require.NoError(t, err)
	defer w.Close()

	w.handleError(context.Background(), fsnotify.ErrEventOverflow)
	ev := testutil.Receive(t, w.Events(), testutil.ShortTestTimeout, "no overflow event")
	assert.True(t, ev.Overflow)
	assert.Equal(t, root, ev.Path)

	w.handleError(context.Background(), os.ErrPermission)
	testutil.NoReceive(t, w.Events(), "ordinary errors are only logged")
}

func TestIsWithin(t *testing.T) {
	sep := string(filepath.Separator)
	assert.True(t, isWithin(sep+"a", sep+"a"+sep+"b"))
	assert.False(t, isWithin(sep+"a", sep+"ab"))
	assert.False(t, isWithin(sep+"a", sep+"a"))
}
