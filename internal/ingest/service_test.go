package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anprfile/lpr-ingest/internal/testutil"
	"github.com/anprfile/lpr-ingest/internal/watcher"
)

// fakeSource is an EventSource fed by the test.
type fakeSource struct {
	events    chan watcher.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeSource(buffer int) *fakeSource {
	return &fakeSource{events: make(chan watcher.Event, buffer), done: make(chan struct{})}
}

func (f *fakeSource) Start(ctx context.Context) error {
	select {
	case <-f.done:
	case <-ctx.Done():
	}
	return nil
}

func (f *fakeSource) Events() <-chan watcher.Event { return f.events }

func (f *fakeSource) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

func (f *fakeSource) send(t *testing.T, ev watcher.Event) {
	t.Helper()
	select {
	case f.events <- ev:
	case <-time.After(testutil.DefaultTestTimeout):
		t.Fatalf("event %s not accepted", ev.Path)
	}
}

// recordingHandler reports every handled path.
type recordingHandler struct {
	paths chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{paths: make(chan string, 64)}
}

func (h *recordingHandler) OnPathCreated(_ context.Context, path string) {
	h.paths <- path
}

// blockingHandler holds every call until release is closed.
type blockingHandler struct {
	started chan string
	release chan struct{}
}

func newBlockingHandler() *blockingHandler {
	return &blockingHandler{started: make(chan string, 64), release: make(chan struct{})}
}

func (h *blockingHandler) OnPathCreated(_ context.Context, path string) {
	h.started <- path
	<-h.release
}

func startService(t *testing.T, cfg ServiceConfig, src EventSource, h PathHandler) *Service {
	t.Helper()
	s := NewService(cfg, src, h, WithServiceLogger(quietLogger()))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func receivePaths(t *testing.T, ch <-chan string, n int) []string {
	t.Helper()
	got := make([]string, 0, n)
	for range n {
		got = append(got, testutil.Receive(t, ch, testutil.DefaultTestTimeout, "path not handled"))
	}
	sort.Strings(got)
	return got
}

func TestServiceDispatchesEvents(t *testing.T) {
	src := newFakeSource(8)
	h := newRecordingHandler()
	s := startService(t, ServiceConfig{Workers: 3, QueueSize: 4}, src, h)

	for _, p := range []string{"/r/c.lpr", "/r/a.lpr", "/r/b.lpr"} {
		src.send(t, watcher.Event{Path: p})
	}

	assert.Equal(t, []string{"/r/a.lpr", "/r/b.lpr", "/r/c.lpr"}, receivePaths(t, h.paths, 3))
	require.NoError(t, s.Stop())
}

func TestServiceSuppressesRepeatedNotifications(t *testing.T) {
	src := newFakeSource(8)
	h := newRecordingHandler()
	startService(t, ServiceConfig{Workers: 1, DedupeWindow: time.Minute}, src, h)

	src.send(t, watcher.Event{Path: "/r/a.lpr"})
	src.send(t, watcher.Event{Path: "/r/a.lpr"})
	src.send(t, watcher.Event{Path: "/r/b.lpr"})

	assert.Equal(t, []string{"/r/a.lpr", "/r/b.lpr"}, receivePaths(t, h.paths, 2))
	testutil.NoReceive(t, h.paths, "repeated notification was handled")

	src.send(t, watcher.Event{Path: "/r", Overflow: true})
	src.send(t, watcher.Event{Path: "/r", Overflow: true})
	assert.Equal(t, []string{"/r", "/r"}, receivePaths(t, h.paths, 2), "rescans are never suppressed")
}

func TestServiceSuppressionWindowExpires(t *testing.T) {
	src := newFakeSource(8)
	h := newRecordingHandler()
	startService(t, ServiceConfig{Workers: 1, DedupeWindow: 20 * time.Millisecond}, src, h)

	src.send(t, watcher.Event{Path: "/r/a.lpr"})
	receivePaths(t, h.paths, 1)
	time.Sleep(50 * time.Millisecond)
	src.send(t, watcher.Event{Path: "/r/a.lpr"})
	receivePaths(t, h.paths, 1)
}

func TestServiceBackpressure(t *testing.T) {
	src := newFakeSource(0)
	h := newBlockingHandler()
	s := NewService(ServiceConfig{Workers: 1, QueueSize: 1}, src, h, WithServiceLogger(quietLogger()))
	require.NoError(t, s.Start(context.Background()))

	src.send(t, watcher.Event{Path: "/r/1.lpr"})
	assert.Equal(t, "/r/1.lpr", testutil.Receive(t, h.started, testutil.DefaultTestTimeout, "worker idle"))

	src.send(t, watcher.Event{Path: "/r/2.lpr"}) // queued
	src.send(t, watcher.Event{Path: "/r/3.lpr"}) // held by the dispatcher

	select {
	case src.events <- watcher.Event{Path: "/r/4.lpr"}:
		t.Fatal("dispatcher accepted an event while the queue was full")
	case <-time.After(testutil.QuietPeriod):
	}

	close(h.release)
	got := []string{
		testutil.Receive(t, h.started, testutil.DefaultTestTimeout, "queued path not handled"),
		testutil.Receive(t, h.started, testutil.DefaultTestTimeout, "held path not handled"),
	}
	assert.ElementsMatch(t, []string{"/r/2.lpr", "/r/3.lpr"}, got)
	require.NoError(t, s.Stop())
}

func TestServiceStopTimesOut(t *testing.T) {
	src := newFakeSource(1)
	h := newBlockingHandler()
	s := NewService(ServiceConfig{Workers: 1, StopTimeout: 50 * time.Millisecond}, src, h,
		WithServiceLogger(quietLogger()))
	require.NoError(t, s.Start(context.Background()))

	src.send(t, watcher.Event{Path: "/r/stuck.lpr"})
	testutil.Receive(t, h.started, testutil.DefaultTestTimeout, "worker idle")

	start := time.Now()
	err := s.Stop()
	require.ErrorIs(t, err, ErrStopTimeout)
	assert.Less(t, time.Since(start), testutil.DefaultTestTimeout)
	assert.ErrorIs(t, s.Stop(), ErrStopTimeout, "Stop is idempotent")

	close(h.release)
	testutil.WaitForChannel(t, testutil.Done(s.wg.Wait), testutil.DefaultTestTimeout, "worker did not exit")
}

func TestServiceStopReturnsPromptly(t *testing.T) {
	src := newFakeSource(0)
	s := NewService(ServiceConfig{Workers: 4, StopTimeout: time.Second}, src, newRecordingHandler(),
		WithServiceLogger(quietLogger()))
	require.NoError(t, s.Start(context.Background()))

	done := testutil.Done(func() { assert.NoError(t, s.Stop()) })
	testutil.WaitForChannel(t, done, time.Second, "Stop exceeded its timeout")
}

func TestServiceLifecycleErrors(t *testing.T) {
	src := newFakeSource(0)
	s := NewService(ServiceConfig{}, src, newRecordingHandler(), WithServiceLogger(quietLogger()))

	require.NoError(t, s.Stop(), "stop before start closes the source")
	_, open := <-src.done
	assert.False(t, open)
	assert.ErrorIs(t, s.Start(context.Background()), ErrStopped)

	s2 := NewService(ServiceConfig{}, newFakeSource(0), newRecordingHandler(), WithServiceLogger(quietLogger()))
	require.NoError(t, s2.Start(context.Background()))
	assert.ErrorIs(t, s2.Start(context.Background()), ErrAlreadyStarted)
	require.NoError(t, s2.Stop())
}

func TestNewServiceDefaults(t *testing.T) {
	s := NewService(ServiceConfig{}, newFakeSource(0), newRecordingHandler())
	cfg := s.Config()
	assert.Positive(t, cfg.Workers)
	assert.LessOrEqual(t, cfg.Workers, 8)
	assert.Equal(t, DefaultQueueSize, cfg.QueueSize)
	assert.Equal(t, DefaultStopTimeout, cfg.StopTimeout)
	assert.Equal(t, DefaultPattern, cfg.Pattern)
	assert.Nil(t, s.recent, "no suppression without a window")
}

func TestServiceRecoversHandlerPanic(t *testing.T) {
	src := newFakeSource(4)
	h := newRecordingHandler()
	panicky := handlerFunc(func(ctx context.Context, path string) {
		if path == "/r/bad.lpr" {
			panic("handler exploded")
		}
		h.OnPathCreated(ctx, path)
	})
	startService(t, ServiceConfig{Workers: 1}, src, panicky)

	src.send(t, watcher.Event{Path: "/r/bad.lpr"})
	src.send(t, watcher.Event{Path: "/r/good.lpr"})
	assert.Equal(t, "/r/good.lpr", testutil.Receive(t, h.paths, testutil.DefaultTestTimeout, "worker died"))
}

type handlerFunc func(ctx context.Context, path string)

func (f handlerFunc) OnPathCreated(ctx context.Context, path string) { f(ctx, path) }

// waitingHandler waits for content on the paths in awaiting.
type waitingHandler struct {
	*recordingHandler
	awaiting map[string]bool
	written  chan string
}

func (h *waitingHandler) AwaitingContent(path string) bool { return h.awaiting[path] }

func (h *waitingHandler) OnPathWritten(_ context.Context, path string) { h.written <- path }

func TestServiceRoutesWritesToWaitingHandler(t *testing.T) {
	src := newFakeSource(8)
	h := &waitingHandler{
		recordingHandler: newRecordingHandler(),
		awaiting:         map[string]bool{"/r/empty.lpr": true},
		written:          make(chan string, 8),
	}
	startService(t, ServiceConfig{Workers: 1, DedupeWindow: time.Minute}, src, h)

	src.send(t, watcher.Event{Path: "/r/empty.lpr", Op: fsnotify.Create})
	assert.Equal(t, "/r/empty.lpr", testutil.Receive(t, h.paths, testutil.DefaultTestTimeout, "create not handled"))

	src.send(t, watcher.Event{Path: "/r/full.lpr", Op: fsnotify.Write})
	src.send(t, watcher.Event{Path: "/r/empty.lpr", Op: fsnotify.Write})
	assert.Equal(t, "/r/empty.lpr", testutil.Receive(t, h.written, testutil.DefaultTestTimeout,
		"write inside the dedupe window not delivered"))
	testutil.NoReceive(t, h.written, "write to a path with content was delivered")
	testutil.NoReceive(t, h.paths, "write was handled as a create")
}

func TestServiceDropsWritesWithoutWaiter(t *testing.T) {
	src := newFakeSource(8)
	h := newRecordingHandler()
	startService(t, ServiceConfig{Workers: 1}, src, h)

	src.send(t, watcher.Event{Path: "/r/a.lpr", Op: fsnotify.Write})
	src.send(t, watcher.Event{Path: "/r/b.lpr", Op: fsnotify.Create | fsnotify.Write})
	assert.Equal(t, "/r/b.lpr", testutil.Receive(t, h.paths, testutil.DefaultTestTimeout, "create not handled"))
	testutil.NoReceive(t, h.paths, "plain write was handled")
}

func TestServiceBacklogScan(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, root, "a.lpr", sampleLine)
	b := writeFile(t, root, "cam1/b.lpr", sampleLine)
	writeFile(t, root, "cam1/notes.txt", sampleLine)

	h := newRecordingHandler()
	startService(t, ServiceConfig{
		Root:        root,
		Workers:     2,
		ScanOnStart: true,
		ScanRate:    1000,
	}, newFakeSource(0), h)

	expected := []string{a, b}
	sort.Strings(expected)
	assert.Equal(t, expected, receivePaths(t, h.paths, 2))
	testutil.NoReceive(t, h.paths, "non-matching file queued")
}

func TestServiceEndToEnd(t *testing.T) {
	root := t.TempDir()
	ds := newTestStore(t, 2)
	o := newTestOrchestrator(t, root, ds)

	writeFile(t, root, "backlog.lpr", sampleLine)

	w, err := watcher.New(root, true, watcher.WithLogger(quietLogger()))
	require.NoError(t, err)

	s := NewService(ServiceConfig{
		Root:         root,
		Workers:      2,
		DedupeWindow: 100 * time.Millisecond,
		ScanOnStart:  true,
	}, w, o, WithServiceLogger(quietLogger()))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })

	require.Eventually(t, func() bool {
		return len(storedPaths(t, ds)) == 1
	}, testutil.DefaultTestTimeout, 20*time.Millisecond, "backlog file not ingested")

	// Write then rename so the watcher sees a complete file appear.
	tmp := filepath.Join(t.TempDir(), "live.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(sampleLine+"\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cam7"), 0o755))
	require.NoError(t, os.Rename(tmp, filepath.Join(root, "cam7", "live.lpr")))

	require.Eventually(t, func() bool {
		return len(storedPaths(t, ds)) == 2
	}, testutil.DefaultTestTimeout, 20*time.Millisecond, "watched file not ingested")

	// A file created empty is read again once it is written.
	late := filepath.Join(root, "cam7", "late.lpr")
	require.NoError(t, os.WriteFile(late, nil, 0o644))
	require.Eventually(t, func() bool {
		return o.AwaitingContent(late)
	}, testutil.DefaultTestTimeout, 20*time.Millisecond, "empty file not read")
	f, err := os.OpenFile(late, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(sampleLine + "\r\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return len(storedPaths(t, ds)) == 3
	}, testutil.DefaultTestTimeout, 20*time.Millisecond, "written file not ingested")

	require.NoError(t, s.Stop())
	assert.Equal(t, []string{"backlog.lpr", "cam7/late.lpr", "cam7/live.lpr"}, storedPaths(t, ds))
}
