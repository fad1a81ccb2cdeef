// Package watcher turns filesystem notifications under a root directory into
// path events. Directories created under the root are watched as they appear.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/anprfile/lpr-ingest/internal/errors"
	"github.com/anprfile/lpr-ingest/internal/logger"
)

// DefaultBufferSize is the capacity of the events channel.
const DefaultBufferSize = 256

// Event is a path that appeared under the watched root.
type Event struct {
	// Path is absolute.
	Path string
	Op   fsnotify.Op
	// Overflow is set when the kernel queue overflowed and events were lost.
	// Path is then the root and the whole tree should be rescanned.
	Overflow bool
}

// Watcher monitors a directory tree for created entries using OS-level
// notifications.
type Watcher struct {
	fsw       *fsnotify.Watcher
	root      string
	recursive bool
	events    chan Event
	log       logger.Logger

	mu      sync.Mutex
	watched map[string]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger replaces the watcher module logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// WithBufferSize sets the events channel capacity.
func WithBufferSize(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.events = make(chan Event, n)
		}
	}
}

// New creates a Watcher on root. With recursive set, every existing
// subdirectory is watched too. root must exist.
func New(root string, recursive bool, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, watchError(err, "resolve_root", root)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, watchError(err, "stat_root", abs)
	}
	if !info.IsDir() {
		return nil, watchError(errors.NewStd("watch root is not a directory"), "stat_root", abs)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, watchError(err, "create_watcher", abs)
	}

	w := &Watcher{
		fsw:       fsw,
		root:      abs,
		recursive: recursive,
		events:    make(chan Event, DefaultBufferSize),
		log:       logger.Global().Module("watcher"),
		watched:   make(map[string]struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.add(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	if recursive {
		w.addTree(abs)
	}
	return w, nil
}

// Root returns the absolute watched root.
func (w *Watcher) Root() string { return w.root }

// Events returns the channel of created paths. It is closed when Start returns.
func (w *Watcher) Events() <-chan Event { return w.events }

// Start forwards notifications until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	defer close(w.events)

	w.log.Info("watching directory",
		logger.String("root", w.root),
		logger.Bool("recursive", w.recursive),
		logger.Int("directories", len(w.WatchedDirs())))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.done:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.handleError(ctx, err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Create):
		if w.recursive {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				w.addTree(ev.Name)
			}
		}
		w.emit(ctx, Event{Path: ev.Name, Op: ev.Op})
	case ev.Has(fsnotify.Write):
		w.emit(ctx, Event{Path: ev.Name, Op: ev.Op})
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.forget(ev.Name)
	}
}

func (w *Watcher) handleError(ctx context.Context, err error) {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		w.log.Warn("event queue overflow, requesting rescan", logger.String("root", w.root))
		w.emit(ctx, Event{Path: w.root, Overflow: true})
		return
	}
	w.log.Warn("watcher error", logger.Error(err), logger.String("root", w.root))
}

func (w *Watcher) emit(ctx context.Context, ev Event) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	case <-w.done:
	}
}

// Close stops watching and releases the notification handle. It is idempotent.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	if err != nil {
		return watchError(err, "close", w.root)
	}
	return nil
}

// WatchedDirs returns the directories currently watched, sorted.
func (w *Watcher) WatchedDirs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	dirs := make([]string, 0, len(w.watched))
	for d := range w.watched {
		dirs = append(dirs, d)
	}
	slices.Sort(dirs)
	return dirs
}

func (w *Watcher) add(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[dir]; ok {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return watchError(err, "add_watch", dir)
	}
	w.watched[dir] = struct{}{}
	return nil
}

// addTree watches every directory below dir. Failures are logged and the
// directory skipped.
func (w *Watcher) addTree(dir string) {
	if err := w.add(dir); err != nil {
		w.log.Warn("cannot watch directory", logger.String("path", dir), logger.Error(err))
		return
	}
	err := doublestar.GlobWalk(os.DirFS(dir), "**", func(p string, d fs.DirEntry) error {
		if !d.IsDir() || p == "." {
			return nil
		}
		sub := filepath.Join(dir, filepath.FromSlash(p))
		if err := w.add(sub); err != nil {
			w.log.Warn("cannot watch directory", logger.String("path", sub), logger.Error(err))
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		w.log.Warn("directory walk failed", logger.String("path", dir), logger.Error(err))
	}
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for d := range w.watched {
		if d == path || isWithin(path, d) {
			delete(w.watched, d)
		}
	}
}

func isWithin(parent, child string) bool {
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

func watchError(err error, operation, path string) error {
	return errors.New(err).
		Component("watcher").
		Category(errors.CategoryWatcher).
		Context("operation", operation).
		Context("path", path).
		Build()
}
