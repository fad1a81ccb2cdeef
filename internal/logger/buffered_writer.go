package logger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	fileBufferSize       = 32 * 1024
	defaultFlushInterval = 5 * time.Second
	logFileMode          = 0o640
)

// errWriterClosed is returned by Write after Close.
var errWriterClosed = errors.New("log writer is closed")

// BufferedFileWriter appends to a log file through a buffer that is flushed
// on a timer and on Close.
type BufferedFileWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer

	interval  time.Duration
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// BufferedWriterOption configures a BufferedFileWriter.
type BufferedWriterOption func(*BufferedFileWriter)

// WithFlushInterval sets the background flush period. Zero disables it.
func WithFlushInterval(d time.Duration) BufferedWriterOption {
	return func(w *BufferedFileWriter) { w.interval = d }
}

// NewBufferedFileWriter opens path for appending.
func NewBufferedFileWriter(path string, opts ...BufferedWriterOption) (*BufferedFileWriter, error) {
	w := &BufferedFileWriter{interval: defaultFlushInterval, stop: make(chan struct{})}
	for _, opt := range opts {
		opt(w)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFileMode) //nolint:gosec // path from config
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	w.file = f
	w.buf = bufio.NewWriterSize(f, fileBufferSize)

	if w.interval > 0 {
		w.wg.Go(w.flushLoop)
	}
	return w, nil
}

func (w *BufferedFileWriter) flushLoop() {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			_ = w.Flush()
		}
	}
}

func (w *BufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return 0, errWriterClosed
	}
	return w.buf.Write(p)
}

// Flush hands buffered bytes to the OS without fsync.
func (w *BufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush log buffer: %w", err)
	}
	return nil
}

// Close stops the flush loop, then flushes, syncs and closes the file.
// Later calls return the first result.
func (w *BufferedFileWriter) Close() error {
	w.closeOnce.Do(func() {
		close(w.stop)
		w.wg.Wait()

		w.mu.Lock()
		defer w.mu.Unlock()
		w.closeErr = errors.Join(
			w.buf.Flush(),
			w.file.Sync(),
			w.file.Close(),
		)
		w.buf, w.file = nil, nil
	})
	return w.closeErr
}

var _ io.WriteCloser = (*BufferedFileWriter)(nil)
