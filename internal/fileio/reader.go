// Package fileio reads files that may still be held open by their writer.
package fileio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/anprfile/lpr-ingest/internal/errors"
	"github.com/anprfile/lpr-ingest/internal/logger"
)

const (
	readBufferSize = 64 * 1024

	// maxBackoffShift keeps InitialDelay << attempt from overflowing.
	maxBackoffShift = 20
)

var (
	// ErrReadExhausted is returned when a file could not be read. It wraps
	// the last underlying cause.
	ErrReadExhausted = errors.NewStd("file read retries exhausted")

	// errStillWriting marks an attempt during which the file size changed.
	errStillWriting = errors.NewStd("file size changed during read")
)

// RetryConfig configures the backoff between read attempts.
type RetryConfig struct {
	MaxRetries   int           // retries after the first attempt
	InitialDelay time.Duration // delay = InitialDelay * 2^attempt, attempt starting at 1
	MaxJitter    time.Duration // random [0, MaxJitter) added to each delay
}

// DefaultRetryConfig returns 5 retries starting at 500ms with up to 100ms jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   5,
		InitialDelay: 500 * time.Millisecond,
		MaxJitter:    100 * time.Millisecond,
	}
}

// File is the subset of *os.File the reader needs.
type File interface {
	io.Reader
	io.Closer
	Stat() (fs.FileInfo, error)
}

// Opener opens a file for reading.
type Opener func(name string) (File, error)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// RetryHook is called before each backoff sleep.
type RetryHook func(path string, attempt int, delay time.Duration, cause error)

// Reader reads whole files with bounded exponential backoff.
type Reader struct {
	config  RetryConfig
	open    Opener
	sleep   Sleeper
	jitter  func(max time.Duration) time.Duration
	onRetry RetryHook
	log     logger.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithOpener replaces os.Open.
func WithOpener(open Opener) Option {
	return func(r *Reader) { r.open = open }
}

// WithSleeper replaces the context-aware timer sleep.
func WithSleeper(sleep Sleeper) Option {
	return func(r *Reader) { r.sleep = sleep }
}

// WithJitter replaces the random jitter source.
func WithJitter(jitter func(max time.Duration) time.Duration) Option {
	return func(r *Reader) { r.jitter = jitter }
}

// WithRetryHook registers a callback invoked before every retry.
func WithRetryHook(hook RetryHook) Option {
	return func(r *Reader) { r.onRetry = hook }
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(log logger.Logger) Option {
	return func(r *Reader) { r.log = log }
}

// NewReader creates a Reader. Negative config values are treated as zero.
func NewReader(config RetryConfig, opts ...Option) *Reader {
	config.MaxRetries = max(config.MaxRetries, 0)
	config.InitialDelay = max(config.InitialDelay, 0)
	config.MaxJitter = max(config.MaxJitter, 0)

	r := &Reader{
		config: config,
		open:   openOS,
		sleep:  SleepContext,
		jitter: randomJitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Global().Module("fileio")
	}
	return r
}

func openOS(name string) (File, error) {
	return os.Open(name) //nolint:gosec // paths come from the watched tree
}

// SleepContext waits for d, returning ctx.Err() if ctx is done first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(maxJitter))) //nolint:gosec // jitter needs no crypto randomness
}

// Backoff returns the delay before retry number attempt (1-based) without jitter.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	shift := min(max(attempt, 0), maxBackoffShift)
	return c.InitialDelay << shift
}

// ReadAllLines returns every line of path with line terminators removed.
//
// Open and read errors other than not-exist and permission, and a file
// whose size changes during the attempt, are retried up to MaxRetries
// times. The returned error wraps ErrReadExhausted and the last cause,
// or ctx.Err() when ctx is cancelled during a backoff.
func (r *Reader) ReadAllLines(ctx context.Context, path string) ([]string, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, r.cancelled(path, attempt, err)
		}

		lines, err := r.readOnce(path)
		if err == nil {
			return lines, nil
		}

		if isTerminal(err) {
			return nil, r.exhausted(path, attempt+1, err)
		}
		if attempt >= r.config.MaxRetries {
			return nil, r.exhausted(path, attempt+1, err)
		}

		retry := attempt + 1
		delay := r.config.Backoff(retry) + r.jitter(r.config.MaxJitter)
		r.log.Warn("file read failed, retrying",
			logger.String("path", path),
			logger.Int("attempt", retry),
			logger.Duration("delay", delay),
			logger.Error(err))
		if r.onRetry != nil {
			r.onRetry(path, retry, delay, err)
		}

		if err := r.sleep(ctx, delay); err != nil {
			return nil, r.cancelled(path, retry, err)
		}
	}
}

// readOnce performs a single attempt. The file is closed on every path.
func (r *Reader) readOnce(path string) (lines []string, err error) {
	f, err := r.open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	before, err := f.Stat()
	if err != nil {
		return nil, err
	}

	// Lines are unbounded; an oversized line is the parser's to reject.
	br := bufio.NewReaderSize(f, readBufferSize)
	for {
		line, rerr := br.ReadString('\n')
		if line != "" {
			line = strings.TrimSuffix(line, "\n")
			lines = append(lines, strings.TrimSuffix(line, "\r"))
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, rerr
		}
	}

	after, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if before.Size() != after.Size() {
		return nil, fmt.Errorf("%w: %d -> %d bytes", errStillWriting, before.Size(), after.Size())
	}

	return lines, nil
}

func isTerminal(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}

func (r *Reader) exhausted(path string, attempts int, cause error) error {
	return errors.New(fmt.Errorf("%w: %s after %d attempt(s): %w", ErrReadExhausted, path, attempts, cause)).
		Component("fileio").
		Category(errors.CategoryFileIO).
		Context("operation", "read_all_lines").
		Context("attempts", attempts).
		FileContext(path, 0).
		Build()
}

func (r *Reader) cancelled(path string, attempts int, cause error) error {
	return errors.New(fmt.Errorf("read %s interrupted after %d attempt(s): %w", path, attempts, cause)).
		Component("fileio").
		Category(errors.CategoryCancellation).
		Context("operation", "read_all_lines").
		Build()
}
