package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	// Windows hosts ship without an IANA database.
	_ "time/tzdata"
)

var (
	globalMu sync.Mutex
	global   *CentralLogger
)

// SetGlobal installs cl as the process logger. Passing nil restores the
// console fallback on the next Global call.
func SetGlobal(cl *CentralLogger) {
	globalMu.Lock()
	global = cl
	globalMu.Unlock()
}

// Global returns the process logger, creating an info-level console logger
// if none was installed.
func Global() *CentralLogger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		cfg := &LoggingConfig{}
		applyConfigDefaults(cfg)
		global = &CentralLogger{
			config:  cfg,
			tz:      time.Local,
			levels:  map[string]slog.Level{},
			handler: newTextHandler(os.Stdout, slog.LevelInfo),
		}
	}
	return global
}

type traceIDContextKey struct{}

// WithTraceID stores a correlation ID that Logger.WithContext attaches.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDContextKey{}, traceID)
}

// TraceIDFromContext returns the ID stored by WithTraceID, or "".
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceIDContextKey{}).(string)
	return id
}

// CentralLogger owns the output sinks and hands out module loggers that
// share them.
type CentralLogger struct {
	mu      sync.RWMutex
	config  *LoggingConfig
	tz      *time.Location
	console io.Writer
	file    *BufferedFileWriter
	handler slog.Handler
	levels  map[string]slog.Level
}

// CentralLoggerOption configures a CentralLogger.
type CentralLoggerOption func(*CentralLogger)

// WithConsoleWriter replaces stdout as the console sink.
func WithConsoleWriter(w io.Writer) CentralLoggerOption {
	return func(cl *CentralLogger) {
		if w != nil {
			cl.console = w
		}
	}
}

// NewCentralLogger builds the console and file sinks described by cfg.
func NewCentralLogger(cfg *LoggingConfig, opts ...CentralLoggerOption) (*CentralLogger, error) {
	if cfg == nil {
		return nil, errors.New("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz := time.Local
	if cfg.Timezone != "" && cfg.Timezone != "Local" {
		var err error
		if tz, err = time.LoadLocation(cfg.Timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone %s: %w", cfg.Timezone, err)
		}
	}

	cl := &CentralLogger{
		config:  cfg,
		tz:      tz,
		console: os.Stdout,
		levels:  make(map[string]slog.Level, len(cfg.ModuleLevels)),
	}
	for _, opt := range opts {
		opt(cl)
	}
	for module, lvl := range cfg.ModuleLevels {
		cl.levels[module] = parseLogLevel(lvl)
	}

	if err := cl.openSinks(); err != nil {
		return nil, err
	}
	return cl, nil
}

// openSinks builds a text console sink and a JSON file sink. With neither
// enabled it falls back to the console at the default level.
func (cl *CentralLogger) openSinks() error {
	var sinks []slog.Handler

	if cl.config.Console.Enabled {
		sinks = append(sinks, newTextHandler(cl.console, parseLogLevel(cl.config.Console.Level)))
	}

	if fo := cl.config.FileOutput; fo.Enabled {
		if dir := filepath.Dir(fo.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create log directory %s: %w", dir, err)
			}
		}
		w, err := NewBufferedFileWriter(fo.Path)
		if err != nil {
			return err
		}
		cl.file = w
		sinks = append(sinks, newJSONHandler(w, parseLogLevel(fo.Level), cl.tz))
	}

	switch len(sinks) {
	case 0:
		cl.handler = newTextHandler(cl.console, parseLogLevel(cl.config.DefaultLevel))
	case 1:
		cl.handler = sinks[0]
	default:
		cl.handler = newFanoutHandler(sinks...)
	}
	return nil
}

// Module returns a logger for name at its configured level.
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	level, ok := cl.levels[name]
	if !ok {
		level = parseLogLevel(cl.config.DefaultLevel)
	}
	return &moduleLogger{module: name, logger: slog.New(cl.handler), level: level}
}

// Flush pushes buffered file output to the OS.
func (cl *CentralLogger) Flush() error {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	if cl.file == nil {
		return nil
	}
	return cl.file.Flush()
}

// Close flushes and closes the log file, if any.
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.file == nil {
		return nil
	}
	err := cl.file.Close()
	cl.file = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}
