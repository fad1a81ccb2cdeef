// Package logger is the module-aware structured logger used across
// lpr-ingest, built on log/slog.
//
//	log := logger.Global().Module("ingest")
//	log.Info("file ingested", logger.String("path", rel), logger.Int("persisted", n))
//
// The console sink writes text without timestamps; the file sink writes JSON
// with RFC3339 timestamps. Tests usually take a standalone logger:
//
//	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
package logger

import (
	"context"
	"time"
	"unique"
)

// LogLevel is a configured severity name.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field is a key/value pair attached to a record. Keys are interned since
// the same few dozen keys are logged for every ingested line.
type Field struct {
	Key   string
	Value any
}

func field(key string, value any) Field {
	return Field{Key: unique.Make(key).Value(), Value: value}
}

var (
	errorKey   = unique.Make("error").Value()
	moduleKey  = unique.Make("module").Value()
	traceIDKey = unique.Make("trace_id").Value()
)

// Logger is implemented by module loggers.
type Logger interface {
	Module(name string) Logger
	With(fields ...Field) Logger
	WithContext(ctx context.Context) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Log(level LogLevel, msg string, fields ...Field)

	Flush() error
}

func String(key, value string) Field { return field(key, value) }

func Int(key string, value int) Field { return field(key, value) }

func Int64(key string, value int64) Field { return field(key, value) }

func Bool(key string, value bool) Field { return field(key, value) }

// Duration is rendered rounded to milliseconds, e.g. "1.5s".
func Duration(key string, value time.Duration) Field { return field(key, value) }

// Any is for values without a typed constructor.
func Any(key string, value any) Field { return field(key, value) }

// Error always uses the key "error". A nil err yields a nil value.
func Error(err error) Field {
	if err == nil {
		return Field{Key: errorKey}
	}
	return Field{Key: errorKey, Value: err.Error()}
}
