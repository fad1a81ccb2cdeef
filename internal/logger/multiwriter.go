package logger

import (
	"context"
	"errors"
	"log/slog"
)

// fanoutHandler passes every record to each of its sinks (console, file).
type fanoutHandler []slog.Handler

func newFanoutHandler(sinks ...slog.Handler) slog.Handler {
	out := make(fanoutHandler, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range f {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle clones the record per sink so attribute groups are not shared.
//
//nolint:gocritic // slog.Handler passes the record by value
func (f fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, s := range f {
		if !s.Enabled(ctx, record.Level) {
			continue
		}
		if err := s.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(s slog.Handler) slog.Handler { return s.WithAttrs(attrs) })
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	return f.derive(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}

func (f fanoutHandler) derive(fn func(slog.Handler) slog.Handler) fanoutHandler {
	out := make(fanoutHandler, len(f))
	for i, s := range f {
		out[i] = fn(s)
	}
	return out
}
