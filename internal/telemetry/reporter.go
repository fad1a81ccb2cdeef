package telemetry

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/anprfile/lpr-ingest/internal/errors"
)

// quietCategories are per-record outcomes that are expected during normal
// operation and never reported.
var quietCategories = map[errors.ErrorCategory]bool{
	errors.CategoryValidation:   true,
	errors.CategoryFileParsing:  true,
	errors.CategoryConflict:     true,
	errors.CategoryCancellation: true,
}

// Reporter sends EnhancedErrors to a Sentry hub.
type Reporter struct {
	hub     *sentry.Hub
	enabled atomic.Bool
}

// IsEnabled implements errors.TelemetryReporter.
func (r *Reporter) IsEnabled() bool {
	return r != nil && r.enabled.Load()
}

// ShouldReport reports whether ee is worth an event.
func ShouldReport(ee *errors.EnhancedError) bool {
	if ee == nil || ee.Priority == errors.PriorityLow {
		return false
	}
	return !quietCategories[ee.Category]
}

// ReportError implements errors.TelemetryReporter.
func (r *Reporter) ReportError(ee *errors.EnhancedError) {
	if !r.IsEnabled() || !ShouldReport(ee) {
		return
	}

	event := sentry.NewEvent()
	event.Level = levelFor(ee.GetPriority())
	event.Message = errors.ScrubMessage(ee.Error())
	event.Timestamp = ee.GetTimestamp()
	event.Tags = map[string]string{
		"component": ee.GetComponent(),
		"category":  ee.GetCategory(),
	}
	event.Extra = map[string]any{
		"component":  ee.GetComponent(),
		"error_type": fmt.Sprintf("%T", ee.Err),
	}
	if op, ok := ee.GetContext()["operation"].(string); ok {
		event.Extra["operation"] = op
	}
	event.Fingerprint = []string{ee.GetComponent(), ee.GetCategory(), fmt.Sprintf("%T", ee.Err)}

	r.hub.CaptureEvent(event)
	ee.MarkReported()
}

// Close flushes pending events and detaches the reporter from the errors
// package.
func (r *Reporter) Close(timeout time.Duration) bool {
	if r == nil {
		return true
	}
	errors.ClearErrorHooks()
	r.enabled.Store(false)
	return r.hub.Flush(timeout)
}

func levelFor(priority string) sentry.Level {
	switch priority {
	case errors.PriorityCritical:
		return sentry.LevelFatal
	case errors.PriorityHigh:
		return sentry.LevelError
	case errors.PriorityLow:
		return sentry.LevelInfo
	default:
		return sentry.LevelWarning
	}
}

var _ errors.TelemetryReporter = (*Reporter)(nil)
