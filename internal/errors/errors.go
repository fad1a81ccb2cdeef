// Package errors wraps pipeline failures with a component, a category and
// telemetry context, and forwards them to an optional reporter.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// ErrorCategory groups errors for log fields and telemetry fingerprints.
type ErrorCategory string

// CategorizedError lets a plain error declare its own category.
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	CategoryGeneric       ErrorCategory = "generic"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryFileIO        ErrorCategory = "file-io"
	CategoryFileParsing   ErrorCategory = "file-parsing"
	CategoryDatabase      ErrorCategory = "database"
	CategoryConflict      ErrorCategory = "conflict"
	CategoryState         ErrorCategory = "state"
	CategoryProcessing    ErrorCategory = "processing"
	CategoryWatcher       ErrorCategory = "watcher"
	CategoryWorker        ErrorCategory = "worker-pool"
	CategoryNetwork       ErrorCategory = "network"
	CategoryCancellation  ErrorCategory = "cancellation"
	CategoryRetry         ErrorCategory = "retry"
)

const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// ComponentUnknown is used when no lpr-ingest package is found on the stack.
const ComponentUnknown = "unknown"

// EnhancedError carries the metadata attached by the builder.
type EnhancedError struct {
	Err       error
	Category  ErrorCategory
	Priority  string
	Context   map[string]any
	Timestamp time.Time

	component string
	mu        sync.Mutex
	reported  bool
}

func (ee *EnhancedError) Error() string { return ee.Err.Error() }

func (ee *EnhancedError) Unwrap() error { return ee.Err }

// Is matches another EnhancedError by category, otherwise defers to the
// wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetComponent returns the owning component.
func (ee *EnhancedError) GetComponent() string { return ee.component }

// GetCategory returns the category as a string.
func (ee *EnhancedError) GetCategory() string { return string(ee.Category) }

// GetPriority returns the explicit priority, or "" when none was set.
func (ee *EnhancedError) GetPriority() string { return ee.Priority }

// GetTimestamp returns when the error was built.
func (ee *EnhancedError) GetTimestamp() time.Time { return ee.Timestamp }

// GetContext returns a copy of the context map.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	return maps.Clone(ee.Context)
}

// MarkReported records that a reporter has consumed the error.
func (ee *EnhancedError) MarkReported() {
	ee.mu.Lock()
	ee.reported = true
	ee.mu.Unlock()
}

// IsReported reports whether MarkReported was called.
func (ee *EnhancedError) IsReported() bool {
	ee.mu.Lock()
	defer ee.mu.Unlock()
	return ee.reported
}

// ErrorBuilder assembles an EnhancedError.
//
//	errors.New(err).Component("datastore").Category(errors.CategoryDatabase).
//		Context("operation", "save").Build()
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	priority  string
	context   map[string]any
}

// New starts a builder around err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts a builder around a formatted error.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Priority overrides the telemetry level. Unrecognised values become medium.
func (eb *ErrorBuilder) Priority(priority string) *ErrorBuilder {
	switch priority {
	case "":
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		eb.priority = priority
	default:
		eb.priority = PriorityMedium
	}
	return eb
}

func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any, 4)
	}
	eb.context[key] = value
	return eb
}

// FileContext records the extension and a size bucket of path. The path
// itself is omitted because it names sites and cameras.
func (eb *ErrorBuilder) FileContext(path string, size int64) *ErrorBuilder {
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
		eb.Context("file_extension", strings.ToLower(ext))
	} else if path != "" {
		eb.Context("file_extension", "none")
	}
	if size > 0 {
		eb.Context("file_size_category", sizeBucket(size))
	}
	return eb
}

// Build finalises the error. Component and category are inferred only while
// a reporter is installed, since nothing else reads the inferred values.
func (eb *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       eb.err,
		Category:  eb.category,
		Priority:  eb.priority,
		Context:   eb.context,
		Timestamp: time.Now(),
		component: eb.component,
	}

	if !hasActiveReporting.Load() {
		if ee.component == "" {
			ee.component = ComponentUnknown
		}
		if ee.Category == "" {
			ee.Category = CategoryGeneric
		}
		return ee
	}

	if ee.component == "" {
		ee.component = callerComponent()
	}
	if ee.Category == "" {
		ee.Category = detectCategory(ee.Err, ee.component)
	}
	reportToTelemetry(ee)
	return ee
}

// componentPackages maps package path fragments to component names.
var componentPackages = []struct{ pkg, name string }{
	{"/internal/lpr.", "lpr"},
	{"/internal/fileio.", "fileio"},
	{"/internal/ingest.", "ingest"},
	{"/internal/watcher.", "watcher"},
	{"/internal/datastore", "datastore"},
	{"/internal/conf.", "configuration"},
	{"/internal/observability", "observability"},
	{"/internal/telemetry.", "telemetry"},
	{"/internal/app.", "app"},
	{"/cmd/", "cli"},
}

// callerComponent walks the stack above this package and returns the first
// known component.
func callerComponent() string {
	pcs := make([]uintptr, 24)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.Function, "/internal/errors.") {
			for _, c := range componentPackages {
				if strings.Contains(frame.Function, c.pkg) {
					return c.name
				}
			}
		}
		if !more {
			return ComponentUnknown
		}
	}
}

// detectCategory prefers a category declared by the error chain, then the
// message, then the component.
func detectCategory(err error, component string) ErrorCategory {
	if err == nil {
		return CategoryGeneric
	}
	var catErr CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr.ErrorCategory()
	}
	var enhErr *EnhancedError
	if stderrors.As(err, &enhErr) && enhErr.Category != "" {
		return enhErr.Category
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		for _, needle := range rule.needles {
			if strings.Contains(msg, needle) {
				return rule.category
			}
		}
	}

	switch component {
	case "datastore":
		return CategoryDatabase
	case "lpr":
		return CategoryFileParsing
	case "watcher":
		return CategoryWatcher
	case "configuration":
		return CategoryConfiguration
	}
	return CategoryGeneric
}

var messageRules = []struct {
	category ErrorCategory
	needles  []string
}{
	{CategoryConflict, []string{"unique constraint", "duplicate"}},
	{CategoryRetry, []string{"retries exhausted"}},
	{CategoryFileIO, []string{"file", "read", "open"}},
	{CategoryNetwork, []string{"connection", "timeout"}},
	{CategoryValidation, []string{"validation", "invalid"}},
}

func sizeBucket(size int64) string {
	switch {
	case size < 1<<10:
		return "tiny"
	case size < 1<<20:
		return "small"
	case size < 10<<20:
		return "medium"
	default:
		return "large"
	}
}

// NewStd returns a plain sentinel error.
func NewStd(text string) error { return stderrors.New(text) }

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Join(errs ...error) error { return stderrors.Join(errs...) }

// IsCategory reports whether err wraps an EnhancedError of the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var ee *EnhancedError
	return stderrors.As(err, &ee) && ee.Category == category
}
