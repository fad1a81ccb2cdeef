// Package errors - telemetry integration (optional)
package errors

import (
	"regexp"
	"sync"
	"sync/atomic"
)

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// PrivacyScrubber is a function type for privacy scrubbing
type PrivacyScrubber func(string) string

var (
	reporterMu              sync.RWMutex
	globalTelemetryReporter TelemetryReporter
	globalPrivacyScrubber   PrivacyScrubber

	// hasActiveReporting short-circuits Build when nothing consumes errors
	hasActiveReporting atomic.Bool
)

// SetTelemetryReporter sets the global telemetry reporter. Passing nil disables reporting.
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	globalTelemetryReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

// GetTelemetryReporter returns the current telemetry reporter
func GetTelemetryReporter() TelemetryReporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return globalTelemetryReporter
}

// ClearErrorHooks removes the telemetry reporter and privacy scrubber.
func ClearErrorHooks() {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	globalTelemetryReporter = nil
	globalPrivacyScrubber = nil
	hasActiveReporting.Store(false)
}

// reportToTelemetry reports an error to the configured telemetry system
func reportToTelemetry(ee *EnhancedError) {
	reporter := GetTelemetryReporter()
	if reporter == nil || !reporter.IsEnabled() || ee.IsReported() {
		return
	}
	reporter.ReportError(ee)
}

// SetPrivacyScrubber sets the global privacy scrubbing function
func SetPrivacyScrubber(scrubber PrivacyScrubber) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	globalPrivacyScrubber = scrubber
}

// ScrubMessage applies privacy protection to error messages before they
// leave the process.
func ScrubMessage(message string) string {
	reporterMu.RLock()
	scrubber := globalPrivacyScrubber
	reporterMu.RUnlock()

	if scrubber != nil {
		return scrubber(message)
	}
	return basicScrub(message)
}

var (
	// Absolute unix or windows paths. Plate log paths contain camera and site names.
	unixPathRegex    = regexp.MustCompile(`(?:/[^/\s:]+){2,}`)
	windowsPathRegex = regexp.MustCompile(`[A-Za-z]:\\[^\s:]*`)
	dsnRegex         = regexp.MustCompile(`[^\s:/@]+:[^\s@]+@tcp\(`)
)

// basicScrub removes filesystem paths and DSN credentials
func basicScrub(message string) string {
	scrubbed := dsnRegex.ReplaceAllString(message, "[CREDENTIALS_REDACTED]@tcp(")
	scrubbed = windowsPathRegex.ReplaceAllString(scrubbed, "[PATH_REDACTED]")
	scrubbed = unixPathRegex.ReplaceAllString(scrubbed, "[PATH_REDACTED]")
	return scrubbed
}
