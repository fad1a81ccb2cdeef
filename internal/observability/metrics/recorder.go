// Package metrics provides custom Prometheus metrics for the lpr-ingest service.
package metrics

// Recorder receives ingest pipeline measurements. Components depend on this
// rather than on IngestMetrics so tests can substitute their own.
type Recorder interface {
	// RecordEvent counts a path notification. source is SourceWatch or
	// SourceScan; action is one of the Action* values.
	RecordEvent(source, action string)

	// SetQueueDepth reports the number of paths waiting for a worker.
	SetQueueDepth(depth int)

	// RecordFile records one processed file and how long it took.
	RecordFile(outcome string, seconds float64)

	// RecordLine counts one line outcome.
	RecordLine(outcome string)

	// RecordReadRetry counts a transient read failure that will be retried.
	RecordReadRetry()

	// RecordScan records a completed directory scan.
	RecordScan(seconds float64)
}

// NoOpRecorder discards everything.
type NoOpRecorder struct{}

func (NoOpRecorder) RecordEvent(string, string) {}
func (NoOpRecorder) SetQueueDepth(int)          {}
func (NoOpRecorder) RecordFile(string, float64) {}
func (NoOpRecorder) RecordLine(string)          {}
func (NoOpRecorder) RecordReadRetry()           {}
func (NoOpRecorder) RecordScan(float64)         {}

var (
	_ Recorder = NoOpRecorder{}
	_ Recorder = (*IngestMetrics)(nil)
)
