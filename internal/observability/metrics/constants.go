package metrics

import "time"

// Label names.
const (
	LabelOperation = "operation"
	LabelTable     = "table"
	LabelStatus    = "status"
	LabelErrorType = "error_type"
)

// Datastore operation label values.
const (
	// OpMigrate is schema migration.
	OpMigrate = "migrate"
	// OpExists is the per-path existence check.
	OpExists = "exists"
	// OpInsert is a plate read insert.
	OpInsert = "insert"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Event source label values.
const (
	// SourceWatch is a filesystem notification.
	SourceWatch = "watch"
	// SourceScan is a backlog or manual directory scan.
	SourceScan = "scan"
)

// Event action label values.
const (
	ActionReceived   = "received"
	ActionSuppressed = "suppressed"
	ActionEnqueued   = "enqueued"
	ActionDropped    = "dropped"
)

// File outcome label values.
const (
	FileProcessed  = "processed"
	FileReadFailed = "read_failed"
	FileFailed     = "failed"
)

// Line outcome label values.
const (
	LinePersisted  = "persisted"
	LineDuplicate  = "duplicate"
	LineRejected   = "rejected"
	LineInvalid    = "invalid"
	LineConflict   = "conflict"
	LineFailed     = "failed"
	LineEmpty      = "empty"
	LineConversion = "conversion_failed"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~1s range).
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)

// ShutdownTimeout is the timeout for graceful shutdown of the metrics endpoint.
const ShutdownTimeout = 5 * time.Second
