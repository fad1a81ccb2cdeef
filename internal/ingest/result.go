package ingest

import (
	"time"

	"github.com/anprfile/lpr-ingest/internal/observability/metrics"
)

// FileResult counts per-line outcomes for one file.
type FileResult struct {
	Path       string // relative, slash separated
	Lines      int
	Persisted  int
	Duplicates int // skipped by the deduplication gate
	Conflicts  int // lost a concurrent insert race
	Empty      int
	Rejected   int // wrong field count
	Invalid    int // failed validation
	Failed     int // store errors and recovered panics
	Duration   time.Duration

	// ConversionFailures counts numeric fields that did not parse. Such lines
	// are also counted as Invalid.
	ConversionFailures int
}

func (r *FileResult) record(m metrics.Recorder, outcome string) {
	switch outcome {
	case metrics.LinePersisted:
		r.Persisted++
	case metrics.LineDuplicate:
		r.Duplicates++
	case metrics.LineConflict:
		r.Conflicts++
	case metrics.LineEmpty:
		r.Empty++
	case metrics.LineRejected:
		r.Rejected++
	case metrics.LineInvalid:
		r.Invalid++
	case metrics.LineFailed:
		r.Failed++
	}
	m.RecordLine(outcome)
}

// ScanSummary aggregates a directory traversal.
type ScanSummary struct {
	FilesSeen   int
	FilesFailed int
	DirsFailed  int
	Lines       int
	Persisted   int
	Duplicates  int
	Conflicts   int
	Empty       int
	Rejected    int
	Invalid     int
	Failed      int
	Duration    time.Duration
}

func (s *ScanSummary) add(r FileResult) {
	s.Lines += r.Lines
	s.Persisted += r.Persisted
	s.Duplicates += r.Duplicates
	s.Conflicts += r.Conflicts
	s.Empty += r.Empty
	s.Rejected += r.Rejected
	s.Invalid += r.Invalid
	s.Failed += r.Failed
}
