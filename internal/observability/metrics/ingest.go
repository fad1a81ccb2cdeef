package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics contains Prometheus metrics for the watch and ingest pipeline
type IngestMetrics struct {
	registry *prometheus.Registry

	// Dispatch metrics
	eventsTotal *prometheus.CounterVec
	queueDepth  prometheus.Gauge

	// File processing metrics
	filesTotal          *prometheus.CounterVec
	fileDurationSeconds *prometheus.HistogramVec
	readRetriesTotal    prometheus.Counter

	// Line outcome metrics
	linesTotal *prometheus.CounterVec

	// Scan metrics
	scansTotal          prometheus.Counter
	scanDurationSeconds prometheus.Histogram
}

// NewIngestMetrics creates and registers new ingest metrics
func NewIngestMetrics(registry *prometheus.Registry) (*IngestMetrics, error) {
	m := &IngestMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *IngestMetrics) initMetrics() {
	m.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lpr_ingest_events_total",
			Help: "Total number of path notifications seen by the dispatcher",
		},
		[]string{"source", "action"}, // action: received, suppressed, enqueued, dropped
	)

	m.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lpr_ingest_queue_depth",
		Help: "Number of paths waiting for a worker",
	})

	m.filesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lpr_ingest_files_total",
			Help: "Total number of files handled by the orchestrator",
		},
		[]string{"outcome"},
	)

	m.fileDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lpr_ingest_file_duration_seconds",
			Help:    "Time taken to read and ingest one file",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15), // 1ms to ~16s
		},
		[]string{"outcome"},
	)

	m.readRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lpr_ingest_read_retries_total",
		Help: "Total number of transient read failures that were retried",
	})

	m.linesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lpr_ingest_lines_total",
			Help: "Total number of log lines by outcome",
		},
		[]string{"outcome"},
	)

	m.scansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lpr_ingest_scans_total",
		Help: "Total number of completed directory scans",
	})

	m.scanDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lpr_ingest_scan_duration_seconds",
		Help:    "Time taken to walk a directory tree",
		Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12), // 10ms to ~20s
	})
}

// Describe implements the Collector interface
func (m *IngestMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.eventsTotal.Describe(ch)
	m.queueDepth.Describe(ch)
	m.filesTotal.Describe(ch)
	m.fileDurationSeconds.Describe(ch)
	m.readRetriesTotal.Describe(ch)
	m.linesTotal.Describe(ch)
	m.scansTotal.Describe(ch)
	m.scanDurationSeconds.Describe(ch)
}

// Collect implements the Collector interface
func (m *IngestMetrics) Collect(ch chan<- prometheus.Metric) {
	m.eventsTotal.Collect(ch)
	m.queueDepth.Collect(ch)
	m.filesTotal.Collect(ch)
	m.fileDurationSeconds.Collect(ch)
	m.readRetriesTotal.Collect(ch)
	m.linesTotal.Collect(ch)
	m.scansTotal.Collect(ch)
	m.scanDurationSeconds.Collect(ch)
}

// RecordEvent counts a path notification
func (m *IngestMetrics) RecordEvent(source, action string) {
	m.eventsTotal.WithLabelValues(source, action).Inc()
}

// SetQueueDepth sets the dispatch queue depth
func (m *IngestMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

// RecordFile records a handled file
func (m *IngestMetrics) RecordFile(outcome string, seconds float64) {
	m.filesTotal.WithLabelValues(outcome).Inc()
	m.fileDurationSeconds.WithLabelValues(outcome).Observe(seconds)
}

// RecordLine counts a line outcome
func (m *IngestMetrics) RecordLine(outcome string) {
	m.linesTotal.WithLabelValues(outcome).Inc()
}

// RecordReadRetry counts a retried read
func (m *IngestMetrics) RecordReadRetry() {
	m.readRetriesTotal.Inc()
}

// RecordScan records a completed scan
func (m *IngestMetrics) RecordScan(seconds float64) {
	m.scansTotal.Inc()
	m.scanDurationSeconds.Observe(seconds)
}
