package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics instruments the plate read store: per-operation counts and
// latency against the files table, plus the handle pool gauges.
type DatastoreMetrics struct {
	ops      *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	failures *prometheus.CounterVec
	inUse    prometheus.Gauge
	maxSize  prometheus.Gauge

	all []prometheus.Collector
}

// NewDatastoreMetrics registers the datastore collectors on registry.
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datastore_db_operations_total",
			Help: "Datastore operations by outcome",
		}, []string{LabelOperation, LabelTable, LabelStatus}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "datastore_db_operation_duration_seconds",
			Help:    "Datastore operation latency",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
		}, []string{LabelOperation, LabelTable}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datastore_db_operation_errors_total",
			Help: "Failed datastore operations by error class",
		}, []string{LabelOperation, LabelTable, LabelErrorType}),
		inUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "datastore_handles_in_use",
			Help: "Repository handles currently acquired",
		}),
		maxSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "datastore_handles_max",
			Help: "Bound on concurrently acquired repository handles",
		}),
	}
	m.all = []prometheus.Collector{m.ops, m.latency, m.failures, m.inUse, m.maxSize}

	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.all {
		c.Describe(ch)
	}
}

func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.all {
		c.Collect(ch)
	}
}

// RecordDbOperation counts one operation with status success or error.
func (m *DatastoreMetrics) RecordDbOperation(operation, table, status string) {
	m.ops.WithLabelValues(operation, table, status).Inc()
}

func (m *DatastoreMetrics) RecordDbOperationDuration(operation, table string, seconds float64) {
	m.latency.WithLabelValues(operation, table).Observe(seconds)
}

// RecordDbOperationError counts a failure classified as errorType
// (constraint_violation, locked, connection, ...).
func (m *DatastoreMetrics) RecordDbOperationError(operation, table, errorType string) {
	m.failures.WithLabelValues(operation, table, errorType).Inc()
}

func (m *DatastoreMetrics) SetHandlesInUse(n int) { m.inUse.Set(float64(n)) }

func (m *DatastoreMetrics) SetHandlesMax(n int) { m.maxSize.Set(float64(n)) }
