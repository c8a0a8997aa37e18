package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MigrationMetrics contains Prometheus metrics for batch runs, dependency
// resolution and mapping store persistence.
type MigrationMetrics struct {
	registry *prometheus.Registry

	recordsTotal        *prometheus.CounterVec
	recordDuration      *prometheus.HistogramVec
	recordErrorsTotal   *prometheus.CounterVec
	resolutionsTotal    *prometheus.CounterVec
	bulkFallbacksTotal  *prometheus.CounterVec
	cacheLookupsTotal   *prometheus.CounterVec
	mappingPersistHist  *prometheus.HistogramVec
	mappingPersistError *prometheus.CounterVec
	mappingEntries      *prometheus.GaugeVec
	workersBusy         prometheus.Gauge
	lastRunTimestamp    prometheus.Gauge

	collectors []prometheus.Collector
}

// NewMigrationMetrics creates and registers migration metrics
func NewMigrationMetrics(registry *prometheus.Registry) (*MigrationMetrics, error) {
	m := &MigrationMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register migration metrics: %w", err)
	}
	return m, nil
}

func (m *MigrationMetrics) initMetrics() {
	m.recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certmigrate_records_total",
			Help: "Source records processed, by entity kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: migrated, skipped, failed
	)

	m.recordDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "certmigrate_record_duration_seconds",
			Help:    "Time taken to migrate a single record including dependency resolution",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15), // 1ms to ~32s
		},
		[]string{"kind"},
	)

	m.recordErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certmigrate_record_errors_total",
			Help: "Records that were not migrated, by error kind",
		},
		[]string{"kind", "error_kind"},
	)

	m.resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certmigrate_resolutions_total",
			Help: "Dependency resolutions by role and result",
		},
		[]string{"role", "result"}, // result: found, not_found, failed, created
	)

	m.bulkFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certmigrate_bulk_fallbacks_total",
			Help: "Bulk batches that were rolled back and retried one record at a time",
		},
		[]string{"kind"},
	)

	m.cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certmigrate_cache_lookups_total",
			Help: "Resolver cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)

	m.mappingPersistHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "certmigrate_mapping_persist_duration_seconds",
			Help:    "Time taken to atomically persist a mapping store",
			Buckets: prometheus.ExponentialBuckets(BucketStart100us, BucketFactor2, BucketCount12), // 0.1ms to ~200ms
		},
		[]string{"kind"},
	)

	m.mappingPersistError = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certmigrate_mapping_persist_errors_total",
			Help: "Failed mapping store persists",
		},
		[]string{"kind"},
	)

	m.mappingEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "certmigrate_mapping_entries",
			Help: "Entries in each mapping store",
		},
		[]string{"kind"},
	)

	m.workersBusy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "certmigrate_workers_busy",
		Help: "Records currently being migrated",
	})

	m.lastRunTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "certmigrate_last_run_timestamp_seconds",
		Help: "Completion time of the last batch run",
	})

	m.collectors = []prometheus.Collector{
		m.recordsTotal,
		m.recordDuration,
		m.recordErrorsTotal,
		m.resolutionsTotal,
		m.bulkFallbacksTotal,
		m.cacheLookupsTotal,
		m.mappingPersistHist,
		m.mappingPersistError,
		m.mappingEntries,
		m.workersBusy,
		m.lastRunTimestamp,
	}
}

// Describe implements the Collector interface
func (m *MigrationMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *MigrationMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordOperation implements Recorder: operation is the entity kind, status the outcome
func (m *MigrationMetrics) RecordOperation(operation, status string) {
	m.recordsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder
func (m *MigrationMetrics) RecordDuration(operation string, seconds float64) {
	m.recordDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder
func (m *MigrationMetrics) RecordError(operation, errorType string) {
	m.recordErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordResolution counts one dependency resolution
func (m *MigrationMetrics) RecordResolution(role, result string) {
	m.resolutionsTotal.WithLabelValues(role, result).Inc()
}

// RecordBulkFallback counts a bulk batch that fell back to one-by-one inserts
func (m *MigrationMetrics) RecordBulkFallback(kind string) {
	m.bulkFallbacksTotal.WithLabelValues(kind).Inc()
}

// RecordCacheLookup counts a resolver cache hit or miss
func (m *MigrationMetrics) RecordCacheLookup(cache string, hit bool) {
	result := LabelMiss
	if hit {
		result = LabelHit
	}
	m.cacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// ObservePersist records a mapping store persist attempt
func (m *MigrationMetrics) ObservePersist(kind string, elapsed time.Duration, err error) {
	m.mappingPersistHist.WithLabelValues(kind).Observe(elapsed.Seconds())
	if err != nil {
		m.mappingPersistError.WithLabelValues(kind).Inc()
	}
}

// SetMappingEntries publishes the size of a mapping store
func (m *MigrationMetrics) SetMappingEntries(kind string, n int) {
	m.mappingEntries.WithLabelValues(kind).Set(float64(n))
}

// WorkerStarted and WorkerFinished track in-flight records
func (m *MigrationMetrics) WorkerStarted() { m.workersBusy.Inc() }

// WorkerFinished marks a record as done
func (m *MigrationMetrics) WorkerFinished() { m.workersBusy.Dec() }

// MarkRunFinished stamps the completion time of a batch run
func (m *MigrationMetrics) MarkRunFinished() { m.lastRunTimestamp.SetToCurrentTime() }
