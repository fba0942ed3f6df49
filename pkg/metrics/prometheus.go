// Package metrics provides Prometheus metrics for the scout service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector used by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Ingestion
	qrsReceived  prometheus.Counter
	qrsDuplicate prometheus.Counter
	qrsInvalid   prometheus.Counter

	// Decompression
	recordsDecoded  *prometheus.CounterVec
	decodeFailures  *prometheus.CounterVec
	entitiesSkipped prometheus.Counter
	passDuration    prometheus.Histogram
	passBatchSize   prometheus.Histogram

	// Consolidation and audit
	mergesApplied  prometheus.Counter
	mergeConflicts *prometheus.CounterVec
	auditWarnings  *prometheus.CounterVec

	// Pit pipeline
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueErrors prometheus.Counter
	workerCount        prometheus.Gauge
	workerLatency      prometheus.Histogram
	workerErrors       prometheus.Counter

	// Store
	storeDocuments *prometheus.GaugeVec
	storeErrors    *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "scout",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gauge(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogram(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.qrsReceived = auto.NewCounter(m.counter("qrs_received_total", "Raw QR codes accepted into raw storage"))
	m.qrsDuplicate = auto.NewCounter(m.counter("qrs_duplicate_total", "Raw QR codes rejected as duplicates"))
	m.qrsInvalid = auto.NewCounter(m.counter("qrs_invalid_total", "Raw QR codes rejected for an unknown start character"))

	m.recordsDecoded = auto.NewCounterVec(m.counter("records_decoded_total", "Decoded records by kind"), []string{"kind"})
	m.decodeFailures = auto.NewCounterVec(m.counter("decode_failures_total", "QR decode failures by reason"), []string{"reason"})
	m.entitiesSkipped = auto.NewCounter(m.counter("entities_skipped_total", "Subjective entities dropped for invalid rating markers"))
	m.passDuration = auto.NewHistogram(m.histogram("pass_duration_milliseconds", "Duration of a full decompression pass"))
	m.passBatchSize = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "pass_batch_size",
		Help:        "Raw QRs handled per decompression pass",
		Buckets:     prometheus.ExponentialBuckets(1, 2, 10),
		ConstLabels: m.constLabels,
	})

	m.mergesApplied = auto.NewCounter(m.counter("merges_applied_total", "Pit observations merged into canonical records"))
	m.mergeConflicts = auto.NewCounterVec(m.counter("merge_conflicts_total", "Observer disagreements by field"), []string{"field"})
	m.auditWarnings = auto.NewCounterVec(m.counter("audit_warnings_total", "Scout coverage warnings by type"), []string{"type"})

	m.queueSize = auto.NewGauge(m.gauge("queue_size", "Pending pit submissions"))
	m.queueCapacity = auto.NewGauge(m.gauge("queue_capacity", "Capacity of the pit submission queue"))
	m.queueEnqueueErrors = auto.NewCounter(m.counter("queue_enqueue_errors_total", "Pit submissions rejected by backpressure"))
	m.workerCount = auto.NewGauge(m.gauge("worker_count", "Active pit workers"))
	m.workerLatency = auto.NewHistogram(m.histogram("worker_processing_latency_milliseconds", "Pit submission processing latency"))
	m.workerErrors = auto.NewCounter(m.counter("worker_errors_total", "Pit submissions that failed to process"))

	m.storeDocuments = auto.NewGaugeVec(m.gauge("store_documents", "Documents per collection"), []string{"collection"})
	m.storeErrors = auto.NewCounterVec(m.counter("store_errors_total", "Store operation failures"), []string{"op"})

	m.httpRequests = auto.NewCounterVec(m.counter("http_requests_total", "HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogram("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"})
}

// Ingestion.

// RecordQRReceived increments the accepted raw QR counter.
func RecordQRReceived() { globalManager.qrsReceived.Inc() }

// RecordQRDuplicate increments the duplicate raw QR counter.
func RecordQRDuplicate() { globalManager.qrsDuplicate.Inc() }

// RecordQRInvalid increments the invalid raw QR counter.
func RecordQRInvalid() { globalManager.qrsInvalid.Inc() }

// Decompression.

// RecordDecoded adds n decoded records of the given kind.
func RecordDecoded(kind string, n int) {
	globalManager.recordsDecoded.WithLabelValues(kind).Add(float64(n))
}

// RecordDecodeFailure counts one failed QR by reason.
func RecordDecodeFailure(reason string) {
	globalManager.decodeFailures.WithLabelValues(reason).Inc()
}

// RecordEntitySkipped counts one dropped subjective entity.
func RecordEntitySkipped() { globalManager.entitiesSkipped.Inc() }

// RecordPass observes one decompression pass.
func RecordPass(durationMs float64, batchSize int) {
	globalManager.passDuration.Observe(durationMs)
	globalManager.passBatchSize.Observe(float64(batchSize))
}

// Consolidation and audit.

// RecordMerge counts an applied pit merge.
func RecordMerge() { globalManager.mergesApplied.Inc() }

// RecordMergeConflict counts a disagreement on field.
func RecordMergeConflict(field string) {
	globalManager.mergeConflicts.WithLabelValues(field).Inc()
}

// RecordAuditWarning counts an emitted audit warning.
func RecordAuditWarning(kind string) {
	globalManager.auditWarnings.WithLabelValues(kind).Inc()
}

// Pit pipeline.

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// UpdateWorkerCount sets the number of active workers.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) { globalManager.workerLatency.Observe(latencyMs) }

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// Store.

// UpdateStoreDocuments sets the document count of a collection.
func UpdateStoreDocuments(collection string, count int) {
	globalManager.storeDocuments.WithLabelValues(collection).Set(float64(count))
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(op string) { globalManager.storeErrors.WithLabelValues(op).Inc() }

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
