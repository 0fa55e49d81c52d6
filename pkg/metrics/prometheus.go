// Package metrics provides Prometheus metrics for the highscore service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the highscore service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Submission Metrics
	scoresRecorded     prometheus.Counter
	scoresDuplicate    prometheus.Counter
	scoresRejected     *prometheus.CounterVec
	rankLatency        prometheus.Histogram
	rankComputations   prometheus.Counter
	placementMisses    *prometheus.CounterVec
	partialWrites      prometheus.Counter
	tableReads         *prometheus.CounterVec
	tableReadLatency   prometheus.Histogram
	recordStoreLatency *prometheus.HistogramVec
	recordStoreErrors  *prometheus.CounterVec

	// Ranked Store Metrics
	storeOpLatency *prometheus.HistogramVec
	storeErrors    *prometheus.CounterVec
	rankedKeys     prometheus.Gauge
	rankedMembers  prometheus.Gauge
	trimmedMembers prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics - Notification queue performance
	queueCapacity          prometheus.Gauge
	queueSize              prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker Metrics - Notification delivery
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter
	notificationsPublished  *prometheus.CounterVec
	publishErrors           *prometheus.CounterVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// Init rebuilds the global manager on a fresh registry with opts applied.
// It must run before the service starts recording.
func Init(opts ...Option) {
	reg := prometheus.NewRegistry()
	globalManager = NewManager(append([]Option{WithRegistry(reg)}, opts...)...)
	customRegistry = reg
}

// RefreshInterval returns the system gauge sampling interval of the global
// manager.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "highscore",
		subsystem:        "leaderboard",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// Enabled reports whether the manager records observations.
func (m *Manager) Enabled() bool { return m.enabled }

// RefreshInterval is how often periodic gauges should be refreshed.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.scoresRecorded = auto.NewCounter(m.counterOpts("scores_recorded_total",
		"Total number of score submissions persisted and ranked"))
	m.scoresDuplicate = auto.NewCounter(m.counterOpts("scores_duplicate_total",
		"Total number of submissions rejected as repeated request ids"))
	m.scoresRejected = auto.NewCounterVec(m.counterOpts("scores_rejected_total",
		"Total number of submissions rejected by validation"), []string{"field"})
	m.rankLatency = auto.NewHistogram(m.histogramOpts("rank_latency_milliseconds",
		"Latency of writing a submission into its six buckets and reading ranks back"))
	m.rankComputations = auto.NewCounter(m.counterOpts("rank_computations_total",
		"Total number of bucket rank lookups"))
	m.placementMisses = auto.NewCounterVec(m.counterOpts("placement_misses_total",
		"Submissions that did not place in a bucket"), []string{"scope", "period"})
	m.partialWrites = auto.NewCounter(m.counterOpts("partial_writes_total",
		"Submissions whose bucket writes failed after some buckets were updated"))
	m.tableReads = auto.NewCounterVec(m.counterOpts("table_reads_total",
		"Total number of leaderboard table reads"), []string{"scope", "period"})
	m.tableReadLatency = auto.NewHistogram(m.histogramOpts("table_read_latency_milliseconds",
		"Leaderboard table read latency in milliseconds"))
	m.recordStoreLatency = auto.NewHistogramVec(m.histogramOpts("record_store_latency_milliseconds",
		"Record store operation latency in milliseconds"), []string{"backend", "op"})
	m.recordStoreErrors = auto.NewCounterVec(m.counterOpts("record_store_errors_total",
		"Record store operation failures"), []string{"backend", "op"})

	m.storeOpLatency = auto.NewHistogramVec(m.histogramOpts("ranked_store_latency_milliseconds",
		"Ranked store operation latency in milliseconds"), []string{"backend", "op"})
	m.storeErrors = auto.NewCounterVec(m.counterOpts("ranked_store_errors_total",
		"Ranked store operation failures"), []string{"backend", "op"})
	m.rankedKeys = auto.NewGauge(m.gaugeOpts("ranked_keys",
		"Number of bucket keys held by the in-process ranked store"))
	m.rankedMembers = auto.NewGauge(m.gaugeOpts("ranked_members",
		"Number of members across all buckets of the in-process ranked store"))
	m.trimmedMembers = auto.NewCounter(m.counterOpts("trimmed_members_total",
		"Members evicted from capped buckets"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"})

	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum notification queue capacity"))
	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the notification queue"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio",
		"Queue utilization ratio (current size / capacity)"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Total number of notifications enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Total number of notifications dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total",
		"Total number of notifications dropped because the queue was full or closed"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogramOpts("queue_processing_latency_milliseconds",
		"Time a notification spent queued in milliseconds"))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Configured number of notification workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of workers currently publishing"))
	m.workerIdleCount = auto.NewGauge(m.gaugeOpts("worker_idle_count", "Number of idle workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds",
		"Notification publish latency in milliseconds"))
	m.workerErrorRate = auto.NewCounter(m.counterOpts("worker_errors_total", "Total number of worker errors"))
	m.notificationsPublished = auto.NewCounterVec(m.counterOpts("notifications_published_total",
		"Notifications delivered by publisher"), []string{"publisher"})
	m.publishErrors = auto.NewCounterVec(m.counterOpts("publish_errors_total",
		"Notification publish failures by publisher"), []string{"publisher"})

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Total number of errors by component"), []string{"component", "error_type"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total",
		"Total number of errors by endpoint"), []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap memory in use in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
}

// Submission Metrics Functions.

// RecordScoreRecorded increments the recorded submissions counter.
func RecordScoreRecorded() {
	if globalManager.enabled {
		globalManager.scoresRecorded.Inc()
	}
}

// RecordScoreDuplicate increments the duplicate request counter.
func RecordScoreDuplicate() {
	if globalManager.enabled {
		globalManager.scoresDuplicate.Inc()
	}
}

// RecordScoreRejected counts a validation failure on field.
func RecordScoreRejected(field string) {
	if globalManager.enabled {
		globalManager.scoresRejected.WithLabelValues(field).Inc()
	}
}

// RecordRankLatency records RecordAndRank latency in milliseconds.
func RecordRankLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.rankLatency.Observe(latencyMs)
	}
}

// RecordRankComputation counts one bucket rank lookup.
func RecordRankComputation() {
	if globalManager.enabled {
		globalManager.rankComputations.Inc()
	}
}

// RecordPlacementMiss counts a submission absent from a bucket after insertion.
func RecordPlacementMiss(scope, period string) {
	if globalManager.enabled {
		globalManager.placementMisses.WithLabelValues(scope, period).Inc()
	}
}

// RecordPartialWrite counts a submission with a failed bucket write.
func RecordPartialWrite() {
	if globalManager.enabled {
		globalManager.partialWrites.Inc()
	}
}

// RecordTableRead counts a leaderboard read and its latency.
func RecordTableRead(scope, period string, latencyMs float64) {
	if globalManager.enabled {
		globalManager.tableReads.WithLabelValues(scope, period).Inc()
		globalManager.tableReadLatency.Observe(latencyMs)
	}
}

// RecordRecordStoreOp records a record store operation outcome.
func RecordRecordStoreOp(backend, op string, latencyMs float64, err error) {
	if !globalManager.enabled {
		return
	}
	globalManager.recordStoreLatency.WithLabelValues(backend, op).Observe(latencyMs)
	if err != nil {
		globalManager.recordStoreErrors.WithLabelValues(backend, op).Inc()
	}
}

// Ranked Store Metrics Functions.

// RecordStoreOp records a ranked store operation outcome.
func RecordStoreOp(backend, op string, latencyMs float64, err error) {
	if !globalManager.enabled {
		return
	}
	globalManager.storeOpLatency.WithLabelValues(backend, op).Observe(latencyMs)
	if err != nil {
		globalManager.storeErrors.WithLabelValues(backend, op).Inc()
	}
}

// UpdateRankedKeys sets the number of live bucket keys.
func UpdateRankedKeys(count int) {
	globalManager.rankedKeys.Set(float64(count))
}

// UpdateRankedMembers sets the number of members across all buckets.
func UpdateRankedMembers(count int) {
	globalManager.rankedMembers.Set(float64(count))
}

// RecordTrimmedMembers counts members evicted by a trim.
func RecordTrimmedMembers(count int) {
	if globalManager.enabled && count > 0 {
		globalManager.trimmedMembers.Add(float64(count))
	}
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// Queue Metrics Functions.

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if globalManager.enabled {
		globalManager.queueEnqueueRate.Inc()
	}
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if globalManager.enabled {
		globalManager.queueDequeueRate.Inc()
	}
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if globalManager.enabled {
		globalManager.queueEnqueueErrors.Inc()
	}
}

// RecordQueueProcessingLatency records how long a message waited in the queue.
func RecordQueueProcessingLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.queueProcessingLatency.Observe(latencyMs)
	}
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.workerProcessingLatency.Observe(latencyMs)
	}
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if globalManager.enabled {
		globalManager.workerErrorRate.Inc()
	}
}

// RecordNotificationPublished counts a delivered notification.
func RecordNotificationPublished(publisher string) {
	if globalManager.enabled {
		globalManager.notificationsPublished.WithLabelValues(publisher).Inc()
	}
}

// RecordPublishError counts a failed notification delivery.
func RecordPublishError(publisher string) {
	if globalManager.enabled {
		globalManager.publishErrors.WithLabelValues(publisher).Inc()
	}
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if globalManager.enabled {
		globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if globalManager.enabled {
		globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the heap memory in use in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
