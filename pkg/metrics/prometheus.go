// Package metrics provides Prometheus metrics for the whodunit case service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Case lifecycle
	casesCreated        prometheus.Counter
	transitions         *prometheus.CounterVec
	operationFailures   *prometheus.CounterVec
	assignmentConflicts *prometheus.CounterVec
	activeCases         *prometheus.GaugeVec
	operationLatency    *prometheus.HistogramVec

	// Scoring ledger
	scoreDeltas  *prometheus.CounterVec
	ledgerUsers  prometheus.Gauge
	rankingReads prometheus.Counter

	// Journal pipeline
	journalQueueSize     prometheus.Gauge
	journalQueueCapacity prometheus.Gauge
	journalEnqueued      prometheus.Counter
	journalDropped       *prometheus.CounterVec
	journalDuplicates    prometheus.Counter
	journalWrites        prometheus.Counter
	journalWriteErrors   prometheus.Counter
	journalWorkers       prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Runtime
	goroutines  prometheus.Gauge
	memoryBytes prometheus.Gauge
}

var (
	globalManager  *Manager
	customRegistry = prometheus.NewRegistry()
)

func init() {
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "whodunit",
		subsystem:        "cases",
		histogramBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.casesCreated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "created_total",
		Help: "Active cases created from templates",
	})
	m.transitions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "transitions_total",
		Help: "Committed lifecycle transitions",
	}, []string{"from", "to"})
	m.operationFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "operation_failures_total",
		Help: "Rejected lifecycle operations by operation and error kind",
	}, []string{"operation", "kind"})
	m.assignmentConflicts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "assignment_conflicts_total",
		Help: "Callers that lost a race for a culprit or detective slot",
	}, []string{"role"})
	m.activeCases = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "by_status",
		Help: "Active cases currently in each lifecycle status",
	}, []string{"status"})
	m.operationLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "operation_latency_milliseconds",
		Help:    "Lifecycle operation latency in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"operation"})

	m.scoreDeltas = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "ledger",
		Name: "score_deltas_total",
		Help: "Score deltas applied by scoring event",
	}, []string{"event"})
	m.ledgerUsers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "ledger",
		Name: "users",
		Help: "Users tracked by the scoring ledger",
	})
	m.rankingReads = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "ledger",
		Name: "ranking_reads_total",
		Help: "Ranking queries served",
	})

	m.journalQueueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "journal",
		Name: "queue_size",
		Help: "Journal entries waiting to be written",
	})
	m.journalQueueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "journal",
		Name: "queue_capacity",
		Help: "Journal queue capacity",
	})
	m.journalEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "journal",
		Name: "enqueued_total",
		Help: "Journal entries accepted by the queue",
	})
	m.journalDropped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "journal",
		Name: "dropped_total",
		Help: "Journal entries dropped before being written",
	}, []string{"reason"})
	m.journalDuplicates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "journal",
		Name: "duplicates_total",
		Help: "Journal entries skipped because their id was already written",
	})
	m.journalWrites = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "journal",
		Name: "writes_total",
		Help: "Journal entries persisted",
	})
	m.journalWriteErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "journal",
		Name: "write_errors_total",
		Help: "Journal store write failures",
	})
	m.journalWorkers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "journal",
		Name: "workers",
		Help: "Journal writer goroutines",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "http",
		Name: "requests_total",
		Help: "HTTP requests by endpoint, method and status code",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "http",
		Name:    "request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.goroutines = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "system",
		Name: "goroutines",
		Help: "Number of goroutines",
	})
	m.memoryBytes = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "system",
		Name: "memory_alloc_bytes",
		Help: "Bytes of allocated heap objects",
	})
}

// RecordCaseCreated counts a new active case.
func RecordCaseCreated() { globalManager.casesCreated.Inc() }

// RecordTransition counts a committed lifecycle edge.
func RecordTransition(from, to string) {
	globalManager.transitions.WithLabelValues(from, to).Inc()
}

// RecordOperationFailure counts a rejected lifecycle operation.
func RecordOperationFailure(operation, kind string) {
	globalManager.operationFailures.WithLabelValues(operation, kind).Inc()
}

// RecordAssignmentConflict counts a lost single-assignment race.
func RecordAssignmentConflict(role string) {
	globalManager.assignmentConflicts.WithLabelValues(role).Inc()
}

// UpdateCasesByStatus sets the gauge for one status.
func UpdateCasesByStatus(status string, count int) {
	globalManager.activeCases.WithLabelValues(status).Set(float64(count))
}

// RecordOperationLatency observes one lifecycle operation.
func RecordOperationLatency(operation string, latencyMs float64) {
	globalManager.operationLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordScoreDelta counts an applied score delta.
func RecordScoreDelta(event string) {
	globalManager.scoreDeltas.WithLabelValues(event).Inc()
}

// UpdateLedgerUsers sets the ledger size.
func UpdateLedgerUsers(count int) { globalManager.ledgerUsers.Set(float64(count)) }

// RecordRankingRead counts a ranking query.
func RecordRankingRead() { globalManager.rankingReads.Inc() }

// UpdateJournalQueueSize sets the current journal backlog.
func UpdateJournalQueueSize(size int) { globalManager.journalQueueSize.Set(float64(size)) }

// UpdateJournalQueueCapacity sets the journal queue capacity.
func UpdateJournalQueueCapacity(capacity int) {
	globalManager.journalQueueCapacity.Set(float64(capacity))
}

// RecordJournalEnqueued counts an accepted journal entry.
func RecordJournalEnqueued() { globalManager.journalEnqueued.Inc() }

// RecordJournalDropped counts a dropped journal entry.
func RecordJournalDropped(reason string) {
	globalManager.journalDropped.WithLabelValues(reason).Inc()
}

// RecordJournalDuplicate counts a skipped duplicate entry.
func RecordJournalDuplicate() { globalManager.journalDuplicates.Inc() }

// RecordJournalWrite counts a persisted entry.
func RecordJournalWrite() { globalManager.journalWrites.Inc() }

// RecordJournalWriteError counts a failed write.
func RecordJournalWriteError() { globalManager.journalWriteErrors.Inc() }

// UpdateJournalWorkers sets the number of journal writers.
func UpdateJournalWorkers(count int) { globalManager.journalWorkers.Set(float64(count)) }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.goroutines.Set(float64(count)) }

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.memoryBytes.Set(float64(bytes)) }

// GetRegistry returns the registry that backs the package-level helpers.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
