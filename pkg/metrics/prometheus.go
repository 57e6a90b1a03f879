// Package metrics provides Prometheus metrics for the auction tournament.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the tournament runner.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Sandbox metrics - calls into untrusted strategy code
	sandboxCalls         *prometheus.CounterVec
	sandboxCallDuration  *prometheus.HistogramVec
	sandboxAbandonedCall prometheus.Gauge

	// Auction metrics
	bids          *prometheus.CounterVec
	rounds        *prometheus.CounterVec
	clearingPrice prometheus.Histogram

	// Game and tournament metrics
	games          *prometheus.CounterVec
	gameDuration   prometheus.Histogram
	activeGames    prometheus.Gauge
	registeredTeam prometheus.Gauge
	stagesDone     *prometheus.CounterVec

	// Results pipeline metrics
	sinkRecords       *prometheus.CounterVec
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueRejected     prometheus.Counter
	workerLatency     prometheus.Histogram
	standingsRecorded prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors by component
	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "bidarena",
		subsystem:        "tournament",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2000, 5000},
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.sandboxCalls = m.counterVec("sandbox_calls_total",
		"Calls into strategy code by operation and status (ok, timed_out, faulted)",
		"operation", "status")
	m.sandboxCallDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "sandbox_call_duration_milliseconds",
		Help:        "Wall-clock duration of strategy calls in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"operation"})
	m.sandboxAbandonedCall = m.gauge("sandbox_abandoned_calls",
		"Strategy calls abandoned after their deadline that have not yet returned")

	m.bids = m.counterVec("bids_total",
		"Bids by disposition (accepted, zero, capped, invalid, timeout, fault)",
		"disposition")
	m.rounds = m.counterVec("rounds_total",
		"Resolved auction rounds by result (sold, tied, unsold)",
		"result")
	m.clearingPrice = m.histogram("clearing_price",
		"Clearing price of sold items",
		[]float64{0.5, 1, 2, 5, 10, 15, 20, 30, 45, 60})

	m.games = m.counterVec("games_total", "Completed games by stage", "stage")
	m.gameDuration = m.histogram("game_duration_milliseconds",
		"Wall-clock duration of a game in milliseconds", m.histogramBuckets)
	m.activeGames = m.gauge("active_games", "Games currently running")
	m.registeredTeam = m.gauge("registered_teams", "Teams registered for the tournament")
	m.stagesDone = m.counterVec("stages_completed_total", "Completed stages", "stage")

	m.sinkRecords = m.counterVec("sink_records_total",
		"Result records handled by the sink by kind and status", "kind", "status")
	m.queueSize = m.gauge("queue_size", "Current size of the result record queue")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the result record queue")
	m.queueRejected = promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "queue_rejected_total",
		Help:        "Result records rejected by a closed or full queue",
		ConstLabels: m.constLabels,
	})
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds",
		"Time spent persisting one result record", m.histogramBuckets)
	m.standingsRecorded = m.gauge("standings_recorded", "Team standings currently held by the rank store")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_total",
		"Errors by component and type", "component", "error_type")
}

// RecordSandboxCall records one strategy call and its duration.
func RecordSandboxCall(operation, status string, durationMs float64) {
	globalManager.sandboxCalls.WithLabelValues(operation, status).Inc()
	globalManager.sandboxCallDuration.WithLabelValues(operation).Observe(durationMs)
}

// AddAbandonedCalls adjusts the abandoned call gauge by delta.
func AddAbandonedCalls(delta int) {
	globalManager.sandboxAbandonedCall.Add(float64(delta))
}

// RecordBid records a bid disposition.
func RecordBid(disposition string) {
	globalManager.bids.WithLabelValues(disposition).Inc()
}

// RecordRound records a resolved round; price is only observed for sold items.
func RecordRound(result string, price float64) {
	globalManager.rounds.WithLabelValues(result).Inc()
	if result != "unsold" {
		globalManager.clearingPrice.Observe(price)
	}
}

// RecordGame records a completed game.
func RecordGame(stage string, durationMs float64) {
	globalManager.games.WithLabelValues(stage).Inc()
	globalManager.gameDuration.Observe(durationMs)
}

// AddActiveGames adjusts the running game gauge by delta.
func AddActiveGames(delta int) {
	globalManager.activeGames.Add(float64(delta))
}

// UpdateRegisteredTeams sets the registered team gauge.
func UpdateRegisteredTeams(count int) {
	globalManager.registeredTeam.Set(float64(count))
}

// RecordStageCompleted increments the completed stage counter.
func RecordStageCompleted(stage string) {
	globalManager.stagesDone.WithLabelValues(stage).Inc()
}

// RecordSinkRecord records a handled result record.
func RecordSinkRecord(kind, status string) {
	globalManager.sinkRecords.WithLabelValues(kind, status).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueRejected increments the rejected record counter.
func RecordQueueRejected() {
	globalManager.queueRejected.Inc()
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// UpdateStandingsRecorded sets the number of standings in the rank store.
func UpdateStandingsRecorded(count int) {
	globalManager.standingsRecorded.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
