package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector collects pipeline metrics
type MetricsCollector struct {
	// Detector metrics
	signalsDetected *prometheus.CounterVec
	fetchErrors     *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec

	// Dispatch metrics
	evaluations     *prometheus.CounterVec
	skips           *prometheus.CounterVec
	scores          *prometheus.HistogramVec
	ledgerConflicts prometheus.Counter
	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram

	// Delivery metrics
	deliveries       *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec

	// Rate limiter metrics
	limiterFill prometheus.Gauge

	// Configuration and analytics metrics
	configActivations        prometheus.Counter
	analyticsRebuilds        *prometheus.CounterVec
	analyticsRebuildDuration prometheus.Histogram

	// API metrics
	apiRequestsTotal *prometheus.CounterVec
	apiResponseTime  *prometheus.HistogramVec
	wsClients        prometheus.Gauge

	// Database metrics
	databaseConnections prometheus.Gauge
	databaseInUse       prometheus.Gauge
	databaseIdle        prometheus.Gauge
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		// Detector metrics
		signalsDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "signals_detected_total",
			Help: "Total number of signals fetched from the detector",
		}, []string{"ticker", "timeframe"}),

		fetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "detector_fetch_errors_total",
			Help: "Total number of failed detector fetches",
		}, []string{"ticker", "timeframe"}),

		fetchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "detector_fetch_duration_seconds",
			Help:    "Detector fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"timeframe"}),

		// Dispatch metrics
		evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_evaluations_total",
			Help: "Total number of signal evaluations by outcome",
		}, []string{"outcome"}),

		skips: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_skips_total",
			Help: "Total number of skipped signals by reason",
		}, []string{"reason"}),

		scores: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signal_score",
			Help:    "Priority score distribution by level",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}, []string{"level"}),

		ledgerConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_conflicts_total",
			Help: "Total number of ledger inserts rejected by the identity constraint",
		}),

		cycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_cycles_total",
			Help: "Total number of dispatch cycles by status",
		}, []string{"status"}),

		cycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_cycle_duration_seconds",
			Help:    "Dispatch cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		// Delivery metrics
		deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_deliveries_total",
			Help: "Total number of delivered notifications by channel",
		}, []string{"channel"}),

		deliveryFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_failures_total",
			Help: "Total number of failed notification deliveries by channel",
		}, []string{"channel"}),

		deliveryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "delivery_duration_seconds",
			Help:    "Notification delivery duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),

		// Rate limiter metrics
		limiterFill: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rate_limiter_window_fill",
			Help: "Number of sends recorded in the current rate limit window",
		}),

		// Configuration and analytics metrics
		configActivations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "priority_config_activations_total",
			Help: "Total number of priority configuration activations",
		}),

		analyticsRebuilds: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "analytics_rebuilds_total",
			Help: "Total number of analytics rebuilds by status",
		}, []string{"status"}),

		analyticsRebuildDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "analytics_rebuild_duration_seconds",
			Help:    "Analytics rebuild duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		// API metrics
		apiRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		}, []string{"endpoint", "method", "status"}),

		apiResponseTime: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_response_time_seconds",
			Help:    "API response time in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "method"}),

		wsClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Number of connected websocket clients",
		}),

		// Database metrics
		databaseConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "database_connections",
			Help: "Number of open database connections",
		}),

		databaseInUse: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "database_connections_in_use",
			Help: "Number of database connections in use",
		}),

		databaseIdle: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		}),
	}

	return mc
}

// RecordFetch records a successful detector fetch
func (mc *MetricsCollector) RecordFetch(ticker, timeframe string, signals int, duration time.Duration) {
	mc.signalsDetected.WithLabelValues(ticker, timeframe).Add(float64(signals))
	mc.fetchDuration.WithLabelValues(timeframe).Observe(duration.Seconds())
}

// RecordFetchError records a failed detector fetch
func (mc *MetricsCollector) RecordFetchError(ticker, timeframe string) {
	mc.fetchErrors.WithLabelValues(ticker, timeframe).Inc()
}

// RecordEvaluation records a dispatch decision. Skipped evaluations
// are additionally counted by reason kind.
func (mc *MetricsCollector) RecordEvaluation(outcome, reason string, score float64, level string) {
	mc.evaluations.WithLabelValues(outcome).Inc()
	if reason != "" {
		mc.skips.WithLabelValues(reason).Inc()
	}
	mc.scores.WithLabelValues(level).Observe(score)
}

// RecordLedgerConflict records an insert rejected by the identity constraint
func (mc *MetricsCollector) RecordLedgerConflict() {
	mc.ledgerConflicts.Inc()
}

// RecordCycle records a completed dispatch cycle
func (mc *MetricsCollector) RecordCycle(status string, duration time.Duration) {
	mc.cycles.WithLabelValues(status).Inc()
	mc.cycleDuration.Observe(duration.Seconds())
}

// RecordDelivery records a notification delivery attempt
func (mc *MetricsCollector) RecordDelivery(channel string, duration time.Duration, success bool) {
	if success {
		mc.deliveries.WithLabelValues(channel).Inc()
	} else {
		mc.deliveryFailures.WithLabelValues(channel).Inc()
	}
	mc.deliveryDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// UpdateLimiterFill updates the rate limiter window fill gauge
func (mc *MetricsCollector) UpdateLimiterFill(count int) {
	mc.limiterFill.Set(float64(count))
}

// RecordConfigActivation records a priority configuration activation
func (mc *MetricsCollector) RecordConfigActivation() {
	mc.configActivations.Inc()
}

// RecordAnalyticsRebuild records an analytics rebuild run
func (mc *MetricsCollector) RecordAnalyticsRebuild(status string, duration time.Duration) {
	mc.analyticsRebuilds.WithLabelValues(status).Inc()
	mc.analyticsRebuildDuration.Observe(duration.Seconds())
}

// RecordAPIRequest records an API request
func (mc *MetricsCollector) RecordAPIRequest(endpoint, method, status string) {
	mc.apiRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// RecordAPIResponseTime records API response time
func (mc *MetricsCollector) RecordAPIResponseTime(endpoint, method string, duration time.Duration) {
	mc.apiResponseTime.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// UpdateWebsocketClients updates the connected websocket client gauge
func (mc *MetricsCollector) UpdateWebsocketClients(count int) {
	mc.wsClients.Set(float64(count))
}

// UpdatePoolStats updates database connection pool gauges
func (mc *MetricsCollector) UpdatePoolStats(open, inUse, idle int) {
	mc.databaseConnections.Set(float64(open))
	mc.databaseInUse.Set(float64(inUse))
	mc.databaseIdle.Set(float64(idle))
}
