package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Engine metrics
	EngineOperationsTotal  *prometheus.CounterVec
	EngineOperationErrors  *prometheus.CounterVec
	EngineOperationSeconds *prometheus.HistogramVec

	// Feed import metrics
	FeedImportsTotal   prometheus.Counter
	FeedImportOutcomes *prometheus.CounterVec

	// Sweep metrics
	OrphanedArchives prometheus.Gauge

	// Push metrics
	PushNotificationsTotal prometheus.Counter
	PushNotificationErrors prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "manage_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "manage_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		EngineOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "manage_engine_operations_total",
				Help: "Total number of revision engine operations",
			},
			[]string{"operation", "type"},
		),
		EngineOperationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "manage_engine_operation_errors_total",
				Help: "Total number of failed engine operations",
			},
			[]string{"operation", "type"},
		),
		EngineOperationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "manage_engine_operation_duration_seconds",
				Help:    "Engine operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		FeedImportsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "manage_feed_imports_total",
				Help: "Total number of feed import runs",
			},
		),
		FeedImportOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "manage_feed_import_outcomes_total",
				Help: "Per-entity outcomes of feed imports",
			},
			[]string{"outcome"},
		),
		OrphanedArchives: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "manage_orphaned_archives",
				Help: "Archived revisions without a promoted successor found by the last sweep",
			},
		),
		PushNotificationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "manage_push_notifications_total",
				Help: "Total number of downstream push notifications sent",
			},
		),
		PushNotificationErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "manage_push_notification_errors_total",
				Help: "Total number of failed downstream push notifications",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EngineOperationsTotal,
		m.EngineOperationErrors,
		m.EngineOperationSeconds,
		m.FeedImportsTotal,
		m.FeedImportOutcomes,
		m.OrphanedArchives,
		m.PushNotificationsTotal,
		m.PushNotificationErrors,
	)

	return m
}

// Handler returns the HTTP handler exposing the registry.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
