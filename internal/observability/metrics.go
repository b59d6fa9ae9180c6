package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the engine's Prometheus collectors. All collectors are
// registered on a private registry so tests can construct multiple Metrics
// values without duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	TasksEnqueued  *prometheus.CounterVec
	TasksFinalized *prometheus.CounterVec
	QueueDepth     prometheus.Gauge
	BatchDuration  prometheus.Histogram
	CheckoutTime   prometheus.Histogram
	WebhookEvents  *prometheus.CounterVec
	PollIterations *prometheus.CounterVec
}

// NewMetrics constructs and registers the engine's collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		TasksEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewguard_tasks_enqueued_total",
			Help: "Review tasks enqueued, by ingestion origin.",
		}, []string{"origin"}),
		TasksFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewguard_tasks_finalized_total",
			Help: "Review tasks reaching a terminal status.",
		}, []string{"status"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reviewguard_queue_depth",
			Help: "Tasks currently waiting in the scheduler queue.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reviewguard_batch_duration_seconds",
			Help:    "Wall-clock duration of one assistant batch invocation.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		CheckoutTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reviewguard_checkout_duration_seconds",
			Help:    "Wall-clock duration of mirror fetch plus checkout.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewguard_webhook_events_total",
			Help: "Inbound webhook deliveries, by platform and outcome.",
		}, []string{"platform", "outcome"}),
		PollIterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewguard_poll_iterations_total",
			Help: "Poller ticks executed, by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		m.TasksEnqueued, m.TasksFinalized, m.QueueDepth,
		m.BatchDuration, m.CheckoutTime, m.WebhookEvents, m.PollIterations,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
