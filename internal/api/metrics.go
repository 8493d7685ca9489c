package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the command calls made through the HTTP surface.
type Metrics struct {
	creationAttempts prometheus.Counter
	creationSuccess  prometheus.Counter
	creationErrors   *prometheus.CounterVec
	creationDuration prometheus.Histogram
	requestsTotal    *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics registers every collector on its own registry. queueLen, when
// set, is exported as the command queue depth.
func NewMetrics(queueLen func() int) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		creationAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_creation_attempts_total",
			Help: "Pipelines submitted for creation",
		}),
		creationSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_creation_success_total",
			Help: "Pipelines accepted by the engine",
		}),
		creationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_creation_errors_total",
			Help: "Pipeline creations that failed, by reason",
		}, []string{"reason"}),
		creationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_creation_duration_seconds",
			Help:    "Time to create a pipeline through the engine",
			Buckets: prometheus.DefBuckets,
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"route", "status"}),
		registry: registry,
	}

	registry.MustRegister(
		m.creationAttempts,
		m.creationSuccess,
		m.creationErrors,
		m.creationDuration,
		m.requestsTotal,
	)
	if queueLen != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "engine_command_queue_length",
			Help: "Commands waiting for the engine loop",
		}, func() float64 {
			return float64(queueLen())
		}))
	}

	return m
}

// WatchPriceAge exports the seconds since updatedAt, -1 while it is zero.
func (m *Metrics) WatchPriceAge(updatedAt func() time.Time) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "market_price_age_seconds",
		Help: "Seconds since the cached price was last written",
	}, func() float64 {
		at := updatedAt()
		if at.IsZero() {
			return -1
		}
		return time.Since(at).Seconds()
	}))
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observeCreation(start time.Time, reason string) {
	m.creationDuration.Observe(time.Since(start).Seconds())
	if reason == "" {
		m.creationSuccess.Inc()
		return
	}
	m.creationErrors.WithLabelValues(reason).Inc()
}
