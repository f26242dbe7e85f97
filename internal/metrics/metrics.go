// Package metrics exposes the billing counters scraped at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "warnet"

type Metrics struct {
	registry *prometheus.Registry

	Transitions    *prometheus.CounterVec
	StoreErrors    *prometheus.CounterVec
	RevenueTotal   prometheus.Counter
	ActiveSessions prometheus.Gauge
	RunningTimers  prometheus.Gauge
	Expirations    prometheus.Counter
	PublishErrors  *prometheus.CounterVec
	BreakerState   *prometheus.GaugeVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session lifecycle transitions by action.",
		}, []string{"action"}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Failed store operations by action.",
		}, []string{"action"}),
		RevenueTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalized_revenue_total",
			Help:      "Sum of finalized transaction amounts.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held by the store.",
		}),
		RunningTimers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_timers",
			Help:      "Countdowns currently running.",
		}),
		Expirations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_expirations_total",
			Help:      "Countdowns that reached zero.",
		}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Events that could not be published, by type.",
		}, []string{"type"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "publisher_breaker_state",
			Help:      "1 for the current state of the publisher circuit breaker.",
		}, []string{"state"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Transitions,
		m.StoreErrors,
		m.RevenueTotal,
		m.ActiveSessions,
		m.RunningTimers,
		m.Expirations,
		m.PublishErrors,
		m.BreakerState,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	m.SetBreakerState("closed")
	return m
}

func (m *Metrics) SetBreakerState(state string) {
	for _, s := range []string{"closed", "half-open", "open"} {
		value := 0.0
		if s == state {
			value = 1
		}
		m.BreakerState.WithLabelValues(s).Set(value)
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
