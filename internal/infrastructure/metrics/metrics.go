// Package metrics exposes action and review counters for the /metrics endpoint.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server collectors and the registry they live in
type Metrics struct {
	registry       *prometheus.Registry
	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	reviews        *prometheus.CounterVec
	conflicts      prometheus.Counter
}

// New creates the collectors on a private registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trip_actions_total",
			Help: "Protocol actions handled, by action and result code.",
		}, []string{"action", "code"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trip_action_duration_seconds",
			Help:    "Protocol action latency.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"action"}),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trip_reviews_total",
			Help: "Review verdicts applied, by target and verdict.",
		}, []string{"target", "verdict"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trip_version_conflicts_total",
			Help: "Uploads rejected because the base version was stale.",
		}),
	}

	registry.MustRegister(
		m.actions,
		m.actionDuration,
		m.reviews,
		m.conflicts,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveAction records one handled action; code is empty on success
func (m *Metrics) ObserveAction(action, code string, elapsed time.Duration) {
	if code == "" {
		code = "OK"
	}
	m.actions.WithLabelValues(action, code).Inc()
	m.actionDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// ObserveReview counts a verdict applied to a trip or an expense
func (m *Metrics) ObserveReview(target, verdict string) {
	m.reviews.WithLabelValues(target, verdict).Inc()
}

// ObserveConflict counts a rejected stale upload
func (m *Metrics) ObserveConflict() {
	m.conflicts.Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
