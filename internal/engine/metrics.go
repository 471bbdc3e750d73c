package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/tql/internal/audit"
)

// Metrics are the engine's Prometheus collectors.
//
// A nil *Metrics is valid and records nothing, so tests and embedders that
// do not scrape metrics pay nothing for them.
type Metrics struct {
	statements *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	cache      *prometheus.CounterVec
	failures   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// Registering twice on the same registry panics, as with any collector.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tql",
			Name:      "statements_total",
			Help:      "Statement and widget executions by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tql",
			Name:      "datasource_duration_seconds",
			Help:      "Data-source call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tql",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by result.",
		}, []string{"result"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tql",
			Name:      "internal_failures_total",
			Help:      "Swallowed cache and audit failures.",
		}, []string{"component"}),
	}
	if reg != nil {
		reg.MustRegister(m.statements, m.latency, m.cache, m.failures)
	}
	for _, o := range audit.Outcomes {
		m.statements.WithLabelValues(string(o))
	}
	return m
}

func (m *Metrics) statement(o audit.Outcome) {
	if m == nil {
		return
	}
	m.statements.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) observe(status string, seconds float64) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(status).Observe(seconds)
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cache.WithLabelValues("hit").Inc()
		return
	}
	m.cache.WithLabelValues("miss").Inc()
}

func (m *Metrics) failure(component string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(component).Inc()
}
