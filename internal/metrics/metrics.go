// Package metrics holds the prometheus collectors exported on /metrics.
//
// A nil *Metrics is valid and records nothing, so components can be
// constructed without metrics in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tasktrail"

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Job outcomes.
const (
	JobCompleted = "completed"
	JobRetried   = "retried"
	JobFailed    = "failed"
)

// Metrics groups the application counters together with the registry they
// are registered on.
type Metrics struct {
	registry         *prometheus.Registry
	paginationCache  *prometheus.CounterVec
	activitiesLogged *prometheus.CounterVec
	jobs             *prometheus.CounterVec
}

// New creates a fresh registry with the Go and process collectors plus the
// application counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		paginationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pagination_cache_total",
			Help:      "Pagination cache lookups by collection and result.",
		}, []string{"collection", "result"}),
		activitiesLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activities_logged_total",
			Help:      "Activity records written by action.",
		}, []string{"action"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Background job executions by job name and outcome.",
		}, []string{"name", "outcome"}),
	}
	reg.MustRegister(m.paginationCache, m.activitiesLogged, m.jobs)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CacheLookup counts one pagination cache lookup.
func (m *Metrics) CacheLookup(collection, result string) {
	if m == nil {
		return
	}
	m.paginationCache.WithLabelValues(collection, result).Inc()
}

// ActivityLogged counts one persisted activity record.
func (m *Metrics) ActivityLogged(action string) {
	if m == nil {
		return
	}
	m.activitiesLogged.WithLabelValues(action).Inc()
}

// JobOutcome counts one job execution result.
func (m *Metrics) JobOutcome(name, outcome string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(name, outcome).Inc()
}
