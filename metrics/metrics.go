// Package metrics wraps a prometheus.Registry exposing exactly the
// counters, histogram, and gauges named in spec.md §4.5: requests_total,
// request_duration_seconds, tokens_total, estimated_cost_usd, errors_total,
// backend_health, active_requests, backend_budget_usd.
//
// The constructor pattern (promauto.With(registry) building each metric
// once, fields on a single Collector-like struct) is grounded on the
// teacher's internal/metrics.Collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide metrics sink shared by every Backend
// Instance constructed by a Service. It owns its own registry so embedding
// applications can scrape it without colliding with their own metric
// namespace.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	TokensTotal        *prometheus.CounterVec
	EstimatedCostUsd   *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
	BackendHealth      *prometheus.GaugeVec
	ActiveRequests     *prometheus.GaugeVec
	BackendBudgetUsd   *prometheus.GaugeVec
}

// New builds a Metrics sink with its own private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total number of backend requests by outcome.",
		}, []string{"backend", "model", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Backend request latency in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"backend", "model"}),
		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tokens_total",
			Help: "Total tokens observed by type.",
		}, []string{"backend", "model", "token_type"}),
		EstimatedCostUsd: f.NewCounterVec(prometheus.CounterOpts{
			Name: "estimated_cost_usd",
			Help: "Estimated spend in USD accrued per backend/model.",
		}, []string{"backend", "model"}),
		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total errors by kind.",
		}, []string{"backend", "error_type"}),
		BackendHealth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backend_health",
			Help: "1 if the backend is healthy, 0 otherwise.",
		}, []string{"backend"}),
		ActiveRequests: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "active_requests",
			Help: "In-flight requests per backend.",
		}, []string{"backend"}),
		BackendBudgetUsd: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backend_budget_usd",
			Help: "Current and max spend per backend.",
		}, []string{"backend", "limit_type"}),
	}
}

// Registry exposes the underlying registry so a caller can wire it into a
// scrape endpoint (e.g. promhttp.HandlerFor) — the core never starts an
// HTTP listener itself.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
