// Package metrics Prometheus collectors for the gateway
// Upstream call outcomes, fallback activations, token exchanges and
// station catalog loads; every recorder is safe on a nil *Metrics
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics gateway metrics bound to a private registry
type Metrics struct {
	registry *prometheus.Registry

	UpstreamRequests   *prometheus.CounterVec
	UpstreamDuration   *prometheus.HistogramVec
	Fallbacks          *prometheus.CounterVec
	TokenExchanges     *prometheus.CounterVec
	TokenInvalidations prometheus.Counter
	CatalogLoads       *prometheus.CounterVec
}

// New creates the collectors and registers them with a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Upstream provider calls by outcome (ok, upstream_error, transport_error)",
			},
			[]string{"provider", "outcome"},
		),

		UpstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Subsystem: "upstream",
				Name:      "duration_seconds",
				Help:      "Upstream provider call duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
			},
			[]string{"provider"},
		),

		Fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "fallback_total",
				Help:      "Fallback chain activations by capability and result",
			},
			[]string{"capability", "result"},
		),

		TokenExchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "token_exchanges_total",
				Help:      "Credential exchange runs by result",
			},
			[]string{"result"},
		),

		TokenInvalidations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "token_invalidations_total",
				Help:      "Cached tokens cleared after a 401",
			},
		),

		CatalogLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "station_catalog_loads_total",
				Help:      "Station catalog fetches by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.Fallbacks,
		m.TokenExchanges,
		m.TokenInvalidations,
		m.CatalogLoads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ========================================
// Recorders
// ========================================

// ObserveUpstream records one upstream call
func (m *Metrics) ObserveUpstream(provider, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(provider, outcome).Inc()
	m.UpstreamDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordFallback records a fallback activation (result: primary, secondary, failed)
func (m *Metrics) RecordFallback(capability, result string) {
	if m == nil {
		return
	}
	m.Fallbacks.WithLabelValues(capability, result).Inc()
}

// RecordTokenExchange records one exchange run (result: ok, failed)
func (m *Metrics) RecordTokenExchange(result string) {
	if m == nil {
		return
	}
	m.TokenExchanges.WithLabelValues(result).Inc()
}

// RecordTokenInvalidation records a cleared token
func (m *Metrics) RecordTokenInvalidation() {
	if m == nil {
		return
	}
	m.TokenInvalidations.Inc()
}

// RecordCatalogLoad records a catalog fetch (result: ok, failed)
func (m *Metrics) RecordCatalogLoad(result string) {
	if m == nil {
		return
	}
	m.CatalogLoads.WithLabelValues(result).Inc()
}
