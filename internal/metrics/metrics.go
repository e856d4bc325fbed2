// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Extraction outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeInvalidInput = "invalid_input"
	OutcomeFetchFailed  = "fetch_failed"
)

// Claim outcomes.
const (
	ClaimOK       = "ok"
	ClaimConflict = "conflict"
)

// Metrics holds the service collectors.
type Metrics struct {
	registry *prometheus.Registry

	ExtractRequests  *prometheus.CounterVec
	ExtractDuration  prometheus.Histogram
	Submissions      *prometheus.CounterVec
	DispatchFailures prometheus.Counter
	Claims           *prometheus.CounterVec
	EnrichWriteBacks prometheus.Counter
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ExtractRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wishwell_extract_requests_total",
			Help: "Product page extractions by outcome.",
		}, []string{"outcome"}),
		ExtractDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wishwell_extract_duration_seconds",
			Help:    "Wall time of product page extractions.",
			Buckets: prometheus.DefBuckets,
		}),
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wishwell_submissions_total",
			Help: "Wish submissions by kind (linked or manual).",
		}, []string{"kind"}),
		DispatchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "wishwell_dispatch_failures_total",
			Help: "Enrichment dispatches that could not be delivered.",
		}),
		Claims: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wishwell_claims_total",
			Help: "Claim attempts by outcome.",
		}, []string{"outcome"}),
		EnrichWriteBacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "wishwell_enrichment_writebacks_total",
			Help: "Placeholder items replaced by enrichment results.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
