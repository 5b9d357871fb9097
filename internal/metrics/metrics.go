// Package metrics holds the Prometheus collectors for provider traffic,
// cache behavior and workflow runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Set bundles every collector on a dedicated registry so the monitor
// server exposes exactly the module's metrics and tests can gather them in
// isolation. A nil *Set is valid and records nothing.
type Set struct {
	registry *prometheus.Registry

	ProviderRequests *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	FederationMerges *prometheus.CounterVec
	WorkflowRuns     *prometheus.CounterVec
}

// NewSet builds and registers all collectors.
func NewSet() *Set {
	s := &Set{
		registry: prometheus.NewRegistry(),

		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickerlens_provider_requests_total",
				Help: "Upstream fetches by provider, intent and outcome",
			},
			[]string{"provider", "intent", "status"},
		),

		ProviderLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tickerlens_provider_latency_seconds",
				Help:    "Upstream fetch latency by provider",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 15.0},
			},
			[]string{"provider"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickerlens_cache_hits_total",
				Help: "Envelope cache hits by intent",
			},
			[]string{"intent"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickerlens_cache_misses_total",
				Help: "Envelope cache misses by intent",
			},
			[]string{"intent"},
		),

		FederationMerges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickerlens_federation_merges_total",
				Help: "Comprehensive-coverage merges by intent",
			},
			[]string{"intent"},
		),

		WorkflowRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickerlens_workflow_runs_total",
				Help: "Analytic workflow executions by workflow and outcome",
			},
			[]string{"workflow", "status"},
		),
	}

	s.registry.MustRegister(
		s.ProviderRequests,
		s.ProviderLatency,
		s.CacheHits,
		s.CacheMisses,
		s.FederationMerges,
		s.WorkflowRuns,
	)
	return s
}

// Registry exposes the gatherer for the monitor server and tests.
func (s *Set) Registry() *prometheus.Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

// RecordProviderRequest counts one upstream fetch and its latency.
func (s *Set) RecordProviderRequest(provider, intent, status string, elapsed time.Duration) {
	if s == nil {
		return
	}
	s.ProviderRequests.WithLabelValues(provider, intent, status).Inc()
	s.ProviderLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordCache counts a cache lookup outcome.
func (s *Set) RecordCache(intent string, hit bool) {
	if s == nil {
		return
	}
	if hit {
		s.CacheHits.WithLabelValues(intent).Inc()
		return
	}
	s.CacheMisses.WithLabelValues(intent).Inc()
}

// RecordMerge counts one comprehensive merge step.
func (s *Set) RecordMerge(intent string) {
	if s == nil {
		return
	}
	s.FederationMerges.WithLabelValues(intent).Inc()
}

// RecordWorkflow counts one workflow run outcome.
func (s *Set) RecordWorkflow(workflow, status string) {
	if s == nil {
		return
	}
	s.WorkflowRuns.WithLabelValues(workflow, status).Inc()
}
