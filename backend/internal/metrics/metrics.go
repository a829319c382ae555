// Package metrics holds the Prometheus instrumentation of the extraction
// pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Extraction request outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeEmpty     = "empty"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeTooLarge  = "too_large"
)

// Merge item results
const (
	MergeNodeCreated = "node_created"
	MergeNodeReused  = "node_reused"
	MergeEdgeCreated = "edge_created"
	MergeEdgeSkipped = "edge_skipped"
	MergeFailed      = "failed"
)

// Metrics holds the pipeline collectors and the registry serving them
type Metrics struct {
	registry *prometheus.Registry

	extractionRequests *prometheus.CounterVec
	inferenceDuration  prometheus.Histogram
	sanitizerStages    *prometheus.CounterVec
	proposals          *prometheus.CounterVec
	mergeItems         *prometheus.CounterVec
}

// New creates the pipeline metrics on a private registry
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.extractionRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkboard_extraction_requests_total",
			Help: "Extraction requests by outcome",
		},
		[]string{"outcome"},
	)

	m.inferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "linkboard_inference_duration_seconds",
			Help:    "Duration of inference calls, including failed and cancelled ones",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		},
	)

	m.sanitizerStages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkboard_sanitizer_stage_total",
			Help: "Sanitized responses by the stage that produced the candidate",
		},
		[]string{"stage"},
	)

	m.proposals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkboard_proposals_total",
			Help: "Normalized proposals by kind",
		},
		[]string{"kind"},
	)

	m.mergeItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkboard_merge_items_total",
			Help: "Committed proposals by merge result",
		},
		[]string{"result"},
	)

	m.registry.MustRegister(
		m.extractionRequests,
		m.inferenceDuration,
		m.sanitizerStages,
		m.proposals,
		m.mergeItems,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordExtraction counts one finished extraction request
func (m *Metrics) RecordExtraction(outcome string) {
	if m == nil {
		return
	}
	m.extractionRequests.WithLabelValues(outcome).Inc()
}

// ObserveInference records how long an inference call took
func (m *Metrics) ObserveInference(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inferenceDuration.Observe(elapsed.Seconds())
}

// RecordSanitizerStage counts the stage a response was recovered at
func (m *Metrics) RecordSanitizerStage(stage string) {
	if m == nil {
		return
	}
	m.sanitizerStages.WithLabelValues(stage).Inc()
}

// RecordProposals counts the nodes and edges of one normalized batch
func (m *Metrics) RecordProposals(nodes, edges int) {
	if m == nil {
		return
	}
	m.proposals.WithLabelValues("node").Add(float64(nodes))
	m.proposals.WithLabelValues("edge").Add(float64(edges))
}

// RecordMerge counts n merge items with the given result
func (m *Metrics) RecordMerge(result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.mergeItems.WithLabelValues(result).Add(float64(n))
}
