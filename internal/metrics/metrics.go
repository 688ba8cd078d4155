// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Visuworld Contributors

// Package metrics holds the prometheus collectors for the shader pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcomes recorded on visuworld_requests_total.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics is a set of collectors bound to one registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration     *prometheus.HistogramVec
	requestsTotal     *prometheus.CounterVec
	retriesTotal      *prometheus.CounterVec
	truncationsTotal  prometheus.Counter
	retrievedExamples prometheus.Histogram
	ingestedTotal     *prometheus.CounterVec
}

// New registers the pipeline collectors on a fresh registry that also carries
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "visuworld_stage_duration_seconds",
				Help:    "Duration of each shader pipeline stage in seconds",
				Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visuworld_requests_total",
				Help: "Total number of pipeline requests by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visuworld_retries_total",
				Help: "Total number of upstream retries by stage",
			},
			[]string{"stage"},
		),
		truncationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "visuworld_truncations_total",
				Help: "Total number of texts truncated to the embedding token budget",
			},
		),
		retrievedExamples: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "visuworld_retrieved_examples",
				Help:    "Number of examples returned by the vector index per query",
				Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
			},
		),
		ingestedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visuworld_ingested_examples_total",
				Help: "Total number of catalog records processed by ingestion",
			},
			[]string{"result"},
		),
	}
}

// Registry exposes the underlying registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Since is ObserveStage(stage, time.Since(start)), shaped for defer.
func (m *Metrics) Since(stage string, start time.Time) {
	m.ObserveStage(stage, time.Since(start))
}

func (m *Metrics) CountRequest(operation string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.requestsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) CountRetry(stage string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) CountTruncation() {
	if m == nil {
		return
	}
	m.truncationsTotal.Inc()
}

func (m *Metrics) ObserveRetrieved(n int) {
	if m == nil {
		return
	}
	m.retrievedExamples.Observe(float64(n))
}

// CountIngested records one catalog record with result "indexed", "skipped"
// or "failed".
func (m *Metrics) CountIngested(result string) {
	if m == nil {
		return
	}
	m.ingestedTotal.WithLabelValues(result).Inc()
}
