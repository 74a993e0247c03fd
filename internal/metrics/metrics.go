// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics exposes Prometheus counters, gauges, and histograms for
// worker lifecycle events and gateway request latencies.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "llama_gateway"

// Metrics holds every Prometheus collector the gateway and supervisor
// report to. Construct once via New, against a registry the caller owns,
// and share the instance.
type Metrics struct {
	// WorkerStartsTotal counts Supervisor.Ensure startup attempts by model
	// and outcome (ready, configuration_error, capacity_exceeded,
	// spawn_failed, exited_before_ready, timeout, shutdown).
	WorkerStartsTotal *prometheus.CounterVec

	// WorkersRunning tracks the number of Ready workers per model (0 or 1,
	// since the supervisor runs at most one worker per model name).
	WorkersRunning *prometheus.GaugeVec

	// EnsureDurationSeconds measures how long Supervisor.Ensure took,
	// including any cold-start wait, by model and outcome.
	EnsureDurationSeconds *prometheus.HistogramVec

	// RequestDurationSeconds measures gateway request latency by dialect
	// (openai, ollama), route, and HTTP status code.
	RequestDurationSeconds *prometheus.HistogramVec

	// RequestsTotal counts gateway requests by dialect, route, and status.
	RequestsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New builds a Metrics instance against a dedicated registry and returns
// it. A dedicated (rather than the global default) registry keeps
// repeated construction in tests collision-free.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		WorkerStartsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "worker",
				Name:      "starts_total",
				Help:      "Total worker start attempts by model and outcome",
			},
			[]string{"model", "outcome"},
		),
		WorkersRunning: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "worker",
				Name:      "running",
				Help:      "Whether a model currently has a Ready worker (1) or not (0)",
			},
			[]string{"model"},
		),
		EnsureDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "worker",
				Name:      "ensure_duration_seconds",
				Help:      "Time spent in Supervisor.Ensure by model and outcome",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 240},
			},
			[]string{"model", "outcome"},
		),
		RequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Gateway request latency by dialect, route, and status",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30, 60},
			},
			[]string{"dialect", "route", "status"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total gateway requests by dialect, route, and status",
			},
			[]string{"dialect", "route", "status"},
		),
	}
	reg.MustRegister(m.WorkerStartsTotal, m.WorkersRunning, m.EnsureDurationSeconds, m.RequestDurationSeconds, m.RequestsTotal)
	return m
}

// RecordEnsure records one Supervisor.Ensure call's outcome and duration.
func (m *Metrics) RecordEnsure(model, outcome string, seconds float64) {
	m.WorkerStartsTotal.WithLabelValues(model, outcome).Inc()
	m.EnsureDurationSeconds.WithLabelValues(model, outcome).Observe(seconds)
}

// SetWorkerRunning reflects a model's current Ready state in the gauge.
func (m *Metrics) SetWorkerRunning(model string, running bool) {
	v := 0.0
	if running {
		v = 1.0
	}
	m.WorkersRunning.WithLabelValues(model).Set(v)
}

// RecordRequest records one gateway request's outcome and duration.
func (m *Metrics) RecordRequest(dialect, route, status string, seconds float64) {
	m.RequestsTotal.WithLabelValues(dialect, route, status).Inc()
	m.RequestDurationSeconds.WithLabelValues(dialect, route, status).Observe(seconds)
}

// Handler returns an http.Handler serving this instance's collectors in
// the Prometheus exposition format, for mounting at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
