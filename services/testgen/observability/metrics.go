// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the test
// generation service.
//
// # Description
//
// Metrics cover the streaming generation endpoint: request counters,
// delta throughput by model, time-to-first-delta and stream duration
// histograms, active stream gauges, and error counters by code. Exposed
// via the /metrics endpoint for Prometheus + Grafana.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for generation metrics
const generationSubsystem = "testgen"

// GenerationMetrics holds all Prometheus metrics for streaming test
// generation. Initialize once at startup via InitMetrics().
type GenerationMetrics struct {
	// RequestsTotal counts generation requests by status.
	// Labels: status (success, error)
	RequestsTotal *prometheus.CounterVec

	// DeltasTotal counts streamed text deltas by model.
	// Labels: model
	DeltasTotal *prometheus.CounterVec

	// TimeToFirstDeltaSeconds measures latency to the first delta.
	TimeToFirstDeltaSeconds prometheus.Histogram

	// StreamDurationSeconds measures total stream duration.
	// Labels: status (success, error)
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently active generation streams.
	ActiveStreams prometheus.Gauge

	// ErrorsTotal counts errors by code.
	// Labels: error_code (validation, provider_*, extraction, ...)
	ErrorsTotal *prometheus.CounterVec

	// KeepAlivesTotal counts keepalive writes sent.
	KeepAlivesTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of GenerationMetrics.
// Initialized by InitMetrics(). Call sites nil-guard so tests that never
// initialize metrics still run.
var DefaultMetrics *GenerationMetrics

var initOnce sync.Once

// InitMetrics initializes the default metrics instance.
//
// Safe to call more than once; registration happens on the first call
// only (duplicate promauto registration would panic).
func InitMetrics() *GenerationMetrics {
	initOnce.Do(func() {
		DefaultMetrics = &GenerationMetrics{
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: generationSubsystem,
					Name:      "requests_total",
					Help:      "Total number of generation requests by status",
				},
				[]string{"status"},
			),

			DeltasTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: generationSubsystem,
					Name:      "deltas_total",
					Help:      "Total streamed text deltas by model",
				},
				[]string{"model"},
			),

			TimeToFirstDeltaSeconds: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: metricsNamespace,
					Subsystem: generationSubsystem,
					Name:      "time_to_first_delta_seconds",
					Help:      "Time from request to first streamed delta in seconds",
					Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
				},
			),

			StreamDurationSeconds: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: metricsNamespace,
					Subsystem: generationSubsystem,
					Name:      "stream_duration_seconds",
					Help:      "Total stream duration in seconds",
					Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
				},
				[]string{"status"},
			),

			ActiveStreams: promauto.NewGauge(
				prometheus.GaugeOpts{
					Namespace: metricsNamespace,
					Subsystem: generationSubsystem,
					Name:      "active_streams",
					Help:      "Number of currently active generation streams",
				},
			),

			ErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: generationSubsystem,
					Name:      "errors_total",
					Help:      "Total generation errors by code",
				},
				[]string{"error_code"},
			),

			KeepAlivesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: generationSubsystem,
					Name:      "keepalives_total",
					Help:      "Total keepalive writes sent",
				},
			),
		}
	})

	return DefaultMetrics
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeProviderUnauthorized indicates rejected provider credentials.
	ErrorCodeProviderUnauthorized ErrorCode = "provider_unauthorized"

	// ErrorCodeProviderRateLimited indicates provider-side rate limiting.
	ErrorCodeProviderRateLimited ErrorCode = "provider_rate_limited"

	// ErrorCodeProviderTimeout indicates the stream exceeded its budget.
	ErrorCodeProviderTimeout ErrorCode = "provider_timeout"

	// ErrorCodeProviderError indicates any other provider failure.
	ErrorCodeProviderError ErrorCode = "provider_error"

	// ErrorCodeExtraction indicates no artifacts could be extracted.
	ErrorCodeExtraction ErrorCode = "extraction"

	// ErrorCodeClientDisconnect indicates the client disconnected mid-stream.
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"

	// ErrorCodeInternal indicates an internal server error.
	ErrorCodeInternal ErrorCode = "internal"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed generation request.
func (m *GenerationMetrics) RecordRequest(success bool) {
	m.RequestsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordError records a generation error by code.
func (m *GenerationMetrics) RecordError(code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(code)).Inc()
}

// RecordDeltas adds to the delta counter for a model.
func (m *GenerationMetrics) RecordDeltas(model string, n int) {
	m.DeltasTotal.WithLabelValues(model).Add(float64(n))
}

// StreamStarted increments the active streams gauge.
func (m *GenerationMetrics) StreamStarted() {
	m.ActiveStreams.Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *GenerationMetrics) StreamEnded() {
	m.ActiveStreams.Dec()
}

// RecordTimeToFirstDelta records latency to the first delta.
func (m *GenerationMetrics) RecordTimeToFirstDelta(seconds float64) {
	m.TimeToFirstDeltaSeconds.Observe(seconds)
}

// RecordStreamDuration records the total stream duration.
func (m *GenerationMetrics) RecordStreamDuration(seconds float64, success bool) {
	m.StreamDurationSeconds.WithLabelValues(statusLabel(success)).Observe(seconds)
}

// RecordKeepAlive counts one keepalive write.
func (m *GenerationMetrics) RecordKeepAlive() {
	m.KeepAlivesTotal.Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
