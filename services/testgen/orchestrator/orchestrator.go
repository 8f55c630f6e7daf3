// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator drives a provider adapter's delta stream through an
// explicit state machine and converts it into progress reporting.
//
// One Orchestrator serves exactly one request: it owns the accumulator
// buffer and the state, so concurrent requests share nothing. Suspension
// happens only while awaiting the next delta inside the adapter, which
// makes cancellation and timeout a single transition instead of scattered
// checks.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/testforge/services/llm"
	"github.com/AleutianAI/testforge/services/testgen/observability"
	"github.com/AleutianAI/testforge/services/testgen/prompt"
	"github.com/AleutianAI/testforge/services/testgen/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.testforge.orchestrator")

// =============================================================================
// State Machine
// =============================================================================

// State is the orchestrator's lifecycle state.
// Transitions: Idle -> Streaming -> Completed | Failed. Terminal states
// are never left.
type State int32

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateFailed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrCancelled marks a request that was cancelled by the caller while
// streaming. Partial output is discarded, never surfaced as a completion.
var ErrCancelled = errors.New("generation cancelled")

// =============================================================================
// Configuration
// =============================================================================

const (
	// DefaultTimeout is the wall-clock budget measured from stream start.
	DefaultTimeout = 3 * time.Minute

	// bytesPerToken is the estimation rule behind the progress heuristic:
	// expected output size is MaxTokens * bytesPerToken. Four bytes per
	// token is the usual English-text rule of thumb.
	bytesPerToken = 4

	// maxStreamingPercent caps progress while streaming. 100 is reported
	// only by the terminal complete event.
	maxStreamingPercent = 99
)

// Config tunes one orchestrator instance.
type Config struct {
	// Timeout is the wall-clock budget for the whole stream. Zero means
	// DefaultTimeout.
	Timeout time.Duration
}

// ProgressFunc receives progress updates. percent is non-decreasing across
// calls and always in [1, 99]. Returning an error aborts the stream.
type ProgressFunc func(message string, percent int) error

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator runs one generation request's streaming phase.
//
// # Thread Safety
//
// Not safe for concurrent Run calls; create one per request. State reads
// via State() are safe from other goroutines.
type Orchestrator struct {
	client llm.StreamClient
	cfg    Config

	state atomic.Int32
}

// New creates an Orchestrator for a single request.
func New(client llm.StreamClient, cfg Config) *Orchestrator {
	if client == nil {
		panic("orchestrator.New: client must not be nil")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Orchestrator{client: client, cfg: cfg}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Run drives the adapter stream to a terminal state.
//
// # Description
//
// Opens the provider stream and accumulates deltas in delivery order.
// Progress percent is derived from accumulated bytes against an expected
// size of MaxTokens * 4 bytes, clamped to [1, 99]; onProgress fires only
// when the integer percent advances, so emitted values are strictly
// increasing. On clean end-of-stream Run returns the full accumulated
// text. On provider failure, timeout, or cancellation it returns an empty
// string and the error; partial text is discarded.
//
// # Inputs
//
//   - ctx: Caller context; cancellation aborts the stream promptly.
//   - payload: Prompt payload for the adapter.
//   - cfg: Resolved model config (MaxTokens feeds the heuristic).
//   - params: Generation parameters passed through to the adapter.
//   - onProgress: Progress sink. May be nil.
//
// # Outputs
//
//   - string: Full accumulated output text, "" on failure.
//   - error: nil, ErrCancelled, or a *llm.ProviderError. Exceeding the
//     wall-clock budget surfaces as a ProviderError with KindTimeout.
//
// # Limitations
//
//   - No automatic retry; one attempt per request is the contract.
func (o *Orchestrator) Run(ctx context.Context, payload prompt.Payload, cfg registry.ModelConfig,
	params llm.GenerationParams, onProgress ProgressFunc) (string, error) {

	ctx, span := tracer.Start(ctx, "Orchestrator.Run")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", cfg.ID))

	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateStreaming)) {
		return "", fmt.Errorf("orchestrator already ran (state %s)", o.State())
	}

	// Timeout is wall-clock elapsed since streaming start; exceeding it
	// takes the same cancellation path as an explicit cancel.
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	expectedBytes := cfg.MaxTokens * bytesPerToken
	if expectedBytes <= 0 {
		expectedBytes = 8192 * bytesPerToken
	}

	var buf strings.Builder
	lastPercent := 0

	streamErr := o.client.GenerateStream(ctx, payload, cfg, params, func(delta string) error {
		buf.WriteString(delta)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordDeltas(cfg.ID, 1)
		}

		if onProgress == nil {
			return nil
		}
		percent := buf.Len() * 100 / expectedBytes
		if percent > maxStreamingPercent {
			percent = maxStreamingPercent
		}
		if percent < 1 {
			percent = 1
		}
		if percent <= lastPercent {
			return nil
		}
		lastPercent = percent
		return onProgress("Generating tests...", percent)
	})

	if streamErr != nil {
		o.state.Store(int32(StateFailed))
		span.SetAttributes(attribute.Int("stream.bytes", buf.Len()))

		failure := o.classifyFailure(ctx, streamErr)
		span.RecordError(failure)
		span.SetStatus(codes.Error, "streaming failed")
		slog.Warn("Generation stream failed",
			"model", cfg.ID,
			"state", o.State().String(),
			"bytes", buf.Len(),
			"error", failure,
		)
		return "", failure
	}

	o.state.Store(int32(StateCompleted))
	span.SetAttributes(attribute.Int("stream.bytes", buf.Len()))
	slog.Info("Generation stream completed", "model", cfg.ID, "bytes", buf.Len())
	return buf.String(), nil
}

// classifyFailure folds context errors into the failure taxonomy.
//
// A deadline hit on our own timeout budget is reported as a provider
// timeout; caller cancellation becomes ErrCancelled. Errors already typed
// by the adapter pass through.
func (o *Orchestrator) classifyFailure(ctx context.Context, err error) error {
	if _, ok := llm.AsProviderError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &llm.ProviderError{Kind: llm.KindTimeout, Provider: "orchestrator", Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return &llm.ProviderError{Kind: llm.KindUnknown, Provider: "orchestrator", Err: err}
}
