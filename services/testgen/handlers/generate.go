// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AleutianAI/testforge/services/llm"
	"github.com/AleutianAI/testforge/services/testgen/datatypes"
	"github.com/AleutianAI/testforge/services/testgen/extract"
	"github.com/AleutianAI/testforge/services/testgen/observability"
	"github.com/AleutianAI/testforge/services/testgen/orchestrator"
	"github.com/AleutianAI/testforge/services/testgen/prompt"
	"github.com/AleutianAI/testforge/services/testgen/registry"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// heartbeatInterval is how often a keepalive newline is written while the
// model is still thinking. Kept under common 30s proxy idle timeouts.
const heartbeatInterval = 15 * time.Second

// =============================================================================
// Struct Definition
// =============================================================================

// GenerateHandler serves the streaming test-generation endpoint.
//
// # Description
//
// GenerateHandler validates incoming requests, resolves the model from the
// registry, builds the prompt, and drives the stream orchestrator while
// relaying progress and the final result to the client as NDJSON events.
//
// # Fields
//
//   - registry: Model catalog used to resolve AIModel identifiers.
//   - clients: Provider adapters keyed by provider name.
//   - timeout: Per-request generation budget.
type GenerateHandler struct {
	registry *registry.Registry
	clients  llm.ClientSet
	timeout  time.Duration
}

// NewGenerateHandler creates a GenerateHandler.
//
// A zero timeout selects orchestrator.DefaultTimeout.
func NewGenerateHandler(reg *registry.Registry, clients llm.ClientSet, timeout time.Duration) *GenerateHandler {
	if reg == nil {
		panic("NewGenerateHandler: registry must not be nil")
	}
	if timeout <= 0 {
		timeout = orchestrator.DefaultTimeout
	}
	return &GenerateHandler{registry: reg, clients: clients, timeout: timeout}
}

// =============================================================================
// Handler
// =============================================================================

// HandleGenerateStream handles POST /v1/generate/stream.
//
// # Description
//
// Validates the request body, then streams newline-delimited JSON events:
// progress events while the model produces output, and exactly one terminal
// complete or error event. Validation failures are rejected with HTTP 400
// before any streaming begins; once the stream is open, all failures are
// reported as terminal error events on the stream itself.
//
// # Inputs
//
//   - c: Gin context carrying a datatypes.GenerateRequest JSON body.
//
// # Outputs
//
//   - None. Writes the HTTP response directly.
func (h *GenerateHandler) HandleGenerateStream(c *gin.Context) {
	tracer := otel.Tracer("aleutian.testforge.handlers")
	ctx, span := tracer.Start(c.Request.Context(), "HandleGenerateStream")
	defer span.End()

	start := time.Now()
	requestID := uuid.New().String()
	logger := slog.Default().With("handler", "generate_stream", "request_id", requestID)
	span.SetAttributes(attribute.String("testgen.request_id", requestID))

	// --- Step 1: Bind and validate the request ---
	var req datatypes.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "bind failed")
		h.rejectBadRequest(c, start, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		h.rejectBadRequest(c, start, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("testgen.model", req.AIModel),
		attribute.String("testgen.language", req.SelectedLanguage),
		attribute.String("testgen.framework", req.TestFramework),
	)

	// --- Step 2: Resolve the model ---
	cfg, err := h.registry.Lookup(req.AIModel)
	if err != nil {
		span.SetStatus(codes.Error, "unknown model")
		h.rejectBadRequest(c, start, fmt.Sprintf("unknown model %q", req.AIModel))
		return
	}

	// --- Step 3: Build the prompt ---
	payload, truncated := prompt.Build(&req, cfg)
	if truncated {
		logger.Warn("input code truncated to fit model context",
			"model", cfg.ID, "max_code_length", cfg.MaxCodeLength)
	}

	// --- Step 4: Open the event stream ---
	SetStreamHeaders(c.Writer)
	writer, err := NewEventWriter(c.Writer)
	if err != nil {
		span.SetStatus(codes.Error, "streaming unsupported")
		h.recordOutcome(start, false, observability.ErrorCodeInternal)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming is not supported by this connection"})
		return
	}

	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted()
		defer m.StreamEnded()
	}

	_ = writer.WriteProgress("Analyzing your code...", 1)

	// --- Step 5: Start the keepalive heartbeat ---
	heartbeatDone := make(chan struct{})
	var heartbeatWG sync.WaitGroup
	heartbeatWG.Add(1)
	go func() {
		defer heartbeatWG.Done()
		runHeartbeat(ctx, writer, heartbeatDone)
	}()
	defer func() {
		close(heartbeatDone)
		heartbeatWG.Wait()
	}()

	// --- Step 6: Select the provider adapter ---
	client, err := h.clients.For(cfg.Provider)
	if err != nil {
		logger.Error("provider unavailable", "provider", cfg.Provider, "error", err)
		h.failStream(writer, span, start, err)
		return
	}

	// --- Step 7: Run the generation stream ---
	firstProgress := true
	orch := orchestrator.New(client, orchestrator.Config{Timeout: h.timeout})
	raw, err := orch.Run(ctx, payload, cfg, llm.GenerationParams{}, func(message string, percent int) error {
		if firstProgress {
			firstProgress = false
			if m := observability.DefaultMetrics; m != nil {
				m.RecordTimeToFirstDelta(time.Since(start).Seconds())
			}
		}
		return writer.WriteProgress(message, percent)
	})
	if err != nil {
		logger.Error("generation stream failed",
			"model", cfg.ID, "provider", cfg.Provider, "error", err)
		h.failStream(writer, span, start, err)
		return
	}

	// --- Step 8: Extract test artifacts ---
	tests, err := extract.Extract(raw, &req)
	if err != nil {
		logger.Error("artifact extraction failed", "model", cfg.ID, "error", err)
		h.failStream(writer, span, start, err)
		return
	}

	// --- Step 9: Write the terminal complete event ---
	message := fmt.Sprintf("Generated %d test file(s)", len(tests))
	if err := writer.WriteComplete(tests, message); err != nil {
		logger.Warn("failed to write complete event", "error", err)
	}

	span.SetStatus(codes.Ok, "")
	h.recordOutcome(start, true, "")
	logger.Info("generation completed",
		"model", cfg.ID,
		"tests", len(tests),
		"duration_ms", time.Since(start).Milliseconds())
}

// =============================================================================
// Helpers
// =============================================================================

// rejectBadRequest writes an HTTP 400 before any streaming has begun.
func (h *GenerateHandler) rejectBadRequest(c *gin.Context, start time.Time, message string) {
	h.recordOutcome(start, false, observability.ErrorCodeValidation)
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

// failStream reports a mid-stream failure as a terminal error event.
//
// Client disconnects get no event (the connection is gone); everything else
// is mapped to a sanitized user-facing message.
func (h *GenerateHandler) failStream(writer EventWriter, span trace.Span, start time.Time, err error) {
	span.SetStatus(codes.Error, err.Error())

	if errors.Is(err, orchestrator.ErrCancelled) || errors.Is(err, context.Canceled) {
		h.recordOutcome(start, false, observability.ErrorCodeClientDisconnect)
		return
	}

	message, code := userFacingError(err)
	h.recordOutcome(start, false, code)
	if werr := writer.WriteError(message); werr != nil && !errors.Is(werr, ErrStreamClosed) {
		slog.Default().Warn("failed to write error event", "error", werr)
	}
}

// userFacingError maps an internal error to a sanitized message and the
// metrics error code for it.
func userFacingError(err error) (string, observability.ErrorCode) {
	if perr, ok := llm.AsProviderError(err); ok {
		switch perr.Kind {
		case llm.KindUnauthorized:
			return perr.UserMessage(), observability.ErrorCodeProviderUnauthorized
		case llm.KindRateLimited:
			return perr.UserMessage(), observability.ErrorCodeProviderRateLimited
		case llm.KindTimeout:
			return perr.UserMessage(), observability.ErrorCodeProviderTimeout
		default:
			return perr.UserMessage(), observability.ErrorCodeProviderError
		}
	}
	if eerr, ok := extract.AsExtractionError(err); ok {
		return eerr.Reason, observability.ErrorCodeExtraction
	}
	return "An unexpected error occurred while generating tests. Please try again.", observability.ErrorCodeInternal
}

// recordOutcome records the request counter and stream duration histogram.
func (h *GenerateHandler) recordOutcome(start time.Time, success bool, code observability.ErrorCode) {
	m := observability.DefaultMetrics
	if m == nil {
		return
	}
	m.RecordRequest(success)
	m.RecordStreamDuration(time.Since(start).Seconds(), success)
	if code != "" {
		m.RecordError(code)
	}
}

// runHeartbeat writes keepalive newlines until done is closed or the
// request context ends. Prevents idle-timeout disconnects while the model
// is producing its first tokens.
func runHeartbeat(ctx context.Context, writer EventWriter, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if writer.Terminated() {
				return
			}
			if err := writer.WriteKeepAlive(); err != nil {
				slog.Default().Debug("keepalive write failed", "error", err)
				return
			}
			if m := observability.DefaultMetrics; m != nil {
				m.RecordKeepAlive()
			}
		}
	}
}
