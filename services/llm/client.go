// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides streaming adapters over the supported model
// provider APIs. Adapters normalize heterogeneous streaming protocols into
// ordered text deltas and map provider-specific failures into the
// ProviderError taxonomy.
package llm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/AleutianAI/testforge/services/testgen/prompt"
	"github.com/AleutianAI/testforge/services/testgen/registry"
)

// GenerationParams tunes a single completion call. Nil fields fall back to
// provider or model defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// StreamCallback receives one text delta at a time, in delivery order.
// Concatenating the deltas reconstructs the full model output. Returning a
// non-nil error aborts the stream.
type StreamCallback func(delta string) error

// StreamClient is the capability set the orchestrator depends on: open a
// streaming completion, receive ordered deltas, observe end-of-stream or a
// transport error. A stream is finite and not restartable.
type StreamClient interface {
	// GenerateStream opens a streaming completion for the payload and
	// invokes callback for each non-empty text delta. Returns nil on clean
	// end-of-stream, the callback's error if it aborts, ctx.Err() on
	// cancellation, or a *ProviderError for provider failures.
	GenerateStream(ctx context.Context, payload prompt.Payload, cfg registry.ModelConfig,
		params GenerationParams, callback StreamCallback) error
}

// errNoCredentials marks a provider whose credentials were absent at startup.
var errNoCredentials = errors.New("provider credentials not configured")

// ClientSet holds one adapter per configured provider, selected by
// ModelConfig.Provider. Read-only after construction.
type ClientSet map[registry.Provider]StreamClient

// NewClientSet constructs adapters for every provider whose credentials
// are present in the environment. Missing credentials are not fatal at
// startup; requests for that provider fail with an unauthorized
// ProviderError instead.
func NewClientSet() ClientSet {
	set := make(ClientSet)

	if c, err := NewOpenAIClient(); err != nil {
		slog.Warn("OpenAI adapter unavailable", "error", err)
	} else {
		set[registry.ProviderOpenAI] = c
	}

	if c, err := NewAnthropicClient(); err != nil {
		slog.Warn("Anthropic adapter unavailable", "error", err)
	} else {
		set[registry.ProviderAnthropic] = c
	}

	slog.Info("Provider adapters initialized", "count", len(set))
	return set
}

// For returns the adapter for a provider, or an unauthorized ProviderError
// when it was not configured at startup.
func (s ClientSet) For(p registry.Provider) (StreamClient, error) {
	c, ok := s[p]
	if !ok {
		return nil, newProviderError(string(p), KindUnauthorized, errNoCredentials)
	}
	return c, nil
}
