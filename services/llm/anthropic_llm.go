// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/AleutianAI/testforge/services/testgen/prompt"
	"github.com/AleutianAI/testforge/services/testgen/registry"
)

const (
	anthropicAPIVersion = "2023-06-01"
	defaultBaseURL      = "https://api.anthropic.com/v1/messages"
)

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    []systemBlock      `json:"system,omitempty"` // Top-level system prompt
	MaxTokens int                `json:"max_tokens"`

	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	StopSeqs    []string `json:"stop_sequences,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"` // Must be "ephemeral"
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// anthropicStreamEvent is one SSE data payload from the messages API.
// Only the event types the adapter acts on are modeled; everything else
// (message_start, ping, content_block_start, ...) is skipped.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *anthropicError `json:"error,omitempty"`
}

// --- Client Implementation ---

// AnthropicClient streams completions from the Anthropic messages API.
// Uses raw REST with SSE framing rather than an SDK so the wire behavior
// stays fully visible.
type AnthropicClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// NewAnthropicClient builds an adapter from ANTHROPIC_API_KEY, falling
// back to the mounted secret file when the variable is unset.
// ANTHROPIC_BASE_URL overrides the endpoint for proxies and tests.
func NewAnthropicClient() (*AnthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")

	if apiKey == "" {
		secretPath := "/run/secrets/anthropic_api_key"
		if content, err := os.ReadFile(secretPath); err == nil {
			apiKey = strings.TrimSpace(string(content))
			slog.Info("Read Anthropic API Key from Podman Secrets")
		}
	}

	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is missing")
	}

	baseURL := os.Getenv("ANTHROPIC_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &AnthropicClient{
		// No overall client timeout: a healthy stream may legitimately run
		// for minutes and the per-request budget is the orchestrator's job.
		httpClient: &http.Client{},
		apiKey:     apiKey,
		baseURL:    baseURL,
	}, nil
}

// GenerateStream implements the StreamClient interface.
func (a *AnthropicClient) GenerateStream(ctx context.Context, payload prompt.Payload,
	cfg registry.ModelConfig, params GenerationParams, callback StreamCallback) error {

	// Handle System Prompt with Caching
	var systemBlocks []systemBlock
	if payload.System != "" {
		block := systemBlock{Type: "text", Text: payload.System}
		if len(payload.System) > 1024 {
			block.CacheControl = &cacheControl{Type: "ephemeral"}
		}
		systemBlocks = append(systemBlocks, block)
	}

	reqPayload := anthropicRequest{
		Model:     cfg.ID,
		Messages:  []anthropicMessage{{Role: "user", Content: payload.User}},
		System:    systemBlocks,
		MaxTokens: cfg.MaxTokens,
		Stream:    true,
	}
	if params.MaxTokens != nil {
		reqPayload.MaxTokens = *params.MaxTokens
	}
	if params.Temperature != nil {
		reqPayload.Temperature = params.Temperature
	}
	if params.TopP != nil {
		reqPayload.TopP = params.TopP
	}
	if len(params.Stop) > 0 {
		reqPayload.StopSeqs = params.Stop
	}

	reqBodyBytes, err := json.Marshal(reqPayload)
	if err != nil {
		return newProviderError("anthropic", KindMalformed, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL, bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return newProviderError("anthropic", KindUnknown, fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "text/event-stream")

	slog.Debug("Opening Anthropic completion stream", "model", cfg.ID)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return newProviderError("anthropic", kindFromTransport(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := a.parseAPIError(resp.StatusCode, bodyBytes)
		slog.Warn("Anthropic stream rejected", "status", resp.StatusCode)
		return apiErr
	}

	return a.consumeStream(ctx, resp.Body, callback)
}

// consumeStream reads SSE lines and forwards text deltas in order.
//
// The messages API frames events as "event: <type>" / "data: {json}"
// pairs. The data payload carries its own type field, so only data lines
// are parsed. A message_stop event ends the stream cleanly; an error event
// or EOF before message_stop is a provider failure.
func (a *AnthropicClient) consumeStream(ctx context.Context, body io.Reader, callback StreamCallback) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	stopped := false
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			return newProviderError("anthropic", KindMalformed, fmt.Errorf("parse stream event: %w", err))
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				if err := callback(event.Delta.Text); err != nil {
					return err
				}
			}
		case "error":
			msg := "stream error"
			if event.Error != nil {
				msg = fmt.Sprintf("%s: %s", event.Error.Type, event.Error.Message)
			}
			kind := KindUnknown
			if event.Error != nil && event.Error.Type == "overloaded_error" {
				kind = KindRateLimited
			}
			return newProviderError("anthropic", kind, fmt.Errorf("%s", msg))
		case "message_stop":
			stopped = true
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return newProviderError("anthropic", kindFromTransport(err), err)
	}
	if !stopped {
		return newProviderError("anthropic", KindMalformed, fmt.Errorf("stream ended without message_stop"))
	}
	return nil
}

// parseAPIError converts a non-200 response into a ProviderError.
func (a *AnthropicClient) parseAPIError(status int, body []byte) error {
	var wrapper struct {
		Error *anthropicError `json:"error"`
	}
	detail := fmt.Errorf("anthropic API returned status %d", status)
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error != nil {
		detail = fmt.Errorf("anthropic API returned status %d: %s - %s",
			status, wrapper.Error.Type, wrapper.Error.Message)
	}
	return newProviderError("anthropic", kindFromStatus(status), detail)
}
