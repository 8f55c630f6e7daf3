// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry provides the process-scoped catalog of supported models.
//
// The catalog is built once at startup (built-in entries plus an optional
// YAML overlay) and is read-only afterwards, so concurrent lookups need no
// locking. An unknown model id is a request-level validation failure and
// must be rejected before any provider call.
package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Provider identifies which adapter family serves a model.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// IsValid checks if the Provider is a known value.
func (p Provider) IsValid() bool {
	return p == ProviderOpenAI || p == ProviderAnthropic
}

// ModelConfig describes one supported model and its operating limits.
//
// # Fields
//
//   - ID: Unique model id as sent by clients (e.g. "gpt-4o").
//   - Provider: Which adapter serves this model.
//   - MaxTokens: Output token cap passed to the provider.
//   - ContextLimit: Total token budget of the model.
//   - MaxCodeLength: Input character cap; the prompt builder truncates the
//     combined source deterministically beyond this point.
type ModelConfig struct {
	ID            string   `yaml:"id"`
	Provider      Provider `yaml:"provider"`
	MaxTokens     int      `yaml:"max_tokens"`
	ContextLimit  int      `yaml:"context_limit"`
	MaxCodeLength int      `yaml:"max_code_length"`
}

// ErrModelNotFound is returned by Lookup for unknown model ids.
var ErrModelNotFound = fmt.Errorf("model not found")

// builtinCatalog lists the models supported out of the box.
//
// MaxCodeLength is sized well under the context limit so instructions and
// generated output always fit: roughly a quarter of the context window at
// four characters per token.
var builtinCatalog = []ModelConfig{
	{ID: "gpt-4o", Provider: ProviderOpenAI, MaxTokens: 8192, ContextLimit: 128000, MaxCodeLength: 120000},
	{ID: "gpt-4o-mini", Provider: ProviderOpenAI, MaxTokens: 8192, ContextLimit: 128000, MaxCodeLength: 120000},
	{ID: "gpt-4.1", Provider: ProviderOpenAI, MaxTokens: 16384, ContextLimit: 1000000, MaxCodeLength: 400000},
	{ID: "claude-sonnet-4-20250514", Provider: ProviderAnthropic, MaxTokens: 16384, ContextLimit: 200000, MaxCodeLength: 180000},
	{ID: "claude-3-5-sonnet-20241022", Provider: ProviderAnthropic, MaxTokens: 8192, ContextLimit: 200000, MaxCodeLength: 180000},
	{ID: "claude-3-5-haiku-20241022", Provider: ProviderAnthropic, MaxTokens: 8192, ContextLimit: 200000, MaxCodeLength: 180000},
}

// Registry is the immutable model catalog.
//
// # Thread Safety
//
// Safe for unsynchronized concurrent reads. Never mutated after New or
// NewFromFile returns.
type Registry struct {
	models map[string]ModelConfig
	order  []string
}

// New builds a Registry from the built-in catalog.
func New() *Registry {
	r := &Registry{models: make(map[string]ModelConfig, len(builtinCatalog))}
	for _, m := range builtinCatalog {
		r.models[m.ID] = m
		r.order = append(r.order, m.ID)
	}
	return r
}

// overlayFile is the YAML shape of a catalog overlay.
type overlayFile struct {
	Models []ModelConfig `yaml:"models"`
}

// NewFromFile builds a Registry from the built-in catalog plus a YAML
// overlay. Overlay entries with a known id replace the built-in entry;
// entries with a new id are appended in file order.
//
// # Inputs
//
//   - path: Path to a YAML file with a top-level "models" list.
//
// # Outputs
//
//   - *Registry: Ready for lookups.
//   - error: Non-nil if the file cannot be read, parsed, or contains an
//     entry with a missing id, unknown provider, or non-positive limit.
func NewFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model catalog %s: %w", path, err)
	}

	var overlay overlayFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse model catalog %s: %w", path, err)
	}

	r := New()
	for i, m := range overlay.Models {
		if m.ID == "" {
			return nil, fmt.Errorf("model catalog %s: entry %d has no id", path, i)
		}
		if !m.Provider.IsValid() {
			return nil, fmt.Errorf("model catalog %s: model %q has unknown provider %q", path, m.ID, m.Provider)
		}
		if m.MaxTokens <= 0 || m.ContextLimit <= 0 || m.MaxCodeLength <= 0 {
			return nil, fmt.Errorf("model catalog %s: model %q has a non-positive limit", path, m.ID)
		}
		if _, exists := r.models[m.ID]; !exists {
			r.order = append(r.order, m.ID)
		}
		r.models[m.ID] = m
	}
	return r, nil
}

// Lookup resolves a model id to its config.
//
// Returns ErrModelNotFound (wrapped with the id) for unknown models. Pure
// lookup, no side effects.
func (r *Registry) Lookup(id string) (ModelConfig, error) {
	m, ok := r.models[id]
	if !ok {
		return ModelConfig{}, fmt.Errorf("%w: %q", ErrModelNotFound, id)
	}
	return m, nil
}

// List returns all models in catalog order.
func (r *Registry) List() []ModelConfig {
	out := make([]ModelConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.models[id])
	}
	return out
}
