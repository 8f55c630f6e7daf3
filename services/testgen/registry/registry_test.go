// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// New Tests
// =============================================================================

// TestNew_ContainsBuiltinModels verifies that the built-in catalog is
// available after New.
func TestNew_ContainsBuiltinModels(t *testing.T) {
	r := New()

	cfg, err := r.Lookup("gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, 8192, cfg.MaxTokens)

	cfg, err = r.Lookup("claude-sonnet-4-20250514")
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, cfg.Provider)
}

// TestLookup_UnknownModel verifies that unknown ids return
// ErrModelNotFound.
func TestLookup_UnknownModel(t *testing.T) {
	r := New()

	_, err := r.Lookup("gpt-9000")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.Contains(t, err.Error(), "gpt-9000")
}

// TestList_PreservesCatalogOrder verifies that List returns models in
// registration order with no duplicates.
func TestList_PreservesCatalogOrder(t *testing.T) {
	r := New()

	models := r.List()
	require.Len(t, models, len(builtinCatalog))
	for i, m := range models {
		assert.Equal(t, builtinCatalog[i].ID, m.ID)
	}
}

// =============================================================================
// NewFromFile Tests
// =============================================================================

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestNewFromFile_OverridesAndAppends verifies that overlay entries
// replace built-ins by id and new ids are appended.
func TestNewFromFile_OverridesAndAppends(t *testing.T) {
	path := writeCatalog(t, `
models:
  - id: gpt-4o
    provider: openai
    max_tokens: 4096
    context_limit: 128000
    max_code_length: 60000
  - id: gpt-5-experimental
    provider: openai
    max_tokens: 32768
    context_limit: 400000
    max_code_length: 300000
`)

	r, err := NewFromFile(path)
	require.NoError(t, err)

	// Override applied in place
	cfg, err := r.Lookup("gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.Equal(t, 60000, cfg.MaxCodeLength)

	// New entry appended at the end
	cfg, err = r.Lookup("gpt-5-experimental")
	require.NoError(t, err)
	assert.Equal(t, 32768, cfg.MaxTokens)

	models := r.List()
	require.Len(t, models, len(builtinCatalog)+1)
	assert.Equal(t, "gpt-5-experimental", models[len(models)-1].ID)
}

// TestNewFromFile_RejectsUnknownProvider verifies validation of the
// provider field.
func TestNewFromFile_RejectsUnknownProvider(t *testing.T) {
	path := writeCatalog(t, `
models:
  - id: llama-70b
    provider: ollama
    max_tokens: 4096
    context_limit: 8192
    max_code_length: 6000
`)

	_, err := NewFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

// TestNewFromFile_RejectsMissingID verifies entries without an id fail.
func TestNewFromFile_RejectsMissingID(t *testing.T) {
	path := writeCatalog(t, `
models:
  - provider: openai
    max_tokens: 4096
    context_limit: 8192
    max_code_length: 6000
`)

	_, err := NewFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no id")
}

// TestNewFromFile_RejectsNonPositiveLimits verifies limit validation.
func TestNewFromFile_RejectsNonPositiveLimits(t *testing.T) {
	path := writeCatalog(t, `
models:
  - id: broken
    provider: openai
    max_tokens: 0
    context_limit: 8192
    max_code_length: 6000
`)

	_, err := NewFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-positive limit")
}

// TestNewFromFile_MissingFile verifies that an unreadable path errors.
func TestNewFromFile_MissingFile(t *testing.T) {
	_, err := NewFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

// =============================================================================
// Provider Tests
// =============================================================================

// TestProvider_IsValid verifies the provider enum.
func TestProvider_IsValid(t *testing.T) {
	assert.True(t, ProviderOpenAI.IsValid())
	assert.True(t, ProviderAnthropic.IsValid())
	assert.False(t, Provider("ollama").IsValid())
	assert.False(t, Provider("").IsValid())
}
