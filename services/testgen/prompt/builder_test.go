// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package prompt

import (
	"strings"
	"testing"

	"github.com/AleutianAI/testforge/services/testgen/datatypes"
	"github.com/AleutianAI/testforge/services/testgen/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(maxCodeLength int) registry.ModelConfig {
	return registry.ModelConfig{
		ID:            "gpt-4o",
		Provider:      registry.ProviderOpenAI,
		MaxTokens:     8192,
		ContextLimit:  128000,
		MaxCodeLength: maxCodeLength,
	}
}

// =============================================================================
// Build Tests
// =============================================================================

// TestBuild_Deterministic verifies that identical inputs produce
// byte-identical payloads.
func TestBuild_Deterministic(t *testing.T) {
	req := &datatypes.GenerateRequest{
		InputCode:        "function add(a, b) { return a + b; }",
		SelectedLanguage: "javascript",
		TestFramework:    "jest",
		AIModel:          "gpt-4o",
	}
	cfg := testConfig(120000)

	first, firstTrunc := Build(req, cfg)
	second, secondTrunc := Build(req, cfg)

	assert.Equal(t, first, second)
	assert.Equal(t, firstTrunc, secondTrunc)
}

// TestBuild_IncludesAllAxes verifies that language conventions, framework
// conventions, and universal requirements all appear in the system
// instructions.
func TestBuild_IncludesAllAxes(t *testing.T) {
	req := &datatypes.GenerateRequest{
		InputCode:        "def add(a, b): return a + b",
		SelectedLanguage: "python",
		TestFramework:    "pytest",
		AIModel:          "gpt-4o",
	}

	payload, truncated := Build(req, testConfig(120000))

	assert.False(t, truncated)
	assert.Contains(t, payload.System, "PEP 8")
	assert.Contains(t, payload.System, "pytest.raises")
	assert.Contains(t, payload.System, "timeout case")
	assert.Contains(t, payload.System, "fenced code block")
}

// TestBuild_UnknownLanguageAndFramework verifies graceful fallback text
// for axes without a convention entry.
func TestBuild_UnknownLanguageAndFramework(t *testing.T) {
	req := &datatypes.GenerateRequest{
		InputCode:        "PROCEDURE DIVISION.",
		SelectedLanguage: "cobol",
		TestFramework:    "cobolunit",
		AIModel:          "gpt-4o",
	}

	payload, _ := Build(req, testConfig(120000))

	assert.Contains(t, payload.System, "idiomatic cobol")
	assert.Contains(t, payload.System, "cobolunit testing framework")
}

// TestBuild_InlineSourceUsesPseudoFile verifies pasted code is fenced
// under the inline pseudo file name.
func TestBuild_InlineSourceUsesPseudoFile(t *testing.T) {
	req := &datatypes.GenerateRequest{
		InputCode:        "function add(a, b) { return a + b; }",
		SelectedLanguage: "javascript",
		TestFramework:    "jest",
		AIModel:          "gpt-4o",
	}

	payload, _ := Build(req, testConfig(120000))

	assert.Contains(t, payload.User, "File: "+datatypes.InlineSourceName)
	assert.Contains(t, payload.User, req.InputCode)
}

// TestBuild_MultipleFilesInOrder verifies uploaded files appear in
// request order, each preceded by its name.
func TestBuild_MultipleFilesInOrder(t *testing.T) {
	req := &datatypes.GenerateRequest{
		UploadedFiles: []datatypes.UploadedFile{
			{Name: "add.js", Content: "export const add = (a, b) => a + b;"},
			{Name: "sub.js", Content: "export const sub = (a, b) => a - b;"},
		},
		SelectedLanguage: "javascript",
		TestFramework:    "jest",
		AIModel:          "gpt-4o",
	}

	payload, _ := Build(req, testConfig(120000))

	addIdx := strings.Index(payload.User, "File: add.js")
	subIdx := strings.Index(payload.User, "File: sub.js")
	require.GreaterOrEqual(t, addIdx, 0)
	require.GreaterOrEqual(t, subIdx, 0)
	assert.Less(t, addIdx, subIdx, "files should keep request order")
}

// =============================================================================
// Truncation Tests
// =============================================================================

// TestBuild_TruncatesOversizedInput verifies oversized sources are cut
// and marked, not rejected.
func TestBuild_TruncatesOversizedInput(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 500; i++ {
		sb.WriteString("const value" + strings.Repeat("x", 20) + " = 42;\n")
	}
	req := &datatypes.GenerateRequest{
		InputCode:        sb.String(),
		SelectedLanguage: "javascript",
		TestFramework:    "jest",
		AIModel:          "gpt-4o",
	}

	payload, truncated := Build(req, testConfig(2000))

	assert.True(t, truncated)
	assert.Contains(t, payload.User, TruncationMarker)
}

// TestTruncate_CutsAtNewlineNearLimit verifies the cut backs up to the
// previous line boundary when one is near.
func TestTruncate_CutsAtNewlineNearLimit(t *testing.T) {
	s := strings.Repeat("a", 90) + "\n" + strings.Repeat("b", 90)

	out, truncated := truncate(s, 100)

	require.True(t, truncated)
	assert.Equal(t, strings.Repeat("a", 90)+TruncationMarker, out)
}

// TestTruncate_HardCutWithoutNearbyNewline verifies a mid-line cut when
// no newline falls within the scanback window.
func TestTruncate_HardCutWithoutNearbyNewline(t *testing.T) {
	s := strings.Repeat("a", 1000)

	out, truncated := truncate(s, 600)

	require.True(t, truncated)
	assert.Equal(t, strings.Repeat("a", 600)+TruncationMarker, out)
}

// TestTruncate_UnderLimitUntouched verifies input at or under the limit
// passes through unchanged.
func TestTruncate_UnderLimitUntouched(t *testing.T) {
	s := "short input"

	out, truncated := truncate(s, len(s))

	assert.False(t, truncated)
	assert.Equal(t, s, out)
}

// TestTruncate_Deterministic verifies repeated truncation of the same
// input yields the same output.
func TestTruncate_Deterministic(t *testing.T) {
	s := strings.Repeat("line of code\n", 200)

	first, _ := truncate(s, 500)
	second, _ := truncate(s, 500)

	assert.Equal(t, first, second)
}
