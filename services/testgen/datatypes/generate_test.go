// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() GenerateRequest {
	return GenerateRequest{
		InputCode:        "function add(a, b) { return a + b; }",
		SelectedLanguage: "javascript",
		TestFramework:    "jest",
		AIModel:          "gpt-4o",
	}
}

// =============================================================================
// Validate Tests
// =============================================================================

// TestValidate_AcceptsInlineCode verifies the minimal valid request.
func TestValidate_AcceptsInlineCode(t *testing.T) {
	req := validRequest()
	assert.NoError(t, req.Validate())
}

// TestValidate_AcceptsUploadedFiles verifies file-based requests.
func TestValidate_AcceptsUploadedFiles(t *testing.T) {
	req := validRequest()
	req.InputCode = ""
	req.UploadedFiles = []UploadedFile{
		{Name: "add.js", Content: "export const add = (a, b) => a + b;"},
	}
	assert.NoError(t, req.Validate())
}

// TestValidate_RequiresSomeSource verifies the cross-field rule.
func TestValidate_RequiresSomeSource(t *testing.T) {
	req := validRequest()
	req.InputCode = ""

	err := req.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inputCode or uploadedFiles")
}

// TestValidate_RequiredFields verifies language, framework, and model are
// mandatory.
func TestValidate_RequiredFields(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*GenerateRequest)
	}{
		{"missing language", func(r *GenerateRequest) { r.SelectedLanguage = "" }},
		{"missing framework", func(r *GenerateRequest) { r.TestFramework = "" }},
		{"missing model", func(r *GenerateRequest) { r.AIModel = "" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			assert.Error(t, req.Validate())
		})
	}
}

// TestValidate_OversizedInputCode verifies the byte-length bound.
func TestValidate_OversizedInputCode(t *testing.T) {
	req := validRequest()
	req.InputCode = strings.Repeat("a", MaxInputCodeBytes+1)
	assert.Error(t, req.Validate())
}

// TestValidate_OversizedFileContent verifies per-file byte bounds through
// dive validation.
func TestValidate_OversizedFileContent(t *testing.T) {
	req := validRequest()
	req.InputCode = ""
	req.UploadedFiles = []UploadedFile{
		{Name: "big.js", Content: strings.Repeat("a", MaxFileContentBytes+1)},
	}
	assert.Error(t, req.Validate())
}

// TestValidate_TooManyFiles verifies the file-count cap.
func TestValidate_TooManyFiles(t *testing.T) {
	req := validRequest()
	req.InputCode = ""
	for i := 0; i <= MaxUploadedFiles; i++ {
		req.UploadedFiles = append(req.UploadedFiles, UploadedFile{Name: "f.js", Content: "x"})
	}
	assert.Error(t, req.Validate())
}

// TestValidate_MultiByteContentMeasuredInBytes verifies the maxbytes rule
// counts bytes, not runes.
func TestValidate_MultiByteContentMeasuredInBytes(t *testing.T) {
	req := validRequest()
	// Each rune is 3 bytes; rune count is under the limit, byte count over.
	req.InputCode = strings.Repeat("日", MaxInputCodeBytes/3+1)
	assert.Error(t, req.Validate())
}

// =============================================================================
// Sources Tests
// =============================================================================

// TestSources_WrapsInlineCode verifies pasted code becomes the pseudo
// file.
func TestSources_WrapsInlineCode(t *testing.T) {
	req := validRequest()

	sources := req.Sources()
	require.Len(t, sources, 1)
	assert.Equal(t, InlineSourceName, sources[0].Name)
	assert.Equal(t, req.InputCode, sources[0].Content)
}

// TestSources_PrefersUploadedFiles verifies uploaded files win over
// inline code and keep their order.
func TestSources_PrefersUploadedFiles(t *testing.T) {
	req := validRequest()
	req.UploadedFiles = []UploadedFile{
		{Name: "a.js", Content: "a"},
		{Name: "b.js", Content: "b"},
	}

	sources := req.Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, "a.js", sources[0].Name)
	assert.Equal(t, "b.js", sources[1].Name)
}
