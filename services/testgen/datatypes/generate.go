// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the test generation service.
//
// This file contains the generation request types and their validation.
// For stream event types, see events.go.
package datatypes

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants for Request Limits
// =============================================================================

const (
	// MaxFileContentBytes is the maximum size of a single uploaded file.
	// Checked in bytes (not runes) to bound memory, not display length.
	MaxFileContentBytes = 256 * 1024 // 256KB

	// MaxInputCodeBytes is the maximum size of pasted input code.
	MaxInputCodeBytes = 256 * 1024 // 256KB

	// MaxUploadedFiles is the maximum number of files in a single request.
	MaxUploadedFiles = 10

	// InlineSourceName is the pseudo file name used when the caller pastes
	// code via inputCode instead of uploading files.
	InlineSourceName = "source"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// genValidate is the validator instance for generation datatypes.
// Initialized in init() with custom validators.
var genValidate *validator.Validate

func init() {
	genValidate = validator.New()

	// Byte-length rule; validator's max tag counts runes, which would let
	// multi-byte payloads through the memory bound.
	_ = genValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed
// MaxFileContentBytes. Checks byte length to prevent memory exhaustion
// with large multi-byte payloads.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxFileContentBytes
}

// =============================================================================
// Request Types
// =============================================================================

// UploadedFile is one source file submitted for test generation.
type UploadedFile struct {
	Name    string `json:"name" validate:"required,max=256"`
	Content string `json:"content" validate:"required,maxbytes"`
}

// GenerateRequest is the request body for the streaming generation endpoint.
//
// # Description
//
// A request carries either pasted source code (InputCode) or a set of
// uploaded files, the target language and test framework, and the model id
// to generate with. Validated once at entry; the pipeline treats it as
// immutable afterwards.
//
// # Fields
//
//   - InputCode: Pasted source code. Required when UploadedFiles is empty.
//   - UploadedFiles: Ordered source files. Order is preserved through the
//     pipeline and used for artifact association.
//   - SelectedLanguage: Target language (e.g. "javascript", "go").
//   - TestFramework: Target framework (e.g. "jest", "pytest").
//   - AIModel: Model id; must resolve in the model registry.
//
// # Limitations
//
//   - File contents are bounded by MaxFileContentBytes each, not in total;
//     the prompt builder truncates the combined source per model limits.
type GenerateRequest struct {
	InputCode        string         `json:"inputCode" validate:"omitempty,maxbytes"`
	UploadedFiles    []UploadedFile `json:"uploadedFiles" validate:"omitempty,max=10,dive"`
	SelectedLanguage string         `json:"selectedLanguage" validate:"required,max=64"`
	TestFramework    string         `json:"testFramework" validate:"required,max=64"`
	AIModel          string         `json:"aiModel" validate:"required,max=128"`
}

// Validate checks structural and semantic constraints on the request.
//
// # Description
//
// Runs the struct tag validation (sizes, required fields) and the
// cross-field rule that at least one source of code must be present.
// Model id resolution is the registry's job, not ours.
//
// # Outputs
//
//   - error: Non-nil with a caller-safe message if the request is invalid.
func (r *GenerateRequest) Validate() error {
	if err := genValidate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("invalid field %q: failed %q constraint", f.Field(), f.Tag())
		}
		return fmt.Errorf("request validation failed: %w", err)
	}

	if r.InputCode == "" && len(r.UploadedFiles) == 0 {
		return errors.New("either inputCode or uploadedFiles must be provided")
	}

	return nil
}

// Sources returns the ordered source files for the request.
//
// When the caller pasted code via InputCode and uploaded no files, the
// pasted code is wrapped in a pseudo file named InlineSourceName so the
// rest of the pipeline only deals with one shape.
func (r *GenerateRequest) Sources() []UploadedFile {
	if len(r.UploadedFiles) > 0 {
		return r.UploadedFiles
	}
	return []UploadedFile{{Name: InlineSourceName, Content: r.InputCode}}
}

// =============================================================================
// Result Types
// =============================================================================

// GeneratedTest is one extracted test artifact.
//
// Created only by the artifact extractor from the final model text and
// never mutated after creation. Code is never empty; an empty extraction
// is reported as an error instead.
type GeneratedTest struct {
	Framework     string `json:"framework"`
	Language      string `json:"language"`
	FileName      string `json:"fileName"`
	Code          string `json:"code"`
	SourceFileRef string `json:"sourceFileRef"`
}
