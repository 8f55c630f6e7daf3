// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract parses accumulated model output into discrete generated
// test artifacts.
//
// Free-form model text is inherently heuristic territory, so the matching
// strategy lives behind this package's narrow contract: fenced code
// regions become GeneratedTest records, associated with source files via
// the nearest preceding file hint. Pure text parsing; no model calls, no
// network.
package extract

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/AleutianAI/testforge/services/testgen/datatypes"
)

// ExtractionError reports why no artifacts could be produced. It is
// distinguished from provider failures for diagnostics but surfaces to the
// client in the same terminal error shape.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed: %s", e.Reason)
}

// AsExtractionError unwraps err to an *ExtractionError if one is in the chain.
func AsExtractionError(err error) (*ExtractionError, bool) {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// fenceRe matches one fenced code region: opening fence with optional
// language tag, body, closing fence. (?s) lets the body span lines; the
// body match is lazy so adjacent blocks don't merge.
var fenceRe = regexp.MustCompile("(?s)```([A-Za-z0-9+_.#-]*)[ \t]*\r?\n(.*?)\r?\n?```")

// hintRe matches a filename-looking token: base name with an extension,
// optionally with a path prefix. Used to associate a block with the source
// file named nearest above it.
var hintRe = regexp.MustCompile(`[\w./\\-]*[\w-]+\.[A-Za-z][A-Za-z0-9]{0,7}`)

// Extract parses the full accumulated text of a completed stream.
//
// # Description
//
// Scans for fenced code regions and builds one GeneratedTest per
// non-empty region. Each region is associated with a source file: the
// nearest preceding hint that names one of the request's files wins; with
// exactly one source file, hints are optional. Multiple source files and a
// hintless block is an unresolvable association and fails rather than
// guessing.
//
// # Inputs
//
//   - text: Full model output from a completed stream.
//   - req: The originating request (source names, language, framework).
//
// # Outputs
//
//   - []datatypes.GeneratedTest: Ordered artifacts, Code never empty.
//   - error: *ExtractionError when zero well-formed blocks are found or an
//     association is ambiguous.
func Extract(text string, req *datatypes.GenerateRequest) ([]datatypes.GeneratedTest, error) {
	matches := fenceRe.FindAllStringSubmatchIndex(text, -1)
	sources := req.Sources()

	var tests []datatypes.GeneratedTest
	prevEnd := 0
	for _, m := range matches {
		blockStart := m[0]
		code := strings.TrimSpace(text[m[4]:m[5]])
		if code == "" {
			prevEnd = m[1]
			continue
		}

		ref, err := associate(text[prevEnd:blockStart], sources, len(tests))
		prevEnd = m[1]
		if err != nil {
			return nil, err
		}

		tests = append(tests, datatypes.GeneratedTest{
			Framework:     req.TestFramework,
			Language:      req.SelectedLanguage,
			FileName:      testFileName(ref, req.SelectedLanguage, req.TestFramework),
			Code:          code,
			SourceFileRef: ref,
		})
	}

	if len(tests) == 0 {
		return nil, &ExtractionError{Reason: "no code blocks found in model output"}
	}
	return tests, nil
}

// associate resolves which source file a block targets.
//
// preceding is the text between the previous block (or document start) and
// this block's opening fence. The last hint in it that matches a source
// file name wins. With a single source file no hint is required.
func associate(preceding string, sources []datatypes.UploadedFile, blockIndex int) (string, error) {
	hints := hintRe.FindAllString(preceding, -1)
	for i := len(hints) - 1; i >= 0; i-- {
		if name, ok := matchSource(hints[i], sources); ok {
			return name, nil
		}
	}

	if len(sources) == 1 {
		return sources[0].Name, nil
	}
	return "", &ExtractionError{
		Reason: fmt.Sprintf("code block %d has no file hint and the request has %d source files; cannot resolve association",
			blockIndex+1, len(sources)),
	}
}

// matchSource checks a hint against the source file names. Exact match
// first, then base-name match so "src/utils/add.js" matches a hint "add.js"
// and vice versa.
func matchSource(hint string, sources []datatypes.UploadedFile) (string, bool) {
	hint = strings.Trim(hint, "`*_")
	for _, s := range sources {
		if hint == s.Name {
			return s.Name, true
		}
	}
	hintBase := path.Base(strings.ReplaceAll(hint, "\\", "/"))
	for _, s := range sources {
		if hintBase == path.Base(strings.ReplaceAll(s.Name, "\\", "/")) {
			return s.Name, true
		}
	}
	return "", false
}

// testFileName derives the conventional test file name for a source ref.
func testFileName(sourceRef, language, framework string) string {
	base := path.Base(strings.ReplaceAll(sourceRef, "\\", "/"))
	if idx := strings.LastIndexByte(base, '.'); idx > 0 {
		base = base[:idx]
	}

	switch strings.ToLower(framework) {
	case "jest", "vitest", "mocha":
		return base + ".test." + languageExt(language)
	case "pytest":
		return "test_" + base + ".py"
	case "unittest":
		return "test_" + base + ".py"
	case "gotest", "testify":
		return base + "_test.go"
	case "junit":
		return upperFirst(base) + "Test.java"
	case "rspec":
		return base + "_spec.rb"
	case "nunit":
		return upperFirst(base) + "Tests.cs"
	default:
		return base + ".test." + languageExt(language)
	}
}

// languageExt maps a language to its conventional file extension.
func languageExt(language string) string {
	switch strings.ToLower(language) {
	case "javascript":
		return "js"
	case "typescript":
		return "ts"
	case "python":
		return "py"
	case "go":
		return "go"
	case "java":
		return "java"
	case "ruby":
		return "rb"
	case "rust":
		return "rs"
	case "csharp":
		return "cs"
	default:
		return "txt"
	}
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
