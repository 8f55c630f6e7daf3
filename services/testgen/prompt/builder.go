// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prompt assembles the provider-agnostic instruction payload for a
// generation request.
//
// The builder is pure and deterministic: identical (request, config) pairs
// always yield byte-identical payloads. Oversized input is truncated, never
// rejected; truncation is a documented degradation.
package prompt

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/testforge/services/testgen/datatypes"
	"github.com/AleutianAI/testforge/services/testgen/registry"
)

// TruncationMarker is appended to the source section when the combined
// input exceeded the model's MaxCodeLength.
const TruncationMarker = "\n... [truncated]"

// truncateScanback bounds how far back we search for a newline when cutting,
// so truncation lands on a line boundary when one is near the cut point.
const truncateScanback = 200

// Payload is the ordered instruction set handed to a provider adapter.
type Payload struct {
	System string
	User   string
}

// languageConventions maps a language to syntax and typing expectations
// included in the system instructions.
var languageConventions = map[string]string{
	"javascript": "Write modern JavaScript (ES2022). Use const/let, arrow functions where idiomatic, and strict equality in assertions.",
	"typescript": "Write TypeScript with explicit types for test fixtures and helpers. Do not use any unless the code under test forces it.",
	"python":     "Write Python 3 following PEP 8. Use descriptive snake_case test names and plain assert semantics where the framework allows.",
	"go":         "Write idiomatic Go. Use table-driven tests where multiple cases share a shape, and t.Helper() in shared helpers.",
	"java":       "Write Java following standard conventions. One test class per class under test, camelCase test method names.",
	"ruby":       "Write idiomatic Ruby. Use descriptive example names and let bindings for shared fixtures.",
	"rust":       "Write idiomatic Rust. Put tests in a #[cfg(test)] module and use Result-returning tests for fallible setups.",
	"csharp":     "Write idiomatic C#. One test class per class under test, PascalCase test method names.",
}

// frameworkConventions maps a test framework to its mocking idioms,
// assertion style and setup/teardown shape.
var frameworkConventions = map[string]string{
	"jest":    "Use Jest: describe/it blocks, expect() assertions, jest.fn()/jest.mock() for doubles, beforeEach/afterEach for setup and teardown.",
	"vitest":  "Use Vitest: describe/it blocks, expect() assertions, vi.fn()/vi.mock() for doubles, beforeEach/afterEach for setup and teardown.",
	"mocha":   "Use Mocha with Chai: describe/it blocks, chai expect assertions, sinon for doubles, before/after hooks for setup and teardown.",
	"pytest":  "Use pytest: plain test_ functions, bare assert statements, fixtures for setup/teardown, monkeypatch or unittest.mock for doubles, pytest.raises for error paths.",
	"unittest": "Use unittest: TestCase subclasses, self.assert* methods, setUp/tearDown, unittest.mock for doubles.",
	"gotest":  "Use the standard testing package: Test* functions, t.Run subtests, got/want comparisons, t.Fatal for setup failures, interfaces with hand-written fakes for doubles.",
	"testify": "Use the testing package with testify: assert for soft checks, require for fatal checks, testify/mock or hand-written fakes for doubles.",
	"junit":   "Use JUnit 5: @Test methods, Assertions.assertEquals and friends, @BeforeEach/@AfterEach, Mockito for doubles, assertThrows for error paths.",
	"rspec":   "Use RSpec: describe/context/it blocks, expect syntax, let and before hooks, instance_double for doubles.",
	"nunit":   "Use NUnit: [Test] methods, Assert.That constraints, [SetUp]/[TearDown], Moq for doubles.",
}

// universalRequirements applies regardless of language and framework.
const universalRequirements = `Requirements for the generated tests:
- Cover every public function, method, or exported operation in the source.
- Include edge cases: null/undefined/nil-equivalent inputs, empty inputs, boundary values, and error paths.
- For asynchronous operations, test the success case, the failure case, and the timeout case.
- Tests must be self-contained and runnable as written; include all imports.
- Emit each test file as a separate fenced code block. Precede each block with a line naming the source file it targets, e.g. "Tests for add.js:".
- Output only the test code and those file annotations, no prose explanations.`

// Build assembles the instruction payload for a request.
//
// # Description
//
// The system instructions are composed from three independent axes:
// language conventions, framework conventions, and universal requirements.
// The user content carries the source files, fenced, each preceded by its
// file name. When the combined source exceeds cfg.MaxCodeLength it is cut
// at that length (backing up to the previous newline when one falls within
// the last 200 bytes) and marked with TruncationMarker.
//
// # Inputs
//
//   - req: Validated generation request. Not mutated.
//   - cfg: Resolved model config supplying MaxCodeLength.
//
// # Outputs
//
//   - Payload: System and user instruction strings.
//   - bool: true when the source was truncated.
func Build(req *datatypes.GenerateRequest, cfg registry.ModelConfig) (Payload, bool) {
	var sys strings.Builder
	sys.WriteString("You are an expert software test engineer. Generate complete, runnable unit tests for the provided source code.\n\n")

	if conv, ok := languageConventions[strings.ToLower(req.SelectedLanguage)]; ok {
		sys.WriteString(conv)
	} else {
		sys.WriteString(fmt.Sprintf("Write idiomatic %s following that community's standard conventions.", req.SelectedLanguage))
	}
	sys.WriteString("\n")

	if conv, ok := frameworkConventions[strings.ToLower(req.TestFramework)]; ok {
		sys.WriteString(conv)
	} else {
		sys.WriteString(fmt.Sprintf("Use the %s testing framework with its idiomatic assertion and mocking style.", req.TestFramework))
	}
	sys.WriteString("\n\n")
	sys.WriteString(universalRequirements)

	source, truncated := truncate(renderSources(req.Sources()), cfg.MaxCodeLength)

	var user strings.Builder
	user.WriteString(fmt.Sprintf("Generate %s unit tests for the following %s code:\n\n", req.TestFramework, req.SelectedLanguage))
	user.WriteString(source)

	return Payload{System: sys.String(), User: user.String()}, truncated
}

// renderSources fences each source file preceded by its name.
func renderSources(files []datatypes.UploadedFile) string {
	var sb strings.Builder
	for i, f := range files {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("File: %s\n```\n%s\n```\n", f.Name, f.Content))
	}
	return sb.String()
}

// truncate cuts s to at most limit bytes plus the marker.
//
// The cut point backs up to the previous newline when one exists within the
// final truncateScanback bytes, so the kept prefix usually ends on a whole
// line. Purely length-based, so identical input always truncates
// identically.
func truncate(s string, limit int) (string, bool) {
	if limit <= 0 || len(s) <= limit {
		return s, false
	}

	cut := limit
	if idx := strings.LastIndexByte(s[:cut], '\n'); idx >= 0 && cut-idx <= truncateScanback {
		cut = idx
	}
	return s[:cut] + TruncationMarker, true
}
