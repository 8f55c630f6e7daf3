// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package eventstream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestProcess_CompleteStream verifies progress callbacks fire and the
// complete event yields the tests.
func TestProcess_CompleteStream(t *testing.T) {
	stream := strings.Join([]string{
		`{"type":"progress","message":"Analyzing your code...","progress":1,"id":"a","createdAt":1}`,
		``,
		`{"type":"progress","message":"Generating tests...","progress":40,"id":"b","createdAt":2}`,
		`{"type":"complete","message":"Generated 1 test file(s)","progress":100,"data":{"tests":[{"framework":"jest","language":"javascript","fileName":"add.test.js","code":"test('x', () => {});"}]},"id":"c","createdAt":3}`,
	}, "\n")

	var percents []int
	p := NewProcessor(func(message string, percent int) {
		percents = append(percents, percent)
	})

	result, err := p.Process(strings.NewReader(stream))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 40}, percents)
	assert.Equal(t, "Generated 1 test file(s)", result.Message)
	require.Len(t, result.Tests, 1)
	assert.Equal(t, "add.test.js", result.Tests[0].FileName)
	assert.Contains(t, result.Tests[0].Code, "test('x'")
}

// TestProcess_ErrorEvent verifies error events surface the server message.
func TestProcess_ErrorEvent(t *testing.T) {
	stream := `{"type":"error","message":"The model provider is rate limiting requests. Please try again in a moment.","id":"a","createdAt":1}` + "\n"

	_, err := NewProcessor(nil).Process(strings.NewReader(stream))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiting")
}

// TestProcess_TruncatedStream verifies EOF without a terminal event is an
// error.
func TestProcess_TruncatedStream(t *testing.T) {
	stream := `{"type":"progress","message":"working","progress":10,"id":"a","createdAt":1}` + "\n"

	_, err := NewProcessor(nil).Process(strings.NewReader(stream))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a terminal event")
}

// TestProcess_MalformedLine verifies garbage lines fail instead of being
// silently dropped.
func TestProcess_MalformedLine(t *testing.T) {
	_, err := NewProcessor(nil).Process(strings.NewReader("{broken\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed event line")
}

// TestProcess_UnknownEventTypeSkipped verifies forward compatibility with
// new event types.
func TestProcess_UnknownEventTypeSkipped(t *testing.T) {
	stream := strings.Join([]string{
		`{"type":"telemetry","message":"ignore me","id":"a","createdAt":1}`,
		`{"type":"complete","message":"done","progress":100,"data":{"tests":[]},"id":"b","createdAt":2}`,
	}, "\n")

	result, err := NewProcessor(nil).Process(strings.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, "done", result.Message)
	assert.Empty(t, result.Tests)
}
