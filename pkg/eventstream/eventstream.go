// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package eventstream consumes the newline-delimited JSON event stream
// produced by the testforge generation endpoint.
//
// The wire types here mirror the server's event shapes but are declared
// independently so CLI builds do not depend on server internals.
package eventstream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// EventType represents the type of a streaming event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// GeneratedTest is one test artifact from a complete event.
type GeneratedTest struct {
	Framework     string `json:"framework"`
	Language      string `json:"language"`
	FileName      string `json:"fileName"`
	Code          string `json:"code"`
	SourceFileRef string `json:"sourceFileRef,omitempty"`
}

// Event is a single streaming event from the server.
type Event struct {
	Type      EventType `json:"type"`
	Message   string    `json:"message,omitempty"`
	Progress  int       `json:"progress,omitempty"`
	Data      *struct {
		Tests []GeneratedTest `json:"tests"`
	} `json:"data,omitempty"`
	Id        string `json:"id"`
	CreatedAt int64  `json:"createdAt"`
}

// Result contains the outcome of a successfully completed stream.
type Result struct {
	Tests   []GeneratedTest
	Message string
}

// ProgressFunc receives progress updates while the stream runs. May be nil.
type ProgressFunc func(message string, percent int)

// Processor defines the interface for consuming a generation event stream.
type Processor interface {
	// Process reads events from the reader until a terminal event or EOF.
	// Returns the complete result, or an error carrying the server's
	// error message.
	Process(reader io.Reader) (*Result, error)
}

// ndjsonProcessor implements Processor for newline-delimited JSON.
type ndjsonProcessor struct {
	onProgress ProgressFunc
}

// NewProcessor creates an event stream processor.
func NewProcessor(onProgress ProgressFunc) Processor {
	return &ndjsonProcessor{onProgress: onProgress}
}

// maxLineBytes bounds a single event line. Complete events carry whole
// test files, so this is generous.
const maxLineBytes = 4 * 1024 * 1024

// Process reads and processes the event stream.
func (p *ndjsonProcessor) Process(reader io.Reader) (*Result, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Text()

		// Blank lines are keepalives
		if strings.TrimSpace(line) == "" {
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, fmt.Errorf("malformed event line: %w", err)
		}

		switch event.Type {
		case EventProgress:
			if p.onProgress != nil {
				p.onProgress(event.Message, event.Progress)
			}
		case EventComplete:
			result := &Result{Message: event.Message}
			if event.Data != nil {
				result.Tests = event.Data.Tests
			}
			return result, nil
		case EventError:
			return nil, fmt.Errorf("%s", event.Message)
		default:
			// Unknown event types are skipped so older CLIs keep
			// working against newer servers.
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("stream ended without a terminal event")
}
