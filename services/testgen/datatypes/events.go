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

// StreamEventType represents the type of a streamed generation event.
type StreamEventType string

const (
	StreamEventProgress StreamEventType = "progress"
	StreamEventComplete StreamEventType = "complete"
	StreamEventError    StreamEventType = "error"
)

// CompleteData carries the extracted artifacts on the terminal complete event.
type CompleteData struct {
	Tests []GeneratedTest `json:"tests"`
}

// StreamEvent is one newline-delimited JSON object on the response stream.
//
// # Description
//
// The event sequence for a request is zero or more progress events followed
// by exactly one complete or error event; nothing follows the terminal
// event. Progress carries a percentage that is non-decreasing within a
// request and stays below 100 until the terminal complete event, which
// reports 100.
//
// Id and CreatedAt are populated by the event writer for ordering and
// deduplication on flaky client connections.
//
// # Fields
//
//   - Type: "progress", "complete" or "error".
//   - Message: Human-readable status or error text (sanitized).
//   - Progress: Percentage 0-100. Only meaningful on progress and complete.
//   - Data: Extracted tests. Only set on complete.
//   - Id: UUID v4 assigned at write time.
//   - CreatedAt: Unix timestamp in milliseconds at write time.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	Message   string          `json:"message,omitempty"`
	Progress  int             `json:"progress,omitempty"`
	Data      *CompleteData   `json:"data,omitempty"`
	Id        string          `json:"id,omitempty"`
	CreatedAt int64           `json:"created_at,omitempty"`
}
