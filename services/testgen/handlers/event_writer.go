// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/AleutianAI/testforge/services/testgen/datatypes"
	"github.com/google/uuid"
)

// ErrStreamClosed is returned by writes attempted after the terminal event.
var ErrStreamClosed = errors.New("event stream already terminated")

// =============================================================================
// Interface Definition
// =============================================================================

// EventWriter defines the contract for writing generation events to the
// newline-delimited JSON response stream.
//
// # Description
//
// EventWriter abstracts event serialization and framing: one JSON object
// per line, flushed immediately. Implementations enforce the sequence
// property: zero or more progress events, then exactly one complete or
// error event, then nothing. Writes after the terminal event fail with
// ErrStreamClosed instead of corrupting the protocol.
//
// Each event is automatically assigned a UUID v4 Id and a CreatedAt Unix
// millisecond timestamp.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the keepalive goroutine
// writes concurrently with the streaming handler.
type EventWriter interface {
	// WriteProgress writes a progress event. percent must be in [0, 100).
	WriteProgress(message string, percent int) error

	// WriteComplete writes the terminal complete event carrying the
	// extracted tests and closes the stream. Reports progress 100.
	WriteComplete(tests []datatypes.GeneratedTest, message string) error

	// WriteError writes the terminal error event and closes the stream.
	// The message must already be sanitized; no internal detail.
	WriteError(message string) error

	// WriteKeepAlive writes a bare newline to keep the connection alive
	// through load balancer idle timeouts. NDJSON consumers skip blank
	// lines, so this is invisible to the protocol. No-op after the
	// terminal event.
	WriteKeepAlive() error

	// Terminated reports whether the terminal event has been written.
	Terminated() bool
}

// =============================================================================
// Struct Definition
// =============================================================================

// eventWriter implements EventWriter over an http.ResponseWriter.
//
// # Fields
//
//   - writer: Underlying ResponseWriter.
//   - flusher: http.Flusher for immediate delivery.
//   - terminated: Set by the first terminal write; latches forever.
//   - mu: Guards writes and the terminated flag.
type eventWriter struct {
	writer     http.ResponseWriter
	flusher    http.Flusher
	terminated bool
	mu         sync.Mutex
}

// SetStreamHeaders sets the response headers for the NDJSON event stream.
// Must be called before the first write.
func SetStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// NewEventWriter creates an EventWriter for the given ResponseWriter.
//
// Returns an error if the ResponseWriter does not support http.Flusher;
// streaming without flushing would buffer the whole response.
func NewEventWriter(w http.ResponseWriter) (EventWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &eventWriter{writer: w, flusher: flusher}, nil
}

// =============================================================================
// Methods
// =============================================================================

func (w *eventWriter) WriteProgress(message string, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > maxProgressBeforeComplete {
		percent = maxProgressBeforeComplete
	}
	return w.writeEvent(datatypes.StreamEvent{
		Type:     datatypes.StreamEventProgress,
		Message:  message,
		Progress: percent,
	}, false)
}

func (w *eventWriter) WriteComplete(tests []datatypes.GeneratedTest, message string) error {
	return w.writeEvent(datatypes.StreamEvent{
		Type:     datatypes.StreamEventComplete,
		Message:  message,
		Progress: 100,
		Data:     &datatypes.CompleteData{Tests: tests},
	}, true)
}

func (w *eventWriter) WriteError(message string) error {
	return w.writeEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventError,
		Message: message,
	}, true)
}

func (w *eventWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.terminated {
		return nil
	}
	if _, err := w.writer.Write([]byte("\n")); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *eventWriter) Terminated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.terminated
}

// maxProgressBeforeComplete caps progress events below 100; only the
// terminal complete event reports 100.
const maxProgressBeforeComplete = 99

// writeEvent serializes and writes one event line. terminal latches the
// writer so nothing can follow a complete or error event.
func (w *eventWriter) writeEvent(event datatypes.StreamEvent, terminal bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.terminated {
		return ErrStreamClosed
	}

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "%s\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()

	if terminal {
		w.terminated = true
	}
	return nil
}
