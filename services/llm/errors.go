// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies provider failures into the uniform taxonomy the
// orchestrator reports on. Provider-specific transport and auth failures
// are mapped into one of these before leaving this package.
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindRateLimited  ErrorKind = "rate_limited"
	KindTimeout      ErrorKind = "timeout"
	KindMalformed    ErrorKind = "malformed"
	KindUnknown      ErrorKind = "unknown"
)

// ProviderError is the uniform error raised by provider adapters.
//
// Wraps the underlying cause for diagnostics; UserMessage produces the
// sanitized text that may cross the service boundary. Raw credentials and
// provider internals must never appear there.
type ProviderError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s provider error (%s): %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s provider error (%s)", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// UserMessage returns the caller-safe message for this error.
func (e *ProviderError) UserMessage() string {
	switch e.Kind {
	case KindUnauthorized:
		return "The model provider rejected the server's credentials. This is a service configuration problem, not something you can fix from the client."
	case KindRateLimited:
		return "The model provider is rate limiting requests. Please try again in a moment."
	case KindTimeout:
		return "Generation took too long and was stopped. Try a smaller input or a faster model."
	default:
		return "Test generation failed due to a model provider error. Please try again."
	}
}

// newProviderError wraps err with a kind and provider tag.
func newProviderError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Err: err}
}

// kindFromStatus maps an HTTP status from a provider API to an ErrorKind.
func kindFromStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 400 && status < 500:
		return KindMalformed
	default:
		return KindUnknown
	}
}

// kindFromTransport maps a transport-level error to an ErrorKind.
// Context cancellation is not a provider failure and is left to the
// orchestrator; this covers dial/read failures and deadline expiry.
func kindFromTransport(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindUnknown
}

// AsProviderError unwraps err to a *ProviderError if one is in the chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
