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
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ProviderError Tests
// =============================================================================

// TestProviderError_WrapsCause verifies Error and Unwrap carry the
// underlying cause.
func TestProviderError_WrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	perr := newProviderError("openai", KindUnknown, cause)

	assert.Contains(t, perr.Error(), "openai")
	assert.Contains(t, perr.Error(), "connection reset")
	assert.ErrorIs(t, perr, cause)
}

// TestProviderError_UserMessageNeverLeaksInternals verifies the sanitized
// message omits the wrapped cause for every kind.
func TestProviderError_UserMessageNeverLeaksInternals(t *testing.T) {
	secret := "Bearer sk-verysecrettoken"
	for _, kind := range []ErrorKind{KindUnauthorized, KindRateLimited, KindTimeout, KindMalformed, KindUnknown} {
		perr := newProviderError("anthropic", kind, fmt.Errorf("request with %s failed", secret))

		msg := perr.UserMessage()
		assert.NotEmpty(t, msg)
		assert.NotContains(t, msg, secret, "kind %s leaked the cause", kind)
		assert.NotContains(t, msg, "anthropic", "kind %s leaked the provider internals", kind)
	}
}

// TestAsProviderError_FindsWrapped verifies unwrapping through fmt.Errorf
// chains.
func TestAsProviderError_FindsWrapped(t *testing.T) {
	inner := newProviderError("openai", KindRateLimited, nil)
	wrapped := fmt.Errorf("stream failed: %w", inner)

	perr, ok := AsProviderError(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindRateLimited, perr.Kind)

	_, ok = AsProviderError(errors.New("plain"))
	assert.False(t, ok)
}

// =============================================================================
// Kind Mapping Tests
// =============================================================================

// TestKindFromStatus verifies HTTP status classification.
func TestKindFromStatus(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusUnauthorized, KindUnauthorized},
		{http.StatusForbidden, KindUnauthorized},
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusRequestTimeout, KindTimeout},
		{http.StatusGatewayTimeout, KindTimeout},
		{http.StatusBadRequest, KindMalformed},
		{http.StatusNotFound, KindMalformed},
		{http.StatusInternalServerError, KindUnknown},
		{http.StatusBadGateway, KindUnknown},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, kindFromStatus(tc.status), "status %d", tc.status)
	}
}

// TestKindFromTransport verifies transport error classification.
func TestKindFromTransport(t *testing.T) {
	assert.Equal(t, KindTimeout, kindFromTransport(context.DeadlineExceeded))
	assert.Equal(t, KindTimeout, kindFromTransport(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.Equal(t, KindUnknown, kindFromTransport(errors.New("connection refused")))
}
