// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInitMetrics_Idempotent verifies repeated initialization returns the
// same instance instead of panicking on duplicate registration.
func TestInitMetrics_Idempotent(t *testing.T) {
	first := InitMetrics()
	second := InitMetrics()

	require.NotNil(t, first)
	assert.Same(t, first, second)
	assert.Same(t, first, DefaultMetrics)
}

// TestMetrics_RecordHelpers verifies the helper methods move the right
// series.
func TestMetrics_RecordHelpers(t *testing.T) {
	m := InitMetrics()

	before := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("success"))
	m.RecordRequest(true)
	assert.Equal(t, before+1, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("success")))

	beforeErr := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(string(ErrorCodeExtraction)))
	m.RecordError(ErrorCodeExtraction)
	assert.Equal(t, beforeErr+1, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(string(ErrorCodeExtraction))))

	beforeDeltas := testutil.ToFloat64(m.DeltasTotal.WithLabelValues("gpt-4o"))
	m.RecordDeltas("gpt-4o", 3)
	assert.Equal(t, beforeDeltas+3, testutil.ToFloat64(m.DeltasTotal.WithLabelValues("gpt-4o")))

	m.StreamStarted()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActiveStreams))
	m.StreamEnded()
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveStreams))

	beforeKA := testutil.ToFloat64(m.KeepAlivesTotal)
	m.RecordKeepAlive()
	assert.Equal(t, beforeKA+1, testutil.ToFloat64(m.KeepAlivesTotal))

	// Histograms only need to not panic here; values are checked by scrape.
	m.RecordTimeToFirstDelta(0.25)
	m.RecordStreamDuration(time.Second.Seconds(), true)
}
