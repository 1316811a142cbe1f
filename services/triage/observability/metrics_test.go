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

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRun(t *testing.T) {
	before := testutil.ToFloat64(triageRuns.WithLabelValues("report", "analyzed"))
	RecordRun("report", "analyzed", 0.5)
	after := testutil.ToFloat64(triageRuns.WithLabelValues("report", "analyzed"))
	if after != before+1 {
		t.Errorf("runs_total = %v, want %v", after, before+1)
	}
}

func TestRecordRateLimited(t *testing.T) {
	before := testutil.ToFloat64(rateLimited.WithLabelValues("hourly"))
	RecordRateLimited("hourly")
	RecordRateLimited("daily")
	after := testutil.ToFloat64(rateLimited.WithLabelValues("hourly"))
	if after != before+1 {
		t.Errorf("rate_limited_total{tier=hourly} = %v, want %v", after, before+1)
	}
}

func TestRecordEmbeddingStatusLabel(t *testing.T) {
	// Both paths must record without panicking; label values are fixed.
	RecordEmbedding(true, 0.1)
	RecordEmbedding(false, 0.1)
}

func TestRecordHistograms(t *testing.T) {
	RecordDuplicates(3)
	RecordQualityScore(0.72)
}
