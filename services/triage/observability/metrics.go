// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability holds the triage service's prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for the Triage Pipeline
// =============================================================================

var (
	// triageRuns counts completed pipeline runs by outcome.
	// Labels: kind (change_proposal, report), outcome
	// (analyzed, degraded, skipped_trusted, skipped_bot, rate_limited, error)
	triageRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triage",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Total triage pipeline runs by outcome",
	}, []string{"kind", "outcome"})

	// triageDuration measures end-to-end pipeline latency.
	// Labels: kind
	triageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "triage",
		Subsystem: "pipeline",
		Name:      "duration_seconds",
		Help:      "End-to-end triage pipeline latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"kind"})

	// rateLimited counts budget rejections by tier.
	// Labels: tier (hourly, daily)
	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triage",
		Subsystem: "pipeline",
		Name:      "rate_limited_total",
		Help:      "Total items rejected by a budget tier",
	}, []string{"tier"})

	// embeddingLatency measures embedding provider call latency.
	// Labels: status (ok, unavailable)
	embeddingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "triage",
		Subsystem: "embedding",
		Name:      "latency_seconds",
		Help:      "Embedding provider call latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"status"})

	// duplicatesFound tracks how many duplicates each analyzed item had.
	duplicatesFound = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "triage",
		Subsystem: "dedup",
		Name:      "duplicates_found",
		Help:      "Duplicate candidates found per analyzed item",
		Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
	})

	// qualityScores tracks the distribution of computed quality scores.
	qualityScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "triage",
		Subsystem: "quality",
		Name:      "score",
		Help:      "Distribution of computed quality scores",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})
)

// RecordRun records a finished pipeline run.
//
// Inputs:
//
//	kind - The work item kind label.
//	outcome - One of analyzed, degraded, skipped_trusted, skipped_bot,
//	          rate_limited, error.
//	durationSec - End-to-end duration in seconds.
func RecordRun(kind, outcome string, durationSec float64) {
	triageRuns.WithLabelValues(kind, outcome).Inc()
	triageDuration.WithLabelValues(kind).Observe(durationSec)
}

// RecordRateLimited records a budget rejection.
//
// Inputs:
//
//	tier - "hourly" or "daily".
func RecordRateLimited(tier string) {
	rateLimited.WithLabelValues(tier).Inc()
}

// RecordEmbedding records an embedding provider call.
func RecordEmbedding(ok bool, durationSec float64) {
	status := "ok"
	if !ok {
		status = "unavailable"
	}
	embeddingLatency.WithLabelValues(status).Observe(durationSec)
}

// RecordDuplicates records the duplicate count for one analyzed item.
func RecordDuplicates(count int) {
	duplicatesFound.Observe(float64(count))
}

// RecordQualityScore records a computed quality score.
func RecordQualityScore(score float64) {
	qualityScores.Observe(score)
}
