// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package quality implements deterministic quality scoring for change
// proposals.
//
// The score is a pure function of submission signals (diff size, test
// presence, commit hygiene, contributor history, CI state). No provider
// calls are made here; everything is computable from the event payload.
package quality

import (
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianTriage/services/triage/datatypes"
)

// Sub-score weights. The final score is the weighted sum of the five
// components and always lands in [0,1].
const (
	weightDiff        = 0.30
	weightTests       = 0.20
	weightCommits     = 0.15
	weightContributor = 0.15
	weightCI          = 0.20
)

// Thresholds are the per-tenant recommendation cutoffs.
type Thresholds struct {
	// Approve is the minimum score for an approve recommendation.
	Approve float64 `yaml:"approve"`

	// Reject is the score below which the recommendation is reject.
	Reject float64 `yaml:"reject"`
}

// DefaultThresholds returns the stock cutoffs: approve at 0.75 and
// reject below 0.45.
func DefaultThresholds() Thresholds {
	return Thresholds{Approve: 0.75, Reject: 0.45}
}

// Result is the scorer output.
type Result struct {
	// Score is the weighted quality score in [0,1].
	Score float64

	// Recommendation is approve, review, or reject.
	Recommendation datatypes.Recommendation

	// Reasons is advisory text for reviewers; empty for clean
	// submissions.
	Reasons []string
}

// lowEffortMessages match commit subjects that convey no information.
// A subject is low effort only when the pattern is the entire trimmed
// message, case-insensitively.
var lowEffortMessages = regexp.MustCompile(`(?i)^(wip|fix stuff|update|updates|changes|fix|fixes|misc|stuff|temp|asdf|test)$`)

// Score computes the quality score, recommendation, and advisory
// reasons for a change proposal.
func Score(signals datatypes.QualitySignals, thresholds Thresholds) Result {
	diff := diffQuality(signals.Additions, signals.Deletions, signals.ChangedFiles)

	testScore := 0.3
	if signals.HasTests {
		testScore = 1.0
	}

	hygiene := commitHygiene(signals.CommitMessages)
	history := contributorHistory(signals.ContributorMergedCount, signals.ContributorAccountAgeDays)

	ciScore := 0.0
	if signals.CIPassing {
		ciScore = 1.0
	}

	score := weightDiff*diff +
		weightTests*testScore +
		weightCommits*hygiene +
		weightContributor*history +
		weightCI*ciScore

	rec := datatypes.RecommendReview
	switch {
	case score >= thresholds.Approve:
		rec = datatypes.RecommendApprove
	case score < thresholds.Reject:
		rec = datatypes.RecommendReject
	}

	var reasons []string
	if !signals.HasTests {
		reasons = append(reasons, "no tests detected in this change")
	}
	if !signals.CIPassing {
		reasons = append(reasons, "CI is not passing")
	}
	totalLines := signals.Additions + signals.Deletions
	if signals.ChangedFiles > 12 || totalLines > 700 {
		reasons = append(reasons, "diff is unusually broad; consider splitting into smaller changes")
	}

	return Result{Score: score, Recommendation: rec, Reasons: reasons}
}

// diffQuality blends line volume and file spread: small focused diffs
// score highest.
func diffQuality(additions, deletions, changedFiles int) float64 {
	totalLines := float64(additions + deletions)

	lineScore := 1.0 - totalLines/350.0
	if lineScore < 0 {
		lineScore = 0
	}

	fileScore := 1.0
	if changedFiles > 8 {
		fileScore = 1.0 - float64(changedFiles-8)/20.0
		if fileScore < 0 {
			fileScore = 0
		}
	}

	return 0.6*lineScore + 0.4*fileScore
}

// commitHygiene is the fraction of well-formed commit subjects. An
// empty history scores a flat 0.2.
func commitHygiene(messages []string) float64 {
	if len(messages) == 0 {
		return 0.2
	}
	good := 0
	for _, msg := range messages {
		if isGoodCommitMessage(msg) {
			good++
		}
	}
	return float64(good) / float64(len(messages))
}

// isGoodCommitMessage rejects subjects outside [8,90] characters after
// trimming and subjects that are entirely a low-effort pattern.
func isGoodCommitMessage(msg string) bool {
	trimmed := strings.TrimSpace(msg)
	if len(trimmed) < 8 || len(trimmed) > 90 {
		return false
	}
	return !lowEffortMessages.MatchString(trimmed)
}

// contributorHistory saturates at 8 merged submissions and a one-year
// account age.
func contributorHistory(mergedCount, accountAgeDays int) float64 {
	merged := float64(mergedCount) / 8.0
	if merged > 1 {
		merged = 1
	}
	age := float64(accountAgeDays) / 365.0
	if age > 1 {
		age = 1
	}
	return 0.7*merged + 0.3*age
}
