// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the core data model shared by the triage
// services: work item identity, embedding and analysis records, and the
// inbound event shape delivered by the webhook transport.
package datatypes

import (
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianTriage/pkg/validation"
)

// Kind classifies a work item. The identity key of every stored record
// includes the kind, so a proposal and a report may share a numeric ID
// within the same collection without colliding.
type Kind string

const (
	// KindProposal is a change proposal (a submitted code change).
	KindProposal Kind = "change_proposal"

	// KindReport is a problem report filed against a collection.
	KindReport Kind = "report"
)

// Scored reports whether items of this kind carry quality semantics.
// Only change proposals are quality-scored; reports are deduplicated only.
func (k Kind) Scored() bool {
	return k == KindProposal
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindProposal || k == KindReport
}

// Action is the lifecycle action delivered with an inbound event.
type Action string

const (
	ActionOpened   Action = "opened"
	ActionEdited   Action = "edited"
	ActionClosed   Action = "closed"
	ActionReopened Action = "reopened"
)

// ItemKey uniquely identifies a work item.
//
// The triple (Collection, Kind, ID) is the identity key for every
// keyspace in the triage engine: embeddings, analyses, and the
// external item reference handed to collaborators.
type ItemKey struct {
	// Collection is the scope the item belongs to (e.g. "acme/widgets").
	Collection string `json:"collection"`

	// Kind distinguishes proposals from reports.
	Kind Kind `json:"kind"`

	// ID is the item number within the collection.
	ID int `json:"id"`
}

// String renders the key in collection/kind/id form for logs.
func (k ItemKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Collection, k.Kind, k.ID)
}

// EmbeddingRecord is the stored vector representation of a work item.
//
// Upsert semantics are full-replace: every write overwrites all text and
// vector fields and forces Active to true. Close/reopen events flip the
// Active flag without touching the rest of the record.
type EmbeddingRecord struct {
	Key ItemKey `json:"key"`

	// Title and Body are the item's primary text.
	Title string `json:"title"`
	Body  string `json:"body"`

	// Supplement carries supporting text such as a diff excerpt.
	Supplement string `json:"supplement,omitempty"`

	// Vector is the embedding produced by the provider.
	Vector []float32 `json:"vector"`

	// Active marks the item as open. Deduplication only ever considers
	// active records.
	Active bool `json:"active"`

	// UpdatedAt orders candidate listings most-recent-first.
	UpdatedAt time.Time `json:"updated_at"`
}

// DuplicateMatch is one near-duplicate hit against an existing item.
type DuplicateMatch struct {
	Kind       Kind    `json:"kind"`
	ID         int     `json:"id"`
	Similarity float64 `json:"similarity"`
	Title      string  `json:"title"`
}

// Recommendation is the triage verdict for a scored item.
type Recommendation string

const (
	RecommendApprove Recommendation = "approve"
	RecommendReview  Recommendation = "review"
	RecommendReject  Recommendation = "reject"
)

// AnalysisRecord is the persisted outcome of the most recent triage run
// for an item. Upsert is a full replace; the absence of a record means
// the item was never analyzed, not that it was analyzed with an empty
// result.
type AnalysisRecord struct {
	Key ItemKey `json:"key"`

	// Duplicates lists near-duplicate matches, highest similarity first.
	Duplicates []DuplicateMatch `json:"duplicates,omitempty"`

	// Score is the quality score in [0,1]. Nil for kinds that are not
	// scored and for degraded runs that produced no score.
	Score *float64 `json:"score,omitempty"`

	// Recommendation is empty when no score was computed.
	Recommendation Recommendation `json:"recommendation,omitempty"`

	// Reasoning is free-text advisory output from the scorer.
	Reasoning string `json:"reasoning,omitempty"`

	// Degraded marks outcomes written while the embedding provider was
	// unavailable.
	Degraded bool `json:"degraded,omitempty"`

	// AnalyzedAt is when this outcome was computed.
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// QualitySignals are the raw inputs to the quality scorer, extracted
// from the inbound event payload.
type QualitySignals struct {
	Additions      int      `json:"additions"`
	Deletions      int      `json:"deletions"`
	ChangedFiles   int      `json:"changed_files"`
	HasTests       bool     `json:"has_tests"`
	CommitMessages []string `json:"commit_messages,omitempty"`

	// ContributorMergedCount is the author's prior completed-submission
	// count on the platform.
	ContributorMergedCount int `json:"contributor_merged_count"`

	// ContributorAccountAgeDays is the author account age in days.
	ContributorAccountAgeDays int `json:"contributor_account_age_days"`

	CIPassing bool `json:"ci_passing"`
}

// TriageEvent is one inbound work-item event after transport decoding.
//
// Tenant is the installation/organization scope used for the daily
// analysis budget; Collection scopes the hourly budget and the
// deduplication candidate set.
type TriageEvent struct {
	Tenant     string `json:"tenant"`
	Collection string `json:"collection"`
	Kind       Kind   `json:"kind"`
	ID         int    `json:"id"`
	Action     Action `json:"action"`

	Title      string `json:"title"`
	Body       string `json:"body"`
	Supplement string `json:"supplement,omitempty"`

	// Author is the login of the submitting account.
	Author string `json:"author"`

	// Patch optionally carries the raw unified diff; when present and
	// Signals is zero-valued, diff stats are derived from it.
	Patch string `json:"patch,omitempty"`

	Signals QualitySignals `json:"signals"`
}

// Key returns the identity key for the event's item.
func (e *TriageEvent) Key() ItemKey {
	return ItemKey{Collection: e.Collection, Kind: e.Kind, ID: e.ID}
}

// Validate checks the fields every pipeline path depends on. Tenant
// and collection identifiers are checked against the keyspace character
// set before they are ever embedded in a storage key or platform URL.
func (e *TriageEvent) Validate() error {
	if err := validation.ValidateTenant(e.Tenant); err != nil {
		return err
	}
	if err := validation.ValidateCollection(e.Collection); err != nil {
		return err
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown item kind %q", e.Kind)
	}
	if e.ID <= 0 {
		return fmt.Errorf("invalid item id %d", e.ID)
	}
	switch e.Action {
	case ActionOpened, ActionEdited, ActionClosed, ActionReopened:
	default:
		return fmt.Errorf("unknown action %q", e.Action)
	}
	return nil
}
