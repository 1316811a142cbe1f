// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package collab holds the contracts for external collaborator side
// effects: label application and the single marker-tagged triage
// comment.
//
// Both operations are idempotent from the pipeline's perspective:
// adding an already-present label is a no-op on the platform side, and
// the comment is located by a stable marker substring and updated in
// place rather than duplicated.
package collab

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianTriage/services/triage/datatypes"
)

// CommentMarker is the stable substring that identifies the triage
// comment on an item. It must never change between releases, or
// existing comments would be duplicated instead of updated.
const CommentMarker = "<!-- aleutian-triage-report -->"

// Comment is an external comment reference.
type Comment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

// LabelApplier applies labels to a work item. Implementations must be
// add-only and tolerate labels that are already present.
type LabelApplier interface {
	AddLabels(ctx context.Context, key datatypes.ItemKey, names []string) error
}

// CommentApplier manages comments on a work item.
type CommentApplier interface {
	// FindMarkerComment returns the comment containing CommentMarker,
	// or nil when no such comment exists.
	FindMarkerComment(ctx context.Context, key datatypes.ItemKey) (*Comment, error)

	CreateComment(ctx context.Context, key datatypes.ItemKey, body string) error
	UpdateComment(ctx context.Context, key datatypes.ItemKey, commentID int64, body string) error
}

// UpsertMarkerComment writes the triage comment idempotently: update
// in place when the marker comment exists, create otherwise.
func UpsertMarkerComment(ctx context.Context, comments CommentApplier, key datatypes.ItemKey, body string) error {
	existing, err := comments.FindMarkerComment(ctx, key)
	if err != nil {
		return fmt.Errorf("find marker comment on %s: %w", key, err)
	}
	if existing != nil {
		return comments.UpdateComment(ctx, key, existing.ID, body)
	}
	return comments.CreateComment(ctx, key, body)
}

// RenderCommentBody formats a triage outcome as the marker comment's
// markdown body.
func RenderCommentBody(record datatypes.AnalysisRecord, bestCandidate datatypes.ItemKey) string {
	var b strings.Builder
	b.WriteString(CommentMarker)
	b.WriteString("\n## Triage summary\n\n")

	if record.Degraded {
		b.WriteString("The analysis provider was unavailable; this item is flagged for manual attention.\n")
		return b.String()
	}

	if record.Score != nil {
		fmt.Fprintf(&b, "**Quality score:** %.2f — recommendation: %s\n\n", *record.Score, record.Recommendation)
	}

	if len(record.Duplicates) == 0 {
		b.WriteString("No similar open items were found.\n")
	} else {
		b.WriteString("Similar open items:\n\n")
		for _, d := range record.Duplicates {
			fmt.Fprintf(&b, "- #%d (%s) — similarity %.2f: %s\n", d.ID, d.Kind, d.Similarity, d.Title)
		}
		if bestCandidate != record.Key {
			fmt.Fprintf(&b, "\nOf these, #%d currently looks like the strongest candidate.\n", bestCandidate.ID)
		}
	}

	if record.Reasoning != "" {
		b.WriteString("\n")
		b.WriteString(record.Reasoning)
		b.WriteString("\n")
	}
	return b.String()
}
