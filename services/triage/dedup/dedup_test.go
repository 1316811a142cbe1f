// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dedup

import (
	"math"
	"testing"

	"github.com/AleutianAI/AleutianTriage/services/triage/datatypes"
)

func record(kind datatypes.Kind, id int, vector []float32) datatypes.EmbeddingRecord {
	return datatypes.EmbeddingRecord{
		Key:    datatypes.ItemKey{Collection: "acme/widgets", Kind: kind, ID: id},
		Title:  "item",
		Vector: vector,
		Active: true,
	}
}

func TestCosineSimilarity_SelfIsOne(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0},
		{0.3, -0.7, 2.1},
		{5},
	}
	for _, v := range vectors {
		got := CosineSimilarity(v, v)
		if math.Abs(got-1.0) > 1e-9 {
			t.Errorf("CosineSimilarity(v, v) = %v, want 1.0", got)
		}
	}
}

func TestCosineSimilarity_DegenerateInputs(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
	}{
		{"both empty", nil, nil},
		{"one empty", []float32{1, 2}, nil},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}},
		{"zero magnitude a", []float32{0, 0}, []float32{1, 1}},
		{"zero magnitude b", []float32{1, 1}, []float32{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); got != 0 {
				t.Errorf("CosineSimilarity() = %v, want 0", got)
			}
		})
	}
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	got := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors: got %v, want 0", got)
	}
}

func TestCosineSimilarity_Opposite(t *testing.T) {
	got := CosineSimilarity([]float32{1, 2}, []float32{-1, -2})
	if math.Abs(got+1.0) > 1e-9 {
		t.Errorf("opposite vectors: got %v, want -1", got)
	}
}

func TestFindDuplicates_ExcludesSameKindAndID(t *testing.T) {
	current := record(datatypes.KindProposal, 7, []float32{1, 0})
	candidates := []datatypes.EmbeddingRecord{
		record(datatypes.KindProposal, 7, []float32{1, 0}), // same kind+id: excluded
		record(datatypes.KindReport, 7, []float32{1, 0}),   // same id, other kind: kept
		record(datatypes.KindProposal, 8, []float32{1, 0}),
	}

	matches := FindDuplicates(current, candidates, 0.9)
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2: %+v", len(matches), matches)
	}
	for _, m := range matches {
		if m.Kind == datatypes.KindProposal && m.ID == 7 {
			t.Error("query item's own (kind, id) leaked into results")
		}
	}
}

func TestFindDuplicates_SkipsInactive(t *testing.T) {
	current := record(datatypes.KindReport, 1, []float32{1, 0})
	inactive := record(datatypes.KindReport, 2, []float32{1, 0})
	inactive.Active = false

	matches := FindDuplicates(current, []datatypes.EmbeddingRecord{inactive}, 0.5)
	if len(matches) != 0 {
		t.Fatalf("inactive candidate matched: %+v", matches)
	}
}

func TestFindDuplicates_ThresholdAndOrdering(t *testing.T) {
	current := record(datatypes.KindProposal, 1, []float32{1, 0})
	candidates := []datatypes.EmbeddingRecord{
		record(datatypes.KindProposal, 2, []float32{0.5, 0.5}), // ~0.707
		record(datatypes.KindProposal, 3, []float32{1, 0}),     // 1.0
		record(datatypes.KindProposal, 4, []float32{0, 1}),     // 0.0, filtered
		record(datatypes.KindProposal, 5, []float32{0.9, 0.1}), // high
	}

	matches := FindDuplicates(current, candidates, 0.7)
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3: %+v", len(matches), matches)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Similarity > matches[i-1].Similarity {
			t.Errorf("results not sorted descending: %+v", matches)
		}
	}
	for _, m := range matches {
		if m.Similarity < 0.7 {
			t.Errorf("match below threshold: %+v", m)
		}
	}
	if matches[0].ID != 3 {
		t.Errorf("best match ID = %d, want 3", matches[0].ID)
	}
}

func TestFindDuplicates_TieBreakIsInsertionOrder(t *testing.T) {
	current := record(datatypes.KindProposal, 1, []float32{1, 0})
	// Candidates 10 and 11 are both exact matches; the stable sort must
	// keep 10 before 11.
	candidates := []datatypes.EmbeddingRecord{
		record(datatypes.KindProposal, 10, []float32{2, 0}),
		record(datatypes.KindProposal, 11, []float32{3, 0}),
	}

	matches := FindDuplicates(current, candidates, 0.5)
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].ID != 10 || matches[1].ID != 11 {
		t.Errorf("tie-break broke insertion order: %+v", matches)
	}
}

func TestClusterDuplicates_EmptyAndSingle(t *testing.T) {
	if got := ClusterDuplicates(nil, 0.9); len(got) != 0 {
		t.Errorf("ClusterDuplicates(nil) = %+v, want none", got)
	}
	single := []datatypes.EmbeddingRecord{record(datatypes.KindReport, 1, []float32{1, 0})}
	if got := ClusterDuplicates(single, 0.9); len(got) != 0 {
		t.Errorf("ClusterDuplicates(single) = %+v, want none", got)
	}
}

func TestClusterDuplicates_ThreeMutuallySimilar(t *testing.T) {
	items := []datatypes.EmbeddingRecord{
		record(datatypes.KindReport, 1, []float32{1, 0}),
		record(datatypes.KindReport, 2, []float32{0.99, 0.01}),
		record(datatypes.KindReport, 3, []float32{0.98, 0.02}),
	}

	clusters := ClusterDuplicates(items, 0.9)
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	if len(clusters[0].Members) != 3 {
		t.Errorf("cluster has %d members, want 3", len(clusters[0].Members))
	}
	if clusters[0].Anchor.ID != 1 {
		t.Errorf("anchor ID = %d, want first-seen item 1", clusters[0].Anchor.ID)
	}
}

func TestClusterDuplicates_NonTransitive(t *testing.T) {
	// Items 2 and 3 both sit within threshold of anchor 1 but not of each
	// other. The greedy scan still groups all three under the anchor.
	items := []datatypes.EmbeddingRecord{
		record(datatypes.KindReport, 1, []float32{1, 0}),
		record(datatypes.KindReport, 2, []float32{0.8, 0.6}),  // sim to 1: 0.8
		record(datatypes.KindReport, 3, []float32{0.8, -0.6}), // sim to 1: 0.8, sim to 2: 0.28
	}

	clusters := ClusterDuplicates(items, 0.75)
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	if len(clusters[0].Members) != 3 {
		t.Errorf("non-transitive grouping lost: %d members, want 3", len(clusters[0].Members))
	}
}

func TestClusterDuplicates_MembersNeverReAnchor(t *testing.T) {
	// Item 2 joins cluster 1; item 3 is similar to 2 only. Because joined
	// members never act as anchors, item 3 must not end up clustered.
	items := []datatypes.EmbeddingRecord{
		record(datatypes.KindReport, 1, []float32{1, 0}),
		record(datatypes.KindReport, 2, []float32{0.8, 0.6}),
		record(datatypes.KindReport, 3, []float32{0.1, 1}), // sim to 2 high-ish, sim to 1 low
	}

	clusters := ClusterDuplicates(items, 0.75)
	for _, c := range clusters {
		for _, m := range c.Members {
			if m.Key.ID == 3 {
				t.Errorf("item 3 clustered via a non-anchor member: %+v", clusters)
			}
		}
	}
}

func TestClusterDuplicates_DisjointGroups(t *testing.T) {
	items := []datatypes.EmbeddingRecord{
		record(datatypes.KindReport, 1, []float32{1, 0}),
		record(datatypes.KindReport, 2, []float32{1, 0.01}),
		record(datatypes.KindReport, 3, []float32{0, 1}),
		record(datatypes.KindReport, 4, []float32{0.01, 1}),
	}

	clusters := ClusterDuplicates(items, 0.95)
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2: %+v", len(clusters), clusters)
	}
	if clusters[0].Anchor.ID != 1 || clusters[1].Anchor.ID != 3 {
		t.Errorf("unexpected anchors: %+v, %+v", clusters[0].Anchor, clusters[1].Anchor)
	}
}
