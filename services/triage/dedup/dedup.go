// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dedup implements vector-similarity duplicate detection over
// embedding records.
//
// # Description
//
// Two operations are exposed: FindDuplicates compares a single item
// against a candidate set and returns threshold-filtered matches, and
// ClusterDuplicates groups a whole candidate set into near-duplicate
// clusters using a single-pass greedy scan.
//
// # Clustering Semantics
//
// Clustering is deliberately greedy and non-transitive: members are
// compared to their cluster's anchor only, never to each other. Two
// members may both match the anchor while failing to match each other
// and will still share a cluster. Downstream consumers depend on this
// grouping, so it must not be replaced with transitive closure.
package dedup

import (
	"math"
	"sort"

	"github.com/AleutianAI/AleutianTriage/services/triage/datatypes"
)

// CosineSimilarity computes the cosine similarity of two vectors.
//
// Returns 0 (never an error) when either vector is empty, the lengths
// differ, or either vector has zero magnitude. Otherwise returns
// dot(a,b) / (|a|*|b|). The result is not clamped; callers treat it as
// a plain similarity scalar.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// FindDuplicates compares current against every active candidate and
// returns matches with similarity >= threshold, sorted by similarity
// descending.
//
// A candidate with the same (kind, id) as current is excluded. The
// exclusion is on kind and id together: a same-id candidate of a
// different kind is a legitimate match, since kind is part of the
// identity key. Ties in similarity keep the candidate set's insertion
// order (stable sort).
func FindDuplicates(current datatypes.EmbeddingRecord, candidates []datatypes.EmbeddingRecord, threshold float64) []datatypes.DuplicateMatch {
	var matches []datatypes.DuplicateMatch
	for _, cand := range candidates {
		if cand.Key.Kind == current.Key.Kind && cand.Key.ID == current.Key.ID {
			continue
		}
		if !cand.Active {
			continue
		}
		sim := CosineSimilarity(current.Vector, cand.Vector)
		if sim >= threshold {
			matches = append(matches, datatypes.DuplicateMatch{
				Kind:       cand.Key.Kind,
				ID:         cand.Key.ID,
				Similarity: sim,
				Title:      cand.Title,
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches
}

// Cluster is one greedily-grouped set of near-duplicate items. Anchor
// is the first-seen member; Members includes the anchor.
type Cluster struct {
	Anchor  datatypes.ItemKey
	Members []datatypes.EmbeddingRecord
}

// ClusterDuplicates groups items into near-duplicate clusters.
//
// Items are visited in input order. Each unvisited item anchors a new
// cluster; the remaining unvisited items are scanned and any with
// similarity to the anchor >= threshold join the cluster and are marked
// visited. Joined members never anchor a second cluster. Only clusters
// with more than one member are returned.
func ClusterDuplicates(items []datatypes.EmbeddingRecord, threshold float64) []Cluster {
	visited := make([]bool, len(items))
	var clusters []Cluster

	for i := range items {
		if visited[i] {
			continue
		}
		visited[i] = true
		cluster := Cluster{
			Anchor:  items[i].Key,
			Members: []datatypes.EmbeddingRecord{items[i]},
		}
		for j := i + 1; j < len(items); j++ {
			if visited[j] {
				continue
			}
			if CosineSimilarity(items[i].Vector, items[j].Vector) >= threshold {
				visited[j] = true
				cluster.Members = append(cluster.Members, items[j])
			}
		}
		if len(cluster.Members) > 1 {
			clusters = append(clusters, cluster)
		}
	}
	return clusters
}
