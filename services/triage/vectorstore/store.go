// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vectorstore persists embedding records with an explicit
// Active/Inactive lifecycle.
//
// # Lifecycle
//
// A record is in one of three states: Active, Inactive (soft-deleted),
// or Absent (no row).
//
//	Absent/Inactive --Upsert-----> Active   (always; full overwrite)
//	Active ---------Deactivate---> Inactive (source item closed)
//	Inactive -------Reactivate---> Active   (source item reopened)
//
// Reactivate is a no-op that reports false when the record is Absent
// or already Active; it reports true only when it flips a genuinely
// Inactive record. Candidate listings for deduplication only ever see
// Active records.
//
// # Backends
//
// Two implementations are provided: an embedded BadgerDB store (the
// default) and a Weaviate-backed store for deployments that already
// run a vector database. Both satisfy Store; the serve command picks
// one at startup.
package vectorstore

import (
	"context"

	"github.com/AleutianAI/AleutianTriage/services/triage/datatypes"
)

// DefaultListLimit caps candidate listings when the caller passes no
// limit, bounding dedup cost on large collections.
const DefaultListLimit = 200

// Store is the embedding-record persistence contract.
type Store interface {
	// Upsert writes the record, overwriting every text and vector
	// field and forcing Active to true. Repeated application yields
	// the same end state.
	Upsert(ctx context.Context, record datatypes.EmbeddingRecord) error

	// Get fetches a record by key. The boolean is false when the key
	// is Absent.
	Get(ctx context.Context, key datatypes.ItemKey) (datatypes.EmbeddingRecord, bool, error)

	// Deactivate flips an Active record to Inactive. Reports whether a
	// flip happened; Absent and already-Inactive keys report false.
	Deactivate(ctx context.Context, key datatypes.ItemKey) (bool, error)

	// Reactivate flips an Inactive record back to Active. Reports true
	// only for a genuine Inactive->Active transition.
	Reactivate(ctx context.Context, key datatypes.ItemKey) (bool, error)

	// ListActive returns the collection's Active records, most
	// recently updated first, at most limit entries. A non-positive
	// limit applies DefaultListLimit.
	ListActive(ctx context.Context, collection string, limit int) ([]datatypes.EmbeddingRecord, error)
}
