// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysisstore persists the most recent triage outcome per
// work item.
//
// Upsert is a full replace with last-write-wins semantics; there is no
// merge path. The absence of a record means "never analyzed", which
// best-candidate selection maps to a zero score.
package analysisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianTriage/services/triage/datatypes"
	storage "github.com/AleutianAI/AleutianTriage/services/triage/storage/badger"
)

const anaKeyPrefix = "ana:"

// Store keeps analysis records in the embedded keyed store as JSON
// values.
type Store struct {
	db  *storage.DB
	now func() time.Time
}

// New creates a store over the given database.
func New(db *storage.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock overrides the time source used for AnalyzedAt stamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func anaKey(key datatypes.ItemKey) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%d", anaKeyPrefix, key.Collection, key.Kind, key.ID))
}

// Upsert replaces the record for the key entirely.
func (s *Store) Upsert(ctx context.Context, record datatypes.AnalysisRecord) error {
	record.AnalyzedAt = s.now().UTC()

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode analysis record %s: %w", record.Key, err)
	}

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(anaKey(record.Key), value)
	})
	if err != nil {
		return fmt.Errorf("upsert analysis record %s: %w", record.Key, err)
	}
	return nil
}

// Get fetches one record; found is false when the item was never
// analyzed.
func (s *Store) Get(ctx context.Context, key datatypes.ItemKey) (datatypes.AnalysisRecord, bool, error) {
	var record datatypes.AnalysisRecord
	found := false

	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(anaKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		return datatypes.AnalysisRecord{}, false, fmt.Errorf("get analysis record %s: %w", key, err)
	}
	return record, found, nil
}

// Score returns the persisted quality score for a key, defaulting to
// zero when the item was never analyzed or carries no score. Used by
// best-candidate selection.
func (s *Store) Score(ctx context.Context, key datatypes.ItemKey) (float64, error) {
	record, found, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !found || record.Score == nil {
		return 0, nil
	}
	return *record.Score, nil
}
