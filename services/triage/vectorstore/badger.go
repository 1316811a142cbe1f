// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianTriage/services/triage/datatypes"
	storage "github.com/AleutianAI/AleutianTriage/services/triage/storage/badger"
)

const embKeyPrefix = "emb:"

// BadgerStore keeps embedding records in the embedded keyed store.
// Records are stored as JSON values; the serialization never leaves
// this adapter.
type BadgerStore struct {
	db  *storage.DB
	now func() time.Time
}

// NewBadgerStore creates a store over the given database.
func NewBadgerStore(db *storage.DB) *BadgerStore {
	return &BadgerStore{db: db, now: time.Now}
}

// WithClock overrides the time source used for UpdatedAt stamps.
func (s *BadgerStore) WithClock(now func() time.Time) *BadgerStore {
	s.now = now
	return s
}

func embKey(key datatypes.ItemKey) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%d", embKeyPrefix, key.Collection, key.Kind, key.ID))
}

// Upsert writes the record as Active, overwriting any previous row for
// the key regardless of its state.
func (s *BadgerStore) Upsert(ctx context.Context, record datatypes.EmbeddingRecord) error {
	record.Active = true
	record.UpdatedAt = s.now().UTC()

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode embedding record %s: %w", record.Key, err)
	}

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(embKey(record.Key), value)
	})
	if err != nil {
		return fmt.Errorf("upsert embedding record %s: %w", record.Key, err)
	}
	return nil
}

// Get fetches one record; found is false for Absent keys.
func (s *BadgerStore) Get(ctx context.Context, key datatypes.ItemKey) (datatypes.EmbeddingRecord, bool, error) {
	var record datatypes.EmbeddingRecord
	found := false

	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(embKey(key))
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
		return datatypes.EmbeddingRecord{}, false, fmt.Errorf("get embedding record %s: %w", key, err)
	}
	return record, found, nil
}

// Deactivate soft-deletes an Active record.
func (s *BadgerStore) Deactivate(ctx context.Context, key datatypes.ItemKey) (bool, error) {
	flipped, err := s.setActive(ctx, key, false)
	if err != nil {
		return false, fmt.Errorf("deactivate %s: %w", key, err)
	}
	return flipped, nil
}

// Reactivate restores an Inactive record. Absent and already-Active
// keys are no-ops reporting false.
func (s *BadgerStore) Reactivate(ctx context.Context, key datatypes.ItemKey) (bool, error) {
	flipped, err := s.setActive(ctx, key, true)
	if err != nil {
		return false, fmt.Errorf("reactivate %s: %w", key, err)
	}
	return flipped, nil
}

// setActive flips the Active flag inside one transaction. It reports
// false without writing when the record is Absent or already in the
// requested state.
func (s *BadgerStore) setActive(ctx context.Context, key datatypes.ItemKey, active bool) (bool, error) {
	flipped := false

	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(embKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		var record datatypes.EmbeddingRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		}); err != nil {
			return err
		}

		if record.Active == active {
			return nil
		}
		record.Active = active
		if active {
			record.UpdatedAt = s.now().UTC()
		}

		value, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if err := txn.Set(embKey(key), value); err != nil {
			return err
		}
		flipped = true
		return nil
	})
	return flipped, err
}

// ListActive scans the collection's prefix and returns Active records,
// most recently updated first.
func (s *BadgerStore) ListActive(ctx context.Context, collection string, limit int) ([]datatypes.EmbeddingRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var records []datatypes.EmbeddingRecord
	prefix := []byte(embKeyPrefix + collection + ":")

	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var record datatypes.EmbeddingRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return err
			}
			if record.Active {
				records = append(records, record)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list active embeddings for %s: %w", collection, err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

var _ Store = (*BadgerStore)(nil)
