// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ratelimit implements the two-tier budget guard in front of
// the embedding provider.
//
// # Description
//
// Two independent, non-interacting counter families are kept:
//
//   - Hourly collection budget: one counter per (collection, UTC hour).
//     Checking atomically increments then reads, so a rejected call
//     still consumes a slot; the counter simply saturates past the
//     budget.
//   - Daily tenant budget: one counter per (tenant, UTC date). Check
//     and increment are separate calls so callers can preview
//     admission without spending; the pipeline increments only after a
//     fully completed run.
//
// Buckets are fixed calendar windows, not sliding windows. Up to 2x
// the hourly budget can be admitted in a short span straddling an hour
// boundary; this is accepted.
//
// # Concurrency
//
// Each counter operation runs in its own Badger transaction and is
// atomic. The daily budget's check-then-increment gap is intentionally
// unguarded at this layer: concurrent deliveries for one tenant can
// both pass Check before either Increment lands. This approximation is
// documented and accepted rather than closed with locking.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	storage "github.com/AleutianAI/AleutianTriage/services/triage/storage/badger"
)

const (
	hourKeyPrefix = "rl:hour:"
	dayKeyPrefix  = "rl:day:"

	// Counter entries carry a TTL so stale buckets age out of the
	// store instead of accumulating forever.
	hourBucketTTL = 2 * time.Hour
	dayBucketTTL  = 48 * time.Hour
)

// TenantBudget is the result of a daily-budget check.
type TenantBudget struct {
	// Allowed is true when the tenant still has budget today.
	Allowed bool `json:"allowed"`

	// Remaining is the number of analyses left in today's bucket.
	Remaining int `json:"remaining"`

	// Used is the number of analyses consumed today.
	Used int `json:"used"`
}

// Limiter tracks both budget tiers against the shared keyed store.
type Limiter struct {
	db  *storage.DB
	now func() time.Time
}

// New creates a limiter over the given store.
func New(db *storage.DB) *Limiter {
	return &Limiter{db: db, now: time.Now}
}

// WithClock overrides the time source. Tests use this to pin bucket
// boundaries.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// CheckCollectionBudget consumes one slot from the collection's hourly
// bucket and reports whether the call is admitted.
//
// The increment happens unconditionally: a rejected call still counts.
// Admission means the post-increment count is within budget.
func (l *Limiter) CheckCollectionBudget(ctx context.Context, collection string, budget int) (bool, error) {
	if collection == "" {
		return false, errors.New("collection must not be empty")
	}

	bucket := l.now().UTC().Format("2006-01-02T15")
	key := []byte(hourKeyPrefix + collection + ":" + bucket)

	var count int
	err := l.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var err error
		count, err = incrementCounter(txn, key, hourBucketTTL)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("hourly budget check for %s: %w", collection, err)
	}

	return count <= budget, nil
}

// CheckTenantBudget reads today's usage for a tenant without mutating
// state. Callers that go on to run an analysis must separately call
// IncrementTenantBudget.
func (l *Limiter) CheckTenantBudget(ctx context.Context, tenant string, limit int) (TenantBudget, error) {
	if tenant == "" {
		return TenantBudget{}, errors.New("tenant must not be empty")
	}

	key := l.dayKey(tenant)

	var used int
	err := l.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		used, err = readCounter(txn, key)
		return err
	})
	if err != nil {
		return TenantBudget{}, fmt.Errorf("daily budget check for %s: %w", tenant, err)
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return TenantBudget{
		Allowed:   used < limit,
		Remaining: remaining,
		Used:      used,
	}, nil
}

// IncrementTenantBudget spends one slot from the tenant's daily bucket.
func (l *Limiter) IncrementTenantBudget(ctx context.Context, tenant string) error {
	if tenant == "" {
		return errors.New("tenant must not be empty")
	}

	key := l.dayKey(tenant)
	err := l.db.WithTxn(ctx, func(txn *badger.Txn) error {
		_, err := incrementCounter(txn, key, dayBucketTTL)
		return err
	})
	if err != nil {
		return fmt.Errorf("daily budget increment for %s: %w", tenant, err)
	}
	return nil
}

func (l *Limiter) dayKey(tenant string) []byte {
	bucket := l.now().UTC().Format("2006-01-02")
	return []byte(dayKeyPrefix + tenant + ":" + bucket)
}

// incrementCounter bumps the decimal counter at key and returns the
// post-increment value. A missing key starts at zero.
func incrementCounter(txn *badger.Txn, key []byte, ttl time.Duration) (int, error) {
	count, err := readCounter(txn, key)
	if err != nil {
		return 0, err
	}
	count++

	entry := badger.NewEntry(key, []byte(strconv.Itoa(count))).WithTTL(ttl)
	if err := txn.SetEntry(entry); err != nil {
		return 0, fmt.Errorf("write counter: %w", err)
	}
	return count, nil
}

// readCounter returns the counter value at key, or zero when absent.
func readCounter(txn *badger.Txn, key []byte) (int, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}

	var count int
	err = item.Value(func(val []byte) error {
		parsed, err := strconv.Atoi(string(val))
		if err != nil {
			return fmt.Errorf("corrupt counter value %q: %w", val, err)
		}
		count = parsed
		return nil
	})
	return count, err
}
