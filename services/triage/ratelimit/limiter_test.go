// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storage "github.com/AleutianAI/AleutianTriage/services/triage/storage/badger"
)

func newTestLimiter(t *testing.T) (*Limiter, *time.Time) {
	t.Helper()

	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	current := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	limiter := New(db).WithClock(func() time.Time { return current })
	return limiter, &current
}

func TestCheckCollectionBudget_Saturates(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	var got []bool
	for i := 0; i < 4; i++ {
		allowed, err := limiter.CheckCollectionBudget(ctx, "acme/widgets", 3)
		require.NoError(t, err)
		got = append(got, allowed)
	}
	assert.Equal(t, []bool{true, true, true, false}, got)
}

func TestCheckCollectionBudget_FreshHourResets(t *testing.T) {
	limiter, current := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := limiter.CheckCollectionBudget(ctx, "acme/widgets", 3)
		require.NoError(t, err)
	}

	*current = current.Add(time.Hour)

	allowed, err := limiter.CheckCollectionBudget(ctx, "acme/widgets", 3)
	require.NoError(t, err)
	assert.True(t, allowed, "fresh hour bucket should reset admission")
}

func TestCheckCollectionBudget_CollectionsIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := limiter.CheckCollectionBudget(ctx, "acme/widgets", 3)
		require.NoError(t, err)
	}

	allowed, err := limiter.CheckCollectionBudget(ctx, "acme/gadgets", 3)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckTenantBudget_DoesNotMutate(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		status, err := limiter.CheckTenantBudget(ctx, "tenant-a", 3)
		require.NoError(t, err)
		assert.True(t, status.Allowed)
		assert.Equal(t, 0, status.Used, "check must not consume budget")
		assert.Equal(t, 3, status.Remaining)
	}
}

func TestTenantBudget_ExhaustedAfterIncrements(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.IncrementTenantBudget(ctx, "tenant-a"))
	}

	status, err := limiter.CheckTenantBudget(ctx, "tenant-a", 3)
	require.NoError(t, err)
	assert.False(t, status.Allowed)
	assert.Equal(t, 0, status.Remaining)
	assert.Equal(t, 3, status.Used)
}

func TestTenantBudget_TenantsIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.IncrementTenantBudget(ctx, "tenant-a"))
	}

	status, err := limiter.CheckTenantBudget(ctx, "tenant-b", 3)
	require.NoError(t, err)
	assert.True(t, status.Allowed)
	assert.Equal(t, 0, status.Used)
}

func TestTenantBudget_FreshDayResets(t *testing.T) {
	limiter, current := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.IncrementTenantBudget(ctx, "tenant-a"))
	}

	*current = current.Add(24 * time.Hour)

	status, err := limiter.CheckTenantBudget(ctx, "tenant-a", 3)
	require.NoError(t, err)
	assert.True(t, status.Allowed)
	assert.Equal(t, 0, status.Used)
}

func TestLimiter_EmptyIdentifiers(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	_, err := limiter.CheckCollectionBudget(ctx, "", 3)
	assert.Error(t, err)
	_, err = limiter.CheckTenantBudget(ctx, "", 3)
	assert.Error(t, err)
	assert.Error(t, limiter.IncrementTenantBudget(ctx, ""))
}
