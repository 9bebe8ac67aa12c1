package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/askdata/pkg/tiers"
)

func TestMemoryStore_GetNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_GetOrCreate(t *testing.T) {
	store := NewMemoryStore()

	rec, err := store.GetOrCreate(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, tiers.Free, rec.Tier)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Zero(t, rec.DailyCount)

	// Second call returns the existing record.
	rec.Tier = tiers.Pro
	require.NoError(t, store.Update(context.Background(), rec))

	again, err := store.GetOrCreate(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, tiers.Pro, again.Tier)
}

func TestMemoryStore_UpdateNotFound(t *testing.T) {
	store := NewMemoryStore()

	err := store.Update(context.Background(), NewRecord("nobody", time.Now()))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.GetOrCreate(context.Background(), "user-1")
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	rec.Tier = tiers.Admin

	stored, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, tiers.Free, stored.Tier)
}

func TestMemoryStore_IncrementDaily(t *testing.T) {
	store := NewMemoryStore()
	day := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

	rec, err := store.IncrementDaily(context.Background(), "user-1", day, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.DailyCount)
	assert.Equal(t, 1, rec.TotalCount)
	assert.Equal(t, Day(day), rec.LastAnalysisDate)

	rec, err = store.IncrementDaily(context.Background(), "user-1", day, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.DailyCount)

	_, err = store.IncrementDaily(context.Background(), "user-1", day, 2)
	require.Error(t, err)
	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, "user-1", quotaErr.UserID)
	assert.Equal(t, 2, quotaErr.Used)
	assert.Equal(t, 2, quotaErr.Limit)
}

func TestMemoryStore_IncrementDailyResetsWindow(t *testing.T) {
	store := NewMemoryStore()
	day1 := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 11, 0, 1, 0, 0, time.UTC)

	_, err := store.IncrementDaily(context.Background(), "user-1", day1, 1)
	require.NoError(t, err)
	_, err = store.IncrementDaily(context.Background(), "user-1", day1, 1)
	require.Error(t, err)

	// The next UTC day starts a fresh window; the total keeps counting.
	rec, err := store.IncrementDaily(context.Background(), "user-1", day2, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.DailyCount)
	assert.Equal(t, 2, rec.TotalCount)
	assert.Equal(t, Day(day2), rec.LastAnalysisDate)
}

func TestMemoryStore_IncrementDailyUnlimited(t *testing.T) {
	store := NewMemoryStore()
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		_, err := store.IncrementDaily(context.Background(), "user-1", day, tiers.UnlimitedAnalyses)
		require.NoError(t, err)
	}

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 25, rec.DailyCount)
}

func TestMemoryStore_IncrementDailyConcurrent(t *testing.T) {
	store := NewMemoryStore()
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	const attempts = 10
	const limit = 3

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.IncrementDaily(context.Background(), "racer", day, limit)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, denied int
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, IsQuotaExceeded(err), "unexpected error: %v", err)
		denied++
	}
	assert.Equal(t, limit, succeeded)
	assert.Equal(t, attempts-limit, denied)

	rec, err := store.Get(context.Background(), "racer")
	require.NoError(t, err)
	assert.Equal(t, limit, rec.DailyCount)
}

func TestMemoryStore_UpdateSubscription(t *testing.T) {
	store := NewMemoryStore()
	exp := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

	err := store.UpdateSubscription(context.Background(), "user-1", true, func(rec *Record) error {
		rec.Tier = tiers.Pro
		rec.ExpiresAt = &exp
		rec.StripeCustomerID = "cus_123"
		return nil
	})
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, tiers.Pro, rec.Tier)
	assert.Equal(t, "cus_123", rec.StripeCustomerID)
	require.NotNil(t, rec.ExpiresAt)
	assert.Equal(t, exp, *rec.ExpiresAt)
}

func TestMemoryStore_UpdateSubscriptionNotFound(t *testing.T) {
	store := NewMemoryStore()

	err := store.UpdateSubscription(context.Background(), "nobody", false, func(rec *Record) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_UpdateSubscriptionMutateError(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetOrCreate(context.Background(), "user-1")
	require.NoError(t, err)

	boom := errors.New("refused")
	err = store.UpdateSubscription(context.Background(), "user-1", false, func(rec *Record) error {
		rec.Tier = tiers.Pro
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, tiers.Free, rec.Tier)
}

func TestMemoryStore_UpdateSubscriptionPreservesCounters(t *testing.T) {
	store := NewMemoryStore()
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := store.IncrementDaily(context.Background(), "user-1", day, tiers.UnlimitedAnalyses)
		require.NoError(t, err)
	}

	// Even a mutate that zeroes the counters cannot write them back.
	err := store.UpdateSubscription(context.Background(), "user-1", false, func(rec *Record) error {
		rec.Tier = tiers.Pro
		rec.DailyCount = 0
		rec.TotalCount = 0
		return nil
	})
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, tiers.Pro, rec.Tier)
	assert.Equal(t, 3, rec.DailyCount)
	assert.Equal(t, 3, rec.TotalCount)
}

func TestMemoryStore_UpdateSubscriptionConcurrentIncrements(t *testing.T) {
	store := NewMemoryStore()
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	const analyses = 40
	var wg sync.WaitGroup
	for i := 0; i < analyses; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := store.IncrementDaily(context.Background(), "racer", day, tiers.UnlimitedAnalyses)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			err := store.UpdateSubscription(context.Background(), "racer", true, func(rec *Record) error {
				rec.Tier = tiers.Pro
				rec.Status = StatusActive
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// No increment is lost to an interleaved subscription write.
	rec, err := store.Get(context.Background(), "racer")
	require.NoError(t, err)
	assert.Equal(t, analyses, rec.TotalCount)
	assert.Equal(t, analyses, rec.DailyCount)
}

func TestMemoryStore_FindByCustomerID(t *testing.T) {
	store := NewMemoryStore()

	rec, err := store.GetOrCreate(context.Background(), "user-1")
	require.NoError(t, err)
	rec.StripeCustomerID = "cus_123"
	require.NoError(t, store.Update(context.Background(), rec))

	found, err := store.FindByCustomerID(context.Background(), "cus_123")
	require.NoError(t, err)
	assert.Equal(t, "user-1", found.UserID)

	_, err = store.FindByCustomerID(context.Background(), "cus_999")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.FindByCustomerID(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}
