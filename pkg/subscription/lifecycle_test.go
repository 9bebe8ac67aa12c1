package subscription

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/askdata/pkg/observability"
	"github.com/platinummonkey/askdata/pkg/tiers"
	"github.com/platinummonkey/askdata/pkg/usage"
)

func newTestLifecycle(t *testing.T) (*Lifecycle, *usage.MemoryStore) {
	t.Helper()
	store := usage.NewMemoryStore()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewLifecycle(store, logger), store
}

func TestUpgrade_ToPro(t *testing.T) {
	lc, store := newTestLifecycle(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	lc.now = func() time.Time { return now }

	err := lc.Upgrade(context.Background(), "user-1", tiers.Pro, "cus_123", "sub_456")
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, tiers.Pro, rec.Tier)
	assert.Equal(t, usage.StatusActive, rec.Status)
	assert.Equal(t, "cus_123", rec.StripeCustomerID)
	assert.Equal(t, "sub_456", rec.StripeSubscriptionID)
	require.NotNil(t, rec.ExpiresAt)
	assert.Equal(t, now.Add(GracePeriod), *rec.ExpiresAt)
}

func TestUpgrade_RejectsNonPaidTiers(t *testing.T) {
	lc, store := newTestLifecycle(t)

	for _, tier := range []tiers.ID{tiers.Free, tiers.Admin, tiers.ID("platinum")} {
		err := lc.Upgrade(context.Background(), "user-1", tier, "cus_123", "sub_456")
		assert.Error(t, err, "tier %s", tier)
	}

	// Nothing was persisted by the rejected upgrades.
	_, err := store.Get(context.Background(), "user-1")
	assert.ErrorIs(t, err, usage.ErrNotFound)
}

func TestUpgrade_ReplayIsIdempotent(t *testing.T) {
	lc, store := newTestLifecycle(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	lc.now = func() time.Time { return now }

	require.NoError(t, lc.Upgrade(context.Background(), "user-1", tiers.Pro, "cus_123", "sub_456"))
	require.NoError(t, lc.Upgrade(context.Background(), "user-1", tiers.Pro, "cus_123", "sub_456"))

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, tiers.Pro, rec.Tier)
	assert.Equal(t, usage.StatusActive, rec.Status)
	assert.Equal(t, now.Add(GracePeriod), *rec.ExpiresAt)
}

func TestUpgrade_KeepsExistingReferencesWhenEmpty(t *testing.T) {
	lc, store := newTestLifecycle(t)

	require.NoError(t, lc.Upgrade(context.Background(), "user-1", tiers.Pro, "cus_123", "sub_456"))
	require.NoError(t, lc.Upgrade(context.Background(), "user-1", tiers.Enterprise, "", ""))

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, tiers.Enterprise, rec.Tier)
	assert.Equal(t, "cus_123", rec.StripeCustomerID)
	assert.Equal(t, "sub_456", rec.StripeSubscriptionID)
}

func TestDowngrade(t *testing.T) {
	lc, store := newTestLifecycle(t)

	require.NoError(t, lc.Upgrade(context.Background(), "user-1", tiers.Pro, "cus_123", "sub_456"))
	require.NoError(t, lc.Downgrade(context.Background(), "user-1", "subscription_cancelled"))

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, tiers.Free, rec.Tier)
	assert.Equal(t, usage.StatusCancelled, rec.Status)
	assert.Nil(t, rec.ExpiresAt)
	assert.Empty(t, rec.StripeSubscriptionID)
	// The customer reference survives so a later re-subscription maps back.
	assert.Equal(t, "cus_123", rec.StripeCustomerID)
}

func TestDowngrade_FreeUserIsNoOp(t *testing.T) {
	lc, store := newTestLifecycle(t)

	err := lc.Downgrade(context.Background(), "user-1", "subscription_cancelled")
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, tiers.Free, rec.Tier)
}

func TestDowngrade_KeepsUsageCounters(t *testing.T) {
	lc, store := newTestLifecycle(t)
	ctx := context.Background()

	require.NoError(t, lc.Upgrade(ctx, "user-1", tiers.Pro, "cus_123", "sub_456"))
	for i := 0; i < 3; i++ {
		_, err := store.IncrementDaily(ctx, "user-1", time.Now(), tiers.UnlimitedAnalyses)
		require.NoError(t, err)
	}

	require.NoError(t, lc.Downgrade(ctx, "user-1", "subscription_cancelled"))

	rec, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, tiers.Free, rec.Tier)
	assert.Equal(t, 3, rec.DailyCount)
	assert.Equal(t, 3, rec.TotalCount)
}

func TestLifecycle_WritesDoNotLoseConcurrentIncrements(t *testing.T) {
	lc, store := newTestLifecycle(t)
	ctx := context.Background()

	require.NoError(t, lc.Upgrade(ctx, "user-1", tiers.Pro, "cus_123", "sub_456"))

	const analyses = 40
	var wg sync.WaitGroup
	for i := 0; i < analyses; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := store.IncrementDaily(ctx, "user-1", time.Now(), tiers.UnlimitedAnalyses)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, lc.ConfirmActive(ctx, "user-1", "sub_456"))
		}()
	}
	wg.Wait()

	// Every recorded analysis survived the interleaved renewals.
	rec, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, analyses, rec.TotalCount)
	assert.Equal(t, tiers.Pro, rec.Tier)
}

func TestApplyStatus_ActiveUpgrades(t *testing.T) {
	lc, store := newTestLifecycle(t)

	err := lc.ApplyStatus(context.Background(), "user-1", tiers.Pro, "sub_456", "active")
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, tiers.Pro, rec.Tier)
	assert.Equal(t, usage.StatusActive, rec.Status)
	assert.NotNil(t, rec.ExpiresAt)
	assert.Equal(t, "sub_456", rec.StripeSubscriptionID)
}

func TestApplyStatus_InactiveForcesFree(t *testing.T) {
	lc, store := newTestLifecycle(t)

	require.NoError(t, lc.Upgrade(context.Background(), "user-1", tiers.Pro, "cus_123", "sub_456"))

	err := lc.ApplyStatus(context.Background(), "user-1", tiers.Pro, "sub_456", "past_due")
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, tiers.Free, rec.Tier)
	assert.Equal(t, usage.StatusPastDue, rec.Status)
	assert.Nil(t, rec.ExpiresAt)
}

func TestApplyStatus_UnknownStatusMapsToCancelled(t *testing.T) {
	lc, store := newTestLifecycle(t)

	require.NoError(t, lc.Upgrade(context.Background(), "user-1", tiers.Pro, "cus_123", "sub_456"))

	err := lc.ApplyStatus(context.Background(), "user-1", tiers.Pro, "sub_456", "incomplete_expired")
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, tiers.Free, rec.Tier)
	assert.Equal(t, usage.StatusCancelled, rec.Status)
	assert.Nil(t, rec.ExpiresAt)
}

func TestConfirmActive_ExtendsGraceWindow(t *testing.T) {
	lc, store := newTestLifecycle(t)
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	lc.now = func() time.Time { return start }

	require.NoError(t, lc.Upgrade(context.Background(), "user-1", tiers.Pro, "cus_123", "sub_456"))

	renewal := start.Add(30 * 24 * time.Hour)
	lc.now = func() time.Time { return renewal }
	require.NoError(t, lc.ConfirmActive(context.Background(), "user-1", "sub_456"))

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, tiers.Pro, rec.Tier)
	assert.Equal(t, usage.StatusActive, rec.Status)
	require.NotNil(t, rec.ExpiresAt)
	assert.Equal(t, renewal.Add(GracePeriod), *rec.ExpiresAt)
}

func TestConfirmActive_UnknownUser(t *testing.T) {
	lc, _ := newTestLifecycle(t)

	err := lc.ConfirmActive(context.Background(), "nobody", "sub_456")
	assert.ErrorIs(t, err, usage.ErrNotFound)
}

func TestConfirmActive_AdminKeepsNoExpiry(t *testing.T) {
	lc, store := newTestLifecycle(t)

	require.NoError(t, lc.PromoteToAdmin(context.Background(), "admin-1"))
	require.NoError(t, lc.ConfirmActive(context.Background(), "admin-1", ""))

	rec, err := store.Get(context.Background(), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, tiers.Admin, rec.Tier)
	assert.Nil(t, rec.ExpiresAt)
}

func TestPromoteToAdmin(t *testing.T) {
	lc, store := newTestLifecycle(t)

	require.NoError(t, lc.Upgrade(context.Background(), "user-1", tiers.Pro, "cus_123", "sub_456"))
	require.NoError(t, lc.PromoteToAdmin(context.Background(), "user-1"))

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, tiers.Admin, rec.Tier)
	assert.Equal(t, usage.StatusActive, rec.Status)
	assert.Nil(t, rec.ExpiresAt)
}
