package history

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/askdata/pkg/observability"
	"github.com/platinummonkey/askdata/pkg/tiers"
	"github.com/platinummonkey/askdata/pkg/usage"
)

func newTestSweeper(t *testing.T, now time.Time) (*RetentionSweeper, *MemoryStore, *usage.MemoryStore) {
	t.Helper()
	historyStore := NewMemoryStore()
	usageStore := usage.NewMemoryStore()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	sweeper := NewRetentionSweeper(historyStore, usageStore, tiers.NewCatalog(0), logger)
	sweeper.now = func() time.Time { return now }
	return sweeper, historyStore, usageStore
}

func setTier(t *testing.T, store *usage.MemoryStore, userID string, tier tiers.ID) {
	t.Helper()
	rec, err := store.GetOrCreate(context.Background(), userID)
	require.NoError(t, err)
	rec.Tier = tier
	require.NoError(t, store.Update(context.Background(), rec))
}

func TestSweep_PurgesPerTierRetention(t *testing.T) {
	now := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	sweeper, historyStore, usageStore := newTestSweeper(t, now)
	ctx := context.Background()

	setTier(t, usageStore, "free-user", tiers.Free)
	setTier(t, usageStore, "pro-user", tiers.Pro)

	// Free retention is 7 days.
	seedRecord(t, historyStore, "free-user", "free-old", now.AddDate(0, 0, -10))
	seedRecord(t, historyStore, "free-user", "free-new", now.AddDate(0, 0, -3))
	// Pro retention is 30 days, so a 10-day-old record survives.
	seedRecord(t, historyStore, "pro-user", "pro-kept", now.AddDate(0, 0, -10))
	seedRecord(t, historyStore, "pro-user", "pro-old", now.AddDate(0, 0, -40))

	purged, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	freeRecords, err := historyStore.List(ctx, "free-user", 50)
	require.NoError(t, err)
	require.Len(t, freeRecords, 1)
	assert.Equal(t, "free-new", freeRecords[0].ID)

	proRecords, err := historyStore.List(ctx, "pro-user", 50)
	require.NoError(t, err)
	require.Len(t, proRecords, 1)
	assert.Equal(t, "pro-kept", proRecords[0].ID)
}

func TestSweep_UnknownUserGetsFreeRetention(t *testing.T) {
	now := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	sweeper, historyStore, _ := newTestSweeper(t, now)
	ctx := context.Background()

	// No usage record exists for this user; free limits apply.
	seedRecord(t, historyStore, "ghost", "old", now.AddDate(0, 0, -8))
	seedRecord(t, historyStore, "ghost", "new", now.AddDate(0, 0, -2))

	purged, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	records, err := historyStore.List(ctx, "ghost", 50)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "new", records[0].ID)
}

func TestSweep_EmptyHistory(t *testing.T) {
	sweeper, _, _ := newTestSweeper(t, time.Now())

	purged, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestSweeper_StartRejectsBadSchedule(t *testing.T) {
	sweeper, _, _ := newTestSweeper(t, time.Now())

	err := sweeper.Start("not a cron expression")
	assert.Error(t, err)
}

func TestSweeper_StartAndStop(t *testing.T) {
	sweeper, _, _ := newTestSweeper(t, time.Now())

	require.NoError(t, sweeper.Start("0 3 * * *"))
	sweeper.Stop()

	// Stop on a never-started sweeper is safe.
	idle, _, _ := newTestSweeper(t, time.Now())
	idle.Stop()
}
