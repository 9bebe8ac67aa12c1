package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/askdata/pkg/tiers"
)

func TestDay(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	// 02:30 UTC+5 is 21:30 the previous day in UTC.
	local := time.Date(2026, 3, 11, 2, 30, 0, 0, loc)

	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), Day(local))
}

func TestSameDay(t *testing.T) {
	a := time.Date(2026, 3, 10, 0, 0, 1, 0, time.UTC)
	b := time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)
	c := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	assert.True(t, SameDay(a, b))
	assert.False(t, SameDay(b, c))
}

func TestStatus_Known(t *testing.T) {
	for _, s := range []Status{StatusActive, StatusCancelled, StatusPastDue, StatusUnpaid} {
		assert.True(t, s.Known(), "status %s", s)
	}
	assert.False(t, Status("incomplete_expired").Known())
	assert.False(t, Status("").Known())
}

func TestRecord_DailyCountAt(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rec := &Record{DailyCount: 3, LastAnalysisDate: Day(now)}

	assert.Equal(t, 3, rec.DailyCountAt(now))
	assert.Equal(t, 0, rec.DailyCountAt(now.Add(24*time.Hour)))
}

func TestRecord_Expired(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name    string
		rec     Record
		expired bool
	}{
		{"free never expires", Record{Tier: tiers.Free, ExpiresAt: &past}, false},
		{"admin never expires", Record{Tier: tiers.Admin, ExpiresAt: &past}, false},
		{"pro without expiry", Record{Tier: tiers.Pro}, false},
		{"pro in grace window", Record{Tier: tiers.Pro, ExpiresAt: &future}, false},
		{"pro lapsed", Record{Tier: tiers.Pro, ExpiresAt: &past}, true},
		{"enterprise lapsed", Record{Tier: tiers.Enterprise, ExpiresAt: &past}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expired, tt.rec.Expired(now))
		})
	}
}

func TestRecord_Clone(t *testing.T) {
	exp := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	rec := &Record{UserID: "user-1", Tier: tiers.Pro, ExpiresAt: &exp}

	clone := rec.Clone()
	*clone.ExpiresAt = exp.Add(time.Hour)
	clone.Tier = tiers.Free

	assert.Equal(t, tiers.Pro, rec.Tier)
	assert.Equal(t, exp, *rec.ExpiresAt)
}

func TestIsQuotaExceeded(t *testing.T) {
	assert.True(t, IsQuotaExceeded(&QuotaExceededError{UserID: "u", Used: 1, Limit: 1}))
	assert.False(t, IsQuotaExceeded(ErrNotFound))
	assert.False(t, IsQuotaExceeded(nil))
}
