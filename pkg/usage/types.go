package usage

import (
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/askdata/pkg/tiers"
)

// Status is the billing state of a user's subscription.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusPastDue   Status = "past_due"
	StatusUnpaid    Status = "unpaid"
)

// Known reports whether s is one of the documented status values.
func (s Status) Known() bool {
	switch s {
	case StatusActive, StatusCancelled, StatusPastDue, StatusUnpaid:
		return true
	}
	return false
}

// ErrNotFound is returned when no usage record exists for a user.
var ErrNotFound = errors.New("usage record not found")

// Record is the canonical per-user usage and subscription state.
type Record struct {
	UserID               string
	Tier                 tiers.ID
	Status               Status
	DailyCount           int
	LastAnalysisDate     time.Time // UTC date of the most recent analysis
	TotalCount           int
	ExpiresAt            *time.Time
	StripeCustomerID     string
	StripeSubscriptionID string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewRecord returns a fresh free-tier record for a user.
func NewRecord(userID string, now time.Time) *Record {
	return &Record{
		UserID:    userID,
		Tier:      tiers.Free,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Day truncates a time to its UTC calendar date.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two times fall on the same UTC date.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}

// DailyCountAt returns the effective daily counter at the given time,
// applying the window reset without mutating the record.
func (r *Record) DailyCountAt(now time.Time) int {
	if !SameDay(r.LastAnalysisDate, now) {
		return 0
	}
	return r.DailyCount
}

// Expired reports whether a paid subscription has lapsed. Free records have
// nothing to expire and admin records never expire.
func (r *Record) Expired(now time.Time) bool {
	if r.Tier == tiers.Free || r.Tier == tiers.Admin {
		return false
	}
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	out := *r
	if r.ExpiresAt != nil {
		exp := *r.ExpiresAt
		out.ExpiresAt = &exp
	}
	return &out
}

// QuotaExceededError indicates an increment was refused because the user is
// at their daily limit.
type QuotaExceededError struct {
	UserID string
	Used   int
	Limit  int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily analysis quota exceeded for user %s: %d/%d", e.UserID, e.Used, e.Limit)
}

// IsQuotaExceeded checks if an error is a quota exceeded error
func IsQuotaExceeded(err error) bool {
	var quotaErr *QuotaExceededError
	return errors.As(err, &quotaErr)
}

// Snapshot is a read-only projection of a user's usage for API responses.
type Snapshot struct {
	UserID           string     `json:"user_id"`
	Tier             tiers.ID   `json:"tier"`
	Status           Status     `json:"status"`
	DailyUsed        int        `json:"daily_used"`
	DailyLimit       int        `json:"daily_limit"`
	Remaining        int        `json:"remaining"` // -1 when unlimited
	TotalCount       int        `json:"total_count"`
	MaxUploadMB      int64      `json:"max_upload_mb"`
	AdvancedFeatures bool       `json:"advanced_features"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}
