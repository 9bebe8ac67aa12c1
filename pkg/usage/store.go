package usage

import (
	"context"
	"time"
)

// Store persists usage records. Implementations must make IncrementDaily
// atomic: under concurrent calls for the same user, the daily counter may
// never pass the limit.
type Store interface {
	// Get returns the record for a user, or ErrNotFound.
	Get(ctx context.Context, userID string) (*Record, error)

	// GetOrCreate returns the record for a user, creating a free-tier
	// record when none exists.
	GetOrCreate(ctx context.Context, userID string) (*Record, error)

	// Update writes the whole record. Returns ErrNotFound when the record
	// does not exist.
	Update(ctx context.Context, rec *Record) error

	// IncrementDaily atomically advances the daily and total counters for
	// the given UTC day, resetting the daily counter first when the day
	// changed. A non-negative limit is enforced inside the same atomic
	// step; at the limit it returns a *QuotaExceededError. A negative
	// limit means unlimited. The record is created when missing.
	IncrementDaily(ctx context.Context, userID string, day time.Time, limit int) (*Record, error)

	// UpdateSubscription applies mutate to the user's record and writes
	// back only the subscription fields (tier, status, expiry, Stripe
	// references), isolated from concurrent IncrementDaily calls so the
	// counters are never overwritten with stale values. mutate sees the
	// current record; returning an error abandons the write. When the
	// record is missing, create selects between initializing a free-tier
	// record and returning ErrNotFound.
	UpdateSubscription(ctx context.Context, userID string, create bool, mutate func(*Record) error) error

	// FindByCustomerID returns the record holding the given Stripe
	// customer reference, or ErrNotFound.
	FindByCustomerID(ctx context.Context, customerID string) (*Record, error)
}
