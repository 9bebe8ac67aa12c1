package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/askdata/pkg/observability"
	"github.com/platinummonkey/askdata/pkg/tiers"
)

// Reasons attached to gate decisions.
const (
	ReasonOK                = "ok"
	ReasonDailyLimitReached = "daily_limit_reached"
)

const (
	transientRetries = 3
	retryBackoff     = 50 * time.Millisecond
)

// Decision is the outcome of a quota gate check.
type Decision struct {
	Allowed  bool
	Reason   string
	Snapshot Snapshot
}

// Ledger enforces tier limits over a Store. It owns the lazy daily-window
// reset and the expiry-driven downgrade of lapsed paid subscriptions.
type Ledger struct {
	store   Store
	catalog *tiers.Catalog
	logger  *observability.Logger
	now     func() time.Time
}

// NewLedger creates a usage ledger.
func NewLedger(store Store, catalog *tiers.Catalog, logger *observability.Logger) *Ledger {
	return &Ledger{
		store:   store,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

// withRetry runs fn, retrying on transient store errors. Domain results
// (quota exceeded, not found) are returned immediately.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < transientRetries; attempt++ {
		if err = fn(); err == nil || IsQuotaExceeded(err) || errors.Is(err, ErrNotFound) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff << attempt):
		}
	}
	return err
}

// CanPerformAnalysis decides whether a user may run one more analysis now.
// A lapsed paid subscription is downgraded and persisted before the
// decision, so repeated calls converge to free-tier behavior. The daily
// window reset is computed without writing.
func (l *Ledger) CanPerformAnalysis(ctx context.Context, userID string) (Decision, error) {
	var rec *Record
	err := withRetry(ctx, func() error {
		var err error
		rec, err = l.store.GetOrCreate(ctx, userID)
		return err
	})
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load usage record: %w", err)
	}

	now := l.now()
	if rec.Expired(now) {
		// The downgrade must land before any permit is granted. The
		// expiry is re-checked under the store's subscription lock so a
		// renewal that commits in between is not undone, and the write
		// never touches the counters.
		downgraded := false
		err := withRetry(ctx, func() error {
			downgraded = false
			return l.store.UpdateSubscription(ctx, userID, false, func(r *Record) error {
				defer func() { *rec = *r }()
				if !r.Expired(now) {
					return nil
				}
				r.Tier = tiers.Free
				r.Status = StatusCancelled
				r.ExpiresAt = nil
				r.StripeSubscriptionID = ""
				downgraded = true
				return nil
			})
		})
		if err != nil {
			return Decision{}, fmt.Errorf("failed to persist expiry downgrade: %w", err)
		}
		if downgraded {
			l.logger.WithField("user_id", userID).Info("Subscription expired, downgraded to free")
		}
	}

	def := l.catalog.LimitsForOrFree(rec.Tier, l.logger)
	used := rec.DailyCountAt(now)
	snap := l.snapshot(rec, def, used)

	if !def.Unlimited() && used >= def.DailyAnalysisLimit {
		return Decision{Allowed: false, Reason: ReasonDailyLimitReached, Snapshot: snap}, nil
	}
	return Decision{Allowed: true, Reason: ReasonOK, Snapshot: snap}, nil
}

// RecordAnalysis consumes one unit of quota. The increment is atomic and
// re-enforces the limit, so the loser of a gate/record race gets a
// *QuotaExceededError instead of an overrun.
func (l *Ledger) RecordAnalysis(ctx context.Context, userID string) (Snapshot, error) {
	var rec *Record
	err := withRetry(ctx, func() error {
		var err error
		rec, err = l.store.GetOrCreate(ctx, userID)
		return err
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load usage record: %w", err)
	}

	now := l.now()
	def := l.catalog.LimitsForOrFree(rec.Tier, l.logger)

	var updated *Record
	err = withRetry(ctx, func() error {
		var err error
		updated, err = l.store.IncrementDaily(ctx, userID, now, def.DailyAnalysisLimit)
		return err
	})
	if err != nil {
		if IsQuotaExceeded(err) {
			return Snapshot{}, err
		}
		return Snapshot{}, fmt.Errorf("failed to record analysis: %w", err)
	}

	return l.snapshot(updated, def, updated.DailyCountAt(now)), nil
}

// Snapshot returns the user's current usage without consuming quota. An
// unknown user gets a fresh free-tier view without persisting anything.
func (l *Ledger) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	rec, err := l.store.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		rec = NewRecord(userID, l.now())
	} else if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load usage record: %w", err)
	}

	def := l.catalog.LimitsForOrFree(rec.Tier, l.logger)
	return l.snapshot(rec, def, rec.DailyCountAt(l.now())), nil
}

// ShouldShowUpgradePrompt reports whether the UI should nudge the user
// toward an upgrade, and why.
func (l *Ledger) ShouldShowUpgradePrompt(ctx context.Context, userID string) (bool, string, error) {
	rec, err := l.store.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to load usage record: %w", err)
	}

	switch {
	case rec.Tier == tiers.Admin:
		return false, "", nil
	case rec.Tier != tiers.Free && rec.Status != StatusActive:
		return true, "subscription_inactive", nil
	case rec.Tier != tiers.Free:
		return false, "", nil
	}

	def := l.catalog.LimitsForOrFree(rec.Tier, l.logger)
	if !def.Unlimited() && rec.DailyCountAt(l.now()) >= def.DailyAnalysisLimit {
		return true, ReasonDailyLimitReached, nil
	}
	return false, "", nil
}

func (l *Ledger) snapshot(rec *Record, def tiers.Definition, used int) Snapshot {
	remaining := tiers.UnlimitedAnalyses
	if !def.Unlimited() {
		remaining = def.DailyAnalysisLimit - used
		if remaining < 0 {
			remaining = 0
		}
	}
	return Snapshot{
		UserID:           rec.UserID,
		Tier:             rec.Tier,
		Status:           rec.Status,
		DailyUsed:        used,
		DailyLimit:       def.DailyAnalysisLimit,
		Remaining:        remaining,
		TotalCount:       rec.TotalCount,
		MaxUploadMB:      def.MaxUploadMB,
		AdvancedFeatures: def.AdvancedFeatures,
		ExpiresAt:        rec.ExpiresAt,
	}
}
