// Package subscription applies billing-driven state transitions to usage
// records: upgrades, downgrades, status updates, and renewal confirmations.
//
// Transitions are idempotent. Replaying an upgrade or a cancellation leaves
// the record in the same state, which lets the webhook pipeline retry
// deliveries safely. All writes go through the store's subscription-scoped
// update, which never touches the usage counters, so a transition cannot
// lose a concurrently recorded analysis.
package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/askdata/pkg/observability"
	"github.com/platinummonkey/askdata/pkg/tiers"
	"github.com/platinummonkey/askdata/pkg/usage"
)

// GracePeriod is how long a paid tier stays valid past the last confirmed
// payment. Renewal webhooks extend it; if they stop arriving, the expiry
// check in the usage ledger downgrades the user.
const GracePeriod = 31 * 24 * time.Hour

// Lifecycle performs subscription state transitions over the usage store.
type Lifecycle struct {
	store  usage.Store
	logger *observability.Logger
	now    func() time.Time
}

// NewLifecycle creates a subscription lifecycle manager.
func NewLifecycle(store usage.Store, logger *observability.Logger) *Lifecycle {
	return &Lifecycle{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Upgrade moves a user to a paid tier with an active subscription and a
// fresh grace window. The admin tier is not reachable through this path.
func (l *Lifecycle) Upgrade(ctx context.Context, userID string, tier tiers.ID, customerID, subscriptionID string) error {
	if tier != tiers.Pro && tier != tiers.Enterprise {
		return fmt.Errorf("tier %q is not upgradable via billing", tier)
	}

	expires := l.now().Add(GracePeriod)
	err := l.store.UpdateSubscription(ctx, userID, true, func(rec *usage.Record) error {
		rec.Tier = tier
		rec.Status = usage.StatusActive
		rec.ExpiresAt = &expires
		if customerID != "" {
			rec.StripeCustomerID = customerID
		}
		if subscriptionID != "" {
			rec.StripeSubscriptionID = subscriptionID
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist upgrade: %w", err)
	}

	l.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"tier":    string(tier),
	}).Info("Subscription upgraded")
	return nil
}

// Downgrade returns a user to the free tier, clearing the subscription
// reference and expiry. Downgrading a free user is a no-op that still
// succeeds.
func (l *Lifecycle) Downgrade(ctx context.Context, userID, reason string) error {
	err := l.store.UpdateSubscription(ctx, userID, true, func(rec *usage.Record) error {
		rec.Tier = tiers.Free
		rec.Status = usage.StatusCancelled
		rec.ExpiresAt = nil
		rec.StripeSubscriptionID = ""
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist downgrade: %w", err)
	}

	l.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"reason":  reason,
	}).Info("Subscription downgraded to free")
	return nil
}

// ApplyStatus reconciles a user with a subscription status reported by the
// billing provider. An active status applies upgrade semantics for the
// given tier; anything else forces the free tier and clears the expiry.
// Provider statuses outside the known set are stored as cancelled.
// Ambiguity defaults to the cheaper entitlement.
func (l *Lifecycle) ApplyStatus(ctx context.Context, userID string, tier tiers.ID, subscriptionID, status string) error {
	if status == string(usage.StatusActive) {
		return l.Upgrade(ctx, userID, tier, "", subscriptionID)
	}

	st := usage.Status(status)
	if !st.Known() {
		st = usage.StatusCancelled
	}

	err := l.store.UpdateSubscription(ctx, userID, true, func(rec *usage.Record) error {
		rec.Tier = tiers.Free
		rec.Status = st
		rec.ExpiresAt = nil
		if subscriptionID != "" {
			rec.StripeSubscriptionID = subscriptionID
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist status update: %w", err)
	}

	l.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"status":  status,
	}).Info("Subscription status applied, user on free tier")
	return nil
}

// ConfirmActive acknowledges a successful recurring payment: the user keeps
// their tier and the grace window restarts from now.
func (l *Lifecycle) ConfirmActive(ctx context.Context, userID, subscriptionID string) error {
	err := l.store.UpdateSubscription(ctx, userID, false, func(rec *usage.Record) error {
		rec.Status = usage.StatusActive
		if rec.Tier != tiers.Free && rec.Tier != tiers.Admin {
			expires := l.now().Add(GracePeriod)
			rec.ExpiresAt = &expires
		}
		if subscriptionID != "" {
			rec.StripeSubscriptionID = subscriptionID
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist payment confirmation: %w", err)
	}

	l.logger.WithField("user_id", userID).Info("Subscription payment confirmed")
	return nil
}

// PromoteToAdmin grants the admin tier. Admin subscriptions never expire
// and are only reachable through operator tooling, never from billing
// events.
func (l *Lifecycle) PromoteToAdmin(ctx context.Context, userID string) error {
	err := l.store.UpdateSubscription(ctx, userID, true, func(rec *usage.Record) error {
		rec.Tier = tiers.Admin
		rec.Status = usage.StatusActive
		rec.ExpiresAt = nil
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist admin promotion: %w", err)
	}

	l.logger.WithField("user_id", userID).Warn("User promoted to admin tier")
	return nil
}
