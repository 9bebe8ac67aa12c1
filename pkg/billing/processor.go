package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/askdata/pkg/observability"
	"github.com/platinummonkey/askdata/pkg/tiers"
	"github.com/platinummonkey/askdata/pkg/usage"
)

// SubscriptionManager is the slice of the subscription lifecycle the
// processor drives.
type SubscriptionManager interface {
	Upgrade(ctx context.Context, userID string, tier tiers.ID, customerID, subscriptionID string) error
	Downgrade(ctx context.Context, userID, reason string) error
	ApplyStatus(ctx context.Context, userID string, tier tiers.ID, subscriptionID, status string) error
	ConfirmActive(ctx context.Context, userID, subscriptionID string) error
}

// CustomerDirectory resolves a Stripe customer reference to a user ID.
type CustomerDirectory interface {
	FindByCustomerID(ctx context.Context, customerID string) (*usage.Record, error)
}

// Processor validates, deduplicates, and dispatches Stripe webhook events.
type Processor struct {
	verifier  SignatureVerifier
	deduper   Deduper
	lifecycle SubscriptionManager
	customers CustomerDirectory
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewProcessor creates a webhook event processor.
func NewProcessor(verifier SignatureVerifier, deduper Deduper, lifecycle SubscriptionManager, customers CustomerDirectory, logger *observability.Logger) *Processor {
	return &Processor{
		verifier:  verifier,
		deduper:   deduper,
		lifecycle: lifecycle,
		customers: customers,
		logger:    logger,
	}
}

// WithMetrics attaches webhook metrics.
func (p *Processor) WithMetrics(m *observability.Metrics) *Processor {
	p.metrics = m
	return p
}

// Handle processes one webhook delivery. The returned error is non-nil
// only for rejections the transport layer must map to a status code:
// ErrInvalidSignature and ErrMalformedEvent (400) or infrastructure
// failures (500). Every other outcome, including business failures, is an
// acknowledged Result.
func (p *Processor) Handle(ctx context.Context, payload []byte, signature string) (Result, error) {
	if err := p.verifier.Verify(payload, signature); err != nil {
		if p.metrics != nil {
			p.metrics.SignatureFailuresTotal.Inc()
		}
		p.logger.WithError(err).Warn("Webhook signature verification failed")
		return Result{}, err
	}

	event, err := ParseEvent(payload)
	if err != nil {
		p.logger.WithError(err).Warn("Webhook payload not parseable")
		return Result{}, err
	}

	log := p.logger.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
	})

	seen, err := p.deduper.Seen(ctx, event.ID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to deduplicate event: %w", err)
	}
	if seen {
		if p.metrics != nil {
			p.metrics.WebhookDuplicatesTotal.Inc()
		}
		log.Info("Duplicate webhook event dropped")
		return Result{Status: ResultIgnored, Message: "duplicate event"}, nil
	}

	log.Info("Processing webhook event")
	result := p.dispatch(ctx, event, log)

	if result.Status == ResultError {
		// Release the dedup entry: a redelivery of a failed event must be
		// dispatched again, not dropped as a duplicate.
		if err := p.deduper.Forget(ctx, event.ID); err != nil {
			log.WithError(err).Warn("Failed to release dedup entry for failed event")
		}
	}

	if p.metrics != nil {
		p.metrics.WebhookEventsTotal.WithLabelValues(event.Type, string(result.Status)).Inc()
	}
	return result, nil
}

func (p *Processor) dispatch(ctx context.Context, event *Event, log *observability.Logger) Result {
	switch event.Type {
	case EventCheckoutCompleted:
		return p.handleCheckoutCompleted(ctx, event, log)
	case EventSubscriptionUpdated:
		return p.handleSubscriptionUpdated(ctx, event, log)
	case EventSubscriptionDeleted:
		return p.handleSubscriptionDeleted(ctx, event, log)
	case EventPaymentSucceeded:
		return p.handlePaymentSucceeded(ctx, event, log)
	case EventPaymentFailed:
		return p.handlePaymentFailed(ctx, event, log)
	default:
		log.Debug("Unhandled webhook event type")
		return Result{Status: ResultIgnored, Message: fmt.Sprintf("event type %s not handled", event.Type)}
	}
}

// handleCheckoutCompleted upgrades the user named in the checkout session
// metadata to the pro tier.
func (p *Processor) handleCheckoutCompleted(ctx context.Context, event *Event, log *observability.Logger) Result {
	userID := event.Object.Metadata["user_id"]
	if userID == "" {
		log.WithError(ErrMissingUserReference).Error("Checkout session has no user_id metadata")
		return Result{Status: ResultError, Message: "missing user_id in session metadata"}
	}

	err := p.lifecycle.Upgrade(ctx, userID, tiers.Pro, event.Object.Customer, event.Object.Subscription)
	if err != nil {
		log.WithError(err).Error("Failed to upgrade user after checkout")
		return Result{Status: ResultError, Message: "failed to upgrade user"}
	}

	return Result{Status: ResultSuccess, Message: "user upgraded to pro"}
}

// handleSubscriptionUpdated reconciles the user's tier with the reported
// subscription status. Active keeps pro; anything else drops to free.
func (p *Processor) handleSubscriptionUpdated(ctx context.Context, event *Event, log *observability.Logger) Result {
	userID, result := p.resolveUser(ctx, event, log)
	if result != nil {
		return *result
	}

	tier := tiers.Free
	if event.Object.Status == string(usage.StatusActive) {
		tier = tiers.Pro
	}

	if err := p.lifecycle.ApplyStatus(ctx, userID, tier, event.SubscriptionID(), event.Object.Status); err != nil {
		log.WithError(err).Error("Failed to apply subscription status")
		return Result{Status: ResultError, Message: "failed to apply subscription status"}
	}

	return Result{Status: ResultSuccess, Message: fmt.Sprintf("subscription updated: %s", event.Object.Status)}
}

func (p *Processor) handleSubscriptionDeleted(ctx context.Context, event *Event, log *observability.Logger) Result {
	userID, result := p.resolveUser(ctx, event, log)
	if result != nil {
		return *result
	}

	if err := p.lifecycle.Downgrade(ctx, userID, "subscription_cancelled"); err != nil {
		log.WithError(err).Error("Failed to downgrade user after cancellation")
		return Result{Status: ResultError, Message: "failed to downgrade user"}
	}

	return Result{Status: ResultSuccess, Message: "user downgraded to free tier"}
}

func (p *Processor) handlePaymentSucceeded(ctx context.Context, event *Event, log *observability.Logger) Result {
	userID, result := p.resolveUser(ctx, event, log)
	if result != nil {
		return *result
	}

	if err := p.lifecycle.ConfirmActive(ctx, userID, event.SubscriptionID()); err != nil {
		log.WithError(err).Error("Failed to confirm subscription payment")
		return Result{Status: ResultError, Message: "failed to confirm payment"}
	}

	return Result{Status: ResultSuccess, Message: "payment processed"}
}

// handlePaymentFailed only records the failure. The grace window set by the
// last confirmed payment decides when non-payment downgrades the user.
func (p *Processor) handlePaymentFailed(ctx context.Context, event *Event, log *observability.Logger) Result {
	userID, result := p.resolveUser(ctx, event, log)
	if result != nil {
		return *result
	}

	log.WithField("user_id", userID).Warn("Subscription payment failed")
	return Result{Status: ResultSuccess, Message: "payment failure recorded"}
}

// resolveUser maps the event's customer reference to a user ID. A non-nil
// Result short-circuits the handler (unknown customer or lookup failure).
func (p *Processor) resolveUser(ctx context.Context, event *Event, log *observability.Logger) (string, *Result) {
	rec, err := p.customers.FindByCustomerID(ctx, event.Object.Customer)
	if errors.Is(err, usage.ErrNotFound) {
		log.WithField("customer_id", event.Object.Customer).Warn("No user for Stripe customer")
		return "", &Result{Status: ResultIgnored, Message: "user not found"}
	}
	if err != nil {
		log.WithError(err).Error("Customer lookup failed")
		return "", &Result{Status: ResultError, Message: "customer lookup failed"}
	}
	return rec.UserID, nil
}
