package billing

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Stripe event types the processor acts on.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentSucceeded    = "invoice.payment_succeeded"
	EventPaymentFailed       = "invoice.payment_failed"
)

var (
	// ErrInvalidSignature is returned when a delivery fails signature
	// verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedEvent is returned when the payload is not a parseable
	// event envelope.
	ErrMalformedEvent = errors.New("malformed webhook event")
	// ErrMissingUserReference is returned when an event that must carry a
	// user reference does not.
	ErrMissingUserReference = errors.New("event carries no user reference")
)

// EventObject is the `data.object` of a Stripe event. Fields are a union
// across the object shapes we handle (checkout sessions, subscriptions,
// invoices); absent fields decode to zero values.
type EventObject struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata"`
}

// Event is a parsed Stripe webhook event.
type Event struct {
	ID     string
	Type   string
	Object EventObject
}

// SubscriptionID returns the subscription reference for any handled object
// shape: subscriptions carry it as their own ID, sessions and invoices as
// a field.
func (e *Event) SubscriptionID() string {
	if e.Type == EventSubscriptionUpdated || e.Type == EventSubscriptionDeleted {
		return e.Object.ID
	}
	return e.Object.Subscription
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object EventObject `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a Stripe event envelope. Payloads without an event ID
// or type are rejected as malformed.
func ParseEvent(payload []byte) (*Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.ID == "" || env.Type == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrMalformedEvent)
	}
	return &Event{ID: env.ID, Type: env.Type, Object: env.Data.Object}, nil
}

// ResultStatus enumerates webhook processing outcomes.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultIgnored ResultStatus = "ignored"
	ResultError   ResultStatus = "error"
)

// Result is the acknowledged outcome of one webhook delivery.
type Result struct {
	Status  ResultStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}
