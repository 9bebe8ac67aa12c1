// Package billing turns Stripe webhook deliveries into subscription state
// transitions.
//
// The Processor is the single entry point:
//
//	result, err := processor.Handle(ctx, payload, signatureHeader)
//
// It verifies the delivery signature (fail closed), parses the event
// envelope, drops replayed event IDs via a Deduper, and dispatches to the
// subscription lifecycle. Business failures (unknown customer, missing
// metadata, lifecycle errors) become error-status results acknowledged
// with HTTP 200 so Stripe stops retrying; only signature, parse, and
// infrastructure failures surface as errors to the transport layer.
//
// The package also carries the outbound Stripe client used to create
// checkout sessions for upgrades.
package billing
