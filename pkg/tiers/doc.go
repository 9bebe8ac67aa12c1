// Package tiers defines the subscription tier catalog and the limits
// attached to each tier.
//
// The catalog is the single source of truth for entitlement numbers: daily
// analysis allowances, upload size caps, and history retention windows.
// Lookups for unknown tiers fail explicitly; callers that must not fail
// (request gating) use LimitsForOrFree, which falls back to free-tier
// limits and logs the anomaly.
package tiers
