// Package usage tracks per-user analysis consumption and enforces daily
// quotas.
//
// Each user has exactly one usage record carrying their tier, subscription
// status, daily and lifetime counters, and Stripe references. The Ledger is
// the read/write surface the rest of the service uses:
//
//	decision, err := ledger.CanPerformAnalysis(ctx, userID)
//	if decision.Allowed {
//	    snap, err := ledger.RecordAnalysis(ctx, userID)
//	}
//
// Daily counters reset at the UTC date boundary. The reset is applied
// lazily: reads compute it without writing, and RecordAnalysis folds it
// into the same atomic increment that enforces the cap, so concurrent
// requests can never push a user past their limit.
//
// Two Store implementations exist: MemoryStore for tests and single-node
// dev deployments, and PostgresStore for production. The backend is chosen
// by configuration at startup.
package usage
