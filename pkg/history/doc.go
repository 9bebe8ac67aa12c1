// Package history records completed analyses per user and enforces
// tier-based retention.
//
// Appends are best effort from the orchestrator's point of view: a failed
// append is logged, never rolled back into the usage ledger. The
// RetentionSweeper runs on a cron schedule and purges records older than
// each user's tier retention window.
package history
