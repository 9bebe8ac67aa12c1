// Package analysis orchestrates a single document analysis request:
// quota gate, upload size check, answer generation, usage accounting, and
// the history record.
//
// Ordering is deliberate. The quota gate runs before any work; a failed
// answer consumes no quota and leaves no history; usage is recorded before
// the history append, and a failed append never rolls the counter back.
package analysis
