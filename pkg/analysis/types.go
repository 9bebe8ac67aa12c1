package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/platinummonkey/askdata/pkg/usage"
)

// Document is an uploaded file under analysis.
type Document struct {
	Filename string
	Content  []byte
}

// SizeBytes returns the document size.
func (d Document) SizeBytes() int64 {
	return int64(len(d.Content))
}

// Fingerprint returns a short content hash used to correlate repeated
// analyses of the same file.
func (d Document) Fingerprint() string {
	sum := sha256.Sum256(d.Content)
	return hex.EncodeToString(sum[:])[:16]
}

// Answerer produces an answer for a question about a document. The AI
// backend lives behind this interface; the orchestrator only sees
// success or failure.
type Answerer interface {
	Answer(ctx context.Context, doc Document, question string) (string, error)
}

// AnswererFunc adapts a function to the Answerer interface.
type AnswererFunc func(ctx context.Context, doc Document, question string) (string, error)

// Answer implements Answerer.
func (f AnswererFunc) Answer(ctx context.Context, doc Document, question string) (string, error) {
	return f(ctx, doc, question)
}

// OutcomeKind classifies how an analysis request ended.
type OutcomeKind string

const (
	OutcomeCompleted     OutcomeKind = "completed"
	OutcomeQuotaExceeded OutcomeKind = "quota_exceeded"
	OutcomeFileTooLarge  OutcomeKind = "file_too_large"
	OutcomeFailed        OutcomeKind = "failed"
)

// Outcome is the result of one orchestrated analysis request.
type Outcome struct {
	Kind     OutcomeKind
	Answer   string
	Reason   string
	Snapshot usage.Snapshot
	RecordID string
	Duration time.Duration
}
