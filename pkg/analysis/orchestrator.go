package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/askdata/pkg/auth"
	"github.com/platinummonkey/askdata/pkg/history"
	"github.com/platinummonkey/askdata/pkg/observability"
	"github.com/platinummonkey/askdata/pkg/usage"
)

// DefaultAnswerTimeout caps how long a single answer generation may take.
const DefaultAnswerTimeout = 60 * time.Second

// Orchestrator runs the full analysis pipeline for a request.
type Orchestrator struct {
	ledger        *usage.Ledger
	history       history.Store
	answerer      Answerer
	logger        *observability.Logger
	metrics       *observability.Metrics
	answerTimeout time.Duration
}

// NewOrchestrator creates an analysis orchestrator.
func NewOrchestrator(ledger *usage.Ledger, historyStore history.Store, answerer Answerer, logger *observability.Logger) *Orchestrator {
	return &Orchestrator{
		ledger:        ledger,
		history:       historyStore,
		answerer:      answerer,
		logger:        logger,
		answerTimeout: DefaultAnswerTimeout,
	}
}

// WithMetrics attaches analysis metrics.
func (o *Orchestrator) WithMetrics(m *observability.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// Run executes one analysis request. A non-nil error means infrastructure
// failure; every business outcome, including denials, is an Outcome.
func (o *Orchestrator) Run(ctx context.Context, user auth.User, doc Document, question string) (Outcome, error) {
	log := o.logger.WithFields(map[string]interface{}{
		"user_id":  user.ID,
		"filename": doc.Filename,
	})

	decision, err := o.ledger.CanPerformAnalysis(ctx, user.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("quota gate failed: %w", err)
	}
	snap := decision.Snapshot

	if !decision.Allowed {
		o.countOutcome(snap, OutcomeQuotaExceeded)
		if o.metrics != nil {
			o.metrics.QuotaDenialsTotal.WithLabelValues(string(snap.Tier)).Inc()
		}
		log.WithField("reason", decision.Reason).Info("Analysis denied by quota")
		return Outcome{Kind: OutcomeQuotaExceeded, Reason: decision.Reason, Snapshot: snap}, nil
	}

	if o.metrics != nil {
		o.metrics.UploadSizeBytes.WithLabelValues(string(snap.Tier)).Observe(float64(doc.SizeBytes()))
	}
	if doc.SizeBytes() > snap.MaxUploadMB*1024*1024 {
		o.countOutcome(snap, OutcomeFileTooLarge)
		reason := fmt.Sprintf("file exceeds %d MB limit for tier %s", snap.MaxUploadMB, snap.Tier)
		log.WithField("size_bytes", doc.SizeBytes()).Info("Upload rejected by size cap")
		return Outcome{Kind: OutcomeFileTooLarge, Reason: reason, Snapshot: snap}, nil
	}

	actx, cancel := context.WithTimeout(ctx, o.answerTimeout)
	defer cancel()

	start := time.Now()
	answer, err := o.answerer.Answer(actx, doc, question)
	duration := time.Since(start)
	if err != nil {
		// No quota consumed and no history for failed analyses.
		o.countOutcome(snap, OutcomeFailed)
		log.WithError(err).Error("Answer generation failed")
		return Outcome{Kind: OutcomeFailed, Reason: "analysis failed", Snapshot: snap, Duration: duration}, nil
	}

	recorded, err := o.ledger.RecordAnalysis(ctx, user.ID)
	if err != nil {
		if usage.IsQuotaExceeded(err) {
			// Lost the race against a concurrent request; the atomic
			// increment held the line.
			o.countOutcome(snap, OutcomeQuotaExceeded)
			log.Info("Concurrent request consumed the last quota unit")
			return Outcome{Kind: OutcomeQuotaExceeded, Reason: usage.ReasonDailyLimitReached, Snapshot: snap}, nil
		}
		return Outcome{}, fmt.Errorf("failed to record analysis: %w", err)
	}

	rec := &history.Record{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		Timestamp:     start,
		Filename:      doc.Filename,
		Question:      question,
		Response:      answer,
		FileHash:      doc.Fingerprint(),
		ExecutionTime: duration,
		Tier:          recorded.Tier,
	}
	// Best effort: the quota is already consumed and must stay consumed.
	if err := o.history.Append(ctx, rec); err != nil {
		log.WithError(err).Error("Failed to append history record")
	}

	o.countOutcome(recorded, OutcomeCompleted)
	if o.metrics != nil {
		o.metrics.AnalysisDuration.WithLabelValues(string(recorded.Tier)).Observe(duration.Seconds())
	}
	log.WithField("duration_ms", duration.Milliseconds()).Info("Analysis completed")

	return Outcome{
		Kind:     OutcomeCompleted,
		Answer:   answer,
		Snapshot: recorded,
		RecordID: rec.ID,
		Duration: duration,
	}, nil
}

func (o *Orchestrator) countOutcome(snap usage.Snapshot, kind OutcomeKind) {
	if o.metrics != nil {
		o.metrics.AnalysesTotal.WithLabelValues(string(snap.Tier), string(kind)).Inc()
	}
}
