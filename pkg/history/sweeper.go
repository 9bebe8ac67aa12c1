package history

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/askdata/pkg/async"
	"github.com/platinummonkey/askdata/pkg/observability"
	"github.com/platinummonkey/askdata/pkg/tiers"
	"github.com/platinummonkey/askdata/pkg/usage"
)

const (
	sweepWorkers     = 4
	sweepUserTimeout = 30 * time.Second
)

// RetentionSweeper purges history records past each user's tier retention
// window on a cron schedule.
type RetentionSweeper struct {
	history Store
	usage   usage.Store
	catalog *tiers.Catalog
	logger  *observability.Logger
	metrics *observability.Metrics
	cron    *cron.Cron
	now     func() time.Time
}

// NewRetentionSweeper creates a retention sweeper.
func NewRetentionSweeper(historyStore Store, usageStore usage.Store, catalog *tiers.Catalog, logger *observability.Logger) *RetentionSweeper {
	return &RetentionSweeper{
		history: historyStore,
		usage:   usageStore,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

// WithMetrics attaches sweep metrics.
func (s *RetentionSweeper) WithMetrics(m *observability.Metrics) *RetentionSweeper {
	s.metrics = m
	return s
}

// Start schedules sweeps with the given cron expression.
func (s *RetentionSweeper) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		defer observability.RecoverPanic(s.logger, "retention sweep")
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.WithError(err).Error("Retention sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.WithField("schedule", schedule).Info("Retention sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *RetentionSweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep purges expired records for every user and returns the total
// number removed.
func (s *RetentionSweeper) Sweep(ctx context.Context) (int, error) {
	users, err := s.history.UserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users for sweep: %w", err)
	}

	var purged atomic.Int64
	errs := async.Batch(ctx, users, sweepWorkers, "history retention", sweepUserTimeout,
		func(ctx context.Context, userID string) error {
			n, err := s.sweepUser(ctx, userID)
			if err != nil {
				return fmt.Errorf("user %s: %w", userID, err)
			}
			purged.Add(int64(n))
			return nil
		})

	for _, err := range errs {
		s.logger.WithError(err).Warn("Retention sweep user failed")
	}

	total := int(purged.Load())
	if s.metrics != nil {
		s.metrics.HistoryRecordsPurgedTotal.Add(float64(total))
	}
	s.logger.WithFields(map[string]interface{}{
		"users":  len(users),
		"purged": total,
	}).Info("Retention sweep complete")
	return total, nil
}

func (s *RetentionSweeper) sweepUser(ctx context.Context, userID string) (int, error) {
	tier := tiers.Free
	rec, err := s.usage.Get(ctx, userID)
	if err == nil {
		tier = rec.Tier
	} else if !errors.Is(err, usage.ErrNotFound) {
		return 0, err
	}

	def := s.catalog.LimitsForOrFree(tier, s.logger)
	cutoff := s.now().AddDate(0, 0, -def.RetentionDays)
	return s.history.PurgeOlderThan(ctx, userID, cutoff)
}
