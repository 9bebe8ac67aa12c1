package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/askdata/pkg/observability"
	"github.com/platinummonkey/askdata/pkg/tiers"
)

// PostgresStore persists usage records in PostgreSQL via database/sql.
type PostgresStore struct {
	db      *sql.DB
	metrics *observability.Metrics
}

// NewPostgresStore creates a Postgres-backed usage store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// WithMetrics attaches store operation metrics.
func (s *PostgresStore) WithMetrics(m *observability.Metrics) *PostgresStore {
	s.metrics = m
	return s
}

const usageSchema = `
CREATE TABLE IF NOT EXISTS usage_records (
	user_id TEXT PRIMARY KEY,
	tier TEXT NOT NULL DEFAULT 'free',
	status TEXT NOT NULL DEFAULT 'active',
	daily_count INTEGER NOT NULL DEFAULT 0,
	last_analysis_date DATE NOT NULL DEFAULT 'epoch',
	total_count INTEGER NOT NULL DEFAULT 0,
	expires_at TIMESTAMPTZ,
	stripe_customer_id TEXT NOT NULL DEFAULT '',
	stripe_subscription_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_usage_records_customer
	ON usage_records (stripe_customer_id) WHERE stripe_customer_id <> '';
`

// EnsureSchema creates the usage table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, usageSchema); err != nil {
		return fmt.Errorf("failed to create usage schema: %w", err)
	}
	return nil
}

const usageColumns = `user_id, tier, status, daily_count, last_analysis_date, total_count,
	expires_at, stripe_customer_id, stripe_subscription_id, created_at, updated_at`

func (s *PostgresStore) observe(op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil && !errors.Is(err, ErrNotFound) && !IsQuotaExceeded(err) {
		status = "error"
	}
	s.metrics.StoreOperationsTotal.WithLabelValues(op, "postgres", status).Inc()
	s.metrics.StoreOperationDuration.WithLabelValues(op, "postgres").Observe(time.Since(start).Seconds())
}

func scanRecord(row *sql.Row) (*Record, error) {
	var rec Record
	var expiresAt sql.NullTime
	err := row.Scan(
		&rec.UserID, &rec.Tier, &rec.Status, &rec.DailyCount, &rec.LastAnalysisDate,
		&rec.TotalCount, &expiresAt, &rec.StripeCustomerID, &rec.StripeSubscriptionID,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan usage record: %w", err)
	}
	if expiresAt.Valid {
		rec.ExpiresAt = &expiresAt.Time
	}
	return &rec, nil
}

// Get returns the record for a user, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, userID string) (rec *Record, err error) {
	defer func(start time.Time) { s.observe("get", start, err) }(time.Now())

	query := `SELECT ` + usageColumns + ` FROM usage_records WHERE user_id = $1`
	return scanRecord(s.db.QueryRowContext(ctx, query, userID))
}

// GetOrCreate returns the record for a user, inserting a free-tier record
// when none exists.
func (s *PostgresStore) GetOrCreate(ctx context.Context, userID string) (rec *Record, err error) {
	defer func(start time.Time) { s.observe("get_or_create", start, err) }(time.Now())

	insert := `
		INSERT INTO usage_records (user_id, tier, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, insert, userID, string(tiers.Free), string(StatusActive)); err != nil {
		return nil, fmt.Errorf("failed to insert usage record: %w", err)
	}

	query := `SELECT ` + usageColumns + ` FROM usage_records WHERE user_id = $1`
	return scanRecord(s.db.QueryRowContext(ctx, query, userID))
}

// Update writes the whole record in a single statement.
func (s *PostgresStore) Update(ctx context.Context, rec *Record) (err error) {
	defer func(start time.Time) { s.observe("update", start, err) }(time.Now())

	query := `
		UPDATE usage_records
		SET tier = $2, status = $3, daily_count = $4, last_analysis_date = $5,
			total_count = $6, expires_at = $7, stripe_customer_id = $8,
			stripe_subscription_id = $9, updated_at = NOW()
		WHERE user_id = $1
	`
	var expiresAt interface{}
	if rec.ExpiresAt != nil {
		expiresAt = *rec.ExpiresAt
	}
	result, err := s.db.ExecContext(ctx, query,
		rec.UserID, string(rec.Tier), string(rec.Status), rec.DailyCount,
		Day(rec.LastAnalysisDate), rec.TotalCount, expiresAt,
		rec.StripeCustomerID, rec.StripeSubscriptionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update usage record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementDaily advances the counters in a single conditional UPDATE. The
// window reset and the limit check happen inside the statement, so
// concurrent increments serialize on the row and never pass the limit.
func (s *PostgresStore) IncrementDaily(ctx context.Context, userID string, day time.Time, limit int) (rec *Record, err error) {
	defer func(start time.Time) { s.observe("increment_daily", start, err) }(time.Now())
	return s.incrementDaily(ctx, userID, Day(day), limit, true)
}

func (s *PostgresStore) incrementDaily(ctx context.Context, userID string, day time.Time, limit int, createMissing bool) (*Record, error) {
	query := `
		UPDATE usage_records
		SET daily_count = CASE WHEN last_analysis_date = $2 THEN daily_count + 1 ELSE 1 END,
			total_count = total_count + 1,
			last_analysis_date = $2,
			updated_at = NOW()
		WHERE user_id = $1
			AND ($3 < 0 OR (CASE WHEN last_analysis_date = $2 THEN daily_count ELSE 0 END) < $3)
		RETURNING ` + usageColumns

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, userID, day, limit))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to increment usage: %w", err)
	}

	// No row updated: the user either does not exist yet or is at the
	// limit. Distinguish with a read, initializing on first use.
	existing, getErr := s.Get(ctx, userID)
	if errors.Is(getErr, ErrNotFound) {
		if !createMissing {
			return nil, ErrNotFound
		}
		if _, createErr := s.GetOrCreate(ctx, userID); createErr != nil {
			return nil, createErr
		}
		return s.incrementDaily(ctx, userID, day, limit, false)
	}
	if getErr != nil {
		return nil, getErr
	}
	return nil, &QuotaExceededError{UserID: userID, Used: existing.DailyCountAt(day), Limit: limit}
}

// UpdateSubscription applies a subscription-state change inside a
// transaction holding the row lock, and writes back only the subscription
// columns. A counter increment racing the transaction serializes behind
// the lock instead of being overwritten.
func (s *PostgresStore) UpdateSubscription(ctx context.Context, userID string, create bool, mutate func(*Record) error) (err error) {
	defer func(start time.Time) { s.observe("update_subscription", start, err) }(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	query := `SELECT ` + usageColumns + ` FROM usage_records WHERE user_id = $1 FOR UPDATE`
	rec, err := scanRecord(tx.QueryRowContext(ctx, query, userID))
	if errors.Is(err, ErrNotFound) {
		if !create {
			return ErrNotFound
		}
		insert := `
			INSERT INTO usage_records (user_id, tier, status)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO NOTHING
		`
		if _, err = tx.ExecContext(ctx, insert, userID, string(tiers.Free), string(StatusActive)); err != nil {
			return fmt.Errorf("failed to insert usage record: %w", err)
		}
		rec, err = scanRecord(tx.QueryRowContext(ctx, query, userID))
	}
	if err != nil {
		return err
	}

	if err = mutate(rec); err != nil {
		return err
	}

	update := `
		UPDATE usage_records
		SET tier = $2, status = $3, expires_at = $4,
			stripe_customer_id = $5, stripe_subscription_id = $6, updated_at = NOW()
		WHERE user_id = $1
	`
	var expiresAt interface{}
	if rec.ExpiresAt != nil {
		expiresAt = *rec.ExpiresAt
	}
	if _, err = tx.ExecContext(ctx, update,
		rec.UserID, string(rec.Tier), string(rec.Status), expiresAt,
		rec.StripeCustomerID, rec.StripeSubscriptionID,
	); err != nil {
		return fmt.Errorf("failed to update subscription state: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit subscription update: %w", err)
	}
	return nil
}

// FindByCustomerID returns the record holding the Stripe customer reference.
func (s *PostgresStore) FindByCustomerID(ctx context.Context, customerID string) (rec *Record, err error) {
	defer func(start time.Time) { s.observe("find_by_customer", start, err) }(time.Now())

	if customerID == "" {
		return nil, ErrNotFound
	}
	query := `SELECT ` + usageColumns + ` FROM usage_records WHERE stripe_customer_id = $1`
	return scanRecord(s.db.QueryRowContext(ctx, query, customerID))
}
