package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore persists analysis history in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed history store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const historySchema = `
CREATE TABLE IF NOT EXISTS analysis_history (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	filename TEXT NOT NULL,
	question TEXT NOT NULL,
	response TEXT NOT NULL,
	file_hash TEXT NOT NULL,
	execution_time_ms BIGINT NOT NULL DEFAULT 0,
	tier TEXT NOT NULL DEFAULT 'free',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_analysis_history_user_ts
	ON analysis_history (user_id, timestamp DESC);
`

// EnsureSchema creates the history table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, historySchema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

const historyColumns = `id, user_id, timestamp, filename, question, response, file_hash, execution_time_ms, tier, created_at`

// Append stores a record.
func (s *PostgresStore) Append(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO analysis_history (id, user_id, timestamp, filename, question, response, file_hash, execution_time_ms, tier)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.Timestamp, rec.Filename, rec.Question,
		rec.Response, rec.FileHash, rec.ExecutionTime.Milliseconds(), string(rec.Tier),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}
	return nil
}

func scanHistoryRecord(scan func(dest ...interface{}) error) (*Record, error) {
	var rec Record
	var execMS int64
	err := scan(
		&rec.ID, &rec.UserID, &rec.Timestamp, &rec.Filename, &rec.Question,
		&rec.Response, &rec.FileHash, &execMS, &rec.Tier, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ExecutionTime = time.Duration(execMS) * time.Millisecond
	return &rec, nil
}

// List returns up to limit records for a user, newest first.
func (s *PostgresStore) List(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + historyColumns + ` FROM analysis_history WHERE user_id = $1 ORDER BY timestamp DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanHistoryRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return out, nil
}

// Get returns one record scoped to its owner.
func (s *PostgresStore) Get(ctx context.Context, userID, id string) (*Record, error) {
	query := `SELECT ` + historyColumns + ` FROM analysis_history WHERE user_id = $1 AND id = $2`

	rec, err := scanHistoryRecord(s.db.QueryRowContext(ctx, query, userID, id).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history record: %w", err)
	}
	return rec, nil
}

// PurgeOlderThan removes a user's records older than cutoff.
func (s *PostgresStore) PurgeOlderThan(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	query := `DELETE FROM analysis_history WHERE user_id = $1 AND timestamp < $2`

	result, err := s.db.ExecContext(ctx, query, userID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge history: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// Stats summarizes a user's history.
func (s *PostgresStore) Stats(ctx context.Context, userID string) (*Stats, error) {
	query := `
		SELECT COUNT(*), COUNT(DISTINCT file_hash), COALESCE(AVG(execution_time_ms), 0), MAX(timestamp)
		FROM analysis_history WHERE user_id = $1
	`
	var stats Stats
	var avgMS float64
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&stats.TotalAnalyses, &stats.UniqueFiles, &avgMS, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to compute history stats: %w", err)
	}
	stats.AvgExecutionTime = time.Duration(avgMS) * time.Millisecond
	if last.Valid {
		stats.LastAnalysis = &last.Time
	}
	return &stats, nil
}

// UserIDs lists every user with at least one record.
func (s *PostgresStore) UserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM analysis_history ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list history users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history users: %w", err)
	}
	return out, nil
}
