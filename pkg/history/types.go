package history

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/askdata/pkg/tiers"
)

// ErrNotFound is returned when a history record does not exist.
var ErrNotFound = errors.New("history record not found")

// Record is one completed analysis.
type Record struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Timestamp     time.Time     `json:"timestamp"`
	Filename      string        `json:"filename"`
	Question      string        `json:"question"`
	Response      string        `json:"response"`
	FileHash      string        `json:"file_hash"`
	ExecutionTime time.Duration `json:"execution_time_ms"`
	Tier          tiers.ID      `json:"tier"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Stats summarizes a user's analysis history.
type Stats struct {
	TotalAnalyses    int           `json:"total_analyses"`
	UniqueFiles      int           `json:"unique_files"`
	AvgExecutionTime time.Duration `json:"avg_execution_time_ms"`
	LastAnalysis     *time.Time    `json:"last_analysis,omitempty"`
}

// Store persists analysis history.
type Store interface {
	// Append stores a record.
	Append(ctx context.Context, rec *Record) error

	// List returns up to limit records for a user, newest first.
	List(ctx context.Context, userID string, limit int) ([]Record, error)

	// Get returns one record scoped to its owner, or ErrNotFound.
	Get(ctx context.Context, userID, id string) (*Record, error)

	// PurgeOlderThan removes a user's records older than cutoff and
	// returns how many were removed.
	PurgeOlderThan(ctx context.Context, userID string, cutoff time.Time) (int, error)

	// Stats summarizes a user's history.
	Stats(ctx context.Context, userID string) (*Stats, error)

	// UserIDs lists every user with at least one record. Used by the
	// retention sweeper.
	UserIDs(ctx context.Context) ([]string, error)
}
