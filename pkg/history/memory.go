package history

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process history store for tests and dev mode.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record // userID -> records
}

// NewMemoryStore creates an empty in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]Record)}
}

// Append stores a record.
func (s *MemoryStore) Append(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *rec
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.records[rec.UserID] = append(s.records[rec.UserID], stored)
	return nil
}

// List returns up to limit records for a user, newest first.
func (s *MemoryStore) List(ctx context.Context, userID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[userID]
	out := make([]Record, len(recs))
	copy(out, recs)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get returns one record scoped to its owner.
func (s *MemoryStore) Get(ctx context.Context, userID, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records[userID] {
		if rec.ID == id {
			out := rec
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// PurgeOlderThan removes a user's records older than cutoff.
func (s *MemoryStore) PurgeOlderThan(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.records[userID]
	kept := recs[:0]
	for _, rec := range recs {
		if !rec.Timestamp.Before(cutoff) {
			kept = append(kept, rec)
		}
	}
	removed := len(recs) - len(kept)
	if len(kept) == 0 {
		delete(s.records, userID)
	} else {
		s.records[userID] = kept
	}
	return removed, nil
}

// Stats summarizes a user's history.
func (s *MemoryStore) Stats(ctx context.Context, userID string) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[userID]
	stats := &Stats{TotalAnalyses: len(recs)}
	if len(recs) == 0 {
		return stats, nil
	}

	files := make(map[string]struct{}, len(recs))
	var total time.Duration
	var last time.Time
	for _, rec := range recs {
		files[rec.FileHash] = struct{}{}
		total += rec.ExecutionTime
		if rec.Timestamp.After(last) {
			last = rec.Timestamp
		}
	}
	stats.UniqueFiles = len(files)
	stats.AvgExecutionTime = total / time.Duration(len(recs))
	stats.LastAnalysis = &last
	return stats, nil
}

// UserIDs lists every user with at least one record.
func (s *MemoryStore) UserIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.records))
	for id := range s.records {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
