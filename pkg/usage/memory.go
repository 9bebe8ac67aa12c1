package usage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and single-node dev
// deployments. A single mutex serializes all writes, which gives
// IncrementDaily its atomicity.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

// Get returns the record for a user, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, userID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// GetOrCreate returns the record for a user, creating a free-tier record
// when none exists.
func (s *MemoryStore) GetOrCreate(ctx context.Context, userID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		rec = NewRecord(userID, s.now())
		s.records[userID] = rec
	}
	return rec.Clone(), nil
}

// Update writes the whole record.
func (s *MemoryStore) Update(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.UserID]; !ok {
		return ErrNotFound
	}
	stored := rec.Clone()
	stored.UpdatedAt = s.now()
	s.records[rec.UserID] = stored
	return nil
}

// IncrementDaily atomically advances the counters, enforcing the limit.
func (s *MemoryStore) IncrementDaily(ctx context.Context, userID string, day time.Time, limit int) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		rec = NewRecord(userID, s.now())
		s.records[userID] = rec
	}

	if !SameDay(rec.LastAnalysisDate, day) {
		rec.DailyCount = 0
	}
	if limit >= 0 && rec.DailyCount >= limit {
		return nil, &QuotaExceededError{UserID: userID, Used: rec.DailyCount, Limit: limit}
	}

	rec.DailyCount++
	rec.TotalCount++
	rec.LastAnalysisDate = Day(day)
	rec.UpdatedAt = s.now()
	return rec.Clone(), nil
}

// UpdateSubscription applies a subscription-state change while holding the
// store lock, so a concurrent IncrementDaily cannot land between the read
// and the write. Only the subscription fields are written back; the
// counters keep whatever value they reached.
func (s *MemoryStore) UpdateSubscription(ctx context.Context, userID string, create bool, mutate func(*Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		if !create {
			return ErrNotFound
		}
		rec = NewRecord(userID, s.now())
		s.records[userID] = rec
	}

	next := rec.Clone()
	if err := mutate(next); err != nil {
		return err
	}

	rec.Tier = next.Tier
	rec.Status = next.Status
	rec.StripeCustomerID = next.StripeCustomerID
	rec.StripeSubscriptionID = next.StripeSubscriptionID
	if next.ExpiresAt != nil {
		exp := *next.ExpiresAt
		rec.ExpiresAt = &exp
	} else {
		rec.ExpiresAt = nil
	}
	rec.UpdatedAt = s.now()
	return nil
}

// FindByCustomerID returns the record holding the Stripe customer reference.
func (s *MemoryStore) FindByCustomerID(ctx context.Context, customerID string) (*Record, error) {
	if customerID == "" {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.StripeCustomerID == customerID {
			return rec.Clone(), nil
		}
	}
	return nil, ErrNotFound
}
