package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultDedupCapacity is the in-memory deduper's default LRU size.
const DefaultDedupCapacity = 10000

// Deduper remembers processed event IDs so replayed deliveries are dropped.
// Seen atomically records the ID and reports whether it was already known.
// Forget releases a recorded ID; the processor calls it when dispatch
// fails, so a redelivery of the same event is processed again instead of
// being dropped as a duplicate.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// MemoryDeduper keeps event IDs in a bounded LRU. Suitable for single-node
// deployments; a restart forgets history, which is safe because the
// lifecycle transitions are idempotent.
type MemoryDeduper struct {
	cache *lru.Cache[string, struct{}]
}

// NewMemoryDeduper creates an in-memory deduper remembering up to size IDs.
func NewMemoryDeduper(size int) (*MemoryDeduper, error) {
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup cache: %w", err)
	}
	return &MemoryDeduper{cache: cache}, nil
}

// Seen records the event ID and reports whether it was already present.
func (d *MemoryDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	seen, _ := d.cache.ContainsOrAdd(eventID, struct{}{})
	return seen, nil
}

// Forget releases a recorded event ID.
func (d *MemoryDeduper) Forget(ctx context.Context, eventID string) error {
	d.cache.Remove(eventID)
	return nil
}

// RedisDeduper keeps event IDs in Redis with a TTL, shared across
// replicas. SETNX makes the check-and-record step atomic.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisDeduper creates a Redis-backed deduper. Entries expire after ttl.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{
		client: client,
		ttl:    ttl,
		prefix: "webhook:event:",
	}
}

// Seen records the event ID and reports whether it was already present.
func (d *RedisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	set, err := d.client.SetNX(ctx, d.prefix+eventID, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return !set, nil
}

// Forget releases a recorded event ID.
func (d *RedisDeduper) Forget(ctx context.Context, eventID string) error {
	if err := d.client.Del(ctx, d.prefix+eventID).Err(); err != nil {
		return fmt.Errorf("dedup release failed: %w", err)
	}
	return nil
}

// NewRedisClient connects a Redis client for webhook dedup.
func NewRedisClient(redisURL, password string, db int) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	if db >= 0 {
		opts.DB = db
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
