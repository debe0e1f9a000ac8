package quota

import (
	"context"
	"strconv"
	"sync"
	"time"

	"chatgate/internal/config"

	"github.com/redis/go-redis/v9"
)

// CounterStore abstracts the shared counter service. Counters are
// eventually consistent; callers must not assume increments across
// concurrent requests are linearizable.
type CounterStore interface {
	// Counts reads the current values for the given keys. Missing keys
	// read as zero.
	Counts(ctx context.Context, keys []string) ([]int64, error)
	// Increment adds one to the key, creating it with the given expiry
	// on first increment, and returns the new value.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisStore backs counters with Redis.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
}

func (s *RedisStore) Counts(ctx context.Context, keys []string) ([]int64, error) {
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	counts := make([]int64, len(keys))
	for i, v := range vals {
		if v == nil {
			continue
		}
		if str, ok := v.(string); ok {
			n, err := strconv.ParseInt(str, 10, 64)
			if err == nil {
				counts[i] = n
			}
		}
	}
	return counts, nil
}

func (s *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		s.client.Expire(ctx, key, ttl)
	}
	return count, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MemoryStore is an in-process counter store used when no Redis address
// is configured, and by tests. Entries expire lazily on access.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Counts(_ context.Context, keys []string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	counts := make([]int64, len(keys))
	for i, key := range keys {
		e, ok := s.entries[key]
		if !ok {
			continue
		}
		if now.After(e.expiresAt) {
			delete(s.entries, key)
			continue
		}
		counts[i] = e.count
	}
	return counts, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, ok := s.entries[key]
	if !ok || now.After(e.expiresAt) {
		e = memoryEntry{expiresAt: now.Add(ttl)}
	}
	e.count++
	s.entries[key] = e
	return e.count, nil
}
