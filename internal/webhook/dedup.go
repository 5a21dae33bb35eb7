package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupStore remembers webhook ids. MarkSeen must be an atomic check-and-set:
// it is the guard that keeps two concurrent deliveries of the same id from
// both reaching the business handlers. IsProcessed/MarkProcessed track full
// processing inside the dedup TTL; MarkProcessed runs only after the routed
// handler succeeded.
type DedupStore interface {
	MarkSeen(ctx context.Context, webhookID string, window time.Duration) (alreadySeen bool, err error)
	IsProcessed(ctx context.Context, webhookID string) (bool, error)
	MarkProcessed(ctx context.Context, webhookID string, ttl time.Duration) error
}

const (
	dedupPrefix  = "webhook:dedup:v1:"
	replayPrefix = "webhook:seen:v1:"
)

// RedisDedupStore keys dedup state in Redis so it survives restarts and is
// shared across instances.
type RedisDedupStore struct {
	client *redis.Client
}

// NewRedisDedupStore builds a Redis-backed dedup store.
func NewRedisDedupStore(client *redis.Client) *RedisDedupStore {
	return &RedisDedupStore{client: client}
}

// MarkSeen uses SetNX so the first arrival inside the window wins.
func (s *RedisDedupStore) MarkSeen(ctx context.Context, webhookID string, window time.Duration) (bool, error) {
	set, err := s.client.SetNX(ctx, replayPrefix+webhookID, 1, window).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

// IsProcessed reports whether the id completed processing inside the TTL.
func (s *RedisDedupStore) IsProcessed(ctx context.Context, webhookID string) (bool, error) {
	err := s.client.Get(ctx, dedupPrefix+webhookID).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkProcessed records completion of the id for the TTL.
func (s *RedisDedupStore) MarkProcessed(ctx context.Context, webhookID string, ttl time.Duration) error {
	return s.client.Set(ctx, dedupPrefix+webhookID, time.Now().Unix(), ttl).Err()
}

// MemoryDedupStore is an in-process map with lazy TTL eviction. Correct for a
// single instance only; deployments with more than one replica need the Redis
// store.
type MemoryDedupStore struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	processed map[string]time.Time
	now       func() time.Time
}

// NewMemoryDedupStore builds an in-memory dedup store.
func NewMemoryDedupStore() *MemoryDedupStore {
	return &MemoryDedupStore{
		seen:      make(map[string]time.Time),
		processed: make(map[string]time.Time),
		now:       time.Now,
	}
}

// SetClock overrides the time source for tests.
func (s *MemoryDedupStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// MarkSeen reports and records arrival of the id inside the window.
func (s *MemoryDedupStore) MarkSeen(_ context.Context, webhookID string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if expiry, ok := s.seen[webhookID]; ok && now.Before(expiry) {
		return true, nil
	}
	s.seen[webhookID] = now.Add(window)
	s.evict(now)
	return false, nil
}

// IsProcessed reports whether the id completed processing inside the TTL.
func (s *MemoryDedupStore) IsProcessed(_ context.Context, webhookID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.processed[webhookID]
	return ok && s.now().Before(expiry), nil
}

// MarkProcessed records completion of the id for the TTL.
func (s *MemoryDedupStore) MarkProcessed(_ context.Context, webhookID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.processed[webhookID] = now.Add(ttl)
	s.evict(now)
	return nil
}

func (s *MemoryDedupStore) evict(now time.Time) {
	for id, expiry := range s.seen {
		if now.After(expiry) {
			delete(s.seen, id)
		}
	}
	for id, expiry := range s.processed {
		if now.After(expiry) {
			delete(s.processed, id)
		}
	}
}
