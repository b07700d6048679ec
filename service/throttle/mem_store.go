package throttle

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	count    int64
	expireAt time.Time
}

// MemStore is a process-local CounterStore for tests and single-node setups.
// Production deployments use RedisStore; a per-process counter lets limits be
// bypassed by load-balancer rotation.
type MemStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	Clock   func() time.Time // injectable for tests; nil => time.Now
}

func NewMemStore() *MemStore {
	return &MemStore{buckets: make(map[string]*bucket)}
}

func (s *MemStore) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *MemStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || now.After(b.expireAt) {
		b = &bucket{expireAt: now.Add(window)}
		s.buckets[key] = b
	}
	b.count++
	return b.count, nil
}
