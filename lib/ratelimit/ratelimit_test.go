package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu     sync.Mutex
	counts map[string]int64
	ttls   map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		counts: map[string]int64{},
		ttls:   map[string]time.Duration{},
	}
}

func (s *memoryStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return s.counts[key], nil
}

func (s *memoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttls[key] = ttl
	return nil
}

func TestTryAcquireCeiling(t *testing.T) {
	store := newMemoryStore()
	limiter := NewLimiter(store, "test:submissions", 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.TryAcquire(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := limiter.TryAcquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFirstAcquireSetsExpiry(t *testing.T) {
	store := newMemoryStore()
	limiter := NewLimiter(store, "test:expiry", 10)

	_, err := limiter.TryAcquire(context.Background())
	require.NoError(t, err)
	_, err = limiter.TryAcquire(context.Background())
	require.NoError(t, err)

	require.Len(t, store.ttls, 1)
	for _, ttl := range store.ttls {
		require.Equal(t, time.Hour, ttl)
	}
}

func TestDefaultCeiling(t *testing.T) {
	store := newMemoryStore()
	limiter := NewLimiter(store, "test:default", 0)
	ctx := context.Background()

	granted := 0
	for i := 0; i < 15; i++ {
		ok, err := limiter.TryAcquire(ctx)
		require.NoError(t, err)
		if ok {
			granted++
		}
	}
	require.Equal(t, 10, granted)
}
