package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryRevocationStore implements RevocationStore using ttlcache.
type MemoryRevocationStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, struct{}]
}

// NewMemoryRevocationStore creates a revocation list whose entries expire on
// their own.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	c := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)

	go c.Start()

	return &MemoryRevocationStore{cache: c}
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache.Get(jti) != nil {
		return false, nil
	}
	s.cache.Set(jti, struct{}{}, ttl)
	return true, nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	return s.cache.Get(jti) != nil, nil
}

// Close stops the cleanup goroutine.
func (s *MemoryRevocationStore) Close() {
	s.cache.Stop()
}

var _ RevocationStore = (*MemoryRevocationStore)(nil)
