package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.pilab.hu/market/domain"
)

// MemoryProfileCache implements ProfileCache using ttlcache. Entries are kept
// serialized so decode failures behave the same as in Redis.
type MemoryProfileCache struct {
	cache *ttlcache.Cache[string, []byte]
}

// NewMemoryProfileCache creates a new in-memory profile cache with automatic cleanup.
func NewMemoryProfileCache() *MemoryProfileCache {
	c := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)

	go c.Start()

	return &MemoryProfileCache{cache: c}
}

func (s *MemoryProfileCache) Get(_ context.Context, identifier string) (*domain.Profile, LookupResult, error) {
	item := s.cache.Get(ProfileKey(identifier))
	if item == nil {
		return nil, LookupMiss, nil
	}

	var profile domain.Profile
	if err := json.Unmarshal(item.Value(), &profile); err != nil {
		return nil, LookupCorrupt, nil
	}
	return &profile, LookupHit, nil
}

func (s *MemoryProfileCache) Put(_ context.Context, identifier string, profile *domain.Profile, ttl time.Duration) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	s.cache.Set(ProfileKey(identifier), data, ttl)
	return nil
}

// PutRaw stores bytes verbatim. Used to seed undecodable entries.
func (s *MemoryProfileCache) PutRaw(identifier string, data []byte, ttl time.Duration) {
	s.cache.Set(ProfileKey(identifier), data, ttl)
}

func (s *MemoryProfileCache) Invalidate(_ context.Context, identifiers ...string) error {
	for _, id := range identifiers {
		s.cache.Delete(ProfileKey(id))
	}
	return nil
}

// Close stops the cleanup goroutine.
func (s *MemoryProfileCache) Close() {
	s.cache.Stop()
}

var _ ProfileCache = (*MemoryProfileCache)(nil)
