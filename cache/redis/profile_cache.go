package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.pilab.hu/market/cache"
	"go.pilab.hu/market/domain"
)

// ProfileCache implements cache.ProfileCache on Redis strings holding JSON.
type ProfileCache struct {
	client redis.UniversalClient
}

// NewProfileCache creates a new [ProfileCache] instance
func NewProfileCache(client redis.UniversalClient) *ProfileCache {
	return &ProfileCache{client: client}
}

func (c *ProfileCache) Get(ctx context.Context, identifier string) (*domain.Profile, cache.LookupResult, error) {
	data, err := c.client.Get(ctx, cache.ProfileKey(identifier)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cache.LookupMiss, nil
	}
	if err != nil {
		return nil, cache.LookupMiss, wrapErr("get profile", err)
	}

	var profile domain.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, cache.LookupCorrupt, nil
	}
	return &profile, cache.LookupHit, nil
}

func (c *ProfileCache) Put(ctx context.Context, identifier string, profile *domain.Profile, ttl time.Duration) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := c.client.Set(ctx, cache.ProfileKey(identifier), data, ttl).Err(); err != nil {
		return wrapErr("set profile", err)
	}
	return nil
}

func (c *ProfileCache) Invalidate(ctx context.Context, identifiers ...string) error {
	if len(identifiers) == 0 {
		return nil
	}
	keys := make([]string, len(identifiers))
	for i, id := range identifiers {
		keys[i] = cache.ProfileKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return wrapErr("delete profile", err)
	}
	return nil
}

var _ cache.ProfileCache = (*ProfileCache)(nil)
