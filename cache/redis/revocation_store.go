package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.pilab.hu/market/cache"
)

// RevocationStore keeps one key per revoked jti, expiring with the token.
type RevocationStore struct {
	client redis.UniversalClient
}

// NewRevocationStore creates a new [RevocationStore] instance
func NewRevocationStore(client redis.UniversalClient) *RevocationStore {
	return &RevocationStore{client: client}
}

// Revoke uses SET NX so concurrent revocations of one jti have a single winner.
func (s *RevocationStore) Revoke(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	ok, err := s.client.SetNX(ctx, jti, "revoked", ttl).Result()
	if err != nil {
		return false, wrapErr("revoke token", err)
	}
	return ok, nil
}

func (s *RevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, jti).Result()
	if err != nil {
		return false, wrapErr("check revocation", err)
	}
	return n > 0, nil
}

var _ cache.RevocationStore = (*RevocationStore)(nil)
