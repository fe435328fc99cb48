package cache

import (
	"context"
	"time"

	"go.pilab.hu/market/domain"
)

// LookupResult tags the outcome of a profile cache read.
type LookupResult int

const (
	LookupMiss LookupResult = iota
	LookupHit
	// LookupCorrupt means an entry existed but could not be decoded. Callers
	// treat it like a miss.
	LookupCorrupt
)

func (r LookupResult) String() string {
	switch r {
	case LookupHit:
		return "hit"
	case LookupCorrupt:
		return "corrupt"
	default:
		return "miss"
	}
}

// ProfileCache maps an identifier to a profile snapshot. It is best effort and
// never the source of truth for credentials.
type ProfileCache interface {
	// Get returns a non-nil error only when the cache itself is unreachable.
	Get(ctx context.Context, identifier string) (*domain.Profile, LookupResult, error)
	Put(ctx context.Context, identifier string, profile *domain.Profile, ttl time.Duration) error
	Invalidate(ctx context.Context, identifiers ...string) error
}

// RevocationStore records revoked token ids until the token would have expired.
type RevocationStore interface {
	// Revoke reports true when the jti was not revoked before this call.
	// A non-positive ttl stores nothing.
	Revoke(ctx context.Context, jti string, ttl time.Duration) (bool, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// ProfileKey is the key a profile snapshot is stored under.
func ProfileKey(identifier string) string {
	return "cache:user:" + domain.NormalizeIdentifier(identifier) + ":profile"
}
