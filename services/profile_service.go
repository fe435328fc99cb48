package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.pilab.hu/market/cache"
	"go.pilab.hu/market/domain"
	"go.pilab.hu/market/internal/metrics"
)

// DefaultProfileTTL is how long a profile snapshot stays cached.
const DefaultProfileTTL = 60 * time.Minute

// ProfileResolver is the read-through path from identifier to profile.
type ProfileResolver struct {
	repo  domain.IdentityRepository
	cache cache.ProfileCache
	ttl   time.Duration
}

// NewProfileResolver creates a new ProfileResolver instance
func NewProfileResolver(repo domain.IdentityRepository, profiles cache.ProfileCache, ttl time.Duration) *ProfileResolver {
	if ttl <= 0 {
		ttl = DefaultProfileTTL
	}
	return &ProfileResolver{repo: repo, cache: profiles, ttl: ttl}
}

// Resolve returns the cached profile or loads it from the store and caches it.
// Cache faults of any kind degrade to a store read; store errors propagate.
func (r *ProfileResolver) Resolve(ctx context.Context, identifier string) (*domain.Profile, error) {
	profile, result, err := r.cache.Get(ctx, identifier)
	switch {
	case err != nil:
		metrics.ProfileCacheLookupsTotal.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("identifier", identifier).Msg("Profile cache unavailable, reading from store")
	case result == cache.LookupHit:
		metrics.ProfileCacheLookupsTotal.WithLabelValues(result.String()).Inc()
		return profile, nil
	case result == cache.LookupCorrupt:
		metrics.ProfileCacheLookupsTotal.WithLabelValues(result.String()).Inc()
		log.Warn().Str("key", cache.ProfileKey(identifier)).Msg("Discarding undecodable cached profile")
	default:
		metrics.ProfileCacheLookupsTotal.WithLabelValues(result.String()).Inc()
	}

	identity, err := r.repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	profile = identity.Profile()
	r.Prime(ctx, identifier, profile)
	return profile, nil
}

// Prime stores profile under identifier. Failures are logged only.
func (r *ProfileResolver) Prime(ctx context.Context, identifier string, profile *domain.Profile) {
	if err := r.cache.Put(ctx, identifier, profile, r.ttl); err != nil {
		log.Warn().Err(err).Str("identifier", identifier).Msg("Failed to cache profile")
	}
}

// Invalidate drops the snapshots for every identifier of the given identities
// plus any extra identifiers (e.g. a previous email). Call it after the store
// write commits.
func (r *ProfileResolver) Invalidate(ctx context.Context, identities []*domain.Identity, extra ...string) {
	keys := append([]string(nil), extra...)
	for _, id := range identities {
		if id != nil {
			keys = append(keys, id.Keys()...)
		}
	}
	if len(keys) == 0 {
		return
	}
	if err := r.cache.Invalidate(ctx, keys...); err != nil {
		log.Error().Err(err).Strs("identifiers", keys).Msg("Failed to invalidate cached profiles")
	}
}
