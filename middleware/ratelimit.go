package middleware

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.pilab.hu/market/domain"
	"golang.org/x/time/rate"
)

// PolicyAnonymous applies to requests without a valid token. The other
// policies are named after domain.Role values.
const PolicyAnonymous = "anonymous"

// RateLimitExceededMessage is the client-facing rejection text.
const RateLimitExceededMessage = "Rate limit exceeded. Please try again later."

const bucketIdleTTL = 10 * time.Minute

// ResolveLimitKey picks the limiter key and policy for a request. claims must
// come from a verified token; nil means anonymous.
func ResolveLimitKey(claims *domain.TokenClaims, remoteIP string) (key, policy string) {
	if claims == nil || claims.ID == "" || !claims.Role.Valid() {
		return PolicyAnonymous + ":" + remoteIP, PolicyAnonymous
	}
	return string(claims.Role) + ":" + claims.ID, string(claims.Role)
}

// RateLimits maps a policy to its allowance in requests per minute. A missing
// or non-positive entry disables limiting for that policy.
type RateLimits map[string]int

// RateLimiter keeps one token bucket per limiter key. Idle buckets expire.
type RateLimiter struct {
	limits  RateLimits
	buckets *ttlcache.Cache[string, *rate.Limiter]
}

func NewRateLimiter(limits RateLimits) *RateLimiter {
	buckets := ttlcache.New(
		ttlcache.WithTTL[string, *rate.Limiter](bucketIdleTTL),
	)
	go buckets.Start()
	return &RateLimiter{limits: limits, buckets: buckets}
}

// Allow consumes one request from the bucket for key under policy.
func (l *RateLimiter) Allow(key, policy string) bool {
	perMinute := l.limits[policy]
	if perMinute <= 0 {
		return true
	}
	item, _ := l.buckets.GetOrSet(key,
		rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute))
	return item.Value().Allow()
}

// Close stops the expiry goroutine.
func (l *RateLimiter) Close() {
	l.buckets.Stop()
}
