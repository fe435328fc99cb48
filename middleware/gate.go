package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.pilab.hu/market/domain"
	"go.pilab.hu/market/internal/metrics"
	"go.pilab.hu/market/services"
	"go.pilab.hu/market/tracing"
)

// AccessTokenCookie carries the session token for browser flows.
const AccessTokenCookie = "access_token"

// Gate authorizes one request: token verification, revocation check,
// read-through profile resolution and an all-of scope check.
type Gate struct {
	tokens   *services.TokenService
	profiles *services.ProfileResolver
}

// NewGate creates a new Gate.
func NewGate(tokens *services.TokenService, profiles *services.ProfileResolver) *Gate {
	return &Gate{tokens: tokens, profiles: profiles}
}

// ExtractToken returns the bearer token from the Authorization header, or
// the cookie value when the header is absent. An Authorization header with a
// scheme other than Bearer yields an empty token.
func ExtractToken(header, cookie string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return strings.TrimSpace(cookie)
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authorize returns the caller behind raw if the token is valid, unrevoked,
// still maps to an identity and that identity holds every required scope.
func (g *Gate) Authorize(ctx context.Context, raw string, required ...domain.Scope) (*domain.Principal, error) {
	ctx, span := tracing.Tracer().Start(ctx, "Gate.Authorize")
	defer span.End()

	principal, reason, err := g.authorize(ctx, raw, required)
	if err != nil {
		metrics.GateRejectionsTotal.WithLabelValues(reason).Inc()
		span.SetStatus(codes.Error, reason)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("principal.subject", principal.Claims.Subject),
		attribute.String("principal.role", string(principal.Profile.Role)),
	)
	return principal, nil
}

func (g *Gate) authorize(ctx context.Context, raw string, required []domain.Scope) (*domain.Principal, string, error) {
	if raw == "" {
		return nil, "missing", domain.ErrMissingToken
	}

	claims, err := g.tokens.Verify(raw)
	if err != nil {
		if errors.Is(err, domain.ErrExpiredToken) {
			return nil, "expired", err
		}
		return nil, "invalid", err
	}

	revoked, err := g.tokens.IsRevoked(ctx, claims.ID)
	if err != nil {
		log.Error().Err(err).Str("jti", claims.ID).Msg("Revocation check failed")
		return nil, "unavailable", fmt.Errorf("revocation check: %w", err)
	}
	if revoked {
		return nil, "revoked", domain.ErrRevokedToken
	}

	profile, err := g.profiles.Resolve(ctx, claims.Subject)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn().Str("subject", claims.Subject).Msg("Token subject no longer exists")
		return nil, "unknown_subject", domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, "unavailable", err
	}

	if !profile.HasScopes(required...) {
		log.Debug().
			Str("subject", claims.Subject).
			Strs("required", domain.ScopeStrings(required)).
			Strs("granted", domain.ScopeStrings(profile.Scopes)).
			Msg("Missing required scopes")
		return nil, "forbidden", fmt.Errorf("%w: requires %s", domain.ErrForbidden, strings.Join(domain.ScopeStrings(required), ","))
	}

	return &domain.Principal{Claims: claims, Profile: profile}, "", nil
}
