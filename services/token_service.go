package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.pilab.hu/market/cache"
	"go.pilab.hu/market/domain"
	"go.pilab.hu/market/internal/metrics"
	"go.pilab.hu/market/tracing"
)

// DefaultTokenTTL is the session token lifetime when none is configured.
const DefaultTokenTTL = 60 * time.Minute

// sessionClaims is the wire form of a session token payload.
type sessionClaims struct {
	Role   string   `json:"role"`
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// TokenService issues, verifies and revokes session tokens.
type TokenService struct {
	signer      *TokenSigner
	revocations cache.RevocationStore
	ttl         time.Duration
	now         func() time.Time
}

type TokenServiceOption func(*TokenService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TokenServiceOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signer *TokenSigner, revocations cache.RevocationStore, ttl time.Duration, opts ...TokenServiceOption) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	s := &TokenService{
		signer:      signer,
		revocations: revocations,
		ttl:         ttl,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue mints a token with a fresh jti. It has no side effects.
func (s *TokenService) Issue(subject string, role domain.Role, scopes []domain.Scope) (*domain.IssuedToken, error) {
	if subject == "" {
		return nil, fmt.Errorf("%w: empty subject", domain.ErrInvalidInput)
	}

	// NumericDate has second precision; align so ExpiresAt matches the claim.
	issuedAt := s.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(s.ttl)
	jti := uuid.NewString()

	signed, err := s.signer.Sign(sessionClaims{
		Role:   string(role),
		Scopes: domain.ScopeStrings(scopes),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	if err != nil {
		return nil, err
	}

	metrics.TokensIssuedTotal.Inc()
	return &domain.IssuedToken{
		Token:     signed,
		ID:        jti,
		ExpiresAt: expiresAt,
		Subject:   subject,
		Role:      role,
		Scopes:    append([]domain.Scope(nil), scopes...),
	}, nil
}

// Verify checks signature and expiry. It does not consult the revocation list.
func (s *TokenService) Verify(token string) (*domain.TokenClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	var claims sessionClaims
	if _, err := parser.ParseWithClaims(token, &claims, s.signer.Keyfunc); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}

	if claims.Subject == "" || claims.ID == "" || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing sub, jti or iat", domain.ErrInvalidToken)
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}
	scopes, err := domain.ParseScopes(claims.Scopes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}

	return &domain.TokenClaims{
		Subject:   claims.Subject,
		Role:      role,
		Scopes:    scopes,
		ID:        claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Revoke marks jti revoked for ttl. Revoking twice is a no-op; a non-positive
// ttl stores nothing since the token is already dead.
func (s *TokenService) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	newly, err := s.revocations.Revoke(ctx, jti, ttl)
	if err != nil {
		return err
	}
	if newly {
		metrics.TokensRevokedTotal.Inc()
	}
	return nil
}

// RevokeClaims revokes a verified token for the rest of its lifetime.
func (s *TokenService) RevokeClaims(ctx context.Context, claims *domain.TokenClaims) error {
	return s.Revoke(ctx, claims.ID, claims.Remaining(s.now()))
}

func (s *TokenService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return s.revocations.IsRevoked(ctx, jti)
}

// Refresh revokes token and issues a successor for the same subject, role and
// scopes. The revocation is a set-if-absent, so of two concurrent refreshes of
// one token only the first succeeds; the other gets ErrRevokedToken. Nothing is
// issued when the revocation fails.
func (s *TokenService) Refresh(ctx context.Context, token string) (*domain.IssuedToken, *domain.TokenClaims, error) {
	ctx, span := tracing.Tracer().Start(ctx, "TokenService.Refresh")
	defer span.End()

	claims, err := s.Verify(token)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}
	span.SetAttributes(attribute.String("token.jti", claims.ID), attribute.String("token.role", string(claims.Role)))

	ttl := claims.Remaining(s.now())
	if ttl <= 0 {
		return nil, nil, domain.ErrExpiredToken
	}

	newly, err := s.revocations.Revoke(ctx, claims.ID, ttl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "revoke failed")
		log.Error().Err(err).Str("jti", claims.ID).Msg("Refresh aborted: could not revoke previous token")
		return nil, nil, fmt.Errorf("revoke previous token: %w", err)
	}
	if !newly {
		return nil, nil, domain.ErrRevokedToken
	}
	metrics.TokensRevokedTotal.Inc()

	issued, err := s.Issue(claims.Subject, claims.Role, claims.Scopes)
	if err != nil {
		return nil, nil, err
	}
	metrics.TokensRefreshedTotal.Inc()
	return issued, claims, nil
}
