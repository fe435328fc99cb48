package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.pilab.hu/market/domain"
	"go.pilab.hu/market/internal/audit"
	"go.pilab.hu/market/internal/federation"
	"go.pilab.hu/market/internal/metrics"
)

// Session is the result of a successful login or refresh.
type Session struct {
	AccessToken string
	TokenType   string
	Role        domain.Role
	Scopes      []domain.Scope
	ExpiresAt   int64
	Profile     *domain.Profile
}

func newSession(issued *domain.IssuedToken, profile *domain.Profile) *Session {
	return &Session{
		AccessToken: issued.Token,
		TokenType:   "bearer",
		Role:        issued.Role,
		Scopes:      issued.Scopes,
		ExpiresAt:   issued.ExpiresAt.Unix(),
		Profile:     profile,
	}
}

// AuthService runs the session flows on top of AccountService and
// TokenService.
type AuthService struct {
	accounts *AccountService
	tokens   *TokenService
	repo     domain.IdentityRepository
	profiles *ProfileResolver
}

func NewAuthService(accounts *AccountService, tokens *TokenService, repo domain.IdentityRepository, profiles *ProfileResolver) *AuthService {
	return &AuthService{accounts: accounts, tokens: tokens, repo: repo, profiles: profiles}
}

func (s *AuthService) issueFor(ctx context.Context, identity *domain.Identity) (*Session, error) {
	issued, err := s.tokens.Issue(identity.Username, identity.Role, identity.Scopes)
	if err != nil {
		return nil, err
	}
	profile := identity.Profile()
	s.profiles.Prime(ctx, identity.Username, profile)
	return newSession(issued, profile), nil
}

// Login verifies the credentials against the store and issues a token whose
// subject is the identity's username.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*Session, error) {
	identity, err := s.accounts.Authenticate(ctx, identifier, password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			metrics.LoginFailureTotal.Inc()
			log.Warn().Str("identifier", identifier).Msg("Login failed")
		}
		audit.Log(audit.ActionLogin, identifier, identifier, "", err)
		return nil, err
	}

	session, err := s.issueFor(ctx, identity)
	if err != nil {
		return nil, err
	}
	metrics.LoginSuccessTotal.Inc()
	audit.Log(audit.ActionLogin, identity.Username, identity.Username, string(identity.Role), nil)
	return session, nil
}

// Logout revokes the token for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, claims *domain.TokenClaims) error {
	err := s.tokens.RevokeClaims(ctx, claims)
	audit.Log(audit.ActionLogout, claims.Subject, claims.Subject, "", err)
	return err
}

// Refresh swaps a valid token for a new one with the same subject, role and
// scopes.
func (s *AuthService) Refresh(ctx context.Context, token string) (*Session, error) {
	issued, previous, err := s.tokens.Refresh(ctx, token)
	if err != nil {
		audit.Log(audit.ActionRefresh, "", "", "", err)
		return nil, err
	}
	audit.Log(audit.ActionRefresh, previous.Subject, previous.Subject, "", nil)
	return newSession(issued, nil), nil
}

// LoginWithProvider signs in a user verified by an external provider. The
// first login creates a customer whose username is the email and who has no
// password, so password login stays impossible for that account.
func (s *AuthService) LoginWithProvider(ctx context.Context, info *federation.ExternalUserInfo) (*Session, error) {
	email := strings.TrimSpace(info.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: provider returned no email", domain.ErrInvalidInput)
	}

	identity, err := s.repo.FindByIdentifier(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		identity, err = s.createExternal(ctx, email, info)
	}
	if err != nil {
		audit.Log(audit.ActionProviderLogin, email, email, "", err)
		return nil, err
	}

	session, err := s.issueFor(ctx, identity)
	if err != nil {
		return nil, err
	}
	metrics.LoginSuccessTotal.Inc()
	audit.Log(audit.ActionProviderLogin, identity.Username, identity.Username, string(identity.Role), nil)
	return session, nil
}

func (s *AuthService) createExternal(ctx context.Context, email string, info *federation.ExternalUserInfo) (*domain.Identity, error) {
	now := s.accounts.now().UTC()
	identity := &domain.Identity{
		Username:  email,
		Email:     email,
		Role:      domain.RoleCustomer,
		Scopes:    domain.RoleCustomer.DefaultScopes(),
		FirstName: info.FirstName,
		LastName:  info.LastName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.repo.Create(ctx, identity)
	if errors.Is(err, domain.ErrConflict) {
		// Lost a race with a concurrent first login.
		return s.repo.FindByIdentifier(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	metrics.AccountsCreatedTotal.WithLabelValues(string(domain.RoleCustomer)).Inc()
	audit.Log(audit.ActionAccountCreated, "", email, "google", nil)
	return identity, nil
}
