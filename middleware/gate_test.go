package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/market/cache"
	"go.pilab.hu/market/domain"
	"go.pilab.hu/market/internal/auth"
	"go.pilab.hu/market/internal/crypto"
	"go.pilab.hu/market/internal/memstore"
	"go.pilab.hu/market/services"
)

var (
	keyOnce   sync.Once
	signer    *services.TokenSigner
	signerErr error
)

type gateFixture struct {
	gate     *Gate
	tokens   *services.TokenService
	auth     *services.AuthService
	accounts *services.AccountService
	repo     *memstore.IdentityStore
	revoked  *cache.MemoryRevocationStore
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	keyOnce.Do(func() {
		key, err := crypto.GenerateRSAKey()
		if err != nil {
			signerErr = err
			return
		}
		signer, signerErr = services.NewTokenSigner(key)
	})
	require.NoError(t, signerErr)

	repo := memstore.NewIdentityStore()
	profiles := cache.NewMemoryProfileCache()
	revoked := cache.NewMemoryRevocationStore()
	t.Cleanup(profiles.Close)
	t.Cleanup(revoked.Close)

	hasher := auth.NewArgon2PasswordHasher(auth.Argon2Params{
		Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	resolver := services.NewProfileResolver(repo, profiles, time.Hour)
	tokens := services.NewTokenService(signer, revoked, time.Hour)
	accounts := services.NewAccountService(repo, memstore.NewProductStore(), hasher, resolver)

	return &gateFixture{
		gate:     NewGate(tokens, resolver),
		tokens:   tokens,
		auth:     services.NewAuthService(accounts, tokens, repo, resolver),
		accounts: accounts,
		repo:     repo,
		revoked:  revoked,
	}
}

func TestExtractToken(t *testing.T) {
	assert.Equal(t, "abc", ExtractToken("Bearer abc", ""))
	assert.Equal(t, "abc", ExtractToken("bearer   abc ", "cookie"))
	assert.Equal(t, "cookie", ExtractToken("", "cookie"))
	assert.Equal(t, "", ExtractToken("Basic dXNlcjpwdw==", "cookie"))
	assert.Equal(t, "", ExtractToken("", ""))
}

func TestGate_CustomerIsForbiddenFromAdminScope(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	_, err := f.accounts.Register(ctx, domain.RoleCustomer, services.NewAccount{Username: "alice", Password: "s3cret"})
	require.NoError(t, err)

	session, err := f.auth.Login(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, []domain.Scope{domain.ScopeCustomer}, session.Scopes)

	_, err = f.gate.Authorize(ctx, session.AccessToken, domain.ScopeAdmin)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	principal, err := f.gate.Authorize(ctx, session.AccessToken, domain.ScopeCustomer)
	require.NoError(t, err)
	assert.Equal(t, "alice", principal.Profile.Username)

	_, err = f.gate.Authorize(ctx, session.AccessToken)
	assert.NoError(t, err, "no required scopes means any authenticated caller")
}

func TestGate_RequiresAllScopes(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()
	_, err := f.accounts.SetupAdmin(ctx, services.NewAccount{Username: "root", Password: "toor"})
	require.NoError(t, err)
	session, err := f.auth.Login(ctx, "root", "toor")
	require.NoError(t, err)

	_, err = f.gate.Authorize(ctx, session.AccessToken, domain.ScopeAdmin, domain.ScopeSeller)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestGate_RevokedTokenIsRejected(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()
	_, err := f.accounts.Register(ctx, domain.RoleCustomer, services.NewAccount{Username: "alice", Password: "s3cret"})
	require.NoError(t, err)

	issued, err := f.tokens.Issue("alice", domain.RoleCustomer, []domain.Scope{domain.ScopeCustomer})
	require.NoError(t, err)
	require.NoError(t, f.tokens.Revoke(ctx, issued.ID, 300*time.Second))

	_, err = f.tokens.Verify(issued.Token)
	require.NoError(t, err, "signature and expiry are still fine")
	revoked, err := f.tokens.IsRevoked(ctx, issued.ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	_, err = f.gate.Authorize(ctx, issued.Token)
	assert.ErrorIs(t, err, domain.ErrRevokedToken)
}

func TestGate_Failures(t *testing.T) {
	f := newGateFixture(t)
	ctx := context.Background()

	_, err := f.gate.Authorize(ctx, "")
	assert.ErrorIs(t, err, domain.ErrMissingToken)

	_, err = f.gate.Authorize(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	t.Run("deleted subject", func(t *testing.T) {
		issued, err := f.tokens.Issue("ghost", domain.RoleCustomer, []domain.Scope{domain.ScopeCustomer})
		require.NoError(t, err)
		_, err = f.gate.Authorize(ctx, issued.Token)
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	t.Run("scopes come from the current profile", func(t *testing.T) {
		_, err := f.accounts.Register(ctx, domain.RoleCustomer, services.NewAccount{Username: "bob", Password: "pw"})
		require.NoError(t, err)
		session, err := f.auth.Login(ctx, "bob", "pw")
		require.NoError(t, err)

		_, _, err = f.accounts.ChangeRole(ctx, "root", "bob", domain.RoleSeller)
		require.NoError(t, err)

		_, err = f.gate.Authorize(ctx, session.AccessToken, domain.ScopeSeller)
		assert.NoError(t, err)
		_, err = f.gate.Authorize(ctx, session.AccessToken, domain.ScopeCustomer)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

type failingRevocations struct{}

func (failingRevocations) Revoke(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("down")
}

func (failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, domain.ErrUnavailable
}

func TestGate_RevocationStoreDown(t *testing.T) {
	f := newGateFixture(t)
	tokens := services.NewTokenService(signer, failingRevocations{}, time.Hour)
	profiles := cache.NewMemoryProfileCache()
	t.Cleanup(profiles.Close)
	gate := NewGate(tokens, services.NewProfileResolver(f.repo, profiles, time.Hour))

	issued, err := tokens.Issue("alice", domain.RoleCustomer, nil)
	require.NoError(t, err)

	_, err = gate.Authorize(context.Background(), issued.Token)
	assert.ErrorIs(t, err, domain.ErrUnavailable, "an unreachable revocation store never authenticates")
}
