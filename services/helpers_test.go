package services

import (
	"context"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.pilab.hu/market/cache"
	"go.pilab.hu/market/domain"
	"go.pilab.hu/market/internal/auth"
	"go.pilab.hu/market/internal/crypto"
	"go.pilab.hu/market/internal/memstore"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	testKeyErr  error
)

func newTestSigner(t *testing.T) *TokenSigner {
	t.Helper()
	testKeyOnce.Do(func() { testKey, testKeyErr = crypto.GenerateRSAKey() })
	require.NoError(t, testKeyErr)

	signer, err := NewTokenSigner(testKey)
	require.NoError(t, err)
	return signer
}

// fakeClock is a settable clock with whole-second precision.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testHasher = auth.NewArgon2PasswordHasher(auth.Argon2Params{
	Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
})

// harness wires the services over the in-memory store and caches.
type harness struct {
	repo     *memstore.IdentityStore
	products *memstore.ProductStore
	profiles *cache.MemoryProfileCache
	resolver *ProfileResolver
	clock    *fakeClock
	tokens   *TokenService
	accounts *AccountService
	auth     *AuthService
	catalog  *ProductService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repo:     memstore.NewIdentityStore(),
		products: memstore.NewProductStore(),
		profiles: cache.NewMemoryProfileCache(),
		clock:    newFakeClock(),
	}
	revocations := cache.NewMemoryRevocationStore()
	t.Cleanup(h.profiles.Close)
	t.Cleanup(revocations.Close)

	h.resolver = NewProfileResolver(h.repo, h.profiles, time.Hour)
	h.tokens = NewTokenService(newTestSigner(t), revocations, time.Hour, WithClock(h.clock.Now))
	h.accounts = NewAccountService(h.repo, h.products, testHasher, h.resolver)
	h.accounts.now = h.clock.Now
	h.auth = NewAuthService(h.accounts, h.tokens, h.repo, h.resolver)
	h.catalog = NewProductService(h.products)
	return h
}

func (h *harness) register(t *testing.T, role domain.Role, username, password string) *domain.Profile {
	t.Helper()
	in := NewAccount{Username: username, Email: username + "@example.com", Password: password}
	if role == domain.RoleSeller {
		in.Seller = &domain.SellerDetails{
			IdentityCard: "ID-1", BusinessName: "Acme", StorefrontName: "acme", Address: "1 Main St",
		}
	}
	var (
		p   *domain.Profile
		err error
	)
	if role == domain.RoleAdmin {
		p, err = h.accounts.SetupAdmin(context.Background(), in)
	} else {
		p, err = h.accounts.Register(context.Background(), role, in)
	}
	require.NoError(t, err)
	return p
}
