package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/market/cache"
	"go.pilab.hu/market/domain"
	"go.pilab.hu/market/internal/auth"
)

func TestAccountService_Register(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p := h.register(t, domain.RoleCustomer, "alice", "s3cret")
	assert.Equal(t, domain.RoleCustomer, p.Role)
	assert.Equal(t, []domain.Scope{domain.ScopeCustomer}, p.Scopes)

	stored, err := h.repo.FindByIdentifier(ctx, "ALICE")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", stored.PasswordHash)
	assert.True(t, testHasher.Verify(stored.PasswordHash, "s3cret"))

	t.Run("duplicate username in another partition", func(t *testing.T) {
		_, err := h.accounts.Register(ctx, domain.RoleSeller, NewAccount{
			Username: "Alice", Password: "x",
			Seller: &domain.SellerDetails{IdentityCard: "1", BusinessName: "b", StorefrontName: "s", Address: "a"},
		})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("seller requires business fields", func(t *testing.T) {
		_, err := h.accounts.Register(ctx, domain.RoleSeller, NewAccount{Username: "bob", Password: "x"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = h.accounts.Register(ctx, domain.RoleSeller, NewAccount{
			Username: "bob", Password: "x",
			Seller: &domain.SellerDetails{IdentityCard: "1", BusinessName: "b", StorefrontName: "", Address: "a"},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("admins cannot self-register", func(t *testing.T) {
		_, err := h.accounts.Register(ctx, domain.RoleAdmin, NewAccount{Username: "root", Password: "x"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("password is required", func(t *testing.T) {
		_, err := h.accounts.Register(ctx, domain.RoleCustomer, NewAccount{Username: "carol"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestAccountService_SetupAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p := h.register(t, domain.RoleAdmin, "root", "toor")
	assert.Equal(t, []domain.Scope{domain.ScopeAdmin}, p.Scopes)

	_, err := h.accounts.SetupAdmin(ctx, NewAccount{Username: "root2", Password: "x"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestAccountService_SetupAdminConcurrent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.accounts.SetupAdmin(ctx, NewAccount{Username: fmt.Sprintf("root%d", i), Password: "toor"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if assert.ErrorIs(t, err, domain.ErrConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 7, conflicts)
	n, err := h.repo.CountByRole(ctx, domain.RoleAdmin)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

// countingHasher records every digest passed to Verify.
type countingHasher struct {
	auth.PasswordHasher

	mu       sync.Mutex
	verified []string
}

func (c *countingHasher) Verify(hash, password string) bool {
	c.mu.Lock()
	c.verified = append(c.verified, hash)
	c.mu.Unlock()
	return c.PasswordHasher.Verify(hash, password)
}

func (c *countingHasher) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.verified...)
}

func TestAccountService_AuthenticateCostsTheSameWithoutAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	hasher := &countingHasher{PasswordHasher: testHasher}
	accounts := NewAccountService(h.repo, h.products, hasher, h.resolver)

	require.NoError(t, h.repo.Create(ctx, &domain.Identity{
		Username: "gina@example.com",
		Email:    "gina@example.com",
		Role:     domain.RoleCustomer,
		Scopes:   domain.RoleCustomer.DefaultScopes(),
	}))

	_, err := accounts.Authenticate(ctx, "nobody", "guess")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = accounts.Authenticate(ctx, "gina@example.com", "guess")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	calls := hasher.calls()
	require.Len(t, calls, 2, "a missing or empty hash must still run a derivation")
	for _, digest := range calls {
		assert.True(t, strings.HasPrefix(digest, "$argon2id$"), digest)
		assert.Equal(t, calls[0], digest)
	}
}

func TestAccountService_Authenticate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, domain.RoleCustomer, "alice", "s3cret")

	identity, err := h.accounts.Authenticate(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.Username)

	_, errWrong := h.accounts.Authenticate(ctx, "alice", "wrong")
	_, errUnknown := h.accounts.Authenticate(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, errWrong, domain.ErrInvalidCredentials)
	assert.ErrorIs(t, errUnknown, domain.ErrInvalidCredentials)
	assert.Equal(t, errWrong.Error(), errUnknown.Error(), "no account enumeration")
}

func TestAccountService_AuthenticateIgnoresCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, domain.RoleCustomer, "alice", "s3cret")
	_, err := h.accounts.GetProfile(ctx, "alice", "")
	require.NoError(t, err)

	require.NoError(t, h.accounts.ChangePassword(ctx, "alice", "s3cret", "n3w"))

	_, err = h.accounts.Authenticate(ctx, "alice", "s3cret")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = h.accounts.Authenticate(ctx, "alice", "n3w")
	assert.NoError(t, err)

	err = h.accounts.ChangePassword(ctx, "alice", "wrong", "other")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAccountService_UpdateInvalidatesCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, domain.RoleCustomer, "alice", "s3cret")

	before, err := h.accounts.GetProfile(ctx, "alice", "")
	require.NoError(t, err)
	assert.Empty(t, before.FirstName)
	_, res, _ := h.profiles.Get(ctx, "alice")
	require.Equal(t, cache.LookupHit, res)

	name := "Alice"
	updated, err := h.accounts.Update(ctx, "root", "alice", "", AccountUpdate{FirstName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.FirstName)

	_, res, _ = h.profiles.Get(ctx, "alice")
	assert.Equal(t, cache.LookupMiss, res, "update must drop the cached snapshot")

	after, err := h.accounts.GetProfile(ctx, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, "Alice", after.FirstName)

	t.Run("role filter", func(t *testing.T) {
		_, err := h.accounts.Update(ctx, "root", "alice", domain.RoleSeller, AccountUpdate{FirstName: &name})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("empty update", func(t *testing.T) {
		_, err := h.accounts.Update(ctx, "root", "alice", "", AccountUpdate{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unknown identity", func(t *testing.T) {
		_, err := h.accounts.Update(ctx, "root", "nobody", "", AccountUpdate{FirstName: &name})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestAccountService_Delete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, domain.RoleCustomer, "alice", "s3cret")

	_, err := h.accounts.GetProfile(ctx, "alice@example.com", "")
	require.NoError(t, err)

	assert.ErrorIs(t, h.accounts.Delete(ctx, "root", "alice", domain.RoleSeller), domain.ErrNotFound)
	require.NoError(t, h.accounts.Delete(ctx, "root", "alice", domain.RoleCustomer))

	_, err = h.accounts.GetProfile(ctx, "alice@example.com", "")
	assert.ErrorIs(t, err, domain.ErrNotFound, "cached snapshot under the email key must be gone")
	assert.ErrorIs(t, h.accounts.Delete(ctx, "root", "alice", ""), domain.ErrNotFound)
}

func TestAccountService_ChangeRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, domain.RoleCustomer, "alice", "s3cret")
	_, err := h.accounts.GetProfile(ctx, "alice", "")
	require.NoError(t, err)

	p, changed, err := h.accounts.ChangeRole(ctx, "root", "alice", domain.RoleSeller)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.RoleSeller, p.Role)
	assert.Equal(t, []domain.Scope{domain.ScopeSeller}, p.Scopes)

	found, err := h.repo.FindByIdentifier(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSeller, found.Role)
	_, err = h.repo.FindInRole(ctx, domain.RoleCustomer, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	cached, err := h.accounts.GetProfile(ctx, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSeller, cached.Role, "migration invalidates the cached profile")

	_, changed, err = h.accounts.ChangeRole(ctx, "root", "alice", domain.RoleSeller)
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = h.accounts.ChangeRole(ctx, "root", "alice", domain.Role("owners"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, _, err = h.accounts.ChangeRole(ctx, "root", "nobody", domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAccountService_ChangeEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, domain.RoleCustomer, "alice", "s3cret")
	h.register(t, domain.RoleCustomer, "bob", "hunter2")

	_, err := h.accounts.ChangeEmail(ctx, "alice", "bob@example.com", "s3cret")
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = h.accounts.ChangeEmail(ctx, "alice", "alice@market.test", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = h.accounts.GetProfile(ctx, "alice@example.com", "")
	require.NoError(t, err)

	p, err := h.accounts.ChangeEmail(ctx, "alice", "alice@market.test", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice@market.test", p.Email)

	_, err = h.accounts.GetProfile(ctx, "alice@example.com", "")
	assert.ErrorIs(t, err, domain.ErrNotFound, "old email key is no longer served from cache")
	_, err = h.accounts.GetProfile(ctx, "alice@market.test", "")
	assert.NoError(t, err)
}

func TestAccountService_ListAndDashboard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, domain.RoleAdmin, "root", "toor")
	h.register(t, domain.RoleCustomer, "alice", "a")
	h.register(t, domain.RoleCustomer, "bob", "b")
	h.register(t, domain.RoleSeller, "sam", "c")
	require.NoError(t, h.products.CreateCategory(ctx, "phones"))

	customers, err := h.accounts.List(ctx, domain.RoleCustomer, 0, 10)
	require.NoError(t, err)
	assert.Len(t, customers, 2)

	page, err := h.accounts.List(ctx, domain.RoleCustomer, 1, 10)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	_, err = h.accounts.List(ctx, domain.Role("nobody"), 0, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	d, err := h.accounts.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.Role]int64{
		domain.RoleAdmin: 1, domain.RoleSeller: 1, domain.RoleCustomer: 2,
	}, d.Users)
	assert.Equal(t, 1, d.Categories)
}

func TestProfileResolver_CorruptEntryFallsBackToStore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, domain.RoleCustomer, "alice", "s3cret")

	h.profiles.PutRaw("alice", []byte("{not json"), 0)

	p, err := h.resolver.Resolve(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)

	_, res, err := h.profiles.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, cache.LookupHit, res, "the store read repopulates the cache")
}
