package memstore_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/market/domain"
	"go.pilab.hu/market/internal/memstore"
)

func newIdentity(username, email string, role domain.Role) *domain.Identity {
	return &domain.Identity{
		Username:     username,
		Email:        email,
		PasswordHash: "hash",
		Role:         role,
		Scopes:       role.DefaultScopes(),
	}
}

func TestIdentityStore(t *testing.T) {
	ctx := context.Background()
	s := memstore.NewIdentityStore()

	require.NoError(t, s.Create(ctx, newIdentity("alice", "alice@example.com", domain.RoleCustomer)))

	t.Run("CaseInsensitiveLookup", func(t *testing.T) {
		got, err := s.FindByIdentifier(ctx, "ALICE")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)

		got, err = s.FindByIdentifier(ctx, "Alice@Example.COM")
		require.NoError(t, err)
		assert.Equal(t, domain.RoleCustomer, got.Role)

		_, err = s.FindByIdentifier(ctx, "nobody")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("GlobalUniqueness", func(t *testing.T) {
		err := s.Create(ctx, newIdentity("Alice", "other@example.com", domain.RoleSeller))
		assert.ErrorIs(t, err, domain.ErrConflict)

		err = s.Create(ctx, newIdentity("alice2", "ALICE@example.com", domain.RoleAdmin))
		assert.ErrorIs(t, err, domain.ErrConflict)

		err = s.Create(ctx, newIdentity("alice@example.com", "", domain.RoleAdmin))
		assert.ErrorIs(t, err, domain.ErrConflict, "username may not shadow another identity's email")
	})

	t.Run("UpdateSwapsEmailKey", func(t *testing.T) {
		email := "alice@new.example.com"
		first := "Alice"
		got, err := s.Update(ctx, "alice", domain.IdentityUpdate{Email: &email, FirstName: &first})
		require.NoError(t, err)
		assert.Equal(t, "Alice", got.FirstName)

		_, err = s.FindByIdentifier(ctx, "alice@example.com")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.FindByIdentifier(ctx, email)
		assert.NoError(t, err)

		_, err = s.Update(ctx, "ghost", domain.IdentityUpdate{FirstName: &first})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("MigrateRole", func(t *testing.T) {
		got, err := s.MigrateRole(ctx, "alice", domain.RoleSeller, []domain.Scope{domain.ScopeSeller})
		require.NoError(t, err)
		assert.Equal(t, domain.RoleSeller, got.Role)

		_, err = s.FindInRole(ctx, domain.RoleCustomer, "alice")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		inNew, err := s.FindInRole(ctx, domain.RoleSeller, "alice")
		require.NoError(t, err)
		assert.Equal(t, []domain.Scope{domain.ScopeSeller}, inNew.Scopes)

		n, _ := s.CountByRole(ctx, domain.RoleCustomer)
		assert.Zero(t, n)
		n, _ = s.CountByRole(ctx, domain.RoleSeller)
		assert.EqualValues(t, 1, n)
	})

	t.Run("Delete", func(t *testing.T) {
		removed, err := s.Delete(ctx, "ALICE")
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = s.Delete(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, removed)

		require.NoError(t, s.Create(ctx, newIdentity("alice", "alice@example.com", domain.RoleCustomer)),
			"identifiers are released on delete")
	})
}

func TestIdentityStore_CreateFirstAdmin(t *testing.T) {
	ctx := context.Background()
	s := memstore.NewIdentityStore()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.CreateFirstAdmin(ctx, newIdentity(fmt.Sprintf("root%d", i), "", domain.RoleAdmin))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if assert.ErrorIs(t, err, domain.ErrConflict) {
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 7, conflicts)
	n, err := s.CountByRole(ctx, domain.RoleAdmin)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	for i := range 8 {
		_, _ = s.Delete(ctx, fmt.Sprintf("root%d", i))
	}
	assert.NoError(t, s.CreateFirstAdmin(ctx, newIdentity("again", "", domain.RoleAdmin)),
		"setup reopens once no admin is left")
}

func TestIdentityStore_ListByRole(t *testing.T) {
	ctx := context.Background()
	s := memstore.NewIdentityStore()
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, s.Create(ctx, newIdentity(name, "", domain.RoleSeller)))
	}
	require.NoError(t, s.Create(ctx, newIdentity("d", "", domain.RoleCustomer)))

	all, err := s.ListByRole(ctx, domain.RoleSeller, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	paged, err := s.ListByRole(ctx, domain.RoleSeller, 1, 1)
	require.NoError(t, err)
	assert.Len(t, paged, 1)

	empty, err := s.ListByRole(ctx, domain.RoleSeller, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestProductStore(t *testing.T) {
	ctx := context.Background()
	s := memstore.NewProductStore()

	require.NoError(t, s.CreateCategory(ctx, "electronics"))
	assert.ErrorIs(t, s.CreateCategory(ctx, "electronics"), domain.ErrConflict)
	assert.ErrorIs(t, s.CreateCategory(ctx, "Bad Name"), domain.ErrInvalidInput)

	p := &domain.Product{Category: "electronics", Brand: "Acme", Title: "Phone", Price: 100, Seller: "carol"}
	require.NoError(t, s.Create(ctx, p))
	assert.NotEmpty(t, p.ID)

	assert.ErrorIs(t, s.Create(ctx, &domain.Product{Category: "toys"}), domain.ErrNotFound)

	price := int64(120)
	got, err := s.Update(ctx, "electronics", p.ID, domain.ProductUpdate{Price: &price})
	require.NoError(t, err)
	assert.EqualValues(t, 120, got.Price)
	assert.Equal(t, "Phone", got.Title)

	list, err := s.List(ctx, "electronics", 0, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	removed, err := s.Delete(ctx, "electronics", p.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = s.Get(ctx, "electronics", p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
