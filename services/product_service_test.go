package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/market/domain"
)

func TestProductService(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.catalog.CreateCategory(ctx, "phones"))
	assert.ErrorIs(t, h.catalog.CreateCategory(ctx, "phones"), domain.ErrConflict)
	assert.ErrorIs(t, h.catalog.CreateCategory(ctx, "../etc"), domain.ErrInvalidInput)

	p, err := h.catalog.Create(ctx, "phones", "sam", ProductInput{Brand: "Acme", Title: "A1", Price: 19900})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "sam", p.Seller)

	_, err = h.catalog.Create(ctx, "tablets", "sam", ProductInput{Title: "T"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.catalog.Create(ctx, "phones", "sam", ProductInput{Title: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = h.catalog.Create(ctx, "phones", "sam", ProductInput{Title: "X", Price: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	got, err := h.catalog.Get(ctx, "phones", p.ID)
	require.NoError(t, err)
	assert.Equal(t, "A1", got.Title)

	title := "A2"
	t.Run("only the owner may update", func(t *testing.T) {
		_, err := h.catalog.Update(ctx, "phones", p.ID, "mallory", domain.ProductUpdate{Title: &title})
		assert.ErrorIs(t, err, domain.ErrForbidden)

		updated, err := h.catalog.Update(ctx, "phones", p.ID, "sam", domain.ProductUpdate{Title: &title})
		require.NoError(t, err)
		assert.Equal(t, "A2", updated.Title)
		assert.Equal(t, "Acme", updated.Brand)
	})

	t.Run("list", func(t *testing.T) {
		list, err := h.catalog.List(ctx, "phones", 0, 10)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		cats, err := h.catalog.ListCategories(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"phones"}, cats)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, h.catalog.Delete(ctx, "phones", p.ID))
		assert.ErrorIs(t, h.catalog.Delete(ctx, "phones", p.ID), domain.ErrNotFound)
		_, err := h.catalog.Get(ctx, "phones", p.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
