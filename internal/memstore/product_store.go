package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.pilab.hu/market/domain"
)

// ProductStore is an in-memory domain.ProductRepository.
type ProductStore struct {
	mu         sync.RWMutex
	categories map[string][]*domain.Product // insertion order
}

func NewProductStore() *ProductStore {
	return &ProductStore{categories: make(map[string][]*domain.Product)}
}

func (s *ProductStore) ListCategories(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.categories))
	for name := range s.categories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *ProductStore) CreateCategory(_ context.Context, name string) error {
	if err := domain.ValidateCategory(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[name]; ok {
		return fmt.Errorf("category %q: %w", name, domain.ErrConflict)
	}
	s.categories[name] = nil
	return nil
}

func (s *ProductStore) CategoryExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.categories[name]
	return ok, nil
}

func (s *ProductStore) List(_ context.Context, category string, offset, limit int) ([]*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, ok := s.categories[category]
	if !ok {
		return nil, fmt.Errorf("category %q: %w", category, domain.ErrNotFound)
	}
	out := make([]*domain.Product, 0, len(items))
	for _, p := range items {
		c := *p
		out = append(out, &c)
	}
	return page(out, offset, limit), nil
}

func (s *ProductStore) find(category, id string) (int, *domain.Product) {
	for i, p := range s.categories[category] {
		if p.ID == id {
			return i, p
		}
	}
	return -1, nil
}

func (s *ProductStore) Get(_ context.Context, category, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, p := s.find(category, id)
	if p == nil {
		return nil, domain.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (s *ProductStore) Create(_ context.Context, product *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[product.Category]; !ok {
		return fmt.Errorf("category %q: %w", product.Category, domain.ErrNotFound)
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	c := *product
	s.categories[product.Category] = append(s.categories[product.Category], &c)
	return nil
}

func (s *ProductStore) Update(_ context.Context, category, id string, upd domain.ProductUpdate) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, p := s.find(category, id)
	if p == nil {
		return nil, domain.ErrNotFound
	}
	next := *p
	if upd.Brand != nil {
		next.Brand = *upd.Brand
	}
	if upd.Title != nil {
		next.Title = *upd.Title
	}
	if upd.Description != nil {
		next.Description = *upd.Description
	}
	if upd.Price != nil {
		next.Price = *upd.Price
	}
	next.UpdatedAt = time.Now().UTC()
	s.categories[category][i] = &next

	out := next
	return &out, nil
}

func (s *ProductStore) Delete(_ context.Context, category, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, p := s.find(category, id)
	if p == nil {
		return false, nil
	}
	items := s.categories[category]
	s.categories[category] = append(items[:i:i], items[i+1:]...)
	return true, nil
}

var _ domain.ProductRepository = (*ProductStore)(nil)
