package services

import (
	"context"
	"fmt"
	"strings"

	"go.pilab.hu/market/domain"
)

// ProductInput is the seller-provided part of a product.
type ProductInput struct {
	Brand       string
	Title       string
	Description string
	Price       int64
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	if in.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", domain.ErrInvalidInput)
	}
	return nil
}

// ProductService is the catalog. Scope checks happen at the gate; ownership
// checks happen here.
type ProductService struct {
	repo domain.ProductRepository
}

func NewProductService(repo domain.ProductRepository) *ProductService {
	return &ProductService{repo: repo}
}

func (s *ProductService) ListCategories(ctx context.Context) ([]string, error) {
	return s.repo.ListCategories(ctx)
}

func (s *ProductService) CreateCategory(ctx context.Context, name string) error {
	return s.repo.CreateCategory(ctx, name)
}

func (s *ProductService) List(ctx context.Context, category string, offset, limit int) ([]*domain.Product, error) {
	if err := domain.ValidateCategory(category); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, category, offset, limit)
}

func (s *ProductService) Get(ctx context.Context, category, id string) (*domain.Product, error) {
	return s.repo.Get(ctx, category, id)
}

// Create adds a product owned by seller to an existing category.
func (s *ProductService) Create(ctx context.Context, category, seller string, in ProductInput) (*domain.Product, error) {
	if err := domain.ValidateCategory(category); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	p := &domain.Product{
		Category:    category,
		Brand:       in.Brand,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Price:       in.Price,
		Seller:      seller,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update changes a product. Only the owning seller may update it.
func (s *ProductService) Update(ctx context.Context, category, id, seller string, upd domain.ProductUpdate) (*domain.Product, error) {
	if upd.IsEmpty() {
		return nil, fmt.Errorf("%w: nothing to update", domain.ErrInvalidInput)
	}
	if upd.Price != nil && *upd.Price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", domain.ErrInvalidInput)
	}
	current, err := s.repo.Get(ctx, category, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(current.Seller, seller) {
		return nil, fmt.Errorf("product belongs to another seller: %w", domain.ErrForbidden)
	}
	return s.repo.Update(ctx, category, id, upd)
}

// Delete removes a product. It returns ErrNotFound when nothing was removed.
func (s *ProductService) Delete(ctx context.Context, category, id string) error {
	deleted, err := s.repo.Delete(ctx, category, id)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	return nil
}
