package domain

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

var categoryPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidateCategory checks that a category name is usable as a collection name.
func ValidateCategory(name string) error {
	if !categoryPattern.MatchString(name) {
		return fmt.Errorf("%w: invalid category %q", ErrInvalidInput, name)
	}
	return nil
}

// Product is one catalog item. Each category is its own collection.
type Product struct {
	ID          string    `bson:"_id" json:"id"`
	Category    string    `bson:"category" json:"category"`
	Brand       string    `bson:"brand" json:"brand"`
	Title       string    `bson:"title" json:"title"`
	Description string    `bson:"description" json:"description"`
	Price       int64     `bson:"price" json:"price"`
	Seller      string    `bson:"seller" json:"seller"`
	CreatedAt   time.Time `bson:"date" json:"date"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

type ProductUpdate struct {
	Brand       *string
	Title       *string
	Description *string
	Price       *int64
}

func (u ProductUpdate) IsEmpty() bool {
	return u.Brand == nil && u.Title == nil && u.Description == nil && u.Price == nil
}

// ProductRepository persists the catalog. Get, Update and Delete return
// ErrNotFound for an unknown category or id.
type ProductRepository interface {
	ListCategories(ctx context.Context) ([]string, error)
	CreateCategory(ctx context.Context, name string) error
	CategoryExists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context, category string, offset, limit int) ([]*Product, error)
	Get(ctx context.Context, category, id string) (*Product, error)
	Create(ctx context.Context, product *Product) error
	Update(ctx context.Context, category, id string, update ProductUpdate) (*Product, error)
	Delete(ctx context.Context, category, id string) (bool, error)
}
