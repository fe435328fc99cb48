package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.pilab.hu/market/domain"
)

// ProductRepository stores each category in its own collection of the
// products database.
type ProductRepository struct {
	db *mongo.Database
}

func NewProductRepository(c *Client) *ProductRepository {
	return &ProductRepository{db: c.Products()}
}

func (r *ProductRepository) collection(category string) (*mongo.Collection, error) {
	if err := domain.ValidateCategory(category); err != nil {
		return nil, err
	}
	return r.db.Collection(category), nil
}

func (r *ProductRepository) ListCategories(ctx context.Context) ([]string, error) {
	names, err := r.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, mapErr("list categories", err)
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !strings.HasPrefix(n, "system.") {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *ProductRepository) CreateCategory(ctx context.Context, name string) error {
	if err := domain.ValidateCategory(name); err != nil {
		return err
	}
	err := r.db.CreateCollection(ctx, name)
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == codeNamespaceExists {
		return fmt.Errorf("category %q: %w", name, domain.ErrConflict)
	}
	if err != nil {
		return mapErr("create category", err)
	}
	if _, err := r.db.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "seller", Value: 1}},
	}); err != nil {
		log.Warn().Err(err).Str("category", name).Msg("Error creating seller index for category")
	}
	return nil
}

func (r *ProductRepository) CategoryExists(ctx context.Context, name string) (bool, error) {
	if domain.ValidateCategory(name) != nil {
		return false, nil
	}
	names, err := r.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return false, mapErr("lookup category", err)
	}
	return len(names) > 0, nil
}

func (r *ProductRepository) List(ctx context.Context, category string, offset, limit int) ([]*domain.Product, error) {
	exists, err := r.CategoryExists(ctx, category)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("category %q: %w", category, domain.ErrNotFound)
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(max(offset, 0)))
	if limit > 0 {
		findOptions.SetLimit(int64(limit))
	}

	cursor, err := r.db.Collection(category).Find(ctx, bson.D{}, findOptions)
	if err != nil {
		return nil, mapErr("list products", err)
	}
	defer cursor.Close(ctx)

	out := []*domain.Product{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, mapErr("decode products", err)
	}
	return out, nil
}

func (r *ProductRepository) Get(ctx context.Context, category, id string) (*domain.Product, error) {
	coll, err := r.collection(category)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	var p domain.Product
	if err := coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&p); err != nil {
		return nil, mapErr("get product", err)
	}
	return &p, nil
}

func (r *ProductRepository) Create(ctx context.Context, product *domain.Product) error {
	exists, err := r.CategoryExists(ctx, product.Category)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("category %q: %w", product.Category, domain.ErrNotFound)
	}

	if product.ID == "" {
		product.ID = NewObjectID()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	if _, err := r.db.Collection(product.Category).InsertOne(ctx, product); err != nil {
		return mapErr("insert product", err)
	}
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, category, id string, upd domain.ProductUpdate) (*domain.Product, error) {
	coll, err := r.collection(category)
	if err != nil {
		return nil, domain.ErrNotFound
	}

	set := bson.D{{Key: "updated_at", Value: time.Now().UTC()}}
	if upd.Brand != nil {
		set = append(set, bson.E{Key: "brand", Value: *upd.Brand})
	}
	if upd.Title != nil {
		set = append(set, bson.E{Key: "title", Value: *upd.Title})
	}
	if upd.Description != nil {
		set = append(set, bson.E{Key: "description", Value: *upd.Description})
	}
	if upd.Price != nil {
		set = append(set, bson.E{Key: "price", Value: *upd.Price})
	}

	var p domain.Product
	err = coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&p)
	if err != nil {
		return nil, mapErr("update product", err)
	}
	return &p, nil
}

func (r *ProductRepository) Delete(ctx context.Context, category, id string) (bool, error) {
	coll, err := r.collection(category)
	if err != nil {
		return false, nil
	}
	res, err := coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return false, mapErr("delete product", err)
	}
	return res.DeletedCount > 0, nil
}

var _ domain.ProductRepository = (*ProductRepository)(nil)
