package mongodb

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.pilab.hu/market/domain"
)

type identifierDoc struct {
	Key        string `bson:"_id"`
	IdentityID string `bson:"identity_id"`
}

// IdentityRepository implements domain.IdentityRepository with one collection
// per role plus a registry collection that makes identifiers globally unique.
// Every multi-document mutation runs in one transaction, so a deployment with
// transactions (replica set or sharded cluster) is required.
type IdentityRepository struct {
	client      *mongo.Client
	partitions  map[domain.Role]*mongo.Collection
	identifiers *mongo.Collection
}

// NewIdentityRepository creates the repository and ensures its indexes.
func NewIdentityRepository(ctx context.Context, c *Client) (*IdentityRepository, error) {
	db := c.Users()
	repo := &IdentityRepository{
		client:      c.client,
		partitions:  make(map[domain.Role]*mongo.Collection, len(domain.Roles)),
		identifiers: db.Collection(IdentifiersCollection),
	}
	for _, role := range domain.Roles {
		repo.partitions[role] = db.Collection(string(role))
	}

	if err := repo.createIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *IdentityRepository) createIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "email_key", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "email_key", Value: bson.D{{Key: "$exists", Value: true}}}}),
		},
		{
			Keys: bson.D{{Key: "created_at", Value: 1}},
		},
	}

	for role, coll := range r.partitions {
		// Collections must exist before they can take part in a transaction.
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			log.Warn().Err(err).Str("partition", string(role)).Msg("Error creating indexes for partition")
			return mapErr("create indexes for "+string(role), err)
		}
	}
	if _, err := r.identifiers.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "identity_id", Value: 1}},
	}); err != nil {
		return mapErr("create indexes for identifiers", err)
	}

	log.Info().Msg("Indexes for identity partitions ensured.")
	return nil
}

func identifierFilter(identifier string) bson.D {
	key := domain.NormalizeIdentifier(identifier)
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "username_key", Value: key}},
		bson.D{{Key: "email_key", Value: key}},
	}}}
}

// findAcross queries every partition with ctx, which may carry a session, and
// merges the matches. $unionWith is not allowed inside transactions.
func (r *IdentityRepository) findAcross(ctx context.Context, identifier string) (*domain.Identity, error) {
	filter := identifierFilter(identifier)

	var found []*domain.Identity
	for _, role := range domain.Roles {
		cursor, err := r.partitions[role].Find(ctx, filter, options.Find().SetLimit(2))
		if err != nil {
			return nil, mapErr("find identity", err)
		}
		var batch []*domain.Identity
		if err := cursor.All(ctx, &batch); err != nil {
			return nil, mapErr("decode identity", err)
		}
		for _, rec := range batch {
			rec.Role = role
		}
		found = append(found, batch...)
	}

	switch len(found) {
	case 0:
		return nil, domain.ErrNotFound
	case 1:
	default:
		log.Error().Str("identifier", identifier).Int("matches", len(found)).Msg("Identifier matches more than one identity")
	}
	return found[0], nil
}

// FindByIdentifier reads all partitions inside one snapshot transaction, so a
// concurrent MigrateRole is seen either entirely before or entirely after.
func (r *IdentityRepository) FindByIdentifier(ctx context.Context, identifier string) (*domain.Identity, error) {
	res, err := readTxn(ctx, r.client, func(sctx context.Context) (any, error) {
		return r.findAcross(sctx, identifier)
	})
	if err != nil {
		return nil, passthrough("find identity", err)
	}
	return res.(*domain.Identity), nil
}

func (r *IdentityRepository) FindInRole(ctx context.Context, role domain.Role, identifier string) (*domain.Identity, error) {
	coll, ok := r.partitions[role]
	if !ok {
		return nil, fmt.Errorf("%w: role %q", domain.ErrInvalidInput, role)
	}

	var rec domain.Identity
	if err := coll.FindOne(ctx, identifierFilter(identifier)).Decode(&rec); err != nil {
		return nil, mapErr("find identity in "+string(role), err)
	}
	rec.Role = role
	return &rec, nil
}

func (r *IdentityRepository) reserve(ctx context.Context, identityID string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	docs := make([]identifierDoc, len(keys))
	for i, k := range keys {
		docs[i] = identifierDoc{Key: k, IdentityID: identityID}
	}
	if _, err := r.identifiers.InsertMany(ctx, docs); err != nil {
		return mapErr("reserve identifier", err)
	}
	return nil
}

func (r *IdentityRepository) release(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.identifiers.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: keys}}}})
	return mapErr("release identifier", err)
}

// adminSetupLock is a registry document every first-admin transaction writes,
// so concurrent setups conflict instead of each seeing an empty partition. Its
// _id is a document and can never equal an identifier key.
var adminSetupLock = bson.D{{Key: "_id", Value: bson.D{{Key: "lock", Value: "admin-setup"}}}}

func (r *IdentityRepository) prepare(identity *domain.Identity) (*mongo.Collection, error) {
	coll, ok := r.partitions[identity.Role]
	if !ok {
		return nil, fmt.Errorf("%w: role %q", domain.ErrInvalidInput, identity.Role)
	}
	identity.Normalize()
	if identity.UsernameKey == "" {
		return nil, fmt.Errorf("%w: empty username", domain.ErrInvalidInput)
	}
	if identity.ID == "" {
		identity.ID = NewObjectID()
	}
	now := time.Now().UTC()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	identity.UpdatedAt = now
	return coll, nil
}

func (r *IdentityRepository) insert(sctx context.Context, coll *mongo.Collection, identity *domain.Identity) error {
	if err := r.reserve(sctx, identity.ID, identity.Keys()); err != nil {
		return err
	}
	if _, err := coll.InsertOne(sctx, identity); err != nil {
		return mapErr("insert identity", err)
	}
	return nil
}

// Create reserves the identity's keys and inserts it into its partition in a
// single transaction.
func (r *IdentityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	coll, err := r.prepare(identity)
	if err != nil {
		return err
	}
	return writeTxn(ctx, r.client, "create identity", func(sctx context.Context) error {
		return r.insert(sctx, coll, identity)
	})
}

// CreateFirstAdmin inserts identity into the admin partition only while it is
// empty. A setup racing another one fails with a write conflict, surfaced as
// ErrUnavailable.
func (r *IdentityRepository) CreateFirstAdmin(ctx context.Context, identity *domain.Identity) error {
	identity.Role = domain.RoleAdmin
	coll, err := r.prepare(identity)
	if err != nil {
		return err
	}
	return writeTxn(ctx, r.client, "create first admin", func(sctx context.Context) error {
		_, err := r.identifiers.UpdateOne(sctx, adminSetupLock,
			bson.D{{Key: "$inc", Value: bson.D{{Key: "setups", Value: 1}}}},
			options.UpdateOne().SetUpsert(true),
		)
		if err != nil {
			return mapErr("lock admin setup", err)
		}
		n, err := coll.CountDocuments(sctx, bson.D{})
		if err != nil {
			return mapErr("count admins", err)
		}
		if n > 0 {
			return fmt.Errorf("admin already exists: %w", domain.ErrConflict)
		}
		return r.insert(sctx, coll, identity)
	})
}

// Update merges the non-nil fields. An email change moves its registry entry
// in the same transaction.
func (r *IdentityRepository) Update(ctx context.Context, identifier string, upd domain.IdentityUpdate) (*domain.Identity, error) {
	var updated domain.Identity

	err := writeTxn(ctx, r.client, "update identity", func(sctx context.Context) error {
		rec, err := r.findAcross(sctx, identifier)
		if err != nil {
			return err
		}

		set := bson.D{{Key: "updated_at", Value: time.Now().UTC()}}
		unset := bson.D{}
		if upd.Email != nil {
			next := *rec
			next.Email = *upd.Email
			next.Normalize()

			oldKeys, newKeys := rec.Keys(), next.Keys()
			if err := r.release(sctx, without(oldKeys, newKeys)); err != nil {
				return err
			}
			if err := r.reserve(sctx, rec.ID, without(newKeys, oldKeys)); err != nil {
				return err
			}
			if next.EmailKey == "" {
				unset = append(unset, bson.E{Key: "email", Value: ""}, bson.E{Key: "email_key", Value: ""})
			} else {
				set = append(set, bson.E{Key: "email", Value: next.Email}, bson.E{Key: "email_key", Value: next.EmailKey})
			}
		}
		if upd.PasswordHash != nil {
			set = append(set, bson.E{Key: "password_hash", Value: *upd.PasswordHash})
		}
		if upd.FirstName != nil {
			set = append(set, bson.E{Key: "first_name", Value: *upd.FirstName})
		}
		if upd.MiddleName != nil {
			set = append(set, bson.E{Key: "middle_name", Value: *upd.MiddleName})
		}
		if upd.LastName != nil {
			set = append(set, bson.E{Key: "last_name", Value: *upd.LastName})
		}
		if upd.Seller != nil {
			set = append(set, bson.E{Key: "seller", Value: upd.Seller})
		}

		update := bson.D{{Key: "$set", Value: set}}
		if len(unset) > 0 {
			update = append(update, bson.E{Key: "$unset", Value: unset})
		}

		err = r.partitions[rec.Role].FindOneAndUpdate(
			sctx,
			bson.D{{Key: "_id", Value: rec.ID}},
			update,
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&updated)
		if err != nil {
			return mapErr("update identity", err)
		}
		updated.Role = rec.Role
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes the record and frees its identifiers.
func (r *IdentityRepository) Delete(ctx context.Context, identifier string) (bool, error) {
	err := writeTxn(ctx, r.client, "delete identity", func(sctx context.Context) error {
		rec, err := r.findAcross(sctx, identifier)
		if err != nil {
			return err
		}
		if _, err := r.partitions[rec.Role].DeleteOne(sctx, bson.D{{Key: "_id", Value: rec.ID}}); err != nil {
			return mapErr("delete identity", err)
		}
		return r.release(sctx, rec.Keys())
	})
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MigrateRole deletes the record from its partition and inserts it into the
// new one with the new role and scopes, all in one transaction.
func (r *IdentityRepository) MigrateRole(ctx context.Context, identifier string, role domain.Role, scopes []domain.Scope) (*domain.Identity, error) {
	target, ok := r.partitions[role]
	if !ok {
		return nil, fmt.Errorf("%w: role %q", domain.ErrInvalidInput, role)
	}

	var migrated *domain.Identity
	err := writeTxn(ctx, r.client, "migrate role", func(sctx context.Context) error {
		rec, err := r.findAcross(sctx, identifier)
		if err != nil {
			return err
		}
		now := time.Now().UTC()

		if rec.Role == role {
			_, err := target.UpdateOne(sctx,
				bson.D{{Key: "_id", Value: rec.ID}},
				bson.D{{Key: "$set", Value: bson.D{{Key: "scopes", Value: scopes}, {Key: "updated_at", Value: now}}}},
			)
			if err != nil {
				return mapErr("update scopes", err)
			}
		} else {
			res, err := r.partitions[rec.Role].DeleteOne(sctx, bson.D{{Key: "_id", Value: rec.ID}})
			if err != nil {
				return mapErr("remove from "+string(rec.Role), err)
			}
			if res.DeletedCount != 1 {
				return domain.ErrNotFound
			}
			rec.Role = role
			rec.Scopes = scopes
			rec.UpdatedAt = now
			if _, err := target.InsertOne(sctx, rec); err != nil {
				return mapErr("insert into "+string(role), err)
			}
		}
		rec.Role = role
		rec.Scopes = scopes
		rec.UpdatedAt = now
		migrated = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return migrated, nil
}

func (r *IdentityRepository) ListByRole(ctx context.Context, role domain.Role, offset, limit int) ([]*domain.Identity, error) {
	coll, ok := r.partitions[role]
	if !ok {
		return nil, fmt.Errorf("%w: role %q", domain.ErrInvalidInput, role)
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "username_key", Value: 1}}).
		SetSkip(int64(max(offset, 0)))
	if limit > 0 {
		findOptions.SetLimit(int64(limit))
	}

	cursor, err := coll.Find(ctx, bson.D{}, findOptions)
	if err != nil {
		return nil, mapErr("list identities", err)
	}
	defer cursor.Close(ctx)

	out := []*domain.Identity{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, mapErr("decode identities", err)
	}
	for _, rec := range out {
		rec.Role = role
	}
	return out, nil
}

func (r *IdentityRepository) CountByRole(ctx context.Context, role domain.Role) (int64, error) {
	coll, ok := r.partitions[role]
	if !ok {
		return 0, fmt.Errorf("%w: role %q", domain.ErrInvalidInput, role)
	}
	n, err := coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, mapErr("count identities", err)
	}
	return n, nil
}

// without returns the elements of a not present in b.
func without(a, b []string) []string {
	var out []string
	for _, k := range a {
		if !slices.Contains(b, k) {
			out = append(out, k)
		}
	}
	return out
}

// Ensure interface compliance
var _ domain.IdentityRepository = (*IdentityRepository)(nil)
