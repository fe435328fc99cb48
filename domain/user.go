package domain

import (
	"context"
	"strings"
	"time"
)

// SellerDetails holds the business fields carried by seller accounts.
type SellerDetails struct {
	IdentityCard    string `bson:"identity_card" json:"identity_card"`
	BusinessName    string `bson:"business_name" json:"business_name"`
	StorefrontName  string `bson:"storefront_name" json:"storefront_name"`
	Address         string `bson:"address" json:"address"`
	BusinessEmail   string `bson:"business_email,omitempty" json:"business_email,omitempty"`
	BusinessAddress string `bson:"business_address,omitempty" json:"business_address,omitempty"`
}

// Identity is one principal stored in exactly one role partition.
type Identity struct {
	ID           string         `bson:"_id"`
	Username     string         `bson:"username"`
	UsernameKey  string         `bson:"username_key"`
	Email        string         `bson:"email,omitempty"`
	EmailKey     string         `bson:"email_key,omitempty"`
	PasswordHash string         `bson:"password_hash,omitempty"`
	Role         Role           `bson:"role"`
	Scopes       []Scope        `bson:"scopes"`
	FirstName    string         `bson:"first_name,omitempty"`
	MiddleName   string         `bson:"middle_name,omitempty"`
	LastName     string         `bson:"last_name,omitempty"`
	Seller       *SellerDetails `bson:"seller,omitempty"`
	CreatedAt    time.Time      `bson:"created_at"`
	UpdatedAt    time.Time      `bson:"updated_at"`
}

// NormalizeIdentifier folds an identifier into its lookup key.
func NormalizeIdentifier(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Normalize refreshes the derived lookup keys.
func (i *Identity) Normalize() {
	i.UsernameKey = NormalizeIdentifier(i.Username)
	i.EmailKey = NormalizeIdentifier(i.Email)
}

// Keys returns every identifier this identity can be looked up by.
func (i *Identity) Keys() []string {
	keys := []string{NormalizeIdentifier(i.Username)}
	if e := NormalizeIdentifier(i.Email); e != "" && e != keys[0] {
		keys = append(keys, e)
	}
	return keys
}

// Profile strips the credential hash and lookup keys.
func (i *Identity) Profile() *Profile {
	p := &Profile{
		ID:         i.ID,
		Username:   i.Username,
		Email:      i.Email,
		Role:       i.Role,
		Scopes:     append([]Scope(nil), i.Scopes...),
		FirstName:  i.FirstName,
		MiddleName: i.MiddleName,
		LastName:   i.LastName,
		CreatedAt:  i.CreatedAt,
		UpdatedAt:  i.UpdatedAt,
	}
	if i.Seller != nil {
		s := *i.Seller
		p.Seller = &s
	}
	return p
}

// Profile is the public, cacheable view of an identity.
type Profile struct {
	ID         string         `json:"id"`
	Username   string         `json:"username"`
	Email      string         `json:"email,omitempty"`
	Role       Role           `json:"role"`
	Scopes     []Scope        `json:"scopes"`
	FirstName  string         `json:"first_name,omitempty"`
	MiddleName string         `json:"middle_name,omitempty"`
	LastName   string         `json:"last_name,omitempty"`
	Seller     *SellerDetails `json:"seller,omitempty"`
	CreatedAt  time.Time      `json:"account_date"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// HasScopes reports whether the profile holds all of required.
func (p *Profile) HasScopes(required ...Scope) bool {
	return HasAllScopes(p.Scopes, required...)
}

// IdentityUpdate is a partial merge. Nil fields are left untouched.
type IdentityUpdate struct {
	Email        *string
	PasswordHash *string
	FirstName    *string
	MiddleName   *string
	LastName     *string
	Seller       *SellerDetails
}

func (u IdentityUpdate) IsEmpty() bool {
	return u.Email == nil && u.PasswordHash == nil && u.FirstName == nil &&
		u.MiddleName == nil && u.LastName == nil && u.Seller == nil
}

// IdentityRepository is the contract the auth core needs from the store.
// Identifiers match case-insensitively on username or email across every
// role partition.
type IdentityRepository interface {
	// FindByIdentifier returns ErrNotFound when no partition holds the identifier.
	FindByIdentifier(ctx context.Context, identifier string) (*Identity, error)
	// FindInRole looks in one partition only.
	FindInRole(ctx context.Context, role Role, identifier string) (*Identity, error)
	// Create returns ErrConflict when the username or email is taken anywhere.
	Create(ctx context.Context, identity *Identity) error
	// CreateFirstAdmin creates identity as an admin only if the admin
	// partition is empty, atomically with that check. Otherwise ErrConflict.
	CreateFirstAdmin(ctx context.Context, identity *Identity) error
	// Update returns ErrNotFound when the identifier does not exist.
	Update(ctx context.Context, identifier string, update IdentityUpdate) (*Identity, error)
	// Delete reports whether a record was removed.
	Delete(ctx context.Context, identifier string) (bool, error)
	// MigrateRole moves the record between partitions in one transaction.
	MigrateRole(ctx context.Context, identifier string, role Role, scopes []Scope) (*Identity, error)
	ListByRole(ctx context.Context, role Role, offset, limit int) ([]*Identity, error)
	CountByRole(ctx context.Context, role Role) (int64, error)
}
