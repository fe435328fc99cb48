package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.pilab.hu/market/domain"
	"go.pilab.hu/market/internal/audit"
	"go.pilab.hu/market/internal/auth"
	"go.pilab.hu/market/internal/metrics"
)

// NewAccount is the input to Register and SetupAdmin.
type NewAccount struct {
	Username   string
	Email      string
	Password   string
	FirstName  string
	MiddleName string
	LastName   string
	Seller     *domain.SellerDetails
}

// AccountUpdate is a partial profile update. Email and password have their
// own credential-checked operations.
type AccountUpdate struct {
	FirstName  *string
	MiddleName *string
	LastName   *string
	Seller     *domain.SellerDetails
}

func (u AccountUpdate) toIdentityUpdate() domain.IdentityUpdate {
	return domain.IdentityUpdate{
		FirstName:  u.FirstName,
		MiddleName: u.MiddleName,
		LastName:   u.LastName,
		Seller:     u.Seller,
	}
}

// Dashboard is the administrative overview.
type Dashboard struct {
	Users      map[domain.Role]int64 `json:"users"`
	Categories int                   `json:"categories"`
}

// AccountService owns identity lifecycle: creation, credential checks, profile
// reads and every mutation, each followed by cache invalidation.
type AccountService struct {
	repo     domain.IdentityRepository
	products domain.ProductRepository
	hasher   auth.PasswordHasher
	profiles *ProfileResolver
	now      func() time.Time

	// decoy is verified when there is no stored hash to check, so a failed
	// login costs the same whether or not the account exists.
	decoy string
}

func NewAccountService(
	repo domain.IdentityRepository,
	products domain.ProductRepository,
	hasher auth.PasswordHasher,
	profiles *ProfileResolver,
) *AccountService {
	decoy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		log.Warn().Err(err).Msg("Failed to derive decoy password hash")
	}
	return &AccountService{
		repo:     repo,
		products: products,
		hasher:   hasher,
		profiles: profiles,
		now:      time.Now,
		decoy:    decoy,
	}
}

func validateSeller(s *domain.SellerDetails) error {
	if s == nil {
		return fmt.Errorf("%w: seller details are required", domain.ErrInvalidInput)
	}
	for field, v := range map[string]string{
		"identity_card":   s.IdentityCard,
		"business_name":   s.BusinessName,
		"storefront_name": s.StorefrontName,
		"address":         s.Address,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, field)
		}
	}
	return nil
}

func (s *AccountService) newIdentity(in NewAccount, role domain.Role) (*domain.Identity, error) {
	if strings.TrimSpace(in.Username) == "" {
		return nil, fmt.Errorf("%w: username is required", domain.ErrInvalidInput)
	}
	if in.Password == "" {
		return nil, fmt.Errorf("%w: password is required", domain.ErrInvalidInput)
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	identity := &domain.Identity{
		Username:     strings.TrimSpace(in.Username),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hash,
		Role:         role,
		Scopes:       role.DefaultScopes(),
		FirstName:    in.FirstName,
		MiddleName:   in.MiddleName,
		LastName:     in.LastName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if role == domain.RoleSeller {
		seller := *in.Seller
		identity.Seller = &seller
	}
	return identity, nil
}

func (s *AccountService) create(
	ctx context.Context,
	in NewAccount,
	role domain.Role,
	insert func(context.Context, *domain.Identity) error,
) (*domain.Profile, error) {
	identity, err := s.newIdentity(in, role)
	if err != nil {
		return nil, err
	}
	if err := insert(ctx, identity); err != nil {
		audit.Log(audit.ActionAccountCreated, "", identity.Username, string(role), err)
		return nil, err
	}

	metrics.AccountsCreatedTotal.WithLabelValues(string(role)).Inc()
	audit.Log(audit.ActionAccountCreated, "", identity.Username, string(role), nil)
	// A stale negative lookup must not survive the create.
	s.profiles.Invalidate(ctx, []*domain.Identity{identity})
	return identity.Profile(), nil
}

// Register creates a customer or seller account.
func (s *AccountService) Register(ctx context.Context, role domain.Role, in NewAccount) (*domain.Profile, error) {
	switch role {
	case domain.RoleCustomer:
	case domain.RoleSeller:
		if err := validateSeller(in.Seller); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: cannot self-register as %s", domain.ErrInvalidInput, role)
	}
	return s.create(ctx, in, role, s.repo.Create)
}

// SetupAdmin creates the first admin. Once any admin exists it fails with
// ErrConflict; the store checks and inserts atomically.
func (s *AccountService) SetupAdmin(ctx context.Context, in NewAccount) (*domain.Profile, error) {
	return s.create(ctx, in, domain.RoleAdmin, s.repo.CreateFirstAdmin)
}

// Authenticate checks a password against the store, never the cache. Unknown
// identifiers and wrong passwords both yield ErrInvalidCredentials.
func (s *AccountService) Authenticate(ctx context.Context, identifier, password string) (*domain.Identity, error) {
	identity, err := s.repo.FindByIdentifier(ctx, identifier)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if identity == nil || identity.PasswordHash == "" {
		s.hasher.Verify(s.decoy, password)
		return nil, domain.ErrInvalidCredentials
	}
	if !s.hasher.Verify(identity.PasswordHash, password) {
		return nil, domain.ErrInvalidCredentials
	}
	return identity, nil
}

// GetProfile resolves a profile through the cache. When role is non-empty the
// identity must live in that partition, otherwise ErrNotFound.
func (s *AccountService) GetProfile(ctx context.Context, identifier string, role domain.Role) (*domain.Profile, error) {
	profile, err := s.profiles.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if role != "" && profile.Role != role {
		return nil, domain.ErrNotFound
	}
	return profile, nil
}

// List returns one page of profiles from a role partition.
func (s *AccountService) List(ctx context.Context, role domain.Role, offset, limit int) ([]*domain.Profile, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, role)
	}
	identities, err := s.repo.ListByRole(ctx, role, offset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Profile, 0, len(identities))
	for _, id := range identities {
		out = append(out, id.Profile())
	}
	return out, nil
}

// Update applies a partial profile update. When role is non-empty the
// identity must live in that partition.
func (s *AccountService) Update(ctx context.Context, actor, identifier string, role domain.Role, upd AccountUpdate) (*domain.Profile, error) {
	if role != "" {
		if _, err := s.repo.FindInRole(ctx, role, identifier); err != nil {
			return nil, err
		}
	}
	if upd.Seller != nil {
		if err := validateSeller(upd.Seller); err != nil {
			return nil, err
		}
	}
	iu := upd.toIdentityUpdate()
	if iu.IsEmpty() {
		return nil, fmt.Errorf("%w: nothing to update", domain.ErrInvalidInput)
	}

	identity, err := s.repo.Update(ctx, identifier, iu)
	audit.Log(audit.ActionAccountUpdated, actor, identifier, "", err)
	if err != nil {
		return nil, err
	}
	s.profiles.Invalidate(ctx, []*domain.Identity{identity}, identifier)
	return identity.Profile(), nil
}

// Delete removes an identity. It reports ErrNotFound when nothing was removed.
func (s *AccountService) Delete(ctx context.Context, actor, identifier string, role domain.Role) error {
	identity, err := s.lookup(ctx, identifier, role)
	if err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, identity.Username)
	if err == nil && !deleted {
		err = domain.ErrNotFound
	}
	audit.Log(audit.ActionAccountDeleted, actor, identifier, string(identity.Role), err)
	if err != nil {
		return err
	}
	s.profiles.Invalidate(ctx, []*domain.Identity{identity}, identifier)
	return nil
}

// ChangeRole migrates the identity to role with that role's default scopes.
// It returns changed=false without touching the store when the role is
// already current.
func (s *AccountService) ChangeRole(ctx context.Context, actor, identifier string, role domain.Role) (*domain.Profile, bool, error) {
	if !role.Valid() {
		return nil, false, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, role)
	}
	current, err := s.repo.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, false, err
	}
	if current.Role == role {
		return current.Profile(), false, nil
	}

	migrated, err := s.repo.MigrateRole(ctx, current.Username, role, role.DefaultScopes())
	audit.Log(audit.ActionRoleMigrated, actor, identifier, fmt.Sprintf("%s -> %s", current.Role, role), err)
	if err != nil {
		return nil, false, err
	}
	log.Info().Str("identifier", identifier).Str("from", string(current.Role)).Str("to", string(role)).Msg("Identity role migrated")
	s.profiles.Invalidate(ctx, []*domain.Identity{migrated}, identifier)
	return migrated.Profile(), true, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *AccountService) ChangePassword(ctx context.Context, identifier, current, next string) error {
	identity, err := s.Authenticate(ctx, identifier, current)
	if err != nil {
		return err
	}
	if next == "" {
		return fmt.Errorf("%w: new password is required", domain.ErrInvalidInput)
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = s.repo.Update(ctx, identity.Username, domain.IdentityUpdate{PasswordHash: &hash})
	audit.Log(audit.ActionPasswordChanged, identifier, identifier, "", err)
	if err != nil {
		return err
	}
	s.profiles.Invalidate(ctx, []*domain.Identity{identity}, identifier)
	return nil
}

// ChangeEmail sets a new contact email after checking the password. The email
// must not identify any other account.
func (s *AccountService) ChangeEmail(ctx context.Context, identifier, email, password string) (*domain.Profile, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	identity, err := s.Authenticate(ctx, identifier, password)
	if err != nil {
		return nil, err
	}

	other, err := s.repo.FindByIdentifier(ctx, email)
	switch {
	case err == nil && other.ID != identity.ID:
		return nil, fmt.Errorf("email already in use: %w", domain.ErrConflict)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	updated, err := s.repo.Update(ctx, identity.Username, domain.IdentityUpdate{Email: &email})
	audit.Log(audit.ActionEmailChanged, identifier, identifier, "", err)
	if err != nil {
		return nil, err
	}
	s.profiles.Invalidate(ctx, []*domain.Identity{identity, updated}, identifier)
	return updated.Profile(), nil
}

// Dashboard counts identities per partition and product categories.
func (s *AccountService) Dashboard(ctx context.Context) (*Dashboard, error) {
	d := &Dashboard{Users: make(map[domain.Role]int64, len(domain.Roles))}
	for _, role := range domain.Roles {
		n, err := s.repo.CountByRole(ctx, role)
		if err != nil {
			return nil, err
		}
		d.Users[role] = n
	}
	cats, err := s.products.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	d.Categories = len(cats)
	return d, nil
}

func (s *AccountService) lookup(ctx context.Context, identifier string, role domain.Role) (*domain.Identity, error) {
	if role != "" {
		return s.repo.FindInRole(ctx, role, identifier)
	}
	return s.repo.FindByIdentifier(ctx, identifier)
}
