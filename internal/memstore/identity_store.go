// Package memstore holds in-process implementations of the store contracts,
// used for single-node development and tests.
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

// IdentityStore is a mutex-guarded domain.IdentityRepository. Every method
// observes and produces a consistent snapshot, so partition moves are atomic.
type IdentityStore struct {
	mu      sync.RWMutex
	records map[string]*domain.Identity // by ID
	keys    map[string]string           // normalized username/email -> ID
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		records: make(map[string]*domain.Identity),
		keys:    make(map[string]string),
	}
}

func (s *IdentityStore) lookup(identifier string) *domain.Identity {
	id, ok := s.keys[domain.NormalizeIdentifier(identifier)]
	if !ok {
		return nil
	}
	return s.records[id]
}

func (s *IdentityStore) FindByIdentifier(_ context.Context, identifier string) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := s.lookup(identifier)
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	return cloneIdentity(rec), nil
}

func (s *IdentityStore) FindInRole(_ context.Context, role domain.Role, identifier string) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := s.lookup(identifier)
	if rec == nil || rec.Role != role {
		return nil, domain.ErrNotFound
	}
	return cloneIdentity(rec), nil
}

func prepare(identity *domain.Identity) error {
	if !identity.Role.Valid() {
		return fmt.Errorf("%w: role %q", domain.ErrInvalidInput, identity.Role)
	}
	identity.Normalize()
	if identity.UsernameKey == "" {
		return fmt.Errorf("%w: empty username", domain.ErrInvalidInput)
	}
	return nil
}

func (s *IdentityStore) Create(_ context.Context, identity *domain.Identity) error {
	if err := prepare(identity); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(identity)
}

func (s *IdentityStore) CreateFirstAdmin(_ context.Context, identity *domain.Identity) error {
	identity.Role = domain.RoleAdmin
	if err := prepare(identity); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.Role == domain.RoleAdmin {
			return fmt.Errorf("admin already exists: %w", domain.ErrConflict)
		}
	}
	return s.insertLocked(identity)
}

// insertLocked requires s.mu held for writing.
func (s *IdentityStore) insertLocked(identity *domain.Identity) error {
	for _, k := range identity.Keys() {
		if _, taken := s.keys[k]; taken {
			return fmt.Errorf("identifier %q: %w", k, domain.ErrConflict)
		}
	}

	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	identity.UpdatedAt = now

	rec := cloneIdentity(identity)
	s.records[rec.ID] = rec
	for _, k := range rec.Keys() {
		s.keys[k] = rec.ID
	}
	return nil
}

func (s *IdentityStore) Update(_ context.Context, identifier string, upd domain.IdentityUpdate) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.lookup(identifier)
	if rec == nil {
		return nil, domain.ErrNotFound
	}

	next := cloneIdentity(rec)
	applyIdentityUpdate(next, upd)
	next.Normalize()

	for _, k := range next.Keys() {
		if owner, taken := s.keys[k]; taken && owner != rec.ID {
			return nil, fmt.Errorf("identifier %q: %w", k, domain.ErrConflict)
		}
	}
	for _, k := range rec.Keys() {
		delete(s.keys, k)
	}
	for _, k := range next.Keys() {
		s.keys[k] = next.ID
	}
	next.UpdatedAt = time.Now().UTC()
	s.records[next.ID] = next

	return cloneIdentity(next), nil
}

func (s *IdentityStore) Delete(_ context.Context, identifier string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.lookup(identifier)
	if rec == nil {
		return false, nil
	}
	for _, k := range rec.Keys() {
		delete(s.keys, k)
	}
	delete(s.records, rec.ID)
	return true, nil
}

func (s *IdentityStore) MigrateRole(_ context.Context, identifier string, role domain.Role, scopes []domain.Scope) (*domain.Identity, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: role %q", domain.ErrInvalidInput, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.lookup(identifier)
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	next := cloneIdentity(rec)
	next.Role = role
	next.Scopes = append([]domain.Scope(nil), scopes...)
	next.UpdatedAt = time.Now().UTC()
	s.records[next.ID] = next

	return cloneIdentity(next), nil
}

func (s *IdentityStore) ListByRole(_ context.Context, role domain.Role, offset, limit int) ([]*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Identity
	for _, rec := range s.records {
		if rec.Role == role {
			out = append(out, cloneIdentity(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].UsernameKey < out[j].UsernameKey
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return page(out, offset, limit), nil
}

func (s *IdentityStore) CountByRole(_ context.Context, role domain.Role) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, rec := range s.records {
		if rec.Role == role {
			n++
		}
	}
	return n, nil
}

func applyIdentityUpdate(rec *domain.Identity, upd domain.IdentityUpdate) {
	if upd.Email != nil {
		rec.Email = *upd.Email
	}
	if upd.PasswordHash != nil {
		rec.PasswordHash = *upd.PasswordHash
	}
	if upd.FirstName != nil {
		rec.FirstName = *upd.FirstName
	}
	if upd.MiddleName != nil {
		rec.MiddleName = *upd.MiddleName
	}
	if upd.LastName != nil {
		rec.LastName = *upd.LastName
	}
	if upd.Seller != nil {
		s := *upd.Seller
		rec.Seller = &s
	}
}

func cloneIdentity(in *domain.Identity) *domain.Identity {
	out := *in
	out.Scopes = append([]domain.Scope(nil), in.Scopes...)
	if in.Seller != nil {
		s := *in.Seller
		out.Seller = &s
	}
	return &out
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var _ domain.IdentityRepository = (*IdentityStore)(nil)
