package domain

import (
	"fmt"
	"slices"
)

// Role is the partition an identity lives in. The value doubles as the
// collection name of that partition.
type Role string

const (
	RoleAdmin    Role = "admins"
	RoleSeller   Role = "sellers"
	RoleCustomer Role = "customers"
)

// Roles lists every partition in lookup order.
var Roles = []Role{RoleAdmin, RoleSeller, RoleCustomer}

// Scope is a capability tag required by protected operations.
type Scope string

const (
	ScopeAdmin    Scope = "admin"
	ScopeSeller   Scope = "seller"
	ScopeCustomer Scope = "customer"
)

func (r Role) Valid() bool {
	return slices.Contains(Roles, r)
}

func (r Role) String() string { return string(r) }

// DefaultScopes returns the scope set granted to a freshly created or migrated
// identity of this role.
func (r Role) DefaultScopes() []Scope {
	switch r {
	case RoleAdmin:
		return []Scope{ScopeAdmin}
	case RoleSeller:
		return []Scope{ScopeSeller}
	case RoleCustomer:
		return []Scope{ScopeCustomer}
	}
	return nil
}

// ParseRole accepts both the partition name ("sellers") and the singular
// scope-like form ("seller").
func ParseRole(s string) (Role, error) {
	switch s {
	case "admins", "admin":
		return RoleAdmin, nil
	case "sellers", "seller":
		return RoleSeller, nil
	case "customers", "customer":
		return RoleCustomer, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
}

func (s Scope) Valid() bool {
	return s == ScopeAdmin || s == ScopeSeller || s == ScopeCustomer
}

// ParseScopes converts raw scope strings, rejecting unknown values.
func ParseScopes(raw []string) ([]Scope, error) {
	out := make([]Scope, 0, len(raw))
	for _, s := range raw {
		sc := Scope(s)
		if !sc.Valid() {
			return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidInput, s)
		}
		if !slices.Contains(out, sc) {
			out = append(out, sc)
		}
	}
	return out, nil
}

// HasAllScopes reports whether every required scope is present in granted.
// An empty requirement is always satisfied.
func HasAllScopes(granted []Scope, required ...Scope) bool {
	for _, r := range required {
		if !slices.Contains(granted, r) {
			return false
		}
	}
	return true
}

// ScopeStrings is used when scopes cross a wire boundary.
func ScopeStrings(scopes []Scope) []string {
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = string(s)
	}
	return out
}
