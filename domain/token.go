package domain

import "time"

// TokenClaims is the verified payload of a session token.
type TokenClaims struct {
	Subject   string
	Role      Role
	Scopes    []Scope
	ID        string // jti
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Remaining is the lifetime left at now, never negative.
func (c *TokenClaims) Remaining(now time.Time) time.Duration {
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// IssuedToken is a freshly minted session token.
type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
	Subject   string
	Role      Role
	Scopes    []Scope
}
