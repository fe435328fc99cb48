package domain

import "context"

type principalKey struct{}

// Principal is the caller resolved by the access gate.
type Principal struct {
	Claims  *TokenClaims
	Profile *Profile
}

// WithPrincipal stores the resolved caller in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext retrieves the caller stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
