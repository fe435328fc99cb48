package federation

import (
	"context"
)

// ExternalUserInfo holds standardized user information retrieved from an external OAuth2 provider.
type ExternalUserInfo struct {
	ProviderUserID string // the provider's subject, e.g. Google's 'sub'
	Email          string
	EmailVerified  bool
	FirstName      string
	LastName       string
	PictureURL     string
}

// Provider is an external OAuth2 identity provider. Only the verified
// profile claims cross this boundary; the consent flow stays with the
// provider.
type Provider interface {
	// Name returns the unique identifier for the provider (e.g. "google").
	Name() string

	// AuthCodeURL generates the authorization URL the user should be redirected to.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for the user's profile claims.
	Exchange(ctx context.Context, code string) (*ExternalUserInfo, error)
}
