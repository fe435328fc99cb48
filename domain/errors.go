package domain

import "errors"

// Error kinds shared by every layer. Adapters wrap these with fmt.Errorf and
// the HTTP layer maps them to status codes.
var (
	ErrMissingToken       = errors.New("missing bearer token")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")
	ErrRevokedToken       = errors.New("token has been revoked")
	ErrForbidden          = errors.New("insufficient scope")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrUnavailable        = errors.New("backend unavailable")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrInvalidInput       = errors.New("invalid input")
)
