package services

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidKeyID = errors.New("invalid key id")

// TokenSigner signs session tokens with a single RSA key pair. Verifiers only
// ever see the public half.
type TokenSigner struct {
	keyID string
	key   *rsa.PrivateKey
}

// NewTokenSigner creates a new Signer instance. The key id is derived from the
// public key so that every process sharing a key agrees on it.
func NewTokenSigner(key *rsa.PrivateKey) (*TokenSigner, error) {
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)

	return &TokenSigner{
		keyID: hex.EncodeToString(sum[:8]),
		key:   key,
	}, nil
}

func (s *TokenSigner) PublicKey() *rsa.PublicKey { return &s.key.PublicKey }

// Sign produces a compact RS256 JWS.
func (s *TokenSigner) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keyID

	tokenString, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Keyfunc resolves the verification key for jwt.Parse.
func (s *TokenSigner) Keyfunc(token *jwt.Token) (interface{}, error) {
	if kid, ok := token.Header["kid"].(string); ok && kid != s.keyID {
		return nil, ErrInvalidKeyID
	}
	return s.PublicKey(), nil
}
