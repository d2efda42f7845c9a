// Package auth verifies bearer tokens and issues API tokens.
//
// An API token has the form "<uid>.<secret>". Only a bcrypt hash of the
// secret is stored.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("missing bearer token")
)

const secretBytes = 32

// Verifier resolves a bearer token to a user id
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// TokenHashLookup returns the stored bcrypt hash for a user
type TokenHashLookup interface {
	GetAPITokenHash(ctx context.Context, userID string) (string, error)
}

// APITokenVerifier checks "<uid>.<secret>" tokens against stored hashes
type APITokenVerifier struct {
	lookup TokenHashLookup
}

// NewAPITokenVerifier creates a verifier backed by lookup
func NewAPITokenVerifier(lookup TokenHashLookup) *APITokenVerifier {
	return &APITokenVerifier{lookup: lookup}
}

// VerifyToken implements Verifier. Lookup failures other than a bad
// token are returned wrapped so callers can tell them apart.
func (v *APITokenVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	uid, secret, ok := SplitToken(token)
	if !ok {
		return "", ErrInvalidToken
	}

	hash, err := v.lookup.GetAPITokenHash(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if hash == "" {
		return "", ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return "", ErrInvalidToken
	}
	return uid, nil
}

// IssueToken generates a new token for uid and the hash to store for it
func IssueToken(uid string) (token string, hash string, err error) {
	if uid == "" || strings.Contains(uid, ".") {
		return "", "", fmt.Errorf("invalid user id %q", uid)
	}
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)

	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash token: %w", err)
	}
	return uid + "." + secret, string(hashed), nil
}

// SplitToken separates a token into uid and secret
func SplitToken(token string) (uid, secret string, ok bool) {
	uid, secret, ok = strings.Cut(strings.TrimSpace(token), ".")
	if !ok || uid == "" || secret == "" {
		return "", "", false
	}
	return uid, secret, true
}

// StaticVerifier accepts a fixed token -> uid table, for local development
type StaticVerifier struct {
	tokens map[string]string
}

// NewStaticVerifier creates a verifier over tokens
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	copied := make(map[string]string, len(tokens))
	for k, v := range tokens {
		copied[k] = v
	}
	return &StaticVerifier{tokens: copied}
}

// VerifyToken implements Verifier
func (v *StaticVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	for known, uid := range v.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return uid, nil
		}
	}
	return "", ErrInvalidToken
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
