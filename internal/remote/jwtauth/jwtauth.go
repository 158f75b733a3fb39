// Package jwtauth adapts the teacher's internal/auth/jwt.go into a
// minimal AuthContext port implementation: this spec's AuthContext only
// needs a user_id, so only the HS256 (backend/dev) signing path survives
// the generalization — no JWKS cache, no RS256 upstream-IdP support.
package jwtauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fieldsync/core/internal/ports"
)

// AuthContext resolves the current user from a bearer token installed with
// SetToken — the device holds exactly one session at a time, so
// unlike the teacher's per-request middleware this is set once at login.
type AuthContext struct {
	secret []byte
	token  string
}

func New(secret string) *AuthContext {
	return &AuthContext{secret: []byte(secret)}
}

// SetToken installs the current session's bearer token. Call after a
// successful login; clear with SetToken("") on logout.
func (a *AuthContext) SetToken(token string) {
	a.token = token
}

func (a *AuthContext) CurrentUser(ctx context.Context) (*ports.User, error) {
	if a.token == "" {
		return nil, nil
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(a.token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("jwt validation failed: %w", err)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.New("token missing sub claim")
	}
	return &ports.User{UserID: sub}, nil
}

// StaticAuthContext is a fixed-user AuthContext that needs no token. The
// cmd/fieldsync wiring does not use it; it always builds a token-based
// AuthContext.
type StaticAuthContext struct {
	User *ports.User
}

func (s *StaticAuthContext) CurrentUser(ctx context.Context) (*ports.User, error) {
	return s.User, nil
}
