// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

// Package auth is the session authenticator. It verifies HS256 bearer
// tokens issued by the portal and turns them into a models.Identity.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/portal/internal/config"
	"github.com/tomtom215/portal/internal/models"
)

// ErrUnauthorized is wrapped by every authentication failure.
var ErrUnauthorized = errors.New("unauthorized")

// Claims are the JWT claims carried by a portal session token.
// The subject is the user id.
type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager signs and validates session tokens.
type JWTManager struct {
	secret  []byte
	timeout time.Duration
	now     func() time.Time
}

// NewJWTManager creates a token manager from the security configuration.
// An empty secret is rejected.
func NewJWTManager(cfg *config.SecurityConfig) (*JWTManager, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but was empty")
	}
	timeout := cfg.TokenTTL
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	return &JWTManager{
		secret:  []byte(cfg.JWTSecret),
		timeout: timeout,
		now:     time.Now,
	}, nil
}

// Issue mints a signed token for identity, valid for the configured TTL.
func (m *JWTManager) Issue(identity models.Identity) (string, error) {
	return m.IssueWithTTL(identity, m.timeout)
}

// IssueWithTTL mints a signed token with an explicit lifetime.
// A negative ttl yields an already-expired token.
func (m *JWTManager) IssueWithTTL(identity models.Identity, ttl time.Duration) (string, error) {
	now := m.now()
	claims := &Claims{
		Name: identity.DisplayName,
		Role: identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies signature, algorithm and expiry and returns the claims.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", ErrUnauthorized)
	}
	return claims, nil
}

// Authenticate validates a bearer credential and returns the normalized identity.
func (m *JWTManager) Authenticate(tokenString string) (models.Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return models.Identity{}, fmt.Errorf("%w: missing credential", ErrUnauthorized)
	}

	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return models.Identity{}, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return models.Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}

	name := strings.TrimSpace(claims.Name)
	if name == "" {
		name = claims.Subject
	}
	return models.Identity{
		ID:          claims.Subject,
		DisplayName: name,
		Role:        models.NormalizeRole(claims.Role),
	}, nil
}
