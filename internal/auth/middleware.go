// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package auth

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/portal/internal/logging"
	"github.com/tomtom215/portal/internal/models"
)

type contextKey string

// IdentityContextKey stores the authenticated models.Identity.
const IdentityContextKey contextKey = "identity"

// Authenticator turns a bearer credential into an identity.
type Authenticator interface {
	Authenticate(token string) (models.Identity, error)
}

// Middleware enforces bearer authentication on REST routes.
type Middleware struct {
	authn Authenticator
}

// NewMiddleware creates authentication middleware backed by authn.
func NewMiddleware(authn Authenticator) *Middleware {
	return &Middleware{authn: authn}
}

// RequireIdentity rejects requests without a valid bearer token with 401 and
// stores the identity in the request context otherwise.
func (m *Middleware) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.authn.Authenticate(BearerFromHeader(r))
		if err != nil {
			logging.Ctx(r.Context()).Debug().Err(err).Str("path", r.URL.Path).Msg("Request authentication failed")
			writeUnauthorized(w)
			return
		}
		ctx := ContextWithIdentity(r.Context(), identity)
		ctx = logging.ContextWithUserID(ctx, identity.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ContextWithIdentity returns ctx carrying identity.
func ContextWithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

// IdentityFromContext returns the identity stored by RequireIdentity.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(models.Identity)
	return identity, ok
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="portal"`)
	w.WriteHeader(http.StatusUnauthorized)
	//nolint:errcheck // best-effort error body
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: models.APIError{
		Code:    "UNAUTHORIZED",
		Message: "Authentication required",
	}})
}
