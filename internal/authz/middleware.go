// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package authz

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/portal/internal/auth"
	"github.com/tomtom215/portal/internal/logging"
	"github.com/tomtom215/portal/internal/models"
)

// Middleware authorizes requests by the caller's role, request path and method.
// It must run after auth.Middleware.RequireIdentity.
type Middleware struct {
	enforcer *Enforcer
}

// NewMiddleware creates authorization middleware.
func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{enforcer: enforcer}
}

// AuthorizeRequest rejects requests the caller's role may not perform with 403.
func (m *Middleware) AuthorizeRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "No authentication context")
			return
		}

		allowed, err := m.enforcer.Enforce(identity.Role, r.URL.Path, r.Method)
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Msg("Authorization error")
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
			return
		}
		if !allowed {
			logging.Ctx(r.Context()).Warn().
				Str("role", identity.Role).
				Str("path", r.URL.Path).
				Str("method", r.Method).
				Msg("Request denied by policy")
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // best-effort error body
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: models.APIError{Code: code, Message: message}})
}
