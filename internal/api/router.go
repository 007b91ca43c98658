// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/portal/internal/auth"
	"github.com/tomtom215/portal/internal/authz"
	"github.com/tomtom215/portal/internal/middleware"
)

// Router binds handlers to routes and middleware.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	authn         *auth.Middleware
	authz         *authz.Middleware
}

// NewRouter creates a router.
func NewRouter(handler *Handler, chiMW *ChiMiddleware, authn *auth.Middleware, authzMW *authz.Middleware) *Router {
	return &Router{
		handler:       handler,
		chiMiddleware: chiMW,
		authn:         authn,
		authz:         authzMW,
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied in order
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(middleware.PrometheusMetrics)

		// Unauthenticated, or authenticated at the handshake
		r.Get("/health", router.handler.Health)
		r.Get("/ws", router.handler.WebSocket)

		r.Group(func(r chi.Router) {
			r.Use(router.authn.RequireIdentity)
			r.Use(router.authz.AuthorizeRequest)

			r.Get("/notifications", router.handler.Notifications)
			r.Post("/notifications/read", router.handler.MarkNotificationsRead)
			r.Get("/projects/{projectID}/messages", router.handler.ProjectMessages)

			// Portal back-end only (service role)
			r.Route("/internal", func(r chi.Router) {
				r.Put("/projects/{projectID}", router.handler.PutProject)
				r.Delete("/projects/{projectID}", router.handler.DeleteProject)
				r.Post("/projects/{projectID}/uploads", router.handler.InternalUpload)
				r.Post("/projects/{projectID}/changes", router.handler.InternalProjectChange)
				r.Post("/projects/{projectID}/invites", router.handler.InternalInvite)
				r.Post("/users/changes", router.handler.InternalUserChange)
			})
		})
	})

	return r
}
