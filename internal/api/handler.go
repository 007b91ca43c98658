// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

// Package api is the HTTP surface of the collaboration core: the WebSocket
// upgrade, the caller-facing notification and history endpoints, and the
// internal endpoints the rest of the portal uses to sync membership and
// report mutations.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/portal/internal/auth"
	"github.com/tomtom215/portal/internal/collab"
	"github.com/tomtom215/portal/internal/config"
	"github.com/tomtom215/portal/internal/events"
	"github.com/tomtom215/portal/internal/membership"
	"github.com/tomtom215/portal/internal/models"
	ws "github.com/tomtom215/portal/internal/websocket"
)

// Publisher queues a mutation for asynchronous processing.
type Publisher interface {
	Publish(ctx context.Context, m events.Mutation) error
}

// Handler holds the dependencies of every HTTP endpoint.
type Handler struct {
	config    *config.Config
	service   *collab.Service
	hub       *ws.Hub
	directory *membership.Directory
	authn     auth.Authenticator
	publisher Publisher
	startTime time.Time
}

// NewHandler creates the HTTP handler set. publisher may be nil, in which
// case asynchronous bump requests are rejected with 503.
func NewHandler(cfg *config.Config, service *collab.Service, hub *ws.Hub, directory *membership.Directory, authn auth.Authenticator, publisher Publisher) *Handler {
	return &Handler{
		config:    cfg,
		service:   service,
		hub:       hub,
		directory: directory,
		authn:     authn,
		publisher: publisher,
		startTime: time.Now(),
	}
}

// identity returns the caller stored by the auth middleware.
func identity(r *http.Request) models.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}
