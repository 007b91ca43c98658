// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/portal/internal/auth"
	"github.com/tomtom215/portal/internal/logging"
	ws "github.com/tomtom215/portal/internal/websocket"
)

// WebSocket authenticates the handshake, upgrades the connection, registers
// it with the hub and binds it to the caller's personal room.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		logging.Warn().Msg("WebSocket connection rejected: hub not initialized")
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "WebSocket service unavailable", nil)
		return
	}

	token, subprotocol := auth.HandshakeCredential(r)
	identity, err := h.authn.Authenticate(token)
	if err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket handshake rejected")
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required", nil)
		return
	}

	var responseHeader http.Header
	if subprotocol != "" {
		responseHeader = http.Header{"Sec-WebSocket-Protocol": []string{subprotocol}}
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		logging.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := ws.NewClient(h.hub, conn, identity, h.service, h.clientOptions())
	if err := h.hub.Register(client); err != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	h.service.Connect(client)
	// The request context ends when this handler returns; the connection
	// outlives it but keeps its request-scoped log fields.
	client.Start(context.WithoutCancel(r.Context()))
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin accepts origins from ws_allowed_origins, falling back
// to the CORS origins when that list is empty. A missing Origin header is
// only accepted under a "*" entry.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	if h.config == nil {
		return true
	}

	allowed := h.config.Security.AllowedWSOrigins
	if len(allowed) == 0 {
		allowed = h.config.Security.CORSOrigins
	}

	origin := r.Header.Get("Origin")
	for _, allowedOrigin := range allowed {
		if allowedOrigin == "*" || (origin != "" && allowedOrigin == origin) {
			return true
		}
	}

	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
	} else {
		logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	}
	return false
}

func (h *Handler) clientOptions() ws.ClientOptions {
	if h.config == nil {
		return ws.ClientOptions{}
	}
	return ws.ClientOptions{
		SendBuffer:   h.config.WebSocket.SendBuffer,
		InboundRate:  h.config.WebSocket.InboundRate,
		InboundBurst: h.config.WebSocket.InboundBurst,
	}
}
