// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

// Package websocket manages persistent client connections and the named
// rooms they belong to.
//
// A room is a set of clients keyed by name (user:<id> or project:<id>).
// Join and Leave are the only mutators. Emission encodes an event once and
// offers it to every client in the room without blocking; a client whose
// send buffer is full is evicted rather than allowed to stall the room.
// Emission is synchronous, so events emitted by one goroutine reach each
// client's buffer in emission order.
package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/portal/internal/logging"
	"github.com/tomtom215/portal/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// ErrHubClosed is returned by Register while the hub is shut down.
var ErrHubClosed = errors.New("websocket hub is not accepting connections")

// Hub tracks connected clients and rooms.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*Client]struct{}
	rooms     map[string]map[*Client]struct{}
	accepting bool
}

// NewHub creates a hub that accepts connections immediately.
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*Client]struct{}),
		rooms:     make(map[string]map[*Client]struct{}),
		accepting: true,
	}
}

// Register adds c to the hub. It fails while the hub is shut down.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.accepting {
		return ErrHubClosed
	}
	if c.closed {
		return ErrHubClosed
	}
	h.clients[c] = struct{}{}
	metrics.WSConnectionsActive.Set(float64(len(h.clients)))

	logging.Debug().
		Uint64("client_id", c.id).
		Str("user_id", c.identity.ID).
		Int("total_clients", len(h.clients)).
		Msg("websocket client connected")
	return nil
}

// Unregister removes c from every room and closes its send buffer. Safe to
// call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.detachLocked(c, websocket.CloseNormalClosure, "") {
		logging.Debug().
			Uint64("client_id", c.id).
			Str("user_id", c.identity.ID).
			Int("total_clients", len(h.clients)).
			Msg("websocket client disconnected")
	}
}

// detachLocked must be called with h.mu held for writing.
func (h *Hub) detachLocked(c *Client, code int, reason string) bool {
	if c.closed {
		return false
	}
	c.closed = true
	c.closeCode, c.closeText = code, reason

	for room := range c.rooms {
		h.removeFromRoomLocked(room, c)
	}
	c.rooms = nil
	delete(h.clients, c)
	close(c.send)
	metrics.WSConnectionsActive.Set(float64(len(h.clients)))
	return true
}

func (h *Hub) removeFromRoomLocked(room string, c *Client) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Join adds c to room. It reports whether c was newly added; joining a room
// twice is a no-op. Closed clients are ignored.
func (h *Hub) Join(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return false
	}
	if _, ok := c.rooms[room]; ok {
		return false
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
	return true
}

// Leave removes c from room.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := c.rooms[room]; !ok {
		return
	}
	delete(c.rooms, room)
	h.removeFromRoomLocked(room, c)
}

// InRoom reports whether c is currently in room.
func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// RoomSize returns the number of clients in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Clients returns the clients in room ordered by connection id.
func (h *Hub) Clients(room string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// GetClientCount returns the number of registered clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Emit sends evt to every client in room except the given one, which may be
// nil. It returns the number of clients the event was queued for.
func (h *Hub) Emit(room string, evt ServerEvent, except *Client) int {
	data, err := evt.Encode()
	if err != nil {
		logging.Error().Err(err).Str("event", evt.Type).Msg("Failed to encode server event")
		return 0
	}

	h.mu.RLock()
	members := h.rooms[room]
	targets := make([]*Client, 0, len(members))
	for c := range members {
		if c != except {
			targets = append(targets, c)
		}
	}
	// Ordered by connection id so delivery order is reproducible in tests.
	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })

	sent := 0
	var slow []*Client
	for _, c := range targets {
		if c.offer(data) {
			sent++
		} else {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	metrics.RecordWSEvent("out", evt.Type)
	h.evict(slow)
	return sent
}

// Send queues evt for a single client.
func (h *Hub) Send(c *Client, evt ServerEvent) bool {
	data, err := evt.Encode()
	if err != nil {
		logging.Error().Err(err).Str("event", evt.Type).Msg("Failed to encode server event")
		return false
	}

	h.mu.RLock()
	ok := c.offer(data)
	h.mu.RUnlock()

	if !ok {
		h.evict([]*Client{c})
		return false
	}
	metrics.RecordWSEvent("out", evt.Type)
	return true
}

// evict drops clients whose send buffer is full.
func (h *Hub) evict(clients []*Client) {
	if len(clients) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range clients {
		if h.detachLocked(c, websocket.ClosePolicyViolation, "send buffer full") {
			metrics.WSDroppedClients.Inc()
			logging.Warn().
				Uint64("client_id", c.id).
				Str("user_id", c.identity.ID).
				Msg("Evicting slow websocket client")
		}
	}
}

// RunWithContext blocks until ctx is canceled, then closes every client and
// stops accepting new ones. A later call accepts connections again, so the
// hub can run under a supervisor.
func (h *Hub) RunWithContext(ctx context.Context) error {
	h.mu.Lock()
	h.accepting = true
	h.mu.Unlock()

	logging.Info().Str("component", "websocket-hub").Msg("websocket hub started")

	<-ctx.Done()
	h.logGracefulShutdown(ctx)
	return ctx.Err()
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// closeAllClients closes every client in id order with a going-away frame.
func (h *Hub) closeAllClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.accepting = false

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, c := range clients {
		h.detachLocked(c, websocket.CloseGoingAway, "server shutting down")
	}
	return len(clients)
}
