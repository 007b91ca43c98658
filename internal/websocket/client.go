// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package websocket

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/portal/internal/logging"
	"github.com/tomtom215/portal/internal/metrics"
	"github.com/tomtom215/portal/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB

	// DefaultSendBuffer is the per-connection outbound queue length.
	DefaultSendBuffer = 256
)

// clientIDCounter hands out monotonically increasing connection ids.
var clientIDCounter atomic.Uint64

// EventHandler processes decoded client events. Calls for one client are
// sequential.
type EventHandler interface {
	HandleEvent(ctx context.Context, c *Client, evt ClientEvent)
}

// ClientOptions tunes buffers and inbound throttling.
type ClientOptions struct {
	SendBuffer int
	// InboundRate is events per second; zero disables throttling.
	InboundRate  float64
	InboundBurst int
}

// Client is one authenticated connection.
type Client struct {
	id       uint64
	hub      *Hub
	conn     *websocket.Conn
	identity models.Identity
	handler  EventHandler
	limiter  *rate.Limiter
	send     chan []byte

	// Guarded by hub.mu.
	rooms     map[string]struct{}
	closed    bool
	closeCode int
	closeText string
}

// NewClient creates a client for an upgraded connection. conn may be nil in
// tests that only exercise rooms.
func NewClient(hub *Hub, conn *websocket.Conn, identity models.Identity, handler EventHandler, opts ClientOptions) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	var limiter *rate.Limiter
	if opts.InboundRate > 0 {
		burst := opts.InboundBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.InboundRate), burst)
	}

	return &Client{
		id:       clientIDCounter.Add(1),
		hub:      hub,
		conn:     conn,
		identity: identity,
		handler:  handler,
		limiter:  limiter,
		send:     make(chan []byte, opts.SendBuffer),
		rooms:    make(map[string]struct{}),
	}
}

// ID returns the connection id.
func (c *Client) ID() uint64 { return c.id }

// Identity returns the authenticated user behind the connection.
func (c *Client) Identity() models.Identity { return c.identity }

// offer queues data without blocking. Must be called with hub.mu held.
func (c *Client) offer(data []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// readPump decodes inbound frames and hands them to the handler until the
// connection fails or the hub closes it.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	log := logging.With().
		Str("component", "websocket-client").
		Uint64("client_id", c.id).
		Str("user_id", c.identity.ID).
		Logger()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("unexpected websocket close error")
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			metrics.RecordWSEvent("in", "throttled")
			log.Warn().Msg("Dropping inbound event over rate limit")
			continue
		}

		evt, err := DecodeClientEvent(data)
		if err != nil {
			if errors.Is(err, ErrUnknownEvent) {
				metrics.RecordWSEvent("in", "unknown")
			} else {
				metrics.RecordWSEvent("in", "malformed")
			}
			log.Debug().Err(err).Msg("Ignoring inbound event")
			continue
		}

		metrics.RecordWSEvent("in", evt.EventType())
		c.handler.HandleEvent(ctx, c, evt)
	}
}

// writePump writes queued frames and keepalive pings. It sends a close frame
// once the hub closes the send buffer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				code, text := c.closeFrame()
				if err := c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text)); err != nil {
					logging.Debug().Err(err).Msg("failed to write close message")
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) closeFrame() (int, string) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.closeCode == 0 {
		return websocket.CloseNormalClosure, ""
	}
	return c.closeCode, c.closeText
}

// Start runs the pumps. ctx is passed to the event handler and should live
// as long as the connection's server.
func (c *Client) Start(ctx context.Context) {
	go c.writePump()
	go c.readPump(ctx)
}
