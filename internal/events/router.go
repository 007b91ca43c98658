// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"

	"github.com/tomtom215/portal/internal/logging"
	"github.com/tomtom215/portal/internal/metrics"
)

// MutationHandler applies one mutation. Returning an error retries the
// message; handlers return nil for mutations that can never succeed.
type MutationHandler interface {
	HandleMutation(ctx context.Context, m Mutation) error
}

// MutationHandlerFunc adapts a function to MutationHandler.
type MutationHandlerFunc func(ctx context.Context, m Mutation) error

// HandleMutation calls f.
func (f MutationHandlerFunc) HandleMutation(ctx context.Context, m Mutation) error {
	return f(ctx, m)
}

// RouterConfig configures retry and shutdown behavior.
type RouterConfig struct {
	CloseTimeout         time.Duration
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64
}

// DefaultRouterConfig returns production defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         10 * time.Second,
		RetryMaxRetries:      3,
		RetryInitialInterval: 100 * time.Millisecond,
		RetryMaxInterval:     2 * time.Second,
		RetryMultiplier:      2.0,
	}
}

// Router consumes mutations from a Bus and dispatches them to a handler.
// Each Serve call builds a fresh watermill router so the supervisor can
// restart it.
type Router struct {
	bus     *Bus
	handler MutationHandler
	config  RouterConfig
	logger  watermill.LoggerAdapter

	readyOnce sync.Once
	ready     chan struct{}
}

// NewRouter creates a router for bus.
func NewRouter(bus *Bus, handler MutationHandler, cfg *RouterConfig, logger watermill.LoggerAdapter) *Router {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if cfg == nil {
		defaultCfg := DefaultRouterConfig()
		cfg = &defaultCfg
	}
	return &Router{
		bus:     bus,
		handler: handler,
		config:  *cfg,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the first router run is subscribed.
func (r *Router) Ready() <-chan struct{} {
	return r.ready
}

// Serve runs the router until ctx is canceled. It implements suture.Service.
func (r *Router) Serve(ctx context.Context) error {
	wm, err := r.build()
	if err != nil {
		return err
	}

	go func() {
		select {
		case <-wm.Running():
			r.readyOnce.Do(func() { close(r.ready) })
		case <-ctx.Done():
		}
	}()

	err = wm.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// String implements fmt.Stringer for suture logging.
func (r *Router) String() string { return "mutation-router" }

// build assembles the watermill router. Middleware order, outer to inner:
// ack after exhausted retries, retry with backoff, panic recovery.
func (r *Router) build() (*message.Router, error) {
	wm, err := message.NewRouter(message.RouterConfig{CloseTimeout: r.config.CloseTimeout}, r.logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	wm.AddMiddleware(ackExhausted)

	retry := middleware.Retry{
		MaxRetries:      r.config.RetryMaxRetries,
		InitialInterval: r.config.RetryInitialInterval,
		MaxInterval:     r.config.RetryMaxInterval,
		Multiplier:      r.config.RetryMultiplier,
		Logger:          r.logger,
	}
	wm.AddMiddleware(retry.Middleware)
	wm.AddMiddleware(middleware.Recoverer)

	wm.AddConsumerHandler("portal-mutations", r.bus.Topic(), r.bus.Subscriber(), r.handle)
	return wm, nil
}

func (r *Router) handle(msg *message.Message) error {
	var m Mutation
	if err := json.Unmarshal(msg.Payload, &m); err != nil {
		metrics.RecordMutation("malformed", err)
		logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping malformed mutation")
		return nil
	}
	if !m.Kind.Valid() {
		metrics.RecordMutation("unknown", ErrUnknownKind)
		logging.Warn().Str("kind", string(m.Kind)).Str("message_id", msg.UUID).Msg("Dropping mutation of unknown kind")
		return nil
	}

	err := r.handler.HandleMutation(msg.Context(), m)
	metrics.RecordMutation(string(m.Kind), err)
	return err
}

// ackExhausted acks messages whose handler still fails after every retry.
func ackExhausted(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		out, err := h(msg)
		if err != nil {
			logging.Error().Err(err).Str("message_id", msg.UUID).Msg("Mutation failed after retries, dropping")
			return nil, nil
		}
		return out, nil
	}
}
