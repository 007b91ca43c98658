// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/portal/internal/logging"
)

// ErrNATSNotRunning is returned when the embedded server died before or
// while being supervised.
var ErrNATSNotRunning = errors.New("embedded NATS server is not running")

// NATSServer is satisfied by *events.EmbeddedServer.
type NATSServer interface {
	IsRunning() bool
	Shutdown(ctx context.Context) error
}

// EmbeddedNATSService owns an embedded NATS server that was started before
// the tree, because the bus needs its client URL at construction time. It
// watches the server and shuts it down on cancel.
type EmbeddedNATSService struct {
	server          NATSServer
	checkInterval   time.Duration
	shutdownTimeout time.Duration
}

// NewEmbeddedNATSService wraps server.
func NewEmbeddedNATSService(server NATSServer, shutdownTimeout time.Duration) *EmbeddedNATSService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &EmbeddedNATSService{
		server:          server,
		checkInterval:   5 * time.Second,
		shutdownTimeout: shutdownTimeout,
	}
}

// Serve implements suture.Service. A server that stops on its own cannot
// be restarted in place, so that case ends supervision of this service.
func (s *EmbeddedNATSService) Serve(ctx context.Context) error {
	if !s.server.IsRunning() {
		return fmt.Errorf("%w: %w", ErrNATSNotRunning, suture.ErrDoNotRestart)
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case <-ticker.C:
			if !s.server.IsRunning() {
				logging.Error().Str("component", s.String()).Msg("Embedded NATS server stopped unexpectedly")
				return fmt.Errorf("%w: %w", ErrNATSNotRunning, suture.ErrDoNotRestart)
			}
		}
	}
}

func (s *EmbeddedNATSService) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		logging.Warn().Err(err).Str("component", s.String()).Msg("Embedded NATS shutdown incomplete")
	}
}

// String implements fmt.Stringer for suture logging.
func (s *EmbeddedNATSService) String() string { return "embedded-nats" }
