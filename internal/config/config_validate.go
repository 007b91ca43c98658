// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package config

import (
	"fmt"
	"strings"
)

// minJWTSecretLength is the minimum HS256 secret length in bytes.
const minJWTSecretLength = 32

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validatePersistence(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	return c.validateWebSocket()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: HTTP_PORT must be between 1 and 65535, got %d", ErrInvalidConfig, c.Server.Port)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if len(c.Security.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("%w: JWT_SECRET must be at least %d characters", ErrInvalidConfig, minJWTSecretLength)
	}
	if c.Security.TokenTTL <= 0 {
		return fmt.Errorf("%w: TOKEN_TTL must be positive", ErrInvalidConfig)
	}
	if c.Security.RateLimitRequests < 1 {
		return fmt.Errorf("%w: RATE_LIMIT_REQUESTS must be at least 1", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) validatePersistence() error {
	if !c.Persistence.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Persistence.Path) == "" {
		return fmt.Errorf("%w: PERSISTENCE_PATH is required when PERSISTENCE_ENABLED=true", ErrInvalidConfig)
	}
	if c.Persistence.FlushInterval <= 0 {
		return fmt.Errorf("%w: PERSISTENCE_FLUSH_INTERVAL must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) validateEvents() error {
	switch c.Events.Backend {
	case "memory":
	case "nats":
		if !c.Events.EmbeddedNATS && c.Events.NATSURL == "" {
			return fmt.Errorf("%w: NATS_URL is required when EVENTS_BACKEND=nats", ErrInvalidConfig)
		}
		if c.Events.EmbeddedNATS && (c.Events.NATSPort < 0 || c.Events.NATSPort > 65535) {
			return fmt.Errorf("%w: NATS_PORT out of range: %d", ErrInvalidConfig, c.Events.NATSPort)
		}
	default:
		return fmt.Errorf("%w: EVENTS_BACKEND must be memory or nats, got %q", ErrInvalidConfig, c.Events.Backend)
	}
	if c.Events.Topic == "" {
		return fmt.Errorf("%w: EVENTS_TOPIC must not be empty", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) validateWebSocket() error {
	if c.WebSocket.SendBuffer < 1 {
		return fmt.Errorf("%w: WS_SEND_BUFFER must be at least 1", ErrInvalidConfig)
	}
	if c.WebSocket.InboundRate <= 0 || c.WebSocket.InboundBurst < 1 {
		return fmt.Errorf("%w: WS_INBOUND_RATE and WS_INBOUND_BURST must be positive", ErrInvalidConfig)
	}
	return nil
}
