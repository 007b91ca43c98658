// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

// Package config loads Portal configuration from layered sources:
// struct defaults, an optional YAML file, then environment variables.
package config

import (
	"errors"
	"time"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Security    SecurityConfig    `koanf:"security"`
	Logging     LoggingConfig     `koanf:"logging"`
	Persistence PersistenceConfig `koanf:"persistence"`
	Events      EventsConfig      `koanf:"events"`
	Membership  MembershipConfig  `koanf:"membership"`
	WebSocket   WebSocketConfig   `koanf:"websocket"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SecurityConfig configures token validation, CORS and rate limiting.
type SecurityConfig struct {
	JWTSecret         string        `koanf:"jwt_secret"`
	TokenTTL          time.Duration `koanf:"token_ttl"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	AllowedWSOrigins  []string      `koanf:"ws_allowed_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig mirrors logging.Config for file/env loading.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// PersistenceConfig configures BadgerDB snapshotting.
type PersistenceConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Path          string        `koanf:"path"`
	SyncWrites    bool          `koanf:"sync_writes"`
	FlushInterval time.Duration `koanf:"flush_interval"`
	MaxBackoff    time.Duration `koanf:"max_backoff"`
}

// EventsConfig configures the inbound mutation bus.
type EventsConfig struct {
	// Backend is "memory" (watermill gochannel) or "nats".
	Backend      string `koanf:"backend"`
	Topic        string `koanf:"topic"`
	NATSURL      string `koanf:"nats_url"`
	EmbeddedNATS bool   `koanf:"nats_embedded"`
	NATSHost     string `koanf:"nats_host"`
	NATSPort     int    `koanf:"nats_port"`
	NATSStoreDir string `koanf:"nats_store_dir"`
	Subscribers  int    `koanf:"subscribers"`
}

// MembershipConfig sizes the project membership cache.
type MembershipConfig struct {
	CacheSize int           `koanf:"cache_size"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`
}

// WebSocketConfig configures per-connection buffers and inbound throttling.
type WebSocketConfig struct {
	SendBuffer   int     `koanf:"send_buffer"`
	InboundRate  float64 `koanf:"inbound_rate"`
	InboundBurst int     `koanf:"inbound_burst"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}

// Load reads configuration from defaults, file and environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
