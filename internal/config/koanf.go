// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/portal/config.yaml",
	"/etc/portal/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3857,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			TokenTTL:          24 * time.Hour,
			CORSOrigins:       []string{},
			AllowedWSOrigins:  []string{},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Persistence: PersistenceConfig{
			Enabled:       true,
			Path:          "/data/portal",
			SyncWrites:    false,
			FlushInterval: time.Second,
			MaxBackoff:    30 * time.Second,
		},
		Events: EventsConfig{
			Backend:      "memory",
			Topic:        "portal.mutations",
			NATSURL:      "nats://127.0.0.1:4222",
			EmbeddedNATS: false,
			NATSHost:     "127.0.0.1",
			NATSPort:     4222,
			NATSStoreDir: "/data/nats",
			Subscribers:  1,
		},
		Membership: MembershipConfig{
			CacheSize: 1024,
			CacheTTL:  30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			SendBuffer:   256,
			InboundRate:  20,
			InboundBurst: 40,
		},
	}
}

// LoadWithKoanf loads configuration using koanf with layered sources:
//  1. struct defaults
//  2. config file (optional)
//  3. environment variables (highest priority)
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when set from env.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"security.ws_allowed_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envTransformFunc maps known environment variables to koanf paths.
// Unmapped variables return "" and are skipped.
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		"http_host":             "server.host",
		"http_port":             "server.port",
		"http_read_timeout":     "server.read_timeout",
		"http_write_timeout":    "server.write_timeout",
		"http_shutdown_timeout": "server.shutdown_timeout",

		"jwt_secret":          "security.jwt_secret",
		"token_ttl":           "security.token_ttl",
		"cors_origins":        "security.cors_origins",
		"ws_allowed_origins":  "security.ws_allowed_origins",
		"rate_limit_requests": "security.rate_limit_requests",
		"rate_limit_window":   "security.rate_limit_window",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		"persistence_enabled":        "persistence.enabled",
		"persistence_path":           "persistence.path",
		"persistence_sync_writes":    "persistence.sync_writes",
		"persistence_flush_interval": "persistence.flush_interval",
		"persistence_max_backoff":    "persistence.max_backoff",

		"events_backend":     "events.backend",
		"events_topic":       "events.topic",
		"nats_url":           "events.nats_url",
		"nats_embedded":      "events.nats_embedded",
		"nats_host":          "events.nats_host",
		"nats_port":          "events.nats_port",
		"nats_store_dir":     "events.nats_store_dir",
		"events_subscribers": "events.subscribers",

		"membership_cache_size": "membership.cache_size",
		"membership_cache_ttl":  "membership.cache_ttl",

		"ws_send_buffer":   "websocket.send_buffer",
		"ws_inbound_rate":  "websocket.inbound_rate",
		"ws_inbound_burst": "websocket.inbound_burst",
	}
	return envMappings[strings.ToLower(key)]
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
