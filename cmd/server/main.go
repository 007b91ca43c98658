// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

// Package main is the entry point for the portal collaboration server.
//
// The server keeps per-project chat logs and per-user notification
// aggregates in memory, pushes changes to connected browsers over
// WebSocket, and accepts mutations from the portal backend over REST or
// an event bus (in-process watermill channel or NATS).
//
// # Startup order
//
//  1. Configuration: Koanf v2 (defaults, optional YAML file, environment)
//  2. Logging: zerolog, JSON or console
//  3. Persistence: BadgerDB snapshot store, replayed into memory
//  4. Membership: project directory plus LRU-cached oracle
//  5. Collaboration: chat log, notification store, WebSocket hub, service
//  6. Events: bus and mutation router (embedded NATS optional)
//  7. HTTP: chi router with JWT authentication and Casbin authorization
//  8. Supervisor tree: suture v4, until SIGINT or SIGTERM
//
// Snapshots still pending when the tree stops are flushed before exit.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/portal/internal/config"
	"github.com/tomtom215/portal/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("events_backend", cfg.Events.Backend).
		Bool("persistence", cfg.Persistence.Enabled).
		Msg("Starting portal server")

	app, err := newApp(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Msg("Starting supervisor tree...")
	if err := app.tree.Serve(ctx); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := app.tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	app.close()
	logging.Info().Msg("Application stopped gracefully")
}
