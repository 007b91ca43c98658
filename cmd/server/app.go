// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/portal/internal/api"
	"github.com/tomtom215/portal/internal/auth"
	"github.com/tomtom215/portal/internal/authz"
	"github.com/tomtom215/portal/internal/chat"
	"github.com/tomtom215/portal/internal/collab"
	"github.com/tomtom215/portal/internal/config"
	"github.com/tomtom215/portal/internal/events"
	"github.com/tomtom215/portal/internal/logging"
	"github.com/tomtom215/portal/internal/membership"
	"github.com/tomtom215/portal/internal/notify"
	"github.com/tomtom215/portal/internal/persist"
	"github.com/tomtom215/portal/internal/supervisor"
	"github.com/tomtom215/portal/internal/supervisor/services"
	ws "github.com/tomtom215/portal/internal/websocket"
)

// app holds the wired components and the resources that outlive the tree.
type app struct {
	tree      *supervisor.SupervisorTree
	server    *http.Server
	service   *collab.Service
	directory *membership.Directory
	store     *persist.Store
	writer    *persist.Writer
	bus       *events.Bus
	nats      *events.EmbeddedServer
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{}
	built := false
	defer func() {
		if !built {
			a.close()
		}
	}()

	// === PERSISTENCE ===
	var err error
	if cfg.Persistence.Enabled {
		a.store, err = persist.Open(persist.Config{
			Path:       cfg.Persistence.Path,
			SyncWrites: cfg.Persistence.SyncWrites,
		})
	} else {
		a.store, err = persist.OpenInMemory()
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	a.writer = persist.NewWriter(a.store, persist.WriterConfig{
		FlushInterval: cfg.Persistence.FlushInterval,
		MaxBackoff:    cfg.Persistence.MaxBackoff,
	})

	// === MEMBERSHIP ===
	a.directory = membership.NewDirectory()
	oracle := membership.NewCachedOracle(a.directory, cfg.Membership.CacheSize, cfg.Membership.CacheTTL)

	// === COLLABORATION ===
	chatLog := chat.NewLog(oracle, chat.WithSnapshotter(a.writer))
	notifyStore := notify.NewStore(notify.WithSnapshotter(a.writer))

	if _, err := persist.Restore(a.store, chatLog, notifyStore); err != nil {
		return nil, fmt.Errorf("restore snapshots: %w", err)
	}

	hub := ws.NewHub()
	a.service = collab.NewService(hub, oracle, chatLog, notifyStore)

	a.directory.OnChange(func(projectID string) {
		oracle.Invalidate(projectID)
		if n := a.service.PruneRoom(context.Background(), projectID); n > 0 {
			logging.Info().Str("project_id", projectID).Int("removed", n).Msg("Pruned project room after membership change")
		}
	})

	// === EVENTS ===
	if err := a.initEvents(cfg); err != nil {
		return nil, err
	}
	router := events.NewRouter(a.bus, a.service, nil, logging.NewWatermillLogger())

	// === HTTP ===
	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return nil, fmt.Errorf("create JWT manager: %w", err)
	}
	enforcer, err := authz.NewEnforcer()
	if err != nil {
		return nil, fmt.Errorf("create authorization enforcer: %w", err)
	}

	handler := api.NewHandler(cfg, a.service, hub, a.directory, jwtManager, a.bus)
	chiMW := api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(&cfg.Security))
	httpRouter := api.NewRouter(handler, chiMW, auth.NewMiddleware(jwtManager), authz.NewMiddleware(enforcer))

	a.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      httpRouter.SetupChi(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// === SUPERVISOR TREE ===
	a.tree = supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	a.tree.AddDataService(a.writer)
	if cfg.Persistence.Enabled {
		a.tree.AddDataService(services.NewStoreGCService(a.store, services.DefaultGCInterval))
	}

	if a.nats != nil {
		a.tree.AddMessagingService(services.NewEmbeddedNATSService(a.nats, cfg.Server.ShutdownTimeout))
	}
	a.tree.AddMessagingService(router)

	a.tree.AddAPIService(services.NewHubService(hub))
	a.tree.AddAPIService(services.NewHTTPServerService(a.server, a.server.Addr, cfg.Server.ShutdownTimeout))

	built = true
	return a, nil
}

// initEvents creates the mutation bus. The embedded NATS server starts here
// rather than under the tree because the bus needs its client URL.
func (a *app) initEvents(cfg *config.Config) error {
	watermillLogger := logging.NewWatermillLogger()

	if cfg.Events.Backend != "nats" {
		a.bus = events.NewMemoryBus(cfg.Events.Topic, watermillLogger)
		logging.Info().Str("topic", cfg.Events.Topic).Msg("In-process mutation bus ready")
		return nil
	}

	url := cfg.Events.NATSURL
	if cfg.Events.EmbeddedNATS {
		server, err := events.NewEmbeddedServer(events.ServerConfig{
			Host:     cfg.Events.NATSHost,
			Port:     cfg.Events.NATSPort,
			StoreDir: cfg.Events.NATSStoreDir,
		})
		if err != nil {
			return fmt.Errorf("start embedded NATS: %w", err)
		}
		a.nats = server
		url = server.ClientURL()
	}

	natsCfg := events.DefaultNATSConfig(url)
	natsCfg.Topic = cfg.Events.Topic
	if cfg.Events.Subscribers > 0 {
		natsCfg.Subscribers = cfg.Events.Subscribers
	}

	bus, err := events.NewNATSBus(natsCfg, watermillLogger)
	if err != nil {
		return fmt.Errorf("connect NATS bus: %w", err)
	}
	a.bus = bus
	logging.Info().Str("url", url).Str("topic", natsCfg.Topic).Msg("NATS mutation bus ready")
	return nil
}

// close flushes pending snapshots and releases everything the tree does not
// own. Safe on a partially built app.
func (a *app) close() {
	if a.writer != nil {
		if err := a.writer.Flush(); err != nil {
			logging.Error().Err(err).Msg("Final snapshot flush failed")
		}
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing mutation bus")
		}
	}
	if a.nats != nil && a.nats.IsRunning() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.nats.Shutdown(ctx); err != nil {
			logging.Warn().Err(err).Msg("Error shutting down embedded NATS")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing snapshot store")
		}
	}
}
