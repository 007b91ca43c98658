// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

/*
Package supervisor runs the portal's long-lived services under suture v4.

The tree has three layers, each its own supervisor, so failure counting and
restart backoff are independent per layer:

	portal
	├── data-layer
	│   ├── persist-writer    (persist.Writer, when persistence is enabled)
	│   └── persist-gc        (services.StoreGCService)
	├── messaging-layer
	│   ├── embedded-nats     (services.EmbeddedNATSService, optional)
	│   └── mutation-router   (events.Router)
	└── api-layer
	    ├── websocket-hub     (services.HubService)
	    └── http-server       (services.HTTPServerService)

Supervisor events (start, failure, backoff, restart) are logged through
sutureslog, bridged onto zerolog by logging.NewSlogLogger.

# Usage

	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddDataService(writer)
	tree.AddMessagingService(router)
	tree.AddAPIService(services.NewHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, addr, timeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor tree exited")
	}

After Serve returns, UnstoppedServiceReport names any service that did not
stop within TreeConfig.ShutdownTimeout.

Services that must not be restarted return an error wrapping
suture.ErrDoNotRestart.
*/
package supervisor
