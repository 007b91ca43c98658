// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

/*
Package services provides suture.Service wrappers for portal components
whose lifecycle is not already Serve(ctx) shaped.

# Available Services

HTTP Server (HTTPServerService):
  - Wraps *http.Server; ListenAndServe until canceled, then Shutdown with a timeout

WebSocket Hub (HubService):
  - Runs websocket.Hub; on cancel every client gets a going-away close frame

Embedded NATS (EmbeddedNATSService):
  - Owns an already started events.EmbeddedServer and shuts it down on cancel

Store GC (StoreGCService):
  - Periodically reclaims BadgerDB value-log space

The persistence writer and the mutation router implement suture.Service
themselves and are added to the tree directly.
*/
package services
