// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

/*
Package middleware provides HTTP middleware shared by the REST router.

Key Components:

  - Request ID: UUID-based request tracking, propagated into the logging context
  - Prometheus Metrics: request latency by method, route pattern and status

Both are chi-compatible (func(http.Handler) http.Handler) and preserve
http.Hijacker so they can sit in front of the WebSocket upgrade:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
