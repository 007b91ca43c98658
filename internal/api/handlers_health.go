// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package api

import (
	"net/http"
	"time"
)

// HealthStatus is the body of GET /api/v1/health.
type HealthStatus struct {
	Status      string  `json:"status"`
	Connections int     `json:"connections"`
	Uptime      float64 `json:"uptime"`
}

// Health is the unauthenticated liveness probe.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	connections := 0
	if h.hub != nil {
		connections = h.hub.GetClientCount()
	}
	respondJSON(w, http.StatusOK, HealthStatus{
		Status:      "healthy",
		Connections: connections,
		Uptime:      time.Since(h.startTime).Seconds(),
	})
}
