// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package api

import (
	"github.com/tomtom215/portal/internal/membership"
	"github.com/tomtom215/portal/internal/models"
	"github.com/tomtom215/portal/internal/notify"
)

// MarkReadRequest is the body of POST /notifications/read.
type MarkReadRequest struct {
	Category  models.Category `json:"category" validate:"required,category"`
	ProjectID string          `json:"projectId" validate:"omitempty,max=128"`
}

// HistoryResponse is the body of GET /projects/{projectID}/messages.
type HistoryResponse struct {
	ProjectID string           `json:"projectId"`
	Messages  []models.Message `json:"messages"`
}

// ProjectSyncRequest is the body of PUT /internal/projects/{projectID}.
type ProjectSyncRequest struct {
	Name    string              `json:"name" validate:"max=256"`
	Members []membership.Member `json:"members" validate:"max=10000,dive"`
}

// UploadBody is the body of POST /internal/projects/{projectID}/uploads.
type UploadBody struct {
	Actor     notify.Actor `json:"actor"`
	FileCount int          `json:"fileCount"`
}

// ProjectChangeBody is the body of POST /internal/projects/{projectID}/changes.
type ProjectChangeBody struct {
	Actor   notify.Actor `json:"actor"`
	Summary string       `json:"summary"`
}

// InviteBody is the body of POST /internal/projects/{projectID}/invites.
type InviteBody struct {
	Actor   notify.Actor `json:"actor"`
	Invitee notify.Actor `json:"invitee"`
}

// RefreshResponse reports how many users were sent a fresh summary.
type RefreshResponse struct {
	Refreshed int `json:"refreshed"`
}

// AcceptedResponse is returned when a bump was queued on the mutation bus.
type AcceptedResponse struct {
	Queued bool   `json:"queued"`
	Kind   string `json:"kind"`
}
