// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/portal/internal/logging"
	"github.com/tomtom215/portal/internal/notify"
)

// Notifications returns the caller's notification summary.
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.Summary(identity(r).ID))
}

// MarkNotificationsRead clears a category, or one project's messages, for
// the caller and pushes the new summary to their connections.
func (h *Handler) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	var req MarkReadRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	userID := identity(r).ID
	if err := h.service.MarkRead(userID, req.Category, req.ProjectID); err != nil {
		if errors.Is(err, notify.ErrUnknownCategory) {
			respondError(w, http.StatusBadRequest, ErrCodeValidationFailed, "Unknown notification category", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to mark notifications read", err)
		return
	}

	logging.Ctx(r.Context()).Debug().
		Str("category", string(req.Category)).
		Str("project_id", req.ProjectID).
		Msg("Notifications marked read")
	w.WriteHeader(http.StatusNoContent)
}

// ProjectMessages returns a project's chat history. Non-members get an
// empty list rather than an error so project ids cannot be enumerated.
func (h *Handler) ProjectMessages(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	respondJSON(w, http.StatusOK, HistoryResponse{
		ProjectID: projectID,
		Messages:  h.service.History(r.Context(), projectID, identity(r).ID),
	})
}
