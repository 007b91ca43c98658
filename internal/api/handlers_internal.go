// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/portal/internal/collab"
	"github.com/tomtom215/portal/internal/events"
	"github.com/tomtom215/portal/internal/logging"
	"github.com/tomtom215/portal/internal/membership"
)

// PutProject replaces a project's name and member list.
func (h *Handler) PutProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectSyncRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	projectID := chi.URLParam(r, "projectID")
	h.directory.Put(membership.Project{ID: projectID, Name: req.Name, Members: req.Members})

	logging.Ctx(r.Context()).Info().
		Str("project_id", sanitizeLogValue(projectID)).
		Int("members", len(req.Members)).
		Msg("Project membership synced")
	w.WriteHeader(http.StatusNoContent)
}

// DeleteProject removes a project from the directory.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if !h.directory.Delete(projectID) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Project not found", nil)
		return
	}
	logging.Ctx(r.Context()).Info().Str("project_id", sanitizeLogValue(projectID)).Msg("Project removed")
	w.WriteHeader(http.StatusNoContent)
}

// InternalUpload reports files uploaded to a project.
func (h *Handler) InternalUpload(w http.ResponseWriter, r *http.Request) {
	var body UploadBody
	if !decodeJSON(w, r, &body) {
		return
	}
	req := collab.UploadRequest{ProjectID: chi.URLParam(r, "projectID"), Actor: body.Actor, FileCount: body.FileCount}
	h.bump(w, r, events.KindUpload, req, func() (int, error) {
		return h.service.NotifyUpload(r.Context(), req)
	})
}

// InternalProjectChange reports a stage, task or detail edit.
func (h *Handler) InternalProjectChange(w http.ResponseWriter, r *http.Request) {
	var body ProjectChangeBody
	if !decodeJSON(w, r, &body) {
		return
	}
	req := collab.ProjectChangeRequest{ProjectID: chi.URLParam(r, "projectID"), Actor: body.Actor, Summary: body.Summary}
	h.bump(w, r, events.KindProjectChange, req, func() (int, error) {
		return h.service.NotifyProjectChange(r.Context(), req)
	})
}

// InternalInvite reports a user invited to a project.
func (h *Handler) InternalInvite(w http.ResponseWriter, r *http.Request) {
	var body InviteBody
	if !decodeJSON(w, r, &body) {
		return
	}
	req := collab.InviteRequest{ProjectID: chi.URLParam(r, "projectID"), Actor: body.Actor, Invitee: body.Invitee}
	h.bump(w, r, events.KindInvite, req, func() (int, error) {
		return h.service.NotifyInvite(r.Context(), req)
	})
}

// InternalUserChange reports a user directory change to the listed users.
func (h *Handler) InternalUserChange(w http.ResponseWriter, r *http.Request) {
	var req collab.UserChangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.bump(w, r, events.KindUserChange, req, func() (int, error) {
		return h.service.NotifyUserChange(r.Context(), req)
	})
}

// bump validates req, then either applies it through run or, with
// ?async=true, queues it on the mutation bus and answers 202.
func (h *Handler) bump(w http.ResponseWriter, r *http.Request, kind events.Kind, req interface{}, run func() (int, error)) {
	if !validate(w, req) {
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		h.enqueue(w, r, kind, req)
		return
	}

	refreshed, err := run()
	if err != nil {
		if errors.Is(err, membership.ErrProjectNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "Project not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to apply notification bump", err)
		return
	}
	respondJSON(w, http.StatusOK, RefreshResponse{Refreshed: refreshed})
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, kind events.Kind, req interface{}) {
	if h.publisher == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Mutation bus unavailable", nil)
		return
	}
	m, err := events.NewMutation(kind, req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to encode mutation", err)
		return
	}
	if err := h.publisher.Publish(r.Context(), m); err != nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Failed to queue mutation", err)
		return
	}
	respondJSON(w, http.StatusAccepted, AcceptedResponse{Queued: true, Kind: string(kind)})
}
