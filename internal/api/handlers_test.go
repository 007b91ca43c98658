// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/tomtom215/portal/internal/chat"
	"github.com/tomtom215/portal/internal/collab"
	"github.com/tomtom215/portal/internal/events"
	"github.com/tomtom215/portal/internal/membership"
	"github.com/tomtom215/portal/internal/models"
	"github.com/tomtom215/portal/internal/notify"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)

	status, body := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var health HealthStatus
	decodeBody(t, body, &health)
	if health.Status != "healthy" {
		t.Errorf("status = %q", health.Status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, false)

	status, body := env.do(t, http.MethodGet, "/metrics", "", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(string(body), "portal_ws_connections_active") {
		t.Error("exposition should include portal collectors")
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"notifications", http.MethodGet, "/api/v1/notifications"},
		{"mark read", http.MethodPost, "/api/v1/notifications/read"},
		{"history", http.MethodGet, "/api/v1/projects/p1/messages"},
		{"internal", http.MethodPost, "/api/v1/internal/users/changes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, tt.method, tt.path, "", nil)
			if status != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", status)
			}
			if code := errorCode(t, body); code != ErrCodeUnauthorized {
				t.Errorf("code = %q", code)
			}
		})
	}
}

func TestNotifications(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.BumpUploads(notify.UploadBump{ProjectID: "p1", Actor: notify.Actor{ID: "s"}, FileCount: 2, MemberIDs: []string{"o", "s"}})

	status, body := env.do(t, http.MethodGet, "/api/v1/notifications", env.token(t, "o", "Olive", models.RoleOwner), nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var summary models.NotificationSummary
	decodeBody(t, body, &summary)
	if summary.Uploads.Total != 1 || summary.Total != 1 || len(summary.Feed) != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestMarkNotificationsRead(t *testing.T) {
	env := newTestEnv(t, false)
	token := env.token(t, "o", "Olive", models.RoleOwner)
	env.store.BumpMessageUnread(notify.MessageBump{ProjectID: "p1", AuthorID: "c", MemberIDs: []string{"o", "c"}})
	env.store.BumpUploads(notify.UploadBump{ProjectID: "p1", Actor: notify.Actor{ID: "c"}, MemberIDs: []string{"o"}})

	status, _ := env.do(t, http.MethodPost, "/api/v1/notifications/read", token, MarkReadRequest{Category: models.CategoryMessages, ProjectID: "p1"})
	if status != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", status)
	}
	if env.store.UnreadFor("o", "p1") != 0 {
		t.Error("p1 should be cleared")
	}
	if env.store.Summary("o").Uploads.Total != 1 {
		t.Error("uploads must be untouched")
	}

	status, _ = env.do(t, http.MethodPost, "/api/v1/notifications/read", token, MarkReadRequest{Category: models.CategoryUploads})
	if status != http.StatusNoContent || env.store.Summary("o").Uploads.Total != 0 {
		t.Errorf("uploads read: status = %d", status)
	}
}

func TestMarkNotificationsRead_Invalid(t *testing.T) {
	env := newTestEnv(t, false)
	token := env.token(t, "o", "Olive", models.RoleOwner)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"unknown category", `{"category":"invoices"}`, ErrCodeValidationFailed},
		{"missing category", `{}`, ErrCodeValidationFailed},
		{"unknown field", `{"category":"uploads","extra":1}`, ErrCodeBadRequest},
		{"malformed", `{"category":`, ErrCodeBadRequest},
		{"empty", ``, ErrCodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodPost, "/api/v1/notifications/read", token, tt.body)
			if status != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", status)
			}
			if code := errorCode(t, body); code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestProjectMessages(t *testing.T) {
	env := newTestEnv(t, false)
	env.log.Append(chat.Entry{ProjectID: "p1", Author: models.Identity{ID: "o", DisplayName: "Olive"}, Body: "Kickoff"}, nil)

	tests := []struct {
		name   string
		userID string
		want   int
	}{
		{"member", "c", 1},
		{"non-member", "u", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodGet, "/api/v1/projects/p1/messages", env.token(t, tt.userID, "", models.RoleClient), nil)
			if status != http.StatusOK {
				t.Fatalf("status = %d", status)
			}
			var resp HistoryResponse
			decodeBody(t, body, &resp)
			if resp.Messages == nil || len(resp.Messages) != tt.want {
				t.Errorf("messages = %+v, want %d", resp.Messages, tt.want)
			}
		})
	}
}

func TestInternal_ForbiddenForUsers(t *testing.T) {
	env := newTestEnv(t, false)

	for _, role := range []string{models.RoleClient, models.RoleStaff, models.RoleOwner} {
		t.Run(role, func(t *testing.T) {
			status, body := env.do(t, http.MethodDelete, "/api/v1/internal/projects/p1", env.token(t, "o", "", role), nil)
			if status != http.StatusForbidden {
				t.Errorf("status = %d, want 403", status)
			}
			if code := errorCode(t, body); code != ErrCodeForbidden {
				t.Errorf("code = %q", code)
			}
		})
	}
}

func TestInternal_ProjectSync(t *testing.T) {
	env := newTestEnv(t, false)
	token := env.serviceToken(t)

	status, _ := env.do(t, http.MethodPut, "/api/v1/internal/projects/p2", token, ProjectSyncRequest{
		Name:    "Brand refresh",
		Members: []membership.Member{{UserID: "o", Role: models.RoleOwner}, {UserID: "n", Role: models.RoleClient}},
	})
	if status != http.StatusNoContent {
		t.Fatalf("PUT status = %d", status)
	}
	p, err := env.directory.Project(t.Context(), "p2")
	if err != nil || p.Name != "Brand refresh" || !p.Has("n") {
		t.Errorf("project = %+v, err = %v", p, err)
	}

	status, body := env.do(t, http.MethodPut, "/api/v1/internal/projects/p2", token, `{"members":[{"role":"client"}]}`)
	if status != http.StatusBadRequest || errorCode(t, body) != ErrCodeValidationFailed {
		t.Errorf("member without userId: status = %d body = %s", status, body)
	}

	if status, _ := env.do(t, http.MethodDelete, "/api/v1/internal/projects/p2", token, nil); status != http.StatusNoContent {
		t.Errorf("DELETE status = %d", status)
	}
	if status, _ := env.do(t, http.MethodDelete, "/api/v1/internal/projects/p2", token, nil); status != http.StatusNotFound {
		t.Errorf("second DELETE status = %d, want 404", status)
	}
}

func TestInternal_Bumps(t *testing.T) {
	env := newTestEnv(t, false)
	token := env.serviceToken(t)
	actor := notify.Actor{ID: "s", Name: "Sam"}

	tests := []struct {
		name string
		path string
		body interface{}
		want int
	}{
		{"upload", "/api/v1/internal/projects/p1/uploads", UploadBody{Actor: actor, FileCount: 2}, 3},
		{"project change", "/api/v1/internal/projects/p1/changes", ProjectChangeBody{Actor: actor, Summary: "stage Design marked completed"}, 3},
		{"invite", "/api/v1/internal/projects/p1/invites", InviteBody{Actor: actor, Invitee: notify.Actor{ID: "n", Name: "Nico"}}, 4},
		{"user change", "/api/v1/internal/users/changes", collab.UserChangeRequest{Actor: actor, SubjectName: "Nico", Action: "added", MemberIDs: []string{"o", "c"}}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodPost, tt.path, token, tt.body)
			if status != http.StatusOK {
				t.Fatalf("status = %d body = %s", status, body)
			}
			var resp RefreshResponse
			decodeBody(t, body, &resp)
			if resp.Refreshed != tt.want {
				t.Errorf("refreshed = %d, want %d", resp.Refreshed, tt.want)
			}
		})
	}

	summary := env.store.Summary("o")
	if summary.Uploads.Total != 1 || summary.Projects.Total != 2 || summary.Users.Total != 1 {
		t.Errorf("owner summary = %+v", summary)
	}
}

func TestInternal_UnknownProject(t *testing.T) {
	env := newTestEnv(t, false)

	status, body := env.do(t, http.MethodPost, "/api/v1/internal/projects/nope/uploads", env.serviceToken(t), UploadBody{Actor: notify.Actor{ID: "s"}})
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	if code := errorCode(t, body); code != ErrCodeNotFound {
		t.Errorf("code = %q", code)
	}
}

func TestInternal_BumpValidation(t *testing.T) {
	env := newTestEnv(t, false)
	token := env.serviceToken(t)

	tests := []struct {
		name string
		path string
		body interface{}
	}{
		{"missing actor", "/api/v1/internal/projects/p1/uploads", UploadBody{FileCount: 1}},
		{"negative count", "/api/v1/internal/projects/p1/uploads", UploadBody{Actor: notify.Actor{ID: "s"}, FileCount: -1}},
		{"bad action", "/api/v1/internal/users/changes", collab.UserChangeRequest{Actor: notify.Actor{ID: "s"}, SubjectName: "N", Action: "promoted"}},
		{"missing subject", "/api/v1/internal/users/changes", collab.UserChangeRequest{Actor: notify.Actor{ID: "s"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodPost, tt.path, token, tt.body)
			if status != http.StatusBadRequest || errorCode(t, body) != ErrCodeValidationFailed {
				t.Errorf("status = %d body = %s", status, body)
			}
		})
	}
}

func TestInternal_AsyncBump(t *testing.T) {
	env := newTestEnv(t, true)

	status, body := env.do(t, http.MethodPost, "/api/v1/internal/projects/p1/uploads?async=true", env.serviceToken(t), UploadBody{Actor: notify.Actor{ID: "s"}, FileCount: 1})
	if status != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", status, body)
	}
	if len(env.publisher.mutations) != 1 {
		t.Fatalf("published %d mutations, want 1", len(env.publisher.mutations))
	}
	m := env.publisher.mutations[0]
	var req collab.UploadRequest
	if err := m.Decode(&req); err != nil {
		t.Fatal(err)
	}
	if m.Kind != events.KindUpload || req.ProjectID != "p1" || req.FileCount != 1 {
		t.Errorf("mutation = %+v, payload = %+v", m, req)
	}
	if env.store.Summary("o").Uploads.Total != 0 {
		t.Error("async bump must not be applied inline")
	}
}

func TestInternal_AsyncWithoutBus(t *testing.T) {
	env := newTestEnv(t, false)

	status, body := env.do(t, http.MethodPost, "/api/v1/internal/users/changes?async=1", env.serviceToken(t), collab.UserChangeRequest{Actor: notify.Actor{ID: "s"}, SubjectName: "N"})
	if status != http.StatusServiceUnavailable || errorCode(t, body) != ErrCodeServiceUnavailable {
		t.Errorf("status = %d body = %s", status, body)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, false)

	status, body := env.do(t, http.MethodGet, "/api/v1/nothing-here", "", nil)
	if status != http.StatusNotFound || errorCode(t, body) != ErrCodeNotFound {
		t.Errorf("status = %d body = %s", status, body)
	}
}
