// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/portal/internal/auth"
	"github.com/tomtom215/portal/internal/authz"
	"github.com/tomtom215/portal/internal/chat"
	"github.com/tomtom215/portal/internal/collab"
	"github.com/tomtom215/portal/internal/config"
	"github.com/tomtom215/portal/internal/events"
	"github.com/tomtom215/portal/internal/logging"
	"github.com/tomtom215/portal/internal/membership"
	"github.com/tomtom215/portal/internal/models"
	"github.com/tomtom215/portal/internal/notify"
	ws "github.com/tomtom215/portal/internal/websocket"
)

const testOrigin = "http://portal.test"

func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

type recordingPublisher struct {
	mu        sync.Mutex
	mutations []events.Mutation
}

func (p *recordingPublisher) Publish(_ context.Context, m events.Mutation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mutations = append(p.mutations, m)
	return nil
}

type testEnv struct {
	server    *httptest.Server
	jwt       *auth.JWTManager
	directory *membership.Directory
	store     *notify.Store
	log       *chat.Log
	hub       *ws.Hub
	service   *collab.Service
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T, withPublisher bool) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Security: config.SecurityConfig{
			JWTSecret:   "test_secret_with_at_least_32_characters_for_testing",
			CORSOrigins: []string{testOrigin},
		},
		WebSocket: config.WebSocketConfig{SendBuffer: 64},
	}

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		t.Fatal(err)
	}
	enforcer, err := authz.NewEnforcer()
	if err != nil {
		t.Fatal(err)
	}

	directory := membership.NewDirectory()
	directory.Put(membership.Project{ID: "p1", Name: "Website", Members: []membership.Member{
		{UserID: "o", Role: models.RoleOwner},
		{UserID: "s", Role: models.RoleStaff},
		{UserID: "c", Role: models.RoleClient},
	}})

	hub := ws.NewHub()
	log := chat.NewLog(directory)
	store := notify.NewStore()
	service := collab.NewService(hub, directory, log, store)

	env := &testEnv{jwt: jwtManager, directory: directory, store: store, log: log, hub: hub, service: service}
	var publisher Publisher
	if withPublisher {
		env.publisher = &recordingPublisher{}
		publisher = env.publisher
	}

	handler := NewHandler(cfg, service, hub, directory, jwtManager, publisher)
	router := NewRouter(handler,
		NewChiMiddleware(ChiMiddlewareConfigFromSecurity(&cfg.Security)),
		auth.NewMiddleware(jwtManager),
		authz.NewMiddleware(enforcer),
	)
	env.server = httptest.NewServer(router.SetupChi())
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) token(t *testing.T, id, name, role string) string {
	t.Helper()
	token, err := e.jwt.Issue(models.Identity{ID: id, DisplayName: name, Role: role})
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func (e *testEnv) serviceToken(t *testing.T) string {
	t.Helper()
	return e.token(t, "portal-backend", "Portal", models.RoleService)
}

// do sends a request and returns the status and body.
func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (int, []byte) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, data
}

func decodeBody(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var resp models.ErrorResponse
	decodeBody(t, data, &resp)
	return resp.Error.Code
}
