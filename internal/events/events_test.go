// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats-server/v2/server"

	"github.com/tomtom215/portal/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

type uploadPayload struct {
	ProjectID string `json:"projectId"`
	FileCount int    `json:"fileCount"`
}

type recorder struct {
	mu   sync.Mutex
	got  []Mutation
	seen chan struct{}
}

func newRecorder() *recorder {
	return &recorder{seen: make(chan struct{}, 16)}
}

func (r *recorder) HandleMutation(_ context.Context, m Mutation) error {
	r.mu.Lock()
	r.got = append(r.got, m)
	r.mu.Unlock()
	select {
	case r.seen <- struct{}{}:
	default:
	}
	return nil
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.seen:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for mutation")
	}
}

func fastRouterConfig() *RouterConfig {
	cfg := DefaultRouterConfig()
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 5 * time.Millisecond
	cfg.CloseTimeout = time.Second
	return &cfg
}

func startRouter(t *testing.T, bus *Bus, h MutationHandler) {
	t.Helper()
	r := NewRouter(bus, h, fastRouterConfig(), logging.NewWatermillLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-r.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}
}

func TestNewMutation(t *testing.T) {
	m, err := NewMutation(KindUpload, uploadPayload{ProjectID: "p1", FileCount: 2})
	if err != nil {
		t.Fatalf("NewMutation() error = %v", err)
	}

	var got uploadPayload
	if err := m.Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ProjectID != "p1" || got.FileCount != 2 {
		t.Errorf("decoded = %+v", got)
	}

	if _, err := NewMutation("payment", nil); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("error = %v, want ErrUnknownKind", err)
	}
}

func TestMemoryBus_RoutesMutations(t *testing.T) {
	bus := NewMemoryBus("", logging.NewWatermillLogger())
	defer bus.Close()
	if bus.Topic() != DefaultTopic {
		t.Errorf("Topic() = %s", bus.Topic())
	}

	rec := newRecorder()
	startRouter(t, bus, rec)

	m, _ := NewMutation(KindInvite, map[string]string{"projectId": "p1"})
	if err := bus.Publish(context.Background(), m); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.got) != 1 || rec.got[0].Kind != KindInvite {
		t.Errorf("got %+v", rec.got)
	}
}

func TestRouter_DropsMalformedAndUnknown(t *testing.T) {
	bus := NewMemoryBus("test.mutations", watermill.NopLogger{})
	defer bus.Close()

	rec := newRecorder()
	startRouter(t, bus, rec)

	raw := message.NewMessage(watermill.NewUUID(), []byte("not json"))
	if err := bus.publisher.Publish(bus.Topic(), raw); err != nil {
		t.Fatal(err)
	}
	_ = bus.Publish(context.Background(), Mutation{Kind: "payment", Payload: []byte("{}")})

	valid, _ := NewMutation(KindUserChange, map[string]string{"action": "added"})
	_ = bus.Publish(context.Background(), valid)
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.got) != 1 || rec.got[0].Kind != KindUserChange {
		t.Errorf("handler saw %+v, want only the valid mutation", rec.got)
	}
}

func TestRouter_RetriesThenDrops(t *testing.T) {
	bus := NewMemoryBus("test.retry", watermill.NopLogger{})
	defer bus.Close()

	var attempts atomic.Int32
	handled := make(chan struct{}, 8)
	h := MutationHandlerFunc(func(_ context.Context, m Mutation) error {
		if m.Kind == KindUpload {
			attempts.Add(1)
			return errors.New("transient")
		}
		handled <- struct{}{}
		return nil
	})
	startRouter(t, bus, h)

	failing, _ := NewMutation(KindUpload, uploadPayload{ProjectID: "p1"})
	next, _ := NewMutation(KindProjectChange, map[string]string{})
	_ = bus.Publish(context.Background(), failing)
	_ = bus.Publish(context.Background(), next)

	select {
	case <-handled:
	case <-time.After(5 * time.Second):
		t.Fatal("following mutation was never handled")
	}
	if got := attempts.Load(); got != int32(DefaultRouterConfig().RetryMaxRetries+1) {
		t.Errorf("attempts = %d, want initial try plus retries", got)
	}
}

func TestRouter_RecoversPanics(t *testing.T) {
	bus := NewMemoryBus("test.panic", watermill.NopLogger{})
	defer bus.Close()

	handled := make(chan struct{}, 8)
	h := MutationHandlerFunc(func(_ context.Context, m Mutation) error {
		if m.Kind == KindInvite {
			panic("boom")
		}
		handled <- struct{}{}
		return nil
	})
	startRouter(t, bus, h)

	bad, _ := NewMutation(KindInvite, map[string]string{})
	good, _ := NewMutation(KindUpload, map[string]string{})
	_ = bus.Publish(context.Background(), bad)
	_ = bus.Publish(context.Background(), good)

	select {
	case <-handled:
	case <-time.After(5 * time.Second):
		t.Fatal("router stopped after panic")
	}
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := NewMemoryBus("", nil)
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	m, _ := NewMutation(KindUpload, nil)
	if err := bus.Publish(context.Background(), m); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Publish() = %v, want ErrBusClosed", err)
	}
}

func TestNATSBus_EmbeddedServer(t *testing.T) {
	if testing.Short() {
		t.Skip("starts an embedded NATS server")
	}

	srv, err := NewEmbeddedServer(ServerConfig{Host: "127.0.0.1", Port: server.RANDOM_PORT})
	if err != nil {
		t.Fatalf("NewEmbeddedServer() error = %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	if !srv.IsRunning() {
		t.Fatal("server should be running")
	}

	cfg := DefaultNATSConfig(srv.ClientURL())
	cfg.Topic = "test.nats.mutations"
	cfg.CloseTimeout = time.Second
	bus, err := NewNATSBus(cfg, logging.NewWatermillLogger())
	if err != nil {
		t.Fatalf("NewNATSBus() error = %v", err)
	}
	defer bus.Close()

	rec := newRecorder()
	startRouter(t, bus, rec)

	m, _ := NewMutation(KindUpload, uploadPayload{ProjectID: "p9", FileCount: 1})

	// Core NATS drops messages published before the subscription is live,
	// so publish until the first one arrives.
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := bus.Publish(context.Background(), m); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		select {
		case <-rec.seen:
			var got uploadPayload
			rec.mu.Lock()
			err := rec.got[0].Decode(&got)
			rec.mu.Unlock()
			if err != nil || got.ProjectID != "p9" {
				t.Errorf("decoded = %+v, %v", got, err)
			}
			return
		case <-ticker.C:
		case <-deadline:
			t.Fatal("mutation never arrived over NATS")
		}
	}
}

func TestNewNATSBus_RequiresURL(t *testing.T) {
	if _, err := NewNATSBus(NATSConfig{}, nil); err == nil {
		t.Error("expected error without URL")
	}
}
