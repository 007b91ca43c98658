// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package websocket

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/portal/internal/logging"
	"github.com/tomtom215/portal/internal/models"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

func newTestClient(t *testing.T, hub *Hub, userID string, buffer int) *Client {
	t.Helper()
	c := NewClient(hub, nil, models.Identity{ID: userID, Role: models.RoleClient}, nil, ClientOptions{SendBuffer: buffer})
	if err := hub.Register(c); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return c
}

// drain returns the frames currently queued for c.
func drain(c *Client) []Frame {
	var frames []Frame
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return frames
			}
			var f Frame
			_ = json.Unmarshal(data, &f)
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func TestHub_JoinIsIdempotent(t *testing.T) {
	hub := NewHub()
	c := newTestClient(t, hub, "u1", 8)

	if !hub.Join(c, ProjectRoom("p1")) {
		t.Error("first join should add the client")
	}
	if hub.Join(c, ProjectRoom("p1")) {
		t.Error("second join should be a no-op")
	}
	if got := hub.RoomSize(ProjectRoom("p1")); got != 1 {
		t.Errorf("RoomSize() = %d, want 1", got)
	}
}

func TestHub_EmitExcept(t *testing.T) {
	hub := NewHub()
	sender := newTestClient(t, hub, "c", 8)
	senderOther := newTestClient(t, hub, "c", 8)
	owner := newTestClient(t, hub, "o", 8)
	outsider := newTestClient(t, hub, "x", 8)

	for _, c := range []*Client{sender, senderOther, owner} {
		hub.Join(c, ProjectRoom("p1"))
	}

	n := hub.Emit(ProjectRoom("p1"), MessageNew(models.Message{ID: "m1", ProjectID: "p1"}), sender)
	if n != 2 {
		t.Errorf("Emit() = %d, want 2", n)
	}

	if frames := drain(sender); len(frames) != 0 {
		t.Errorf("sender got %d frames, want 0", len(frames))
	}
	for name, c := range map[string]*Client{"author's other tab": senderOther, "owner": owner} {
		frames := drain(c)
		if len(frames) != 1 || frames[0].Type != EventMessageNew {
			t.Errorf("%s frames = %+v", name, frames)
		}
	}
	if frames := drain(outsider); len(frames) != 0 {
		t.Error("client outside the room must not receive events")
	}
}

func TestHub_EmitPreservesOrder(t *testing.T) {
	hub := NewHub()
	c := newTestClient(t, hub, "u1", 64)
	hub.Join(c, ProjectRoom("p1"))

	for i := 0; i < 20; i++ {
		hub.Emit(ProjectRoom("p1"), BadgeSync("p1", i), nil)
	}

	frames := drain(c)
	if len(frames) != 20 {
		t.Fatalf("got %d frames", len(frames))
	}
	for i, f := range frames {
		var p BadgePayload
		_ = json.Unmarshal(f.Data, &p)
		if p.Unread != i {
			t.Fatalf("frame %d unread = %d, out of order", i, p.Unread)
		}
	}
}

func TestHub_EvictsSlowClient(t *testing.T) {
	hub := NewHub()
	slow := newTestClient(t, hub, "slow", 1)
	fast := newTestClient(t, hub, "fast", 8)
	hub.Join(slow, UserRoom("shared"))
	hub.Join(fast, UserRoom("shared"))

	hub.Emit(UserRoom("shared"), BadgeSync("p1", 1), nil)
	hub.Emit(UserRoom("shared"), BadgeSync("p1", 2), nil)

	if hub.GetClientCount() != 1 {
		t.Errorf("GetClientCount() = %d, want slow client evicted", hub.GetClientCount())
	}
	if hub.InRoom(slow, UserRoom("shared")) {
		t.Error("evicted client should leave every room")
	}
	if len(drain(fast)) != 2 {
		t.Error("fast client should receive both events")
	}

	// Queued frame then the closed channel.
	if frames := drain(slow); len(frames) != 1 {
		t.Errorf("slow client frames = %d, want 1", len(frames))
	}
	if _, ok := <-slow.send; ok {
		t.Error("slow client's send channel should be closed")
	}
}

func TestHub_UnregisterLeavesRooms(t *testing.T) {
	hub := NewHub()
	c := newTestClient(t, hub, "u1", 8)
	hub.Join(c, UserRoom("u1"))
	hub.Join(c, ProjectRoom("p1"))

	hub.Unregister(c)
	hub.Unregister(c)

	if hub.RoomSize(UserRoom("u1")) != 0 || hub.RoomSize(ProjectRoom("p1")) != 0 {
		t.Error("rooms should be empty after unregister")
	}
	if hub.Join(c, ProjectRoom("p1")) {
		t.Error("join after unregister must be ignored")
	}
	if hub.Send(c, BadgeSync("p1", 1)) {
		t.Error("send after unregister must fail")
	}
}

func TestHub_RunWithContextClosesClients(t *testing.T) {
	hub := NewHub()
	c := newTestClient(t, hub, "u1", 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunWithContext() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	if _, ok := <-c.send; ok {
		t.Error("client send channel should be closed on shutdown")
	}
	code, text := c.closeFrame()
	if code != 1001 || text == "" {
		t.Errorf("close frame = %d %q, want going away", code, text)
	}

	late := NewClient(hub, nil, models.Identity{ID: "late"}, nil, ClientOptions{})
	if err := hub.Register(late); !errors.Is(err, ErrHubClosed) {
		t.Errorf("Register() after shutdown = %v, want ErrHubClosed", err)
	}
}

func TestGetShutdownReason(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if got := getShutdownReason(canceled); got != ShutdownReasonContextCanceled {
		t.Errorf("got %s", got)
	}

	expired, cancel2 := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel2()
	<-expired.Done()
	if got := getShutdownReason(expired); got != ShutdownReasonContextDeadline {
		t.Errorf("got %s", got)
	}
}
