// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package collab

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/portal/internal/models"
	"github.com/tomtom215/portal/internal/websocket"
)

// gatedHub holds the first badge:sync for one user until released.
type gatedHub struct {
	*recordingHub

	room    string
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedHub) Emit(room string, evt websocket.ServerEvent, except *websocket.Client) int {
	if room == g.room && evt.Type == websocket.EventBadgeSync {
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
	return g.recordingHub.Emit(room, evt, except)
}

func badgeCounts(t *testing.T, evts []websocket.ServerEvent) []int {
	t.Helper()
	var out []int
	for _, e := range ofType(evts, websocket.EventBadgeSync) {
		out = append(out, e.Data.(websocket.BadgePayload).Unread)
	}
	return out
}

func messageBodies(evts []websocket.ServerEvent) []string {
	var out []string
	for _, e := range ofType(evts, websocket.EventMessageNew) {
		out = append(out, e.Data.(models.Message).Body)
	}
	return out
}

func TestSend_SlowBadgePushIsNotOvertaken(t *testing.T) {
	f := newFixture(t)
	g := &gatedHub{
		recordingHub: f.hub,
		room:         websocket.UserRoom("o"),
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	f.service = NewService(g, f.dir, f.log, f.store)

	o := f.connect(t, "o", "Olive")
	s := f.connect(t, "s", "Sam")
	c := f.connect(t, "c", "Cleo")
	for _, conn := range []*websocket.Client{o, s, c} {
		f.join(conn, "p1")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		f.service.HandleEvent(context.Background(), c, websocket.SendMessage{ProjectID: "p1", Body: "first"})
	}()
	<-g.entered
	go func() {
		defer wg.Done()
		f.service.HandleEvent(context.Background(), s, websocket.SendMessage{ProjectID: "p1", Body: "second"})
	}()

	// Give the second send time to overtake if it could.
	time.Sleep(50 * time.Millisecond)
	close(g.release)
	wg.Wait()

	got := badgeCounts(t, f.hub.take(o))
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("badge:sync sequence to o = %v, want [1 2]", got)
	}
	if unread := f.store.UnreadFor("o", "p1"); unread != 2 {
		t.Errorf("server unread for o = %d, want 2", unread)
	}
}

func TestSend_ConcurrentSendersKeepBadgesInStep(t *testing.T) {
	const perSender = 50

	f := newFixture(t)
	o := f.connect(t, "o", "Olive")
	s := f.connect(t, "s", "Sam")
	c := f.connect(t, "c", "Cleo")
	for _, conn := range []*websocket.Client{o, s, c} {
		f.join(conn, "p1")
	}

	var wg sync.WaitGroup
	for _, sender := range []*websocket.Client{s, c} {
		wg.Add(1)
		go func(sender *websocket.Client) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				body := fmt.Sprintf("%s-%d", sender.Identity().ID, i)
				f.service.HandleEvent(context.Background(), sender, websocket.SendMessage{ProjectID: "p1", Body: body})
			}
		}(sender)
	}
	wg.Wait()

	history := f.log.History(context.Background(), "p1", "o")
	if len(history) != 2*perSender {
		t.Fatalf("log length = %d, want %d", len(history), 2*perSender)
	}

	evts := f.hub.take(o)
	bodies := messageBodies(evts)
	for i, m := range history {
		if i >= len(bodies) || bodies[i] != m.Body {
			t.Fatalf("message:new order to o diverges from the log at %d", i)
		}
	}

	badges := badgeCounts(t, evts)
	if len(badges) != 2*perSender {
		t.Fatalf("o received %d badges, want %d", len(badges), 2*perSender)
	}
	for i, n := range badges {
		if n != i+1 {
			t.Fatalf("badge %d to o = %d, want %d (sequence %v)", i, n, i+1, badges)
		}
	}

	for userID, conn := range map[string]*websocket.Client{"o": o, "s": s, "c": c} {
		var last []int
		if userID == "o" {
			last = badges
		} else {
			last = badgeCounts(t, f.hub.take(conn))
		}
		if len(last) == 0 {
			t.Errorf("%s received no badge", userID)
			continue
		}
		if got, want := last[len(last)-1], f.store.UnreadFor(userID, "p1"); got != want {
			t.Errorf("%s last badge = %d, server unread = %d", userID, got, want)
		}
	}
}
