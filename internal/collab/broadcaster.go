// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package collab

import (
	"github.com/tomtom215/portal/internal/models"
	"github.com/tomtom215/portal/internal/notify"
	"github.com/tomtom215/portal/internal/websocket"
)

// Emitter is the room side of the websocket hub.
type Emitter interface {
	Emit(room string, evt websocket.ServerEvent, except *websocket.Client) int
	Send(c *websocket.Client, evt websocket.ServerEvent) bool
}

// Broadcaster turns store changes into socket events.
type Broadcaster struct {
	hub   Emitter
	store *notify.Store
}

// NewBroadcaster creates a broadcaster over hub that reads summaries from store.
func NewBroadcaster(hub Emitter, store *notify.Store) *Broadcaster {
	return &Broadcaster{hub: hub, store: store}
}

// RefreshUsers pushes each user's full summary to their personal room.
func (b *Broadcaster) RefreshUsers(userIDs []string) {
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		b.hub.Emit(websocket.UserRoom(id), websocket.NotificationUpdate(b.store.Summary(id)), nil)
	}
}

// SyncBadges pushes per-project unread counts.
func (b *Broadcaster) SyncBadges(updates []models.BadgeUpdate) {
	for _, u := range updates {
		b.SyncBadge(u)
	}
}

// SyncBadge pushes one user's unread count for one project.
func (b *Broadcaster) SyncBadge(u models.BadgeUpdate) {
	b.hub.Emit(websocket.UserRoom(u.UserID), websocket.BadgeSync(u.ProjectID, u.Unread), nil)
}

// DeliverMessage sends msg to the project room, skipping the sending
// connection, and acknowledges it to the sender only.
func (b *Broadcaster) DeliverMessage(msg models.Message, sender *websocket.Client) {
	b.hub.Emit(websocket.ProjectRoom(msg.ProjectID), websocket.MessageNew(msg), sender)
	if sender != nil && msg.ClientMessageID != "" {
		b.hub.Send(sender, websocket.MessageAck(msg.ClientMessageID, msg.ID))
	}
}
