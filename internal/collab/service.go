// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

// Package collab wires the chat log, the notification store and the
// websocket hub into the collaboration service: socket event handling, the
// synchronous bump entry points used by the portal back end, and the
// consumer side of the mutation bus.
package collab

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/portal/internal/chat"
	"github.com/tomtom215/portal/internal/events"
	"github.com/tomtom215/portal/internal/logging"
	"github.com/tomtom215/portal/internal/membership"
	"github.com/tomtom215/portal/internal/metrics"
	"github.com/tomtom215/portal/internal/models"
	"github.com/tomtom215/portal/internal/notify"
	"github.com/tomtom215/portal/internal/validation"
	"github.com/tomtom215/portal/internal/websocket"
)

// Hub is the subset of *websocket.Hub the service needs.
type Hub interface {
	Emitter
	Join(c *websocket.Client, room string) bool
	Leave(c *websocket.Client, room string)
	InRoom(c *websocket.Client, room string) bool
	Clients(room string) []*websocket.Client
}

// Service handles socket events and notification bumps.
type Service struct {
	hub         Hub
	oracle      membership.Oracle
	log         *chat.Log
	store       *notify.Store
	broadcaster *Broadcaster
}

// NewService creates the collaboration service.
func NewService(hub Hub, oracle membership.Oracle, log *chat.Log, store *notify.Store) *Service {
	return &Service{
		hub:         hub,
		oracle:      oracle,
		log:         log,
		store:       store,
		broadcaster: NewBroadcaster(hub, store),
	}
}

// Broadcaster returns the service's broadcaster.
func (s *Service) Broadcaster() *Broadcaster { return s.broadcaster }

// Connect binds a freshly registered connection to its user's personal room
// and sends the current summary.
func (s *Service) Connect(c *websocket.Client) {
	id := c.Identity()
	s.hub.Join(c, websocket.UserRoom(id.ID))
	s.hub.Send(c, websocket.NotificationUpdate(s.store.Summary(id.ID)))
}

// HandleEvent implements websocket.EventHandler.
func (s *Service) HandleEvent(ctx context.Context, c *websocket.Client, evt websocket.ClientEvent) {
	switch e := evt.(type) {
	case websocket.JoinProject:
		s.join(ctx, c, e.ProjectID)
	case websocket.SendMessage:
		s.send(ctx, c, e)
	case websocket.ReadMessages:
		s.read(c, e.ProjectID)
	default:
		logging.Warn().Str("event", evt.EventType()).Msg("Unhandled client event")
	}
}

// join adds c to the project room and bootstraps it. Requests for projects
// the user is not a member of are ignored without any reply.
func (s *Service) join(ctx context.Context, c *websocket.Client, projectID string) {
	userID := c.Identity().ID
	if !membership.IsMember(ctx, s.oracle, projectID, userID) {
		metrics.RoomJoinsTotal.WithLabelValues("ignored").Inc()
		logging.Debug().
			Str("user_id", userID).
			Str("project_id", projectID).
			Msg("Ignoring project join from non-member")
		return
	}

	room := websocket.ProjectRoom(projectID)
	s.log.Bootstrap(projectID, func(history []models.Message) {
		outcome := "joined"
		if !s.hub.Join(c, room) {
			outcome = "rejoined"
		}
		metrics.RoomJoinsTotal.WithLabelValues(outcome).Inc()
		s.hub.Send(c, websocket.ProjectBootstrapped(projectID, history))
		// Message bumps for this project also run under the project lock,
		// so no newer badge can overtake this one.
		s.hub.Send(c, websocket.BadgeSync(projectID, s.store.UnreadFor(userID, projectID)))
	})
}

// send appends a chat message from a room member, delivers it to the room,
// acks the sender and bumps unread counts for the other members. Delivery and
// the bump both happen under the project lock, so concurrent sends reach
// every member with messages and badges in append order.
func (s *Service) send(ctx context.Context, c *websocket.Client, e websocket.SendMessage) {
	author := c.Identity()
	log := logging.With().Str("user_id", author.ID).Str("project_id", e.ProjectID).Logger()

	if !s.hub.InRoom(c, websocket.ProjectRoom(e.ProjectID)) {
		log.Debug().Msg("Ignoring message from connection outside the project room")
		return
	}
	project, err := s.oracle.Project(ctx, e.ProjectID)
	if err != nil || !project.Has(author.ID) {
		// Membership was revoked after the join.
		s.hub.Leave(c, websocket.ProjectRoom(e.ProjectID))
		log.Debug().Msg("Ignoring message from former member")
		return
	}

	body := strings.TrimSpace(e.Body)
	if body == "" && len(e.Attachments) == 0 {
		log.Debug().Msg("Ignoring empty message")
		return
	}

	s.log.Append(chat.Entry{
		ProjectID:       e.ProjectID,
		Author:          author,
		Body:            body,
		Attachments:     e.Attachments,
		ClientMessageID: e.ClientMessageID,
	}, func(m models.Message) {
		s.broadcaster.DeliverMessage(m, c)
		s.store.BumpMessageUnreadEmit(notify.MessageBump{
			ProjectID:   e.ProjectID,
			ProjectName: project.Name,
			AuthorID:    author.ID,
			AuthorName:  author.DisplayName,
			Preview:     preview(m),
			MemberIDs:   project.MemberIDs(),
		}, s.broadcaster.SyncBadge)
	})
}

func preview(msg models.Message) string {
	if msg.Body != "" {
		return msg.Body
	}
	if n := len(msg.Attachments); n != 1 {
		return fmt.Sprintf("sent %d attachments", n)
	}
	return "sent an attachment"
}

func (s *Service) read(c *websocket.Client, projectID string) {
	userID := c.Identity().ID
	s.store.MarkMessageRead(userID, projectID)
	s.broadcaster.RefreshUsers([]string{userID})
}

// MarkRead clears notifications for userID. For the messages category a
// non-empty projectID clears only that project.
func (s *Service) MarkRead(userID string, category models.Category, projectID string) error {
	if category == models.CategoryMessages {
		s.store.MarkMessageRead(userID, projectID)
	} else if err := s.store.MarkCategoryRead(userID, category); err != nil {
		return err
	}
	s.broadcaster.RefreshUsers([]string{userID})
	return nil
}

// Summary returns the user's notification summary.
func (s *Service) Summary(userID string) models.NotificationSummary {
	return s.store.Summary(userID)
}

// History returns a project's messages for a member, empty otherwise.
func (s *Service) History(ctx context.Context, projectID, userID string) []models.Message {
	return s.log.History(ctx, projectID, userID)
}

func (s *Service) project(ctx context.Context, projectID string) (membership.Project, error) {
	p, err := s.oracle.Project(ctx, projectID)
	if err != nil {
		return membership.Project{}, fmt.Errorf("resolve project %s: %w", projectID, err)
	}
	return p, nil
}

// NotifyUpload bumps uploads for the project's members and returns the
// number of users refreshed.
func (s *Service) NotifyUpload(ctx context.Context, req UploadRequest) (int, error) {
	p, err := s.project(ctx, req.ProjectID)
	if err != nil {
		return 0, err
	}
	ids := s.store.BumpUploads(notify.UploadBump{
		ProjectID:   p.ID,
		ProjectName: p.Name,
		Actor:       req.Actor,
		FileCount:   req.FileCount,
		MemberIDs:   p.MemberIDs(),
	})
	s.broadcaster.RefreshUsers(ids)
	return len(ids), nil
}

// NotifyProjectChange bumps projects for the project's members.
func (s *Service) NotifyProjectChange(ctx context.Context, req ProjectChangeRequest) (int, error) {
	p, err := s.project(ctx, req.ProjectID)
	if err != nil {
		return 0, err
	}
	ids := s.store.BumpProjectChange(notify.ProjectChange{
		ProjectID:   p.ID,
		ProjectName: p.Name,
		Actor:       req.Actor,
		Summary:     req.Summary,
		MemberIDs:   p.MemberIDs(),
	})
	s.broadcaster.RefreshUsers(ids)
	return len(ids), nil
}

// NotifyInvite bumps projects for the members and the invitee.
func (s *Service) NotifyInvite(ctx context.Context, req InviteRequest) (int, error) {
	p, err := s.project(ctx, req.ProjectID)
	if err != nil {
		return 0, err
	}
	ids := s.store.BumpInvite(notify.InviteBump{
		ProjectID:   p.ID,
		ProjectName: p.Name,
		Actor:       req.Actor,
		InviteeID:   req.Invitee.ID,
		InviteeName: req.Invitee.Name,
		MemberIDs:   p.MemberIDs(),
	})
	s.broadcaster.RefreshUsers(ids)
	return len(ids), nil
}

// NotifyUserChange bumps users for the listed recipients.
func (s *Service) NotifyUserChange(_ context.Context, req UserChangeRequest) (int, error) {
	ids := s.store.BumpUserChange(notify.UserChange{
		Actor:       req.Actor,
		SubjectName: req.SubjectName,
		Action:      req.Action,
		MemberIDs:   req.MemberIDs,
	})
	s.broadcaster.RefreshUsers(ids)
	return len(ids), nil
}

// HandleMutation implements events.MutationHandler. Unknown projects and
// undecodable payloads are logged and acknowledged.
func (s *Service) HandleMutation(ctx context.Context, m events.Mutation) error {
	var (
		refreshed int
		err       error
	)

	switch m.Kind {
	case events.KindUpload:
		var req UploadRequest
		if err = decodeMutation(m, &req); err == nil {
			refreshed, err = s.NotifyUpload(ctx, req)
		}
	case events.KindProjectChange:
		var req ProjectChangeRequest
		if err = decodeMutation(m, &req); err == nil {
			refreshed, err = s.NotifyProjectChange(ctx, req)
		}
	case events.KindInvite:
		var req InviteRequest
		if err = decodeMutation(m, &req); err == nil {
			refreshed, err = s.NotifyInvite(ctx, req)
		}
	case events.KindUserChange:
		var req UserChangeRequest
		if err = decodeMutation(m, &req); err == nil {
			refreshed, err = s.NotifyUserChange(ctx, req)
		}
	default:
		err = fmt.Errorf("%w: %q", events.ErrUnknownKind, m.Kind)
	}

	if err != nil {
		logging.Warn().Err(err).Str("kind", string(m.Kind)).Msg("Discarding mutation")
		return nil
	}
	logging.Debug().Str("kind", string(m.Kind)).Int("refreshed", refreshed).Msg("Mutation applied")
	return nil
}

func decodeMutation(m events.Mutation, req interface{}) error {
	if err := m.Decode(req); err != nil {
		return err
	}
	if verr := validation.ValidateStruct(req); verr != nil {
		return fmt.Errorf("invalid %s payload: %w", m.Kind, verr)
	}
	return nil
}

// PruneRoom removes connections of users who are no longer members from a
// project room. Register it as a membership directory change hook.
func (s *Service) PruneRoom(ctx context.Context, projectID string) int {
	room := websocket.ProjectRoom(projectID)
	clients := s.hub.Clients(room)
	if len(clients) == 0 {
		return 0
	}

	p, err := s.oracle.Project(ctx, projectID)
	if err != nil && !errors.Is(err, membership.ErrProjectNotFound) {
		logging.Warn().Err(err).Str("project_id", projectID).Msg("Membership lookup failed while pruning room")
		return 0
	}

	removed := 0
	for _, c := range clients {
		if err == nil && p.Has(c.Identity().ID) {
			continue
		}
		s.hub.Leave(c, room)
		removed++
	}
	if removed > 0 {
		logging.Info().Str("project_id", projectID).Int("removed", removed).Msg("Removed former members from project room")
	}
	return removed
}
