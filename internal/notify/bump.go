// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package notify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tomtom215/portal/internal/metrics"
	"github.com/tomtom215/portal/internal/models"
)

// PreviewLength is the maximum number of runes of a chat body quoted in the feed.
const PreviewLength = 140

// Actor is the user whose action caused a bump. The actor never receives a
// counter increment for their own action but does get a feed entry.
type Actor struct {
	ID   string `json:"id" validate:"required,max=128"`
	Name string `json:"name" validate:"omitempty,max=256"`
}

func (a Actor) displayName() string {
	switch {
	case strings.TrimSpace(a.Name) != "":
		return a.Name
	case a.ID != "":
		return a.ID
	default:
		return "Someone"
	}
}

// MessageBump describes a new chat message.
type MessageBump struct {
	ProjectID   string
	ProjectName string
	AuthorID    string
	AuthorName  string
	Preview     string
	MemberIDs   []string
}

// UploadBump describes files uploaded to a project.
type UploadBump struct {
	ProjectID   string
	ProjectName string
	Actor       Actor
	FileCount   int
	MemberIDs   []string
}

// ProjectChange describes an edit to a project (stage, task, details).
type ProjectChange struct {
	ProjectID   string
	ProjectName string
	Actor       Actor
	// Summary is short text such as "stage Design marked completed".
	Summary   string
	MemberIDs []string
}

// UserChange describes a change to the user directory.
type UserChange struct {
	Actor Actor
	// SubjectName is the user that was added, removed or updated.
	SubjectName string
	// Action is a past-tense verb: "added", "removed", "updated".
	Action    string
	MemberIDs []string
}

// InviteBump describes a user invited to a project. The invitee is notified
// along with the existing members.
type InviteBump struct {
	ProjectID   string
	ProjectName string
	Actor       Actor
	InviteeID   string
	InviteeName string
	MemberIDs   []string
}

// BumpMessageUnread increments the project's unread count for every member
// except the author and returns the new count per recipient.
func (s *Store) BumpMessageUnread(in MessageBump) []models.BadgeUpdate {
	return s.BumpMessageUnreadEmit(in, nil)
}

// BumpMessageUnreadEmit is BumpMessageUnread that also calls emit with each
// recipient's new count before their state is unlocked. A user's badge pushes
// therefore leave in the same order as the changes to their count.
func (s *Store) BumpMessageUnreadEmit(in MessageBump, emit func(models.BadgeUpdate)) []models.BadgeUpdate {
	metrics.NotificationBumpsTotal.WithLabelValues(string(models.CategoryMessages)).Inc()

	author := Actor{ID: in.AuthorID, Name: in.AuthorName}
	projectName := orID(in.ProjectName, in.ProjectID)
	ids := uniqueSorted(in.MemberIDs, []string{in.AuthorID})
	now := s.now().UTC()

	var updates []models.BadgeUpdate
	s.withUsers(ids, func(states map[string]*userState) {
		for _, id := range ids {
			st := states[id]
			isAuthor := id == in.AuthorID
			if !isAuthor {
				unread := st.messagesByProject[in.ProjectID]
				unread.Count++
				unread.LastMessageAt = now
				st.messagesByProject[in.ProjectID] = unread
				updates = append(updates, models.BadgeUpdate{UserID: id, ProjectID: in.ProjectID, Unread: unread.Count})
			}
			st.pushFeed(models.FeedEvent{
				ID:                 s.newID(),
				Category:           models.CategoryMessages,
				ProjectID:          in.ProjectID,
				ProjectName:        projectName,
				ActorID:            author.ID,
				ActorName:          author.displayName(),
				Title:              "New message in " + projectName,
				Body:               author.displayName() + ": " + truncate(in.Preview, PreviewLength),
				CreatedAt:          now,
				CountsTowardsTotal: !isAuthor,
			})
		}
		if emit != nil {
			for _, u := range updates {
				emit(u)
			}
		}
	})
	return updates
}

// BumpUploads increments the uploads counter for members except the actor.
// Returns every user whose state changed, actor included.
func (s *Store) BumpUploads(in UploadBump) []string {
	count := in.FileCount
	if count < 1 {
		count = 1
	}
	noun := "files"
	if count == 1 {
		noun = "file"
	}
	projectName := orID(in.ProjectName, in.ProjectID)
	return s.apply(fanout{
		category:    models.CategoryUploads,
		projectID:   in.ProjectID,
		projectName: projectName,
		actor:       in.Actor,
		title:       "New files in " + projectName,
		body:        fmt.Sprintf("%s uploaded %d %s to %s", in.Actor.displayName(), count, noun, projectName),
		recipients:  in.MemberIDs,
	}, func(st *userState) { st.uploads++ })
}

// BumpProjectChange increments the projects counter for members except the actor.
func (s *Store) BumpProjectChange(in ProjectChange) []string {
	projectName := orID(in.ProjectName, in.ProjectID)
	body := fmt.Sprintf("%s updated %s", in.Actor.displayName(), projectName)
	if summary := strings.TrimSpace(in.Summary); summary != "" {
		body += ": " + summary
	}
	return s.apply(fanout{
		category:    models.CategoryProjects,
		projectID:   in.ProjectID,
		projectName: projectName,
		actor:       in.Actor,
		title:       projectName + " updated",
		body:        body,
		recipients:  in.MemberIDs,
	}, func(st *userState) { st.projects++ })
}

// BumpUserChange increments the users counter for recipients except the actor.
func (s *Store) BumpUserChange(in UserChange) []string {
	action := strings.TrimSpace(in.Action)
	if action == "" {
		action = "updated"
	}
	return s.apply(fanout{
		category:   models.CategoryUsers,
		actor:      in.Actor,
		title:      "Team updated",
		body:       fmt.Sprintf("%s %s %s", in.Actor.displayName(), action, in.SubjectName),
		recipients: in.MemberIDs,
	}, func(st *userState) { st.users++ })
}

// BumpInvite counts under the projects category for members and the invitee.
func (s *Store) BumpInvite(in InviteBump) []string {
	projectName := orID(in.ProjectName, in.ProjectID)
	invitee := orID(in.InviteeName, in.InviteeID)
	return s.apply(fanout{
		category:    models.CategoryProjects,
		projectID:   in.ProjectID,
		projectName: projectName,
		actor:       in.Actor,
		title:       "Invitation to " + projectName,
		body:        fmt.Sprintf("%s invited %s to %s", in.Actor.displayName(), invitee, projectName),
		recipients:  append(append([]string(nil), in.MemberIDs...), in.InviteeID),
	}, func(st *userState) { st.projects++ })
}

// fanout is a scalar-category bump applied to a set of users.
type fanout struct {
	category    models.Category
	projectID   string
	projectName string
	actor       Actor
	title       string
	body        string
	recipients  []string
}

// apply runs increment on every recipient except the actor and adds one feed
// entry per user. The actor's entry does not count towards their total.
func (s *Store) apply(f fanout, increment func(st *userState)) []string {
	metrics.NotificationBumpsTotal.WithLabelValues(string(f.category)).Inc()

	ids := uniqueSorted(f.recipients, []string{f.actor.ID})
	now := s.now().UTC()

	s.withUsers(ids, func(states map[string]*userState) {
		for _, id := range ids {
			st := states[id]
			isActor := id == f.actor.ID
			if !isActor {
				increment(st)
			}
			st.pushFeed(models.FeedEvent{
				ID:                 s.newID(),
				Category:           f.category,
				ProjectID:          f.projectID,
				ProjectName:        f.projectName,
				ActorID:            f.actor.ID,
				ActorName:          f.actor.displayName(),
				Title:              f.title,
				Body:               f.body,
				CreatedAt:          now,
				CountsTowardsTotal: !isActor,
			})
		}
	})
	return ids
}

func orID(name, id string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return id
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "…"
}
