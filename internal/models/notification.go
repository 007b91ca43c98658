// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package models

import "time"

// Category groups notifications for counters and badges.
type Category string

const (
	CategoryMessages Category = "messages"
	CategoryUploads  Category = "uploads"
	CategoryProjects Category = "projects"
	CategoryUsers    Category = "users"
)

// Valid reports whether c is one of the four known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryMessages, CategoryUploads, CategoryProjects, CategoryUsers:
		return true
	}
	return false
}

// FeedEvent is a human-readable activity entry in a user's recent feed.
// Only Read and CountsTowardsTotal change after creation.
type FeedEvent struct {
	ID                 string    `json:"id"`
	Category           Category  `json:"category"`
	ProjectID          string    `json:"projectId,omitempty"`
	ProjectName        string    `json:"projectName,omitempty"`
	ActorID            string    `json:"actorId,omitempty"`
	ActorName          string    `json:"actorName,omitempty"`
	Title              string    `json:"title"`
	Body               string    `json:"body"`
	CreatedAt          time.Time `json:"createdAt"`
	Read               bool      `json:"read"`
	CountsTowardsTotal bool      `json:"countsTowardsTotal"`
}

// ProjectUnread is the per-project unread message counter.
type ProjectUnread struct {
	Count         int       `json:"count"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// BadgeUpdate is a per-project unread count destined for one user.
type BadgeUpdate struct {
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId"`
	Unread    int    `json:"unread"`
}

// CategoryTotal is the counter for a scalar category.
type CategoryTotal struct {
	Total int `json:"total"`
}

// MessagesTotal is the messages section of a summary.
type MessagesTotal struct {
	Total     int            `json:"total"`
	ByProject map[string]int `json:"byProject"`
}

// NotificationSummary is the client-facing view of a user's notification
// state. The feed is a copy and may be freely modified by the receiver.
type NotificationSummary struct {
	Total    int           `json:"total"`
	Messages MessagesTotal `json:"messages"`
	Uploads  CategoryTotal `json:"uploads"`
	Projects CategoryTotal `json:"projects"`
	Users    CategoryTotal `json:"users"`
	Feed     []FeedEvent   `json:"feed"`
}
