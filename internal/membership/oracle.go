// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

// Package membership answers "who is in this project" for the collaboration
// core. Project records are owned by the portal's CRUD stores; this package
// only consumes them through the Oracle interface.
package membership

import (
	"context"
	"errors"
)

// ErrProjectNotFound is returned when a project id is unknown.
var ErrProjectNotFound = errors.New("project not found")

// Member is one user's membership in a project.
type Member struct {
	UserID string `json:"userId" validate:"required,max=128"`
	Role   string `json:"role" validate:"omitempty,max=32"`
}

// Project is a project id, its display name and its current members.
type Project struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []Member `json:"members"`
}

// Oracle resolves projects to their current member list.
type Oracle interface {
	// Project returns the project or an error wrapping ErrProjectNotFound.
	Project(ctx context.Context, projectID string) (Project, error)
}

// Has reports whether userID is a member.
func (p Project) Has(userID string) bool {
	_, ok := p.RoleOf(userID)
	return ok
}

// RoleOf returns the member's project role.
func (p Project) RoleOf(userID string) (string, bool) {
	for _, m := range p.Members {
		if m.UserID == userID {
			return m.Role, true
		}
	}
	return "", false
}

// MemberIDs returns the member user ids in list order.
func (p Project) MemberIDs() []string {
	ids := make([]string, 0, len(p.Members))
	for _, m := range p.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

// Clone returns a copy that does not share the members slice.
func (p Project) Clone() Project {
	out := p
	out.Members = append([]Member(nil), p.Members...)
	return out
}

// IsMember reports whether userID currently belongs to projectID. Lookup
// errors, including unknown projects, count as "not a member".
func IsMember(ctx context.Context, o Oracle, projectID, userID string) bool {
	p, err := o.Project(ctx, projectID)
	if err != nil {
		return false
	}
	return p.Has(userID)
}
