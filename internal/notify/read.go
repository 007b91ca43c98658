// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package notify

import (
	"fmt"

	"github.com/tomtom215/portal/internal/models"
)

// MarkMessageRead removes the user's unread entry for projectID and marks the
// matching message feed entries read. An empty projectID clears every project.
func (s *Store) MarkMessageRead(userID, projectID string) {
	s.withUser(userID, func(st *userState) bool {
		changed := false
		if projectID == "" {
			if len(st.messagesByProject) > 0 {
				st.messagesByProject = make(map[string]models.ProjectUnread)
				changed = true
			}
		} else if _, ok := st.messagesByProject[projectID]; ok {
			delete(st.messagesByProject, projectID)
			changed = true
		}

		for i := range st.feed {
			ev := &st.feed[i]
			if ev.Category != models.CategoryMessages {
				continue
			}
			if projectID != "" && ev.ProjectID != projectID {
				continue
			}
			if markRead(ev) {
				changed = true
			}
		}
		return changed
	})
}

// MarkCategoryRead clears a category for the user. Scalar categories are
// zeroed; messages clears every project.
func (s *Store) MarkCategoryRead(userID string, category models.Category) error {
	switch category {
	case models.CategoryMessages:
		s.MarkMessageRead(userID, "")
		return nil
	case models.CategoryUploads, models.CategoryProjects, models.CategoryUsers:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	s.withUser(userID, func(st *userState) bool {
		changed := false
		counter := st.counter(category)
		if *counter != 0 {
			*counter = 0
			changed = true
		}
		for i := range st.feed {
			if st.feed[i].Category == category && markRead(&st.feed[i]) {
				changed = true
			}
		}
		return changed
	})
	return nil
}

// counter returns the scalar counter for a non-message category.
func (st *userState) counter(category models.Category) *int {
	switch category {
	case models.CategoryUploads:
		return &st.uploads
	case models.CategoryProjects:
		return &st.projects
	case models.CategoryUsers:
		return &st.users
	default:
		return nil
	}
}

// markRead flips an entry to read. Returns false if it already was.
func markRead(ev *models.FeedEvent) bool {
	if ev.Read && !ev.CountsTowardsTotal {
		return false
	}
	ev.Read = true
	ev.CountsTowardsTotal = false
	return true
}
