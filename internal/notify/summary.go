// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package notify

import "github.com/tomtom215/portal/internal/models"

// Summary returns the user's counters and a copy of their feed.
//
// Total is the sum of the scalar counters and per-project message counts,
// plus unread feed entries that do not count towards the total and whose
// category currently has no counter of its own. The last term keeps a
// user's own recent activity visible in the badge.
func (s *Store) Summary(userID string) models.NotificationSummary {
	st := s.ensure(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	byProject := make(map[string]int, len(st.messagesByProject))
	messagesTotal := 0
	for projectID, unread := range st.messagesByProject {
		byProject[projectID] = unread.Count
		messagesTotal += unread.Count
	}

	total := messagesTotal + st.uploads + st.projects + st.users
	for _, ev := range st.feed {
		if !ev.Read && !ev.CountsTowardsTotal && !st.hasCounterFor(ev) {
			total++
		}
	}

	feed := make([]models.FeedEvent, len(st.feed))
	copy(feed, st.feed)

	return models.NotificationSummary{
		Total:    total,
		Messages: models.MessagesTotal{Total: messagesTotal, ByProject: byProject},
		Uploads:  models.CategoryTotal{Total: st.uploads},
		Projects: models.CategoryTotal{Total: st.projects},
		Users:    models.CategoryTotal{Total: st.users},
		Feed:     feed,
	}
}

// UnreadFor returns the user's unread message count for one project.
func (s *Store) UnreadFor(userID, projectID string) int {
	st := s.ensure(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.messagesByProject[projectID].Count
}

func (st *userState) hasCounterFor(ev models.FeedEvent) bool {
	if ev.Category == models.CategoryMessages {
		if ev.ProjectID == "" {
			return false
		}
		_, ok := st.messagesByProject[ev.ProjectID]
		return ok
	}
	if counter := st.counter(ev.Category); counter != nil {
		return *counter > 0
	}
	return false
}
