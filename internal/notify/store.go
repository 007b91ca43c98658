// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

// Package notify is the per-user notification aggregate: unread counters by
// category plus a bounded recent-activity feed.
//
// Each user's state has its own lock. A bump that touches several users
// locks all of them in sorted id order, applies the change to every one and
// only then unlocks, so a fan-out is never observed half applied. Callers
// push live updates after the bump returns.
package notify

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/portal/internal/logging"
	"github.com/tomtom215/portal/internal/models"
)

// FeedCapacity is the maximum number of feed entries kept per user.
const FeedCapacity = 25

// KeyPrefix namespaces notification snapshots in the persistence store.
const KeyPrefix = "notify/"

// ErrUnknownCategory is returned by MarkCategoryRead for unknown categories.
var ErrUnknownCategory = errors.New("unknown notification category")

// Snapshotter receives serialized state for write-behind persistence.
type Snapshotter interface {
	Enqueue(key string, value []byte)
}

// userState is one user's notification state. Guarded by mu.
type userState struct {
	mu sync.Mutex

	messagesByProject map[string]models.ProjectUnread
	uploads           int
	projects          int
	users             int
	// feed is newest first.
	feed []models.FeedEvent
}

func newUserState() *userState {
	return &userState{messagesByProject: make(map[string]models.ProjectUnread)}
}

// persistedState is the on-disk form of userState.
type persistedState struct {
	MessagesByProject map[string]models.ProjectUnread `json:"messagesByProject"`
	Uploads           int                             `json:"uploads"`
	Projects          int                             `json:"projects"`
	Users             int                             `json:"users"`
	Feed              []models.FeedEvent              `json:"feed"`
}

// Store owns every user's notification state.
type Store struct {
	mu    sync.RWMutex
	users map[string]*userState

	sink  Snapshotter
	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithSnapshotter persists every mutated user state through s.
func WithSnapshotter(s Snapshotter) Option {
	return func(st *Store) { st.sink = s }
}

// WithClock overrides the time source for feed timestamps.
func WithClock(now func() time.Time) Option {
	return func(st *Store) { st.now = now }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		users: make(map[string]*userState),
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ensure returns the user's state, creating a zero state on first access.
func (s *Store) ensure(userID string) *userState {
	s.mu.RLock()
	st, ok := s.users[userID]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok = s.users[userID]; !ok {
		st = newUserState()
		s.users[userID] = st
	}
	return st
}

// withUser runs fn with the user's state locked and snapshots it afterwards
// when fn reports a change.
func (s *Store) withUser(userID string, fn func(st *userState) bool) {
	st := s.ensure(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if fn(st) {
		s.snapshot(userID, st)
	}
}

// withUsers locks every listed user in sorted order, runs fn once with all
// states held, snapshots them and unlocks. ids must be sorted and unique.
func (s *Store) withUsers(ids []string, fn func(states map[string]*userState)) {
	states := make(map[string]*userState, len(ids))
	for _, id := range ids {
		states[id] = s.ensure(id)
	}
	for _, id := range ids {
		states[id].mu.Lock()
	}
	defer func() {
		for i := len(ids) - 1; i >= 0; i-- {
			states[ids[i]].mu.Unlock()
		}
	}()

	fn(states)
	for _, id := range ids {
		s.snapshot(id, states[id])
	}
}

// snapshot enqueues the user's serialized state (must be called with st.mu held).
func (s *Store) snapshot(userID string, st *userState) {
	if s.sink == nil {
		return
	}
	data, err := json.Marshal(persistedState{
		MessagesByProject: st.messagesByProject,
		Uploads:           st.uploads,
		Projects:          st.projects,
		Users:             st.users,
		Feed:              st.feed,
	})
	if err != nil {
		logging.Error().Err(err).Str("user_id", userID).Msg("Failed to encode notification snapshot")
		return
	}
	s.sink.Enqueue(KeyPrefix+userID, data)
}

// KeyPrefix implements persist.Restorer.
func (s *Store) KeyPrefix() string { return KeyPrefix }

// RestoreEntry implements persist.Restorer, replacing the user's state with
// the decoded snapshot.
func (s *Store) RestoreEntry(key string, value []byte) error {
	userID := strings.TrimPrefix(key, KeyPrefix)
	if userID == "" || userID == key {
		return fmt.Errorf("invalid notification key %q", key)
	}

	var p persistedState
	if err := json.Unmarshal(value, &p); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}

	st := newUserState()
	for projectID, unread := range p.MessagesByProject {
		if unread.Count > 0 {
			st.messagesByProject[projectID] = unread
		}
	}
	st.uploads, st.projects, st.users = p.Uploads, p.Projects, p.Users
	st.feed = p.Feed
	if len(st.feed) > FeedCapacity {
		st.feed = st.feed[:FeedCapacity]
	}

	s.mu.Lock()
	s.users[userID] = st
	s.mu.Unlock()
	return nil
}

// pushFeed prepends ev, evicting the oldest entry beyond FeedCapacity.
func (st *userState) pushFeed(ev models.FeedEvent) {
	if len(st.feed) < FeedCapacity {
		st.feed = append(st.feed, models.FeedEvent{})
	}
	copy(st.feed[1:], st.feed)
	st.feed[0] = ev
}

// uniqueSorted returns ids without blanks or duplicates, sorted.
func uniqueSorted(ids ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range ids {
		for _, id := range list {
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
