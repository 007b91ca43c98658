// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

// Package chat is the per-project append-only message log.
//
// Appends to one project are serialized by that project's lock and the
// delivery callback runs under the same lock, so every observer sees a
// project's messages in append order. Different projects never contend.
package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/portal/internal/logging"
	"github.com/tomtom215/portal/internal/membership"
	"github.com/tomtom215/portal/internal/metrics"
	"github.com/tomtom215/portal/internal/models"
)

// KeyPrefix namespaces chat snapshots in the persistence store.
const KeyPrefix = "chat/"

// Snapshotter receives serialized state for write-behind persistence.
type Snapshotter interface {
	Enqueue(key string, value []byte)
}

// Entry is the input to Append.
type Entry struct {
	ProjectID       string
	Author          models.Identity
	Body            string
	Attachments     []models.Attachment
	ClientMessageID string
}

type projectLog struct {
	mu       sync.Mutex
	messages []models.Message
	// nextSeq is the persistence sequence for the next append. It can run
	// ahead of len(messages) when restore skipped unreadable entries.
	nextSeq int
}

// Log stores every project's chat history in memory.
type Log struct {
	mu       sync.Mutex
	projects map[string]*projectLog

	oracle membership.Oracle
	sink   Snapshotter
	now    func() time.Time
	newID  func() string
}

// Option configures a Log.
type Option func(*Log)

// WithSnapshotter persists every appended message through s.
func WithSnapshotter(s Snapshotter) Option {
	return func(l *Log) { l.sink = s }
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// NewLog creates an empty log. History checks membership against oracle.
func NewLog(oracle membership.Oracle, opts ...Option) *Log {
	l := &Log{
		projects: make(map[string]*projectLog),
		oracle:   oracle,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ensure returns the project's log, creating it on first use.
func (l *Log) ensure(projectID string) *projectLog {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.projects[projectID]
	if !ok {
		p = &projectLog{}
		l.projects[projectID] = p
	}
	return p
}

// Append records a new message and returns it. The caller is responsible for
// checking that the author is a current room member.
//
// deliver, if non-nil, runs before the project lock is released.
func (l *Log) Append(e Entry, deliver func(models.Message)) models.Message {
	attachments := append([]models.Attachment(nil), e.Attachments...)
	if attachments == nil {
		attachments = []models.Attachment{}
	}

	p := l.ensure(e.ProjectID)
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := models.Message{
		ID:              l.newID(),
		ClientMessageID: e.ClientMessageID,
		ProjectID:       e.ProjectID,
		Body:            e.Body,
		Attachments:     attachments,
		Author:          e.Author,
		CreatedAt:       l.now().UTC(),
	}
	seq := p.nextSeq
	p.nextSeq++
	p.messages = append(p.messages, msg)
	metrics.ChatMessagesTotal.Inc()

	if deliver != nil {
		deliver(msg.Clone())
	}
	l.snapshot(seq, msg)
	return msg.Clone()
}

func (l *Log) snapshot(seq int, msg models.Message) {
	if l.sink == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error().Err(err).Str("project_id", msg.ProjectID).Msg("Failed to encode message snapshot")
		return
	}
	l.sink.Enqueue(MessageKey(msg.ProjectID, seq), data)
}

// History returns the ordered log for projectID if userID is a current
// member, and an empty slice otherwise, including for unknown projects.
func (l *Log) History(ctx context.Context, projectID, userID string) []models.Message {
	if !membership.IsMember(ctx, l.oracle, projectID, userID) {
		return []models.Message{}
	}
	return l.snapshotOf(projectID)
}

func (l *Log) snapshotOf(projectID string) []models.Message {
	l.mu.Lock()
	p, ok := l.projects[projectID]
	l.mu.Unlock()
	if !ok {
		return []models.Message{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Message, len(p.messages))
	for i, m := range p.messages {
		out[i] = m.Clone()
	}
	return out
}

// Bootstrap runs fn with the project's current history while holding the
// project lock. Appends wait until fn returns, so a room join performed in
// fn sees every message exactly once: in the history or as a later delivery.
// The caller checks membership first.
func (l *Log) Bootstrap(projectID string, fn func(history []models.Message)) {
	p := l.ensure(projectID)
	p.mu.Lock()
	defer p.mu.Unlock()

	history := make([]models.Message, len(p.messages))
	for i, m := range p.messages {
		history[i] = m.Clone()
	}
	fn(history)
}

// Len returns the number of messages in a project's log.
func (l *Log) Len(projectID string) int {
	l.mu.Lock()
	p, ok := l.projects[projectID]
	l.mu.Unlock()
	if !ok {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

// MessageKey is the persistence key for the seq-th message of a project.
// Zero padding keeps lexical order equal to append order.
func MessageKey(projectID string, seq int) string {
	return fmt.Sprintf("%s%s/%012d", KeyPrefix, projectID, seq)
}

// KeyPrefix implements persist.Restorer.
func (l *Log) KeyPrefix() string { return KeyPrefix }

// RestoreEntry implements persist.Restorer. Entries must be replayed in key
// order; each one is appended to its project's log. The key's sequence is
// reserved even when the value cannot be decoded, so later appends never
// reuse a stored key.
func (l *Log) RestoreEntry(key string, value []byte) error {
	projectID, seq, err := parseMessageKey(key)
	if err != nil {
		return err
	}

	p := l.ensure(projectID)
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq >= p.nextSeq {
		p.nextSeq = seq + 1
	}

	var msg models.Message
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	if msg.ProjectID != projectID {
		return fmt.Errorf("message key %s does not match project %q", key, msg.ProjectID)
	}
	if msg.Attachments == nil {
		msg.Attachments = []models.Attachment{}
	}
	p.messages = append(p.messages, msg)
	return nil
}

// parseMessageKey splits a key produced by MessageKey.
func parseMessageKey(key string) (projectID string, seq int, err error) {
	rest, ok := strings.CutPrefix(key, KeyPrefix)
	i := strings.LastIndexByte(rest, '/')
	if !ok || i <= 0 {
		return "", 0, fmt.Errorf("invalid message key %q", key)
	}
	seq, err = strconv.Atoi(rest[i+1:])
	if err != nil || seq < 0 {
		return "", 0, fmt.Errorf("invalid message key %q", key)
	}
	return rest[:i], seq, nil
}
