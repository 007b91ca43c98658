// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package websocket

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/portal/internal/models"
	"github.com/tomtom215/portal/internal/validation"
)

// Client to server event types.
const (
	EventJoinProject  = "project:join"
	EventSendMessage  = "message:send"
	EventReadMessages = "message:read"
)

// Server to client event types.
const (
	EventProjectBootstrapped = "project:bootstrapped"
	EventMessageNew          = "message:new"
	EventMessageAck          = "message:ack"
	EventBadgeSync           = "badge:sync"
	EventNotificationUpdate  = "notification:update"
)

// MaxBodyLength is the longest chat body accepted, in bytes.
const MaxBodyLength = 10000

var (
	// ErrUnknownEvent is returned for frames with an unrecognized type.
	ErrUnknownEvent = errors.New("unknown event type")
	// ErrMalformedEvent is returned for frames that cannot be decoded.
	ErrMalformedEvent = errors.New("malformed event")
)

// Frame is the wire envelope in both directions.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ClientEvent is an event received from a connection. The set of
// implementations is closed.
type ClientEvent interface {
	EventType() string
	clientEvent()
}

// JoinProject asks to join a project room.
type JoinProject struct {
	ProjectID string `json:"projectId" validate:"required,max=128"`
}

// SendMessage appends a chat message. ClientMessageID correlates the ack
// with the sender's optimistic entry.
type SendMessage struct {
	ProjectID       string              `json:"projectId" validate:"required,max=128"`
	Body            string              `json:"body" validate:"max=10000"`
	Attachments     []models.Attachment `json:"attachments" validate:"max=20,dive"`
	ClientMessageID string              `json:"clientMessageId" validate:"max=128"`
}

// ReadMessages marks a project's messages read for the caller.
type ReadMessages struct {
	ProjectID string `json:"projectId" validate:"required,max=128"`
}

func (JoinProject) EventType() string  { return EventJoinProject }
func (SendMessage) EventType() string  { return EventSendMessage }
func (ReadMessages) EventType() string { return EventReadMessages }

func (JoinProject) clientEvent()  {}
func (SendMessage) clientEvent()  {}
func (ReadMessages) clientEvent() {}

// DecodeClientEvent parses and validates one inbound frame.
func DecodeClientEvent(data []byte) (ClientEvent, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var evt ClientEvent
	switch f.Type {
	case EventJoinProject:
		var e JoinProject
		if err := decodeData(f, &e); err != nil {
			return nil, err
		}
		evt = e
	case EventSendMessage:
		var e SendMessage
		if err := decodeData(f, &e); err != nil {
			return nil, err
		}
		evt = e
	case EventReadMessages:
		var e ReadMessages
		if err := decodeData(f, &e); err != nil {
			return nil, err
		}
		evt = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Type)
	}
	return evt, nil
}

func decodeData(f Frame, v interface{}) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%w: %s without data", ErrMalformedEvent, f.Type)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, f.Type, err)
	}
	if verr := validation.ValidateStruct(v); verr != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, f.Type, verr)
	}
	return nil
}

// ServerEvent is an outbound event before encoding.
type ServerEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Encode returns the wire frame for e.
func (e ServerEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// BootstrapPayload is the data of project:bootstrapped.
type BootstrapPayload struct {
	ProjectID string           `json:"projectId"`
	History   []models.Message `json:"history"`
}

// AckPayload is the data of message:ack.
type AckPayload struct {
	ClientMessageID string `json:"clientMessageId"`
	MessageID       string `json:"messageId"`
}

// BadgePayload is the data of badge:sync.
type BadgePayload struct {
	ProjectID string `json:"projectId"`
	Unread    int    `json:"unread"`
}

// NotificationPayload is the data of notification:update.
type NotificationPayload struct {
	Summary models.NotificationSummary `json:"summary"`
}

// ProjectBootstrapped carries the full ordered history of a project.
func ProjectBootstrapped(projectID string, history []models.Message) ServerEvent {
	if history == nil {
		history = []models.Message{}
	}
	return ServerEvent{Type: EventProjectBootstrapped, Data: BootstrapPayload{ProjectID: projectID, History: history}}
}

// MessageNew carries a newly appended message.
func MessageNew(msg models.Message) ServerEvent {
	return ServerEvent{Type: EventMessageNew, Data: msg}
}

// MessageAck confirms the sender's optimistic entry.
func MessageAck(clientMessageID, messageID string) ServerEvent {
	return ServerEvent{Type: EventMessageAck, Data: AckPayload{ClientMessageID: clientMessageID, MessageID: messageID}}
}

// BadgeSync carries one project's unread count.
func BadgeSync(projectID string, unread int) ServerEvent {
	return ServerEvent{Type: EventBadgeSync, Data: BadgePayload{ProjectID: projectID, Unread: unread}}
}

// NotificationUpdate carries a full notification summary.
func NotificationUpdate(summary models.NotificationSummary) ServerEvent {
	return ServerEvent{Type: EventNotificationUpdate, Data: NotificationPayload{Summary: summary}}
}

// UserRoom is the personal room of a user.
func UserRoom(userID string) string { return "user:" + userID }

// ProjectRoom is the room of a project.
func ProjectRoom(projectID string) string { return "project:" + projectID }
