// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package models

import "time"

// Attachment is metadata for a file already stored by the portal's file service.
type Attachment struct {
	ID          string `json:"id,omitempty" validate:"omitempty,max=128"`
	Name        string `json:"name" validate:"required,max=255"`
	URL         string `json:"url" validate:"required,max=2048"`
	Size        int64  `json:"size,omitempty" validate:"gte=0"`
	ContentType string `json:"contentType,omitempty" validate:"omitempty,max=255"`
}

// Message is one entry of a project's chat log. It is created once on append
// and never mutated afterwards.
type Message struct {
	ID              string       `json:"id"`
	ClientMessageID string       `json:"clientMessageId,omitempty"`
	ProjectID       string       `json:"projectId"`
	Body            string       `json:"body"`
	Attachments     []Attachment `json:"attachments"`
	Author          Identity     `json:"author"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// Clone returns a copy that does not share the attachments slice.
func (m Message) Clone() Message {
	out := m
	out.Attachments = append([]Attachment(nil), m.Attachments...)
	if out.Attachments == nil {
		out.Attachments = []Attachment{}
	}
	return out
}
