// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

// Package events carries portal mutations (uploads, project edits, invites,
// user directory changes) from the rest of the portal into the collaboration
// core over watermill. The in-memory backend uses a gochannel; the NATS
// backend uses watermill-nats in core NATS mode, optionally against an
// embedded nats-server.
package events

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Kind identifies the mutation family.
type Kind string

const (
	KindUpload        Kind = "upload"
	KindProjectChange Kind = "project_change"
	KindInvite        Kind = "invite"
	KindUserChange    Kind = "user_change"
)

// Valid reports whether k is a known mutation kind.
func (k Kind) Valid() bool {
	switch k {
	case KindUpload, KindProjectChange, KindInvite, KindUserChange:
		return true
	}
	return false
}

// ErrUnknownKind is returned for mutations of an unrecognized kind.
var ErrUnknownKind = errors.New("unknown mutation kind")

// Mutation is the bus envelope. Payload is the JSON encoding of the request
// struct matching Kind.
type Mutation struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// NewMutation encodes payload into a Mutation of the given kind.
func NewMutation(kind Kind, payload interface{}) (Mutation, error) {
	if !kind.Valid() {
		return Mutation{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Mutation{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Mutation{Kind: kind, Payload: data}, nil
}

// Decode unmarshals the payload into v.
func (m Mutation) Decode(v interface{}) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Kind, err)
	}
	return nil
}
