// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

// Package models holds the data types shared by the collaboration core:
// identities, chat messages, notification feed entries and the summaries
// pushed to clients.
package models

import "strings"

// Role constants. These align with the Casbin policy in internal/authz/policy.csv.
const (
	RoleOwner  = "owner"
	RoleStaff  = "staff"
	RoleClient = "client"

	// RoleService is the machine role used by portal back-end callers of the
	// internal REST API.
	RoleService = "service"
)

// ValidRoles contains all valid role names.
var ValidRoles = []string{RoleOwner, RoleStaff, RoleClient, RoleService}

// IsValidRole checks if a role name is valid.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// NormalizeRole lowercases role and falls back to RoleClient for unknown values.
func NormalizeRole(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if !IsValidRole(role) {
		return RoleClient
	}
	return role
}

// Identity is the authenticated principal behind a connection or request.
// It is immutable for the lifetime of a connection.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}
