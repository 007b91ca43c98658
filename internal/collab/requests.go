// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package collab

import (
	"github.com/tomtom215/portal/internal/notify"
)

// UploadRequest reports files uploaded to a project.
type UploadRequest struct {
	ProjectID string       `json:"projectId" validate:"required,max=128"`
	Actor     notify.Actor `json:"actor"`
	FileCount int          `json:"fileCount" validate:"gte=0,lte=10000"`
}

// ProjectChangeRequest reports an edit to a project.
type ProjectChangeRequest struct {
	ProjectID string       `json:"projectId" validate:"required,max=128"`
	Actor     notify.Actor `json:"actor"`
	Summary   string       `json:"summary" validate:"max=500"`
}

// InviteRequest reports a user invited to a project.
type InviteRequest struct {
	ProjectID string       `json:"projectId" validate:"required,max=128"`
	Actor     notify.Actor `json:"actor"`
	Invitee   notify.Actor `json:"invitee"`
}

// UserChangeRequest reports a user directory change to the given users.
type UserChangeRequest struct {
	Actor       notify.Actor `json:"actor"`
	SubjectName string       `json:"subjectName" validate:"required,max=256"`
	Action      string       `json:"action" validate:"omitempty,oneof=added removed updated"`
	MemberIDs   []string     `json:"memberIds" validate:"max=10000,dive,required,max=128"`
}
