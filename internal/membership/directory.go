// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package membership

import (
	"context"
	"fmt"
	"sync"
)

// Directory is an in-memory Oracle kept in sync by the portal through the
// internal membership endpoints.
type Directory struct {
	mu       sync.RWMutex
	projects map[string]Project
	onChange []func(projectID string)
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{projects: make(map[string]Project)}
}

// OnChange registers fn to run after a project is replaced or deleted.
// Register hooks before the directory is shared.
func (d *Directory) OnChange(fn func(projectID string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = append(d.onChange, fn)
}

// Put creates or replaces a project. Duplicate members keep their first entry.
func (d *Directory) Put(p Project) {
	seen := make(map[string]struct{}, len(p.Members))
	members := make([]Member, 0, len(p.Members))
	for _, m := range p.Members {
		if m.UserID == "" {
			continue
		}
		if _, dup := seen[m.UserID]; dup {
			continue
		}
		seen[m.UserID] = struct{}{}
		members = append(members, m)
	}
	p.Members = members

	d.mu.Lock()
	d.projects[p.ID] = p
	hooks := d.onChange
	d.mu.Unlock()

	for _, fn := range hooks {
		fn(p.ID)
	}
}

// Delete removes a project. Returns false if it did not exist.
func (d *Directory) Delete(projectID string) bool {
	d.mu.Lock()
	_, ok := d.projects[projectID]
	delete(d.projects, projectID)
	hooks := d.onChange
	d.mu.Unlock()

	if ok {
		for _, fn := range hooks {
			fn(projectID)
		}
	}
	return ok
}

// Project implements Oracle.
func (d *Directory) Project(_ context.Context, projectID string) (Project, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.projects[projectID]
	if !ok {
		return Project{}, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	return p.Clone(), nil
}
