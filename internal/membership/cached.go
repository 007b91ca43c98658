// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package membership

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/portal/internal/cache"
)

// CachedOracle decorates an Oracle with a bounded TTL cache. Misses, including
// unknown projects, are not cached so a newly created project is visible on
// the next lookup.
//
// Invalidate bumps a per-project generation. A miss that started before an
// invalidation does not store its result, so a lookup racing a membership
// change can never put the old member list back in the cache.
type CachedOracle struct {
	inner Oracle
	lru   *cache.LRU[Project]

	mu          sync.Mutex
	generations map[string]uint64
}

// NewCachedOracle wraps inner with an LRU of the given capacity and TTL.
func NewCachedOracle(inner Oracle, capacity int, ttl time.Duration) *CachedOracle {
	return &CachedOracle{
		inner:       inner,
		lru:         cache.NewLRU[Project](capacity, ttl),
		generations: make(map[string]uint64),
	}
}

// Project implements Oracle.
func (c *CachedOracle) Project(ctx context.Context, projectID string) (Project, error) {
	if p, ok := c.lru.Get(projectID); ok {
		return p.Clone(), nil
	}

	c.mu.Lock()
	gen := c.generations[projectID]
	c.mu.Unlock()

	p, err := c.inner.Project(ctx, projectID)
	if err != nil {
		return Project{}, err
	}

	c.mu.Lock()
	if c.generations[projectID] == gen {
		c.lru.Add(projectID, p.Clone())
	}
	c.mu.Unlock()
	return p, nil
}

// Invalidate drops the cached entry for projectID and discards any lookup
// still in flight for it.
func (c *CachedOracle) Invalidate(projectID string) {
	c.mu.Lock()
	c.generations[projectID]++
	c.lru.Remove(projectID)
	c.mu.Unlock()
}

// Stats exposes cache hit/miss counters.
func (c *CachedOracle) Stats() (hits, misses int64, size int) {
	return c.lru.Stats()
}
