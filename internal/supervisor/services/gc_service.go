// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package services

import (
	"context"
	"time"

	"github.com/tomtom215/portal/internal/logging"
)

// DefaultGCInterval is how often the snapshot store's value log is compacted.
const DefaultGCInterval = 10 * time.Minute

// GarbageCollector is satisfied by *persist.Store.
type GarbageCollector interface {
	RunGC() error
}

// StoreGCService runs value-log GC on a fixed interval. GC failures are
// logged; they never stop the service.
type StoreGCService struct {
	store    GarbageCollector
	interval time.Duration
}

// NewStoreGCService wraps store.
func NewStoreGCService(store GarbageCollector, interval time.Duration) *StoreGCService {
	if interval <= 0 {
		interval = DefaultGCInterval
	}
	return &StoreGCService{store: store, interval: interval}
}

// Serve implements suture.Service.
func (s *StoreGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.store.RunGC(); err != nil {
				logging.Warn().Err(err).Str("component", s.String()).Msg("Snapshot store GC failed")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (s *StoreGCService) String() string { return "persist-gc" }
