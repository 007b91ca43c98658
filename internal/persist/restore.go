// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package persist

import (
	"fmt"

	"github.com/tomtom215/portal/internal/logging"
)

// Restorer rebuilds in-memory state from snapshots under its key prefix.
type Restorer interface {
	KeyPrefix() string
	RestoreEntry(key string, value []byte) error
}

// RestoreResult reports what Restore loaded.
type RestoreResult struct {
	Restored int
	Skipped  int
}

// Restore replays every stored snapshot into the matching restorer. Entries
// a restorer rejects are logged and skipped.
func Restore(s *Store, restorers ...Restorer) (RestoreResult, error) {
	var result RestoreResult
	for _, r := range restorers {
		prefix := r.KeyPrefix()
		err := s.Scan(prefix, func(key string, value []byte) error {
			if err := r.RestoreEntry(key, value); err != nil {
				result.Skipped++
				logging.Warn().Err(err).Str("key", key).Msg("Skipping unreadable snapshot")
				return nil
			}
			result.Restored++
			return nil
		})
		if err != nil {
			return result, fmt.Errorf("restore %s: %w", prefix, err)
		}
	}

	logging.Info().
		Int("restored", result.Restored).
		Int("skipped", result.Skipped).
		Msg("Snapshots restored")
	return result, nil
}
