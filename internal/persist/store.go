// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

// Package persist provides write-behind snapshot persistence on BadgerDB.
//
// In-memory stores remain authoritative. They hand serialized state to a
// Writer which coalesces updates by key and flushes them in batches from a
// background goroutine. At startup Restore replays the stored snapshots into
// the stores before any connection is accepted.
package persist

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/portal/internal/logging"
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("persist store is closed")

// Config configures an on-disk Store.
type Config struct {
	Path       string
	SyncWrites bool
	// CloseTimeout bounds how long Close waits for BadgerDB. Zero means 30s.
	CloseTimeout time.Duration
}

// Store is a key/value snapshot store backed by BadgerDB.
type Store struct {
	db           *badger.DB
	closed       atomic.Bool
	closeTimeout time.Duration
}

// Open opens (or creates) the store at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("persist: path is required")
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Snapshot store opened")
	return &Store{db: db, closeTimeout: cfg.CloseTimeout}, nil
}

// OpenInMemory opens a store that keeps everything in memory. Used when
// persistence is disabled and in tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory BadgerDB: %w", err)
	}
	return &Store{db: db}, nil
}

// PutBatch writes every entry in a single transaction.
func (s *Store) PutBatch(entries map[string][]byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(entries) == 0 {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for key, value := range entries {
			if err := txn.SetEntry(badger.NewEntry([]byte(key), value)); err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}
		}
		return nil
	})
}

// Get returns the value stored under key and whether it exists.
func (s *Store) Get(key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Scan calls fn for every key with the given prefix in key order. Returning
// an error from fn stops the scan.
func (s *Store) Scan(prefix string, fn func(key string, value []byte) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s: %w", item.Key(), err)
			}
			if err := fn(string(item.KeyCopy(nil)), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// RunGC runs BadgerDB value log garbage collection until nothing is left to
// rewrite.
func (s *Store) RunGC() error {
	if s.closed.Load() {
		return ErrClosed
	}
	for {
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close closes the underlying database. It is safe to call more than once.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	timeout := s.closeTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Snapshot store closed")
		return nil
	case <-time.After(timeout):
		logging.Warn().Dur("timeout", timeout).Msg("Snapshot store close timed out")
		return fmt.Errorf("snapshot store close timeout after %v", timeout)
	}
}
