// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package persist

import (
	"context"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/portal/internal/logging"
	"github.com/tomtom215/portal/internal/metrics"
)

const (
	// DefaultFlushInterval is how often pending snapshots are flushed when
	// no signal arrives.
	DefaultFlushInterval = time.Second

	// DefaultMaxBackoff caps the retry delay after failed batches.
	DefaultMaxBackoff = 30 * time.Second

	baseBackoff = 100 * time.Millisecond

	breakerFailureThreshold = 5
	breakerOpenTimeout      = 30 * time.Second
)

// BatchStore is the write side of a Store.
type BatchStore interface {
	PutBatch(entries map[string][]byte) error
}

// WriterConfig configures a Writer.
type WriterConfig struct {
	FlushInterval time.Duration
	MaxBackoff    time.Duration
}

// Writer coalesces snapshots by key and writes them to a BatchStore from
// Serve. Enqueue never blocks.
type Writer struct {
	store   BatchStore
	breaker *gobreaker.CircuitBreaker[interface{}]

	flushInterval time.Duration
	maxBackoff    time.Duration

	mu      sync.Mutex
	pending map[string][]byte
	// failures counts consecutive failed batches.
	failures int

	signal chan struct{}
}

// NewWriter creates a writer for store.
func NewWriter(store BatchStore, cfg WriterConfig) *Writer {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}

	return &Writer{
		store:         store,
		breaker:       newBreaker("persist-writer"),
		flushInterval: cfg.FlushInterval,
		maxBackoff:    cfg.MaxBackoff,
		pending:       make(map[string][]byte),
		signal:        make(chan struct{}, 1),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker[interface{}] {
	return gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Persistence circuit breaker state changed")
		},
	})
}

// Enqueue records value as the latest snapshot for key. A later Enqueue for
// the same key before the next flush replaces it.
func (w *Writer) Enqueue(key string, value []byte) {
	w.mu.Lock()
	w.pending[key] = value
	n := len(w.pending)
	w.mu.Unlock()

	metrics.PersistPendingKeys.Set(float64(n))

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// Pending returns the number of keys waiting to be written.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Serve drains the queue until ctx is canceled, then performs a final flush
// that bypasses the breaker. It implements suture.Service.
func (w *Writer) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	var retry <-chan time.Time

	logging.Info().
		Dur("flush_interval", w.flushInterval).
		Dur("max_backoff", w.maxBackoff).
		Msg("Persistence writer started")

	for {
		select {
		case <-ctx.Done():
			w.finalFlush()
			return ctx.Err()

		case <-retry:
			retry = w.flushOrSchedule()

		case <-w.signal:
			if retry == nil {
				retry = w.flushOrSchedule()
			}

		case <-ticker.C:
			if retry == nil {
				retry = w.flushOrSchedule()
			}
		}
	}
}

// flushOrSchedule flushes and returns a retry timer when the batch failed.
func (w *Writer) flushOrSchedule() <-chan time.Time {
	if err := w.Flush(); err != nil {
		w.mu.Lock()
		delay := w.calculateBackoff(w.failures)
		w.mu.Unlock()
		logging.Debug().Dur("retry_in", delay).Msg("Persistence flush scheduled for retry")
		return time.After(delay)
	}
	return nil
}

// Flush writes every pending snapshot in one batch through the circuit
// breaker. On failure the entries go back to the pending set unless a newer
// snapshot for the same key arrived in the meantime.
func (w *Writer) Flush() error {
	batch := w.take()
	if len(batch) == 0 {
		return nil
	}

	_, err := w.breaker.Execute(func() (interface{}, error) {
		return nil, w.store.PutBatch(batch)
	})
	if err != nil {
		w.requeue(batch)
		metrics.PersistWritesTotal.WithLabelValues("failure").Inc()
		logging.Error().
			Err(err).
			Int("keys", len(batch)).
			Str("breaker_state", w.breaker.State().String()).
			Msg("Failed to persist snapshots")
		return err
	}

	w.mu.Lock()
	w.failures = 0
	w.mu.Unlock()
	metrics.PersistWritesTotal.WithLabelValues("success").Inc()
	return nil
}

func (w *Writer) finalFlush() {
	batch := w.take()
	if len(batch) == 0 {
		return
	}
	if err := w.store.PutBatch(batch); err != nil {
		metrics.PersistWritesTotal.WithLabelValues("failure").Inc()
		logging.Error().Err(err).Int("keys", len(batch)).Msg("Final snapshot flush failed")
		return
	}
	metrics.PersistWritesTotal.WithLabelValues("success").Inc()
	logging.Info().Int("keys", len(batch)).Msg("Final snapshot flush complete")
}

func (w *Writer) take() map[string][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return nil
	}
	batch := w.pending
	w.pending = make(map[string][]byte, len(batch))
	metrics.PersistPendingKeys.Set(0)
	return batch
}

func (w *Writer) requeue(batch map[string][]byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, value := range batch {
		if _, superseded := w.pending[key]; !superseded {
			w.pending[key] = value
		}
	}
	w.failures++
	metrics.PersistPendingKeys.Set(float64(len(w.pending)))
}

// calculateBackoff returns base * 2^(failures-1), capped at maxBackoff.
func (w *Writer) calculateBackoff(failures int) time.Duration {
	if failures < 1 {
		return 0
	}
	// 2^20 * 100ms is far above any sane cap.
	if failures > 20 {
		failures = 20
	}
	backoff := baseBackoff << (failures - 1)
	if backoff > w.maxBackoff {
		return w.maxBackoff
	}
	return backoff
}

// String implements fmt.Stringer for suture logging.
func (w *Writer) String() string { return "persist-writer" }
