// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// flakyStore fails while failing is set and records successful batches.
type flakyStore struct {
	mu      sync.Mutex
	failing bool
	calls   int
	data    map[string]string
	batches int
}

func (f *flakyStore) PutBatch(entries map[string][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failing {
		return errors.New("disk full")
	}
	if f.data == nil {
		f.data = make(map[string]string)
	}
	for k, v := range entries {
		f.data[k] = string(v)
	}
	f.batches++
	return nil
}

func (f *flakyStore) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *flakyStore) value(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func TestWriter_CoalescesByKey(t *testing.T) {
	store := &flakyStore{}
	w := NewWriter(store, WriterConfig{})

	w.Enqueue("notify/u1", []byte("1"))
	w.Enqueue("notify/u1", []byte("2"))
	w.Enqueue("notify/u2", []byte("3"))

	if w.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", w.Pending())
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if v, _ := store.value("notify/u1"); v != "2" {
		t.Errorf("u1 = %q, want latest snapshot", v)
	}
	if store.batches != 1 || w.Pending() != 0 {
		t.Errorf("batches = %d pending = %d", store.batches, w.Pending())
	}
}

func TestWriter_FlushEmptyIsNoop(t *testing.T) {
	store := &flakyStore{}
	w := NewWriter(store, WriterConfig{})
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if store.calls != 0 {
		t.Error("empty flush should not touch the store")
	}
}

func TestWriter_FailureRequeuesUnlessSuperseded(t *testing.T) {
	store := &flakyStore{failing: true}
	w := NewWriter(store, WriterConfig{})

	w.Enqueue("a", []byte("old"))
	w.Enqueue("b", []byte("keep"))
	batch := w.take()

	// A newer snapshot for a arrives while the batch is in flight.
	w.Enqueue("a", []byte("new"))
	w.requeue(batch)

	w.mu.Lock()
	a, b := string(w.pending["a"]), string(w.pending["b"])
	failures := w.failures
	w.mu.Unlock()

	if a != "new" {
		t.Errorf("a = %q, newer snapshot must win", a)
	}
	if b != "keep" {
		t.Errorf("b = %q, failed entry must be re-queued", b)
	}
	if failures != 1 {
		t.Errorf("failures = %d, want 1", failures)
	}

	if err := w.Flush(); err == nil {
		t.Fatal("Flush() should fail while the store fails")
	}
	if w.Pending() != 2 {
		t.Errorf("Pending() = %d after failed flush, want 2", w.Pending())
	}

	store.setFailing(false)
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if v, _ := store.value("a"); v != "new" {
		t.Errorf("a = %q", v)
	}
}

func TestWriter_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	store := &flakyStore{failing: true}
	w := NewWriter(store, WriterConfig{})

	for i := 0; i < breakerFailureThreshold; i++ {
		w.Enqueue("k", []byte("v"))
		_ = w.Flush()
	}
	callsBefore := store.calls

	if err := w.Flush(); err == nil {
		t.Fatal("expected open breaker error")
	}
	if store.calls != callsBefore {
		t.Error("open breaker must not call the store")
	}
	if w.breaker.State().String() != "open" {
		t.Errorf("breaker state = %s, want open", w.breaker.State())
	}
}

func TestWriter_CalculateBackoff(t *testing.T) {
	w := NewWriter(&flakyStore{}, WriterConfig{MaxBackoff: time.Second})

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{50, time.Second},
	}
	for _, tt := range tests {
		if got := w.calculateBackoff(tt.failures); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestWriter_ServeFlushesOnSignalAndShutdown(t *testing.T) {
	store := &flakyStore{}
	w := NewWriter(store, WriterConfig{FlushInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()

	w.Enqueue("notify/u1", []byte("x"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := store.value("notify/u1"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("signal did not trigger a flush")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Fail the breaker path so only the final flush can write.
	store.setFailing(true)
	w.Enqueue("notify/u2", []byte("y"))
	time.Sleep(20 * time.Millisecond)
	store.setFailing(false)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return")
	}

	if _, ok := store.value("notify/u2"); !ok {
		t.Error("final flush should write pending snapshots")
	}
}

func TestWriter_WithBadger(t *testing.T) {
	s := openTestStore(t)
	w := NewWriter(s, WriterConfig{})

	w.Enqueue("notify/u1", []byte(`{"uploads":1}`))
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	value, ok, err := s.Get("notify/u1")
	if err != nil || !ok || string(value) != `{"uploads":1}` {
		t.Errorf("Get() = %q %v %v", value, ok, err)
	}
}
