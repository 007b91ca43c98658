// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRecordWSEvent(t *testing.T) {
	c := WSEventsTotal.WithLabelValues("out", "badge:sync")
	before := counterValue(t, c)

	RecordWSEvent("out", "badge:sync")
	RecordWSEvent("out", "badge:sync")

	if got := counterValue(t, c) - before; got != 2 {
		t.Errorf("badge:sync delta = %v, want 2", got)
	}
}

func TestRecordMutation(t *testing.T) {
	ok := MutationsProcessedTotal.WithLabelValues("upload", "success")
	failed := MutationsProcessedTotal.WithLabelValues("upload", "failure")
	okBefore, failedBefore := counterValue(t, ok), counterValue(t, failed)

	RecordMutation("upload", nil)
	RecordMutation("upload", errors.New("boom"))

	if counterValue(t, ok)-okBefore != 1 || counterValue(t, failed)-failedBefore != 1 {
		t.Error("expected one success and one failure")
	}
}

func TestRecordAPIRequest(t *testing.T) {
	RecordAPIRequest("GET", "/api/v1/notifications", 200, 5*time.Millisecond)

	observer, err := APIRequestDuration.GetMetricWithLabelValues("GET", "/api/v1/notifications", "200")
	if err != nil {
		t.Fatal(err)
	}
	var m dto.Metric
	if err := observer.(prometheus.Histogram).Write(&m); err != nil {
		t.Fatal(err)
	}
	if m.GetHistogram().GetSampleCount() == 0 {
		t.Error("expected at least one observation")
	}
}
