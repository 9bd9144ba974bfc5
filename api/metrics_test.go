package api

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alertSink struct {
	mu     sync.Mutex
	alerts []AlertEvent
}

func (s *alertSink) fn(e AlertEvent) {
	s.mu.Lock()
	s.alerts = append(s.alerts, e)
	s.mu.Unlock()
}

func (s *alertSink) snapshot() []AlertEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AlertEvent(nil), s.alerts...)
}

func TestLoginFailureSpikeAlert(t *testing.T) {
	sink := &alertSink{}
	collector := newMetricsCollector(sink.fn)
	collector.loginFailures.threshold = 5

	for i := 0; i < 4; i++ {
		collector.recordEvent(AuditLoginFailure)
	}
	assert.Empty(t, sink.snapshot(), "no alert below threshold")

	collector.recordEvent(AuditLoginFailure)
	alerts := sink.snapshot()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLoginFailureSpike, alerts[0].Type)
	assert.Equal(t, 5, alerts[0].Count)
	assert.Equal(t, 5, alerts[0].Threshold)

	// The counter resets after alerting.
	collector.recordEvent(AuditLoginFailure)
	assert.Len(t, sink.snapshot(), 1)
}

func TestContactFloodAlert(t *testing.T) {
	sink := &alertSink{}
	collector := newMetricsCollector(sink.fn)
	collector.contacts.threshold = 3

	for i := 0; i < 3; i++ {
		collector.recordEvent(AuditContactSubmitted)
	}
	alerts := sink.snapshot()
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertContactFlood, alerts[0].Type)
}

func TestAlertWindowExpires(t *testing.T) {
	sink := &alertSink{}
	collector := newMetricsCollector(sink.fn)
	collector.loginFailures.threshold = 3
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	collector.now = func() time.Time { return now }

	collector.recordEvent(AuditLoginFailure)
	collector.recordEvent(AuditLoginFailure)
	now = now.Add(2 * defaultLoginFailureWindow)
	collector.recordEvent(AuditLoginFailure)

	assert.Empty(t, sink.snapshot(), "old failures fall out of the window")
}

func TestUnrelatedEventsIgnored(t *testing.T) {
	sink := &alertSink{}
	collector := newMetricsCollector(sink.fn)
	collector.loginFailures.threshold = 1

	collector.recordEvent(AuditLoginSuccess)
	collector.recordEvent(AuditPostCreated)
	assert.Empty(t, sink.snapshot())
}

func TestNilCollector(t *testing.T) {
	var collector *metricsCollector
	assert.NotPanics(t, func() { collector.recordEvent(AuditLoginFailure) })
	assert.NotPanics(t, func() { newMetricsCollector(nil).recordEvent(AuditLoginFailure) })
}
