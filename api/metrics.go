package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertLoginFailureSpike AlertType = "login_failure_spike"
	AlertContactFlood      AlertType = "contact_flood"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

const (
	defaultLoginFailureWindow    = 1 * time.Minute
	defaultLoginFailureThreshold = 50
	defaultContactWindow         = 10 * time.Minute
	defaultContactThreshold      = 30
)

// slidingCounter counts events inside a trailing time window.
type slidingCounter struct {
	times     []time.Time
	window    time.Duration
	threshold int
}

// add records an event at now and reports the in-window count and whether
// it reached the threshold. Reaching it resets the counter so a single
// spike alerts once.
func (c *slidingCounter) add(now time.Time) (int, bool) {
	c.times = append(c.times, now)
	cutoff := now.Add(-c.window)
	start := 0
	for start < len(c.times) && c.times[start].Before(cutoff) {
		start++
	}
	c.times = c.times[start:]

	n := len(c.times)
	if n >= c.threshold {
		c.times = c.times[:0]
		return n, true
	}
	return n, false
}

// metricsCollector raises alerts on bursts of audit events.
type metricsCollector struct {
	mu sync.Mutex

	loginFailures slidingCounter
	contacts      slidingCounter

	now     func() time.Time
	alertFn AlertFunc
}

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		loginFailures: slidingCounter{window: defaultLoginFailureWindow, threshold: defaultLoginFailureThreshold},
		contacts:      slidingCounter{window: defaultContactWindow, threshold: defaultContactThreshold},
		now:           time.Now,
		alertFn:       alertFn,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	switch event {
	case AuditLoginFailure:
		m.observe(&m.loginFailures, AlertLoginFailureSpike, "login failure rate exceeds threshold")
	case AuditContactSubmitted:
		m.observe(&m.contacts, AlertContactFlood, "contact form submissions exceed threshold")
	}
}

func (m *metricsCollector) observe(c *slidingCounter, typ AlertType, msg string) {
	m.mu.Lock()
	now := m.now()
	count, tripped := c.add(now)
	threshold := c.threshold
	m.mu.Unlock()

	if tripped {
		m.alertFn(AlertEvent{
			Type:      typ,
			Message:   msg,
			Count:     count,
			Threshold: threshold,
			Timestamp: now,
		})
	}
}
