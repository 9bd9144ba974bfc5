package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// leadQueueSize is the bounded channel capacity for outbound lead events.
const leadQueueSize = 256

// leadRetryDelay separates the first delivery attempt from the retry.
var leadRetryDelay = 1 * time.Second

const (
	leadKindContact    = "contact"
	leadKindNewsletter = "newsletter"
)

// leadEvent is the JSON payload POSTed to the lead webhook.
type leadEvent struct {
	Kind      string `json:"kind"`
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Website   string `json:"website,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// leadNotifier forwards new contact messages and newsletter signups to an
// external endpoint (a CRM or a chat channel). Events are enqueued without
// blocking the request and delivered by one background goroutine; when the
// queue is full they are dropped with a warning.
type leadNotifier struct {
	url    string
	client *http.Client
	logger zerolog.Logger
	events chan leadEvent
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func newLeadNotifier(url string, timeout time.Duration, logger zerolog.Logger) *leadNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	n := &leadNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "lead_webhook").Logger(),
		events: make(chan leadEvent, leadQueueSize),
	}
	n.wg.Add(1)
	go n.loop()
	return n
}

// enqueue never blocks. A nil or closed notifier discards the event.
func (n *leadNotifier) enqueue(evt leadEvent) {
	if n == nil {
		return
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.logger.Warn().Str("kind", evt.Kind).Int64("id", evt.ID).Msg("Notifier closed, dropping lead event")
		return
	}
	select {
	case n.events <- evt:
	default:
		n.logger.Warn().Str("kind", evt.Kind).Int64("id", evt.ID).Msg("Queue full, dropping lead event")
	}
}

// close stops accepting events and waits for queued ones to be sent.
func (n *leadNotifier) close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.events)
	}
	n.mu.Unlock()
	n.wg.Wait()
}

func (n *leadNotifier) loop() {
	defer n.wg.Done()
	for evt := range n.events {
		n.send(evt)
	}
}

// send POSTs evt with one retry on 5xx or transport errors.
func (n *leadNotifier) send(evt leadEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		n.logger.Warn().Err(err).Msg("Marshal lead event")
		return
	}

	for attempt := 1; attempt <= 2; attempt++ {
		if attempt > 1 {
			time.Sleep(leadRetryDelay)
		}

		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			n.logger.Warn().Err(err).Msg("Build lead webhook request")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "FoxValley-Lead-Webhook/1.0")

		resp, err := n.client.Do(req)
		if err != nil {
			n.logger.Warn().Err(err).Int("attempt", attempt).Msg("Lead webhook request failed")
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return
		case resp.StatusCode >= 500:
			n.logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("Lead webhook server error")
			continue
		default:
			n.logger.Warn().Int("status", resp.StatusCode).Msg("Lead webhook rejected event")
			return
		}
	}
}
