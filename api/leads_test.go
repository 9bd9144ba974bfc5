package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	leadRetryDelay = 10 * time.Millisecond
}

func TestLeadNotifier_Delivers(t *testing.T) {
	var (
		mu       sync.Mutex
		received leadEvent
		agent    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		agent = r.Header.Get("User-Agent")
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := newLeadNotifier(srv.URL, time.Second, zerolog.Nop())
	n.enqueue(leadEvent{
		Kind:      leadKindContact,
		ID:        4,
		Email:     "jane@example.com",
		Name:      "Jane",
		Message:   "We need a chatbot",
		Timestamp: "2026-01-01T00:00:00Z",
	})
	n.close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, leadKindContact, received.Kind)
	assert.Equal(t, int64(4), received.ID)
	assert.Equal(t, "jane@example.com", received.Email)
	assert.Equal(t, "We need a chatbot", received.Message)
	assert.Equal(t, "FoxValley-Lead-Webhook/1.0", agent)
}

func TestLeadNotifier_RetriesOn500(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := newLeadNotifier(srv.URL, time.Second, zerolog.Nop())
	n.enqueue(leadEvent{Kind: leadKindNewsletter, Email: "a@example.com"})
	n.close()

	assert.Equal(t, int32(2), attempts.Load())
}

func TestLeadNotifier_NoRetryOn4xx(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	n := newLeadNotifier(srv.URL, time.Second, zerolog.Nop())
	n.enqueue(leadEvent{Kind: leadKindNewsletter, Email: "a@example.com"})
	n.close()

	assert.Equal(t, int32(1), attempts.Load())
}

func TestLeadNotifier_DropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	var delivered atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		delivered.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := newLeadNotifier(srv.URL, 5*time.Second, zerolog.Nop())
	// One event is in flight, leadQueueSize are queued, the rest are dropped.
	total := leadQueueSize + 20
	for i := 0; i < total; i++ {
		n.enqueue(leadEvent{Kind: leadKindNewsletter, ID: int64(i)})
	}
	close(release)
	n.close()

	got := int(delivered.Load())
	require.Less(t, got, total)
	assert.GreaterOrEqual(t, got, leadQueueSize)
}

func TestLeadNotifier_Nil(t *testing.T) {
	var n *leadNotifier
	assert.NotPanics(t, func() {
		n.enqueue(leadEvent{Kind: leadKindContact})
		n.close()
	})
}

func TestLeadNotifier_EnqueueAfterClose(t *testing.T) {
	var delivered atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := newLeadNotifier(srv.URL, 5*time.Second, zerolog.Nop())
	n.close()

	// A handler still running after shutdown may enqueue late.
	assert.NotPanics(t, func() {
		n.enqueue(leadEvent{Kind: leadKindContact, ID: 1})
		n.close()
	})
	assert.Zero(t, delivered.Load())
}
