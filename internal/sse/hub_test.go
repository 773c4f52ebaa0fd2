package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidis-project/aidis-core/internal/dbevents"
)

// newTestRequest returns an /events request whose context the test cancels
// to end a subscription; httptest.ResponseRecorder already implements
// http.Flusher, so it serves as the SSE writer directly.
func newTestRequest(t *testing.T) (*http.Request, context.CancelFunc) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	ctx, cancel := context.WithCancel(req.Context())
	return req.WithContext(ctx), cancel
}

func TestSubscribeSendsRetryAndConnectedEvent(t *testing.T) {
	h := NewHub()
	rec := httptest.NewRecorder()
	req, cancel := newTestRequest(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Subscribe(req, rec, SubscribeOptions{UserID: "user-1"})
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(rec.Body.String(), "connected")
	}, time.Second, time.Millisecond)

	body := rec.Body.String()
	assert.Contains(t, body, "retry: 5000")
	assert.Contains(t, body, "event: connected")
	assert.Contains(t, body, "user-1")

	cancel()
	<-done
}

func TestSubscribeEnforcesMaxConnsPerUser(t *testing.T) {
	h := NewHub()
	var cancels []context.CancelFunc
	var wg sync.WaitGroup

	for i := 0; i < maxConnsPerUser; i++ {
		rec := httptest.NewRecorder()
		req, cancel := newTestRequest(t)
		cancels = append(cancels, cancel)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Subscribe(req, rec, SubscribeOptions{UserID: "busy-user"})
		}()
	}

	require.Eventually(t, func() bool {
		return h.GetStats().TotalConnections == maxConnsPerUser
	}, time.Second, time.Millisecond)

	rec := httptest.NewRecorder()
	req, cancel := newTestRequest(t)
	defer cancel()
	err := h.Subscribe(req, rec, SubscribeOptions{UserID: "busy-user"})
	assert.Error(t, err)
	var tooMany *ErrTooManyConnections
	assert.ErrorAs(t, err, &tooMany)

	for _, c := range cancels {
		c()
	}
	wg.Wait()
}

func TestBroadcastFiltersByEntityAndProject(t *testing.T) {
	h := NewHub()
	rec := httptest.NewRecorder()
	req, cancel := newTestRequest(t)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Subscribe(req, rec, SubscribeOptions{
			UserID:    "user-1",
			ProjectID: "proj-a",
			Entities:  []string{"tasks"},
		})
	}()

	require.Eventually(t, func() bool {
		return h.GetStats().TotalConnections == 1
	}, time.Second, time.Millisecond)

	h.Broadcast(dbevents.Event{Entity: "decisions", Action: "insert", ID: "d1", ProjectID: "proj-a"})
	h.Broadcast(dbevents.Event{Entity: "tasks", Action: "insert", ID: "t1", ProjectID: "proj-b"})
	h.Broadcast(dbevents.Event{Entity: "tasks", Action: "insert", ID: "t2", ProjectID: "proj-a"})

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	assert.NotContains(t, body, `"id":"d1"`)
	assert.NotContains(t, body, `"id":"t1"`)
	assert.Contains(t, body, `"id":"t2"`)
}

func TestBroadcastBypassesProjectFilterWhenEventHasNoProject(t *testing.T) {
	h := NewHub()
	rec := httptest.NewRecorder()
	req, cancel := newTestRequest(t)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Subscribe(req, rec, SubscribeOptions{UserID: "user-1", ProjectID: "proj-a"})
	}()

	require.Eventually(t, func() bool {
		return h.GetStats().TotalConnections == 1
	}, time.Second, time.Millisecond)

	h.Broadcast(dbevents.Event{Entity: "naming_entries", Action: "insert", ID: "n1"})
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	assert.Contains(t, rec.Body.String(), `"id":"n1"`)
}

func TestDisconnectAllSendsShutdownEventAndClearsTable(t *testing.T) {
	h := NewHub()
	rec := httptest.NewRecorder()
	req, cancel := newTestRequest(t)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Subscribe(req, rec, SubscribeOptions{UserID: "user-1"})
	}()

	require.Eventually(t, func() bool {
		return h.GetStats().TotalConnections == 1
	}, time.Second, time.Millisecond)

	h.DisconnectAll()

	require.Eventually(t, func() bool {
		return h.GetStats().TotalConnections == 0
	}, time.Second, time.Millisecond)

	assert.Contains(t, rec.Body.String(), "server-shutdown")
}

func TestGetStatsAndGetClientsRedaction(t *testing.T) {
	h := NewHub()
	rec := httptest.NewRecorder()
	req, cancel := newTestRequest(t)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Subscribe(req, rec, SubscribeOptions{UserID: "user-1", ProjectID: "proj-a"})
	}()

	require.Eventually(t, func() bool {
		return h.GetStats().TotalConnections == 1
	}, time.Second, time.Millisecond)

	stats := h.GetStats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.ConnectionsByUser["user-1"])

	clients := h.GetClients()
	require.Len(t, clients, 1)
	assert.Equal(t, "user-1", clients[0].UserID)
	assert.Equal(t, "proj-a", clients[0].ProjectID)

	cancel()
	<-done
}

func TestScanSSEFrameHelper(t *testing.T) {
	body := "retry: 5000\n\nevent: connected\ndata: {}\n\n"
	scanner := bufio.NewScanner(strings.NewReader(body))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	assert.Contains(t, lines, "retry: 5000")
	assert.Contains(t, lines, "event: connected")
}
