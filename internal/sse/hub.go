// Package sse implements the server-sent-events fan-out service: a guarded
// subscriber table fed by the DB events listener (internal/dbevents).
// Broadcast writes each frame directly to every matching subscriber under
// that subscriber's write lock; each subscribed HTTP connection's own
// goroutine sends its heartbeats.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/aidis-project/aidis-core/internal/dbevents"
)

// connectionsGauge tracks live SSE subscriber count for /metrics.
var connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "aidis",
	Subsystem: "sse",
	Name:      "connections",
	Help:      "Current number of live SSE subscriber connections.",
})

const (
	heartbeatInterval = 15 * time.Second
	retryHintMillis   = 5000
	maxConnsPerUser   = 5
)

// KnownEntities is the registry the `entities` query parameter is checked
// against; requesting an entity not in this set fails validation with 400.
// Entries are plural, matching the literal entity strings NOTIFY payloads
// carry on the wire (e.g. "tasks", "contexts").
var KnownEntities = map[string]bool{
	"contexts":      true,
	"projects":      true,
	"naming_entries": true,
	"decisions":     true,
	"tasks":         true,
	"agents":        true,
}

type subscriber struct {
	id              string
	userID          string
	projectIDFilter string
	entityFilter    map[string]bool
	createdAt       time.Time
	writer          http.ResponseWriter
	flusher         http.Flusher
	writeMu         sync.Mutex
	done            chan struct{}
	closeOnce       sync.Once
}

func (s *subscriber) write(raw string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := fmt.Fprint(s.writer, raw); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Hub owns the subscriber table and the process-lifetime monotonic event
// id counter stamped onto every broadcast frame.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	byUser      map[string]int

	nextID    uint64
	startedAt time.Time
}

// NewHub builds an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]*subscriber),
		byUser:      make(map[string]int),
		startedAt:   time.Now(),
	}
}

// SubscribeOptions carries the resolved principal and query filters for one
// /events connection.
type SubscribeOptions struct {
	UserID    string
	ProjectID string
	Entities  []string
}

// ErrTooManyConnections is returned by Subscribe when a user has already
// reached maxConnsPerUser concurrent subscriptions.
type ErrTooManyConnections struct{ UserID string }

func (e *ErrTooManyConnections) Error() string {
	return fmt.Sprintf("sse: user %q already has %d connections", e.UserID, maxConnsPerUser)
}

// Subscribe registers w/r as a new SSE connection and blocks until the
// request's context is done or the write path fails: it reserves a
// per-user slot, writes SSE headers and a connected event, then loops
// sending heartbeats until torn down. Callers must invoke it from the
// handler goroutine that owns w/r; it returns once the subscriber has
// been fully torn down.
func (h *Hub) Subscribe(r *http.Request, w http.ResponseWriter, opts SubscribeOptions) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("sse: streaming unsupported by response writer")
	}

	if err := h.reserveSlot(opts.UserID); err != nil {
		return err
	}

	var entityFilter map[string]bool
	if len(opts.Entities) > 0 {
		entityFilter = make(map[string]bool, len(opts.Entities))
		for _, e := range opts.Entities {
			entityFilter[e] = true
		}
	}

	sub := &subscriber{
		id:              newSubscriberID(),
		userID:          opts.UserID,
		projectIDFilter: opts.ProjectID,
		entityFilter:    entityFilter,
		createdAt:       time.Now(),
		writer:          w,
		flusher:         flusher,
		done:            make(chan struct{}),
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if err := sub.write(fmt.Sprintf("retry: %d\n\n", retryHintMillis)); err != nil {
		h.releaseSlot(opts.UserID)
		return err
	}
	if err := h.writeSystemEvent(sub, "connected", map[string]any{"userId": opts.UserID}); err != nil {
		h.releaseSlot(opts.UserID)
		return err
	}

	h.mu.Lock()
	h.subscribers[sub.id] = sub
	h.mu.Unlock()
	connectionsGauge.Inc()

	defer h.remove(sub)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return nil
		case <-sub.done:
			return nil
		case <-ticker.C:
			if err := sub.write(": keep-alive\n\n"); err != nil {
				log.Warn().Str("userId", sub.userID).Msg("sse: heartbeat write failed, removing subscriber")
				return nil
			}
		}
	}
}

func (h *Hub) reserveSlot(userID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byUser[userID] >= maxConnsPerUser {
		return &ErrTooManyConnections{UserID: userID}
	}
	h.byUser[userID]++
	return nil
}

func (h *Hub) releaseSlot(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byUser[userID] > 0 {
		h.byUser[userID]--
		if h.byUser[userID] == 0 {
			delete(h.byUser, userID)
		}
	}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	_, existed := h.subscribers[sub.id]
	delete(h.subscribers, sub.id)
	h.mu.Unlock()
	if existed {
		h.releaseSlot(sub.userID)
		connectionsGauge.Dec()
	}
	sub.close()
}

func (h *Hub) writeSystemEvent(sub *subscriber, eventName string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return sub.write(fmt.Sprintf("event: %s\ndata: %s\n\n", eventName, data))
}

// Broadcast fans a DB event out to every matching subscriber: a monotonic
// id, entity/project filters, SSE framing, and removal on write error.
func (h *Hub) Broadcast(ev dbevents.Event) {
	h.mu.Lock()
	id := h.nextID + 1
	h.nextID = id
	snapshot := make([]*subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		snapshot = append(snapshot, sub)
	}
	h.mu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		log.Warn().Err(err).Msg("sse: failed to marshal event for broadcast")
		return
	}
	frame := fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", id, ev.Entity, data)

	for _, sub := range snapshot {
		if !matches(sub, ev) {
			continue
		}
		if err := sub.write(frame); err != nil {
			log.Warn().Str("event", "failed_write").Str("userId", sub.userID).Str("entity", ev.Entity).Msg("sse: subscriber write failed")
			h.remove(sub)
		}
	}
}

func matches(sub *subscriber, ev dbevents.Event) bool {
	if sub.entityFilter != nil && !sub.entityFilter[ev.Entity] {
		return false
	}
	if sub.projectIDFilter != "" && ev.ProjectID != "" && ev.ProjectID != sub.projectIDFilter {
		return false
	}
	return true
}

// DisconnectAll broadcasts a server-shutdown system event, ends every
// writer, and clears the subscriber table.
func (h *Hub) DisconnectAll() {
	h.mu.Lock()
	snapshot := make([]*subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		snapshot = append(snapshot, sub)
	}
	h.subscribers = make(map[string]*subscriber)
	h.byUser = make(map[string]int)
	h.mu.Unlock()
	connectionsGauge.Sub(float64(len(snapshot)))

	for _, sub := range snapshot {
		_ = h.writeSystemEvent(sub, "system", map[string]any{"message": "server-shutdown"})
		sub.close()
	}
}

// Stats is the observability snapshot returned by GetStats.
type Stats struct {
	TotalConnections  int            `json:"totalConnections"`
	ConnectionsByUser map[string]int `json:"connectionsByUser"`
	UptimeSeconds     float64        `json:"uptimeSeconds"`
	NextEventID       uint64         `json:"nextEventId"`
}

// GetStats returns a point-in-time observability snapshot.
func (h *Hub) GetStats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	byUser := make(map[string]int, len(h.byUser))
	for k, v := range h.byUser {
		byUser[k] = v
	}
	return Stats{
		TotalConnections:  len(h.subscribers),
		ConnectionsByUser: byUser,
		UptimeSeconds:     time.Since(h.startedAt).Seconds(),
		NextEventID:       h.nextID + 1,
	}
}

// ClientInfo is one redacted row returned by GetClients.
type ClientInfo struct {
	UserID               string   `json:"userId"`
	ProjectID            string   `json:"projectId,omitempty"`
	Entities             []string `json:"entities,omitempty"`
	ConnectedAt          time.Time `json:"connectedAt"`
	ConnectionDurationMs int64    `json:"connectionDurationMs"`
}

// GetClients returns a redacted list of current subscribers (no writer or
// response objects, so it is safe to expose over an observability endpoint).
func (h *Hub) GetClients() []ClientInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ClientInfo, 0, len(h.subscribers))
	now := time.Now()
	for _, sub := range h.subscribers {
		var entities []string
		for e := range sub.entityFilter {
			entities = append(entities, e)
		}
		out = append(out, ClientInfo{
			UserID:               sub.userID,
			ProjectID:            sub.projectIDFilter,
			Entities:             entities,
			ConnectedAt:          sub.createdAt,
			ConnectionDurationMs: now.Sub(sub.createdAt).Milliseconds(),
		})
	}
	return out
}

var subscriberSeq uint64
var subscriberSeqMu sync.Mutex

func newSubscriberID() string {
	subscriberSeqMu.Lock()
	defer subscriberSeqMu.Unlock()
	subscriberSeq++
	return fmt.Sprintf("sub-%d-%d", time.Now().UnixNano(), subscriberSeq)
}
