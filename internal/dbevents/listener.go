// Package dbevents maintains a dedicated Postgres LISTEN/NOTIFY
// connection: a single, unpooled connection that turns
// database-side NOTIFY traffic into Event values for the SSE fan-out
// service (internal/sse) to broadcast.
package dbevents

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

const (
	reconnectBase = 2 * time.Second
	reconnectCap  = 30 * time.Second
)

// Event is the parsed shape of a NOTIFY payload.
type Event struct {
	Entity    string    `json:"entity"`
	Action    string    `json:"action"`
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId,omitempty"`
	At        time.Time `json:"at"`
}

// Listener owns one dedicated pgx.Conn, separate from the pooled gateway,
// LISTENing on a single channel and reconnecting with exponential backoff
// on any connection error.
type Listener struct {
	dsn     string
	channel string
	onEvent func(Event)

	mu                sync.RWMutex
	connected         bool
	reconnectAttempts int

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a Listener. onEvent is invoked from the listener's own
// goroutine for every successfully parsed notification; callers that need
// to hand off to another goroutine (e.g. the SSE hub) must do so
// themselves without blocking onEvent for long.
func New(dsn, channel string, onEvent func(Event)) *Listener {
	return &Listener{
		dsn:     dsn,
		channel: channel,
		onEvent: onEvent,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Status is the point-in-time connection snapshot exposed for observability.
type Status struct {
	Connected         bool `json:"connected"`
	ReconnectAttempts int  `json:"reconnectAttempts"`
}

func (l *Listener) status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Status{Connected: l.connected, ReconnectAttempts: l.reconnectAttempts}
}

// Status returns the listener's current connection status.
func (l *Listener) Status() Status { return l.status() }

// Run connects and processes notifications until ctx is cancelled or Stop
// is called, reconnecting indefinitely on error. Run blocks;
// call it from its own goroutine.
func (l *Listener) Run(ctx context.Context) {
	defer close(l.doneCh)

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		default:
		}

		conn, err := pgx.Connect(ctx, l.dsn)
		if err != nil {
			l.recordDisconnected()
			if !l.sleepBackoff(ctx, attempt) {
				return
			}
			attempt++
			continue
		}

		if _, err := conn.Exec(ctx, "LISTEN "+l.channel); err != nil {
			log.Error().Err(err).Str("channel", l.channel).Msg("dbevents: failed to LISTEN")
			conn.Close(ctx)
			l.recordDisconnected()
			if !l.sleepBackoff(ctx, attempt) {
				return
			}
			attempt++
			continue
		}

		log.Info().Str("channel", l.channel).Msg("dbevents: listening")
		l.recordConnected()
		attempt = 0

		if !l.consume(ctx, conn) {
			conn.Close(ctx)
			return
		}
		conn.Close(ctx)
		l.recordDisconnected()
	}
}

// consume waits for notifications until ctx/stopCh fires or an error
// occurs, returning false if the caller should stop entirely (shutdown)
// and true if it should reconnect.
func (l *Listener) consume(ctx context.Context, conn *pgx.Conn) bool {
	for {
		notifyCtx, cancel := context.WithCancel(ctx)
		notifyDone := make(chan struct{})
		go func() {
			defer close(notifyDone)
			select {
			case <-l.stopCh:
				cancel()
			case <-notifyCtx.Done():
			}
		}()

		notification, err := conn.WaitForNotification(notifyCtx)
		cancel()
		<-notifyDone

		if err != nil {
			select {
			case <-l.stopCh:
				return false
			case <-ctx.Done():
				return false
			default:
			}
			log.Warn().Err(err).Msg("dbevents: connection error, will reconnect")
			return true
		}

		var ev Event
		if jsonErr := json.Unmarshal([]byte(notification.Payload), &ev); jsonErr != nil {
			log.Warn().Err(jsonErr).Str("payload", notification.Payload).Msg("dbevents: dropping invalid notification payload")
			continue
		}
		if l.onEvent != nil {
			l.onEvent(ev)
		}
	}
}

func (l *Listener) sleepBackoff(ctx context.Context, attempt int) bool {
	delay := reconnectBase * time.Duration(1<<uint(attempt))
	if delay > reconnectCap || delay <= 0 {
		delay = reconnectCap
	}
	l.mu.Lock()
	l.reconnectAttempts = attempt + 1
	l.mu.Unlock()

	log.Warn().Dur("delay", delay).Int("attempt", attempt+1).Msg("dbevents: reconnecting after delay")

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	case <-l.stopCh:
		return false
	}
}

func (l *Listener) recordConnected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = true
	l.reconnectAttempts = 0
}

func (l *Listener) recordDisconnected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = false
}

// Stop cancels the reconnect loop and closes the current connection. It is
// idempotent and safe to call from a signal handler.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	<-l.doneCh
}
