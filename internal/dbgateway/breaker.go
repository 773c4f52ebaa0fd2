// Package dbgateway is the sole path from the AIDIS core to Postgres: a
// pooled, retrying, circuit-breaker-protected query gateway.
//
// The breaker below uses a standard three-state model (closed, open,
// half-open) with consecutive-failure counting and a state-change
// callback, and a fixed recovery window rather than a growing backoff
// across repeated trips.
package dbgateway

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// breakerStateGauge exposes every named breaker's current state on
// /metrics, encoded 0=closed, 1=half-open, 2=open.
var breakerStateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "aidis",
	Subsystem: "dbgateway",
	Name:      "breaker_state",
	Help:      "Circuit breaker state encoded as 0=closed, 1=half-open, 2=open.",
}, []string{"name"})

// BreakerState is one of the breaker's three states.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures Breaker.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryWindow   time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryWindow:   30 * time.Second,
	}
}

// Breaker implements the closed/open/half-open circuit breaker guarding
// the database pool.
type Breaker struct {
	mu sync.RWMutex

	name   string
	config BreakerConfig
	state  BreakerState

	consecutiveFailures int
	lastFailure         time.Time
	lastError           error
	openedAt            time.Time
	halfOpenProbeInFlight bool

	totalFailures  int64
	totalSuccesses int64
	totalTrips     int64

	onStateChange func(from, to BreakerState)
}

// NewBreaker creates a breaker in the closed state.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryWindow <= 0 {
		cfg.RecoveryWindow = 30 * time.Second
	}
	breakerStateGauge.WithLabelValues(name).Set(float64(BreakerClosed))
	return &Breaker{name: name, config: cfg, state: BreakerClosed}
}

// SetOnStateChange registers a callback invoked on every state transition.
func (b *Breaker) SetOnStateChange(fn func(from, to BreakerState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// Allow reports whether a call may proceed, transitioning open→half-open
// once the recovery window has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true

	case BreakerOpen:
		if time.Since(b.openedAt) >= b.config.RecoveryWindow {
			b.transitionTo(BreakerHalfOpen)
			b.halfOpenProbeInFlight = true
			log.Info().Str("breaker", b.name).Msg("circuit breaker half-open, admitting probe")
			return true
		}
		return false

	case BreakerHalfOpen:
		if b.halfOpenProbeInFlight {
			return false
		}
		b.halfOpenProbeInFlight = true
		return true

	default:
		return true
	}
}

// RecordSuccess closes the breaker from half-open, or no-ops when closed.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalSuccesses++
	b.consecutiveFailures = 0

	if b.state == BreakerHalfOpen {
		b.halfOpenProbeInFlight = false
		b.transitionTo(BreakerClosed)
		log.Info().Str("breaker", b.name).Msg("circuit breaker probe succeeded, closing")
	}
}

// RecordFailure counts a failure, tripping the breaker once the threshold
// is reached (from closed) or immediately re-opening (from half-open).
func (b *Breaker) RecordFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalFailures++
	b.lastFailure = time.Now()
	b.lastError = err

	switch b.state {
	case BreakerClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.config.FailureThreshold {
			b.tripLocked(err)
		}
	case BreakerHalfOpen:
		b.halfOpenProbeInFlight = false
		b.tripLocked(err)
	}
}

func (b *Breaker) tripLocked(err error) {
	b.transitionTo(BreakerOpen)
	b.openedAt = time.Now()
	b.totalTrips++
	log.Warn().Str("breaker", b.name).Err(err).Int("failures", b.consecutiveFailures).
		Msg("circuit breaker tripped open")
}

func (b *Breaker) transitionTo(newState BreakerState) {
	if b.state == newState {
		return
	}
	old := b.state
	b.state = newState
	breakerStateGauge.WithLabelValues(b.name).Set(float64(newState))
	if b.onStateChange != nil {
		go b.onStateChange(old, newState)
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// BreakerStatus is a point-in-time snapshot for /readyz and diagnostics.
type BreakerStatus struct {
	Name                string     `json:"name"`
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastFailure         *time.Time `json:"lastFailure,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	TotalFailures       int64      `json:"totalFailures"`
	TotalSuccesses      int64      `json:"totalSuccesses"`
	TotalTrips          int64      `json:"totalTrips"`
}

// Status returns a snapshot of the breaker's counters.
func (b *Breaker) Status() BreakerStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := BreakerStatus{
		Name:                b.name,
		State:               b.state.String(),
		ConsecutiveFailures: b.consecutiveFailures,
		TotalFailures:       b.totalFailures,
		TotalSuccesses:      b.totalSuccesses,
		TotalTrips:          b.totalTrips,
	}
	if !b.lastFailure.IsZero() {
		st.LastFailure = &b.lastFailure
	}
	if b.lastError != nil {
		st.LastError = b.lastError.Error()
	}
	return st
}
