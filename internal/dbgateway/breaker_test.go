package dbgateway

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{FailureThreshold: 3, RecoveryWindow: 50 * time.Millisecond})

	require.True(t, b.Allow())
	b.RecordFailure(errors.New("boom"))
	require.Equal(t, BreakerClosed, b.State())

	b.RecordFailure(errors.New("boom"))
	require.Equal(t, BreakerClosed, b.State())

	b.RecordFailure(errors.New("boom"))
	require.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{FailureThreshold: 1, RecoveryWindow: 10 * time.Millisecond})

	b.RecordFailure(errors.New("boom"))
	require.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())

	time.Sleep(15 * time.Millisecond)

	require.True(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())

	// a second caller must not also get a probe slot
	assert.False(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{FailureThreshold: 1, RecoveryWindow: 5 * time.Millisecond})

	b.RecordFailure(errors.New("boom"))
	time.Sleep(10 * time.Millisecond)
	require.True(t, b.Allow())

	b.RecordFailure(errors.New("probe failed"))
	assert.Equal(t, BreakerOpen, b.State())
}

func TestBreakerStatusReflectsCounters(t *testing.T) {
	b := NewBreaker("test", DefaultBreakerConfig())
	b.RecordSuccess()
	b.RecordFailure(errors.New("x"))

	st := b.Status()
	assert.Equal(t, "test", st.Name)
	assert.Equal(t, int64(1), st.TotalSuccesses)
	assert.Equal(t, int64(1), st.TotalFailures)
	assert.Equal(t, "x", st.LastError)
	require.NotNil(t, st.LastFailure)
}
