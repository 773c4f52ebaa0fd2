package dbevents

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusDefaultsDisconnected(t *testing.T) {
	l := New("postgres://invalid/invalid", "aidis_changes", nil)
	st := l.Status()
	assert.False(t, st.Connected)
	assert.Equal(t, 0, st.ReconnectAttempts)
}

func TestRecordConnectedResetsAttempts(t *testing.T) {
	l := New("postgres://invalid/invalid", "aidis_changes", nil)
	l.mu.Lock()
	l.reconnectAttempts = 4
	l.mu.Unlock()

	l.recordConnected()

	st := l.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, 0, st.ReconnectAttempts)
}

func TestRecordDisconnectedKeepsAttempts(t *testing.T) {
	l := New("postgres://invalid/invalid", "aidis_changes", nil)
	l.recordConnected()
	l.mu.Lock()
	l.reconnectAttempts = 2
	l.mu.Unlock()

	l.recordDisconnected()

	st := l.Status()
	assert.False(t, st.Connected)
	assert.Equal(t, 2, st.ReconnectAttempts)
}

func TestStopIsIdempotent(t *testing.T) {
	l := New("postgres://invalid/invalid", "aidis_changes", nil)
	close(l.doneCh)

	assert.NotPanics(t, func() {
		l.Stop()
		l.Stop()
	})
}

func TestUnmarshalEventPayload(t *testing.T) {
	payload := []byte(`{"entity":"tasks","action":"update","id":"abc","projectId":"p1","at":"2026-01-01T00:00:00Z"}`)
	var ev Event
	assert.NoError(t, json.Unmarshal(payload, &ev))
	assert.Equal(t, "tasks", ev.Entity)
	assert.Equal(t, "update", ev.Action)
	assert.Equal(t, "abc", ev.ID)
	assert.Equal(t, "p1", ev.ProjectID)
	assert.False(t, ev.At.IsZero())
}

func TestInvalidJSONPayloadIsRejected(t *testing.T) {
	var ev Event
	err := json.Unmarshal([]byte("not json"), &ev)
	assert.Error(t, err)
}

func TestSleepBackoffGrowthIsCappedAndNonNegative(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		delay := reconnectBase * time.Duration(1<<uint(attempt))
		if delay > reconnectCap || delay <= 0 {
			delay = reconnectCap
		}
		assert.LessOrEqual(t, delay, reconnectCap)
		assert.Greater(t, delay, time.Duration(0))
	}
}
