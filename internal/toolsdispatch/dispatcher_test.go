package toolsdispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/aidis-project/aidis-core/internal/apierr"
	"github.com/aidis-project/aidis-core/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTracker struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeTracker) RecordActivity(ctx context.Context, sessionID, activityType string, metadata map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, activityType)
}

func echoSchema() validation.Schema {
	return validation.Schema{
		ToolName: "echo",
		Fields: []validation.Field{
			{Name: "message", Type: validation.TypeString, Required: true},
		},
	}
}

func TestDispatchSuccessEnvelope(t *testing.T) {
	reg := NewRegistry()
	reg.Register("echo", ToolDef{
		Schema:       echoSchema(),
		ActivityType: "context_store",
		Handler: func(ctx context.Context, execCtx ExecContext, args map[string]any) (any, *apierr.Error) {
			return map[string]any{"echoed": args["message"]}, nil
		},
	})
	tracker := &fakeTracker{}
	d := NewDispatcher(reg, tracker, "v1")

	env := d.Dispatch(context.Background(), "echo", json.RawMessage(`{"message":"hi"}`),
		ExecContext{CorrelationID: "req-1", SessionID: "sess-1"}, 0)

	require.True(t, env.Success)
	assert.Equal(t, "req-1", env.RequestID)
	assert.Equal(t, "v1", env.Version)
	assert.Empty(t, env.Code)
	assert.Eventually(t, func() bool {
		tracker.mu.Lock()
		defer tracker.mu.Unlock()
		return len(tracker.calls) == 1
	}, time.Second, time.Millisecond)
}

func TestDispatchUnknownTool(t *testing.T) {
	d := NewDispatcher(NewRegistry(), nil, "v1")
	env := d.Dispatch(context.Background(), "nope", nil, ExecContext{CorrelationID: "req-2"}, 0)

	assert.False(t, env.Success)
	assert.Equal(t, apierr.CodeToolNotFound, env.Code)
}

func TestDispatchValidationFailure(t *testing.T) {
	reg := NewRegistry()
	reg.Register("echo", ToolDef{
		Schema: echoSchema(),
		Handler: func(ctx context.Context, execCtx ExecContext, args map[string]any) (any, *apierr.Error) {
			t.Fatal("handler must not run when validation fails")
			return nil, nil
		},
	})
	d := NewDispatcher(reg, nil, "v1")

	env := d.Dispatch(context.Background(), "echo", json.RawMessage(`{}`), ExecContext{CorrelationID: "req-3"}, 0)

	assert.False(t, env.Success)
	assert.Equal(t, apierr.CodeInvalidInput, env.Code)
}

func TestDispatchHandlerTimeout(t *testing.T) {
	reg := NewRegistry()
	reg.Register("slow", ToolDef{
		Schema: validation.Schema{ToolName: "slow"},
		Handler: func(ctx context.Context, execCtx ExecContext, args map[string]any) (any, *apierr.Error) {
			select {
			case <-time.After(50 * time.Millisecond):
				return "too late", nil
			case <-ctx.Done():
				return nil, apierr.New(apierr.CodeTimeout, "deadline exceeded")
			}
		},
	})
	d := NewDispatcher(reg, nil, "v1")

	env := d.Dispatch(context.Background(), "slow", json.RawMessage(`{}`), ExecContext{CorrelationID: "req-4"}, 5*time.Millisecond)

	assert.False(t, env.Success)
	assert.Equal(t, apierr.CodeTimeout, env.Code)
}

func TestDispatchHandlerFailureNoActivityRecorded(t *testing.T) {
	reg := NewRegistry()
	reg.Register("fails", ToolDef{
		Schema:       validation.Schema{ToolName: "fails"},
		ActivityType: "task_create",
		Handler: func(ctx context.Context, execCtx ExecContext, args map[string]any) (any, *apierr.Error) {
			return nil, apierr.New(apierr.CodeProjectNotFound, "no such project")
		},
	})
	tracker := &fakeTracker{}
	d := NewDispatcher(reg, tracker, "v1")

	env := d.Dispatch(context.Background(), "fails", json.RawMessage(`{}`), ExecContext{CorrelationID: "req-5"}, 0)

	assert.False(t, env.Success)
	assert.Equal(t, apierr.CodeProjectNotFound, env.Code)
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	assert.Empty(t, tracker.calls)
}
