package toolsdispatch

import (
	"context"
	"time"

	"github.com/aidis-project/aidis-core/internal/apierr"
	"github.com/aidis-project/aidis-core/internal/validation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// dispatchTotal counts every tool dispatch by tool name and outcome, the
// dispatcher's contribution to the process's /metrics endpoint.
var dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "aidis",
	Subsystem: "dispatch",
	Name:      "tool_calls_total",
	Help:      "Total tool dispatches by tool name and outcome.",
}, []string{"tool", "outcome"})

// ActivityRecorder is the session tracker hook invoked after a successful
// activity-bearing tool call. The dispatcher calls it synchronously, under
// the dispatch deadline, before returning the envelope; internal/sessiontracker
// logs and swallows any failure rather than propagating it.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, sessionID, activityType string, metadata map[string]any)
}

// DefaultDeadline is the dispatch timeout used when the caller supplies none.
const DefaultDeadline = 30 * time.Second

// Envelope is the uniform response shape every tool call returns. Exactly
// one of Data or Error is populated depending on Success.
type Envelope struct {
	Success          bool           `json:"success"`
	Data             any            `json:"data,omitempty"`
	Error            string         `json:"error,omitempty"`
	Code             apierr.Code    `json:"code,omitempty"`
	Version          string         `json:"version"`
	RequestID        string         `json:"requestId"`
	ProcessingTimeMs int64          `json:"processingTimeMs"`
	Warnings         []string       `json:"warnings,omitempty"`
}

// Dispatcher resolves, validates, invokes, and envelopes every tool call.
type Dispatcher struct {
	registry *Registry
	tracker  ActivityRecorder
	version  string
}

// NewDispatcher builds a dispatcher over registry. version is the fixed
// `version` field stamped onto every envelope (e.g. "v1" or "v2" depending
// on which HTTP surface mounted this dispatcher).
func NewDispatcher(registry *Registry, tracker ActivityRecorder, version string) *Dispatcher {
	return &Dispatcher{registry: registry, tracker: tracker, version: version}
}

// Dispatch resolves the tool, validates its arguments, invokes the handler
// under a deadline, and records activity on success. execCtx.CorrelationID
// is echoed back as the envelope's requestId; callers generate one if the
// client omitted it. deadline of zero uses DefaultDeadline.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, rawArgs []byte, execCtx ExecContext, deadline time.Duration) Envelope {
	start := time.Now()
	requestID := execCtx.CorrelationID

	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	def, ok := d.registry.Lookup(name)
	if !ok {
		dispatchTotal.WithLabelValues(name, "error").Inc()
		return d.failureEnvelope(apierr.New(apierr.CodeToolNotFound, "unknown tool: "+name), requestID, start)
	}

	args, verr := validation.Validate(def.Schema, rawArgs)
	if verr != nil {
		dispatchTotal.WithLabelValues(name, "error").Inc()
		return d.failureEnvelope(verr, requestID, start)
	}

	data, handlerErr := runWithDeadline(ctx, def.Handler, execCtx, args)
	if handlerErr != nil {
		if ctx.Err() != nil {
			handlerErr = apierr.New(apierr.CodeTimeout, "tool call exceeded its deadline")
		}
		dispatchTotal.WithLabelValues(name, "error").Inc()
		return d.failureEnvelope(handlerErr, requestID, start)
	}

	if def.ActivityType != "" && d.tracker != nil {
		d.tracker.RecordActivity(ctx, execCtx.SessionID, def.ActivityType, map[string]any{
			"tool":          name,
			"correlationId": requestID,
		})
	}

	dispatchTotal.WithLabelValues(name, "success").Inc()
	return Envelope{
		Success:          true,
		Data:             data,
		Version:          d.version,
		RequestID:        requestID,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
}

// runWithDeadline invokes handler, returning CodeTimeout if ctx expires
// before the handler itself returns (handlers are expected to propagate
// ctx to every DB call).
func runWithDeadline(ctx context.Context, handler Handler, execCtx ExecContext, args map[string]any) (any, *apierr.Error) {
	type result struct {
		data any
		err  *apierr.Error
	}

	done := make(chan result, 1)
	go func() {
		data, err := handler(ctx, execCtx, args)
		done <- result{data: data, err: err}
	}()

	select {
	case r := <-done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, apierr.New(apierr.CodeTimeout, "tool call exceeded its deadline")
	}
}

func (d *Dispatcher) failureEnvelope(err *apierr.Error, requestID string, start time.Time) Envelope {
	log.Debug().
		Str("correlationId", requestID).
		Str("code", string(err.Code)).
		Err(err).
		Msg("tool dispatch failed")

	return Envelope{
		Success:          false,
		Error:            err.Message,
		Code:             err.Code,
		Version:          d.version,
		RequestID:        requestID,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
}
