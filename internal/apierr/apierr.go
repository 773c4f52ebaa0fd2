// Package apierr defines the error taxonomy every handler, the dispatcher,
// and the DB gateway surface to HTTP clients. Handlers return
// *Error; nothing downstream constructs ad-hoc error strings for clients.
package apierr

import (
	"fmt"
	"net/http"
)

// Code is one of the closed set of error kinds a tool call can fail with.
type Code string

const (
	CodeInvalidInput      Code = "InvalidInput"
	CodeToolNotFound       Code = "ToolNotFound"
	CodeToolDisabled       Code = "ToolDisabled"
	CodeMethodNotAllowed   Code = "MethodNotAllowed"
	CodeProjectNotFound    Code = "ProjectNotFound"
	CodeSessionNotFound    Code = "SessionNotFound"
	CodeTaskNotFound       Code = "TaskNotFound"
	CodeDecisionNotFound   Code = "DecisionNotFound"
	CodeAgentNotFound      Code = "AgentNotFound"
	CodeNamingConflict     Code = "NamingConflict"
	CodeAlreadyExists      Code = "AlreadyExists"
	CodeTimeout            Code = "Timeout"
	CodeCircuitOpen        Code = "CircuitOpen"
	CodeEmbeddingUnavailable Code = "EmbeddingUnavailable"
	CodeAlreadyRunning     Code = "AlreadyRunning"
	CodeInternal           Code = "Internal"
)

// statusByCode is the fixed kind→HTTP-status mapping every error code maps to.
var statusByCode = map[Code]int{
	CodeInvalidInput:         http.StatusBadRequest,
	CodeToolNotFound:         http.StatusNotFound,
	CodeToolDisabled:         http.StatusNotFound,
	CodeMethodNotAllowed:     http.StatusMethodNotAllowed,
	CodeProjectNotFound:      http.StatusNotFound,
	CodeSessionNotFound:      http.StatusNotFound,
	CodeTaskNotFound:         http.StatusNotFound,
	CodeDecisionNotFound:     http.StatusNotFound,
	CodeAgentNotFound:        http.StatusNotFound,
	CodeNamingConflict:       http.StatusConflict,
	CodeAlreadyExists:        http.StatusConflict,
	CodeTimeout:              http.StatusGatewayTimeout,
	CodeCircuitOpen:          http.StatusServiceUnavailable,
	CodeEmbeddingUnavailable: http.StatusServiceUnavailable,
	CodeAlreadyRunning:       http.StatusConflict,
	CodeInternal:             http.StatusInternalServerError,
}

// Error is the typed error every component returns instead of a bare error
// string, so the dispatcher and HTTP surface can map it to a status and a
// uniform envelope without inspecting message text.
type Error struct {
	Code    Code
	Message string
	// Field names the offending field for InvalidInput errors.
	Field string
	// Cause is the wrapped underlying error, if any; never serialized.
	Cause error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %q)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the status code this error maps to, defaulting to 500
// for an unrecognized code so a mis-constructed Error never panics a handler.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New constructs an Error of the given kind.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs an Error of the given kind with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Internal error carrying an underlying cause, used at
// component boundaries where an unexpected error must not leak internals.
func Wrap(cause error, message string) *Error {
	return &Error{Code: CodeInternal, Message: message, Cause: cause}
}

// WithField returns a copy of a validation Error naming the offending field.
func (e *Error) WithField(field string) *Error {
	clone := *e
	clone.Field = field
	return &clone
}

// As extracts an *Error from err, returning (nil, false) if err is not one.
func As(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	if ae, ok := err.(*Error); ok {
		return ae, true
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return As(u.Unwrap())
	}
	return nil, false
}
