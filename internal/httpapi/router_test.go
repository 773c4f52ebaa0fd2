package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidis-project/aidis-core/internal/apierr"
	"github.com/aidis-project/aidis-core/internal/config"
	"github.com/aidis-project/aidis-core/internal/dbgateway"
	"github.com/aidis-project/aidis-core/internal/sse"
	"github.com/aidis-project/aidis-core/internal/toolsdispatch"
	"github.com/aidis-project/aidis-core/internal/validation"
)

func testDeps(t *testing.T) Deps {
	t.Helper()
	reg := toolsdispatch.NewRegistry()
	reg.Register("echo", toolsdispatch.ToolDef{
		Description: "echoes its message argument",
		Schema: validation.Schema{
			ToolName: "echo",
			Fields:   []validation.Field{{Name: "message", Type: validation.TypeString, Required: true}},
		},
		Handler: func(ctx context.Context, execCtx toolsdispatch.ExecContext, args map[string]any) (any, *apierr.Error) {
			return map[string]any{"message": args["message"]}, nil
		},
	})
	return Deps{
		Registry:   reg,
		DispatchV1: toolsdispatch.NewDispatcher(reg, nil, "v1"),
		DispatchV2: toolsdispatch.NewDispatcher(reg, nil, "v2"),
		DB:         dbgateway.New(nil, dbgateway.Config{}),
		Hub:        sse.NewHub(),
		Config: &config.Config{
			CORSAllowedOrigins: "*",
			DisabledTools:      map[string]bool{"disabled_tool": true},
		},
	}
}

func TestHealthzAlwaysOK(t *testing.T) {
	deps := testDeps(t)
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListToolsReturnsRegisteredDescriptors(t *testing.T) {
	deps := testDeps(t)
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp/tools", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "echo")
	assert.Contains(t, rec.Body.String(), "/mcp/tools/echo")
}

func TestInvokeUnknownToolReturns404(t *testing.T) {
	deps := testDeps(t)
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"arguments":{}}`)
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp/tools/nope", body))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var env toolsdispatch.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, apierr.CodeToolNotFound, env.Code)
}

func TestInvokeDisabledToolReturns404(t *testing.T) {
	deps := testDeps(t)
	deps.Registry.Register("disabled_tool", toolsdispatch.ToolDef{
		Schema: validation.Schema{ToolName: "disabled_tool"},
	})
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"arguments":{}}`)
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp/tools/disabled_tool", body))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var env toolsdispatch.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, apierr.CodeToolDisabled, env.Code)
}

func TestInvokeValidationFailureReturns400(t *testing.T) {
	deps := testDeps(t)
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"arguments":{}}`)
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp/tools/echo", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var env toolsdispatch.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, apierr.CodeInvalidInput, env.Code)
}

func TestCorrelationIDIsGeneratedWhenAbsent(t *testing.T) {
	deps := testDeps(t)
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Correlation-Id"))
}

func TestCorrelationIDIsEchoedWhenPresent(t *testing.T) {
	deps := testDeps(t)
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-Id", "fixed-id")
	router.ServeHTTP(rec, req)

	assert.Equal(t, "fixed-id", rec.Header().Get("X-Correlation-Id"))
}

func TestSubscribeRequiresUserIDHeader(t *testing.T) {
	deps := testDeps(t)
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubscribeRejectsUnknownEntityName(t *testing.T) {
	deps := testDeps(t)
	router := NewRouter(deps)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/events?entities=bogus", nil)
	req.Header.Set("X-User-Id", "user-1")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
