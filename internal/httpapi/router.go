// Package httpapi mounts the HTTP surface on a chi.Router: health and
// readiness probes, tool listing, tool invocation (v1 and v2), and the
// SSE subscribe endpoint, wrapped in an ordered chi + go-chi/cors
// middleware stack.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aidis-project/aidis-core/internal/apierr"
	"github.com/aidis-project/aidis-core/internal/config"
	"github.com/aidis-project/aidis-core/internal/dbgateway"
	"github.com/aidis-project/aidis-core/internal/sse"
	"github.com/aidis-project/aidis-core/internal/toolsdispatch"
)

const maxBodyBytes = 1 << 20 // 1 MiB, 

// Deps bundles everything the router needs to mount handlers.
type Deps struct {
	Registry   *toolsdispatch.Registry
	DispatchV1 *toolsdispatch.Dispatcher
	DispatchV2 *toolsdispatch.Dispatcher
	DB         *dbgateway.Gateway
	Hub        *sse.Hub
	Config     *config.Config
}

// NewRouter builds the full HTTP surface.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(correlationIDMiddleware)
	r.Use(bodyLimitMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(deps.Config.CORSAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Correlation-Id", "X-Session-Id", "X-User-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(deps.DB))

	r.Get("/mcp/tools", handleListTools(deps.Registry, "/mcp/tools"))
	r.Get("/mcp/tools/schemas", handleSchemas(deps.Registry))
	r.Post("/mcp/tools/{name}", handleInvoke(deps, deps.DispatchV1, "v1"))

	r.Get("/v2/mcp/tools", handleListTools(deps.Registry, "/v2/mcp/tools"))
	r.Get("/v2/mcp/tools/schemas", handleSchemas(deps.Registry))
	r.Post("/v2/mcp/tools/{name}", handleInvoke(deps, deps.DispatchV2, "v2"))

	r.Get("/events", handleSubscribe(deps.Hub))

	r.Get("/metrics/sse", handleSSEStats(deps.Hub))

	return r
}

func corsOrigins(raw string) []string {
	if raw == "" || raw == "*" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// correlationIDMiddleware echoes X-Correlation-Id if the caller sent one,
// or generates one, so every response can be traced back to a request.
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Correlation-Id", id)
		r.Header.Set("X-Correlation-Id", id)
		next.ServeHTTP(w, r)
	})
}

func bodyLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func handleReadyz(db *dbgateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := db.BreakerStatus()
		ready := status.State != "open"
		if ready {
			if err := db.HealthProbe(r.Context(), r.Header.Get("X-Correlation-Id")); err != nil {
				ready = false
			}
		}

		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{
			"status":    readyStatusLabel(ready),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"breaker":   status,
		})
	}
}

func readyStatusLabel(ready bool) string {
	if ready {
		return "ready"
	}
	return "not_ready"
}

func handleListTools(registry *toolsdispatch.Registry, endpointPrefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"tools": registry.Descriptors(endpointPrefix),
		})
	}
}

func handleSchemas(registry *toolsdispatch.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		descriptors := registry.Descriptors("/mcp/tools")
		schemas := make(map[string]any, len(descriptors))
		for _, d := range descriptors {
			schemas[d.Name] = d.Schema
		}
		writeJSON(w, http.StatusOK, map[string]any{"schemas": schemas})
	}
}

type invokeRequest struct {
	Arguments json.RawMessage `json:"arguments"`
}

func handleInvoke(deps Deps, dispatcher *toolsdispatch.Dispatcher, requestVersion string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		if deps.Config.IsToolDisabled(name) {
			writeEnvelopeError(w, apierr.New(apierr.CodeToolDisabled, "tool is administratively disabled"), requestVersion, r)
			return
		}
		if _, ok := deps.Registry.Lookup(name); !ok {
			writeEnvelopeError(w, apierr.New(apierr.CodeToolNotFound, "unknown tool: "+name), requestVersion, r)
			return
		}

		var body invokeRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeEnvelopeError(w, apierr.New(apierr.CodeInvalidInput, "malformed JSON request body"), requestVersion, r)
				return
			}
		}
		if len(body.Arguments) == 0 {
			body.Arguments = json.RawMessage(`{}`)
		}

		execCtx := toolsdispatch.ExecContext{
			CorrelationID:  r.Header.Get("X-Correlation-Id"),
			SessionID:      r.Header.Get("X-Session-Id"),
			Principal:      r.Header.Get("X-User-Id"),
			RequestVersion: requestVersion,
		}

		envelope := dispatcher.Dispatch(r.Context(), name, body.Arguments, execCtx, 0)
		status := http.StatusOK
		if !envelope.Success {
			status = apierr.New(envelope.Code, envelope.Error).HTTPStatus()
		}
		writeJSON(w, status, envelope)
	}
}

func writeEnvelopeError(w http.ResponseWriter, err *apierr.Error, version string, r *http.Request) {
	writeJSON(w, err.HTTPStatus(), toolsdispatch.Envelope{
		Success:   false,
		Error:     err.Message,
		Code:      err.Code,
		Version:   version,
		RequestID: r.Header.Get("X-Correlation-Id"),
	})
}

func handleSubscribe(hub *sse.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-Id")
		if userID == "" {
			writeEnvelopeError(w, apierr.New(apierr.CodeInvalidInput, "X-User-Id header is required"), "v1", r)
			return
		}

		opts := sse.SubscribeOptions{
			UserID:    userID,
			ProjectID: r.URL.Query().Get("projectId"),
		}
		if raw := r.URL.Query().Get("entities"); raw != "" {
			for _, name := range strings.Split(raw, ",") {
				name = strings.TrimSpace(name)
				if name == "" {
					continue
				}
				if !sse.KnownEntities[name] {
					writeEnvelopeError(w, apierr.Newf(apierr.CodeInvalidInput, "unknown entity name: %s", name), "v1", r)
					return
				}
				opts.Entities = append(opts.Entities, name)
			}
		}

		if err := hub.Subscribe(r, w, opts); err != nil {
			var tooMany *sse.ErrTooManyConnections
			if errors.As(err, &tooMany) {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			log.Warn().Err(err).Str("userId", userID).Msg("sse: subscribe failed")
		}
	}
}

func handleSSEStats(hub *sse.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"stats":   hub.GetStats(),
			"clients": hub.GetClients(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("httpapi: failed to encode JSON response")
	}
}
