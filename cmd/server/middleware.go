package main

import (
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/oakenlabs/textgate/internal/metrics"
	"github.com/oakenlabs/textgate/internal/observability"
	"github.com/oakenlabs/textgate/pkg/errors"
)

// errorEnvelope is the uniform error body. Messages never include
// prompts, keys, or stack traces.
type errorEnvelope struct {
	Success      bool   `json:"success"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	TraceID      string `json:"trace_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	traceID := observability.TraceIDFromContext(r.Context())

	if e, ok := errors.As(err); ok {
		writeJSON(w, e.HTTPStatusCode(), errorEnvelope{
			ErrorCode:    string(e.Kind),
			ErrorMessage: e.Message,
			TraceID:      traceID,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorEnvelope{
		ErrorCode:    string(errors.KindInfrastructure),
		ErrorMessage: "internal error",
		TraceID:      traceID,
	})
}

// recoverMiddleware converts handler panics into a generic 500 without
// leaking any internal detail to the client.
func (app *application) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				metrics.PanicsRecovered.Inc()
				app.log.WithTraceID(r.Context()).RedactedError("handler panicked", "route", r.URL.Path)
				writeJSON(w, http.StatusInternalServerError, errorEnvelope{
					ErrorCode:    string(errors.KindInfrastructure),
					ErrorMessage: "internal error",
					TraceID:      observability.TraceIDFromContext(r.Context()),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestKey pulls the caller's API key from the Authorization bearer
// token or the X-API-Key header.
func requestKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// adminOnly restricts management endpoints to the primary API key. With
// no keys configured the store is in open mode and the check passes.
func (app *application) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if app.adminKey != "" && requestKey(r) != app.adminKey {
			writeError(w, r, errors.NewAuthorization("management endpoints require the primary API key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
