package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oakenlabs/textgate/internal/auth"
	"github.com/oakenlabs/textgate/internal/metrics"
	"github.com/oakenlabs/textgate/internal/observability"
)

// routes assembles the HTTP surface. Every route passes through trace
// id propagation, metrics, and panic recovery; API routes additionally
// pass authentication and per-tenant rate limiting, and management
// routes require the primary key on top of that.
func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	base := func(route string, h http.Handler) http.Handler {
		return observability.TraceIDMiddleware(
			metrics.Middleware(route, app.recoverMiddleware(h)))
	}
	api := func(route string, h http.HandlerFunc) http.Handler {
		return base(route, auth.Middleware(app.auth)(app.tenants.Middleware(h)))
	}
	mgmt := func(route string, h http.HandlerFunc) http.Handler {
		return base(route, auth.Middleware(app.auth)(app.adminOnly(h)))
	}

	mux.Handle("POST /v1/process", api("/v1/process", app.handleProcess))
	mux.Handle("POST /v1/batch", api("/v1/batch", app.handleBatch))
	mux.Handle("GET /v1/operations", api("/v1/operations", app.handleOperations))

	mux.Handle("GET /v1/health", base("/v1/health", http.HandlerFunc(app.handleHealth)))

	mux.Handle("GET /v1/internal/auth/status", mgmt("/v1/internal/auth/status", app.handleAuthStatus))
	mux.Handle("POST /v1/internal/auth/reload", mgmt("/v1/internal/auth/reload", app.handleAuthReload))
	mux.Handle("GET /v1/internal/cache/stats", mgmt("/v1/internal/cache/stats", app.handleCacheStats))
	mux.Handle("POST /v1/internal/cache/invalidate", mgmt("/v1/internal/cache/invalidate", app.handleCacheInvalidate))
	mux.Handle("POST /v1/internal/config/validate", mgmt("/v1/internal/config/validate", app.handleConfigValidate))
	mux.Handle("GET /v1/internal/config/presets", mgmt("/v1/internal/config/presets", app.handlePresets))

	if app.cfg.Logging.EnableMonitoring {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return mux
}
