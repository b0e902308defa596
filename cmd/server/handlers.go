package main

import (
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/oakenlabs/textgate/internal/auth"
	"github.com/oakenlabs/textgate/internal/config"
	"github.com/oakenlabs/textgate/internal/processor"
	"github.com/oakenlabs/textgate/pkg/errors"
)

const maxBodyBytes = 4 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return errors.NewValidation("request body unreadable or too large")
	}
	if len(body) == 0 {
		return errors.NewValidation("request body must not be empty")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.NewValidation("request body is not valid JSON")
	}
	return nil
}

func (app *application) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processor.ProcessingRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := app.processor.Process(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (app *application) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req processor.BatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := app.batch.ProcessBatch(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type operationInfo struct {
	ID               string `json:"id"`
	Strategy         string `json:"strategy"`
	CacheTTLSeconds  int    `json:"cache_ttl_seconds"`
	ResultKind       string `json:"result_kind"`
	RequiresQuestion bool   `json:"requires_question"`
	ResponseField    string `json:"response_field"`
}

func (app *application) handleOperations(w http.ResponseWriter, _ *http.Request) {
	ops := processor.Operations()
	infos := make([]operationInfo, len(ops))
	for i, op := range ops {
		infos[i] = operationInfo{
			ID:               op.ID,
			Strategy:         app.cfg.Resilience.StrategyFor(op.ID),
			CacheTTLSeconds:  int(op.CacheTTL / time.Second),
			ResultKind:       string(op.FallbackKind),
			RequiresQuestion: op.RequiresQuestion,
			ResponseField:    op.ResponseField,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"operations": infos,
	})
}

type healthResponse struct {
	Status     string           `json:"status"`
	Cache      healthCache      `json:"cache"`
	Resilience healthResilience `json:"resilience"`
}

type healthCache struct {
	L1Size           int  `json:"l1_size"`
	RemoteConfigured bool `json:"remote_configured"`
	RemoteOK         bool `json:"remote_ok"`
}

type healthResilience struct {
	OpenBreakers []string `json:"open_breakers"`
}

func (app *application) handleHealth(w http.ResponseWriter, r *http.Request) {
	open := app.orch.OpenBreakers()
	remoteConfigured := app.cache.RemoteConfigured()
	remoteOK := !remoteConfigured || app.cache.RemoteOK(r.Context())

	status := "ok"
	if len(open) > 0 || !remoteOK {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status: status,
		Cache: healthCache{
			L1Size:           app.cache.Stats().L1Size,
			RemoteConfigured: remoteConfigured,
			RemoteOK:         remoteOK,
		},
		Resilience: healthResilience{OpenBreakers: open},
	})
}

func (app *application) handleAuthStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, app.auth.Status())
}

func (app *application) handleAuthReload(w http.ResponseWriter, r *http.Request) {
	if err := app.auth.Reload(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  app.auth.Status(),
	})
}

func (app *application) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, app.cache.Stats())
}

func (app *application) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pattern string `json:"pattern"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Pattern == "" {
		writeError(w, r, errors.NewValidation("pattern must not be empty"))
		return
	}

	removed := app.cache.Invalidate(r.Context(), req.Pattern)
	app.log.WithTraceID(r.Context()).RedactedInfo("cache invalidated", "removed", removed)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"removed": removed,
	})
}

// handleConfigValidate dry-runs a candidate override document. The
// caller's authenticated identity keys the rate-limit window.
func (app *application) handleConfigValidate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, errors.NewValidation("request body unreadable or too large"))
		return
	}

	clientID := auth.IdentityFromContext(r.Context())
	if clientID == "" {
		clientID = r.RemoteAddr
	}

	result := app.validator.Validate(clientID, body)
	writeJSON(w, http.StatusOK, result)
}

func (app *application) handlePresets(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		details, err := config.GetPresetDetails(name)
		if err != nil {
			writeError(w, r, errors.NewValidation(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cache_presets": config.CachePresetNames(),
	})
}
