package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/secpoll/internal/scheduler"
	"github.com/gyaneshwarpardhi/secpoll/internal/state"
)

// staleAfter marks the scheduler not ready when its status stops updating.
const staleAfter = 2 * time.Minute

// StatusSource is satisfied by *scheduler.Scheduler.
type StatusSource interface {
	Status() *scheduler.Status
}

// Reloader is satisfied by *config.Provider.
type Reloader interface {
	RequestReload()
}

// WatermarkReader is the read half of state.Store.
type WatermarkReader interface {
	Load(ctx context.Context, tenant string) (state.Watermark, error)
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	status StatusSource
	reload Reloader
	store  WatermarkReader
	now    func() time.Time
	mux    *http.ServeMux
}

// New creates the admin HTTP handler and registers all routes.
func New(status StatusSource, reload Reloader, store WatermarkReader, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{status: status, reload: reload, store: store, now: time.Now, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /v1/tenants", h.listTenants)
	h.mux.HandleFunc("GET /v1/tenants/{name}/watermark", h.tenantWatermark)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(logger, h.mux)
}

// GET /v1/tenants — scheduler view of every configured tenant.
func (h *Handler) listTenants(w http.ResponseWriter, r *http.Request) {
	st := h.status.Status()
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler has not started")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GET /v1/tenants/{name}/watermark — persisted resume point.
func (h *Handler) tenantWatermark(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	wm, err := h.store.Load(r.Context(), name)
	switch {
	case errors.Is(err, state.ErrInvalidTenant):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if wm.IsZero() {
		writeError(w, http.StatusNotFound, "no watermark persisted for "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant":    name,
		"watermark": wm,
	})
}

// POST /v1/config/reload — re-read the tenant file on the next iteration.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	h.reload.RequestReload()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"reload_requested": true,
	})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 until a tenant config is loaded, or when the loop stalls.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	st := h.status.Status()
	switch {
	case st == nil:
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "starting"})
	case st.Generation == 0:
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":       "no_config",
			"config_error": st.ConfigError,
		})
	case h.now().Sub(st.UpdatedAt) > staleAfter:
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":     "stalled",
			"updated_at": st.UpdatedAt,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":            "ready",
			"config_generation": st.Generation,
			"tenants":           len(st.Tenants),
		})
	}
}
