package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/garcomlabs/garcom/internal/log"
)

// healthHandler serves liveness and readiness probes.
type healthHandler struct {
	pool   *pgxpool.Pool // nil when running on memory stores
	logger log.Logger
}

// live always reports ok while the process is up.
func (h *healthHandler) live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, h.logger)
}

// ready reports ok only when the database answers a ping.
func (h *healthHandler) ready(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "none"}, h.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.pool.Ping(ctx); err != nil {
		h.logger.Warn("readiness probe failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "not_ready", "database unreachable", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"}, h.logger)
}
