package api

import (
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/oprema/internal/lib/logger/sl"
)

// HealthHandler reports whether both stores are reachable.
type HealthHandler struct {
	Log     *slog.Logger
	Custody *sqlx.DB
	Events  *sqlx.DB
}

// Health handles GET /healthz.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"custody": "ok", "events": "ok"}
	healthy := true

	if err := h.Custody.PingContext(r.Context()); err != nil {
		h.Log.Warn("custody store unreachable", sl.Err(err))
		status["custody"] = "unavailable"
		healthy = false
	}
	if err := h.Events.PingContext(r.Context()); err != nil {
		h.Log.Warn("event store unreachable", sl.Err(err))
		status["events"] = "unavailable"
		healthy = false
	}

	if !healthy {
		jsonResponse(w, http.StatusServiceUnavailable, status)
		return
	}
	jsonResponse(w, http.StatusOK, status)
}
