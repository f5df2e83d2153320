package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/oprema/internal/ledger"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/planner"
)

// EventsHandler exposes an event's equipment ledger and fulfillment plan.
type EventsHandler struct {
	Log     *slog.Logger
	Ledger  *ledger.Ledger
	Planner *planner.Planner
}

type reserveRequest struct {
	Lines []model.RequestLine `json:"lines" validate:"required,min=1,dive"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// Reserve handles POST /api/events/{id}/reservations.
func (h *EventsHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	var req reserveRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reports, err := h.Ledger.Reserve(r.Context(), id, req.Lines)
	if err != nil {
		serviceError(w, h.Log, "failed to reserve", err)
		return
	}
	jsonResponse(w, http.StatusOK, reports)
}

// Release handles DELETE /api/events/{id}/reservations.
func (h *EventsHandler) Release(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	released, err := h.Ledger.Release(r.Context(), id)
	if err != nil {
		serviceError(w, h.Log, "failed to release", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int{"released": released})
}

// Reservations handles GET /api/events/{id}/reservations.
func (h *EventsHandler) Reservations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	entries, err := h.Ledger.ListByEvent(r.Context(), id)
	if err != nil {
		serviceError(w, h.Log, "failed to list reservations", err)
		return
	}
	jsonResponse(w, http.StatusOK, entries)
}

// Issue handles POST /api/events/{id}/issue.
func (h *EventsHandler) Issue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	n, err := h.Ledger.Issue(r.Context(), id)
	if err != nil {
		serviceError(w, h.Log, "failed to issue", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int{"issued": n})
}

// Return handles POST /api/events/{id}/return.
func (h *EventsHandler) Return(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	n, err := h.Ledger.Return(r.Context(), id)
	if err != nil {
		serviceError(w, h.Log, "failed to return", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int{"returned": n})
}

// Plan handles GET /api/events/{id}/plan.
func (h *EventsHandler) Plan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	plan, err := h.Planner.Plan(r.Context(), id)
	if err != nil {
		serviceError(w, h.Log, "failed to plan", err)
		return
	}
	jsonResponse(w, http.StatusOK, plan)
}

// Fulfill handles POST /api/events/{id}/fulfill.
func (h *EventsHandler) Fulfill(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	result, err := h.Planner.Fulfill(r.Context(), id)
	if err != nil {
		serviceError(w, h.Log, "failed to fulfill", err)
		return
	}
	jsonResponse(w, http.StatusOK, result)
}

// Reject handles POST /api/events/{id}/reject.
func (h *EventsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	var req rejectRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "reason required")
		return
	}

	event, err := h.Planner.Reject(r.Context(), id, req.Reason)
	if err != nil {
		serviceError(w, h.Log, "failed to reject", err)
		return
	}
	jsonResponse(w, http.StatusOK, event)
}

// Reconcile handles POST /api/events/{id}/reconcile.
func (h *EventsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	plan, err := h.Planner.Reconcile(r.Context(), id)
	if err != nil {
		serviceError(w, h.Log, "failed to reconcile", err)
		return
	}
	jsonResponse(w, http.StatusOK, plan)
}
