package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/schedule"
)

// VenuesHandler answers venue availability questions and proposes alternative slots.
type VenuesHandler struct {
	Log       *slog.Logger
	Detector  *schedule.Detector
	Suggester *schedule.Suggester
}

// slotQuery is a venue booking window read from query parameters.
type slotQuery struct {
	Venue        string
	Start, End   time.Time
	ExcludeEvent int64
	Type         model.EventType
}

type acceptRequest struct {
	Venue   string    `json:"venue" validate:"required"`
	Start   time.Time `json:"start" validate:"required"`
	End     time.Time `json:"end" validate:"required,gtfield=Start"`
	EventID int64     `json:"event_id"`
}

func parseSlot(q url.Values) (slotQuery, string) {
	s := slotQuery{Venue: q.Get("venue"), Type: model.EventType(q.Get("type"))}

	var err error
	if s.Start, err = time.Parse(time.RFC3339, q.Get("start")); err != nil {
		return s, "invalid start"
	}
	if s.End, err = time.Parse(time.RFC3339, q.Get("end")); err != nil {
		return s, "invalid end"
	}
	if v := q.Get("exclude_event_id"); v != "" {
		if s.ExcludeEvent, err = strconv.ParseInt(v, 10, 64); err != nil {
			return s, "invalid exclude_event_id"
		}
	}
	if s.Type == "" {
		s.Type = model.EventTypeOther
	}
	return s, ""
}

// Availability handles GET /api/venues/availability.
func (h *VenuesHandler) Availability(w http.ResponseWriter, r *http.Request) {
	s, msg := parseSlot(r.URL.Query())
	if msg != "" {
		jsonError(w, http.StatusBadRequest, msg)
		return
	}

	free, err := h.Detector.IsAvailable(r.Context(), s.Venue, s.Start, s.End, s.ExcludeEvent)
	if err != nil {
		serviceError(w, h.Log, "failed to check availability", err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]bool{"available": free})
}

// Conflicts handles GET /api/venues/conflicts.
func (h *VenuesHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	s, msg := parseSlot(r.URL.Query())
	if msg != "" {
		jsonError(w, http.StatusBadRequest, msg)
		return
	}

	events, err := h.Detector.Conflicts(r.Context(), s.Venue, s.Start, s.End, s.ExcludeEvent)
	if err != nil {
		serviceError(w, h.Log, "failed to list conflicts", err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	jsonResponse(w, http.StatusOK, events)
}

// Schedule handles GET /api/venues/schedule. It lists every event at the venue
// in the window, including drafts and rejected ones.
func (h *VenuesHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	s, msg := parseSlot(r.URL.Query())
	if msg != "" {
		jsonError(w, http.StatusBadRequest, msg)
		return
	}

	events, err := h.Detector.Schedule(r.Context(), s.Venue, s.Start, s.End)
	if err != nil {
		serviceError(w, h.Log, "failed to list venue schedule", err)
		return
	}
	jsonResponse(w, http.StatusOK, events)
}

// Suggestions handles GET /api/venues/suggestions.
func (h *VenuesHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	s, msg := parseSlot(r.URL.Query())
	if msg != "" {
		jsonError(w, http.StatusBadRequest, msg)
		return
	}

	candidates, err := h.Suggester.Suggest(r.Context(), s.Venue, s.Start, s.End, s.Type, s.ExcludeEvent)
	if err != nil {
		serviceError(w, h.Log, "failed to suggest slots", err)
		return
	}
	jsonResponse(w, http.StatusOK, candidates)
}

// Accept handles POST /api/venues/accept. A suggested slot may have been taken
// since it was offered, so it is checked again before it is confirmed.
func (h *VenuesHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	free, err := h.Detector.IsAvailable(r.Context(), req.Venue, req.Start, req.End, req.EventID)
	if err != nil {
		serviceError(w, h.Log, "failed to check availability", err)
		return
	}
	if !free {
		jsonError(w, http.StatusConflict, "slot is no longer available")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"accepted": true,
		"venue":    req.Venue,
		"start":    req.Start.UTC(),
		"end":      req.End.UTC(),
	})
}
