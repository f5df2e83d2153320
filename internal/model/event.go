package model

import "time"

// EventStatus is the lifecycle status of an event, owned by the event store.
type EventStatus string

// Event statuses.
const (
	EventDraft       EventStatus = "draft"
	EventPending     EventStatus = "pending"
	EventUnderReview EventStatus = "under_review"
	EventApproved    EventStatus = "approved"
	EventOngoing     EventStatus = "ongoing"
	EventCompleted   EventStatus = "completed"
	EventRejected    EventStatus = "rejected"
	EventCancelled   EventStatus = "cancelled"
)

// BookingStatuses are the statuses that hold a venue slot.
var BookingStatuses = []EventStatus{EventPending, EventUnderReview, EventApproved, EventOngoing}

// HistoryStatuses are the statuses counted as precedent when scoring slots.
var HistoryStatuses = []EventStatus{EventCompleted, EventApproved}

// EventType classifies events for reschedule scoring.
type EventType string

// Event types.
const (
	EventTypeAcademic EventType = "academic"
	EventTypeCultural EventType = "cultural"
	EventTypeSports   EventType = "sports"
	EventTypeOther    EventType = "other"
)

// LineDecision is the approval outcome written onto an equipment line.
type LineDecision string

// Line decisions.
const (
	LineApproved LineDecision = "approved"
	LineRejected LineDecision = "rejected"
)

// EquipmentLine is one equipment request embedded in an event. The annotation
// fields are written by the fulfillment planner.
type EquipmentLine struct {
	Name      string `json:"name"`
	QtyNeeded int    `json:"qty_needed"`

	Status          LineDecision `json:"status,omitempty"`
	ApprovedQty     int          `json:"approved_quantity"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
	ReservationIDs  []int64      `json:"reservation_ids,omitempty"`
}

// Event is a scheduled school event. Start and End form the half-open
// interval [Start, End).
type Event struct {
	ID         int64           `json:"id"`
	Title      string          `json:"title"`
	Venue      string          `json:"venue"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	Status     EventStatus     `json:"status"`
	Type       EventType       `json:"type"`
	Department string          `json:"organizing_department"`
	Equipment  []EquipmentLine `json:"equipment"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	DeletedAt  *time.Time      `json:"deleted_at,omitempty"`
}

// Reasons an equipment line cannot be reserved.
const (
	LineMissingName     = "missing item name"
	LineInvalidQuantity = "invalid quantity"
)

// Problem returns why the line cannot be reserved, or "" if it can.
func (l EquipmentLine) Problem() string {
	switch {
	case NormalizeName(l.Name) == "":
		return LineMissingName
	case l.QtyNeeded < 1:
		return LineInvalidQuantity
	}
	return ""
}

// RequestLines returns the event's reservable equipment needs as request
// lines with normalized item names. Lines with a Problem are left out.
func (e *Event) RequestLines() []RequestLine {
	lines := make([]RequestLine, 0, len(e.Equipment))
	for _, l := range e.Equipment {
		if l.Problem() != "" {
			continue
		}
		lines = append(lines, RequestLine{Name: NormalizeName(l.Name), Quantity: l.QtyNeeded})
	}
	return lines
}
