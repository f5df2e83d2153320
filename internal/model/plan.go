package model

import "time"

// Fulfillment is the state of a request line relative to current supply.
type Fulfillment string

// Fulfillment states.
const (
	FulfillmentFulfilled Fulfillment = "fulfilled"
	FulfillmentAvailable Fulfillment = "available"
	FulfillmentShortage  Fulfillment = "shortage"
)

// EventReadiness is the aggregate fulfillment state of an event.
type EventReadiness string

// Event readiness states.
const (
	ReadinessReady    EventReadiness = "ready"
	ReadinessShortage EventReadiness = "shortage"
)

// PlanLine is the fulfillment state of one request line.
type PlanLine struct {
	Name      string      `json:"name"`
	Needed    int         `json:"needed"`
	Available int         `json:"available"`
	Reserved  int         `json:"reserved"`
	Status    Fulfillment `json:"status"`
}

// Plan is the fulfillment state of an event's equipment needs.
type Plan struct {
	EventID     int64          `json:"event_id"`
	EventStatus EventReadiness `json:"event_status"`
	Lines       []PlanLine     `json:"lines"`
}

// LineChange records an equipment line before and after planning.
type LineChange struct {
	Before EquipmentLine `json:"before"`
	After  EquipmentLine `json:"after"`
}

// Notification is the payload handed to the notification composer after an
// event's equipment lines are decided.
type Notification struct {
	ID         string              `json:"id"`
	Kind       string              `json:"kind"`
	EventID    int64               `json:"event_id"`
	EventTitle string              `json:"event_title"`
	Department string              `json:"organizing_department"`
	Readiness  EventReadiness      `json:"event_status"`
	Reports    []ReservationReport `json:"reports,omitempty"`
	Lines      []LineChange        `json:"lines"`
	CreatedAt  time.Time           `json:"created_at"`
}

// Notification kinds.
const (
	NotificationFulfilled  = "equipment.fulfilled"
	NotificationRejected   = "equipment.rejected"
	NotificationReconciled = "equipment.reconciled"
)

// FulfillmentResult is the outcome of reserving and planning an event.
type FulfillmentResult struct {
	Reports []ReservationReport `json:"reports"`
	Plan    Plan                `json:"plan"`
	Event   *Event              `json:"event"`
}
