package model

import "time"

// Direction tells whether a candidate slot lies before or after the requested one.
type Direction string

// Directions.
const (
	DirectionBefore Direction = "before"
	DirectionAfter  Direction = "after"
)

// Candidate is a conflict-free alternative slot for a conflicting booking.
type Candidate struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	DaysOffset    int       `json:"days_offset"`
	Direction     Direction `json:"direction"`
	Confidence    float64   `json:"confidence"`
	AIRecommended bool      `json:"ai_recommended"`
	HistoryCount  int       `json:"history_count"`
	Reasons       []string  `json:"reasons,omitempty"`
}
