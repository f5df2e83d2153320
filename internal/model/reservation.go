package model

import (
	"fmt"
	"time"
)

// ClaimStatus is the state of a ledger claim on an asset. It is orthogonal to
// the asset's CustodyStatus: a reserved asset stays in storage until issued.
type ClaimStatus string

// Claim statuses.
const (
	ClaimReserved ClaimStatus = "reserved"
	ClaimIssued   ClaimStatus = "issued"
	ClaimReturned ClaimStatus = "returned"
)

// ActiveClaimStatuses are the statuses that hold an exclusive claim on an asset.
var ActiveClaimStatuses = []ClaimStatus{ClaimReserved, ClaimIssued}

// Active reports whether the claim still holds its asset.
func (s ClaimStatus) Active() bool {
	return s == ClaimReserved || s == ClaimIssued
}

// CheckTransition returns ErrInvalidTransition unless s -> next is
// reserved -> issued or issued -> returned.
func (s ClaimStatus) CheckTransition(next ClaimStatus) error {
	switch {
	case s == ClaimReserved && next == ClaimIssued:
		return nil
	case s == ClaimIssued && next == ClaimReturned:
		return nil
	}
	return fmt.Errorf("%w: claim %s -> %s", ErrInvalidTransition, s, next)
}

// Reservation is a ledger claim on one asset for one event.
type Reservation struct {
	ID         int64       `json:"id" db:"id"`
	EventID    int64       `json:"event_id" db:"event_id"`
	AssetID    int64       `json:"asset_id" db:"asset_id"`
	Status     ClaimStatus `json:"status" db:"status"`
	ReservedAt time.Time   `json:"reserved_at" db:"reserved_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`

	// Joined fields (not always populated).
	ItemName string `json:"item_name,omitempty" db:"item_name"`
}

// ConsumableClaim is a quantity debited from a consumable lot for an event.
type ConsumableClaim struct {
	ID        int64     `json:"id" db:"id"`
	EventID   int64     `json:"event_id" db:"event_id"`
	LotID     int64     `json:"lot_id" db:"lot_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	ClaimedAt time.Time `json:"claimed_at" db:"claimed_at"`

	// Joined fields (not always populated).
	ItemName string `json:"item_name,omitempty" db:"item_name"`
}

// RequestLine asks for a quantity of an item by name.
type RequestLine struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"qty" validate:"gte=1"`
}

// ReservationReport is the outcome of reserving one request line.
type ReservationReport struct {
	Name           string  `json:"name"`
	Requested      int     `json:"requested"`
	Reserved       int     `json:"reserved"`
	Shortfall      int     `json:"shortfall"`
	ReservationIDs []int64 `json:"reservation_ids,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// EventLedger is every ledger row of one event.
type EventLedger struct {
	EventID      int64             `json:"event_id"`
	Reservations []Reservation     `json:"reservations"`
	Consumables  []ConsumableClaim `json:"consumables"`
}
