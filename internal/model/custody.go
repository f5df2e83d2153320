package model

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a state machine refuses a transition.
var ErrInvalidTransition = errors.New("invalid status transition")

// CustodyStatus is the physical whereabouts of an asset. It is independent of
// whether the asset is claimed by a reservation.
type CustodyStatus string

// Custody statuses.
const (
	CustodyInStorage CustodyStatus = "in_storage"
	CustodyInUse     CustodyStatus = "in_use"
	CustodyDamaged   CustodyStatus = "damaged"
	CustodyLost      CustodyStatus = "lost"
	CustodyDisposed  CustodyStatus = "disposed"
)

var custodyTransitions = map[CustodyStatus][]CustodyStatus{
	CustodyInStorage: {CustodyInUse, CustodyDamaged, CustodyLost, CustodyDisposed},
	CustodyInUse:     {CustodyInStorage, CustodyDamaged, CustodyLost, CustodyDisposed},
	CustodyDamaged:   {CustodyInStorage, CustodyDisposed},
	CustodyLost:      {CustodyInStorage, CustodyDisposed},
	CustodyDisposed:  nil,
}

// Valid reports whether s is a known custody status.
func (s CustodyStatus) Valid() bool {
	_, ok := custodyTransitions[s]
	return ok
}

// CanTransitionTo reports whether an asset may move from s to next.
func (s CustodyStatus) CanTransitionTo(next CustodyStatus) bool {
	for _, allowed := range custodyTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition if s cannot move to next.
func (s CustodyStatus) CheckTransition(next CustodyStatus) error {
	if !s.CanTransitionTo(next) {
		return fmt.Errorf("%w: custody %s -> %s", ErrInvalidTransition, s, next)
	}
	return nil
}
