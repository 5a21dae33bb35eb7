package card

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a virtual card.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusActive     Status = "ACTIVE"
	StatusFrozen     Status = "FROZEN"
	StatusTerminated Status = "TERMINATED"
	StatusFailed     Status = "FAILED"
)

// ErrInvalidTransition indicates a disallowed status change.
var ErrInvalidTransition = errors.New("invalid card status transition")

// ErrNotFound indicates the card does not exist.
var ErrNotFound = errors.New("card not found")

// transitions encodes the card state machine. A PENDING card becomes ACTIVE
// either through a synchronous gateway response or a later webhook event; the
// two confirmation paths share this table. TERMINATED is terminal.
var transitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusFailed, StatusTerminated},
	StatusActive:  {StatusFrozen, StatusTerminated},
	StatusFrozen:  {StatusActive, StatusTerminated},
}

// CanTransition reports whether moving from one status to another is allowed.
// Same-status moves are allowed so duplicate confirmations stay idempotent.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Card represents a virtual payment card issued through an external provider.
type Card struct {
	ID           string
	CompanyID    string
	CustomerID   string
	WalletID     string
	Currency     string
	Balance      int64
	Status       Status
	Provider     string
	ProviderRef  string
	MaskedPAN    string
	CreatedAt    time.Time
	TerminatedAt *time.Time
}
