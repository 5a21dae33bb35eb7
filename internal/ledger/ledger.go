package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnbalanced occurs when paired entries for a transaction do not net to
	// zero and none of them is tagged single-sided.
	ErrUnbalanced = errors.New("entries do not balance")

	// ErrEmptyRecord indicates a record call without entries.
	ErrEmptyRecord = errors.New("no entries to record")
)

// EntityType identifies which balance-bearing entity an entry touches.
type EntityType string

const (
	EntityWallet EntityType = "wallet"
	EntityCard   EntityType = "card"
)

// ChangeType marks the direction of a balance mutation.
type ChangeType string

const (
	ChangeDebit  ChangeType = "debit"
	ChangeCredit ChangeType = "credit"
)

// Entry is one append-only balance mutation record. OldBalance and NewBalance
// snapshot the entity balance around the mutation so the full history can be
// replayed without re-deriving state from the entity tables.
type Entry struct {
	EntityType  EntityType
	EntityID    string
	Amount      int64 // always positive; direction comes from Change
	Change      ChangeType
	OldBalance  int64
	NewBalance  int64
	SingleSided bool // externally sourced fees, debts, termination refunds
	RecordedAt  time.Time
}

// Signed returns the entry amount with its direction applied.
func (e Entry) Signed() int64 {
	if e.Change == ChangeDebit {
		return -e.Amount
	}
	return e.Amount
}

// Net sums the signed amounts of the paired (non single-sided) entries.
// Conservation holds when Net returns zero for every transaction.
func Net(entries []Entry) int64 {
	var sum int64
	for _, e := range entries {
		if e.SingleSided {
			continue
		}
		sum += e.Signed()
	}
	return sum
}

// Recorder appends balance mutation records. Implementations must persist all
// entries of one call atomically; balanced-ness is the caller's invariant and
// is checked here as a guard.
type Recorder interface {
	Record(ctx context.Context, transactionID string, entries []Entry) error
	Entries(ctx context.Context, transactionID string) ([]Entry, error)
}

func validate(entries []Entry) error {
	if len(entries) == 0 {
		return ErrEmptyRecord
	}
	if Net(entries) != 0 {
		return ErrUnbalanced
	}
	return nil
}
