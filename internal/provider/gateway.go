package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CardSpec describes the card to be issued.
type CardSpec struct {
	CustomerRef string
	Currency    string
	Brand       string
	NameOnCard  string
}

// Card is the provider's view of an issued card.
type Card struct {
	Reference  string
	Status     string // "pending", "active", "frozen", "terminated"
	Balance    int64
	Currency   string
	MaskedPAN  string
	PAN        string // populated only when sensitive details were requested
	CVV        string
	Terminated bool
	TerminatedAt *time.Time
}

// Transaction is one provider-side card transaction.
type Transaction struct {
	Reference string
	Amount    int64
	Currency  string
	Kind      string
	OccurredAt time.Time
}

// DateRange bounds a transaction listing.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Error carries the provider failure classification the saga needs to decide
// compensation. Retryable covers transport failures and provider 5xx; a
// non-retryable error means the provider rejected the request outright.
// Timeout marks calls whose outcome is unknown: the request may have landed
// even though no response arrived.
type Error struct {
	Retryable  bool
	Timeout    bool
	Message    string
	RawDetails string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error (retryable=%t): %s", e.Retryable, e.Message)
}

// IsRetryable reports whether err is a provider error flagged retryable.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// Gateway is the uniform capability the saga uses regardless of which
// external provider backs a card. Implementations never retry; at most one
// successful external effect happens per call.
type Gateway interface {
	Name() string
	IssueCard(ctx context.Context, spec CardSpec) (Card, error)
	Fund(ctx context.Context, cardRef string, amount int64) error
	Withdraw(ctx context.Context, cardRef string, amount int64) error
	Freeze(ctx context.Context, cardRef string) error
	Unfreeze(ctx context.Context, cardRef string) error
	Terminate(ctx context.Context, cardRef string) (remainingBalance int64, err error)
	GetCard(ctx context.Context, cardRef string, revealSensitive bool) (Card, error)
	ListTransactions(ctx context.Context, cardRef string, window DateRange) ([]Transaction, error)
}
