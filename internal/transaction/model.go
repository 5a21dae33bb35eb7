package transaction

import (
	"errors"
	"time"
)

// Kind classifies the business operation behind a transaction.
type Kind string

const (
	KindIssuance           Kind = "ISSUANCE"
	KindFund               Kind = "FUND"
	KindWithdraw           Kind = "WITHDRAW"
	KindTerminationRefund  Kind = "TERMINATION_REFUND"
	KindFeeCollection      Kind = "FEE_COLLECTION"
	KindDebtPayment        Kind = "DEBT_PAYMENT"
)

// Status tracks saga progress for a transaction.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

var (
	// ErrNotFound indicates the transaction does not exist.
	ErrNotFound = errors.New("transaction not found")

	// ErrImmutable indicates an attempt to change a transaction after it
	// reached SUCCESS.
	ErrImmutable = errors.New("transaction is immutable once successful")
)

// Transaction is one business operation with its balance snapshots.
type Transaction struct {
	ID                  string
	CompanyID           string
	WalletID            string
	CardID              string
	Kind                Kind
	Status              Status
	Amount              int64
	Currency            string
	WalletBalanceBefore int64
	WalletBalanceAfter  int64
	CardBalanceBefore   int64
	CardBalanceAfter    int64
	Provider            string
	Reference           string
	FailureReason       string
	RequiresReview      bool
	CreatedAt           time.Time
	CompletedAt         *time.Time
}
