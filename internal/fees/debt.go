package fees

import (
	"errors"
	"time"
)

// DebtStatus tracks repayment of a fee the cascade could not collect.
type DebtStatus string

const (
	DebtPending       DebtStatus = "PENDING"
	DebtPartiallyPaid DebtStatus = "PARTIALLY_PAID"
	DebtPaid          DebtStatus = "PAID"
	DebtOverdue       DebtStatus = "OVERDUE"
)

// ErrDebtNotFound indicates the debt does not exist.
var ErrDebtNotFound = errors.New("debt not found")

// Debt is an uncollected fee owed by a customer. Never deleted, only
// status-transitioned.
type Debt struct {
	ID         string
	CompanyID  string
	CustomerID string
	CardID     string
	Amount     int64
	AmountPaid int64
	Currency   string
	Status     DebtStatus
	Reason     string
	DueDate    time.Time
	CreatedAt  time.Time
}

// Outstanding returns the unpaid principal.
func (d Debt) Outstanding() int64 {
	return d.Amount - d.AmountPaid
}

// Interest computes simple daily interest on the outstanding principal once
// the debt is overdue: principal x daysOverdue x dailyRate.
func (d Debt) Interest(now time.Time, dailyRate float64) int64 {
	if d.Status == DebtPaid || !now.After(d.DueDate) {
		return 0
	}
	daysOverdue := int64(now.Sub(d.DueDate).Hours() / 24)
	if daysOverdue <= 0 {
		return 0
	}
	return int64(float64(d.Outstanding()) * float64(daysOverdue) * dailyRate)
}
