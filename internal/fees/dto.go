package fees

import "time"

// CollectRequest captures a fee to collect through the cascade.
type CollectRequest struct {
	CompanyID  string `json:"company_id"`
	CustomerID string `json:"customer_id"`
	CardID     string `json:"card_id"`
	WalletID   string `json:"wallet_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Reason     string `json:"reason"`
}

// CollectResponse reports which tier covered the fee.
type CollectResponse struct {
	TransactionID string `json:"transaction_id"`
	Source        string `json:"source"`
	DebtCreated   bool   `json:"debt_created"`
	DebtID        string `json:"debt_id,omitempty"`
}

// PayDebtRequest captures a payment against an outstanding debt.
type PayDebtRequest struct {
	WalletID string `json:"wallet_id"`
	Amount   int64  `json:"amount"`
}

// DebtResponse is the API view of a debt, interest included.
type DebtResponse struct {
	ID              string    `json:"id"`
	CustomerID      string    `json:"customer_id"`
	CardID          string    `json:"card_id"`
	Amount          int64     `json:"amount"`
	AmountPaid      int64     `json:"amount_paid"`
	Outstanding     int64     `json:"outstanding"`
	AccruedInterest int64     `json:"accrued_interest"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason"`
	DueDate         time.Time `json:"due_date"`
}

func toDebtResponse(d Debt, interest int64) DebtResponse {
	return DebtResponse{
		ID:              d.ID,
		CustomerID:      d.CustomerID,
		CardID:          d.CardID,
		Amount:          d.Amount,
		AmountPaid:      d.AmountPaid,
		Outstanding:     d.Outstanding(),
		AccruedInterest: interest,
		Currency:        d.Currency,
		Status:          string(d.Status),
		Reason:          d.Reason,
		DueDate:         d.DueDate,
	}
}
