package saga

import "github.com/stratocard/stratocard/internal/card"

// IssueRequest captures the data needed to issue a virtual card.
type IssueRequest struct {
	CompanyID      string `json:"company_id"`
	CustomerID     string `json:"customer_id"`
	WalletID       string `json:"wallet_id"`
	Currency       string `json:"currency"`
	Brand          string `json:"brand"`
	NameOnCard     string `json:"name_on_card"`
	InitialBalance int64  `json:"initial_balance,omitempty"`
	IssuanceFee    int64  `json:"issuance_fee,omitempty"`
}

// AmountRequest carries the amount for fund and withdraw operations.
type AmountRequest struct {
	Amount int64 `json:"amount"`
}

// CardResponse is the API view of a card.
type CardResponse struct {
	ID          string `json:"id"`
	CompanyID   string `json:"company_id"`
	CustomerID  string `json:"customer_id"`
	WalletID    string `json:"wallet_id"`
	Currency    string `json:"currency"`
	Balance     int64  `json:"balance"`
	Status      string `json:"status"`
	Provider    string `json:"provider"`
	MaskedPAN   string `json:"masked_pan"`
}

// IssueResponse reports the outcome of the issuance saga.
type IssueResponse struct {
	Card          CardResponse `json:"card"`
	TransactionID string       `json:"transaction_id"`
	FeeSource     string       `json:"fee_source,omitempty"`
}

// MovementResponse reports the balances after a fund or withdraw saga.
type MovementResponse struct {
	TransactionID string `json:"transaction_id"`
	WalletBalance int64  `json:"wallet_balance"`
	CardBalance   int64  `json:"card_balance"`
}

// TerminateResponse reports the refund moved back to the wallet.
type TerminateResponse struct {
	TransactionID string `json:"transaction_id"`
	Refunded      int64  `json:"refunded"`
	WalletBalance int64  `json:"wallet_balance"`
}

func toCardResponse(cd card.Card) CardResponse {
	return CardResponse{
		ID:         cd.ID,
		CompanyID:  cd.CompanyID,
		CustomerID: cd.CustomerID,
		WalletID:   cd.WalletID,
		Currency:   cd.Currency,
		Balance:    cd.Balance,
		Status:     string(cd.Status),
		Provider:   cd.Provider,
		MaskedPAN:  cd.MaskedPAN,
	}
}
