package wallet

// CreateRequest captures the data needed to provision a tenant wallet.
type CreateRequest struct {
	CompanyID string `json:"company_id"`
	Currency  string `json:"currency"`
}

// Response is the API view of a wallet.
type Response struct {
	ID           string `json:"id"`
	CompanyID    string `json:"company_id"`
	Currency     string `json:"currency"`
	Balance      int64  `json:"balance"`
	PayinBalance int64  `json:"payin_balance"`
	Active       bool   `json:"active"`
}

func toResponse(w Wallet) Response {
	return Response{
		ID:           w.ID,
		CompanyID:    w.CompanyID,
		Currency:     w.Currency,
		Balance:      w.Balance,
		PayinBalance: w.PayinBalance,
		Active:       w.Active,
	}
}
