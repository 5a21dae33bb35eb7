package wallet

import "time"

// Wallet is a tenant company's stored-value account in a single currency.
// PayinBalance is the spendable subset of Balance; both move together for
// reservations and fee debits.
type Wallet struct {
	ID           string
	CompanyID    string
	Currency     string
	Balance      int64
	PayinBalance int64
	Active       bool
	CreatedAt    time.Time
}
