package wallet

import "context"

// SeedBalance is a test helper that sets both balances on a wallet.
func SeedBalance(repo Repository, walletID string, amount int64) {
	_ = repo.UpdateBalances(context.Background(), walletID, amount, amount)
}
