package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInsufficientBalance occurs when the spendable balance cannot cover a
	// reservation or debit.
	ErrInsufficientBalance = errors.New("insufficient wallet balance")

	// ErrInactive indicates the wallet is disabled for funds movement.
	ErrInactive = errors.New("wallet is not active")
)

// Service exposes wallet balance operations. Every mutation runs inside the
// per-wallet lock so concurrent sagas touching the same wallet serialize.
type Service struct {
	repo  Repository
	locks *keyedMutex
}

// NewService builds a wallet service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, locks: newKeyedMutex()}
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	CompanyID string
	Currency  string
}

// Create provisions a wallet for a tenant company.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	if _, err := uuid.Parse(input.CompanyID); err != nil {
		return Wallet{}, fmt.Errorf("invalid company id: %w", err)
	}

	currency := input.Currency
	if currency == "" {
		currency = "USD"
	}

	w := Wallet{
		ID:        uuid.New().String(),
		CompanyID: input.CompanyID,
		Currency:  currency,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, w); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// Get retrieves wallet state.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// Reserve decrements both balances by amount and returns the prior balance so
// compensation can restore it exactly. This is the first state-changing step
// of every saga.
func (s *Service) Reserve(ctx context.Context, walletID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be positive")
	}

	unlock := s.locks.Lock(walletID)
	defer unlock()

	w, err := s.repo.Get(ctx, walletID)
	if err != nil {
		return 0, err
	}
	if !w.Active {
		return 0, ErrInactive
	}
	if w.PayinBalance < amount {
		return 0, ErrInsufficientBalance
	}

	prior := w.Balance
	if err := s.repo.UpdateBalances(ctx, walletID, w.Balance-amount, w.PayinBalance-amount); err != nil {
		return 0, err
	}
	return prior, nil
}

// Release returns a reserved amount to the wallet. Additive, so releasing the
// reserved amount after a failed external call restores the exact prior state.
func (s *Service) Release(ctx context.Context, walletID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	unlock := s.locks.Lock(walletID)
	defer unlock()

	w, err := s.repo.Get(ctx, walletID)
	if err != nil {
		return err
	}
	return s.repo.UpdateBalances(ctx, walletID, w.Balance+amount, w.PayinBalance+amount)
}

// Credit adds funds to the wallet (termination refunds, withdrawals landing
// back) and returns the balance before the credit.
func (s *Service) Credit(ctx context.Context, walletID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be positive")
	}

	unlock := s.locks.Lock(walletID)
	defer unlock()

	w, err := s.repo.Get(ctx, walletID)
	if err != nil {
		return 0, err
	}
	prior := w.Balance
	if err := s.repo.UpdateBalances(ctx, walletID, w.Balance+amount, w.PayinBalance+amount); err != nil {
		return 0, err
	}
	return prior, nil
}

// Debit removes funds when the spendable balance covers the amount and
// returns the balance before the debit. Used by the fee cascade.
func (s *Service) Debit(ctx context.Context, walletID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be positive")
	}

	unlock := s.locks.Lock(walletID)
	defer unlock()

	w, err := s.repo.Get(ctx, walletID)
	if err != nil {
		return 0, err
	}
	if w.PayinBalance < amount {
		return 0, ErrInsufficientBalance
	}
	prior := w.Balance
	if err := s.repo.UpdateBalances(ctx, walletID, w.Balance-amount, w.PayinBalance-amount); err != nil {
		return 0, err
	}
	return prior, nil
}
