package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service creates and finalizes transaction records.
type Service struct {
	repo Repository
}

// NewService builds a transaction service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// BeginInput captures the data known before the saga starts.
type BeginInput struct {
	CompanyID           string
	WalletID            string
	CardID              string
	Kind                Kind
	Amount              int64
	Currency            string
	Provider            string
	WalletBalanceBefore int64
	CardBalanceBefore   int64
}

// Begin creates a PENDING transaction for a saga about to run.
func (s *Service) Begin(ctx context.Context, input BeginInput) (Transaction, error) {
	t := Transaction{
		ID:                  uuid.New().String(),
		CompanyID:           input.CompanyID,
		WalletID:            input.WalletID,
		CardID:              input.CardID,
		Kind:                input.Kind,
		Status:              StatusPending,
		Amount:              input.Amount,
		Currency:            input.Currency,
		Provider:            input.Provider,
		WalletBalanceBefore: input.WalletBalanceBefore,
		WalletBalanceAfter:  input.WalletBalanceBefore,
		CardBalanceBefore:   input.CardBalanceBefore,
		CardBalanceAfter:    input.CardBalanceBefore,
		CreatedAt:           time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// Succeed marks the transaction SUCCESS with its closing snapshots.
func (s *Service) Succeed(ctx context.Context, t Transaction, walletAfter, cardAfter int64, reference string) (Transaction, error) {
	now := time.Now().UTC()
	t.Status = StatusSuccess
	t.WalletBalanceAfter = walletAfter
	t.CardBalanceAfter = cardAfter
	if reference != "" {
		t.Reference = reference
	}
	t.CompletedAt = &now
	if err := s.repo.Update(ctx, t); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// Fail marks the transaction FAILED. requiresReview flags outcomes where the
// external effect may have happened and the reservation was kept.
func (s *Service) Fail(ctx context.Context, t Transaction, reason string, requiresReview bool) (Transaction, error) {
	now := time.Now().UTC()
	t.Status = StatusFailed
	t.FailureReason = reason
	t.RequiresReview = requiresReview
	t.CompletedAt = &now
	if err := s.repo.Update(ctx, t); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// Get retrieves a transaction.
func (s *Service) Get(ctx context.Context, id string) (Transaction, error) {
	return s.repo.Get(ctx, id)
}
