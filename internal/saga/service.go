package saga

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stratocard/stratocard/internal/alert"
	"github.com/stratocard/stratocard/internal/card"
	"github.com/stratocard/stratocard/internal/fees"
	"github.com/stratocard/stratocard/internal/ledger"
	"github.com/stratocard/stratocard/internal/provider"
	"github.com/stratocard/stratocard/internal/transaction"
	"github.com/stratocard/stratocard/internal/wallet"
)

// Service runs the funds-movement sagas: reserve internal balance, call the
// external provider, record the double-entry ledger movement, and compensate
// on partial failure.
type Service struct {
	wallets  *wallet.Service
	cards    *card.Service
	txns     *transaction.Service
	recorder ledger.Recorder
	gateway  provider.Gateway
	feeCollector *fees.Collector
	comp     *compensator
	logger   *slog.Logger
}

// NewService wires the saga engine. The fee collector is optional; without it
// no issuance fee is charged.
func NewService(wallets *wallet.Service, cards *card.Service, txns *transaction.Service,
	recorder ledger.Recorder, gateway provider.Gateway, feeCollector *fees.Collector,
	alerts alert.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		wallets:      wallets,
		cards:        cards,
		txns:         txns,
		recorder:     recorder,
		gateway:      gateway,
		feeCollector: feeCollector,
		comp:         &compensator{wallets: wallets, txns: txns, alerts: alerts, logger: logger},
		logger:       logger,
	}
}

// IssueInput captures the data needed to issue a card.
type IssueInput struct {
	CompanyID      string
	CustomerID     string
	WalletID       string
	Currency       string
	Brand          string
	NameOnCard     string
	InitialBalance int64 // optional funding applied in the same saga
	IssuanceFee    int64 // optional, collected through the fee cascade
}

// IssueResult reports the issued card and its transaction.
type IssueResult struct {
	Card          card.Card
	TransactionID string
	FeeSource     fees.Source
}

// IssueCard runs the issuance saga. The card is created PENDING and becomes
// ACTIVE immediately when the provider confirms synchronously; otherwise a
// later card.created webhook completes the same transition.
func (s *Service) IssueCard(ctx context.Context, input IssueInput) (IssueResult, error) {
	w, err := s.wallets.Get(ctx, input.WalletID)
	if err != nil {
		return IssueResult{}, err
	}
	if input.Currency == "" {
		input.Currency = w.Currency
	}

	var reserved int64
	walletBefore := w.Balance
	if input.InitialBalance > 0 {
		prior, err := s.wallets.Reserve(ctx, input.WalletID, input.InitialBalance)
		if err != nil {
			return IssueResult{}, err
		}
		reserved = input.InitialBalance
		walletBefore = prior
	}

	txn, err := s.txns.Begin(ctx, transaction.BeginInput{
		CompanyID:           input.CompanyID,
		WalletID:            input.WalletID,
		Kind:                transaction.KindIssuance,
		Amount:              input.InitialBalance,
		Currency:            input.Currency,
		Provider:            s.gateway.Name(),
		WalletBalanceBefore: walletBefore,
	})
	if err != nil {
		if reserved > 0 {
			_ = s.wallets.Release(ctx, input.WalletID, reserved)
		}
		return IssueResult{}, err
	}

	issued, err := s.gateway.IssueCard(ctx, provider.CardSpec{
		CustomerRef: input.CustomerID,
		Currency:    input.Currency,
		Brand:       input.Brand,
		NameOnCard:  input.NameOnCard,
	})
	if err != nil {
		s.comp.onFailure(ctx, txn, reserved, classifyEffect(err), err)
		return IssueResult{}, err
	}

	status := card.StatusPending
	if issued.Status == "active" {
		status = card.StatusActive
	}
	newCard := card.Card{
		ID:          uuid.New().String(),
		CompanyID:   input.CompanyID,
		CustomerID:  input.CustomerID,
		WalletID:    input.WalletID,
		Currency:    input.Currency,
		Status:      status,
		Provider:    s.gateway.Name(),
		ProviderRef: issued.Reference,
		MaskedPAN:   issued.MaskedPAN,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.cards.Create(ctx, newCard); err != nil {
		s.comp.onFailure(ctx, txn, reserved, EffectHappened, err)
		return IssueResult{}, err
	}

	if input.InitialBalance > 0 {
		if err := s.gateway.Fund(ctx, issued.Reference, input.InitialBalance); err != nil {
			// Card exists either way; only the funding leg is compensated.
			s.comp.onFailure(ctx, txn, reserved, classifyEffect(err), err)
			return IssueResult{}, err
		}
		if err := s.finalizeFunding(ctx, &txn, newCard.ID, input.WalletID, input.InitialBalance, walletBefore, issued.Reference); err != nil {
			s.comp.onFailure(ctx, txn, reserved, EffectHappened, err)
			return IssueResult{}, err
		}
	} else {
		if _, err := s.txns.Succeed(ctx, txn, walletBefore, 0, issued.Reference); err != nil {
			s.comp.onFailure(ctx, txn, reserved, EffectHappened, err)
			return IssueResult{}, err
		}
	}

	result := IssueResult{Card: newCard, TransactionID: txn.ID}
	if input.IssuanceFee > 0 && s.feeCollector != nil {
		feeRes, feeErr := s.feeCollector.Collect(ctx, fees.Input{
			CompanyID:  input.CompanyID,
			CustomerID: input.CustomerID,
			CardID:     newCard.ID,
			WalletID:   input.WalletID,
			Amount:     input.IssuanceFee,
			Currency:   input.Currency,
			Reason:     "card_issuance",
		})
		if feeErr != nil {
			// The card was issued; a failed fee collection is an incident of
			// its own, not grounds to unwind issuance.
			s.logger.Error("issuance fee collection failed", "card_id", newCard.ID, "error", feeErr)
		} else {
			result.FeeSource = feeRes.Source
		}
	}

	s.logger.Info("card issued", "card_id", newCard.ID, "status", newCard.Status, "provider_ref", newCard.ProviderRef)
	return result, nil
}

// FundResult reports the balances after a completed funding saga.
type FundResult struct {
	TransactionID string
	WalletBalance int64
	CardBalance   int64
}

// Fund moves amount from the card's wallet onto the card.
func (s *Service) Fund(ctx context.Context, cardID string, amount int64) (FundResult, error) {
	if amount <= 0 {
		return FundResult{}, fmt.Errorf("amount must be positive")
	}
	cd, err := s.cards.Get(ctx, cardID)
	if err != nil {
		return FundResult{}, err
	}
	if cd.Status != card.StatusActive {
		return FundResult{}, fmt.Errorf("card %s is %s, not ACTIVE", cardID, cd.Status)
	}

	walletBefore, err := s.wallets.Reserve(ctx, cd.WalletID, amount)
	if err != nil {
		return FundResult{}, err
	}

	txn, err := s.txns.Begin(ctx, transaction.BeginInput{
		CompanyID:           cd.CompanyID,
		WalletID:            cd.WalletID,
		CardID:              cardID,
		Kind:                transaction.KindFund,
		Amount:              amount,
		Currency:            cd.Currency,
		Provider:            cd.Provider,
		WalletBalanceBefore: walletBefore,
		CardBalanceBefore:   cd.Balance,
	})
	if err != nil {
		_ = s.wallets.Release(ctx, cd.WalletID, amount)
		return FundResult{}, err
	}

	if err := s.gateway.Fund(ctx, cd.ProviderRef, amount); err != nil {
		s.comp.onFailure(ctx, txn, amount, classifyEffect(err), err)
		return FundResult{}, err
	}

	if err := s.finalizeFunding(ctx, &txn, cardID, cd.WalletID, amount, walletBefore, ""); err != nil {
		s.comp.onFailure(ctx, txn, amount, EffectHappened, err)
		return FundResult{}, err
	}

	return FundResult{TransactionID: txn.ID, WalletBalance: walletBefore - amount, CardBalance: cd.Balance + amount}, nil
}

// finalizeFunding applies the local card credit and records the paired
// wallet-debit/card-credit ledger movement after a successful external fund.
func (s *Service) finalizeFunding(ctx context.Context, txn *transaction.Transaction, cardID, walletID string, amount, walletBefore int64, reference string) error {
	cardPrior, err := s.cards.ApplyDelta(ctx, cardID, amount)
	if err != nil {
		return err
	}
	entries := []ledger.Entry{
		{
			EntityType: ledger.EntityWallet,
			EntityID:   walletID,
			Amount:     amount,
			Change:     ledger.ChangeDebit,
			OldBalance: walletBefore,
			NewBalance: walletBefore - amount,
		},
		{
			EntityType: ledger.EntityCard,
			EntityID:   cardID,
			Amount:     amount,
			Change:     ledger.ChangeCredit,
			OldBalance: cardPrior,
			NewBalance: cardPrior + amount,
		},
	}
	if err := s.recorder.Record(ctx, txn.ID, entries); err != nil {
		return err
	}
	updated, err := s.txns.Succeed(ctx, *txn, walletBefore-amount, cardPrior+amount, reference)
	if err != nil {
		return err
	}
	*txn = updated
	return nil
}

// WithdrawResult reports the balances after a completed withdrawal saga.
type WithdrawResult struct {
	TransactionID string
	WalletBalance int64
	CardBalance   int64
}

// Withdraw moves amount off the card back into its wallet.
func (s *Service) Withdraw(ctx context.Context, cardID string, amount int64) (WithdrawResult, error) {
	if amount <= 0 {
		return WithdrawResult{}, fmt.Errorf("amount must be positive")
	}
	cd, err := s.cards.Get(ctx, cardID)
	if err != nil {
		return WithdrawResult{}, err
	}
	if cd.Status != card.StatusActive {
		return WithdrawResult{}, fmt.Errorf("card %s is %s, not ACTIVE", cardID, cd.Status)
	}
	if cd.Balance < amount {
		return WithdrawResult{}, fmt.Errorf("card balance %d below withdrawal %d", cd.Balance, amount)
	}

	w, err := s.wallets.Get(ctx, cd.WalletID)
	if err != nil {
		return WithdrawResult{}, err
	}

	txn, err := s.txns.Begin(ctx, transaction.BeginInput{
		CompanyID:           cd.CompanyID,
		WalletID:            cd.WalletID,
		CardID:              cardID,
		Kind:                transaction.KindWithdraw,
		Amount:              amount,
		Currency:            cd.Currency,
		Provider:            cd.Provider,
		WalletBalanceBefore: w.Balance,
		CardBalanceBefore:   cd.Balance,
	})
	if err != nil {
		return WithdrawResult{}, err
	}

	if err := s.gateway.Withdraw(ctx, cd.ProviderRef, amount); err != nil {
		// No reservation to release: the wallet was untouched.
		s.comp.onFailure(ctx, txn, 0, classifyEffect(err), err)
		return WithdrawResult{}, err
	}

	cardPrior, err := s.cards.ApplyDelta(ctx, cardID, -amount)
	if err != nil {
		s.comp.onFailure(ctx, txn, 0, EffectHappened, err)
		return WithdrawResult{}, err
	}
	walletPrior, err := s.wallets.Credit(ctx, cd.WalletID, amount)
	if err != nil {
		s.comp.onFailure(ctx, txn, 0, EffectHappened, err)
		return WithdrawResult{}, err
	}

	entries := []ledger.Entry{
		{
			EntityType: ledger.EntityCard,
			EntityID:   cardID,
			Amount:     amount,
			Change:     ledger.ChangeDebit,
			OldBalance: cardPrior,
			NewBalance: cardPrior - amount,
		},
		{
			EntityType: ledger.EntityWallet,
			EntityID:   cd.WalletID,
			Amount:     amount,
			Change:     ledger.ChangeCredit,
			OldBalance: walletPrior,
			NewBalance: walletPrior + amount,
		},
	}
	if err := s.recorder.Record(ctx, txn.ID, entries); err != nil {
		s.comp.onFailure(ctx, txn, 0, EffectHappened, err)
		return WithdrawResult{}, err
	}

	if _, err := s.txns.Succeed(ctx, txn, walletPrior+amount, cardPrior-amount, ""); err != nil {
		s.comp.onFailure(ctx, txn, 0, EffectHappened, err)
		return WithdrawResult{}, err
	}

	return WithdrawResult{TransactionID: txn.ID, WalletBalance: walletPrior + amount, CardBalance: cardPrior - amount}, nil
}

// Freeze suspends the card at the provider and locally.
func (s *Service) Freeze(ctx context.Context, cardID string) (card.Card, error) {
	cd, err := s.cards.Get(ctx, cardID)
	if err != nil {
		return card.Card{}, err
	}
	if !card.CanTransition(cd.Status, card.StatusFrozen) {
		return card.Card{}, fmt.Errorf("%w: %s -> %s", card.ErrInvalidTransition, cd.Status, card.StatusFrozen)
	}
	if err := s.gateway.Freeze(ctx, cd.ProviderRef); err != nil {
		return card.Card{}, err
	}
	return s.cards.Transition(ctx, cardID, card.StatusFrozen)
}

// Unfreeze reactivates the card at the provider and locally.
func (s *Service) Unfreeze(ctx context.Context, cardID string) (card.Card, error) {
	cd, err := s.cards.Get(ctx, cardID)
	if err != nil {
		return card.Card{}, err
	}
	if !card.CanTransition(cd.Status, card.StatusActive) {
		return card.Card{}, fmt.Errorf("%w: %s -> %s", card.ErrInvalidTransition, cd.Status, card.StatusActive)
	}
	if err := s.gateway.Unfreeze(ctx, cd.ProviderRef); err != nil {
		return card.Card{}, err
	}
	return s.cards.Transition(ctx, cardID, card.StatusActive)
}

// TerminateResult reports the refund moved back to the wallet.
type TerminateResult struct {
	TransactionID string
	Refunded      int64
	WalletBalance int64
}

// Terminate closes the card at the provider and refunds its remaining
// balance to the wallet through a TERMINATION_REFUND transaction.
func (s *Service) Terminate(ctx context.Context, cardID string) (TerminateResult, error) {
	cd, err := s.cards.Get(ctx, cardID)
	if err != nil {
		return TerminateResult{}, err
	}
	if cd.Status == card.StatusTerminated {
		return TerminateResult{}, fmt.Errorf("card %s is already terminated", cardID)
	}

	w, err := s.wallets.Get(ctx, cd.WalletID)
	if err != nil {
		return TerminateResult{}, err
	}

	txn, err := s.txns.Begin(ctx, transaction.BeginInput{
		CompanyID:           cd.CompanyID,
		WalletID:            cd.WalletID,
		CardID:              cardID,
		Kind:                transaction.KindTerminationRefund,
		Currency:            cd.Currency,
		Provider:            cd.Provider,
		WalletBalanceBefore: w.Balance,
		CardBalanceBefore:   cd.Balance,
	})
	if err != nil {
		return TerminateResult{}, err
	}

	remaining, err := s.gateway.Terminate(ctx, cd.ProviderRef)
	if err != nil {
		s.comp.onFailure(ctx, txn, 0, classifyEffect(err), err)
		return TerminateResult{}, err
	}

	// The provider's remaining balance is the refund truth. When the local
	// balance has drifted from it, the gap is adopted first as a single-sided
	// entry so the card's full movement to zero stays on the ledger.
	var entries []ledger.Entry
	if drift := remaining - cd.Balance; drift != 0 {
		change := ledger.ChangeCredit
		amount := drift
		if drift < 0 {
			change = ledger.ChangeDebit
			amount = -drift
		}
		entries = append(entries, ledger.Entry{
			EntityType:  ledger.EntityCard,
			EntityID:    cardID,
			Amount:      amount,
			Change:      change,
			OldBalance:  cd.Balance,
			NewBalance:  remaining,
			SingleSided: true, // drift against provider truth has no local counterparty
		})
		s.logger.Warn("card balance drifted at termination",
			"card_id", cardID, "local_balance", cd.Balance, "provider_remaining", remaining)
	}

	walletPrior := w.Balance
	if remaining > 0 {
		walletPrior, err = s.wallets.Credit(ctx, cd.WalletID, remaining)
		if err != nil {
			s.comp.onFailure(ctx, txn, 0, EffectHappened, err)
			return TerminateResult{}, err
		}
		entries = append(entries,
			ledger.Entry{
				EntityType: ledger.EntityCard,
				EntityID:   cardID,
				Amount:     remaining,
				Change:     ledger.ChangeDebit,
				OldBalance: remaining,
				NewBalance: 0,
			},
			ledger.Entry{
				EntityType: ledger.EntityWallet,
				EntityID:   cd.WalletID,
				Amount:     remaining,
				Change:     ledger.ChangeCredit,
				OldBalance: walletPrior,
				NewBalance: walletPrior + remaining,
			},
		)
	}
	if len(entries) > 0 {
		if err := s.recorder.Record(ctx, txn.ID, entries); err != nil {
			s.comp.onFailure(ctx, txn, 0, EffectHappened, err)
			return TerminateResult{}, err
		}
	}

	if _, err := s.cards.Transition(ctx, cardID, card.StatusTerminated); err != nil {
		s.comp.onFailure(ctx, txn, 0, EffectHappened, err)
		return TerminateResult{}, err
	}

	if _, err := s.txns.Succeed(ctx, txn, walletPrior+remaining, 0, cd.ProviderRef); err != nil {
		s.comp.onFailure(ctx, txn, 0, EffectHappened, err)
		return TerminateResult{}, err
	}

	s.logger.Info("card terminated", "card_id", cardID, "refunded", remaining)
	return TerminateResult{TransactionID: txn.ID, Refunded: remaining, WalletBalance: walletPrior + remaining}, nil
}
