package fees

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stratocard/stratocard/internal/alert"
	"github.com/stratocard/stratocard/internal/card"
	"github.com/stratocard/stratocard/internal/ledger"
	"github.com/stratocard/stratocard/internal/transaction"
	"github.com/stratocard/stratocard/internal/wallet"
)

// Source names the tier that ultimately covered a fee.
type Source string

const (
	SourceCardBalance   Source = "card_balance"
	SourceWalletBalance Source = "wallet_balance"
	SourceDebt          Source = "debt"
)

// ErrCascadeExhausted occurs when every tier fails outright (not merely
// lacking balance); it is surfaced as a critical incident.
var ErrCascadeExhausted = errors.New("fee cascade exhausted")

// Collector collects fees through the ordered fallback cascade:
// card balance, then wallet balance, then a debt record.
type Collector struct {
	cards    *card.Service
	wallets  *wallet.Service
	txns     *transaction.Service
	recorder ledger.Recorder
	debts    DebtRepository
	alerts   alert.Notifier
	logger   *slog.Logger

	dueDays   int
	dailyRate float64

	now func() time.Time
}

// NewCollector builds a fee collector.
func NewCollector(cards *card.Service, wallets *wallet.Service, txns *transaction.Service,
	recorder ledger.Recorder, debts DebtRepository, alerts alert.Notifier, logger *slog.Logger,
	dueDays int, dailyRate float64) *Collector {
	if dueDays <= 0 {
		dueDays = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		cards:     cards,
		wallets:   wallets,
		txns:      txns,
		recorder:  recorder,
		debts:     debts,
		alerts:    alerts,
		logger:    logger,
		dueDays:   dueDays,
		dailyRate: dailyRate,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Input identifies who owes the fee and why.
type Input struct {
	CompanyID  string
	CustomerID string
	CardID     string
	WalletID   string
	Amount     int64
	Currency   string
	Reason     string
}

// Result reports which tier covered the fee.
type Result struct {
	TransactionID string
	Source        Source
	DebtCreated   bool
	DebtID        string
}

// Collect walks the cascade. A tier that lacks balance or errors is skipped
// and the next tier attempted; nothing already collected is undone. Only a
// full cascade failure returns an error.
func (c *Collector) Collect(ctx context.Context, input Input) (Result, error) {
	if input.Amount <= 0 {
		return Result{}, fmt.Errorf("fee amount must be positive")
	}

	txn, err := c.txns.Begin(ctx, transaction.BeginInput{
		CompanyID: input.CompanyID,
		WalletID:  input.WalletID,
		CardID:    input.CardID,
		Kind:      transaction.KindFeeCollection,
		Amount:    input.Amount,
		Currency:  input.Currency,
	})
	if err != nil {
		return Result{}, err
	}

	var tierErrs []error

	if input.CardID != "" {
		result, tierErr := c.fromCard(ctx, txn, input)
		if tierErr == nil {
			return result, nil
		}
		tierErrs = append(tierErrs, tierErr)
		c.logger.Info("fee tier skipped", "tier", "card_balance", "card_id", input.CardID, "reason", tierErr.Error())
	}

	result, tierErr := c.fromWallet(ctx, txn, input)
	if tierErr == nil {
		return result, nil
	}
	tierErrs = append(tierErrs, tierErr)
	c.logger.Info("fee tier skipped", "tier", "wallet_balance", "wallet_id", input.WalletID, "reason", tierErr.Error())

	result, tierErr = c.asDebt(ctx, txn, input)
	if tierErr == nil {
		return result, nil
	}
	tierErrs = append(tierErrs, tierErr)

	if c.alerts != nil {
		_ = c.alerts.Critical(ctx, alert.Incident{
			Kind:          alert.KindFeeCascadeExhausted,
			TransactionID: txn.ID,
			WalletID:      input.WalletID,
			CardID:        input.CardID,
			Amount:        input.Amount,
			Detail:        errors.Join(tierErrs...).Error(),
		})
	}
	_, _ = c.txns.Fail(ctx, txn, "all fee tiers failed", true)
	return Result{}, fmt.Errorf("%w: %v", ErrCascadeExhausted, errors.Join(tierErrs...))
}

func (c *Collector) fromCard(ctx context.Context, txn transaction.Transaction, input Input) (Result, error) {
	cd, err := c.cards.Get(ctx, input.CardID)
	if err != nil {
		return Result{}, err
	}
	if cd.Balance < input.Amount {
		return Result{}, fmt.Errorf("card balance %d below fee %d", cd.Balance, input.Amount)
	}

	prior, err := c.cards.ApplyDelta(ctx, input.CardID, -input.Amount)
	if err != nil {
		return Result{}, err
	}

	entry := ledger.Entry{
		EntityType:  ledger.EntityCard,
		EntityID:    input.CardID,
		Amount:      input.Amount,
		Change:      ledger.ChangeDebit,
		OldBalance:  prior,
		NewBalance:  prior - input.Amount,
		SingleSided: true,
	}
	if err := c.recorder.Record(ctx, txn.ID, []ledger.Entry{entry}); err != nil {
		return Result{}, err
	}

	if _, err := c.txns.Succeed(ctx, txn, txn.WalletBalanceBefore, prior-input.Amount, input.Reason); err != nil {
		return Result{}, err
	}
	c.logger.Info("fee collected", "source", SourceCardBalance, "card_id", input.CardID, "amount", input.Amount, "reason", input.Reason)
	return Result{TransactionID: txn.ID, Source: SourceCardBalance}, nil
}

func (c *Collector) fromWallet(ctx context.Context, txn transaction.Transaction, input Input) (Result, error) {
	prior, err := c.wallets.Debit(ctx, input.WalletID, input.Amount)
	if err != nil {
		return Result{}, err
	}

	entry := ledger.Entry{
		EntityType:  ledger.EntityWallet,
		EntityID:    input.WalletID,
		Amount:      input.Amount,
		Change:      ledger.ChangeDebit,
		OldBalance:  prior,
		NewBalance:  prior - input.Amount,
		SingleSided: true,
	}
	if err := c.recorder.Record(ctx, txn.ID, []ledger.Entry{entry}); err != nil {
		return Result{}, err
	}

	if _, err := c.txns.Succeed(ctx, txn, prior-input.Amount, txn.CardBalanceBefore, input.Reason); err != nil {
		return Result{}, err
	}
	c.logger.Info("fee collected", "source", SourceWalletBalance, "wallet_id", input.WalletID, "amount", input.Amount, "reason", input.Reason)
	return Result{TransactionID: txn.ID, Source: SourceWalletBalance}, nil
}

func (c *Collector) asDebt(ctx context.Context, txn transaction.Transaction, input Input) (Result, error) {
	now := c.now()
	debt := Debt{
		ID:         uuid.New().String(),
		CompanyID:  input.CompanyID,
		CustomerID: input.CustomerID,
		CardID:     input.CardID,
		Amount:     input.Amount,
		Currency:   input.Currency,
		Status:     DebtPending,
		Reason:     input.Reason,
		DueDate:    now.AddDate(0, 0, c.dueDays),
		CreatedAt:  now,
	}
	if err := c.debts.Create(ctx, debt); err != nil {
		return Result{}, err
	}

	if _, err := c.txns.Succeed(ctx, txn, txn.WalletBalanceBefore, txn.CardBalanceBefore, input.Reason); err != nil {
		return Result{}, err
	}
	c.logger.Warn("fee deferred to debt", "debt_id", debt.ID, "customer_id", input.CustomerID, "amount", input.Amount, "due_date", debt.DueDate)
	return Result{TransactionID: txn.ID, Source: SourceDebt, DebtCreated: true, DebtID: debt.ID}, nil
}

// PayDebt settles a debt (fully or partially) from the company wallet,
// recording a DEBT_PAYMENT transaction and a single-sided wallet debit.
func (c *Collector) PayDebt(ctx context.Context, debtID, walletID string, amount int64) (Debt, error) {
	if amount <= 0 {
		return Debt{}, fmt.Errorf("payment amount must be positive")
	}

	debt, err := c.debts.Get(ctx, debtID)
	if err != nil {
		return Debt{}, err
	}
	if debt.Status == DebtPaid {
		return debt, nil
	}
	if amount > debt.Outstanding() {
		amount = debt.Outstanding()
	}

	txn, err := c.txns.Begin(ctx, transaction.BeginInput{
		CompanyID: debt.CompanyID,
		WalletID:  walletID,
		CardID:    debt.CardID,
		Kind:      transaction.KindDebtPayment,
		Amount:    amount,
		Currency:  debt.Currency,
	})
	if err != nil {
		return Debt{}, err
	}

	prior, err := c.wallets.Debit(ctx, walletID, amount)
	if err != nil {
		_, _ = c.txns.Fail(ctx, txn, err.Error(), false)
		return Debt{}, err
	}

	entry := ledger.Entry{
		EntityType:  ledger.EntityWallet,
		EntityID:    walletID,
		Amount:      amount,
		Change:      ledger.ChangeDebit,
		OldBalance:  prior,
		NewBalance:  prior - amount,
		SingleSided: true,
	}
	if err := c.recorder.Record(ctx, txn.ID, []ledger.Entry{entry}); err != nil {
		_, _ = c.txns.Fail(ctx, txn, err.Error(), true)
		return Debt{}, err
	}

	debt.AmountPaid += amount
	if debt.Outstanding() == 0 {
		debt.Status = DebtPaid
	} else {
		debt.Status = DebtPartiallyPaid
	}
	if err := c.debts.Update(ctx, debt); err != nil {
		_, _ = c.txns.Fail(ctx, txn, err.Error(), true)
		return Debt{}, err
	}

	if _, err := c.txns.Succeed(ctx, txn, prior-amount, txn.CardBalanceBefore, debt.ID); err != nil {
		return Debt{}, err
	}
	return debt, nil
}

// Debt returns a debt by id.
func (c *Collector) Debt(ctx context.Context, debtID string) (Debt, error) {
	debt, err := c.debts.Get(ctx, debtID)
	if err != nil {
		return Debt{}, err
	}
	return c.markOverdue(ctx, debt), nil
}

// DebtsForCustomer lists a customer's debts, newest first.
func (c *Collector) DebtsForCustomer(ctx context.Context, customerID string) ([]Debt, error) {
	debts, err := c.debts.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	for i, d := range debts {
		debts[i] = c.markOverdue(ctx, d)
	}
	return debts, nil
}

// markOverdue flips an unpaid debt past its due date to OVERDUE. Applied
// lazily on read; there is no background sweeper.
func (c *Collector) markOverdue(ctx context.Context, d Debt) Debt {
	if d.Status == DebtPaid || d.Status == DebtOverdue || !c.now().After(d.DueDate) {
		return d
	}
	d.Status = DebtOverdue
	if err := c.debts.Update(ctx, d); err != nil {
		c.logger.Warn("failed to persist overdue debt status", "debt_id", d.ID, "error", err)
	}
	return d
}

// AccruedInterest returns the simple daily interest owed on a debt as of now.
func (c *Collector) AccruedInterest(d Debt) int64 {
	return d.Interest(c.now(), c.dailyRate)
}
