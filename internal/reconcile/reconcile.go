package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stratocard/stratocard/internal/alert"
	"github.com/stratocard/stratocard/internal/card"
	"github.com/stratocard/stratocard/internal/ledger"
	"github.com/stratocard/stratocard/internal/provider"
	"github.com/stratocard/stratocard/internal/transaction"
	"github.com/stratocard/stratocard/internal/wallet"
)

// DriftError marks a provider state the reconciler cannot map onto the local
// card model. The drift is logged and alerted, never auto-corrected.
type DriftError struct {
	CardID         string
	ProviderStatus string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("card %s: unmappable provider status %q", e.CardID, e.ProviderStatus)
}

// CardResult is the outcome of reconciling a single card.
type CardResult struct {
	CardID              string
	Changed             bool
	Terminated          bool
	Refunded            int64
	RefundTransactionID string
	Drift               int64
	DriftLedgerID       string
}

// Summary aggregates a batch run.
type Summary struct {
	Total      int
	Changed    int
	Terminated int
	Errored    int
}

// Service pulls provider-side truth and corrects local card state.
type Service struct {
	cards    *card.Service
	wallets  *wallet.Service
	txns     *transaction.Service
	recorder ledger.Recorder
	gateway  provider.Gateway
	alerts   alert.Notifier
	logger   *slog.Logger

	workers    int
	driftAlert int64
}

// NewService builds the reconciler. workers bounds the provider fan-out of
// batch runs; driftAlert is the absolute balance drift, in minor units, above
// which a critical incident is raised.
func NewService(cards *card.Service, wallets *wallet.Service, txns *transaction.Service,
	recorder ledger.Recorder, gateway provider.Gateway, alerts alert.Notifier,
	logger *slog.Logger, workers int, driftAlert int64) *Service {
	if workers <= 0 {
		workers = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cards:      cards,
		wallets:    wallets,
		txns:       txns,
		recorder:   recorder,
		gateway:    gateway,
		alerts:     alerts,
		logger:     logger,
		workers:    workers,
		driftAlert: driftAlert,
	}
}

// localStatus maps the provider's status vocabulary onto the card state
// machine. ok is false for statuses with no local equivalent.
func localStatus(providerStatus string) (card.Status, bool) {
	switch providerStatus {
	case "pending":
		return card.StatusPending, true
	case "active":
		return card.StatusActive, true
	case "frozen":
		return card.StatusFrozen, true
	case "terminated":
		return card.StatusTerminated, true
	}
	return "", false
}

// ReconcileCard fetches provider truth for one card and corrects local state.
// A provider-side termination the local state has not seen yet refunds the
// card's remaining balance to the wallet before the status flips.
func (s *Service) ReconcileCard(ctx context.Context, cardID string) (CardResult, error) {
	cd, err := s.cards.Get(ctx, cardID)
	if err != nil {
		return CardResult{}, err
	}
	if cd.Status == card.StatusTerminated {
		return CardResult{CardID: cardID}, nil
	}

	remote, err := s.gateway.GetCard(ctx, cd.ProviderRef, false)
	if err != nil {
		return CardResult{}, fmt.Errorf("fetch provider card %s: %w", cd.ProviderRef, err)
	}

	if remote.Terminated || remote.Status == "terminated" {
		return s.discoveredTermination(ctx, cd)
	}

	result := CardResult{CardID: cardID}

	target, ok := localStatus(remote.Status)
	if !ok {
		return result, &DriftError{CardID: cardID, ProviderStatus: remote.Status}
	}
	if target != cd.Status {
		if !card.CanTransition(cd.Status, target) {
			return result, &DriftError{CardID: cardID, ProviderStatus: remote.Status}
		}
		if _, err := s.cards.Transition(ctx, cardID, target); err != nil {
			return result, err
		}
		s.logger.Info("card status reconciled", "card_id", cardID, "from", cd.Status, "to", target)
		result.Changed = true
	}

	if drift := remote.Balance - cd.Balance; drift != 0 {
		ledgerID, err := s.applyBalanceDrift(ctx, cd, drift)
		if err != nil {
			return result, err
		}
		result.Changed = true
		result.Drift = drift
		result.DriftLedgerID = ledgerID
	}
	return result, nil
}

// discoveredTermination handles a card the provider closed without the local
// saga seeing it: refund the locally-tracked balance to the wallet through a
// TERMINATION_REFUND transaction, then mark the card TERMINATED.
func (s *Service) discoveredTermination(ctx context.Context, cd card.Card) (CardResult, error) {
	result := CardResult{CardID: cd.ID, Changed: true, Terminated: true}

	w, err := s.wallets.Get(ctx, cd.WalletID)
	if err != nil {
		return result, err
	}
	txn, err := s.txns.Begin(ctx, transaction.BeginInput{
		CompanyID:           cd.CompanyID,
		WalletID:            cd.WalletID,
		CardID:              cd.ID,
		Kind:                transaction.KindTerminationRefund,
		Amount:              cd.Balance,
		Currency:            cd.Currency,
		Provider:            cd.Provider,
		WalletBalanceBefore: w.Balance,
		CardBalanceBefore:   cd.Balance,
	})
	if err != nil {
		return result, err
	}
	result.RefundTransactionID = txn.ID

	walletPrior := w.Balance
	if cd.Balance > 0 {
		walletPrior, err = s.wallets.Credit(ctx, cd.WalletID, cd.Balance)
		if err != nil {
			return result, err
		}
		entries := []ledger.Entry{
			{
				EntityType: ledger.EntityCard,
				EntityID:   cd.ID,
				Amount:     cd.Balance,
				Change:     ledger.ChangeDebit,
				OldBalance: cd.Balance,
				NewBalance: 0,
			},
			{
				EntityType: ledger.EntityWallet,
				EntityID:   cd.WalletID,
				Amount:     cd.Balance,
				Change:     ledger.ChangeCredit,
				OldBalance: walletPrior,
				NewBalance: walletPrior + cd.Balance,
			},
		}
		if err := s.recorder.Record(ctx, txn.ID, entries); err != nil {
			return result, err
		}
		result.Refunded = cd.Balance
	}

	if _, err := s.cards.Transition(ctx, cd.ID, card.StatusTerminated); err != nil {
		return result, err
	}
	if _, err := s.txns.Succeed(ctx, txn, walletPrior+result.Refunded, 0, cd.ProviderRef); err != nil {
		return result, err
	}

	s.logger.Warn("terminated card discovered during reconciliation",
		"card_id", cd.ID, "refunded", result.Refunded, "wallet_id", cd.WalletID)
	return result, nil
}

// applyBalanceDrift adopts the provider balance as truth, records the delta
// as a single-sided ledger entry under a fresh per-correction id, and alerts
// when the drift exceeds the configured threshold.
func (s *Service) applyBalanceDrift(ctx context.Context, cd card.Card, drift int64) (string, error) {
	prior, err := s.cards.ApplyDelta(ctx, cd.ID, drift)
	if err != nil {
		return "", err
	}

	change := ledger.ChangeCredit
	amount := drift
	if drift < 0 {
		change = ledger.ChangeDebit
		amount = -drift
	}
	entry := ledger.Entry{
		EntityType:  ledger.EntityCard,
		EntityID:    cd.ID,
		Amount:      amount,
		Change:      change,
		OldBalance:  prior,
		NewBalance:  prior + drift,
		SingleSided: true, // drift against external truth has no local counterparty
	}
	// Each correction gets its own id; repeated runs must not merge into one
	// ledger transaction.
	ledgerID := "reconcile:" + uuid.NewString()
	if err := s.recorder.Record(ctx, ledgerID, []ledger.Entry{entry}); err != nil {
		return "", err
	}

	s.logger.Warn("card balance drift corrected", "card_id", cd.ID, "drift", drift, "ledger_id", ledgerID)
	if s.driftAlert > 0 && (drift >= s.driftAlert || -drift >= s.driftAlert) {
		if err := s.alerts.Critical(ctx, alert.Incident{
			Kind:   alert.KindReconcileDrift,
			CardID: cd.ID,
			Amount: drift,
			Detail: "provider balance drifted beyond the alert threshold",
		}); err != nil {
			s.logger.Error("drift alert failed", "card_id", cd.ID, "error", err)
		}
	}
	return ledgerID, nil
}

// ReconcileBatch reconciles many cards with a bounded provider fan-out.
// Per-card failures are counted, not fatal to the batch.
func (s *Service) ReconcileBatch(ctx context.Context, cardIDs []string) (Summary, error) {
	summary := Summary{Total: len(cardIDs)}
	results := make([]CardResult, len(cardIDs))
	errs := make([]error, len(cardIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, id := range cardIDs {
		i, id := i, id
		g.Go(func() error {
			results[i], errs[i] = s.ReconcileCard(gctx, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	for i := range results {
		if errs[i] != nil {
			summary.Errored++
			s.logger.Error("card reconciliation failed", "card_id", cardIDs[i], "error", errs[i])
			continue
		}
		if results[i].Changed {
			summary.Changed++
		}
		if results[i].Terminated {
			summary.Terminated++
		}
	}
	s.logger.Info("reconciliation batch complete", "total", summary.Total,
		"changed", summary.Changed, "terminated", summary.Terminated, "errored", summary.Errored)
	return summary, nil
}
