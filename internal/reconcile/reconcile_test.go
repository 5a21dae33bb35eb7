package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/stratocard/stratocard/internal/alert"
	"github.com/stratocard/stratocard/internal/card"
	"github.com/stratocard/stratocard/internal/ledger"
	"github.com/stratocard/stratocard/internal/logging"
	"github.com/stratocard/stratocard/internal/provider"
	"github.com/stratocard/stratocard/internal/transaction"
	"github.com/stratocard/stratocard/internal/wallet"
)

// truthGateway serves canned provider-side card state keyed by reference.
type truthGateway struct {
	provider.Gateway
	cards map[string]provider.Card
	errs  map[string]error
}

func (g *truthGateway) GetCard(_ context.Context, ref string, _ bool) (provider.Card, error) {
	if err, ok := g.errs[ref]; ok {
		return provider.Card{}, err
	}
	c, ok := g.cards[ref]
	if !ok {
		return provider.Card{}, &provider.Error{Message: "unknown card " + ref}
	}
	return c, nil
}

type captureNotifier struct {
	incidents []alert.Incident
}

func (n *captureNotifier) Critical(_ context.Context, incident alert.Incident) error {
	n.incidents = append(n.incidents, incident)
	return nil
}

type reconcileFixture struct {
	cards    *card.Service
	wallets  *wallet.Service
	recorder ledger.Recorder
	gateway  *truthGateway
	alerts   *captureNotifier
	service  *Service

	walletID string
}

func newReconcileFixture(t *testing.T, driftAlert int64) *reconcileFixture {
	t.Helper()

	cards := card.NewService(card.NewMemoryRepository())
	walletRepo := wallet.NewMemoryRepository()
	wallets := wallet.NewService(walletRepo)
	txns := transaction.NewService(transaction.NewMemoryRepository())
	recorder := ledger.NewInMemory()
	gateway := &truthGateway{cards: make(map[string]provider.Card), errs: make(map[string]error)}
	alerts := &captureNotifier{}

	w, err := wallets.Create(context.Background(), wallet.CreateInput{CompanyID: uuid.NewString(), Currency: "USD"})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	svc := NewService(cards, wallets, txns, recorder, gateway, alerts, logging.Discard(), 3, driftAlert)
	return &reconcileFixture{
		cards:    cards,
		wallets:  wallets,
		recorder: recorder,
		gateway:  gateway,
		alerts:   alerts,
		service:  svc,
		walletID: w.ID,
	}
}

func (f *reconcileFixture) seedCard(t *testing.T, id, ref string, status card.Status, balance int64) {
	t.Helper()
	err := f.cards.Create(context.Background(), card.Card{
		ID:          id,
		CompanyID:   "co-1",
		WalletID:    f.walletID,
		Currency:    "USD",
		Balance:     balance,
		Status:      status,
		Provider:    "static",
		ProviderRef: ref,
	})
	if err != nil {
		t.Fatalf("seed card: %v", err)
	}
}

func TestDiscoveredTerminationRefundsWallet(t *testing.T) {
	f := newReconcileFixture(t, 0)
	f.seedCard(t, "card-1", "ref-1", card.StatusActive, 12)
	f.gateway.cards["ref-1"] = provider.Card{Reference: "ref-1", Status: "terminated", Terminated: true}

	result, err := f.service.ReconcileCard(context.Background(), "card-1")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !result.Terminated || result.Refunded != 12 {
		t.Fatalf("expected termination with refund 12, got %+v", result)
	}

	cd, _ := f.cards.Get(context.Background(), "card-1")
	if cd.Status != card.StatusTerminated || cd.Balance != 0 {
		t.Fatalf("expected TERMINATED/0, got %s/%d", cd.Status, cd.Balance)
	}

	w, _ := f.wallets.Get(context.Background(), f.walletID)
	if w.Balance != 12 {
		t.Fatalf("expected wallet credited by 12, got %d", w.Balance)
	}

	entries := ledger.MustEntries(f.recorder, result.RefundTransactionID)
	if len(entries) != 2 || ledger.Net(entries) != 0 {
		t.Fatalf("expected a conserving refund pair, got %+v", entries)
	}

	// A second run sees the card already TERMINATED and does nothing.
	again, err := f.service.ReconcileCard(context.Background(), "card-1")
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if again.Changed || again.Refunded != 0 {
		t.Fatalf("reconciling a terminated card must be a no-op, got %+v", again)
	}
}

func TestStatusDriftApplied(t *testing.T) {
	f := newReconcileFixture(t, 0)
	f.seedCard(t, "card-1", "ref-1", card.StatusActive, 0)
	f.gateway.cards["ref-1"] = provider.Card{Reference: "ref-1", Status: "frozen"}

	result, err := f.service.ReconcileCard(context.Background(), "card-1")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !result.Changed {
		t.Fatal("status drift must be applied")
	}
	cd, _ := f.cards.Get(context.Background(), "card-1")
	if cd.Status != card.StatusFrozen {
		t.Fatalf("expected FROZEN, got %s", cd.Status)
	}
}

func TestUnmappableProviderStatusIsDriftError(t *testing.T) {
	f := newReconcileFixture(t, 0)
	f.seedCard(t, "card-1", "ref-1", card.StatusActive, 0)
	f.gateway.cards["ref-1"] = provider.Card{Reference: "ref-1", Status: "under_review"}

	_, err := f.service.ReconcileCard(context.Background(), "card-1")
	var drift *DriftError
	if !errors.As(err, &drift) {
		t.Fatalf("expected DriftError, got %v", err)
	}
	if drift.ProviderStatus != "under_review" {
		t.Fatalf("unexpected drift detail: %+v", drift)
	}

	cd, _ := f.cards.Get(context.Background(), "card-1")
	if cd.Status != card.StatusActive {
		t.Fatalf("unmappable drift must not change local state, got %s", cd.Status)
	}
}

func TestBalanceDriftCorrectedAndAlerted(t *testing.T) {
	f := newReconcileFixture(t, 10)
	f.seedCard(t, "card-1", "ref-1", card.StatusActive, 50)
	f.gateway.cards["ref-1"] = provider.Card{Reference: "ref-1", Status: "active", Balance: 30}

	result, err := f.service.ReconcileCard(context.Background(), "card-1")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Drift != -20 {
		t.Fatalf("expected drift -20, got %d", result.Drift)
	}

	cd, _ := f.cards.Get(context.Background(), "card-1")
	if cd.Balance != 30 {
		t.Fatalf("provider balance is truth, expected 30, got %d", cd.Balance)
	}

	entries := ledger.MustEntries(f.recorder, result.DriftLedgerID)
	if len(entries) != 1 || !entries[0].SingleSided {
		t.Fatalf("drift must record one single-sided entry, got %+v", entries)
	}

	if len(f.alerts.incidents) != 1 || f.alerts.incidents[0].Kind != alert.KindReconcileDrift {
		t.Fatalf("drift of 20 over threshold 10 must alert, got %+v", f.alerts.incidents)
	}
}

func TestRepeatedDriftCorrectionsKeepSeparateLedgerIDs(t *testing.T) {
	f := newReconcileFixture(t, 0)
	f.seedCard(t, "card-1", "ref-1", card.StatusActive, 50)
	f.gateway.cards["ref-1"] = provider.Card{Reference: "ref-1", Status: "active", Balance: 45}

	first, err := f.service.ReconcileCard(context.Background(), "card-1")
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	f.gateway.cards["ref-1"] = provider.Card{Reference: "ref-1", Status: "active", Balance: 42}
	second, err := f.service.ReconcileCard(context.Background(), "card-1")
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	if first.DriftLedgerID == "" || first.DriftLedgerID == second.DriftLedgerID {
		t.Fatalf("corrections must not share a ledger id: %q vs %q", first.DriftLedgerID, second.DriftLedgerID)
	}
	for _, id := range []string{first.DriftLedgerID, second.DriftLedgerID} {
		if got := len(ledger.MustEntries(f.recorder, id)); got != 1 {
			t.Fatalf("expected one entry under %s, got %d", id, got)
		}
	}
}

func TestSmallDriftBelowThresholdDoesNotAlert(t *testing.T) {
	f := newReconcileFixture(t, 10)
	f.seedCard(t, "card-1", "ref-1", card.StatusActive, 50)
	f.gateway.cards["ref-1"] = provider.Card{Reference: "ref-1", Status: "active", Balance: 45}

	if _, err := f.service.ReconcileCard(context.Background(), "card-1"); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(f.alerts.incidents) != 0 {
		t.Fatalf("drift below threshold must not alert, got %+v", f.alerts.incidents)
	}
}

func TestReconcileBatchAggregates(t *testing.T) {
	f := newReconcileFixture(t, 0)
	f.seedCard(t, "card-1", "ref-1", card.StatusActive, 12)
	f.seedCard(t, "card-2", "ref-2", card.StatusActive, 0)
	f.seedCard(t, "card-3", "ref-3", card.StatusActive, 0)

	f.gateway.cards["ref-1"] = provider.Card{Reference: "ref-1", Status: "terminated", Terminated: true}
	f.gateway.cards["ref-2"] = provider.Card{Reference: "ref-2", Status: "active"}
	f.gateway.errs["ref-3"] = &provider.Error{Retryable: true, Message: "listing unavailable"}

	summary, err := f.service.ReconcileBatch(context.Background(), []string{"card-1", "card-2", "card-3"})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if summary.Total != 3 || summary.Changed != 1 || summary.Terminated != 1 || summary.Errored != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
