package saga

import (
	"context"
	"sync"
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

// faultyGateway wraps the static simulator with injectable failures and
// divergent terminate balances.
type faultyGateway struct {
	*provider.StaticGateway
	fundErr            error
	terminateRemaining *int64
}

func (g *faultyGateway) Fund(ctx context.Context, cardRef string, amount int64) error {
	if g.fundErr != nil {
		return g.fundErr
	}
	return g.StaticGateway.Fund(ctx, cardRef, amount)
}

func (g *faultyGateway) Terminate(ctx context.Context, cardRef string) (int64, error) {
	remaining, err := g.StaticGateway.Terminate(ctx, cardRef)
	if err != nil {
		return 0, err
	}
	if g.terminateRemaining != nil {
		return *g.terminateRemaining, nil
	}
	return remaining, nil
}

// failingRecorder rejects every record call once armed.
type failingRecorder struct {
	ledger.Recorder
	mu   sync.Mutex
	fail bool
}

func (r *failingRecorder) Record(ctx context.Context, txnID string, entries []ledger.Entry) error {
	r.mu.Lock()
	fail := r.fail
	r.mu.Unlock()
	if fail {
		return context.DeadlineExceeded
	}
	return r.Recorder.Record(ctx, txnID, entries)
}

// captureNotifier records raised incidents for assertions.
type captureNotifier struct {
	mu        sync.Mutex
	incidents []alert.Incident
}

func (n *captureNotifier) Critical(_ context.Context, incident alert.Incident) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.incidents = append(n.incidents, incident)
	return nil
}

func (n *captureNotifier) all() []alert.Incident {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]alert.Incident, len(n.incidents))
	copy(out, n.incidents)
	return out
}

type fixture struct {
	wallets  *wallet.Service
	cards    *card.Service
	txns     *transaction.Service
	txnRepo  transaction.Repository
	recorder *failingRecorder
	gateway  *faultyGateway
	alerts   *captureNotifier
	service  *Service

	walletID string
}

func newFixture(t *testing.T, walletBalance int64) *fixture {
	t.Helper()

	walletRepo := wallet.NewMemoryRepository()
	wallets := wallet.NewService(walletRepo)
	cards := card.NewService(card.NewMemoryRepository())
	txnRepo := transaction.NewMemoryRepository()
	txns := transaction.NewService(txnRepo)
	recorder := &failingRecorder{Recorder: ledger.NewInMemory()}
	gateway := &faultyGateway{StaticGateway: provider.NewStaticGateway()}
	alerts := &captureNotifier{}

	w, err := wallets.Create(context.Background(), wallet.CreateInput{CompanyID: uuid.NewString(), Currency: "USD"})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	wallet.SeedBalance(walletRepo, w.ID, walletBalance)

	svc := NewService(wallets, cards, txns, recorder, gateway, nil, alerts, logging.Discard())
	return &fixture{
		wallets:  wallets,
		cards:    cards,
		txns:     txns,
		txnRepo:  txnRepo,
		recorder: recorder,
		gateway:  gateway,
		alerts:   alerts,
		service:  svc,
		walletID: w.ID,
	}
}

func (f *fixture) issueActiveCard(t *testing.T) card.Card {
	t.Helper()
	res, err := f.service.IssueCard(context.Background(), IssueInput{
		CompanyID:  uuid.NewString(),
		CustomerID: uuid.NewString(),
		WalletID:   f.walletID,
		Currency:   "USD",
		Brand:      "VISA",
		NameOnCard: "ACME OPS",
	})
	if err != nil {
		t.Fatalf("issue card: %v", err)
	}
	if res.Card.Status != card.StatusActive {
		t.Fatalf("simulator issuance must confirm synchronously, got %s", res.Card.Status)
	}
	return res.Card
}

func (f *fixture) walletBalance(t *testing.T) int64 {
	t.Helper()
	w, err := f.wallets.Get(context.Background(), f.walletID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	return w.Balance
}

func TestFundMovesBalancesAndRecordsPair(t *testing.T) {
	f := newFixture(t, 100)
	cd := f.issueActiveCard(t)

	res, err := f.service.Fund(context.Background(), cd.ID, 40)
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if res.WalletBalance != 60 || res.CardBalance != 40 {
		t.Fatalf("expected balances 60/40, got %d/%d", res.WalletBalance, res.CardBalance)
	}

	entries := ledger.MustEntries(f.recorder, res.TransactionID)
	if len(entries) != 2 {
		t.Fatalf("expected a wallet/card entry pair, got %d entries", len(entries))
	}
	if ledger.Net(entries) != 0 {
		t.Fatalf("funding entries must conserve, net=%d", ledger.Net(entries))
	}

	txn, err := f.txns.Get(context.Background(), res.TransactionID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if txn.Status != transaction.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", txn.Status)
	}
	if txn.WalletBalanceAfter != 60 || txn.CardBalanceAfter != 40 {
		t.Fatalf("snapshot mismatch: wallet=%d card=%d", txn.WalletBalanceAfter, txn.CardBalanceAfter)
	}
}

func TestProviderRejectionReleasesReservation(t *testing.T) {
	f := newFixture(t, 100)
	cd := f.issueActiveCard(t)

	f.gateway.fundErr = &provider.Error{Retryable: false, Message: "card limit exceeded"}

	if _, err := f.service.Fund(context.Background(), cd.ID, 40); err == nil {
		t.Fatal("expected fund to fail")
	}

	if got := f.walletBalance(t); got != 100 {
		t.Fatalf("rejected provider call must restore the wallet to 100, got %d", got)
	}
	if len(f.alerts.all()) != 0 {
		t.Fatalf("a clean release must not raise incidents, got %d", len(f.alerts.all()))
	}

	got, _ := f.cards.Get(context.Background(), cd.ID)
	if got.Balance != 0 {
		t.Fatalf("card must stay unfunded, balance=%d", got.Balance)
	}
}

func TestLedgerFailureAfterProviderSuccessKeepsReservation(t *testing.T) {
	f := newFixture(t, 100)
	cd := f.issueActiveCard(t)

	f.recorder.fail = true

	if _, err := f.service.Fund(context.Background(), cd.ID, 40); err == nil {
		t.Fatal("expected fund to fail at the ledger write")
	}

	// The provider consumed real funds; releasing would double-spend.
	if got := f.walletBalance(t); got != 60 {
		t.Fatalf("reservation must stand after external success, wallet=%d", got)
	}

	incidents := f.alerts.all()
	if len(incidents) != 1 {
		t.Fatalf("expected one critical incident, got %d", len(incidents))
	}
	if incidents[0].Kind != alert.KindReservationStranded {
		t.Fatalf("expected %s, got %s", alert.KindReservationStranded, incidents[0].Kind)
	}

	txn, err := f.txns.Get(context.Background(), incidents[0].TransactionID)
	if err != nil {
		t.Fatalf("get failed transaction: %v", err)
	}
	if txn.Status != transaction.StatusFailed || !txn.RequiresReview {
		t.Fatalf("expected FAILED with review flag, got %s review=%t", txn.Status, txn.RequiresReview)
	}
}

func TestProviderTimeoutKeepsReservation(t *testing.T) {
	f := newFixture(t, 100)
	cd := f.issueActiveCard(t)

	f.gateway.fundErr = &provider.Error{Retryable: true, Timeout: true, Message: "request timed out"}

	if _, err := f.service.Fund(context.Background(), cd.ID, 40); err == nil {
		t.Fatal("expected fund to fail")
	}

	// A timed-out call may have landed; treat it like a confirmed effect.
	if got := f.walletBalance(t); got != 60 {
		t.Fatalf("timeout must keep the reservation, wallet=%d", got)
	}
	if len(f.alerts.all()) != 1 {
		t.Fatalf("expected one critical incident, got %d", len(f.alerts.all()))
	}
}

func TestIssueWithInitialBalance(t *testing.T) {
	f := newFixture(t, 100)

	res, err := f.service.IssueCard(context.Background(), IssueInput{
		CompanyID:      uuid.NewString(),
		CustomerID:     uuid.NewString(),
		WalletID:       f.walletID,
		Currency:       "USD",
		InitialBalance: 30,
	})
	if err != nil {
		t.Fatalf("issue card: %v", err)
	}

	if got := f.walletBalance(t); got != 70 {
		t.Fatalf("expected wallet 70 after funded issuance, got %d", got)
	}
	cd, _ := f.cards.Get(context.Background(), res.Card.ID)
	if cd.Balance != 30 {
		t.Fatalf("expected card balance 30, got %d", cd.Balance)
	}
	if ledger.Net(ledger.MustEntries(f.recorder, res.TransactionID)) != 0 {
		t.Fatal("issuance funding entries must conserve")
	}
}

func TestFundRequiresActiveCard(t *testing.T) {
	f := newFixture(t, 100)
	cd := f.issueActiveCard(t)

	if _, err := f.service.Freeze(context.Background(), cd.ID); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if _, err := f.service.Fund(context.Background(), cd.ID, 10); err == nil {
		t.Fatal("expected funding a frozen card to fail")
	}
	if got := f.walletBalance(t); got != 100 {
		t.Fatalf("rejected fund must not touch the wallet, got %d", got)
	}
}

func TestTerminateRefundsRemainingBalance(t *testing.T) {
	f := newFixture(t, 100)
	cd := f.issueActiveCard(t)

	if _, err := f.service.Fund(context.Background(), cd.ID, 40); err != nil {
		t.Fatalf("fund: %v", err)
	}

	res, err := f.service.Terminate(context.Background(), cd.ID)
	if err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if res.Refunded != 40 {
		t.Fatalf("expected refund 40, got %d", res.Refunded)
	}
	if got := f.walletBalance(t); got != 100 {
		t.Fatalf("expected wallet restored to 100, got %d", got)
	}

	got, _ := f.cards.Get(context.Background(), cd.ID)
	if got.Status != card.StatusTerminated || got.Balance != 0 {
		t.Fatalf("expected TERMINATED with balance 0, got %s/%d", got.Status, got.Balance)
	}
	if ledger.Net(ledger.MustEntries(f.recorder, res.TransactionID)) != 0 {
		t.Fatal("termination refund entries must conserve")
	}
}

func TestTerminateRecordsDivergentProviderBalance(t *testing.T) {
	f := newFixture(t, 100)
	cd := f.issueActiveCard(t)

	if _, err := f.service.Fund(context.Background(), cd.ID, 40); err != nil {
		t.Fatalf("fund: %v", err)
	}
	remaining := int64(35)
	f.gateway.terminateRemaining = &remaining

	res, err := f.service.Terminate(context.Background(), cd.ID)
	if err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if res.Refunded != 35 {
		t.Fatalf("expected refund of the provider balance 35, got %d", res.Refunded)
	}
	if got := f.walletBalance(t); got != 95 {
		t.Fatalf("expected wallet 95, got %d", got)
	}

	// The card held 40 locally; the ledger must account for the full
	// movement to zero, entry by entry, drift included.
	entries := ledger.MustEntries(f.recorder, res.TransactionID)
	if len(entries) != 3 {
		t.Fatalf("expected drift entry plus refund pair, got %d entries", len(entries))
	}
	var cardMoved int64
	for _, e := range entries {
		signed := e.Signed()
		if e.OldBalance+signed != e.NewBalance {
			t.Fatalf("entry does not replay: old=%d amount=%d new=%d", e.OldBalance, e.Amount, e.NewBalance)
		}
		if e.EntityType == ledger.EntityCard {
			cardMoved += signed
		}
	}
	if cardMoved != -40 {
		t.Fatalf("expected card entries to move -40, got %d", cardMoved)
	}
	if ledger.Net(entries) != 0 {
		t.Fatal("double-sided entries must conserve")
	}
}

func TestWithdrawReturnsFundsToWallet(t *testing.T) {
	f := newFixture(t, 100)
	cd := f.issueActiveCard(t)

	if _, err := f.service.Fund(context.Background(), cd.ID, 50); err != nil {
		t.Fatalf("fund: %v", err)
	}

	res, err := f.service.Withdraw(context.Background(), cd.ID, 20)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.WalletBalance != 70 || res.CardBalance != 30 {
		t.Fatalf("expected balances 70/30, got %d/%d", res.WalletBalance, res.CardBalance)
	}
	if ledger.Net(ledger.MustEntries(f.recorder, res.TransactionID)) != 0 {
		t.Fatal("withdrawal entries must conserve")
	}
}
