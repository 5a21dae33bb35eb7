package fees

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stratocard/stratocard/internal/alert"
	"github.com/stratocard/stratocard/internal/card"
	"github.com/stratocard/stratocard/internal/ledger"
	"github.com/stratocard/stratocard/internal/logging"
	"github.com/stratocard/stratocard/internal/transaction"
	"github.com/stratocard/stratocard/internal/wallet"
)

type stubNotifier struct {
	incidents []alert.Incident
}

func (n *stubNotifier) Critical(_ context.Context, incident alert.Incident) error {
	n.incidents = append(n.incidents, incident)
	return nil
}

type feeFixture struct {
	cards     *card.Service
	wallets   *wallet.Service
	recorder  ledger.Recorder
	debts     DebtRepository
	alerts    *stubNotifier
	collector *Collector

	cardID   string
	walletID string
}

func newFeeFixture(t *testing.T, cardBalance, walletBalance int64) *feeFixture {
	t.Helper()
	ctx := context.Background()

	cards := card.NewService(card.NewMemoryRepository())
	walletRepo := wallet.NewMemoryRepository()
	wallets := wallet.NewService(walletRepo)
	txns := transaction.NewService(transaction.NewMemoryRepository())
	recorder := ledger.NewInMemory()
	debts := NewMemoryDebtRepository()
	alerts := &stubNotifier{}

	cd := card.Card{
		ID:        uuid.NewString(),
		CompanyID: uuid.NewString(),
		WalletID:  uuid.NewString(),
		Currency:  "USD",
		Balance:   cardBalance,
		Status:    card.StatusActive,
	}
	if err := cards.Create(ctx, cd); err != nil {
		t.Fatalf("create card: %v", err)
	}

	w, err := wallets.Create(ctx, wallet.CreateInput{CompanyID: uuid.NewString(), Currency: "USD"})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	wallet.SeedBalance(walletRepo, w.ID, walletBalance)

	collector := NewCollector(cards, wallets, txns, recorder, debts, alerts, logging.Discard(), 30, 0.001)
	return &feeFixture{
		cards:     cards,
		wallets:   wallets,
		recorder:  recorder,
		debts:     debts,
		alerts:    alerts,
		collector: collector,
		cardID:    cd.ID,
		walletID:  w.ID,
	}
}

func (f *feeFixture) collect(t *testing.T, amount int64) Result {
	t.Helper()
	res, err := f.collector.Collect(context.Background(), Input{
		CompanyID:  uuid.NewString(),
		CustomerID: "cust-1",
		CardID:     f.cardID,
		WalletID:   f.walletID,
		Amount:     amount,
		Currency:   "USD",
		Reason:     "monthly_fee",
	})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	return res
}

func TestCollectFromCardBalanceFirst(t *testing.T) {
	f := newFeeFixture(t, 20, 50)

	res := f.collect(t, 5)
	if res.Source != SourceCardBalance {
		t.Fatalf("expected card_balance source, got %s", res.Source)
	}

	cd, _ := f.cards.Get(context.Background(), f.cardID)
	if cd.Balance != 15 {
		t.Fatalf("expected card balance 15, got %d", cd.Balance)
	}
	w, _ := f.wallets.Get(context.Background(), f.walletID)
	if w.Balance != 50 {
		t.Fatalf("wallet must be untouched, got %d", w.Balance)
	}

	entries := ledger.MustEntries(f.recorder, res.TransactionID)
	if len(entries) != 1 || !entries[0].SingleSided {
		t.Fatalf("fee must record one single-sided entry, got %+v", entries)
	}
}

func TestCollectFallsBackToWallet(t *testing.T) {
	f := newFeeFixture(t, 0, 10)

	res := f.collect(t, 5)
	if res.Source != SourceWalletBalance {
		t.Fatalf("expected wallet_balance source, got %s", res.Source)
	}

	cd, _ := f.cards.Get(context.Background(), f.cardID)
	if cd.Balance != 0 {
		t.Fatalf("card must be untouched, got %d", cd.Balance)
	}
	w, _ := f.wallets.Get(context.Background(), f.walletID)
	if w.Balance != 5 {
		t.Fatalf("expected wallet debited to 5, got %d", w.Balance)
	}
}

func TestCollectCreatesDebtWhenBothEmpty(t *testing.T) {
	f := newFeeFixture(t, 0, 0)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.collector.now = func() time.Time { return start }

	res := f.collect(t, 5)
	if res.Source != SourceDebt || !res.DebtCreated {
		t.Fatalf("expected debt source, got %+v", res)
	}

	debt, err := f.debts.Get(context.Background(), res.DebtID)
	if err != nil {
		t.Fatalf("get debt: %v", err)
	}
	if debt.Amount != 5 || debt.Status != DebtPending {
		t.Fatalf("unexpected debt: %+v", debt)
	}
	if want := start.AddDate(0, 0, 30); !debt.DueDate.Equal(want) {
		t.Fatalf("expected due date %v, got %v", want, debt.DueDate)
	}
}

func TestDebtFlipsToOverdueOnRead(t *testing.T) {
	f := newFeeFixture(t, 0, 0)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.collector.now = func() time.Time { return start }

	res := f.collect(t, 5)

	// Still pending one day before the due date.
	f.collector.now = func() time.Time { return start.AddDate(0, 0, 29) }
	debt, err := f.collector.Debt(context.Background(), res.DebtID)
	if err != nil {
		t.Fatalf("get debt: %v", err)
	}
	if debt.Status != DebtPending {
		t.Fatalf("expected PENDING before due date, got %s", debt.Status)
	}

	f.collector.now = func() time.Time { return start.AddDate(0, 0, 31) }
	debt, err = f.collector.Debt(context.Background(), res.DebtID)
	if err != nil {
		t.Fatalf("get debt: %v", err)
	}
	if debt.Status != DebtOverdue {
		t.Fatalf("expected OVERDUE past due date, got %s", debt.Status)
	}

	// The flip is persisted, not just a view.
	stored, err := f.debts.Get(context.Background(), res.DebtID)
	if err != nil {
		t.Fatalf("get stored debt: %v", err)
	}
	if stored.Status != DebtOverdue {
		t.Fatalf("expected stored OVERDUE, got %s", stored.Status)
	}
}

// failingDebtRepository rejects creation so the last tier can be forced down.
type failingDebtRepository struct {
	DebtRepository
}

func (r *failingDebtRepository) Create(context.Context, Debt) error {
	return errors.New("debt store unavailable")
}

func TestLookupFailuresFallThroughToDebt(t *testing.T) {
	f := newFeeFixture(t, 0, 0)

	// Missing card and wallet fail the first two tiers; the debt tier still
	// absorbs the fee.
	res, err := f.collector.Collect(context.Background(), Input{
		CompanyID:  uuid.NewString(),
		CustomerID: "cust-1",
		CardID:     "missing-card",
		WalletID:   "missing-wallet",
		Amount:     5,
		Currency:   "USD",
		Reason:     "monthly_fee",
	})
	if err != nil {
		t.Fatalf("debt tier should have absorbed the fee, got %v", err)
	}
	if res.Source != SourceDebt {
		t.Fatalf("expected debt source, got %s", res.Source)
	}
}

func TestCascadeExhaustionRaisesIncident(t *testing.T) {
	cards := card.NewService(card.NewMemoryRepository())
	wallets := wallet.NewService(wallet.NewMemoryRepository())
	txns := transaction.NewService(transaction.NewMemoryRepository())
	alerts := &stubNotifier{}
	debts := &failingDebtRepository{DebtRepository: NewMemoryDebtRepository()}

	collector := NewCollector(cards, wallets, txns, ledger.NewInMemory(), debts, alerts, logging.Discard(), 30, 0.001)

	_, err := collector.Collect(context.Background(), Input{
		CompanyID:  uuid.NewString(),
		CustomerID: "cust-1",
		CardID:     "missing-card",
		WalletID:   "missing-wallet",
		Amount:     5,
		Currency:   "USD",
		Reason:     "monthly_fee",
	})
	if !errors.Is(err, ErrCascadeExhausted) {
		t.Fatalf("expected ErrCascadeExhausted, got %v", err)
	}
	if len(alerts.incidents) != 1 || alerts.incidents[0].Kind != alert.KindFeeCascadeExhausted {
		t.Fatalf("expected one fee_cascade_exhausted incident, got %+v", alerts.incidents)
	}
}

func TestInterestAccruesOnceOverdue(t *testing.T) {
	due := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	debt := Debt{Amount: 1_000, Status: DebtOverdue, DueDate: due}

	if got := debt.Interest(due.AddDate(0, 0, -1), 0.001); got != 0 {
		t.Fatalf("no interest before due date, got %d", got)
	}
	if got := debt.Interest(due, 0.001); got != 0 {
		t.Fatalf("no interest on the due date, got %d", got)
	}
	// principal 1000 x 10 days x 0.001 = 10
	if got := debt.Interest(due.AddDate(0, 0, 10), 0.001); got != 10 {
		t.Fatalf("expected interest 10 after 10 days, got %d", got)
	}
}

func TestPayDebtPartialThenFull(t *testing.T) {
	f := newFeeFixture(t, 0, 0)
	res := f.collect(t, 10)

	// Refill the wallet so payments can clear the debt.
	prior, err := f.wallets.Credit(context.Background(), f.walletID, 50)
	if err != nil {
		t.Fatalf("credit wallet: %v", err)
	}
	if prior != 0 {
		t.Fatalf("expected empty wallet before refill, got %d", prior)
	}

	debt, err := f.collector.PayDebt(context.Background(), res.DebtID, f.walletID, 4)
	if err != nil {
		t.Fatalf("partial payment: %v", err)
	}
	if debt.Status != DebtPartiallyPaid || debt.Outstanding() != 6 {
		t.Fatalf("unexpected debt after partial payment: %+v", debt)
	}

	debt, err = f.collector.PayDebt(context.Background(), res.DebtID, f.walletID, 6)
	if err != nil {
		t.Fatalf("final payment: %v", err)
	}
	if debt.Status != DebtPaid || debt.Outstanding() != 0 {
		t.Fatalf("unexpected debt after final payment: %+v", debt)
	}

	w, _ := f.wallets.Get(context.Background(), f.walletID)
	if w.Balance != 40 {
		t.Fatalf("expected wallet 40 after paying 10, got %d", w.Balance)
	}
}
