package transaction

import (
	"context"
	"errors"
	"testing"
)

func TestSucceededTransactionIsImmutable(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	txn, err := svc.Begin(ctx, BeginInput{
		CompanyID:           "co-1",
		WalletID:            "wallet-1",
		CardID:              "card-1",
		Kind:                KindFund,
		Amount:              40,
		Currency:            "USD",
		WalletBalanceBefore: 100,
	})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if txn.Status != StatusPending {
		t.Fatalf("new transaction must be PENDING, got %s", txn.Status)
	}

	done, err := svc.Succeed(ctx, txn, 60, 40, "auth-1")
	if err != nil {
		t.Fatalf("succeed: %v", err)
	}
	if done.Status != StatusSuccess || done.WalletBalanceAfter != 60 || done.CardBalanceAfter != 40 {
		t.Fatalf("unexpected closing state: %+v", done)
	}

	if _, err := svc.Fail(ctx, done, "late failure", false); !errors.Is(err, ErrImmutable) {
		t.Fatalf("SUCCESS must be immutable, got %v", err)
	}
	if _, err := svc.Succeed(ctx, done, 0, 0, ""); !errors.Is(err, ErrImmutable) {
		t.Fatalf("SUCCESS must be immutable, got %v", err)
	}
}

func TestFailRecordsReasonAndReviewFlag(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	txn, err := svc.Begin(ctx, BeginInput{CompanyID: "co-1", WalletID: "wallet-1", Kind: KindWithdraw, Amount: 10, Currency: "USD"})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	failed, err := svc.Fail(ctx, txn, "provider timeout", true)
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if failed.Status != StatusFailed || failed.FailureReason != "provider timeout" || !failed.RequiresReview {
		t.Fatalf("unexpected failed state: %+v", failed)
	}
}
