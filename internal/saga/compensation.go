package saga

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stratocard/stratocard/internal/alert"
	"github.com/stratocard/stratocard/internal/provider"
	"github.com/stratocard/stratocard/internal/transaction"
	"github.com/stratocard/stratocard/internal/wallet"
)

// Effect states what is known about the external side effect when a saga
// step fails.
type Effect int

const (
	// EffectNone: the provider call is known not to have taken effect.
	EffectNone Effect = iota
	// EffectHappened: the provider call succeeded; only local steps failed.
	EffectHappened
	// EffectUnknown: the call timed out; it may have landed. Treated like
	// EffectHappened because releasing would risk double-spending.
	EffectUnknown
)

// classifyEffect maps a failed provider call to an Effect. A timeout leaves
// the outcome unknown; any other error means the provider returned a definite
// rejection or the request never connected.
func classifyEffect(err error) Effect {
	var pe *provider.Error
	if errors.As(err, &pe) && pe.Timeout {
		return EffectUnknown
	}
	return EffectNone
}

// compensator decides what happens to a reservation when a saga fails.
// Releasing is only safe when the external effect is known absent; otherwise
// the funds were legitimately consumed and the reservation must stand.
type compensator struct {
	wallets *wallet.Service
	txns    *transaction.Service
	alerts  alert.Notifier
	logger  *slog.Logger
}

// onFailure finalizes a failed saga. reserved is zero when no reservation was
// taken. It returns the failed transaction; compensation errors are folded
// into the critical-incident path rather than propagated.
func (c *compensator) onFailure(ctx context.Context, txn transaction.Transaction, reserved int64, effect Effect, cause error) transaction.Transaction {
	release := effect == EffectNone && reserved > 0

	if release {
		if err := c.wallets.Release(ctx, txn.WalletID, reserved); err != nil {
			// The release itself failing leaves the wallet short; escalate.
			c.raise(ctx, txn, reserved, "release failed: "+err.Error())
			failed, _ := c.txns.Fail(ctx, txn, cause.Error(), true)
			return failed
		}
		c.logger.Info("reservation released",
			"transaction_id", txn.ID, "wallet_id", txn.WalletID, "amount", reserved, "cause", cause.Error())
		failed, _ := c.txns.Fail(ctx, txn, cause.Error(), false)
		return failed
	}

	if reserved > 0 {
		c.raise(ctx, txn, reserved, cause.Error())
	} else if effect != EffectNone {
		c.raise(ctx, txn, 0, cause.Error())
	}
	failed, _ := c.txns.Fail(ctx, txn, cause.Error(), effect != EffectNone)
	return failed
}

func (c *compensator) raise(ctx context.Context, txn transaction.Transaction, amount int64, detail string) {
	c.logger.Error("saga finalize failed after external effect; reservation kept",
		"transaction_id", txn.ID, "wallet_id", txn.WalletID, "card_id", txn.CardID,
		"amount", amount, "detail", detail)
	if c.alerts != nil {
		_ = c.alerts.Critical(ctx, alert.Incident{
			Kind:          alert.KindReservationStranded,
			TransactionID: txn.ID,
			WalletID:      txn.WalletID,
			CardID:        txn.CardID,
			Amount:        amount,
			Detail:        detail,
		})
	}
}
