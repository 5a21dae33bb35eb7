package alert

import (
	"context"
	"log/slog"
)

const (
	// KindReservationStranded signals a reservation kept after a failed local
	// finalize; funds were consumed externally and need manual reconciliation.
	KindReservationStranded = "reservation_stranded"
	// KindFeeCascadeExhausted signals that every fee collection tier failed.
	KindFeeCascadeExhausted = "fee_cascade_exhausted"
	// KindReconcileDrift signals local/provider balance drift above the alert threshold.
	KindReconcileDrift = "reconcile_drift"
)

// Incident describes a condition requiring operator attention.
type Incident struct {
	Kind          string
	TransactionID string
	WalletID      string
	CardID        string
	Amount        int64
	Detail        string
}

// Notifier raises critical incidents to downstream systems.
type Notifier interface {
	Critical(ctx context.Context, incident Incident) error
}

// LoggerNotifier writes incidents to the structured logger at error level.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Critical writes the incident to the structured logger.
func (n *LoggerNotifier) Critical(_ context.Context, incident Incident) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Error("critical incident",
		"kind", incident.Kind,
		"transaction_id", incident.TransactionID,
		"wallet_id", incident.WalletID,
		"card_id", incident.CardID,
		"amount", incident.Amount,
		"detail", incident.Detail,
	)
	return nil
}
