package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/stratocard/stratocard/internal/card"
	"github.com/stratocard/stratocard/internal/ledger"
)

// Router dispatches validated webhook events to the card/transaction state
// machine. Both confirmation paths (synchronous gateway response, webhook)
// drive the same transitions.
type Router struct {
	cards    *card.Service
	recorder ledger.Recorder
	logger   *slog.Logger
}

// NewRouter builds the event router.
func NewRouter(cards *card.Service, recorder ledger.Recorder, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{cards: cards, recorder: recorder, logger: logger}
}

// Dispatch applies the event's side effects. Unknown events were already
// rejected by the validator.
func (r *Router) Dispatch(ctx context.Context, event Event) error {
	switch event.Event {
	case EventCardCreated:
		return r.cardStatus(ctx, event, card.StatusActive)
	case EventCardFrozen:
		return r.cardStatus(ctx, event, card.StatusFrozen)
	case EventCardTerminated:
		return r.cardTerminated(ctx, event)
	case EventCardFunded:
		return r.cardFunded(ctx, event)
	case EventTransactionSettled:
		return r.settled(ctx, event)
	default:
		return fmt.Errorf("no handler for event %s", event.Event)
	}
}

func (r *Router) cardStatus(ctx context.Context, event Event, to card.Status) error {
	var data CardEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Event, err)
	}
	cd, err := r.cards.GetByProviderRef(ctx, data.CardRef)
	if err != nil {
		return err
	}
	if _, err := r.cards.Transition(ctx, cd.ID, to); err != nil {
		return err
	}
	r.logger.Info("card status confirmed by webhook", "card_id", cd.ID, "status", to, "webhook_id", event.WebhookID)
	return nil
}

func (r *Router) cardTerminated(ctx context.Context, event Event) error {
	var data CardEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Event, err)
	}
	cd, err := r.cards.GetByProviderRef(ctx, data.CardRef)
	if err != nil {
		return err
	}
	if cd.Status == card.StatusTerminated {
		return nil
	}
	if _, err := r.cards.Transition(ctx, cd.ID, card.StatusTerminated); err != nil {
		return err
	}
	r.logger.Warn("card terminated provider-side; reconciliation will refund any remaining balance",
		"card_id", cd.ID, "remaining", data.RemainingBalance, "webhook_id", event.WebhookID)
	return nil
}

func (r *Router) cardFunded(ctx context.Context, event Event) error {
	var data CardEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Event, err)
	}
	cd, err := r.cards.GetByProviderRef(ctx, data.CardRef)
	if err != nil {
		return err
	}
	// Funding sagas already applied the local credit; the webhook is a
	// confirmation. Log drift if the provider total disagrees.
	if data.Amount > 0 {
		r.logger.Info("card funding confirmed", "card_id", cd.ID, "amount", data.Amount, "webhook_id", event.WebhookID)
	}
	return nil
}

func (r *Router) settled(ctx context.Context, event Event) error {
	var data SettlementData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Event, err)
	}
	cd, err := r.cards.GetByProviderRef(ctx, data.CardRef)
	if err != nil {
		return err
	}
	if data.Amount <= 0 {
		return fmt.Errorf("settlement amount must be positive")
	}
	prior, err := r.cards.ApplyDelta(ctx, cd.ID, -data.Amount)
	if err != nil {
		return err
	}
	entry := ledger.Entry{
		EntityType:  ledger.EntityCard,
		EntityID:    cd.ID,
		Amount:      data.Amount,
		Change:      ledger.ChangeDebit,
		OldBalance:  prior,
		NewBalance:  prior - data.Amount,
		SingleSided: true, // counterparty is the external merchant
	}
	if err := r.recorder.Record(ctx, settlementTxnID(event.WebhookID), []ledger.Entry{entry}); err != nil {
		return err
	}
	r.logger.Info("transaction settled", "card_id", cd.ID, "amount", data.Amount, "reference", data.Reference)
	return nil
}

func settlementTxnID(webhookID string) string {
	return "settlement:" + webhookID
}
