package webhook

import "encoding/json"

// Recognized webhook event types.
const (
	EventCardCreated        = "card.created"
	EventCardFunded         = "card.funded"
	EventCardFrozen         = "card.frozen"
	EventCardTerminated     = "card.terminated"
	EventTransactionSettled = "transaction.settled"
)

// Event is the parsed webhook body. Data stays raw until the router hands it
// to the matching handler, which decodes it into its own typed payload.
type Event struct {
	Event     string          `json:"event"`
	WebhookID string          `json:"webhook_id"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func recognized(event string) bool {
	switch event {
	case EventCardCreated, EventCardFunded, EventCardFrozen, EventCardTerminated, EventTransactionSettled:
		return true
	}
	return false
}

// CardEventData is the payload shape shared by card lifecycle events.
type CardEventData struct {
	CardRef          string `json:"card_ref"`
	Amount           int64  `json:"amount,omitempty"`
	RemainingBalance int64  `json:"remaining_balance,omitempty"`
}

// SettlementData is the payload of transaction.settled events.
type SettlementData struct {
	CardRef   string `json:"card_ref"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}
