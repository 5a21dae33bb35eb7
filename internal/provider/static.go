package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StaticGateway simulates a provider that confirms every operation
// synchronously. Used in development and as a test double.
type StaticGateway struct {
	mu    sync.Mutex
	cards map[string]*Card
}

// NewStaticGateway constructs the simulator.
func NewStaticGateway() *StaticGateway {
	return &StaticGateway{cards: make(map[string]*Card)}
}

// Name identifies the simulated provider.
func (g *StaticGateway) Name() string { return "static" }

// IssueCard approves issuance immediately with a synthetic reference.
func (g *StaticGateway) IssueCard(_ context.Context, spec CardSpec) (Card, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c := Card{
		Reference: uuid.NewString(),
		Status:    "active",
		Currency:  spec.Currency,
		MaskedPAN: "411111******1111",
	}
	g.cards[c.Reference] = &c
	return c, nil
}

// Fund credits the simulated card.
func (g *StaticGateway) Fund(_ context.Context, cardRef string, amount int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cards[cardRef]
	if !ok {
		return &Error{Retryable: false, Message: fmt.Sprintf("unknown card %s", cardRef)}
	}
	c.Balance += amount
	return nil
}

// Withdraw debits the simulated card.
func (g *StaticGateway) Withdraw(_ context.Context, cardRef string, amount int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cards[cardRef]
	if !ok {
		return &Error{Retryable: false, Message: fmt.Sprintf("unknown card %s", cardRef)}
	}
	if c.Balance < amount {
		return &Error{Retryable: false, Message: "insufficient card balance"}
	}
	c.Balance -= amount
	return nil
}

// Freeze suspends the simulated card.
func (g *StaticGateway) Freeze(_ context.Context, cardRef string) error {
	return g.setStatus(cardRef, "frozen")
}

// Unfreeze reactivates the simulated card.
func (g *StaticGateway) Unfreeze(_ context.Context, cardRef string) error {
	return g.setStatus(cardRef, "active")
}

// Terminate closes the simulated card and returns its remaining balance.
func (g *StaticGateway) Terminate(_ context.Context, cardRef string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cards[cardRef]
	if !ok {
		return 0, &Error{Retryable: false, Message: fmt.Sprintf("unknown card %s", cardRef)}
	}
	remaining := c.Balance
	now := time.Now().UTC()
	c.Balance = 0
	c.Status = "terminated"
	c.Terminated = true
	c.TerminatedAt = &now
	return remaining, nil
}

// GetCard returns the simulated card state.
func (g *StaticGateway) GetCard(_ context.Context, cardRef string, revealSensitive bool) (Card, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cards[cardRef]
	if !ok {
		return Card{}, &Error{Retryable: false, Message: fmt.Sprintf("unknown card %s", cardRef)}
	}
	out := *c
	if revealSensitive {
		out.PAN = "4111111111111111"
		out.CVV = "123"
	}
	return out, nil
}

// ListTransactions returns an empty listing; the simulator does not track
// individual card transactions.
func (g *StaticGateway) ListTransactions(_ context.Context, _ string, _ DateRange) ([]Transaction, error) {
	return nil, nil
}

func (g *StaticGateway) setStatus(cardRef, status string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cards[cardRef]
	if !ok {
		return &Error{Retryable: false, Message: fmt.Sprintf("unknown card %s", cardRef)}
	}
	c.Status = status
	return nil
}
