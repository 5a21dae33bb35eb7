package card

import (
	"context"
	"fmt"
	"time"
)

// Service applies guarded mutations to card state.
type Service struct {
	repo Repository
}

// NewService builds a card service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create stores a newly issued card.
func (s *Service) Create(ctx context.Context, c Card) error {
	return s.repo.Create(ctx, c)
}

// Get retrieves card state.
func (s *Service) Get(ctx context.Context, id string) (Card, error) {
	return s.repo.Get(ctx, id)
}

// GetByProviderRef retrieves a card by its provider reference.
func (s *Service) GetByProviderRef(ctx context.Context, ref string) (Card, error) {
	return s.repo.GetByProviderRef(ctx, ref)
}

// Transition moves the card to the requested status if the state machine
// allows it. Terminating zeroes the balance and stamps the termination time.
func (s *Service) Transition(ctx context.Context, id string, to Status) (Card, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Card{}, err
	}
	if !CanTransition(c.Status, to) {
		return Card{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	if c.Status == to {
		return c, nil
	}
	c.Status = to
	if to == StatusTerminated {
		now := time.Now().UTC()
		c.TerminatedAt = &now
		c.Balance = 0
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return Card{}, err
	}
	return c, nil
}

// ApplyDelta adjusts the card balance and returns the balance before the
// change. Negative deltas must not take the balance below zero.
func (s *Service) ApplyDelta(ctx context.Context, id string, delta int64) (int64, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if c.Balance+delta < 0 {
		return 0, fmt.Errorf("card balance cannot go negative")
	}
	prior := c.Balance
	c.Balance += delta
	if err := s.repo.Update(ctx, c); err != nil {
		return 0, err
	}
	return prior, nil
}
