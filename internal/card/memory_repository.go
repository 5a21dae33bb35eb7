package card

import (
	"context"
	"errors"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Card
	byRef   map[string]string
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Card), byRef: make(map[string]string)}
}

func (r *memoryRepository) Create(_ context.Context, c Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[c.ID]; exists {
		return errors.New("card exists")
	}
	r.storage[c.ID] = c
	if c.ProviderRef != "" {
		r.byRef[c.ProviderRef] = c.ID
	}
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.storage[id]
	if !ok {
		return Card{}, ErrNotFound
	}
	return c, nil
}

func (r *memoryRepository) GetByProviderRef(_ context.Context, providerRef string) (Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byRef[providerRef]
	if !ok {
		return Card{}, ErrNotFound
	}
	return r.storage[id], nil
}

func (r *memoryRepository) Update(_ context.Context, c Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.storage[c.ID]; !ok {
		return ErrNotFound
	}
	r.storage[c.ID] = c
	if c.ProviderRef != "" {
		r.byRef[c.ProviderRef] = c.ID
	}
	return nil
}
