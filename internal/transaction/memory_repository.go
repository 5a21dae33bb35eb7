package transaction

import (
	"context"
	"errors"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Transaction
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Transaction)}
}

func (r *memoryRepository) Create(_ context.Context, t Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[t.ID]; exists {
		return errors.New("transaction exists")
	}
	r.storage[t.ID] = t
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.storage[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return t, nil
}

func (r *memoryRepository) Update(_ context.Context, t Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.storage[t.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Status == StatusSuccess {
		return ErrImmutable
	}
	r.storage[t.ID] = t
	return nil
}
