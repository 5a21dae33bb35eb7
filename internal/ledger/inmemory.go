package ledger

import (
	"context"
	"sync"
	"time"
)

type inMemoryRecorder struct {
	mu      sync.RWMutex
	records map[string][]Entry
}

// NewInMemory creates a concurrency-safe in-memory recorder useful for unit tests.
func NewInMemory() Recorder {
	return &inMemoryRecorder{records: make(map[string][]Entry)}
}

func (r *inMemoryRecorder) Record(_ context.Context, transactionID string, entries []Entry) error {
	if err := validate(entries); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for i := range entries {
		entries[i].RecordedAt = now
	}
	r.records[transactionID] = append(r.records[transactionID], entries...)
	return nil
}

func (r *inMemoryRecorder) Entries(_ context.Context, transactionID string) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.records[transactionID]
	out := make([]Entry, len(stored))
	copy(out, stored)
	return out, nil
}
