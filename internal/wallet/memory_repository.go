package wallet

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]Wallet
	byOwner map[string]string
}

// NewMemoryRepository constructs an in-memory repository for tests. Its
// CompareAndSetBalance honors the same conflict contract as the Postgres
// implementation.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byID:    make(map[string]Wallet),
		byOwner: make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, w Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byOwner[w.OwnerID]; exists {
		return ErrExists
	}
	r.byID[w.ID] = w
	r.byOwner[w.OwnerID] = w.ID
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byID[id]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

func (r *memoryRepository) GetByOwner(_ context.Context, ownerID string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byOwner[ownerID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *memoryRepository) CompareAndSetBalance(_ context.Context, id string, expected, newBalance int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if w.Balance != expected {
		return ErrConflict
	}
	w.Balance = newBalance
	w.UpdatedAt = time.Now().UTC()
	r.byID[id] = w
	return nil
}
