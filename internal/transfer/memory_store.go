package transfer

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore constructs an in-memory record store for tests. Transitions
// honor the same conditional-write contract as the Postgres implementation.
func NewMemoryStore() Store {
	return &memoryStore{records: make(map[string]Record)}
}

func (s *memoryStore) Insert(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (s *memoryStore) Transition(_ context.Context, id, from, to, ledgerTxID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	if rec.Status != from {
		return ErrStatusChanged
	}
	rec.Status = to
	if to == StatusCompleted {
		rec.LedgerTxID = ledgerTxID
		rec.CompletedAt = time.Now().UTC()
	}
	s.records[id] = rec
	return nil
}

func (s *memoryStore) ListByStatus(_ context.Context, status string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []Record
	for _, rec := range s.records {
		if rec.Status == status {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}
