package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
}

// NewMemoryStore creates a concurrency-safe in-memory entry store for tests.
func NewMemoryStore() Store {
	return &memoryStore{entries: make(map[string]Entry)}
}

func (s *memoryStore) Insert(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]string{}
	} else {
		copied := make(map[string]string, len(entry.Metadata))
		for k, v := range entry.Metadata {
			copied[k] = v
		}
		entry.Metadata = copied
	}
	s.entries[entry.ID] = entry
	s.order = append(s.order, entry.ID)
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return cloneEntry(entry), nil
}

func (s *memoryStore) MarkStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	if entry.Status != StatusPending {
		return ErrAlreadyFinal
	}
	entry.Status = status
	s.entries[id] = entry
	return nil
}

func (s *memoryStore) Annotate(_ context.Context, id, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	entry.Metadata[key] = value
	return nil
}

func (s *memoryStore) ListByWallet(_ context.Context, walletID string, filter Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Entry
	for _, id := range s.order {
		entry := s.entries[id]
		if entry.WalletID != walletID {
			continue
		}
		if filter.Kind != "" && entry.Kind != filter.Kind {
			continue
		}
		if !filter.From.IsZero() && entry.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && entry.CreatedAt.After(filter.To) {
			continue
		}
		matched = append(matched, cloneEntry(entry))
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func cloneEntry(entry Entry) Entry {
	metadata := make(map[string]string, len(entry.Metadata))
	for k, v := range entry.Metadata {
		metadata[k] = v
	}
	entry.Metadata = metadata
	return entry
}
