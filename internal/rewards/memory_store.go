package rewards

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu     sync.RWMutex
	grants map[string]Grant
}

// NewMemoryStore constructs an in-memory grant store for tests.
func NewMemoryStore() Store {
	return &memoryStore{grants: make(map[string]Grant)}
}

func (s *memoryStore) Insert(_ context.Context, g Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[g.ID] = g
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[id]
	if !ok {
		return Grant{}, ErrGrantNotFound
	}
	return g, nil
}

func (s *memoryStore) FindBySource(_ context.Context, sourceTxID string) (Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.grants {
		if g.SourceTxID != "" && g.SourceTxID == sourceTxID {
			return g, nil
		}
	}
	return Grant{}, ErrGrantNotFound
}

func (s *memoryStore) ListByUser(_ context.Context, userID string) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var grants []Grant
	for _, g := range s.grants {
		if g.UserID == userID {
			grants = append(grants, g)
		}
	}
	sort.Slice(grants, func(i, j int) bool {
		if grants[i].CreatedAt.Equal(grants[j].CreatedAt) {
			return grants[i].ID < grants[j].ID
		}
		return grants[i].CreatedAt.Before(grants[j].CreatedAt)
	})
	return grants, nil
}

func (s *memoryStore) SetPoints(_ context.Context, id string, expected, points int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[id]
	if !ok {
		return ErrGrantNotFound
	}
	if g.Points != expected {
		return ErrPointsChanged
	}
	g.Points = points
	s.grants[id] = g
	return nil
}

func (s *memoryStore) ListDue(_ context.Context, now time.Time) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []Grant
	for _, g := range s.grants {
		if g.Points > 0 && g.Expired(now) {
			due = append(due, g)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ExpiresAt.Before(due[j].ExpiresAt)
	})
	return due, nil
}
