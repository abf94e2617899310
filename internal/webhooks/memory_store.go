package webhooks

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]*Event // keyed by provider event ID
	order  []string
}

// NewMemoryStore creates an in-memory webhook event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]*Event)}
}

func (s *MemoryStore) Insert(ctx context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[e.EventID]; exists {
		return ErrDuplicateEvent
	}
	cp := *e
	s.events[e.EventID] = &cp
	s.order = append(s.order, e.EventID)
	return nil
}

func (s *MemoryStore) GetByEventID(ctx context.Context, eventID string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.EventID]; !ok {
		return ErrEventNotFound
	}
	cp := *e
	s.events[e.EventID] = &cp
	return nil
}

func (s *MemoryStore) ClaimFailed(ctx context.Context, eventID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return false, ErrEventNotFound
	}
	if e.Status != StatusFailed {
		return false, nil
	}
	e.Status = StatusProcessing
	e.ErrorMessage = ""
	e.UpdatedAt = at
	return true, nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Event
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *s.events[s.order[i]]
		out = append(out, &cp)
	}
	return out, nil
}
