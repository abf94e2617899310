package withdrawals

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	withdrawals map[string]*Withdrawal
	order       []string // insertion order, for stable listings
}

// NewMemoryStore creates an in-memory withdrawal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{withdrawals: make(map[string]*Withdrawal)}
}

func (s *MemoryStore) Create(ctx context.Context, w *Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *w
	s.withdrawals[w.ID] = &cp
	s.order = append(s.order, w.ID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.withdrawals[id]
	if !ok {
		return nil, ErrWithdrawalNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, w *Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.withdrawals[w.ID]; !ok {
		return ErrWithdrawalNotFound
	}
	cp := *w
	s.withdrawals[w.ID] = &cp
	return nil
}

func (s *MemoryStore) ListByCreator(ctx context.Context, creatorID string, limit int) ([]*Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Withdrawal
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		w := s.withdrawals[s.order[i]]
		if w.CreatorID == creatorID {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}
