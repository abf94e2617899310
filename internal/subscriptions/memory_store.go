package subscriptions

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[string]*Subscription // keyed by provider_sub_ref
}

// NewMemoryStore creates an in-memory subscription store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]*Subscription)}
}

func (s *MemoryStore) Insert(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subs[sub.ProviderSubRef]; exists {
		return ErrDuplicateRef
	}
	cp := *sub
	s.subs[sub.ProviderSubRef] = &cp
	return nil
}

func (s *MemoryStore) GetByProviderRef(ctx context.Context, ref string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[ref]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ProviderSubRef]; !ok {
		return ErrSubscriptionNotFound
	}
	cp := *sub
	s.subs[sub.ProviderSubRef] = &cp
	return nil
}

func (s *MemoryStore) ListByBrand(ctx context.Context, brandID string) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Subscription
	for _, sub := range s.subs {
		if sub.BrandID == brandID {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}
