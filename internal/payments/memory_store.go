package payments

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory payment store for demo/development mode.
type MemoryStore struct {
	payments map[string]*Payment
	order    []string // creation order, for stable listing
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory payment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payments: make(map[string]*Payment)}
}

func (m *MemoryStore) Create(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	m.payments[p.ID] = &cp
	m.order = append(m.order, p.ID)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) Update(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.payments[p.ID]; !ok {
		return ErrPaymentNotFound
	}
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *MemoryStore) ListByContract(_ context.Context, contractID string) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Payment
	for _, id := range m.order {
		if p := m.payments[id]; p.ContractID == contractID {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) ListByCreator(_ context.Context, creatorID string, limit int) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Payment
	for i := len(m.order) - 1; i >= 0 && len(result) < limit; i-- {
		if p := m.payments[m.order[i]]; p.CreatorID == creatorID {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result, nil
}
