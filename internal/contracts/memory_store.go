package contracts

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	contracts map[string]*Contract
	order     []string
}

// NewMemoryStore creates an in-memory contract store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contracts: make(map[string]*Contract)}
}

func (s *MemoryStore) Create(ctx context.Context, c *Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.contracts[c.ID] = &cp
	s.order = append(s.order, c.ID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[id]
	if !ok {
		return nil, ErrContractNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, c *Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contracts[c.ID]; !ok {
		return ErrContractNotFound
	}
	cp := *c
	s.contracts[c.ID] = &cp
	return nil
}

func (s *MemoryStore) ListByBrand(ctx context.Context, brandID string, limit int) ([]*Contract, error) {
	return s.list(func(c *Contract) bool { return c.BrandID == brandID }, limit), nil
}

func (s *MemoryStore) ListByCreator(ctx context.Context, creatorID string, limit int) ([]*Contract, error) {
	return s.list(func(c *Contract) bool { return c.CreatorID == creatorID }, limit), nil
}

func (s *MemoryStore) ListUnfundedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Contract, error) {
	return s.list(func(c *Contract) bool {
		return c.FundingStatus == FundingUnfunded && !c.IsTerminal() && c.CreatedAt.Before(cutoff)
	}, limit), nil
}

func (s *MemoryStore) list(match func(*Contract) bool, limit int) []*Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Contract
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		c := s.contracts[s.order[i]]
		if match(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out
}
