package balance

import (
	"context"
	"sync"
	"time"

	"github.com/collabhq/collabpay/internal/idgen"
	"github.com/collabhq/collabpay/internal/money"
)

// MemoryStore is an in-memory balance store for demo/development mode.
type MemoryStore struct {
	balances map[string]*Balance
	entries  []*Entry
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory balance store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]*Balance),
		entries:  make([]*Entry, 0),
	}
}

func (m *MemoryStore) GetBalance(_ context.Context, creatorID string) (*Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if bal, ok := m.balances[creatorID]; ok {
		cp := *bal
		return &cp, nil
	}
	return &Balance{CreatorID: creatorID, UpdatedAt: time.Now()}, nil
}

// get returns the live balance record, creating it on first touch.
// Caller must hold the write lock.
func (m *MemoryStore) get(creatorID string) *Balance {
	bal, ok := m.balances[creatorID]
	if !ok {
		bal = &Balance{CreatorID: creatorID}
		m.balances[creatorID] = bal
	}
	return bal
}

// require returns the live balance record or ErrCreatorNotFound.
// Caller must hold the write lock.
func (m *MemoryStore) require(creatorID string) (*Balance, error) {
	bal, ok := m.balances[creatorID]
	if !ok {
		return nil, ErrCreatorNotFound
	}
	return bal, nil
}

func (m *MemoryStore) record(creatorID string, typ EntryType, amount money.Cents, reference, description string) {
	m.entries = append(m.entries, &Entry{
		ID:          idgen.WithPrefix(idgen.PrefixLedgerEntry),
		CreatorID:   creatorID,
		Type:        typ,
		Amount:      amount,
		Reference:   reference,
		Description: description,
		CreatedAt:   time.Now(),
	})
}

func (m *MemoryStore) CreditPending(_ context.Context, creatorID string, amount money.Cents, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal := m.get(creatorID)
	bal.Pending += amount
	bal.UpdatedAt = time.Now()
	m.record(creatorID, EntryCreditPending, amount, reference, "payment pending review")
	return nil
}

func (m *MemoryStore) Release(_ context.Context, creatorID string, amount money.Cents, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal, err := m.require(creatorID)
	if err != nil {
		return err
	}
	if bal.Pending < amount {
		return ErrInsufficientPending
	}

	bal.Pending -= amount
	bal.Available += amount
	bal.UpdatedAt = time.Now()
	m.record(creatorID, EntryRelease, amount, reference, "review approved")
	return nil
}

func (m *MemoryStore) CreditAvailable(_ context.Context, creatorID string, amount money.Cents, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal := m.get(creatorID)
	bal.Available += amount
	bal.UpdatedAt = time.Now()
	m.record(creatorID, EntryCreditAvailable, amount, reference, "direct credit")
	return nil
}

func (m *MemoryStore) CreditEarned(_ context.Context, creatorID string, amount money.Cents, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal := m.get(creatorID)
	bal.TotalEarned += amount
	bal.UpdatedAt = time.Now()
	m.record(creatorID, EntryCreditEarned, amount, reference, "earnings recorded")
	return nil
}

func (m *MemoryStore) RevokePending(_ context.Context, creatorID string, amount money.Cents, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal, err := m.require(creatorID)
	if err != nil {
		return err
	}
	if bal.Pending < amount {
		return ErrInsufficientPending
	}

	bal.Pending -= amount
	bal.UpdatedAt = time.Now()
	m.record(creatorID, EntryRevokePending, amount, reference, "pending credit revoked")
	return nil
}

func (m *MemoryStore) Reserve(_ context.Context, creatorID string, amount money.Cents, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal, err := m.require(creatorID)
	if err != nil {
		return err
	}
	if bal.Available < amount {
		return ErrInsufficientFunds
	}

	bal.Available -= amount
	bal.UpdatedAt = time.Now()
	m.record(creatorID, EntryReserve, amount, reference, "withdrawal reserved")
	return nil
}

func (m *MemoryStore) ReleaseReservation(_ context.Context, creatorID string, amount money.Cents, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal, err := m.require(creatorID)
	if err != nil {
		return err
	}

	bal.Available += amount
	bal.UpdatedAt = time.Now()
	m.record(creatorID, EntryReleaseReservation, amount, reference, "reservation released")
	return nil
}

func (m *MemoryStore) FinalizeWithdrawal(_ context.Context, creatorID string, amount money.Cents, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal, err := m.require(creatorID)
	if err != nil {
		return err
	}

	bal.TotalWithdrawn += amount
	bal.UpdatedAt = time.Now()
	m.record(creatorID, EntryFinalizeWithdrawal, amount, reference, "withdrawal paid out")
	return nil
}

func (m *MemoryStore) Refund(_ context.Context, creatorID string, amount money.Cents, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal, err := m.require(creatorID)
	if err != nil {
		return err
	}

	// Deliberately allowed to go negative; the provider has already
	// returned the money to the brand.
	bal.Available -= amount
	bal.TotalEarned -= amount
	bal.UpdatedAt = time.Now()
	m.record(creatorID, EntryRefund, amount, reference, "payment refunded")
	return nil
}

func (m *MemoryStore) History(_ context.Context, creatorID string, limit int) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for i := len(m.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if m.entries[i].CreatorID == creatorID {
			cp := *m.entries[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) Entries(_ context.Context, creatorID string) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for _, e := range m.entries {
		if e.CreatorID == creatorID {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result, nil
}
