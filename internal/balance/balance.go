// Package balance tracks creator earnings on the platform.
//
// Flow:
//  1. Brand funds a contract; when work completes the creator's balance is
//     credited as pending
//  2. Review approval releases pending into available
//  3. A withdrawal reserves funds by debiting available up front; failure
//     or cancellation credits them back, success only bumps the lifetime
//     withdrawn counter
//
// Every mutation appends a ledger entry; the stored balance must always
// equal the fold of its entries (see Reconcile).
package balance

import (
	"context"
	"errors"
	"time"

	"github.com/collabhq/collabpay/internal/logging"
	"github.com/collabhq/collabpay/internal/metrics"
	"github.com/collabhq/collabpay/internal/money"
)

var (
	ErrInsufficientFunds   = errors.New("insufficient available funds")
	ErrInsufficientPending = errors.New("insufficient pending funds")
	ErrCreatorNotFound     = errors.New("creator not found")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// EntryType classifies a ledger entry. The reconciliation fold in
// reconcile.go must handle every type listed here.
type EntryType string

const (
	EntryCreditPending      EntryType = "credit_pending"      // pending += amount
	EntryRelease            EntryType = "release"             // pending -= amount, available += amount
	EntryCreditAvailable    EntryType = "credit_available"    // available += amount (release fallback)
	EntryCreditEarned       EntryType = "credit_earned"       // total_earned += amount
	EntryRevokePending      EntryType = "revoke_pending"      // pending -= amount (compensation)
	EntryReserve            EntryType = "reserve"             // available -= amount
	EntryReleaseReservation EntryType = "release_reservation" // available += amount
	EntryFinalizeWithdrawal EntryType = "finalize_withdrawal" // total_withdrawn += amount
	EntryRefund             EntryType = "refund"              // available -= amount, total_earned -= amount
)

// Entry is one immutable ledger line for a creator.
type Entry struct {
	ID          string      `json:"id"`
	CreatorID   string      `json:"creatorId"`
	Type        EntryType   `json:"type"`
	Amount      money.Cents `json:"amount"`
	Reference   string      `json:"reference,omitempty"` // payment ID, withdrawal ID, event ID
	Description string      `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Balance is a creator's current position. Funds reserved for an in-flight
// withdrawal have already left available; they return via a
// release_reservation if the payout fails.
type Balance struct {
	CreatorID      string      `json:"creatorId"`
	Available      money.Cents `json:"available"`
	Pending        money.Cents `json:"pending"`
	TotalEarned    money.Cents `json:"totalEarned"`
	TotalWithdrawn money.Cents `json:"totalWithdrawn"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// Store persists balances and their ledger entries. Each mutation applies
// the balance delta and appends the entry atomically, locking only the one
// creator row it touches.
type Store interface {
	GetBalance(ctx context.Context, creatorID string) (*Balance, error)
	CreditPending(ctx context.Context, creatorID string, amount money.Cents, reference string) error
	Release(ctx context.Context, creatorID string, amount money.Cents, reference string) error
	CreditAvailable(ctx context.Context, creatorID string, amount money.Cents, reference string) error
	CreditEarned(ctx context.Context, creatorID string, amount money.Cents, reference string) error
	RevokePending(ctx context.Context, creatorID string, amount money.Cents, reference string) error
	Reserve(ctx context.Context, creatorID string, amount money.Cents, reference string) error
	ReleaseReservation(ctx context.Context, creatorID string, amount money.Cents, reference string) error
	FinalizeWithdrawal(ctx context.Context, creatorID string, amount money.Cents, reference string) error
	Refund(ctx context.Context, creatorID string, amount money.Cents, reference string) error
	History(ctx context.Context, creatorID string, limit int) ([]*Entry, error)
	Entries(ctx context.Context, creatorID string) ([]*Entry, error)
}

// Ledger manages creator balances.
type Ledger struct {
	store    Store
	activity ActivitySource
}

// New creates a ledger backed by store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// WithActivitySource attaches the payment and withdrawal history used by
// Reconcile to derive a balance independently of the ledger's own entries.
func (l *Ledger) WithActivitySource(src ActivitySource) *Ledger {
	l.activity = src
	return l
}

// Balance returns a creator's current position. Unknown creators get a
// zero balance, not an error: a creator exists the moment money moves
// toward them.
func (l *Ledger) Balance(ctx context.Context, creatorID string) (*Balance, error) {
	return l.store.GetBalance(ctx, creatorID)
}

// CreditPending records earnings the creator cannot yet withdraw.
func (l *Ledger) CreditPending(ctx context.Context, creatorID string, amount money.Cents, reference string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	err := l.store.CreditPending(ctx, creatorID, amount, reference)
	l.observe(ctx, "credit_pending", creatorID, amount, reference, err)
	return err
}

// Release moves pending earnings into available. Returns
// ErrInsufficientPending when the pending credit is smaller than amount;
// callers are expected to fall back to CreditAvailable and log the
// discrepancy rather than treat that as fatal.
func (l *Ledger) Release(ctx context.Context, creatorID string, amount money.Cents, reference string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	err := l.store.Release(ctx, creatorID, amount, reference)
	l.observe(ctx, "release", creatorID, amount, reference, err)
	return err
}

// CreditAvailable credits available directly, bypassing the pending phase.
// This is the fallback path for histories where pending was never credited.
func (l *Ledger) CreditAvailable(ctx context.Context, creatorID string, amount money.Cents, reference string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	err := l.store.CreditAvailable(ctx, creatorID, amount, reference)
	l.observe(ctx, "credit_available", creatorID, amount, reference, err)
	return err
}

// CreditEarned bumps the lifetime earned counter. Called exactly once per
// successfully released payment.
func (l *Ledger) CreditEarned(ctx context.Context, creatorID string, amount money.Cents, reference string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	err := l.store.CreditEarned(ctx, creatorID, amount, reference)
	l.observe(ctx, "credit_earned", creatorID, amount, reference, err)
	return err
}

// RevokePending removes a pending credit that will never settle, e.g. when
// the payment record it belongs to could not be persisted.
func (l *Ledger) RevokePending(ctx context.Context, creatorID string, amount money.Cents, reference string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	err := l.store.RevokePending(ctx, creatorID, amount, reference)
	l.observe(ctx, "revoke_pending", creatorID, amount, reference, err)
	return err
}

// ReserveForWithdrawal debits available up front so a payout in flight can
// never be double-spent. Returns ErrInsufficientFunds when
// available < amount.
func (l *Ledger) ReserveForWithdrawal(ctx context.Context, creatorID string, amount money.Cents, reference string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	err := l.store.Reserve(ctx, creatorID, amount, reference)
	l.observe(ctx, "reserve", creatorID, amount, reference, err)
	return err
}

// ReleaseReservation credits a reservation back to available after a payout
// fails or is cancelled.
func (l *Ledger) ReleaseReservation(ctx context.Context, creatorID string, amount money.Cents, reference string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	err := l.store.ReleaseReservation(ctx, creatorID, amount, reference)
	l.observe(ctx, "release_reservation", creatorID, amount, reference, err)
	return err
}

// FinalizeWithdrawal bumps the lifetime withdrawn counter for a completed
// payout. available was already debited at reservation time.
func (l *Ledger) FinalizeWithdrawal(ctx context.Context, creatorID string, amount money.Cents, reference string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	err := l.store.FinalizeWithdrawal(ctx, creatorID, amount, reference)
	l.observe(ctx, "finalize_withdrawal", creatorID, amount, reference, err)
	return err
}

// Refund debits available and lifetime earned for a refunded payment. The
// debit is applied even when it overdraws the balance: the money has
// already gone back to the brand, and hiding that would corrupt the
// ledger. A negative result is logged for recovery by support.
func (l *Ledger) Refund(ctx context.Context, creatorID string, amount money.Cents, reference string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	err := l.store.Refund(ctx, creatorID, amount, reference)
	l.observe(ctx, "refund", creatorID, amount, reference, err)
	if err != nil {
		return err
	}

	bal, berr := l.store.GetBalance(ctx, creatorID)
	if berr == nil && bal.Available < 0 {
		logging.L(ctx).Warn("refund overdrew creator balance",
			"creator_id", creatorID,
			"reference", reference,
			"available", bal.Available.Format())
	}
	return nil
}

// History returns the most recent ledger entries for a creator, newest
// first.
func (l *Ledger) History(ctx context.Context, creatorID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.History(ctx, creatorID, limit)
}

func (l *Ledger) observe(ctx context.Context, op, creatorID string, amount money.Cents, reference string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		logging.L(ctx).Error("balance operation failed",
			"op", op,
			"creator_id", creatorID,
			"amount", amount.Format(),
			"reference", reference,
			"error", err)
	}
	metrics.BalanceOpsTotal.WithLabelValues(op, result).Inc()
}
