// Package payments runs the payment lifecycle for completed contract work.
//
// Flow:
//  1. Contract work completes → payment created, creator credited as pending
//  2. Brand's review approves → settlement confirmed with the provider,
//     pending released to available
//  3. Settlement fails → payment marked failed, earnings stay pending,
//     release may be retried manually
//  4. Completed payments can be refunded by an operator
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/collabhq/collabpay/internal/balance"
	"github.com/collabhq/collabpay/internal/idgen"
	"github.com/collabhq/collabpay/internal/logging"
	"github.com/collabhq/collabpay/internal/metrics"
	"github.com/collabhq/collabpay/internal/money"
	"github.com/collabhq/collabpay/internal/notify"
	"github.com/collabhq/collabpay/internal/provider"
	"github.com/collabhq/collabpay/internal/syncutil"
	"github.com/collabhq/collabpay/internal/traces"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrInvalidStatus   = errors.New("invalid payment status for this operation")
	ErrAlreadyRefunded = errors.New("payment already refunded")
	ErrInvalidAmount   = errors.New("invalid amount")
)

// Status represents the state of a payment.
type Status string

const (
	StatusPending    Status = "pending"    // Created, earnings pending review
	StatusProcessing Status = "processing" // Settlement in flight with the provider
	StatusCompleted  Status = "completed"  // Settled, earnings available
	StatusFailed     Status = "failed"     // Settlement failed, earnings still pending
	StatusRefunded   Status = "refunded"   // Refunded after completion
)

// Payment is one creator payout obligation arising from a contract.
type Payment struct {
	ID            string      `json:"id"`
	ContractID    string      `json:"contractId"`
	BrandID       string      `json:"brandId"`
	CreatorID     string      `json:"creatorId"`
	Gross         money.Cents `json:"gross"`
	Fee           money.Cents `json:"fee"` // platform fee withheld from gross
	Net           money.Cents `json:"net"` // what the creator receives
	Status        Status      `json:"status"`
	ProviderRef   string      `json:"providerRef,omitempty"` // payment intent backing the funds
	TransferRef   string      `json:"transferRef,omitempty"` // provider reference from settlement
	RefundRef     string      `json:"refundRef,omitempty"`
	FailureReason string      `json:"failureReason,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
	CompletedAt   *time.Time  `json:"completedAt,omitempty"`
}

// IsTerminal returns true if the payment is in a final state.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case StatusFailed, StatusRefunded:
		return true
	}
	return false
}

// Store persists payment records.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	ListByContract(ctx context.Context, contractID string) ([]*Payment, error)
	ListByCreator(ctx context.Context, creatorID string, limit int) ([]*Payment, error)
}

// LedgerService abstracts balance operations so payments doesn't depend on
// the concrete ledger.
type LedgerService interface {
	CreditPending(ctx context.Context, creatorID string, amount money.Cents, reference string) error
	Release(ctx context.Context, creatorID string, amount money.Cents, reference string) error
	CreditAvailable(ctx context.Context, creatorID string, amount money.Cents, reference string) error
	CreditEarned(ctx context.Context, creatorID string, amount money.Cents, reference string) error
	RevokePending(ctx context.Context, creatorID string, amount money.Cents, reference string) error
	Refund(ctx context.Context, creatorID string, amount money.Cents, reference string) error
}

// SettlementProvider confirms with the payment provider that the funds
// backing a payment have actually settled, and reverses them on refund.
// Settle returns the provider's settlement reference.
type SettlementProvider interface {
	Settle(ctx context.Context, p *Payment) (string, error)
	Refund(ctx context.Context, p *Payment) (string, error)
}

// CreateRequest contains the parameters for creating a payment.
type CreateRequest struct {
	ContractID  string
	BrandID     string
	CreatorID   string
	Gross       money.Cents
	ProviderRef string
}

// Service implements payment lifecycle logic.
type Service struct {
	store      Store
	ledger     LedgerService
	settlement SettlementProvider
	notifier   *notify.Emitter
	feePct     float64
	locks      syncutil.ShardedMutex // per-payment locks against concurrent transitions
}

// NewService creates a payment service. feePct is the platform fee
// percentage withheld from every gross amount.
func NewService(store Store, ledger LedgerService, settlement SettlementProvider, feePct float64) *Service {
	return &Service{
		store:      store,
		ledger:     ledger,
		settlement: settlement,
		feePct:     feePct,
	}
}

// WithNotifier adds a notification emitter for lifecycle events.
func (s *Service) WithNotifier(n *notify.Emitter) *Service {
	s.notifier = n
	return s
}

// Create records a new payment and credits the creator's pending balance
// with the net amount.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Payment, error) {
	if req.Gross <= 0 {
		return nil, ErrInvalidAmount
	}

	fee := money.Percent(req.Gross, s.feePct)
	now := time.Now()
	p := &Payment{
		ID:          idgen.WithPrefix(idgen.PrefixPayment),
		ContractID:  req.ContractID,
		BrandID:     req.BrandID,
		CreatorID:   req.CreatorID,
		Gross:       req.Gross,
		Fee:         fee,
		Net:         req.Gross - fee,
		Status:      StatusPending,
		ProviderRef: req.ProviderRef,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.ledger.CreditPending(ctx, p.CreatorID, p.Net, p.ID); err != nil {
		return nil, fmt.Errorf("failed to credit pending earnings: %w", err)
	}
	if err := s.store.Create(ctx, p); err != nil {
		// Best-effort compensation if the record cannot be persisted.
		_ = s.ledger.RevokePending(ctx, p.CreatorID, p.Net, p.ID)
		return nil, fmt.Errorf("failed to create payment record: %w", err)
	}

	metrics.PaymentsTotal.WithLabelValues(string(StatusPending)).Inc()
	return p, nil
}

// Release settles a payment and makes the creator's earnings available.
// The provider call happens with the payment marked processing and no lock
// held, so a slow provider never blocks other payments.
//
// Settlement failure is never destructive: the earnings stay in pending
// and the payment lands in failed, from where Release may be attempted
// again. A retryable provider failure restores the previous status
// instead.
func (s *Service) Release(ctx context.Context, id string) (*Payment, error) {
	p, prev, err := s.beginProcessing(ctx, id)
	if err != nil {
		return nil, err
	}

	spanCtx, span := traces.StartSpan(ctx, "payments.settle",
		traces.PaymentID(p.ID), traces.CreatorID(p.CreatorID), traces.Amount(p.Net.Format()))
	settleRef, settleErr := s.settlement.Settle(spanCtx, p)
	span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	now := time.Now()
	if settleErr != nil {
		if pe, ok := provider.AsError(settleErr); ok && pe.Retryable() {
			p.Status = prev
			p.UpdatedAt = now
			if err := s.store.Update(ctx, p); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("settlement temporarily unavailable: %w", settleErr)
		}

		reason := settleErr.Error()
		if pe, ok := provider.AsError(settleErr); ok {
			reason = pe.UserMessage()
		}
		p.Status = StatusFailed
		p.FailureReason = reason
		p.UpdatedAt = now
		if err := s.store.Update(ctx, p); err != nil {
			return nil, err
		}

		metrics.PaymentsTotal.WithLabelValues(string(StatusFailed)).Inc()
		s.notifier.PaymentFailed(p.CreatorID, p.BrandID, p.ContractID, p.ID, reason)
		logging.L(ctx).Error("payment settlement failed",
			"payment_id", p.ID, "contract_id", p.ContractID, "error", settleErr)
		return p, nil
	}

	if err := s.creditAvailable(ctx, p); err != nil {
		return nil, err
	}
	if err := s.ledger.CreditEarned(ctx, p.CreatorID, p.Net, p.ID); err != nil {
		logging.L(ctx).Error("earnings counter update failed",
			"payment_id", p.ID, "creator_id", p.CreatorID, "error", err)
	}

	p.Status = StatusCompleted
	p.TransferRef = settleRef
	p.CompletedAt = &now
	p.UpdatedAt = now
	if err := s.store.Update(ctx, p); err != nil {
		// Earnings already released; the record must catch up.
		if retryErr := s.store.Update(ctx, p); retryErr != nil {
			logging.L(ctx).Error("payment completed but record update failed",
				"payment_id", p.ID, "error", retryErr)
			return nil, fmt.Errorf("failed to update payment after release (requires manual resolution): %w", err)
		}
	}

	metrics.PaymentsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	s.notifier.PaymentAvailable(p.CreatorID, p.ContractID, p.ID, p.Net)
	return p, nil
}

// beginProcessing transitions the payment to processing under the payment
// lock and returns the status it came from. Release is allowed from
// pending and, for manual retries after a settlement failure, from failed.
func (s *Service) beginProcessing(ctx context.Context, id string) (*Payment, Status, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if p.Status != StatusPending && p.Status != StatusFailed {
		return nil, "", ErrInvalidStatus
	}

	prev := p.Status
	p.Status = StatusProcessing
	p.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, p); err != nil {
		return nil, "", err
	}
	return p, prev, nil
}

// creditAvailable moves the net amount from pending to available. If the
// pending credit is missing (history inconsistency), the amount is
// credited directly instead of being dropped.
func (s *Service) creditAvailable(ctx context.Context, p *Payment) error {
	err := s.ledger.Release(ctx, p.CreatorID, p.Net, p.ID)
	if errors.Is(err, balance.ErrInsufficientPending) || errors.Is(err, balance.ErrCreatorNotFound) {
		logging.L(ctx).Warn("pending credit missing at release, crediting directly",
			"payment_id", p.ID, "creator_id", p.CreatorID, "net", p.Net.Format())
		return s.ledger.CreditAvailable(ctx, p.CreatorID, p.Net, p.ID)
	}
	return err
}

// Refund reverses a completed payment: money goes back to the brand via
// the provider, and the creator's available balance is debited.
func (s *Service) Refund(ctx context.Context, id string) (*Payment, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusRefunded {
		return nil, ErrAlreadyRefunded
	}
	if p.Status != StatusCompleted {
		return nil, ErrInvalidStatus
	}

	spanCtx, span := traces.StartSpan(ctx, "payments.refund",
		traces.PaymentID(p.ID), traces.Amount(p.Net.Format()))
	refundRef, err := s.settlement.Refund(spanCtx, p)
	span.End()
	if err != nil {
		return nil, fmt.Errorf("provider refund failed: %w", err)
	}

	if err := s.ledger.Refund(ctx, p.CreatorID, p.Net, p.ID); err != nil {
		logging.L(ctx).Error("provider refunded but balance debit failed",
			"payment_id", p.ID, "refund_ref", refundRef, "error", err)
		return nil, fmt.Errorf("failed to debit creator after refund (requires manual resolution): %w", err)
	}

	p.Status = StatusRefunded
	p.RefundRef = refundRef
	p.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}

	metrics.PaymentsTotal.WithLabelValues(string(StatusRefunded)).Inc()
	s.notifier.PaymentRefunded(p.CreatorID, p.BrandID, p.ID, p.Net)
	return p, nil
}

// Get returns a payment by ID.
func (s *Service) Get(ctx context.Context, id string) (*Payment, error) {
	return s.store.Get(ctx, id)
}

// ListByContract returns all payments for a contract.
func (s *Service) ListByContract(ctx context.Context, contractID string) ([]*Payment, error) {
	return s.store.ListByContract(ctx, contractID)
}

// ListByCreator returns a creator's payments, newest first.
func (s *Service) ListByCreator(ctx context.Context, creatorID string, limit int) ([]*Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByCreator(ctx, creatorID, limit)
}
