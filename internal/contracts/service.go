package contracts

import (
	"context"
	"fmt"
	"time"

	"github.com/collabhq/collabpay/internal/idgen"
	"github.com/collabhq/collabpay/internal/logging"
	"github.com/collabhq/collabpay/internal/money"
	"github.com/collabhq/collabpay/internal/syncutil"
)

// Service implements the contract workflow.
type Service struct {
	store    Store
	payments PaymentEngine
	feePct   float64
	locks    syncutil.ShardedMutex // per-contract locks to prevent race conditions
}

// NewService creates a contract service. feePct is the platform fee
// percentage carried on every contract.
func NewService(store Store, payments PaymentEngine, feePct float64) *Service {
	return &Service{
		store:    store,
		payments: payments,
		feePct:   feePct,
	}
}

// Create opens a new contract awaiting funding.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Contract, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	fee := money.Percent(req.Amount, s.feePct)
	now := time.Now()
	c := &Contract{
		ID:            idgen.WithPrefix(idgen.PrefixContract),
		BrandID:       req.BrandID,
		CreatorID:     req.CreatorID,
		Gross:         req.Amount,
		PlatformFee:   fee,
		CreatorAmount: req.Amount - fee,
		FundingStatus: FundingUnfunded,
		Lifecycle:     LifecycleActive,
		Phase:         PhasePaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create contract: %w", err)
	}

	logging.L(ctx).Info("contract created",
		"contract_id", c.ID,
		"brand_id", c.BrandID,
		"creator_id", c.CreatorID,
		"gross", c.Gross.Format())
	return c, nil
}

// HandleFundingCompleted marks the contract funded. Redelivered funding
// signals for an already-funded contract are acknowledged without change.
func (s *Service) HandleFundingCompleted(ctx context.Context, id, fundingRef string) (*Contract, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.FundingStatus == FundingFunded {
		return c, nil
	}
	if c.IsTerminal() {
		return nil, ErrInvalidStatus
	}

	now := time.Now()
	c.FundingStatus = FundingFunded
	c.FundingRef = fundingRef
	c.Phase = PhaseActive
	c.FundedAt = &now
	c.UpdatedAt = now
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}

	logging.L(ctx).Info("contract funded",
		"contract_id", c.ID, "funding_ref", fundingRef)
	return c, nil
}

// Complete records that the contracted work is done: the contract moves to
// waiting_review and a payment record is opened for the creator.
func (s *Service) Complete(ctx context.Context, id string) (*Contract, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.FundingStatus != FundingFunded {
		return nil, ErrNotFunded
	}
	if c.Phase != PhaseActive {
		return nil, ErrInvalidStatus
	}

	paymentID, err := s.payments.CreatePayment(ctx, c.ID, c.BrandID, c.CreatorID, c.Gross, c.FundingRef)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment for contract: %w", err)
	}

	c.Phase = PhaseWaitingReview
	c.PaymentID = paymentID
	c.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, c); err != nil {
		// The payment record exists; the contract must reflect it.
		if retryErr := s.store.Update(ctx, c); retryErr != nil {
			logging.L(ctx).Error("payment created but contract update failed",
				"contract_id", c.ID, "payment_id", paymentID, "error", retryErr)
			return nil, fmt.Errorf("failed to update contract after payment creation (requires manual resolution): %w", err)
		}
	}

	logging.L(ctx).Info("contract work completed",
		"contract_id", c.ID, "payment_id", paymentID)
	return c, nil
}

// ReviewSubmitted releases the contract's payment after the brand's review.
// Terminal settlement failure parks the contract in payment_failed; the
// signal can be repeated once the cause is resolved.
func (s *Service) ReviewSubmitted(ctx context.Context, id string) (*Contract, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Phase != PhaseWaitingReview && c.Phase != PhasePaymentFailed {
		return nil, ErrInvalidStatus
	}
	if c.PaymentID == "" {
		return nil, ErrInvalidStatus
	}

	released, err := s.payments.ReleasePayment(ctx, c.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to release payment: %w", err)
	}

	now := time.Now()
	if !released {
		c.Phase = PhasePaymentFailed
		c.UpdatedAt = now
		if updateErr := s.store.Update(ctx, c); updateErr != nil {
			return nil, updateErr
		}
		return c, nil
	}

	c.Phase = PhasePaymentAvailable
	c.Lifecycle = LifecycleCompleted
	c.CompletedAt = &now
	c.UpdatedAt = now
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}

	logging.L(ctx).Info("contract payment released",
		"contract_id", c.ID, "payment_id", c.PaymentID)
	return c, nil
}

// MarkWithdrawn moves a completed contract to payment_withdrawn. Best
// effort: the withdrawal already happened, so failures only log.
func (s *Service) MarkWithdrawn(ctx context.Context, id string) {
	unlock := s.locks.Lock(id)
	defer unlock()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		logging.L(ctx).Warn("could not mark contract withdrawn", "contract_id", id, "error", err)
		return
	}
	if c.Phase != PhasePaymentAvailable {
		return
	}

	c.Phase = PhasePaymentWithdrawn
	c.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, c); err != nil {
		logging.L(ctx).Warn("could not mark contract withdrawn", "contract_id", id, "error", err)
	}
}

// MarkWithdrawnForCreator advances all of the creator's payment_available
// contracts after a withdrawal drains their balance. Best effort.
func (s *Service) MarkWithdrawnForCreator(ctx context.Context, creatorID string) {
	list, err := s.store.ListByCreator(ctx, creatorID, 100)
	if err != nil {
		logging.L(ctx).Warn("could not list contracts after withdrawal",
			"creator_id", creatorID, "error", err)
		return
	}
	for _, c := range list {
		if c.Phase == PhasePaymentAvailable {
			s.MarkWithdrawn(ctx, c.ID)
		}
	}
}

// Cancel ends the contract before completion.
func (s *Service) Cancel(ctx context.Context, id, reason string) (*Contract, error) {
	return s.terminate(ctx, id, reason, LifecycleCancelled)
}

// Dispute flags the contract as disputed and ends the workflow. Resolution
// happens outside this system.
func (s *Service) Dispute(ctx context.Context, id, reason string) (*Contract, error) {
	return s.terminate(ctx, id, reason, LifecycleDisputed)
}

func (s *Service) terminate(ctx context.Context, id, reason string, outcome Lifecycle) (*Contract, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsTerminal() {
		return nil, ErrInvalidStatus
	}

	c.Lifecycle = outcome
	c.Phase = PhaseTerminated
	c.CancelReason = reason
	c.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}

	logging.L(ctx).Info("contract terminated",
		"contract_id", c.ID, "outcome", outcome, "reason", reason)
	return c, nil
}

// Get returns a contract by ID.
func (s *Service) Get(ctx context.Context, id string) (*Contract, error) {
	return s.store.Get(ctx, id)
}

// ListByBrand returns a brand's contracts, newest first.
func (s *Service) ListByBrand(ctx context.Context, brandID string, limit int) ([]*Contract, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByBrand(ctx, brandID, limit)
}

// ListByCreator returns a creator's contracts, newest first.
func (s *Service) ListByCreator(ctx context.Context, creatorID string, limit int) ([]*Contract, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByCreator(ctx, creatorID, limit)
}

// CancelStaleUnfunded cancels contracts that never got funded within the
// timeout. Returns how many were cancelled.
func (s *Service) CancelStaleUnfunded(ctx context.Context, timeout time.Duration) int {
	cutoff := time.Now().Add(-timeout)
	stale, err := s.store.ListUnfundedBefore(ctx, cutoff, 100)
	if err != nil {
		logging.L(ctx).Warn("failed to list stale unfunded contracts", "error", err)
		return 0
	}

	cancelled := 0
	for _, c := range stale {
		if _, err := s.Cancel(ctx, c.ID, "funding timeout"); err != nil {
			logging.L(ctx).Warn("failed to cancel stale contract",
				"contract_id", c.ID, "error", err)
			continue
		}
		cancelled++
	}
	return cancelled
}
