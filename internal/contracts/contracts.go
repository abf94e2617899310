// Package contracts runs the collaboration workflow between a brand and a
// creator.
//
// Flow:
//  1. Brand creates a contract → unfunded, phase payment_pending
//  2. Funding confirmed (checkout webhook or direct signal) → funded, phase active
//  3. Work completed → phase waiting_review, payment record created
//  4. Brand review submitted → payment released, phase payment_available
//     (or payment_failed when settlement fails)
//  5. Creator withdraws → phase payment_withdrawn (best effort)
//
// Cancel and dispute end the workflow at any point before completion.
package contracts

import (
	"context"
	"errors"
	"time"

	"github.com/collabhq/collabpay/internal/money"
)

var (
	ErrContractNotFound = errors.New("contract not found")
	ErrInvalidStatus    = errors.New("invalid contract status for this operation")
	ErrNotFunded        = errors.New("contract is not funded")
	ErrInvalidAmount    = errors.New("invalid amount")
)

// FundingStatus tracks whether the brand's money has arrived.
type FundingStatus string

const (
	FundingUnfunded FundingStatus = "unfunded"
	FundingFunded   FundingStatus = "funded"
)

// Lifecycle is the coarse business outcome of the contract.
type Lifecycle string

const (
	LifecycleActive    Lifecycle = "active"
	LifecycleCompleted Lifecycle = "completed"
	LifecycleCancelled Lifecycle = "cancelled"
	LifecycleDisputed  Lifecycle = "disputed"
)

// Phase is the fine-grained workflow position.
type Phase string

const (
	PhasePaymentPending   Phase = "payment_pending"
	PhaseActive           Phase = "active"
	PhaseWaitingReview    Phase = "waiting_review"
	PhasePaymentAvailable Phase = "payment_available"
	PhasePaymentWithdrawn Phase = "payment_withdrawn"
	PhaseTerminated       Phase = "terminated"
	PhasePaymentFailed    Phase = "payment_failed"
)

// Contract is one brand-creator collaboration agreement.
type Contract struct {
	ID            string        `json:"id"`
	BrandID       string        `json:"brandId"`
	CreatorID     string        `json:"creatorId"`
	Gross         money.Cents   `json:"gross"`
	PlatformFee   money.Cents   `json:"platformFee"`
	CreatorAmount money.Cents   `json:"creatorAmount"`
	FundingStatus FundingStatus `json:"fundingStatus"`
	Lifecycle     Lifecycle     `json:"lifecycle"`
	Phase         Phase         `json:"phase"`
	FundingRef    string        `json:"fundingRef,omitempty"` // provider reference of the funding charge
	PaymentID     string        `json:"paymentId,omitempty"`
	CancelReason  string        `json:"cancelReason,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	FundedAt      *time.Time    `json:"fundedAt,omitempty"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
}

// IsTerminal returns true if the contract's lifecycle has ended.
func (c *Contract) IsTerminal() bool {
	switch c.Lifecycle {
	case LifecycleCompleted, LifecycleCancelled, LifecycleDisputed:
		return true
	}
	return false
}

// Store persists contract data.
type Store interface {
	Create(ctx context.Context, contract *Contract) error
	Get(ctx context.Context, id string) (*Contract, error)
	Update(ctx context.Context, contract *Contract) error
	ListByBrand(ctx context.Context, brandID string, limit int) ([]*Contract, error)
	ListByCreator(ctx context.Context, creatorID string, limit int) ([]*Contract, error)
	ListUnfundedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Contract, error)
}

// PaymentEngine abstracts the payment lifecycle operations the workflow
// triggers at its transition points.
type PaymentEngine interface {
	// CreatePayment opens a payment record for completed contract work and
	// returns its ID.
	CreatePayment(ctx context.Context, contractID, brandID, creatorID string, gross money.Cents, fundingRef string) (string, error)
	// ReleasePayment settles the payment. released is false when settlement
	// failed terminally; a non-nil error means the attempt itself could not
	// run to completion.
	ReleasePayment(ctx context.Context, paymentID string) (released bool, err error)
}

// CreateRequest contains the parameters for creating a contract.
type CreateRequest struct {
	BrandID   string      `json:"brandId" binding:"required"`
	CreatorID string      `json:"creatorId" binding:"required"`
	Amount    money.Cents `json:"-"`
}

// SignalRequest carries an optional reason for cancel/dispute signals.
type SignalRequest struct {
	Reason string `json:"reason"`
}
