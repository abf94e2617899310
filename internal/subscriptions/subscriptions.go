// Package subscriptions mirrors the provider's recurring-billing state.
//
// The provider is the source of truth; this package only keeps a local
// projection current from its webhook events so the rest of the platform
// can answer "is this brand's subscription paid up" without a provider
// round trip.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/collabhq/collabpay/internal/idgen"
	"github.com/collabhq/collabpay/internal/logging"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrDuplicateRef         = errors.New("subscription reference already recorded")
)

// Status mirrors the provider's subscription status, reduced to the states
// the platform acts on.
type Status string

const (
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Subscription is the local projection of one provider subscription.
type Subscription struct {
	ID               string    `json:"id"`
	BrandID          string    `json:"brandId"`
	ProviderSubRef   string    `json:"providerSubRef"` // provider's subscription ID, unique
	Plan             string    `json:"plan"`
	Status           Status    `json:"status"`
	CurrentPeriodEnd time.Time `json:"currentPeriodEnd"`
	LastInvoiceRef   string    `json:"lastInvoiceRef,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Store persists subscription projections. Insert must return
// ErrDuplicateRef when provider_sub_ref is already recorded.
type Store interface {
	Insert(ctx context.Context, sub *Subscription) error
	GetByProviderRef(ctx context.Context, ref string) (*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	ListByBrand(ctx context.Context, brandID string) ([]*Subscription, error)
}

// Service applies provider billing events to the local projection.
type Service struct {
	store Store
}

// NewService creates a subscription service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// SyncInput carries the provider's view of a subscription.
type SyncInput struct {
	ProviderSubRef   string
	BrandID          string
	Plan             string
	Status           Status
	CurrentPeriodEnd time.Time
}

// Sync upserts a subscription from a created/updated event. Concurrent
// creates for the same reference are resolved by the unique constraint;
// the loser re-reads and applies its update.
func (s *Service) Sync(ctx context.Context, in SyncInput) (*Subscription, error) {
	if in.ProviderSubRef == "" {
		return nil, fmt.Errorf("provider subscription reference is required")
	}

	sub, err := s.store.GetByProviderRef(ctx, in.ProviderSubRef)
	if errors.Is(err, ErrSubscriptionNotFound) {
		sub, err = s.create(ctx, in)
		if !errors.Is(err, ErrDuplicateRef) {
			return sub, err
		}
		// Lost the create race; fall through to update the winner's row.
		sub, err = s.store.GetByProviderRef(ctx, in.ProviderSubRef)
	}
	if err != nil {
		return nil, err
	}

	sub.Plan = in.Plan
	if in.Status != "" {
		sub.Status = in.Status
	}
	if !in.CurrentPeriodEnd.IsZero() {
		sub.CurrentPeriodEnd = in.CurrentPeriodEnd
	}
	sub.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) create(ctx context.Context, in SyncInput) (*Subscription, error) {
	now := time.Now()
	status := in.Status
	if status == "" {
		status = StatusActive
	}
	sub := &Subscription{
		ID:               idgen.WithPrefix(idgen.PrefixSubscription),
		BrandID:          in.BrandID,
		ProviderSubRef:   in.ProviderSubRef,
		Plan:             in.Plan,
		Status:           status,
		CurrentPeriodEnd: in.CurrentPeriodEnd,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.Insert(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// SyncInvoicePaid records a paid invoice: the subscription becomes active
// and its period advances. An invoice for an unknown subscription creates
// the projection, since invoice events can arrive before the
// subscription-created event.
func (s *Service) SyncInvoicePaid(ctx context.Context, providerSubRef, invoiceRef string, periodEnd time.Time) (*Subscription, error) {
	sub, err := s.store.GetByProviderRef(ctx, providerSubRef)
	if errors.Is(err, ErrSubscriptionNotFound) {
		logging.L(ctx).Info("invoice for unknown subscription, creating projection",
			"provider_sub_ref", providerSubRef, "invoice_ref", invoiceRef)
		sub, err = s.create(ctx, SyncInput{
			ProviderSubRef:   providerSubRef,
			Status:           StatusActive,
			CurrentPeriodEnd: periodEnd,
		})
		if errors.Is(err, ErrDuplicateRef) {
			sub, err = s.store.GetByProviderRef(ctx, providerSubRef)
		}
	}
	if err != nil {
		return nil, err
	}

	sub.Status = StatusActive
	sub.LastInvoiceRef = invoiceRef
	if periodEnd.After(sub.CurrentPeriodEnd) {
		sub.CurrentPeriodEnd = periodEnd
	}
	sub.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// MarkPaymentFailed flags a subscription past due after a failed invoice.
func (s *Service) MarkPaymentFailed(ctx context.Context, providerSubRef, invoiceRef string) (*Subscription, error) {
	sub, err := s.store.GetByProviderRef(ctx, providerSubRef)
	if err != nil {
		return nil, err
	}

	sub.Status = StatusPastDue
	sub.LastInvoiceRef = invoiceRef
	sub.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, sub); err != nil {
		return nil, err
	}

	logging.L(ctx).Warn("subscription past due",
		"subscription_id", sub.ID, "brand_id", sub.BrandID, "invoice_ref", invoiceRef)
	return sub, nil
}

// Get returns the subscription for a provider reference.
func (s *Service) Get(ctx context.Context, providerSubRef string) (*Subscription, error) {
	return s.store.GetByProviderRef(ctx, providerSubRef)
}

// ListByBrand returns a brand's subscriptions.
func (s *Service) ListByBrand(ctx context.Context, brandID string) ([]*Subscription, error) {
	return s.store.ListByBrand(ctx, brandID)
}
