package contracts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabhq/collabpay/internal/money"
)

// fakePayments scripts the payment engine per test.
type fakePayments struct {
	createErr  error
	releaseErr error
	released   bool
	creates    int
	releases   int
	lastGross  money.Cents
}

func (f *fakePayments) CreatePayment(_ context.Context, contractID, brandID, creatorID string, gross money.Cents, fundingRef string) (string, error) {
	f.creates++
	f.lastGross = gross
	if f.createErr != nil {
		return "", f.createErr
	}
	return "pay_for_" + contractID, nil
}

func (f *fakePayments) ReleasePayment(_ context.Context, paymentID string) (bool, error) {
	f.releases++
	if f.releaseErr != nil {
		return false, f.releaseErr
	}
	return f.released, nil
}

func newTestService(payments *fakePayments) *Service {
	return NewService(NewMemoryStore(), payments, 5.0)
}

func TestCreate_SplitsAmount(t *testing.T) {
	svc := newTestService(&fakePayments{})

	// 1000.00 at 5% platform fee.
	c, err := svc.Create(context.Background(), CreateRequest{
		BrandID: "brand_1", CreatorID: "creator_1", Amount: 100000,
	})
	require.NoError(t, err)

	assert.Equal(t, money.Cents(5000), c.PlatformFee)
	assert.Equal(t, money.Cents(95000), c.CreatorAmount)
	assert.Equal(t, FundingUnfunded, c.FundingStatus)
	assert.Equal(t, LifecycleActive, c.Lifecycle)
	assert.Equal(t, PhasePaymentPending, c.Phase)
}

func TestCreate_InvalidAmount(t *testing.T) {
	svc := newTestService(&fakePayments{})
	_, err := svc.Create(context.Background(), CreateRequest{
		BrandID: "brand_1", CreatorID: "creator_1", Amount: 0,
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFundingCompleted(t *testing.T) {
	svc := newTestService(&fakePayments{})
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateRequest{BrandID: "brand_1", CreatorID: "creator_1", Amount: 100000})
	require.NoError(t, err)

	funded, err := svc.HandleFundingCompleted(ctx, c.ID, "pi_funding_1")
	require.NoError(t, err)
	assert.Equal(t, FundingFunded, funded.FundingStatus)
	assert.Equal(t, PhaseActive, funded.Phase)
	assert.Equal(t, "pi_funding_1", funded.FundingRef)
	require.NotNil(t, funded.FundedAt)
}

func TestFundingCompleted_RedeliveryIsIdempotent(t *testing.T) {
	svc := newTestService(&fakePayments{})
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateRequest{BrandID: "brand_1", CreatorID: "creator_1", Amount: 100000})
	require.NoError(t, err)
	first, err := svc.HandleFundingCompleted(ctx, c.ID, "pi_funding_1")
	require.NoError(t, err)

	// The webhook redelivers; the original funding reference survives.
	again, err := svc.HandleFundingCompleted(ctx, c.ID, "pi_other")
	require.NoError(t, err)
	assert.Equal(t, "pi_funding_1", again.FundingRef)
	assert.Equal(t, first.FundedAt.Unix(), again.FundedAt.Unix())
}

func TestComplete_CreatesPayment(t *testing.T) {
	payments := &fakePayments{}
	svc := newTestService(payments)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateRequest{BrandID: "brand_1", CreatorID: "creator_1", Amount: 100000})
	require.NoError(t, err)
	_, err = svc.HandleFundingCompleted(ctx, c.ID, "pi_1")
	require.NoError(t, err)

	completed, err := svc.Complete(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseWaitingReview, completed.Phase)
	assert.Equal(t, "pay_for_"+c.ID, completed.PaymentID)
	assert.Equal(t, money.Cents(100000), payments.lastGross)
}

func TestComplete_RequiresFunding(t *testing.T) {
	svc := newTestService(&fakePayments{})
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateRequest{BrandID: "brand_1", CreatorID: "creator_1", Amount: 100000})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFunded)
}

func TestComplete_OnlyOnce(t *testing.T) {
	payments := &fakePayments{}
	svc := newTestService(payments)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateRequest{BrandID: "brand_1", CreatorID: "creator_1", Amount: 100000})
	require.NoError(t, err)
	_, err = svc.HandleFundingCompleted(ctx, c.ID, "pi_1")
	require.NoError(t, err)
	_, err = svc.Complete(ctx, c.ID)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, c.ID)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, 1, payments.creates, "a second complete must not open a second payment")
}

func TestReviewSubmitted_ReleasesPayment(t *testing.T) {
	payments := &fakePayments{released: true}
	svc := newTestService(payments)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateRequest{BrandID: "brand_1", CreatorID: "creator_1", Amount: 100000})
	require.NoError(t, err)
	_, err = svc.HandleFundingCompleted(ctx, c.ID, "pi_1")
	require.NoError(t, err)
	_, err = svc.Complete(ctx, c.ID)
	require.NoError(t, err)

	reviewed, err := svc.ReviewSubmitted(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, PhasePaymentAvailable, reviewed.Phase)
	assert.Equal(t, LifecycleCompleted, reviewed.Lifecycle)
	require.NotNil(t, reviewed.CompletedAt)
	assert.Equal(t, 1, payments.releases)
}

func TestReviewSubmitted_SettlementFailureParksContract(t *testing.T) {
	payments := &fakePayments{released: false}
	svc := newTestService(payments)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateRequest{BrandID: "brand_1", CreatorID: "creator_1", Amount: 100000})
	require.NoError(t, err)
	_, err = svc.HandleFundingCompleted(ctx, c.ID, "pi_1")
	require.NoError(t, err)
	_, err = svc.Complete(ctx, c.ID)
	require.NoError(t, err)

	parked, err := svc.ReviewSubmitted(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, PhasePaymentFailed, parked.Phase)
	assert.Equal(t, LifecycleActive, parked.Lifecycle)

	// Once the settlement issue is resolved, the signal works again.
	payments.released = true
	recovered, err := svc.ReviewSubmitted(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, PhasePaymentAvailable, recovered.Phase)
}

func TestReviewSubmitted_RequiresWaitingReview(t *testing.T) {
	svc := newTestService(&fakePayments{released: true})
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateRequest{BrandID: "brand_1", CreatorID: "creator_1", Amount: 100000})
	require.NoError(t, err)

	_, err = svc.ReviewSubmitted(ctx, c.ID)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestReviewSubmitted_ReleaseErrorSurfaced(t *testing.T) {
	payments := &fakePayments{releaseErr: errors.New("provider timeout")}
	svc := newTestService(payments)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateRequest{BrandID: "brand_1", CreatorID: "creator_1", Amount: 100000})
	require.NoError(t, err)
	_, err = svc.HandleFundingCompleted(ctx, c.ID, "pi_1")
	require.NoError(t, err)
	_, err = svc.Complete(ctx, c.ID)
	require.NoError(t, err)

	_, err = svc.ReviewSubmitted(ctx, c.ID)
	require.Error(t, err)

	stored, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseWaitingReview, stored.Phase, "a failed attempt leaves the contract reviewable")
}

func TestMarkWithdrawn(t *testing.T) {
	payments := &fakePayments{released: true}
	svc := newTestService(payments)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateRequest{BrandID: "brand_1", CreatorID: "creator_1", Amount: 100000})
	require.NoError(t, err)
	_, err = svc.HandleFundingCompleted(ctx, c.ID, "pi_1")
	require.NoError(t, err)
	_, err = svc.Complete(ctx, c.ID)
	require.NoError(t, err)
	_, err = svc.ReviewSubmitted(ctx, c.ID)
	require.NoError(t, err)

	svc.MarkWithdrawn(ctx, c.ID)

	stored, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, PhasePaymentWithdrawn, stored.Phase)
}

func TestMarkWithdrawnForCreator(t *testing.T) {
	payments := &fakePayments{released: true}
	svc := newTestService(payments)
	ctx := context.Background()

	// Two released contracts and one still active for the same creator.
	var released []string
	for i := 0; i < 2; i++ {
		c, err := svc.Create(ctx, CreateRequest{BrandID: "brand_1", CreatorID: "creator_1", Amount: 100000})
		require.NoError(t, err)
		_, err = svc.HandleFundingCompleted(ctx, c.ID, "pi_1")
		require.NoError(t, err)
		_, err = svc.Complete(ctx, c.ID)
		require.NoError(t, err)
		_, err = svc.ReviewSubmitted(ctx, c.ID)
		require.NoError(t, err)
		released = append(released, c.ID)
	}
	active, err := svc.Create(ctx, CreateRequest{BrandID: "brand_1", CreatorID: "creator_1", Amount: 50000})
	require.NoError(t, err)

	svc.MarkWithdrawnForCreator(ctx, "creator_1")

	for _, id := range released {
		stored, err := svc.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, PhasePaymentWithdrawn, stored.Phase)
	}
	stored, err := svc.Get(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, PhasePaymentPending, stored.Phase, "an unreleased contract is untouched")
}

func TestCancel(t *testing.T) {
	svc := newTestService(&fakePayments{})
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateRequest{BrandID: "brand_1", CreatorID: "creator_1", Amount: 100000})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, c.ID, "brand backed out")
	require.NoError(t, err)
	assert.Equal(t, LifecycleCancelled, cancelled.Lifecycle)
	assert.Equal(t, PhaseTerminated, cancelled.Phase)
	assert.Equal(t, "brand backed out", cancelled.CancelReason)

	_, err = svc.Cancel(ctx, c.ID, "again")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestDispute(t *testing.T) {
	svc := newTestService(&fakePayments{})
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateRequest{BrandID: "brand_1", CreatorID: "creator_1", Amount: 100000})
	require.NoError(t, err)
	_, err = svc.HandleFundingCompleted(ctx, c.ID, "pi_1")
	require.NoError(t, err)

	disputed, err := svc.Dispute(ctx, c.ID, "deliverable mismatch")
	require.NoError(t, err)
	assert.Equal(t, LifecycleDisputed, disputed.Lifecycle)
	assert.Equal(t, PhaseTerminated, disputed.Phase)
}

func TestCancelStaleUnfunded(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, &fakePayments{}, 5.0)
	ctx := context.Background()

	stale, err := svc.Create(ctx, CreateRequest{BrandID: "brand_1", CreatorID: "creator_1", Amount: 100000})
	require.NoError(t, err)
	fresh, err := svc.Create(ctx, CreateRequest{BrandID: "brand_1", CreatorID: "creator_2", Amount: 100000})
	require.NoError(t, err)
	funded, err := svc.Create(ctx, CreateRequest{BrandID: "brand_1", CreatorID: "creator_3", Amount: 100000})
	require.NoError(t, err)
	_, err = svc.HandleFundingCompleted(ctx, funded.ID, "pi_1")
	require.NoError(t, err)

	// Age the stale and funded contracts past the timeout.
	for _, id := range []string{stale.ID, funded.ID} {
		c, getErr := store.Get(ctx, id)
		require.NoError(t, getErr)
		c.CreatedAt = time.Now().Add(-2 * time.Hour)
		require.NoError(t, store.Update(ctx, c))
	}

	n := svc.CancelStaleUnfunded(ctx, time.Hour)
	assert.Equal(t, 1, n)

	got, err := svc.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, LifecycleCancelled, got.Lifecycle)

	got, err = svc.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, LifecycleActive, got.Lifecycle)

	got, err = svc.Get(ctx, funded.ID)
	require.NoError(t, err)
	assert.Equal(t, LifecycleActive, got.Lifecycle, "funded contracts never time out")
}

func TestListByBrandAndCreator(t *testing.T) {
	svc := newTestService(&fakePayments{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.Create(ctx, CreateRequest{BrandID: "brand_1", CreatorID: "creator_1", Amount: 100000})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, CreateRequest{BrandID: "brand_2", CreatorID: "creator_1", Amount: 100000})
	require.NoError(t, err)

	byBrand, err := svc.ListByBrand(ctx, "brand_1", 10)
	require.NoError(t, err)
	assert.Len(t, byBrand, 2)

	byCreator, err := svc.ListByCreator(ctx, "creator_1", 10)
	require.NoError(t, err)
	assert.Len(t, byCreator, 3)
}
