package balance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabhq/collabpay/internal/money"
)

func newTestLedger() *Ledger {
	return New(NewMemoryStore())
}

func TestBalance_UnknownCreatorIsZero(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	bal, err := l.Balance(ctx, "creator_unknown")
	require.NoError(t, err)
	assert.Equal(t, money.Cents(0), bal.Available)
	assert.Equal(t, money.Cents(0), bal.Pending)
	assert.Equal(t, money.Cents(0), bal.TotalEarned)
}

func TestPendingToAvailableFlow(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	// Creator's cut of a completed contract: 950.00.
	net := money.Cents(95000)
	require.NoError(t, l.CreditPending(ctx, "creator_1", net, "pay_1"))

	bal, err := l.Balance(ctx, "creator_1")
	require.NoError(t, err)
	assert.Equal(t, net, bal.Pending)
	assert.Equal(t, money.Cents(0), bal.Available)

	require.NoError(t, l.Release(ctx, "creator_1", net, "pay_1"))
	require.NoError(t, l.CreditEarned(ctx, "creator_1", net, "pay_1"))

	bal, err = l.Balance(ctx, "creator_1")
	require.NoError(t, err)
	assert.Equal(t, money.Cents(0), bal.Pending)
	assert.Equal(t, net, bal.Available)
	assert.Equal(t, net, bal.TotalEarned)
}

func TestRelease_MoreThanPending(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.CreditPending(ctx, "creator_1", 5000, "pay_1"))
	err := l.Release(ctx, "creator_1", 6000, "pay_1")
	assert.ErrorIs(t, err, ErrInsufficientPending)

	// Pending untouched after the rejected release.
	bal, _ := l.Balance(ctx, "creator_1")
	assert.Equal(t, money.Cents(5000), bal.Pending)
}

func TestCreditAvailable_FallbackPath(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	// No pending history; direct credit still lands in available.
	require.NoError(t, l.CreditAvailable(ctx, "creator_1", 95000, "pay_1"))

	bal, _ := l.Balance(ctx, "creator_1")
	assert.Equal(t, money.Cents(95000), bal.Available)
	assert.Equal(t, money.Cents(0), bal.Pending)
}

func TestRevokePending(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.CreditPending(ctx, "creator_1", 95000, "pay_1"))
	require.NoError(t, l.RevokePending(ctx, "creator_1", 95000, "pay_1"))

	bal, _ := l.Balance(ctx, "creator_1")
	assert.Equal(t, money.Cents(0), bal.Pending)
	assert.Equal(t, money.Cents(0), bal.Available)
	assert.Equal(t, money.Cents(0), bal.TotalEarned)
}

func TestReservationRoundTrip(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.CreditAvailable(ctx, "creator_1", 10000, "pay_1"))
	require.NoError(t, l.ReserveForWithdrawal(ctx, "creator_1", 10000, "wd_1"))

	bal, _ := l.Balance(ctx, "creator_1")
	assert.Equal(t, money.Cents(0), bal.Available, "reservation debits available up front")

	// Payout failed: the full reserved amount comes back.
	require.NoError(t, l.ReleaseReservation(ctx, "creator_1", 10000, "wd_1"))

	bal, _ = l.Balance(ctx, "creator_1")
	assert.Equal(t, money.Cents(10000), bal.Available)
	assert.Equal(t, money.Cents(0), bal.TotalWithdrawn)
}

func TestFinalizeWithdrawal_OnlyBumpsWithdrawn(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.CreditAvailable(ctx, "creator_1", 10000, "pay_1"))
	require.NoError(t, l.ReserveForWithdrawal(ctx, "creator_1", 10000, "wd_1"))
	require.NoError(t, l.FinalizeWithdrawal(ctx, "creator_1", 10000, "wd_1"))

	bal, _ := l.Balance(ctx, "creator_1")
	assert.Equal(t, money.Cents(0), bal.Available, "no second deduction at finalize")
	assert.Equal(t, money.Cents(10000), bal.TotalWithdrawn)
}

func TestReserve_InsufficientFunds(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.CreditAvailable(ctx, "creator_1", 5000, "pay_1"))
	err := l.ReserveForWithdrawal(ctx, "creator_1", 5001, "wd_1")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// Pending funds never count toward withdrawable.
	require.NoError(t, l.CreditPending(ctx, "creator_1", 100000, "pay_2"))
	err = l.ReserveForWithdrawal(ctx, "creator_1", 5001, "wd_2")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestReserve_UnknownCreator(t *testing.T) {
	l := newTestLedger()
	err := l.ReserveForWithdrawal(context.Background(), "creator_ghost", 100, "wd_1")
	assert.ErrorIs(t, err, ErrCreatorNotFound)
}

func TestRefund_MayOverdraw(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.CreditAvailable(ctx, "creator_1", 5000, "pay_1"))
	require.NoError(t, l.CreditEarned(ctx, "creator_1", 5000, "pay_1"))
	require.NoError(t, l.ReserveForWithdrawal(ctx, "creator_1", 4000, "wd_1"))

	// Refund of the full original payment while most of it is already
	// reserved for a payout.
	require.NoError(t, l.Refund(ctx, "creator_1", 5000, "pay_1"))

	bal, _ := l.Balance(ctx, "creator_1")
	assert.Equal(t, money.Cents(-4000), bal.Available)
	assert.Equal(t, money.Cents(0), bal.TotalEarned)
}

func TestInvalidAmounts(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	assert.ErrorIs(t, l.CreditPending(ctx, "c", 0, "r"), ErrInvalidAmount)
	assert.ErrorIs(t, l.CreditAvailable(ctx, "c", -1, "r"), ErrInvalidAmount)
	assert.ErrorIs(t, l.CreditEarned(ctx, "c", 0, "r"), ErrInvalidAmount)
	assert.ErrorIs(t, l.ReserveForWithdrawal(ctx, "c", 0, "r"), ErrInvalidAmount)
	assert.ErrorIs(t, l.Refund(ctx, "c", -100, "r"), ErrInvalidAmount)
}

func TestHistory_NewestFirst(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.CreditAvailable(ctx, "creator_1", 1000, "pay_1"))
	require.NoError(t, l.CreditAvailable(ctx, "creator_1", 2000, "pay_2"))
	require.NoError(t, l.CreditAvailable(ctx, "creator_2", 9999, "pay_3"))

	entries, err := l.History(ctx, "creator_1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "pay_2", entries[0].Reference)
	assert.Equal(t, "pay_1", entries[1].Reference)

	limited, err := l.History(ctx, "creator_1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "pay_2", limited[0].Reference)
}
