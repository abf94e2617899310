package balance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabhq/collabpay/internal/money"
	"github.com/collabhq/collabpay/internal/testutil"
)

func TestPostgres_PendingLifecycle(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	require.NoError(t, store.CreditPending(ctx, "creator_pg_1", 95000, "pay_1"))
	require.NoError(t, store.Release(ctx, "creator_pg_1", 95000, "pay_1"))
	require.NoError(t, store.CreditEarned(ctx, "creator_pg_1", 95000, "pay_1"))

	bal, err := store.GetBalance(ctx, "creator_pg_1")
	require.NoError(t, err)
	assert.Equal(t, money.Cents(95000), bal.Available)
	assert.Equal(t, money.Cents(0), bal.Pending)
	assert.Equal(t, money.Cents(95000), bal.TotalEarned)
}

func TestPostgres_ReleaseGuardsPending(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	require.NoError(t, store.CreditPending(ctx, "creator_pg_2", 5000, "pay_1"))

	err := store.Release(ctx, "creator_pg_2", 5001, "pay_1")
	assert.ErrorIs(t, err, ErrInsufficientPending)

	err = store.Release(ctx, "creator_pg_missing", 100, "pay_2")
	assert.ErrorIs(t, err, ErrCreatorNotFound)
}

func TestPostgres_ReserveGuardsOverdraft(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	require.NoError(t, store.CreditAvailable(ctx, "creator_pg_3", 5000, "pay_1"))

	err := store.Reserve(ctx, "creator_pg_3", 5001, "wd_1")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	err = store.Reserve(ctx, "creator_pg_missing", 100, "wd_2")
	assert.ErrorIs(t, err, ErrCreatorNotFound)

	require.NoError(t, store.Reserve(ctx, "creator_pg_3", 5000, "wd_3"))
	bal, err := store.GetBalance(ctx, "creator_pg_3")
	require.NoError(t, err)
	assert.Equal(t, money.Cents(0), bal.Available)
}

func TestPostgres_RefundOverdraws(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	require.NoError(t, store.CreditAvailable(ctx, "creator_pg_4", 5000, "pay_1"))
	require.NoError(t, store.CreditEarned(ctx, "creator_pg_4", 5000, "pay_1"))
	require.NoError(t, store.Reserve(ctx, "creator_pg_4", 4000, "wd_1"))
	require.NoError(t, store.Refund(ctx, "creator_pg_4", 5000, "pay_1"))

	bal, err := store.GetBalance(ctx, "creator_pg_4")
	require.NoError(t, err)
	assert.Equal(t, money.Cents(-4000), bal.Available)
	assert.Equal(t, money.Cents(0), bal.TotalEarned)
}

func TestPostgres_EntriesMatchReplay(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	require.NoError(t, store.CreditPending(ctx, "creator_pg_5", 95000, "pay_1"))
	require.NoError(t, store.Release(ctx, "creator_pg_5", 95000, "pay_1"))
	require.NoError(t, store.CreditEarned(ctx, "creator_pg_5", 95000, "pay_1"))
	require.NoError(t, store.Reserve(ctx, "creator_pg_5", 10000, "wd_1"))
	require.NoError(t, store.FinalizeWithdrawal(ctx, "creator_pg_5", 10000, "wd_1"))

	entries, err := store.Entries(ctx, "creator_pg_5")
	require.NoError(t, err)
	require.Len(t, entries, 5)

	computed, err := Replay("creator_pg_5", entries)
	require.NoError(t, err)

	stored, err := store.GetBalance(ctx, "creator_pg_5")
	require.NoError(t, err)
	assert.Equal(t, computed.Available, stored.Available)
	assert.Equal(t, computed.Pending, stored.Pending)
	assert.Equal(t, computed.TotalEarned, stored.TotalEarned)
	assert.Equal(t, computed.TotalWithdrawn, stored.TotalWithdrawn)
}
