package balance

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/collabhq/collabpay/internal/idgen"
	"github.com/collabhq/collabpay/internal/money"
)

// PostgresStore implements Store with PostgreSQL.
//
// Amounts are BIGINT cents. available carries no non-negative constraint
// because refunds are allowed to overdraw it; the withdrawal path guards
// overdraft with a conditional UPDATE instead. pending can only go
// negative through a bug, so it keeps a CHECK constraint, and release and
// revoke guard it with the same conditional-UPDATE pattern.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed balance store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) GetBalance(ctx context.Context, creatorID string) (*Balance, error) {
	bal := &Balance{CreatorID: creatorID}

	err := p.db.QueryRowContext(ctx, `
		SELECT available, pending, total_earned, total_withdrawn, updated_at
		FROM creator_balances WHERE creator_id = $1
	`, creatorID).Scan(&bal.Available, &bal.Pending, &bal.TotalEarned, &bal.TotalWithdrawn, &bal.UpdatedAt)

	if err == sql.ErrNoRows {
		return &Balance{CreatorID: creatorID, UpdatedAt: time.Now()}, nil
	}
	if err != nil {
		return nil, err
	}
	return bal, nil
}

// upsert applies the given column delta, creating the balance row on first
// touch, and appends the matching ledger entry in the same transaction.
func (p *PostgresStore) upsert(ctx context.Context, creatorID, column string, amount money.Cents, typ EntryType, reference, description string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// column is one of our own identifiers, never caller input.
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO creator_balances (creator_id, %[1]s, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (creator_id) DO UPDATE SET
			%[1]s      = creator_balances.%[1]s + $2,
			updated_at = NOW()
	`, column), creatorID, int64(amount))
	if err != nil {
		return fmt.Errorf("failed to apply %s: %w", typ, err)
	}

	if err := p.insertEntry(ctx, tx, creatorID, typ, amount, reference, description); err != nil {
		return err
	}
	return tx.Commit()
}

// guarded applies an UPDATE that must touch exactly one row, mapping a
// zero-row result to ErrCreatorNotFound or insufficientErr.
func (p *PostgresStore) guarded(ctx context.Context, creatorID, query string, amount money.Cents, insufficientErr error, typ EntryType, reference, description string) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, query, creatorID, int64(amount))
	if err != nil {
		return fmt.Errorf("failed to apply %s: %w", typ, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM creator_balances WHERE creator_id = $1)
		`, creatorID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrCreatorNotFound
		}
		return insufficientErr
	}

	if err := p.insertEntry(ctx, tx, creatorID, typ, amount, reference, description); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) CreditPending(ctx context.Context, creatorID string, amount money.Cents, reference string) error {
	return p.upsert(ctx, creatorID, "pending", amount, EntryCreditPending, reference, "payment pending review")
}

func (p *PostgresStore) Release(ctx context.Context, creatorID string, amount money.Cents, reference string) error {
	return p.guarded(ctx, creatorID, `
		UPDATE creator_balances SET
			pending    = pending - $2,
			available  = available + $2,
			updated_at = NOW()
		WHERE creator_id = $1 AND pending >= $2
	`, amount, ErrInsufficientPending, EntryRelease, reference, "review approved")
}

func (p *PostgresStore) CreditAvailable(ctx context.Context, creatorID string, amount money.Cents, reference string) error {
	return p.upsert(ctx, creatorID, "available", amount, EntryCreditAvailable, reference, "direct credit")
}

func (p *PostgresStore) CreditEarned(ctx context.Context, creatorID string, amount money.Cents, reference string) error {
	return p.upsert(ctx, creatorID, "total_earned", amount, EntryCreditEarned, reference, "earnings recorded")
}

func (p *PostgresStore) RevokePending(ctx context.Context, creatorID string, amount money.Cents, reference string) error {
	return p.guarded(ctx, creatorID, `
		UPDATE creator_balances SET
			pending    = pending - $2,
			updated_at = NOW()
		WHERE creator_id = $1 AND pending >= $2
	`, amount, ErrInsufficientPending, EntryRevokePending, reference, "pending credit revoked")
}

func (p *PostgresStore) Reserve(ctx context.Context, creatorID string, amount money.Cents, reference string) error {
	// The conditional UPDATE is the overdraft guard: zero rows means
	// either an unknown creator or available < amount.
	return p.guarded(ctx, creatorID, `
		UPDATE creator_balances SET
			available  = available - $2,
			updated_at = NOW()
		WHERE creator_id = $1 AND available >= $2
	`, amount, ErrInsufficientFunds, EntryReserve, reference, "withdrawal reserved")
}

func (p *PostgresStore) ReleaseReservation(ctx context.Context, creatorID string, amount money.Cents, reference string) error {
	return p.guarded(ctx, creatorID, `
		UPDATE creator_balances SET
			available  = available + $2,
			updated_at = NOW()
		WHERE creator_id = $1
	`, amount, ErrCreatorNotFound, EntryReleaseReservation, reference, "reservation released")
}

func (p *PostgresStore) FinalizeWithdrawal(ctx context.Context, creatorID string, amount money.Cents, reference string) error {
	return p.guarded(ctx, creatorID, `
		UPDATE creator_balances SET
			total_withdrawn = total_withdrawn + $2,
			updated_at      = NOW()
		WHERE creator_id = $1
	`, amount, ErrCreatorNotFound, EntryFinalizeWithdrawal, reference, "withdrawal paid out")
}

func (p *PostgresStore) Refund(ctx context.Context, creatorID string, amount money.Cents, reference string) error {
	// No available >= amount condition: the debit applies even when it
	// overdraws.
	return p.guarded(ctx, creatorID, `
		UPDATE creator_balances SET
			available    = available - $2,
			total_earned = total_earned - $2,
			updated_at   = NOW()
		WHERE creator_id = $1
	`, amount, ErrCreatorNotFound, EntryRefund, reference, "payment refunded")
}

func (p *PostgresStore) History(ctx context.Context, creatorID string, limit int) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, creator_id, type, amount, reference, description, created_at
		FROM balance_entries
		WHERE creator_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, creatorID, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (p *PostgresStore) Entries(ctx context.Context, creatorID string) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, creator_id, type, amount, reference, description, created_at
		FROM balance_entries
		WHERE creator_id = $1
		ORDER BY created_at ASC, id ASC
	`, creatorID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (p *PostgresStore) insertEntry(ctx context.Context, tx *sql.Tx, creatorID string, typ EntryType, amount money.Cents, reference, description string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO balance_entries (id, creator_id, type, amount, reference, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, idgen.WithPrefix(idgen.PrefixLedgerEntry), creatorID, string(typ), int64(amount), reference, description)
	if err != nil {
		return fmt.Errorf("failed to record entry: %w", err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var reference, description sql.NullString
		var amount int64
		if err := rows.Scan(&e.ID, &e.CreatorID, &e.Type, &amount, &reference, &description, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Amount = money.Cents(amount)
		e.Reference = reference.String
		e.Description = description.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
