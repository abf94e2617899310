package contracts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/collabhq/collabpay/internal/money"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed contract store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const contractColumns = `id, brand_id, creator_id, gross, platform_fee, creator_amount,
	funding_status, lifecycle, phase, funding_ref, payment_id, cancel_reason,
	created_at, updated_at, funded_at, completed_at`

func (p *PostgresStore) Create(ctx context.Context, c *Contract) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO contracts (`+contractColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, c.ID, c.BrandID, c.CreatorID, int64(c.Gross), int64(c.PlatformFee), int64(c.CreatorAmount),
		string(c.FundingStatus), string(c.Lifecycle), string(c.Phase),
		c.FundingRef, c.PaymentID, c.CancelReason,
		c.CreatedAt, c.UpdatedAt, c.FundedAt, c.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert contract: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Contract, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+contractColumns+` FROM contracts WHERE id = $1
	`, id)
	return scanContract(row)
}

func (p *PostgresStore) Update(ctx context.Context, c *Contract) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE contracts SET
			funding_status = $2, lifecycle = $3, phase = $4, funding_ref = $5,
			payment_id = $6, cancel_reason = $7, updated_at = $8, funded_at = $9,
			completed_at = $10
		WHERE id = $1
	`, c.ID, string(c.FundingStatus), string(c.Lifecycle), string(c.Phase),
		c.FundingRef, c.PaymentID, c.CancelReason, c.UpdatedAt, c.FundedAt, c.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update contract: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrContractNotFound
	}
	return nil
}

func (p *PostgresStore) ListByBrand(ctx context.Context, brandID string, limit int) ([]*Contract, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+contractColumns+` FROM contracts
		WHERE brand_id = $1 ORDER BY created_at DESC LIMIT $2
	`, brandID, limit)
	if err != nil {
		return nil, err
	}
	return scanContracts(rows)
}

func (p *PostgresStore) ListByCreator(ctx context.Context, creatorID string, limit int) ([]*Contract, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+contractColumns+` FROM contracts
		WHERE creator_id = $1 ORDER BY created_at DESC LIMIT $2
	`, creatorID, limit)
	if err != nil {
		return nil, err
	}
	return scanContracts(rows)
}

func (p *PostgresStore) ListUnfundedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Contract, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+contractColumns+` FROM contracts
		WHERE funding_status = 'unfunded'
		  AND lifecycle = 'active'
		  AND created_at < $1
		ORDER BY created_at ASC LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return scanContracts(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (*Contract, error) {
	c := &Contract{}
	var gross, fee, creatorAmount int64
	var fundingStatus, lifecycle, phase string
	var fundingRef, paymentID, cancelReason sql.NullString
	var fundedAt, completedAt sql.NullTime

	err := row.Scan(&c.ID, &c.BrandID, &c.CreatorID, &gross, &fee, &creatorAmount,
		&fundingStatus, &lifecycle, &phase, &fundingRef, &paymentID, &cancelReason,
		&c.CreatedAt, &c.UpdatedAt, &fundedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ErrContractNotFound
	}
	if err != nil {
		return nil, err
	}

	c.Gross = money.Cents(gross)
	c.PlatformFee = money.Cents(fee)
	c.CreatorAmount = money.Cents(creatorAmount)
	c.FundingStatus = FundingStatus(fundingStatus)
	c.Lifecycle = Lifecycle(lifecycle)
	c.Phase = Phase(phase)
	c.FundingRef = fundingRef.String
	c.PaymentID = paymentID.String
	c.CancelReason = cancelReason.String
	if fundedAt.Valid {
		t := fundedAt.Time
		c.FundedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		c.CompletedAt = &t
	}
	return c, nil
}

func scanContracts(rows *sql.Rows) ([]*Contract, error) {
	defer rows.Close()

	var result []*Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
