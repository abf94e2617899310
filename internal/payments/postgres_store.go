package payments

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/collabhq/collabpay/internal/money"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed payment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, pay *Payment) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payments (id, contract_id, brand_id, creator_id, gross, fee, net,
			status, provider_ref, transfer_ref, refund_ref, failure_reason, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, pay.ID, pay.ContractID, pay.BrandID, pay.CreatorID,
		int64(pay.Gross), int64(pay.Fee), int64(pay.Net),
		string(pay.Status), pay.ProviderRef, pay.TransferRef, pay.RefundRef, pay.FailureReason,
		pay.CreatedAt, pay.UpdatedAt, pay.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Payment, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, contract_id, brand_id, creator_id, gross, fee, net,
			status, provider_ref, transfer_ref, refund_ref, failure_reason, created_at, updated_at, completed_at
		FROM payments WHERE id = $1
	`, id)
	return scanPayment(row)
}

func (p *PostgresStore) Update(ctx context.Context, pay *Payment) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE payments SET
			status = $2, provider_ref = $3, transfer_ref = $4, refund_ref = $5,
			failure_reason = $6, updated_at = $7, completed_at = $8
		WHERE id = $1
	`, pay.ID, string(pay.Status), pay.ProviderRef, pay.TransferRef, pay.RefundRef,
		pay.FailureReason, pay.UpdatedAt, pay.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (p *PostgresStore) ListByContract(ctx context.Context, contractID string) ([]*Payment, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, contract_id, brand_id, creator_id, gross, fee, net,
			status, provider_ref, transfer_ref, refund_ref, failure_reason, created_at, updated_at, completed_at
		FROM payments WHERE contract_id = $1
		ORDER BY created_at ASC
	`, contractID)
	if err != nil {
		return nil, err
	}
	return scanPayments(rows)
}

func (p *PostgresStore) ListByCreator(ctx context.Context, creatorID string, limit int) ([]*Payment, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, contract_id, brand_id, creator_id, gross, fee, net,
			status, provider_ref, transfer_ref, refund_ref, failure_reason, created_at, updated_at, completed_at
		FROM payments WHERE creator_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, creatorID, limit)
	if err != nil {
		return nil, err
	}
	return scanPayments(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*Payment, error) {
	pay := &Payment{}
	var gross, fee, net int64
	var status string
	var providerRef, transferRef, refundRef, failureReason sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&pay.ID, &pay.ContractID, &pay.BrandID, &pay.CreatorID,
		&gross, &fee, &net, &status, &providerRef, &transferRef, &refundRef, &failureReason,
		&pay.CreatedAt, &pay.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}

	pay.Gross = money.Cents(gross)
	pay.Fee = money.Cents(fee)
	pay.Net = money.Cents(net)
	pay.Status = Status(status)
	pay.ProviderRef = providerRef.String
	pay.TransferRef = transferRef.String
	pay.RefundRef = refundRef.String
	pay.FailureReason = failureReason.String
	if completedAt.Valid {
		t := completedAt.Time
		pay.CompletedAt = &t
	}
	return pay, nil
}

func scanPayments(rows *sql.Rows) ([]*Payment, error) {
	defer rows.Close()

	var result []*Payment
	for rows.Next() {
		pay, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, pay)
	}
	return result, rows.Err()
}
