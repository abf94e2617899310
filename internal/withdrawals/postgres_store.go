package withdrawals

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/collabhq/collabpay/internal/money"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed withdrawal store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, w *Withdrawal) error {
	details, err := json.Marshal(w.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal withdrawal details: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO withdrawals (id, creator_id, gross, pct_fee, platform_fee, fixed_fee,
			total_fees, net, method, details, status, external_ref, failure_reason,
			created_at, updated_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, w.ID, w.CreatorID, int64(w.Gross),
		int64(w.Fees.PercentageFee), int64(w.Fees.PlatformFee), int64(w.Fees.FixedFee),
		int64(w.Fees.TotalFees), int64(w.Fees.Net),
		string(w.Method), details, string(w.Status), w.ExternalRef, w.FailureReason,
		w.CreatedAt, w.UpdatedAt, w.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to insert withdrawal: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Withdrawal, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, creator_id, gross, pct_fee, platform_fee, fixed_fee, total_fees, net,
			method, details, status, external_ref, failure_reason,
			created_at, updated_at, processed_at
		FROM withdrawals WHERE id = $1
	`, id)
	return scanWithdrawal(row)
}

func (p *PostgresStore) Update(ctx context.Context, w *Withdrawal) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE withdrawals SET
			status = $2, external_ref = $3, failure_reason = $4,
			updated_at = $5, processed_at = $6
		WHERE id = $1
	`, w.ID, string(w.Status), w.ExternalRef, w.FailureReason, w.UpdatedAt, w.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrWithdrawalNotFound
	}
	return nil
}

func (p *PostgresStore) ListByCreator(ctx context.Context, creatorID string, limit int) ([]*Withdrawal, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, creator_id, gross, pct_fee, platform_fee, fixed_fee, total_fees, net,
			method, details, status, external_ref, failure_reason,
			created_at, updated_at, processed_at
		FROM withdrawals WHERE creator_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, creatorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWithdrawal(row rowScanner) (*Withdrawal, error) {
	w := &Withdrawal{}
	var gross, pctFee, platformFee, fixedFee, totalFees, net int64
	var method, status string
	var details []byte
	var externalRef, failureReason sql.NullString
	var processedAt sql.NullTime

	err := row.Scan(&w.ID, &w.CreatorID, &gross, &pctFee, &platformFee, &fixedFee,
		&totalFees, &net, &method, &details, &status, &externalRef, &failureReason,
		&w.CreatedAt, &w.UpdatedAt, &processedAt)
	if err == sql.ErrNoRows {
		return nil, ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, err
	}

	w.Gross = money.Cents(gross)
	w.Fees = FeeBreakdown{
		Gross:         money.Cents(gross),
		PercentageFee: money.Cents(pctFee),
		PlatformFee:   money.Cents(platformFee),
		FixedFee:      money.Cents(fixedFee),
		TotalFees:     money.Cents(totalFees),
		Net:           money.Cents(net),
	}
	w.Method = Method(method)
	w.Status = Status(status)
	w.ExternalRef = externalRef.String
	w.FailureReason = failureReason.String
	if len(details) > 0 {
		if err := json.Unmarshal(details, &w.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal withdrawal details: %w", err)
		}
	}
	if processedAt.Valid {
		t := processedAt.Time
		w.ProcessedAt = &t
	}
	return w, nil
}
