package subscriptions

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed subscription store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Insert(ctx context.Context, sub *Subscription) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, brand_id, provider_sub_ref, plan, status,
			current_period_end, last_invoice_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, sub.ID, sub.BrandID, sub.ProviderSubRef, sub.Plan, string(sub.Status),
		sub.CurrentPeriodEnd, sub.LastInvoiceRef, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateRef
		}
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetByProviderRef(ctx context.Context, ref string) (*Subscription, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, brand_id, provider_sub_ref, plan, status, current_period_end,
			last_invoice_ref, created_at, updated_at
		FROM subscriptions WHERE provider_sub_ref = $1
	`, ref)
	return scanSubscription(row)
}

func (p *PostgresStore) Update(ctx context.Context, sub *Subscription) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE subscriptions SET
			brand_id = $2, plan = $3, status = $4, current_period_end = $5,
			last_invoice_ref = $6, updated_at = $7
		WHERE provider_sub_ref = $1
	`, sub.ProviderSubRef, sub.BrandID, sub.Plan, string(sub.Status),
		sub.CurrentPeriodEnd, sub.LastInvoiceRef, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (p *PostgresStore) ListByBrand(ctx context.Context, brandID string) ([]*Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, brand_id, provider_sub_ref, plan, status, current_period_end,
			last_invoice_ref, created_at, updated_at
		FROM subscriptions WHERE brand_id = $1
		ORDER BY created_at DESC
	`, brandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	sub := &Subscription{}
	var status string
	var lastInvoice sql.NullString

	err := row.Scan(&sub.ID, &sub.BrandID, &sub.ProviderSubRef, &sub.Plan, &status,
		&sub.CurrentPeriodEnd, &lastInvoice, &sub.CreatedAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}

	sub.Status = Status(status)
	sub.LastInvoiceRef = lastInvoice.String
	return sub, nil
}
