package webhooks

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store with PostgreSQL. The unique constraint on
// event_id is what makes Insert a safe claim under concurrent deliveries.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed webhook event store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Insert(ctx context.Context, e *Event) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO webhook_events (id, event_id, type, payload, status, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.EventID, e.Type, e.Payload, string(e.Status), e.ErrorMessage, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("failed to insert webhook event: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetByEventID(ctx context.Context, eventID string) (*Event, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, event_id, type, payload, status, error_message, created_at, updated_at
		FROM webhook_events WHERE event_id = $1
	`, eventID)
	return scanEvent(row)
}

func (p *PostgresStore) Update(ctx context.Context, e *Event) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE webhook_events SET status = $2, error_message = $3, updated_at = $4
		WHERE event_id = $1
	`, e.EventID, string(e.Status), e.ErrorMessage, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update webhook event: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (p *PostgresStore) ClaimFailed(ctx context.Context, eventID string, at time.Time) (bool, error) {
	result, err := p.db.ExecContext(ctx, `
		UPDATE webhook_events SET status = $2, error_message = '', updated_at = $3
		WHERE event_id = $1 AND status = $4
	`, eventID, string(StatusProcessing), at, string(StatusFailed))
	if err != nil {
		return false, fmt.Errorf("failed to re-claim webhook event: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (p *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, event_id, type, payload, status, error_message, created_at, updated_at
		FROM webhook_events
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	e := &Event{}
	var status string
	var errMsg sql.NullString

	err := row.Scan(&e.ID, &e.EventID, &e.Type, &e.Payload, &status, &errMsg,
		&e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}

	e.Status = Status(status)
	e.ErrorMessage = errMsg.String
	return e, nil
}
