// Package webhooks ingests provider webhook deliveries exactly once.
//
// Providers redeliver aggressively, so every event passes through an
// idempotency gate before any business logic runs: the event ID is claimed
// via a unique-constraint insert, duplicates are acknowledged without
// side effects, and a short-TTL cache absorbs the common immediate-retry
// case without touching the database.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/collabhq/collabpay/internal/cache"
	"github.com/collabhq/collabpay/internal/idgen"
	"github.com/collabhq/collabpay/internal/logging"
	"github.com/collabhq/collabpay/internal/metrics"
)

var (
	ErrEventNotFound  = errors.New("webhook event not found")
	ErrDuplicateEvent = errors.New("webhook event already recorded")
)

// Status tracks an event through ingestion.
type Status string

const (
	StatusProcessing Status = "processing" // Claimed, handler running
	StatusProcessed  Status = "processed"  // Handler finished successfully
	StatusFailed     Status = "failed"     // Handler failed; eligible for re-claim on redelivery
)

// Event is one recorded webhook delivery.
type Event struct {
	ID           string    `json:"id"`
	EventID      string    `json:"eventId"` // provider's event ID, unique
	Type         string    `json:"type"`
	Payload      []byte    `json:"-"`
	Status       Status    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Store persists webhook events. Insert must be atomic on event_id and
// return ErrDuplicateEvent when the ID is already recorded, so concurrent
// deliveries of the same event resolve to exactly one winner. ClaimFailed
// must flip failed to processing atomically and report whether this caller
// made the transition; concurrent redeliveries of a failed event race on
// it, and only the winner may run the handler.
type Store interface {
	Insert(ctx context.Context, e *Event) error
	GetByEventID(ctx context.Context, eventID string) (*Event, error)
	Update(ctx context.Context, e *Event) error
	ClaimFailed(ctx context.Context, eventID string, at time.Time) (bool, error)
	ListRecent(ctx context.Context, limit int) ([]*Event, error)
}

const dupCacheTTL = 10 * time.Minute

// Gate is the idempotency gate in front of webhook processing.
type Gate struct {
	store Store
	cache cache.Cache
}

// NewGate creates a gate. cache may be nil; the database unique constraint
// is the source of truth either way.
func NewGate(store Store, c cache.Cache) *Gate {
	return &Gate{store: store, cache: c}
}

func cacheKey(eventID string) string { return "webhook:seen:" + eventID }

// Claim attempts to take ownership of an event. It returns the recorded
// event and true when the caller should process it; false means the event
// is a duplicate or already in flight and must be acknowledged without
// side effects. Failed events are re-claimed so the provider's redelivery
// drives retries.
func (g *Gate) Claim(ctx context.Context, eventID, eventType string, payload []byte) (*Event, bool, error) {
	if g.cache != nil {
		if _, hit := g.cache.Get(ctx, cacheKey(eventID)); hit {
			metrics.WebhookDuplicatesTotal.Inc()
			return nil, false, nil
		}
	}

	existing, err := g.store.GetByEventID(ctx, eventID)
	if err != nil && !errors.Is(err, ErrEventNotFound) {
		return nil, false, err
	}
	if existing != nil {
		switch existing.Status {
		case StatusProcessed:
			metrics.WebhookDuplicatesTotal.Inc()
			return existing, false, nil
		case StatusProcessing:
			// Another delivery is mid-flight. Acknowledge; if that worker
			// dies the provider will redeliver after we mark it failed.
			metrics.WebhookDuplicatesTotal.Inc()
			return existing, false, nil
		case StatusFailed:
			now := time.Now()
			won, err := g.store.ClaimFailed(ctx, eventID, now)
			if err != nil {
				return nil, false, err
			}
			if !won {
				// A concurrent redelivery re-claimed it first.
				metrics.WebhookDuplicatesTotal.Inc()
				return existing, false, nil
			}
			existing.Status = StatusProcessing
			existing.ErrorMessage = ""
			existing.UpdatedAt = now
			return existing, true, nil
		}
	}

	e := &Event{
		ID:        idgen.WithPrefix(idgen.PrefixWebhookEvent),
		EventID:   eventID,
		Type:      eventType,
		Payload:   payload,
		Status:    StatusProcessing,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := g.store.Insert(ctx, e); err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			// Lost the create race to a concurrent delivery.
			metrics.WebhookDuplicatesTotal.Inc()
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	return e, true, nil
}

// MarkProcessed finalizes a claimed event and primes the duplicate cache.
func (g *Gate) MarkProcessed(ctx context.Context, e *Event) error {
	e.Status = StatusProcessed
	e.ErrorMessage = ""
	e.UpdatedAt = time.Now()
	if err := g.store.Update(ctx, e); err != nil {
		return err
	}
	if g.cache != nil {
		g.cache.Set(ctx, cacheKey(e.EventID), "1", dupCacheTTL)
	}
	return nil
}

// MarkFailed records a handler failure. The event stays re-claimable so the
// provider's next redelivery retries it.
func (g *Gate) MarkFailed(ctx context.Context, e *Event, cause error) error {
	e.Status = StatusFailed
	e.ErrorMessage = cause.Error()
	e.UpdatedAt = time.Now()
	if err := g.store.Update(ctx, e); err != nil {
		logging.L(ctx).Error("failed to record webhook failure",
			"event_id", e.EventID, "error", err)
		return err
	}
	return nil
}

// ListRecent returns recent events for the admin surface.
func (g *Gate) ListRecent(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return g.store.ListRecent(ctx, limit)
}
