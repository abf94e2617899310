// Package notify delivers lifecycle notifications to the platform's
// notification endpoint (email/push fan-out happens downstream).
//
// Delivery is fire-and-forget: a failed notification is logged and counted
// but never fails the money movement that triggered it.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/collabhq/collabpay/internal/idgen"
	"github.com/collabhq/collabpay/internal/money"
	"github.com/collabhq/collabpay/internal/retry"
)

var (
	notifyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collabpay",
		Subsystem: "notify",
		Name:      "emit_total",
		Help:      "Total notification emit attempts by event type.",
	}, []string{"event_type"})

	notifyErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "collabpay",
		Subsystem: "notify",
		Name:      "emit_errors_total",
		Help:      "Total notification emit failures by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(notifyTotal, notifyErrors)
}

// EventType identifies the notification being delivered.
type EventType string

const (
	EventPaymentAvailable    EventType = "payment.available"
	EventPaymentFailed       EventType = "payment.failed"
	EventPaymentRefunded     EventType = "payment.refunded"
	EventWithdrawalCompleted EventType = "withdrawal.completed"
	EventWithdrawalFailed    EventType = "withdrawal.failed"
)

// Event is the wire format posted to the notification endpoint.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Emitter posts signed notification events. A nil *Emitter is a no-op, so
// callers never need to guard their emit calls.
type Emitter struct {
	url    string
	secret string
	client *http.Client
	logger *slog.Logger
}

// NewEmitter creates an emitter posting to url. Returns nil when url is
// empty (notifications disabled), which every method tolerates.
func NewEmitter(url, secret string, logger *slog.Logger) *Emitter {
	if url == "" {
		return nil
	}
	return &Emitter{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (e *Emitter) emit(eventType EventType, data map[string]any) {
	if e == nil {
		return
	}
	notifyTotal.WithLabelValues(string(eventType)).Inc()
	event := &Event{
		ID:        idgen.WithPrefix(idgen.PrefixNotification),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()
		// Transient delivery failures back off and retry; a 4xx from the
		// collaborator means the payload will never be accepted.
		err := retry.Do(ctx, 3, 2*time.Second, func() error {
			return e.send(ctx, event)
		})
		if err != nil {
			notifyErrors.WithLabelValues(string(eventType)).Inc()
			e.logger.Warn("notification emit failed", "event", eventType, "error", err)
		}
	}()
}

func (e *Emitter) send(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Collabpay-Event", string(event.Type))
	req.Header.Set("X-Collabpay-Timestamp", fmt.Sprintf("%d", event.Timestamp.Unix()))
	if e.secret != "" {
		req.Header.Set("X-Collabpay-Signature", Sign(payload, e.secret))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return retry.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of payload with the shared secret.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// PaymentAvailable tells the creator their earnings from a contract are
// withdrawable.
func (e *Emitter) PaymentAvailable(creatorID, contractID, paymentID string, net money.Cents) {
	e.emit(EventPaymentAvailable, map[string]any{
		"creatorId":  creatorID,
		"contractId": contractID,
		"paymentId":  paymentID,
		"netAmount":  net.Format(),
	})
}

// PaymentFailed tells both parties a payment could not be settled.
func (e *Emitter) PaymentFailed(creatorID, brandID, contractID, paymentID, reason string) {
	e.emit(EventPaymentFailed, map[string]any{
		"creatorId":  creatorID,
		"brandId":    brandID,
		"contractId": contractID,
		"paymentId":  paymentID,
		"reason":     reason,
	})
}

// PaymentRefunded tells both parties a completed payment was refunded.
func (e *Emitter) PaymentRefunded(creatorID, brandID, paymentID string, amount money.Cents) {
	e.emit(EventPaymentRefunded, map[string]any{
		"creatorId": creatorID,
		"brandId":   brandID,
		"paymentId": paymentID,
		"amount":    amount.Format(),
	})
}

// WithdrawalCompleted tells the creator their payout went through, with
// the full fee breakdown so statements can be reconstructed from the event.
func (e *Emitter) WithdrawalCompleted(creatorID, withdrawalID, method string, gross, percentageFee, platformFee, fixedFee, totalFees, net money.Cents) {
	e.emit(EventWithdrawalCompleted, map[string]any{
		"creatorId":     creatorID,
		"withdrawalId":  withdrawalID,
		"method":        method,
		"gross":         gross.Format(),
		"percentageFee": percentageFee.Format(),
		"platformFee":   platformFee.Format(),
		"fixedFee":      fixedFee.Format(),
		"totalFees":     totalFees.Format(),
		"netAmount":     net.Format(),
	})
}

// WithdrawalFailed tells the creator their payout failed and funds were
// returned to their available balance.
func (e *Emitter) WithdrawalFailed(creatorID, withdrawalID, method, reason string) {
	e.emit(EventWithdrawalFailed, map[string]any{
		"creatorId":    creatorID,
		"withdrawalId": withdrawalID,
		"method":       method,
		"reason":       reason,
	})
}
