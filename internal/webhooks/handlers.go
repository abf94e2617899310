package webhooks

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/collabhq/collabpay/internal/logging"
	"github.com/collabhq/collabpay/internal/metrics"
	"github.com/collabhq/collabpay/internal/traces"
)

// Providers cap webhook bodies well under this; anything larger is not a
// legitimate delivery.
const maxBodyBytes = int64(64 << 10)

// HandlerFunc processes one verified, claimed provider event.
type HandlerFunc func(ctx context.Context, event stripe.Event) error

// Dispatcher routes verified events to their handlers by event type.
// Unhandled types are acknowledged and recorded as processed so redeliveries
// of events we do not care about stop immediately.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// On registers a handler for an event type, replacing any previous one.
func (d *Dispatcher) On(eventType string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = fn
}

func (d *Dispatcher) lookup(eventType string) (HandlerFunc, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn, ok := d.handlers[eventType]
	return fn, ok
}

// Handler terminates the provider's webhook endpoint: signature
// verification, the idempotency gate, then dispatch.
type Handler struct {
	gate       *Gate
	dispatcher *Dispatcher
	secret     string
}

// NewHandler creates a webhook handler. secret is the provider's endpoint
// signing secret.
func NewHandler(gate *Gate, dispatcher *Dispatcher, secret string) *Handler {
	return &Handler{gate: gate, dispatcher: dispatcher, secret: secret}
}

// RegisterRoutes sets up the webhook ingestion route.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/stripe", h.Ingest)
}

// RegisterAdminRoutes sets up the admin event listing.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/webhooks/events", h.ListEvents)
}

// Ingest handles POST /v1/webhooks/stripe
func (h *Handler) Ingest(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Could not read request body",
		})
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.secret)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		logging.L(c.Request.Context()).Warn("webhook signature verification failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_signature",
			"message": "Webhook signature verification failed",
		})
		return
	}

	ctx := c.Request.Context()
	claimed, ok, err := h.gate.Claim(ctx, event.ID, string(event.Type), payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to record event",
		})
		return
	}
	if !ok {
		// Duplicate or in flight. A 200 stops the redelivery loop.
		c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
		return
	}

	fn, handled := h.dispatcher.lookup(string(event.Type))
	if !handled {
		logging.L(ctx).Debug("unhandled webhook event type", "type", event.Type, "event_id", event.ID)
		if err := h.gate.MarkProcessed(ctx, claimed); err != nil {
			logging.L(ctx).Error("failed to mark webhook processed", "event_id", event.ID, "error", err)
		}
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "ignored").Inc()
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	spanCtx, span := traces.StartSpan(ctx, "webhooks.dispatch", traces.EventID(event.ID))
	err = fn(spanCtx, event)
	span.End()
	if err != nil {
		_ = h.gate.MarkFailed(ctx, claimed, err)
		metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "failed").Inc()
		logging.L(ctx).Error("webhook handler failed",
			"type", event.Type, "event_id", event.ID, "error", err)
		// Non-2xx prompts the provider to redeliver; the failed record is
		// re-claimable so the retry will run the handler again.
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "processing_failed",
			"message": "Event processing failed",
		})
		return
	}

	if err := h.gate.MarkProcessed(ctx, claimed); err != nil {
		logging.L(ctx).Error("failed to mark webhook processed", "event_id", event.ID, "error", err)
	}
	metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "processed").Inc()
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// ListEvents handles GET /v1/admin/webhooks/events
func (h *Handler) ListEvents(c *gin.Context) {
	events, err := h.gate.ListRecent(c.Request.Context(), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
