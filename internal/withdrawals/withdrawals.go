// Package withdrawals turns available creator earnings into real payouts.
//
// Flow:
//  1. Creator requests a withdrawal → gross amount reserved from available
//  2. Process dispatches the net amount (gross minus fees) through a
//     payout channel, outside any balance lock
//  3. Success finalizes the reservation; failure or cancellation releases
//     it back to available
package withdrawals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/collabhq/collabpay/internal/idgen"
	"github.com/collabhq/collabpay/internal/logging"
	"github.com/collabhq/collabpay/internal/metrics"
	"github.com/collabhq/collabpay/internal/money"
	"github.com/collabhq/collabpay/internal/notify"
	"github.com/collabhq/collabpay/internal/provider"
	"github.com/collabhq/collabpay/internal/syncutil"
	"github.com/collabhq/collabpay/internal/traces"
)

var (
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	ErrMethodUnavailable  = errors.New("payout method unavailable")
	ErrAmountOutOfBounds  = errors.New("amount outside method limits")
	ErrInvalidStatus      = errors.New("invalid withdrawal status for this operation")
)

// Status represents the state of a withdrawal.
type Status string

const (
	StatusPending    Status = "pending"    // Created, gross amount reserved
	StatusProcessing Status = "processing" // Payout in flight with the channel
	StatusCompleted  Status = "completed"  // Paid out, reservation finalized
	StatusFailed     Status = "failed"     // Channel failed, reservation released
	StatusCancelled  Status = "cancelled"  // Creator cancelled before processing
)

// Withdrawal is one creator-initiated payout request.
type Withdrawal struct {
	ID            string            `json:"id"`
	CreatorID     string            `json:"creatorId"`
	Gross         money.Cents       `json:"gross"`
	Fees          FeeBreakdown      `json:"fees"`
	Method        Method            `json:"method"`
	Details       map[string]string `json:"details,omitempty"`
	Status        Status            `json:"status"`
	ExternalRef   string            `json:"externalRef,omitempty"`
	FailureReason string            `json:"failureReason,omitempty"` // verbatim channel error, not user-facing
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	ProcessedAt   *time.Time        `json:"processedAt,omitempty"`
}

// IsTerminal returns true if the withdrawal is in a final state.
func (w *Withdrawal) IsTerminal() bool {
	switch w.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Store persists withdrawal records.
type Store interface {
	Create(ctx context.Context, w *Withdrawal) error
	Get(ctx context.Context, id string) (*Withdrawal, error)
	Update(ctx context.Context, w *Withdrawal) error
	ListByCreator(ctx context.Context, creatorID string, limit int) ([]*Withdrawal, error)
}

// LedgerService abstracts the balance operations the engine needs.
type LedgerService interface {
	ReserveForWithdrawal(ctx context.Context, creatorID string, amount money.Cents, reference string) error
	ReleaseReservation(ctx context.Context, creatorID string, amount money.Cents, reference string) error
	FinalizeWithdrawal(ctx context.Context, creatorID string, amount money.Cents, reference string) error
}

// SourceResolver locates a provider reference to a prior incoming charge
// for a creator, used by channels that must link a payout to its source of
// funds. An empty reference with nil error means no charge was found.
type SourceResolver interface {
	SourceFor(ctx context.Context, creatorID string) (string, error)
}

// RequestInput contains the parameters for creating a withdrawal.
type RequestInput struct {
	CreatorID string
	Amount    money.Cents
	Method    Method
	Details   map[string]string
}

// Service implements the withdrawal engine.
type Service struct {
	store       Store
	ledger      LedgerService
	channels    *Registry
	sources     SourceResolver
	notifier    *notify.Emitter
	onCompleted func(ctx context.Context, creatorID string)
	platformPct float64
	locks       syncutil.ShardedMutex // per-withdrawal locks against concurrent transitions
}

// NewService creates a withdrawal service. platformPct is the platform fee
// percentage applied to every withdrawal on top of channel fees.
func NewService(store Store, ledger LedgerService, channels *Registry, platformPct float64) *Service {
	return &Service{
		store:       store,
		ledger:      ledger,
		channels:    channels,
		platformPct: platformPct,
	}
}

// WithSourceResolver adds a source-of-funds resolver for channels that
// require one.
func (s *Service) WithSourceResolver(r SourceResolver) *Service {
	s.sources = r
	return s
}

// WithNotifier adds a notification emitter for lifecycle events.
func (s *Service) WithNotifier(n *notify.Emitter) *Service {
	s.notifier = n
	return s
}

// WithCompletionHook registers a best-effort callback invoked after a
// payout completes, used to advance the creator's contract phases.
func (s *Service) WithCompletionHook(fn func(ctx context.Context, creatorID string)) *Service {
	s.onCompleted = fn
	return s
}

// Request validates a withdrawal against the chosen method's limits,
// reserves the gross amount, and creates the record. A failed reservation
// rejects the request with no record and no dangling reservation.
func (s *Service) Request(ctx context.Context, in RequestInput) (*Withdrawal, error) {
	ch, ok := s.channels.Get(in.Method)
	if !ok {
		return nil, ErrMethodUnavailable
	}

	min, max := ch.Bounds()
	if in.Amount < min || (max > 0 && in.Amount > max) {
		return nil, fmt.Errorf("%w: %s not in [%s, %s]",
			ErrAmountOutOfBounds, in.Amount.Format(), min.Format(), max.Format())
	}

	pct, fixed := ch.Fees()
	fees := ComputeFees(in.Amount, pct, s.platformPct, fixed)
	if fees.Net <= 0 {
		return nil, fmt.Errorf("%w: fees exceed amount", ErrAmountOutOfBounds)
	}

	now := time.Now()
	w := &Withdrawal{
		ID:        idgen.WithPrefix(idgen.PrefixWithdrawal),
		CreatorID: in.CreatorID,
		Gross:     in.Amount,
		Fees:      fees,
		Method:    in.Method,
		Details:   in.Details,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.ledger.ReserveForWithdrawal(ctx, w.CreatorID, w.Gross, w.ID); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, w); err != nil {
		// The reservation must not dangle without a record.
		_ = s.ledger.ReleaseReservation(ctx, w.CreatorID, w.Gross, w.ID)
		return nil, fmt.Errorf("failed to create withdrawal record: %w", err)
	}

	metrics.WithdrawalsTotal.WithLabelValues(string(StatusPending), string(in.Method)).Inc()
	metrics.WithdrawalAmount.Observe(float64(w.Gross) / 100)
	return w, nil
}

// Process dispatches a pending withdrawal through its payout channel. The
// channel call runs outside any lock; on success the reservation is
// finalized, on failure it is released back to available.
func (s *Service) Process(ctx context.Context, id string) (*Withdrawal, error) {
	w, err := s.beginProcessing(ctx, id)
	if err != nil {
		return nil, err
	}

	ch, ok := s.channels.Get(w.Method)
	if !ok {
		// Channel disappeared between request and process (config change).
		return s.finishFailed(ctx, w, provider.New(provider.KindGeneric, "dispatch",
			fmt.Sprintf("method %s no longer configured", w.Method), nil))
	}

	sourceRef := ""
	if s.sources != nil {
		sourceRef, err = s.sources.SourceFor(ctx, w.CreatorID)
		if err != nil {
			logging.L(ctx).Warn("source-of-funds lookup failed",
				"withdrawal_id", w.ID, "creator_id", w.CreatorID, "error", err)
		}
	}

	start := time.Now()
	spanCtx, span := traces.StartSpan(ctx, "withdrawals.payout",
		traces.WithdrawalID(w.ID), traces.Method(string(w.Method)), traces.Amount(w.Fees.Net.Format()))
	externalRef, payoutErr := ch.Payout(spanCtx, PayoutRequest{
		WithdrawalID: w.ID,
		CreatorID:    w.CreatorID,
		Net:          w.Fees.Net,
		Details:      w.Details,
		SourceRef:    sourceRef,
	})
	span.End()
	metrics.PayoutDuration.WithLabelValues(string(w.Method)).Observe(time.Since(start).Seconds())

	if payoutErr != nil {
		return s.finishFailed(ctx, w, payoutErr)
	}
	return s.finishCompleted(ctx, w, externalRef)
}

// beginProcessing transitions pending → processing under the withdrawal
// lock, so concurrent Process calls on the same ID collapse to one.
func (s *Service) beginProcessing(ctx context.Context, id string) (*Withdrawal, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	w, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != StatusPending {
		return nil, ErrInvalidStatus
	}

	w.Status = StatusProcessing
	w.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Service) finishCompleted(ctx context.Context, w *Withdrawal, externalRef string) (*Withdrawal, error) {
	unlock := s.locks.Lock(w.ID)
	defer unlock()

	now := time.Now()
	w.Status = StatusCompleted
	w.ExternalRef = externalRef
	w.ProcessedAt = &now
	w.UpdatedAt = now
	if err := s.store.Update(ctx, w); err != nil {
		// Money has left the platform; the record must catch up.
		if retryErr := s.store.Update(ctx, w); retryErr != nil {
			logging.L(ctx).Error("payout sent but record update failed",
				"withdrawal_id", w.ID, "external_ref", externalRef, "error", retryErr)
			return nil, fmt.Errorf("failed to update withdrawal after payout (requires manual resolution): %w", err)
		}
	}

	if err := s.ledger.FinalizeWithdrawal(ctx, w.CreatorID, w.Gross, w.ID); err != nil {
		logging.L(ctx).Error("withdrawal completed but finalize failed",
			"withdrawal_id", w.ID, "error", err)
	}

	metrics.WithdrawalsTotal.WithLabelValues(string(StatusCompleted), string(w.Method)).Inc()
	s.notifier.WithdrawalCompleted(w.CreatorID, w.ID, string(w.Method),
		w.Fees.Gross, w.Fees.PercentageFee, w.Fees.PlatformFee, w.Fees.FixedFee, w.Fees.TotalFees, w.Fees.Net)
	if s.onCompleted != nil {
		s.onCompleted(ctx, w.CreatorID)
	}
	logging.L(ctx).Info("withdrawal completed",
		"withdrawal_id", w.ID,
		"creator_id", w.CreatorID,
		"method", w.Method,
		"gross", w.Gross.Format(),
		"net", w.Fees.Net.Format(),
		"external_ref", externalRef)
	return w, nil
}

func (s *Service) finishFailed(ctx context.Context, w *Withdrawal, cause error) (*Withdrawal, error) {
	unlock := s.locks.Lock(w.ID)
	defer unlock()

	// The reason is stored verbatim for operators; user-facing surfaces
	// show the sanitized provider message instead.
	w.Status = StatusFailed
	w.FailureReason = cause.Error()
	w.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, w); err != nil {
		return nil, err
	}

	if err := s.ledger.ReleaseReservation(ctx, w.CreatorID, w.Gross, w.ID); err != nil {
		logging.L(ctx).Error("withdrawal failed and reservation release failed",
			"withdrawal_id", w.ID, "gross", w.Gross.Format(), "error", err)
		return nil, fmt.Errorf("failed to restore reserved funds (requires manual resolution): %w", err)
	}

	reason := cause.Error()
	if pe, ok := provider.AsError(cause); ok {
		reason = pe.UserMessage()
	}

	metrics.WithdrawalsTotal.WithLabelValues(string(StatusFailed), string(w.Method)).Inc()
	s.notifier.WithdrawalFailed(w.CreatorID, w.ID, string(w.Method), reason)
	logging.L(ctx).Error("withdrawal payout failed",
		"withdrawal_id", w.ID,
		"creator_id", w.CreatorID,
		"method", w.Method,
		"error", cause)
	return w, nil
}

// Cancel aborts a withdrawal before processing begins and releases its
// reservation. Only pending withdrawals can be cancelled; anything later
// risks racing an in-flight payout.
func (s *Service) Cancel(ctx context.Context, id string) (*Withdrawal, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	w, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != StatusPending {
		return nil, ErrInvalidStatus
	}

	w.Status = StatusCancelled
	w.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, w); err != nil {
		return nil, err
	}

	if err := s.ledger.ReleaseReservation(ctx, w.CreatorID, w.Gross, w.ID); err != nil {
		logging.L(ctx).Error("cancellation recorded but reservation release failed",
			"withdrawal_id", w.ID, "error", err)
		return nil, fmt.Errorf("failed to restore reserved funds (requires manual resolution): %w", err)
	}

	metrics.WithdrawalsTotal.WithLabelValues(string(StatusCancelled), string(w.Method)).Inc()
	return w, nil
}

// Get returns a withdrawal by ID.
func (s *Service) Get(ctx context.Context, id string) (*Withdrawal, error) {
	return s.store.Get(ctx, id)
}

// ListByCreator returns a creator's withdrawals, newest first.
func (s *Service) ListByCreator(ctx context.Context, creatorID string, limit int) ([]*Withdrawal, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByCreator(ctx, creatorID, limit)
}

// Methods returns the available payout methods.
func (s *Service) Methods() []Method {
	return s.channels.Methods()
}
