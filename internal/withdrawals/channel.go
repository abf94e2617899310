package withdrawals

import (
	"context"
	"sort"
	"sync"

	"github.com/collabhq/collabpay/internal/money"
)

// Method identifies a payout channel.
type Method string

const (
	MethodBankTransfer  Method = "bank_transfer"
	MethodInstantPayout Method = "instant_payout"
	MethodMobileMoney   Method = "mobile_money"
)

// PayoutRequest carries everything a channel needs to move the net amount
// out of the platform.
type PayoutRequest struct {
	WithdrawalID string
	CreatorID    string
	Net          money.Cents
	Details      map[string]string // method-specific, opaque to the engine
	SourceRef    string            // provider reference of a prior incoming charge, when available
}

// Channel is one payout mechanism. Payout is an external I/O call; the
// engine guarantees no balance lock is held while it runs.
type Channel interface {
	Method() Method
	// Bounds returns the channel's inclusive gross amount limits.
	Bounds() (min, max money.Cents)
	// Fees returns the channel's percentage fee and fixed fee.
	Fees() (pct float64, fixed money.Cents)
	// Payout sends the net amount and returns the provider's transaction
	// reference.
	Payout(ctx context.Context, req PayoutRequest) (string, error)
}

// Registry holds the configured payout channels keyed by method.
type Registry struct {
	mu       sync.RWMutex
	channels map[Method]Channel
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[Method]Channel)}
}

// Register adds a channel, replacing any previous one for the same method.
func (r *Registry) Register(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.Method()] = ch
}

// Get returns the channel for a method.
func (r *Registry) Get(method Method) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[method]
	return ch, ok
}

// Methods returns the registered method identifiers, sorted.
func (r *Registry) Methods() []Method {
	r.mu.RLock()
	defer r.mu.RUnlock()
	methods := make([]Method, 0, len(r.channels))
	for m := range r.channels {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}
