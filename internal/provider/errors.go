// Package provider classifies failures from the external payment provider.
//
// Every outbound provider call site wraps its error in an *Error so callers
// can decide between retryable and terminal failures without inspecting
// provider-specific types, and so user-facing surfaces never leak raw
// provider detail.
package provider

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v81"
)

// Kind is the failure classification for an external provider call.
type Kind string

const (
	KindDeclined    Kind = "declined"          // The provider rejected the operation (insufficient funds, blocked account)
	KindRateLimited Kind = "rate_limited"      // Too many requests; safe to retry later
	KindMalformed   Kind = "malformed_request" // We sent something the provider could not accept
	KindAuth        Kind = "auth_failure"      // API credentials rejected
	KindUnreachable Kind = "unreachable"       // Network failure or provider outage; safe to retry later
	KindGeneric     Kind = "generic"           // Anything else
)

// Error wraps a provider failure with its classification.
type Error struct {
	Kind    Kind
	Op      string // call site, e.g. "stripe.transfer"
	Message string // full provider detail; log it, never show it to users
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the caller may safely retry the operation later.
// Only rate limits and unreachability qualify; everything else risks a
// duplicate transfer or is certain to fail again.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindUnreachable
}

// UserMessage returns a sanitized message safe to surface to end users.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindDeclined:
		return "The payment provider declined this operation."
	case KindRateLimited, KindUnreachable:
		return "The payment provider is temporarily unavailable. Please try again later."
	default:
		return "The payment could not be processed. Please contact support."
	}
}

// New creates a classified provider error.
func New(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// FromStripe classifies an error returned by the Stripe client library.
func FromStripe(op string, err error) *Error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		// Transport-level failure: connection refused, DNS, timeout.
		return &Error{Kind: KindUnreachable, Op: op, Message: err.Error(), Err: err}
	}

	kind := KindGeneric
	switch {
	case se.HTTPStatusCode == http.StatusTooManyRequests:
		kind = KindRateLimited
	case se.HTTPStatusCode == http.StatusUnauthorized, se.HTTPStatusCode == http.StatusForbidden:
		kind = KindAuth
	case se.Type == stripe.ErrorTypeInvalidRequest:
		kind = KindMalformed
	case se.Type == stripe.ErrorTypeCard:
		kind = KindDeclined
	case se.Code == stripe.ErrorCodeBalanceInsufficient:
		kind = KindDeclined
	case se.HTTPStatusCode >= 500:
		kind = KindUnreachable
	}

	return &Error{Kind: kind, Op: op, Message: se.Error(), Err: err}
}

// AsError unwraps err to a *Error if it is one.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
