package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindDeclined, false},
		{KindRateLimited, true},
		{KindMalformed, false},
		{KindAuth, false},
		{KindUnreachable, true},
		{KindGeneric, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			e := New(tt.kind, "stripe.transfer", "detail", nil)
			assert.Equal(t, tt.want, e.Retryable())
		})
	}
}

func TestUserMessage_NeverLeaksDetail(t *testing.T) {
	for _, kind := range []Kind{KindDeclined, KindRateLimited, KindMalformed, KindAuth, KindUnreachable, KindGeneric} {
		e := New(kind, "stripe.payout", "acct_123 has insufficient funds in sk_live_secret", nil)
		assert.NotContains(t, e.UserMessage(), "acct_123")
		assert.NotContains(t, e.UserMessage(), "sk_live")
	}
}

func TestFromStripe_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{
			name: "rate limited",
			err:  &stripe.Error{HTTPStatusCode: 429},
			want: KindRateLimited,
		},
		{
			name: "bad api key",
			err:  &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: 401},
			want: KindAuth,
		},
		{
			name: "key lacks permission",
			err:  &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: 403},
			want: KindAuth,
		},
		{
			name: "invalid request",
			err:  &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: 400},
			want: KindMalformed,
		},
		{
			name: "card declined",
			err:  &stripe.Error{Type: stripe.ErrorTypeCard, HTTPStatusCode: 402},
			want: KindDeclined,
		},
		{
			name: "server error",
			err:  &stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: 503},
			want: KindUnreachable,
		},
		{
			name: "transport failure",
			err:  fmt.Errorf("dial tcp: connection refused"),
			want: KindUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := FromStripe("stripe.transfer", tt.err)
			assert.Equal(t, tt.want, pe.Kind)
			assert.Equal(t, "stripe.transfer", pe.Op)
		})
	}
}

func TestAsError_Unwrapping(t *testing.T) {
	inner := New(KindDeclined, "stripe.payout", "declined", nil)
	wrapped := fmt.Errorf("process withdrawal: %w", inner)

	pe, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindDeclined, pe.Kind)

	_, ok = AsError(errors.New("plain"))
	assert.False(t, ok)
}
