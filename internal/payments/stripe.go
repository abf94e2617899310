package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/collabhq/collabpay/internal/provider"
)

// StripeSettlement confirms payment settlement against Stripe.
type StripeSettlement struct {
	api *client.API
}

// NewStripeSettlement creates a settlement provider using the given secret
// key.
func NewStripeSettlement(secretKey string) *StripeSettlement {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeSettlement{api: api}
}

// Settle verifies the payment intent backing this payment has succeeded,
// capturing it first when the funds are only authorized. The reference of
// the settled charge is returned.
func (s *StripeSettlement) Settle(ctx context.Context, p *Payment) (string, error) {
	if p.ProviderRef == "" {
		return "", provider.New(provider.KindMalformed, "stripe.payment_intent.get",
			fmt.Sprintf("payment %s has no provider reference", p.ID), nil)
	}

	pi, err := s.api.PaymentIntents.Get(p.ProviderRef, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return "", provider.FromStripe("stripe.payment_intent.get", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return chargeRef(pi), nil
	case stripe.PaymentIntentStatusRequiresCapture:
		captured, err := s.api.PaymentIntents.Capture(p.ProviderRef, &stripe.PaymentIntentCaptureParams{
			Params: stripe.Params{Context: ctx},
		})
		if err != nil {
			return "", provider.FromStripe("stripe.payment_intent.capture", err)
		}
		return chargeRef(captured), nil
	default:
		return "", provider.New(provider.KindDeclined, "stripe.payment_intent.get",
			fmt.Sprintf("payment intent %s in state %s", pi.ID, pi.Status), nil)
	}
}

func chargeRef(pi *stripe.PaymentIntent) string {
	if pi.LatestCharge != nil {
		return pi.LatestCharge.ID
	}
	return pi.ID
}

// Refund returns the payment's funds to the brand.
func (s *StripeSettlement) Refund(ctx context.Context, p *Payment) (string, error) {
	ref, err := s.api.Refunds.New(&stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(p.ProviderRef),
	})
	if err != nil {
		return "", provider.FromStripe("stripe.refund.new", err)
	}
	return ref.ID, nil
}

// NoopSettlement trusts every settlement. Used in development mode where no
// provider is configured.
type NoopSettlement struct{}

func (NoopSettlement) Settle(_ context.Context, p *Payment) (string, error) {
	return "settle_dev_" + p.ID, nil
}

func (NoopSettlement) Refund(_ context.Context, p *Payment) (string, error) {
	return "refund_dev_" + p.ID, nil
}
