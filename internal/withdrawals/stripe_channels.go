package withdrawals

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/collabhq/collabpay/internal/money"
	"github.com/collabhq/collabpay/internal/provider"
)

// BankTransfer pays out via a Stripe transfer to the creator's connected
// account. Transfers must be linked to a prior incoming charge
// (source_transaction) so the provider can trace the source of funds; a
// withdrawal with no locatable charge fails fast instead of being rejected
// asynchronously by the provider.
type BankTransfer struct {
	api      *client.API
	currency string
	minimum  money.Cents
	maximum  money.Cents
	pct      float64
	fixed    money.Cents
}

// NewBankTransfer creates the bank transfer channel.
func NewBankTransfer(api *client.API, currency string, min, max money.Cents) *BankTransfer {
	return &BankTransfer{
		api:      api,
		currency: currency,
		minimum:  min,
		maximum:  max,
		pct:      0,
		fixed:    0,
	}
}

func (b *BankTransfer) Method() Method { return MethodBankTransfer }
func (b *BankTransfer) Bounds() (money.Cents, money.Cents) { return b.minimum, b.maximum }
func (b *BankTransfer) Fees() (float64, money.Cents) { return b.pct, b.fixed }

func (b *BankTransfer) Payout(ctx context.Context, req PayoutRequest) (string, error) {
	account := req.Details["account_id"]
	if account == "" {
		return "", provider.New(provider.KindMalformed, "stripe.transfer.new",
			"missing account_id in withdrawal details", nil)
	}
	if req.SourceRef == "" {
		return "", provider.New(provider.KindMalformed, "stripe.transfer.new",
			fmt.Sprintf("no source charge found for withdrawal %s", req.WithdrawalID), nil)
	}

	tr, err := b.api.Transfers.New(&stripe.TransferParams{
		Params:            stripe.Params{Context: ctx},
		Amount:            stripe.Int64(int64(req.Net)),
		Currency:          stripe.String(b.currency),
		Destination:       stripe.String(account),
		SourceTransaction: stripe.String(req.SourceRef),
	})
	if err != nil {
		return "", provider.FromStripe("stripe.transfer.new", err)
	}
	return tr.ID, nil
}

// InstantPayout pushes funds to the creator's debit card or bank account
// via a Stripe instant payout on their connected account. Costs more,
// arrives in minutes.
type InstantPayout struct {
	api      *client.API
	currency string
	minimum  money.Cents
	maximum  money.Cents
	pct      float64
	fixed    money.Cents
}

// NewInstantPayout creates the instant payout channel. pct and fixed are
// the channel's fee parameters.
func NewInstantPayout(api *client.API, currency string, min, max money.Cents, pct float64, fixed money.Cents) *InstantPayout {
	return &InstantPayout{
		api:      api,
		currency: currency,
		minimum:  min,
		maximum:  max,
		pct:      pct,
		fixed:    fixed,
	}
}

func (i *InstantPayout) Method() Method { return MethodInstantPayout }
func (i *InstantPayout) Bounds() (money.Cents, money.Cents) { return i.minimum, i.maximum }
func (i *InstantPayout) Fees() (float64, money.Cents) { return i.pct, i.fixed }

func (i *InstantPayout) Payout(ctx context.Context, req PayoutRequest) (string, error) {
	account := req.Details["account_id"]
	if account == "" {
		return "", provider.New(provider.KindMalformed, "stripe.payout.new",
			"missing account_id in withdrawal details", nil)
	}

	params := &stripe.PayoutParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(int64(req.Net)),
		Currency: stripe.String(i.currency),
		Method:   stripe.String("instant"),
	}
	params.SetStripeAccount(account)

	po, err := i.api.Payouts.New(params)
	if err != nil {
		return "", provider.FromStripe("stripe.payout.new", err)
	}
	return po.ID, nil
}
