package withdrawals

import "github.com/collabhq/collabpay/internal/money"

// FeeBreakdown itemizes what a withdrawal costs. Pure data, no I/O; the
// same inputs always produce the same breakdown.
type FeeBreakdown struct {
	Gross         money.Cents `json:"gross"`
	PercentageFee money.Cents `json:"percentageFee"` // method-specific percentage of gross
	PlatformFee   money.Cents `json:"platformFee"`   // platform percentage of gross
	FixedFee      money.Cents `json:"fixedFee"`
	TotalFees     money.Cents `json:"totalFees"`
	Net           money.Cents `json:"net"` // what actually reaches the creator
}

// ComputeFees computes the fee breakdown for a gross withdrawal amount.
// Percentages apply to gross independently; the fixed fee is added on top.
func ComputeFees(gross money.Cents, methodPct, platformPct float64, fixedFee money.Cents) FeeBreakdown {
	percentageFee := money.Percent(gross, methodPct)
	platformFee := money.Percent(gross, platformPct)
	total := percentageFee + platformFee + fixedFee
	return FeeBreakdown{
		Gross:         gross,
		PercentageFee: percentageFee,
		PlatformFee:   platformFee,
		FixedFee:      fixedFee,
		TotalFees:     total,
		Net:           gross - total,
	}
}
