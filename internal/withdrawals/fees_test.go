package withdrawals

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/collabhq/collabpay/internal/money"
)

func TestComputeFees(t *testing.T) {
	// 100.00 gross, 2% method fee, 5% platform fee, 5.00 fixed.
	fees := ComputeFees(10000, 2.0, 5.0, 500)

	assert.Equal(t, money.Cents(200), fees.PercentageFee)
	assert.Equal(t, money.Cents(500), fees.PlatformFee)
	assert.Equal(t, money.Cents(500), fees.FixedFee)
	assert.Equal(t, money.Cents(1200), fees.TotalFees)
	assert.Equal(t, money.Cents(8800), fees.Net)
	assert.Equal(t, fees.Gross, fees.TotalFees+fees.Net)
}

func TestComputeFees_ZeroFees(t *testing.T) {
	fees := ComputeFees(10000, 0, 0, 0)
	assert.Equal(t, money.Cents(0), fees.TotalFees)
	assert.Equal(t, money.Cents(10000), fees.Net)
}

func TestComputeFees_TruncatesTowardZero(t *testing.T) {
	// 0.99 gross at 2.5%: 2.475 cents truncates to 2.
	fees := ComputeFees(99, 2.5, 0, 0)
	assert.Equal(t, money.Cents(2), fees.PercentageFee)
}

func TestComputeFees_Reproducible(t *testing.T) {
	a := ComputeFees(123457, 2.9, 5.0, 30)
	b := ComputeFees(123457, 2.9, 5.0, 30)
	assert.Equal(t, a, b)
}
