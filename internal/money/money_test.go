package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Cents
		wantErr bool
	}{
		{name: "empty string", input: "", want: 0},
		{name: "whole amount", input: "950", want: 95000},
		{name: "two decimals", input: "950.00", want: 95000},
		{name: "one decimal", input: "1.5", want: 150},
		{name: "one cent", input: "0.01", want: 1},
		{name: "typical payout", input: "88.00", want: 8800},
		{name: "large amount", input: "1234567.89", want: 123456789},
		{name: "leading whitespace", input: " 10.00", want: 1000},
		{name: "negative rejected", input: "-1.00", wantErr: true},
		{name: "three decimals rejected", input: "1.005", wantErr: true},
		{name: "double dot rejected", input: "1.0.0", wantErr: true},
		{name: "letters rejected", input: "ten", wantErr: true},
		{name: "bare dot rejected", input: ".", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input)
			if tt.wantErr {
				require.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name   string
		amount Cents
		want   string
	}{
		{name: "zero", amount: 0, want: "0.00"},
		{name: "one cent", amount: 1, want: "0.01"},
		{name: "one dollar", amount: 100, want: "1.00"},
		{name: "typical escrow", amount: 95000, want: "950.00"},
		{name: "with cents", amount: 8812, want: "88.12"},
		{name: "negative", amount: -500, want: "-5.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.amount.Format())
		})
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []string{"0.00", "0.01", "1.00", "950.00", "123456.78"} {
		c, ok := Parse(s)
		require.True(t, ok)
		assert.Equal(t, s, c.Format())
	}
}

func TestPercent(t *testing.T) {
	// Withdrawal fee scenario: 2% of 100.00 is 2.00, 5% is 5.00.
	assert.Equal(t, Cents(200), Percent(10000, 2))
	assert.Equal(t, Cents(500), Percent(10000, 5))
	// Fractional percentages.
	assert.Equal(t, Cents(250), Percent(10000, 2.5))
	// Truncation toward zero, never rounding up.
	assert.Equal(t, Cents(33), Percent(999, 3.35))
	assert.Equal(t, Cents(0), Percent(1, 2))
}
