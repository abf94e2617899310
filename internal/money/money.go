// Package money provides shared amount parsing, formatting, and fee math.
//
// All amounts are stored as int64 cents (1 unit of currency = 100 cents),
// matching what the payment provider expects on the wire. Decimal strings
// appear only at the API edge.
package money

import (
	"regexp"
	"strconv"
	"strings"
)

const Decimals = 2

// Cents is an amount in the smallest currency unit.
type Cents int64

var validAmount = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,2})?$`)

// Parse converts a decimal string (e.g. "950.00") to cents (95000).
// Returns (0, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - More than two fractional digits are rejected
func Parse(s string) (Cents, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	if !validAmount.MatchString(s) {
		return 0, false
	}

	parts := strings.SplitN(s, ".", 2)
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}
	for len(frac) < Decimals {
		frac += "0"
	}

	n, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, false
	}
	return Cents(n), true
}

// Format converts cents to a decimal string with exactly two decimal
// places (e.g. 95000 -> "950.00").
func (c Cents) Format() string {
	neg := c < 0
	abs := int64(c)
	if neg {
		abs = -abs
	}
	s := strconv.FormatInt(abs, 10)
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	cut := len(s) - Decimals
	out := s[:cut] + "." + s[cut:]
	if neg {
		out = "-" + out
	}
	return out
}

func (c Cents) String() string { return c.Format() }

// Percent applies a percentage to an amount using integer math so the
// result is reproducible across platforms. pct supports up to two decimal
// places (2.5 means 2.5%); anything finer is truncated. The product is
// truncated toward zero.
func Percent(amount Cents, pct float64) Cents {
	bps := int64(pct*100 + 0.5) // 2.5% -> 250 basis points
	return Cents(int64(amount) * bps / 10000)
}
