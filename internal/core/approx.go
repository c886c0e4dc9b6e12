package core

import "github.com/shopspring/decimal"

// Epsilon is the tolerance used for every quantity and balance comparison in the ledger.
var Epsilon = decimal.RequireFromString("0.01")

// ApproxLEQ reports whether a <= b within Epsilon.
func ApproxLEQ(a, b decimal.Decimal) bool {
	return a.LessThanOrEqual(b.Add(Epsilon))
}

// ApproxGEQ reports whether a >= b within Epsilon.
func ApproxGEQ(a, b decimal.Decimal) bool {
	return a.GreaterThanOrEqual(b.Sub(Epsilon))
}

// ApproxZero reports whether |a| <= Epsilon.
func ApproxZero(a decimal.Decimal) bool {
	return a.Abs().LessThanOrEqual(Epsilon)
}

// nonNegative clamps d at zero.
func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
