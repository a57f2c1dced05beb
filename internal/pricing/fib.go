package pricing

import "github.com/shopspring/decimal"

// DefaultExtensionLevels is the ratio ladder used for trailing stops and entry expiry.
// Negative ratios project beyond the end of the reference swing.
var DefaultExtensionLevels = []decimal.Decimal{
	decimal.Zero,
	decimal.RequireFromString("-0.382"),
	decimal.RequireFromString("-0.618"),
	decimal.RequireFromString("-1"),
	decimal.RequireFromString("-1.618"),
}

// RetracementPrice returns the price at level of the swing from start to end. Level 0 is end,
// level 1 is start.
func RetracementPrice(start, end, level decimal.Decimal) decimal.Decimal {
	swing := start.Sub(end).Abs().Mul(level)
	if end.GreaterThanOrEqual(start) {
		return end.Sub(swing)
	}

	return end.Add(swing)
}
