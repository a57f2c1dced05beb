package types

import "github.com/shopspring/decimal"

// Direction is the side of a logical trade.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Sign returns +1 for long and -1 for short trades.
func (d Direction) Sign() decimal.Decimal {
	if d == DirectionShort {
		return decimal.NewFromInt(-1)
	}

	return decimal.NewFromInt(1)
}

// Opposite returns the direction that offsets d.
func (d Direction) Opposite() Direction {
	if d == DirectionShort {
		return DirectionLong
	}

	return DirectionShort
}

func (d Direction) String() string {
	return string(d)
}

// IsValid reports whether d is one of the known directions.
func (d Direction) IsValid() bool {
	return d == DirectionLong || d == DirectionShort
}

// DirectionFromQuantity infers the trade direction from a signed fill quantity.
func DirectionFromQuantity(quantity decimal.Decimal) Direction {
	if quantity.IsNegative() {
		return DirectionShort
	}

	return DirectionLong
}
