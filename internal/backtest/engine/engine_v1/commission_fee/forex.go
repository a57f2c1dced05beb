package commission_fee

import "github.com/shopspring/decimal"

// DefaultForexRatePerMillion is charged per million units traded, each side.
var DefaultForexRatePerMillion = decimal.NewFromInt(20)

var million = decimal.NewFromInt(1_000_000)

// ForexCommissionFee charges a flat rate per million units of base currency,
// rounded to cents.
type ForexCommissionFee struct {
	ratePerMillion decimal.Decimal
}

func NewForexCommissionFee(ratePerMillion decimal.Decimal) CommissionFee {
	return &ForexCommissionFee{ratePerMillion: ratePerMillion}
}

func (c *ForexCommissionFee) Calculate(quantity decimal.Decimal) decimal.Decimal {
	return quantity.Abs().Div(million).Mul(c.ratePerMillion).Round(2)
}
