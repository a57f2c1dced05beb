package commission_fee

import "github.com/shopspring/decimal"

var (
	ibPerUnit = decimal.RequireFromString("0.005")
	ibMinimum = decimal.NewFromInt(1)
)

type InteractiveBrokerCommissionFee struct {
}

func NewInteractiveBrokerCommissionFee() CommissionFee {
	return &InteractiveBrokerCommissionFee{}
}

func (c *InteractiveBrokerCommissionFee) Calculate(quantity decimal.Decimal) decimal.Decimal {
	fee := ibPerUnit.Mul(quantity.Abs())
	if fee.LessThan(ibMinimum) {
		return ibMinimum
	}

	return fee
}
