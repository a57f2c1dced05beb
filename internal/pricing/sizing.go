package pricing

import (
	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/rxtech-lab/argo-bracket/pkg/errors"
	"github.com/shopspring/decimal"
)

// Sizer turns the risk of a setup into a signed position size.
type Sizer interface {
	Size(symbol string, direction types.Direction, riskPips decimal.Decimal) (decimal.Decimal, error)
}

// AccountQuery exposes the account figures position sizing depends on.
type AccountQuery interface {
	MarginRemaining() decimal.Decimal
}

// RateProvider converts quote currency amounts into the account currency.
type RateProvider interface {
	ConversionRate(symbol string) decimal.Decimal
}

// FixedRate applies the same conversion rate to every symbol.
type FixedRate decimal.Decimal

func (r FixedRate) ConversionRate(_ string) decimal.Decimal {
	return decimal.Decimal(r)
}

// FixedSize trades a constant number of units.
type FixedSize decimal.Decimal

func (f FixedSize) Size(_ string, direction types.Direction, _ decimal.Decimal) (decimal.Decimal, error) {
	return decimal.Decimal(f).Abs().Mul(direction.Sign()), nil
}

// RiskPercentSizer risks a fixed fraction of the remaining margin between entry and stop.
type RiskPercentSizer struct {
	Account     AccountQuery
	Rates       RateProvider
	Instruments *InstrumentTickSize
	RiskPercent decimal.Decimal
}

// Size implements Sizer. The result is truncated to whole units, so a tiny account or a
// very wide stop yields zero.
func (s RiskPercentSizer) Size(symbol string, direction types.Direction, riskPips decimal.Decimal) (decimal.Decimal, error) {
	conversion := s.Rates.ConversionRate(symbol)
	if !conversion.IsPositive() {
		return decimal.Zero, errors.Newf(errors.ErrCodeInvalidConversion, "conversion rate for %s must be positive, got %s", symbol, conversion)
	}

	if !riskPips.IsPositive() {
		return decimal.Zero, nil
	}

	riskAmount := s.Account.MarginRemaining().Mul(s.RiskPercent).Div(conversion)
	pipValue := riskAmount.Div(riskPips)
	units := pipValue.Div(s.Instruments.Instrument(symbol).PipSize).Truncate(0)

	return units.Mul(direction.Sign()), nil
}
