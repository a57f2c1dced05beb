package pricing

import (
	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/shopspring/decimal"
)

// TickSize answers the minimum price increment of an instrument at a given price.
type TickSize interface {
	MinimumPriceVariation(symbol string, price decimal.Decimal) decimal.Decimal
}

// RoundToTick snaps price to the nearest multiple of increment, rounding halves away from zero.
// A non-positive increment leaves the price unchanged.
func RoundToTick(price decimal.Decimal, increment decimal.Decimal) decimal.Decimal {
	if !increment.IsPositive() {
		return price
	}

	return price.Div(increment).Round(0).Mul(increment)
}

// FixedTickSize returns the same increment for every symbol.
type FixedTickSize decimal.Decimal

func (f FixedTickSize) MinimumPriceVariation(_ string, _ decimal.Decimal) decimal.Decimal {
	return decimal.Decimal(f)
}

// InstrumentTickSize looks increments up in an instrument table. Symbols missing from
// the table fall back to the forex defaults.
type InstrumentTickSize struct {
	instruments map[string]types.Instrument
}

func NewInstrumentTickSize(instruments ...types.Instrument) *InstrumentTickSize {
	table := make(map[string]types.Instrument, len(instruments))
	for _, instrument := range instruments {
		table[instrument.Symbol] = instrument
	}

	return &InstrumentTickSize{instruments: table}
}

// Instrument returns the table entry for symbol.
func (t *InstrumentTickSize) Instrument(symbol string) types.Instrument {
	if instrument, ok := t.instruments[symbol]; ok {
		return instrument
	}

	return types.ForexInstrument(symbol)
}

// MinimumPriceVariation implements TickSize.
func (t *InstrumentTickSize) MinimumPriceVariation(symbol string, _ decimal.Decimal) decimal.Decimal {
	return t.Instrument(symbol).TickSize
}
