package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Instrument describes the price grid of a tradable symbol.
type Instrument struct {
	Symbol        string          `yaml:"symbol" json:"symbol"`
	BaseCurrency  string          `yaml:"base_currency" json:"base_currency"`
	QuoteCurrency string          `yaml:"quote_currency" json:"quote_currency"`
	TickSize      decimal.Decimal `yaml:"tick_size" json:"tick_size"`
	PipSize       decimal.Decimal `yaml:"pip_size" json:"pip_size"`
}

// ForexInstrument builds the instrument for a six letter currency pair such as "EURUSD"
// or "USD_JPY". JPY quoted pairs use a 0.01 pip, everything else 0.0001; ticks are a tenth of a pip.
func ForexInstrument(symbol string) Instrument {
	pair := strings.ToUpper(strings.NewReplacer("_", "", "/", "").Replace(symbol))

	var base, quote string
	if len(pair) == 6 {
		base, quote = pair[:3], pair[3:]
	}

	pip := decimal.New(1, -4)
	if quote == "JPY" {
		pip = decimal.New(1, -2)
	}

	return Instrument{
		Symbol:        symbol,
		BaseCurrency:  base,
		QuoteCurrency: quote,
		TickSize:      pip.Div(decimal.NewFromInt(10)),
		PipSize:       pip,
	}
}
