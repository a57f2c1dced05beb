package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PipSize returns the pip of a currency pair given its quote currency.
func PipSize(quoteCurrency string) decimal.Decimal {
	if strings.EqualFold(quoteCurrency, "JPY") {
		return decimal.New(1, -2)
	}

	return decimal.New(1, -4)
}

// ToPips expresses an absolute price distance in pips.
func ToPips(distance decimal.Decimal, pipSize decimal.Decimal) decimal.Decimal {
	if !pipSize.IsPositive() {
		return decimal.Zero
	}

	return distance.Abs().Div(pipSize)
}
