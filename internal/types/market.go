package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is a consolidated price bar.
type Bar struct {
	Symbol string          `csv:"symbol" json:"symbol"`
	Time   time.Time       `csv:"time" json:"time"`
	Open   decimal.Decimal `csv:"open" json:"open"`
	High   decimal.Decimal `csv:"high" json:"high"`
	Low    decimal.Decimal `csv:"low" json:"low"`
	Close  decimal.Decimal `csv:"close" json:"close"`
	Volume decimal.Decimal `csv:"volume" json:"volume"`
}

// Price is the current price carried by the bar.
func (b Bar) Price() decimal.Decimal {
	return b.Close
}

// Range is high minus low.
func (b Bar) Range() decimal.Decimal {
	return b.High.Sub(b.Low)
}

// BodyTop returns the higher of open and close.
func (b Bar) BodyTop() decimal.Decimal {
	return decimal.Max(b.Open, b.Close)
}

// BodyBottom returns the lower of open and close.
func (b Bar) BodyBottom() decimal.Decimal {
	return decimal.Min(b.Open, b.Close)
}

// IsInside reports whether b trades strictly within the range of outer.
func (b Bar) IsInside(outer Bar) bool {
	return b.High.LessThan(outer.High) && b.Low.GreaterThan(outer.Low)
}
