package pricing

import (
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/rxtech-lab/argo-bracket/pkg/errors"
	"github.com/shopspring/decimal"
)

// Levels are the reference prices of one bracket trade, before tick rounding.
type Levels struct {
	Entry  decimal.Decimal
	Stop   decimal.Decimal
	Target decimal.Decimal
	// Expire cancels a pending entry once price trades past it.
	Expire optional.Option[decimal.Decimal]
	// Extensions is the ordered trailing-stop ladder, nearest level first.
	Extensions []decimal.Decimal
}

// Validate checks that stop and target sit on the correct sides of entry.
func (l Levels) Validate(direction types.Direction) error {
	if !l.Entry.IsPositive() || !l.Stop.IsPositive() || !l.Target.IsPositive() {
		return errors.Newf(errors.ErrCodeInvalidPriceModel, "prices must be positive: entry=%s stop=%s target=%s", l.Entry, l.Stop, l.Target)
	}

	sign := direction.Sign()
	if l.Entry.Sub(l.Stop).Mul(sign).Sign() <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPriceModel, "%s stop %s is not beyond entry %s", direction, l.Stop, l.Entry)
	}

	if l.Target.Sub(l.Entry).Mul(sign).Sign() <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPriceModel, "%s target %s is not beyond entry %s", direction, l.Target, l.Entry)
	}

	return nil
}

// PriceModel supplies entry, stop and target prices for a trade direction.
type PriceModel interface {
	Prices(direction types.Direction) (Levels, error)
}

// PriceModelFunc adapts a plain function to PriceModel.
type PriceModelFunc func(direction types.Direction) (Levels, error)

func (f PriceModelFunc) Prices(direction types.Direction) (Levels, error) {
	return f(direction)
}

// FixedPrices returns the same levels regardless of direction.
type FixedPrices Levels

func (f FixedPrices) Prices(_ types.Direction) (Levels, error) {
	return Levels(f), nil
}

// FibSettings are the retracement ratios used by FibLevels.
type FibSettings struct {
	EntryLevel  decimal.Decimal
	StopLevel   decimal.Decimal
	TargetLevel decimal.Decimal
	ExpireLevel optional.Option[decimal.Decimal]
	// ExtensionLevels builds the trailing-stop ladder. Empty disables trailing.
	ExtensionLevels []decimal.Decimal
}

// FibLevels prices a trade off the swing of a reference bar.
type FibLevels struct {
	Start    decimal.Decimal
	End      decimal.Decimal
	PipSize  decimal.Decimal
	Settings FibSettings
}

// NewFibLevels measures the swing of bar in the trade direction: low to high for longs,
// high to low for shorts.
func NewFibLevels(bar types.Bar, direction types.Direction, pipSize decimal.Decimal, settings FibSettings) FibLevels {
	start, end := bar.Low, bar.High
	if direction == types.DirectionShort {
		start, end = bar.High, bar.Low
	}

	return FibLevels{
		Start:    start,
		End:      end,
		PipSize:  pipSize,
		Settings: settings,
	}
}

// Prices implements PriceModel. The entry is shifted one pip toward the trade so a limit
// entry sits just inside the retracement level.
func (f FibLevels) Prices(direction types.Direction) (Levels, error) {
	if f.Start.Equal(f.End) {
		return Levels{}, errors.Newf(errors.ErrCodeInvalidPriceModel, "reference swing has no range: %s", f.Start)
	}

	entry := RetracementPrice(f.Start, f.End, f.Settings.EntryLevel)
	if direction == types.DirectionShort {
		entry = entry.Add(f.PipSize)
	} else {
		entry = entry.Sub(f.PipSize)
	}

	levels := Levels{
		Entry:  entry,
		Stop:   RetracementPrice(f.Start, f.End, f.Settings.StopLevel),
		Target: RetracementPrice(f.Start, f.End, f.Settings.TargetLevel),
		Expire: optional.None[decimal.Decimal](),
	}

	if f.Settings.ExpireLevel.IsSome() {
		levels.Expire = optional.Some(RetracementPrice(f.Start, f.End, f.Settings.ExpireLevel.Unwrap()))
	}

	for _, level := range f.Settings.ExtensionLevels {
		levels.Extensions = append(levels.Extensions, RetracementPrice(f.Start, f.End, level))
	}

	if err := levels.Validate(direction); err != nil {
		return Levels{}, err
	}

	return levels, nil
}

// ATRPrices enters at the current price and places stop and target whole multiples of
// the average true range away.
type ATRPrices struct {
	Current    decimal.Decimal
	ATR        decimal.Decimal
	StopStep   decimal.Decimal
	TargetStep decimal.Decimal
}

func (a ATRPrices) Prices(direction types.Direction) (Levels, error) {
	if !a.ATR.IsPositive() {
		return Levels{}, errors.New(errors.ErrCodeInvalidPriceModel, "average true range is not ready")
	}

	sign := direction.Sign()
	levels := Levels{
		Entry:  a.Current,
		Stop:   a.Current.Sub(sign.Mul(a.StopStep).Mul(a.ATR)),
		Target: a.Current.Add(sign.Mul(a.TargetStep).Mul(a.ATR)),
	}

	if err := levels.Validate(direction); err != nil {
		return Levels{}, err
	}

	return levels, nil
}
