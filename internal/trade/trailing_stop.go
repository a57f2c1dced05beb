package trade

import (
	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/rxtech-lab/argo-bracket/pkg/errors"
	"github.com/shopspring/decimal"
)

// NoStopLevel is the ladder index of a trade whose stop has not moved yet.
const NoStopLevel = -1

// TrailingStopPolicy ratchets a stop-loss up an ordered ladder of extension prices.
// Levels[0] is the nearest extension and each following level lies further in profit.
type TrailingStopPolicy struct {
	Levels []decimal.Decimal
}

// StopAdvance is the outcome of one policy evaluation.
type StopAdvance struct {
	Advanced bool
	Index    int
	Stop     decimal.Decimal
}

// Enabled reports whether the ladder can ever move the stop.
func (p TrailingStopPolicy) Enabled() bool {
	return len(p.Levels) > 1
}

// Evaluate decides whether price has run far enough to move the stop one rung.
//
// From NoStopLevel the stop moves to breakeven (the average entry fill) once price passes
// Levels[1]. From index k it moves to Levels[k+1] once price passes Levels[k+2]. At most
// one rung is climbed per call. An index outside the ladder is reported as an error.
func (p TrailingStopPolicy) Evaluate(direction types.Direction, price decimal.Decimal, index int, entryFillPrice decimal.Decimal) (StopAdvance, error) {
	if index < NoStopLevel || index >= len(p.Levels) {
		return StopAdvance{Index: index}, errors.Newf(errors.ErrCodeTrailingStopOverflow,
			"stop level index %d is outside a ladder of %d levels", index, len(p.Levels))
	}

	trigger := index + 2
	if trigger >= len(p.Levels) {
		return StopAdvance{Index: index}, nil
	}

	if !passed(direction, price, p.Levels[trigger]) {
		return StopAdvance{Index: index}, nil
	}

	if index == NoStopLevel {
		return StopAdvance{Advanced: true, Index: 0, Stop: entryFillPrice}, nil
	}

	return StopAdvance{Advanced: true, Index: index + 1, Stop: p.Levels[index+1]}, nil
}

// passed reports whether price is strictly beyond level on the profit side.
func passed(direction types.Direction, price decimal.Decimal, level decimal.Decimal) bool {
	if direction == types.DirectionShort {
		return price.LessThan(level)
	}

	return price.GreaterThan(level)
}
