package strategy

import (
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/shopspring/decimal"
)

// InsideBar signals when a bar trades inside the previous one. The previous bar is the
// reference and its body gives the direction; a doji gives no signal.
type InsideBar struct {
	// MinRange skips mother bars smaller than this, zero disables the filter.
	MinRange decimal.Decimal
	previous map[string]types.Bar
}

func NewInsideBar(minRange decimal.Decimal) *InsideBar {
	return &InsideBar{
		MinRange: minRange,
		previous: make(map[string]types.Bar),
	}
}

func (s *InsideBar) Name() string {
	return "inside_bar"
}

func (s *InsideBar) OnBar(bar types.Bar) optional.Option[Signal] {
	mother, ok := s.previous[bar.Symbol]
	s.previous[bar.Symbol] = bar

	if !ok || !bar.IsInside(mother) {
		return optional.None[Signal]()
	}

	if s.MinRange.IsPositive() && mother.Range().LessThan(s.MinRange) {
		return optional.None[Signal]()
	}

	var direction types.Direction

	switch mother.Close.Cmp(mother.Open) {
	case 1:
		direction = types.DirectionLong
	case -1:
		direction = types.DirectionShort
	default:
		return optional.None[Signal]()
	}

	return optional.Some(Signal{
		Symbol:       bar.Symbol,
		Direction:    direction,
		ReferenceBar: mother,
		Time:         bar.Time,
	})
}

// Reset forgets the previous bars so a new data file starts clean.
func (s *InsideBar) Reset() {
	clear(s.previous)
}
