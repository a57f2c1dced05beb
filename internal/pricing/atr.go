package pricing

import (
	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/rxtech-lab/argo-bracket/pkg/errors"
	"github.com/shopspring/decimal"
)

// ATR is a simple moving average of the true range over a fixed number of bars.
type ATR struct {
	period    int
	ranges    []decimal.Decimal
	prevClose decimal.Decimal
	hasPrev   bool
}

func NewATR(period int) (*ATR, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "period must be a positive integer, got %d", period)
	}

	return &ATR{period: period}, nil
}

// Update folds the next bar into the average.
func (a *ATR) Update(bar types.Bar) {
	tr := bar.Range()
	if a.hasPrev {
		tr = decimal.Max(tr, bar.High.Sub(a.prevClose).Abs(), bar.Low.Sub(a.prevClose).Abs())
	}

	a.ranges = append(a.ranges, tr)
	if len(a.ranges) > a.period {
		a.ranges = a.ranges[1:]
	}

	a.prevClose = bar.Close
	a.hasPrev = true
}

// IsReady reports whether a full period has been observed.
func (a *ATR) IsReady() bool {
	return len(a.ranges) == a.period
}

// Value returns the current average, zero until the indicator is ready.
func (a *ATR) Value() decimal.Decimal {
	if !a.IsReady() {
		return decimal.Zero
	}

	return decimal.Sum(a.ranges[0], a.ranges[1:]...).Div(decimal.NewFromInt(int64(a.period)))
}
