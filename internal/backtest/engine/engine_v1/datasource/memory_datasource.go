package datasource

import (
	"cmp"
	"slices"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/rxtech-lab/argo-bracket/pkg/errors"
)

// MemoryDataSource serves bars held in memory. Initialize is a no-op, so it can stand in
// for DuckDBDataSource when bars are generated rather than read from disk.
type MemoryDataSource struct {
	bars []types.Bar
}

// NewMemoryDataSource sorts a copy of bars by time, then symbol.
func NewMemoryDataSource(bars []types.Bar) *MemoryDataSource {
	sorted := slices.Clone(bars)
	slices.SortStableFunc(sorted, func(a, b types.Bar) int {
		if c := a.Time.Compare(b.Time); c != 0 {
			return c
		}

		return cmp.Compare(a.Symbol, b.Symbol)
	})

	return &MemoryDataSource{bars: sorted}
}

func (m *MemoryDataSource) Initialize(_ string) error {
	return nil
}

func (m *MemoryDataSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.Bar, error) bool) {
	return func(yield func(types.Bar, error) bool) {
		for _, bar := range m.bars {
			if !inRange(bar.Time, start, end) {
				continue
			}

			if !yield(bar, nil) {
				return
			}
		}
	}
}

func (m *MemoryDataSource) ReadLastData(symbol string) (types.Bar, error) {
	for i := len(m.bars) - 1; i >= 0; i-- {
		if m.bars[i].Symbol == symbol {
			return m.bars[i], nil
		}
	}

	return types.Bar{}, errors.Newf(errors.ErrCodeDataNotFound, "no data found for symbol %s", symbol)
}

func (m *MemoryDataSource) GetAllSymbols() ([]string, error) {
	var symbols []string

	for _, bar := range m.bars {
		if !slices.Contains(symbols, bar.Symbol) {
			symbols = append(symbols, bar.Symbol)
		}
	}

	slices.Sort(symbols)

	return symbols, nil
}

func (m *MemoryDataSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	count := 0

	for _, bar := range m.bars {
		if inRange(bar.Time, start, end) {
			count++
		}
	}

	return count, nil
}

func (m *MemoryDataSource) Close() error {
	return nil
}
