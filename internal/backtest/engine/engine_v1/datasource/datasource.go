package datasource

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-bracket/internal/types"
)

type DataSource interface {
	// Initialize points the data source at a parquet or csv file of bars
	Initialize(path string) error
	// ReadAll yields bars in time order, optionally limited to [start, end]
	ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.Bar, error) bool)
	// ReadLastData returns the latest bar of a symbol
	ReadLastData(symbol string) (types.Bar, error)
	// GetAllSymbols returns the distinct symbols, sorted
	GetAllSymbols() ([]string, error)
	// Count returns the number of bars ReadAll would yield
	Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error)
	// Close releases any resources
	Close() error
}

func inRange(t time.Time, start optional.Option[time.Time], end optional.Option[time.Time]) bool {
	if start.IsSome() && t.Before(start.Unwrap()) {
		return false
	}

	if end.IsSome() && t.After(end.Unwrap()) {
		return false
	}

	return true
}
