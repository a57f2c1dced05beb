package engine

import (
	"context"

	"github.com/rxtech-lab/argo-bracket/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-bracket/internal/strategy"
	"github.com/rxtech-lab/argo-bracket/internal/types"
)

// Lifecycle callback types for backtest phases
// All callbacks with error return can abort execution if they return an error

// OnBacktestStartCallback is called when the entire backtest begins.
type OnBacktestStartCallback func(totalStrategies int, totalDataFiles int) error

// OnBacktestEndCallback is called when the entire backtest completes (always called via defer).
type OnBacktestEndCallback func(err error)

// OnRunStartCallback is called when processing of a strategy+data file combination begins.
// runID is a unique identifier for this run, generated before processing starts.
type OnRunStartCallback func(runID string, strategyName string, dataFilePath string, totalDataPoints int) error

// OnRunEndCallback is called when processing of a strategy+data file combination ends.
type OnRunEndCallback func(runID string, strategyName string, dataFilePath string, resultFolderPath string)

// OnProcessDataCallback is called for each data point processed.
type OnProcessDataCallback func(current int, total int) error

// OnTradeSetupCallback is called once per finished trade setup, filled or not.
type OnTradeSetupCallback func(setup types.TradeSetupData)

// LifecycleCallbacks holds all lifecycle callback functions for the backtest engine.
// All fields are pointers - nil means no callback will be invoked.
type LifecycleCallbacks struct {
	OnBacktestStart *OnBacktestStartCallback
	OnBacktestEnd   *OnBacktestEndCallback
	OnRunStart      *OnRunStartCallback
	OnRunEnd        *OnRunEndCallback
	OnProcessData   *OnProcessDataCallback
	OnTradeSetup    *OnTradeSetupCallback
}

type Engine interface {
	// Initialize the engine with the given YAML configuration.
	Initialize(config string) error
	// SetDataPath sets the market data files to run on. Accepts glob patterns
	// (e.g. "data/*.parquet"); every match is a separate run.
	SetDataPath(path string) error
	// SetResultsFolder sets the output directory. Each run writes to
	// <folder>/<strategy>/<time range>/<data file>.
	SetResultsFolder(folder string) error
	// LoadStrategy adds a strategy. Could be called multiple times to load multiple strategies.
	LoadStrategy(strategy strategy.Strategy) error
	// SetDataSource sets the data source for the engine.
	SetDataSource(dataSource datasource.DataSource) error
	// GetConfigSchema returns the schema of the engine configuration
	GetConfigSchema() (string, error)
	// Run runs every strategy over every data file.
	// The context can be used to cancel the backtest operation.
	Run(ctx context.Context, callbacks LifecycleCallbacks) error
}
