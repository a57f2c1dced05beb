package engine

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-bracket/internal/backtest/engine"
	"github.com/rxtech-lab/argo-bracket/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-bracket/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-bracket/internal/logger"
	"github.com/rxtech-lab/argo-bracket/internal/pricing"
	"github.com/rxtech-lab/argo-bracket/internal/strategy"
	"github.com/rxtech-lab/argo-bracket/internal/trade"
	"github.com/rxtech-lab/argo-bracket/internal/tradebuilder"
	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/rxtech-lab/argo-bracket/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// resetter is implemented by strategies that keep state between bars.
type resetter interface {
	Reset()
}

type BacktestEngineV1 struct {
	config        BacktestEngineV1Config
	strategies    []strategy.Strategy
	dataPaths     []string
	resultsFolder string
	log           *logger.Logger
	state         *BacktestState
	journal       *BacktestJournal
	venue         *BacktestTrading
	rates         pricing.RateProvider
	instruments   *pricing.InstrumentTickSize
	datasource    datasource.DataSource
}

// backtestRun is the per data file state of a strategy run.
type backtestRun struct {
	id       string
	strategy strategy.Strategy
	builder  *tradebuilder.TradeBuilder
	repo     *trade.Repository
	onSetup  *engine.OnTradeSetupCallback
	// atrs holds one average true range per symbol when the atr price model is used.
	atrs map[string]*pricing.ATR
}

// NewBacktestEngineV1 creates an engine logging to log, or to a new production logger
// when log is nil.
func NewBacktestEngineV1(log *logger.Logger) (engine.Engine, error) {
	if log == nil {
		var err error

		log, err = logger.NewLogger()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeBacktestInitFailed, "failed to create logger", err)
		}
	}

	return &BacktestEngineV1{
		config:      EmptyConfig(),
		log:         log.Named("backtest_engine"),
		instruments: pricing.NewInstrumentTickSize(),
	}, nil
}

// Initialize implements engine.Engine.
func (b *BacktestEngineV1) Initialize(config string) error {
	if err := yaml.Unmarshal([]byte(config), &b.config); err != nil {
		return errors.Wrap(errors.ErrCodeBacktestConfigError, "failed to parse config", err)
	}

	if err := b.config.Validate(); err != nil {
		return err
	}

	b.log.Debug("Backtest engine initialized", zap.String("config", config))

	if b.state == nil {
		state, err := NewBacktestState(b.log)
		if err != nil {
			return err
		}

		b.state = state
	}

	if err := b.state.Initialize(); err != nil {
		return errors.Wrap(errors.ErrCodeBacktestInitFailed, "failed to initialize state", err)
	}

	if b.journal == nil {
		journal, err := NewBacktestJournal(b.log)
		if err != nil {
			return err
		}

		b.journal = journal
	}

	b.rates = pricing.FixedRate(decimal.NewFromFloat(b.config.ConversionRate))
	b.venue = NewBacktestTrading(
		b.log,
		decimal.NewFromFloat(b.config.InitialCapital),
		commission_fee.GetCommissionFeeHandler(b.config.Broker),
		b.rates,
	)

	return nil
}

// LoadStrategy implements engine.Engine.
func (b *BacktestEngineV1) LoadStrategy(strategy strategy.Strategy) error {
	if strategy == nil {
		return errors.New(errors.ErrCodeInvalidParameter, "strategy is nil")
	}

	b.strategies = append(b.strategies, strategy)
	b.log.Debug("Strategy loaded",
		zap.String("strategy", strategy.Name()),
		zap.Int("total_strategies", len(b.strategies)),
	)

	return nil
}

// SetDataPath implements engine.Engine.
func (b *BacktestEngineV1) SetDataPath(path string) error {
	// use glob to get all the files that match the path
	files, err := filepath.Glob(path)
	if err != nil {
		b.log.Error("Failed to set data path",
			zap.String("path", path),
			zap.Error(err),
		)

		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid data path pattern", err)
	}

	absolutePaths := make([]string, len(files))

	for i, file := range files {
		absPath, err := filepath.Abs(file)
		if err != nil {
			b.log.Error("Failed to get absolute path",
				zap.String("path", file),
				zap.Error(err),
			)

			return errors.Wrapf(errors.ErrCodeInvalidParameter, err, "failed to resolve %s", file)
		}

		absolutePaths[i] = absPath
	}

	b.dataPaths = absolutePaths
	b.log.Debug("Data paths set",
		zap.Strings("files", absolutePaths),
	)

	return nil
}

// SetResultsFolder implements engine.Engine.
func (b *BacktestEngineV1) SetResultsFolder(folder string) error {
	b.resultsFolder = folder
	b.log.Debug("Results folder set",
		zap.String("folder", folder),
	)

	return nil
}

func (b *BacktestEngineV1) SetDataSource(datasource datasource.DataSource) error {
	b.datasource = datasource

	return nil
}

// Run implements engine.Engine.
func (b *BacktestEngineV1) Run(ctx context.Context, callbacks engine.LifecycleCallbacks) (err error) {
	if callbacks.OnBacktestEnd != nil {
		defer func() {
			(*callbacks.OnBacktestEnd)(err)
		}()
	}

	if err = b.preRunCheck(); err != nil {
		return err
	}

	if callbacks.OnBacktestStart != nil {
		if err = (*callbacks.OnBacktestStart)(len(b.strategies), len(b.dataPaths)); err != nil {
			return errors.Wrap(errors.ErrCodeCallbackFailed, "backtest start callback failed", err)
		}
	}

	for _, strategy := range b.strategies {
		for _, dataPath := range b.dataPaths {
			if err = b.runSingle(ctx, strategy, dataPath, callbacks); err != nil {
				return err
			}
		}
	}

	return nil
}

func (b *BacktestEngineV1) runSingle(ctx context.Context, strategy strategy.Strategy, dataPath string, callbacks engine.LifecycleCallbacks) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	run := &backtestRun{
		id:       uuid.New().String(),
		strategy: strategy,
		builder:  tradebuilder.NewTradeBuilder(b.log),
		repo:     trade.NewRepository(b.log),
		onSetup:  callbacks.OnTradeSetup,
		atrs:     make(map[string]*pricing.ATR),
	}

	resultFolderPath := getResultFolder(b.resultsFolder, strategy.Name(), dataPath, b.config.StartTime, b.config.EndTime)

	b.log.Info("Running strategy",
		zap.String("run_id", run.id),
		zap.String("strategy", strategy.Name()),
		zap.String("data", dataPath),
		zap.String("result", resultFolderPath),
	)

	if err := b.datasource.Initialize(dataPath); err != nil {
		return errors.Wrapf(errors.ErrCodeBacktestNoDatasource, err, "failed to initialize data source for %s", dataPath)
	}

	total, err := b.datasource.Count(b.config.StartTime, b.config.EndTime)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to count market data", err)
	}

	if callbacks.OnRunStart != nil {
		if err := (*callbacks.OnRunStart)(run.id, strategy.Name(), dataPath, total); err != nil {
			return errors.Wrap(errors.ErrCodeCallbackFailed, "run start callback failed", err)
		}
	}

	if err := b.cleanUpRun(strategy); err != nil {
		return err
	}

	current := 0

	for bar, err := range b.datasource.ReadAll(b.config.StartTime, b.config.EndTime) {
		if err != nil {
			return errors.Wrap(errors.ErrCodeQueryFailed, "failed to read market data", err)
		}

		if err := ctx.Err(); err != nil {
			b.log.Info("Backtest canceled", zap.String("run_id", run.id), zap.Int("processed", current))

			return err
		}

		if err := b.processBar(run, bar); err != nil {
			return err
		}

		current++

		if callbacks.OnProcessData != nil {
			if err := (*callbacks.OnProcessData)(current, total); err != nil {
				return errors.Wrap(errors.ErrCodeCallbackFailed, "process data callback failed", err)
			}
		}
	}

	if err := b.finishRun(run); err != nil {
		return err
	}

	if err := b.writeResults(run, resultFolderPath); err != nil {
		return err
	}

	if callbacks.OnRunEnd != nil {
		(*callbacks.OnRunEnd)(run.id, strategy.Name(), dataPath, resultFolderPath)
	}

	return nil
}

// processBar runs one bar through the venue, the trades and the strategy, in that order.
func (b *BacktestEngineV1) processBar(run *backtestRun, bar types.Bar) error {
	b.venue.UpdateCurrentMarketData(bar)

	if err := b.dispatchEvents(run); err != nil {
		return err
	}

	if err := run.repo.OnDataUpdate(bar); err != nil {
		b.log.Warn("Trade update failed", zap.String("symbol", bar.Symbol), zap.Error(err))
	}

	run.builder.SetBarRange(bar)

	if err := b.updateATR(run, bar); err != nil {
		return err
	}

	if signal := run.strategy.OnBar(bar); signal.IsSome() {
		b.openTrade(run, signal.Unwrap(), bar)
	}

	if err := b.dispatchEvents(run); err != nil {
		return err
	}

	return b.collect(run)
}

// updateATR folds bar into the average true range of its symbol.
func (b *BacktestEngineV1) updateATR(run *backtestRun, bar types.Bar) error {
	if b.config.PriceModel != PriceModelATR {
		return nil
	}

	atr, ok := run.atrs[bar.Symbol]
	if !ok {
		var err error

		atr, err = pricing.NewATR(b.config.ATR.Period)
		if err != nil {
			return errors.Wrap(errors.ErrCodeBacktestConfigError, "invalid atr period", err)
		}

		run.atrs[bar.Symbol] = atr
	}

	atr.Update(bar)

	return nil
}

// priceModel builds the configured price model for signal. It returns false when the
// model has nothing to price with yet.
func (b *BacktestEngineV1) priceModel(run *backtestRun, signal strategy.Signal, bar types.Bar, pipSize decimal.Decimal) (pricing.PriceModel, bool) {
	if b.config.PriceModel != PriceModelATR {
		return pricing.NewFibLevels(signal.ReferenceBar, signal.Direction, pipSize, b.config.FibSettings()), true
	}

	atr, ok := run.atrs[signal.Symbol]
	if !ok || !atr.IsReady() {
		return nil, false
	}

	return pricing.ATRPrices{
		Current:    bar.Close,
		ATR:        atr.Value(),
		StopStep:   decimal.NewFromFloat(b.config.ATR.StopStep),
		TargetStep: decimal.NewFromFloat(b.config.ATR.TargetStep),
	}, true
}

// openTrade turns a signal into a managed bracket trade. Trades that fail to open are
// logged and skipped.
func (b *BacktestEngineV1) openTrade(run *backtestRun, signal strategy.Signal, bar types.Bar) {
	minRange := decimal.NewFromFloat(b.config.MinBarRange)
	if signal.ReferenceBar.Range().LessThan(minRange) {
		b.log.Debug("Reference bar below minimum range",
			zap.String("symbol", signal.Symbol),
			zap.String("range", signal.ReferenceBar.Range().String()),
		)
		b.journal.Record(JournalEntry{
			Time:    signal.Time,
			Symbol:  signal.Symbol,
			Level:   JournalLevelInfo,
			Event:   "signal_skipped",
			Message: "reference bar below minimum range",
			Fields: map[string]string{
				"direction": signal.Direction.String(),
				"range":     signal.ReferenceBar.Range().String(),
			},
		})

		return
	}

	instrument := b.instruments.Instrument(signal.Symbol)

	model, ok := b.priceModel(run, signal, bar, instrument.PipSize)
	if !ok {
		b.log.Debug("Average true range not ready", zap.String("symbol", signal.Symbol))
		b.journal.Record(JournalEntry{
			Time:    signal.Time,
			Symbol:  signal.Symbol,
			Level:   JournalLevelInfo,
			Event:   "signal_skipped",
			Message: "average true range not ready",
			Fields:  map[string]string{"direction": signal.Direction.String()},
		})

		return
	}

	var sizer pricing.Sizer = pricing.RiskPercentSizer{
		Account:     b.venue,
		Rates:       b.rates,
		Instruments: b.instruments,
		RiskPercent: decimal.NewFromFloat(b.config.RiskPercent),
	}
	if b.config.FixedQuantity > 0 {
		sizer = pricing.FixedSize(decimal.NewFromFloat(b.config.FixedQuantity))
	}

	managed := trade.NewManagedTrade(b.log, b.venue, run.builder, trade.Params{
		Symbol:         signal.Symbol,
		Direction:      signal.Direction,
		EntryOrderType: b.config.EntryOrderType,
		BarTime:        signal.ReferenceBar.Time,
		PipSize:        instrument.PipSize,
		PriceModel:     model,
		TickSize:       b.instruments,
		Sizer:          sizer,
		TrailingStop:   b.config.TrailingStop,
	})

	if err := run.repo.Open(managed, signal.Time); err != nil {
		b.log.Warn("Failed to open trade",
			zap.String("symbol", signal.Symbol),
			zap.Stringer("direction", signal.Direction),
			zap.Error(err),
		)
		b.journal.Record(JournalEntry{
			Time:    signal.Time,
			Symbol:  signal.Symbol,
			Level:   JournalLevelWarn,
			Event:   "open_failed",
			Message: err.Error(),
			Fields:  map[string]string{"direction": signal.Direction.String()},
		})
	}
}

// dispatchEvents drains the venue until handling events queues no new ones. Fills reach
// the trade builder before the trade that owns the order.
func (b *BacktestEngineV1) dispatchEvents(run *backtestRun) error {
	for events := b.venue.DrainEvents(); len(events) > 0; events = b.venue.DrainEvents() {
		for _, event := range events {
			if err := b.state.RecordOrderEvent(event); err != nil {
				return err
			}

			if event.IsFill() {
				run.builder.ProcessFill(event, b.rates.ConversionRate(event.Symbol), event.Fee, decimal.NewFromInt(1))
			}

			if err := run.repo.OnOrderEvent(event); err != nil {
				level, name := JournalLevelError, "event_failed"
				if errors.IsProtocolViolation(err) {
					level, name = JournalLevelWarn, "event_ignored"
					b.log.Warn("Ignoring event", zap.Stringer("event", event), zap.Error(err))
				} else {
					b.log.Error("Trade failed to handle event", zap.Stringer("event", event), zap.Error(err))
				}

				b.journal.Record(JournalEntry{
					Time:    event.Time,
					Symbol:  event.Symbol,
					Level:   level,
					Event:   name,
					Message: err.Error(),
					Fields: map[string]string{
						"order_id": strconv.Itoa(event.OrderID),
						"status":   string(event.Status),
					},
				})
			}
		}
	}

	return nil
}

// collect records the setups of every settled trade.
func (b *BacktestEngineV1) collect(run *backtestRun) error {
	for _, setup := range run.repo.Cleanup() {
		if err := b.state.RecordTradeSetup(setup); err != nil {
			return err
		}

		if run.onSetup != nil {
			(*run.onSetup)(setup)
		}
	}

	return nil
}

// finishRun closes whatever is still working at the last bar.
func (b *BacktestEngineV1) finishRun(run *backtestRun) error {
	if err := run.repo.CloseAll(); err != nil {
		b.log.Warn("Failed to close trades at end of run", zap.Error(err))
	}

	if err := b.dispatchEvents(run); err != nil {
		return err
	}

	if err := b.collect(run); err != nil {
		return err
	}

	if remaining := run.repo.Len(); remaining > 0 {
		b.log.Warn("Trades left unsettled at end of run", zap.Int("count", remaining))
		b.journal.Record(JournalEntry{
			Level:   JournalLevelWarn,
			Event:   "unsettled_trades",
			Message: "trades left unsettled at end of run",
			Fields:  map[string]string{"count": strconv.Itoa(remaining)},
		})
	}

	return b.state.RecordClosedTrades(run.builder.ClosedTrades())
}

func (b *BacktestEngineV1) GetConfigSchema() (string, error) {
	config := b.config

	return config.GenerateSchemaJSON()
}

func (b *BacktestEngineV1) writeResults(run *backtestRun, resultFolderPath string) error {
	stats, err := b.state.GetStats()
	if err != nil {
		return err
	}

	stats.RunID = run.id
	stats.UnmatchedFills = len(run.builder.UnmatchedFills())

	if err := os.RemoveAll(resultFolderPath); err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to clear result folder", err)
	}

	if err := b.state.Write(resultFolderPath, stats); err != nil {
		return err
	}

	return b.journal.Write(resultFolderPath)
}

// cleanUpRun resets everything a previous run left behind.
func (b *BacktestEngineV1) cleanUpRun(strategy strategy.Strategy) error {
	if err := b.state.Cleanup(); err != nil {
		return err
	}

	if err := b.journal.Cleanup(); err != nil {
		return err
	}

	b.venue.Reset(decimal.NewFromFloat(b.config.InitialCapital))

	if r, ok := strategy.(resetter); ok {
		r.Reset()
	}

	return nil
}

func (b *BacktestEngineV1) preRunCheck() error {
	if b.state == nil || b.journal == nil || b.venue == nil {
		return errors.New(errors.ErrCodeBacktestStateNil, "engine is not initialized")
	}

	if len(b.strategies) == 0 {
		b.log.Error("No strategies loaded")

		return errors.New(errors.ErrCodeBacktestNoStrategy, "no strategies loaded")
	}

	if len(b.dataPaths) == 0 {
		b.log.Error("No data paths loaded")

		return errors.New(errors.ErrCodeBacktestNoDatasource, "no data paths loaded")
	}

	if b.resultsFolder == "" {
		b.log.Error("No results folder set")

		return errors.New(errors.ErrCodeBacktestNoResultsDir, "no results folder set")
	}

	if b.datasource == nil {
		b.log.Error("No datasource set")

		return errors.New(errors.ErrCodeBacktestNoDatasource, "no datasource set")
	}

	return nil
}
