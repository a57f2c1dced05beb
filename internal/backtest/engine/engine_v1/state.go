package engine

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-bracket/internal/logger"
	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/rxtech-lab/argo-bracket/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// BacktestStats summarises one run.
type BacktestStats struct {
	RunID           string          `yaml:"run_id" json:"run_id"`
	Setups          int             `yaml:"setups" json:"setups"`
	Filled          int             `yaml:"filled" json:"filled"`
	Canceled        int             `yaml:"canceled" json:"canceled"`
	Wins            int             `yaml:"wins" json:"wins"`
	Losses          int             `yaml:"losses" json:"losses"`
	TotalPips       decimal.Decimal `yaml:"total_pips" json:"total_pips"`
	TotalProfitLoss decimal.Decimal `yaml:"total_profit_loss" json:"total_profit_loss"`
	TotalFees       decimal.Decimal `yaml:"total_fees" json:"total_fees"`
	UnmatchedFills  int             `yaml:"unmatched_fills" json:"unmatched_fills"`
}

// MarshalYAML writes decimals as plain numbers.
func (s BacktestStats) MarshalYAML() (any, error) {
	type plain struct {
		RunID           string  `yaml:"run_id"`
		Setups          int     `yaml:"setups"`
		Filled          int     `yaml:"filled"`
		Canceled        int     `yaml:"canceled"`
		Wins            int     `yaml:"wins"`
		Losses          int     `yaml:"losses"`
		TotalPips       float64 `yaml:"total_pips"`
		TotalProfitLoss float64 `yaml:"total_profit_loss"`
		TotalFees       float64 `yaml:"total_fees"`
		UnmatchedFills  int     `yaml:"unmatched_fills"`
	}

	return plain{
		RunID:           s.RunID,
		Setups:          s.Setups,
		Filled:          s.Filled,
		Canceled:        s.Canceled,
		Wins:            s.Wins,
		Losses:          s.Losses,
		TotalPips:       s.TotalPips.InexactFloat64(),
		TotalProfitLoss: s.TotalProfitLoss.InexactFloat64(),
		TotalFees:       s.TotalFees.InexactFloat64(),
		UnmatchedFills:  s.UnmatchedFills,
	}, nil
}

// BacktestState keeps the records of a run in an in-memory DuckDB database until they
// are written out as parquet files.
type BacktestState struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
	setups []types.TradeSetupData
}

func NewBacktestState(log *logger.Logger) (*BacktestState, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		log.Error("Failed to open database", zap.Error(err))

		return nil, errors.Wrap(errors.ErrCodeBacktestInitFailed, "failed to open state database", err)
	}

	return &BacktestState{
		db:     db,
		logger: log.Named("backtest_state"),
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Initialize creates the result tables.
func (b *BacktestState) Initialize() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS order_events (
			order_id INTEGER,
			symbol TEXT,
			status TEXT,
			fill_price DOUBLE,
			fill_quantity DOUBLE,
			fee DOUBLE,
			time TIMESTAMP,
			message TEXT
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to create order_events table", err)
	}

	_, err = b.db.Exec(`
		CREATE TABLE IF NOT EXISTS trade_setups (
			bar_time TIMESTAMP,
			symbol TEXT,
			direction TEXT,
			entry_price DOUBLE,
			stop_price DOUBLE,
			target_price DOUBLE,
			entry_time TIMESTAMP,
			fill_price DOUBLE,
			close_time TIMESTAMP,
			canceled BOOLEAN,
			risk_pips DOUBLE,
			reward_pips DOUBLE,
			pl_pips DOUBLE,
			profit_loss DOUBLE,
			trade_index INTEGER
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to create trade_setups table", err)
	}

	_, err = b.db.Exec(`
		CREATE TABLE IF NOT EXISTS closed_trades (
			trade_id INTEGER,
			symbol TEXT,
			direction TEXT,
			open_time TIMESTAMP,
			entry_time TIMESTAMP,
			entry_price DOUBLE,
			exit_time TIMESTAMP,
			exit_price DOUBLE,
			quantity DOUBLE,
			stop_price DOUBLE,
			target_price DOUBLE,
			profit_loss DOUBLE,
			mae DOUBLE,
			mfe DOUBLE,
			total_fees DOUBLE
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to create closed_trades table", err)
	}

	return nil
}

// nullTime stores unset times as NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t
}

func (b *BacktestState) RecordOrderEvent(event types.OrderEvent) error {
	_, err := b.sq.
		Insert("order_events").
		Columns("order_id", "symbol", "status", "fill_price", "fill_quantity", "fee", "time", "message").
		Values(
			event.OrderID, event.Symbol, string(event.Status),
			event.FillPrice.InexactFloat64(), event.FillQuantity.InexactFloat64(), event.Fee.InexactFloat64(),
			nullTime(event.Time), event.Message,
		).
		RunWith(b.db).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to insert order event", err)
	}

	return nil
}

func (b *BacktestState) RecordTradeSetup(setup types.TradeSetupData) error {
	_, err := b.sq.
		Insert("trade_setups").
		Columns(
			"bar_time", "symbol", "direction", "entry_price", "stop_price", "target_price",
			"entry_time", "fill_price", "close_time", "canceled", "risk_pips", "reward_pips",
			"pl_pips", "profit_loss", "trade_index",
		).
		Values(
			nullTime(setup.BarTime), setup.Symbol, setup.Direction.String(),
			setup.EntryPrice.InexactFloat64(), setup.StopPrice.InexactFloat64(), setup.TargetPrice.InexactFloat64(),
			nullTime(setup.EntryTime), setup.FillPrice.InexactFloat64(), nullTime(setup.CloseTime), setup.Canceled,
			setup.RiskPips.InexactFloat64(), setup.RewardPips.InexactFloat64(),
			setup.ProfitLossPips.InexactFloat64(), setup.ProfitLoss.InexactFloat64(), setup.TradeIndex,
		).
		RunWith(b.db).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to insert trade setup", err)
	}

	b.setups = append(b.setups, setup)

	return nil
}

// RecordClosedTrades replaces the closed trade table with trades.
func (b *BacktestState) RecordClosedTrades(trades []types.ClosedTrade) error {
	if _, err := b.sq.Delete("closed_trades").RunWith(b.db).Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to clear closed trades", err)
	}

	if len(trades) == 0 {
		return nil
	}

	insert := b.sq.
		Insert("closed_trades").
		Columns(
			"trade_id", "symbol", "direction", "open_time", "entry_time", "entry_price",
			"exit_time", "exit_price", "quantity", "stop_price", "target_price",
			"profit_loss", "mae", "mfe", "total_fees",
		)

	for _, trade := range trades {
		insert = insert.Values(
			trade.TradeID, trade.Symbol, trade.Direction.String(), nullTime(trade.OpenTime),
			nullTime(trade.EntryTime), trade.EntryPrice.InexactFloat64(),
			nullTime(trade.ExitTime), trade.ExitPrice.InexactFloat64(), trade.Quantity.InexactFloat64(),
			trade.StopPrice.InexactFloat64(), trade.TargetPrice.InexactFloat64(),
			trade.ProfitLoss.InexactFloat64(), trade.MAE.InexactFloat64(), trade.MFE.InexactFloat64(),
			trade.TotalFees.InexactFloat64(),
		)
	}

	if _, err := insert.RunWith(b.db).Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to insert closed trades", err)
	}

	return nil
}

// TradeSetups returns the recorded setups in insertion order.
func (b *BacktestState) TradeSetups() []types.TradeSetupData {
	return append([]types.TradeSetupData(nil), b.setups...)
}

// GetStats aggregates the recorded setups and closed trades.
func (b *BacktestState) GetStats() (BacktestStats, error) {
	var stats BacktestStats

	var pips float64

	query, args, err := b.sq.
		Select(
			"COUNT(*)",
			"COUNT(*) FILTER (WHERE fill_price > 0)",
			"COUNT(*) FILTER (WHERE canceled)",
			"COALESCE(SUM(pl_pips), 0)",
		).
		From("trade_setups").
		ToSql()
	if err != nil {
		return stats, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build setup stats query", err)
	}

	if err := b.db.QueryRow(query, args...).Scan(&stats.Setups, &stats.Filled, &stats.Canceled, &pips); err != nil {
		return stats, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query setup stats", err)
	}

	var pnl, fees float64

	query, args, err = b.sq.
		Select(
			"COUNT(*) FILTER (WHERE profit_loss > 0)",
			"COUNT(*) FILTER (WHERE profit_loss <= 0)",
			"COALESCE(SUM(profit_loss), 0)",
			"COALESCE(SUM(total_fees), 0)",
		).
		From("closed_trades").
		ToSql()
	if err != nil {
		return stats, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build trade stats query", err)
	}

	if err := b.db.QueryRow(query, args...).Scan(&stats.Wins, &stats.Losses, &pnl, &fees); err != nil {
		return stats, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query trade stats", err)
	}

	stats.TotalPips = decimal.NewFromFloat(pips).Round(1)
	stats.TotalProfitLoss = decimal.NewFromFloat(pnl).Round(2)
	stats.TotalFees = decimal.NewFromFloat(fees).Round(2)

	return stats, nil
}

// Cleanup drops every table and recreates them empty.
func (b *BacktestState) Cleanup() error {
	_, err := b.db.Exec(`
		DROP TABLE IF EXISTS order_events;
		DROP TABLE IF EXISTS trade_setups;
		DROP TABLE IF EXISTS closed_trades;
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to cleanup tables", err)
	}

	b.setups = nil

	return b.Initialize()
}

// Write exports every table to <path>/<table>.parquet, the setups to trade_setups.json
// and stats to stats.yaml.
func (b *BacktestState) Write(path string, stats BacktestStats) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to create directory", err)
	}

	// squirrel has no COPY
	for _, table := range []string{"order_events", "trade_setups", "closed_trades"} {
		target := filepath.Join(path, table+".parquet")
		if _, err := b.db.Exec(fmt.Sprintf(`COPY %s TO '%s' (FORMAT PARQUET)`, table, target)); err != nil {
			return errors.Wrapf(errors.ErrCodeWriteFailed, err, "failed to export %s to parquet", table)
		}
	}

	setups, err := json.MarshalIndent(b.TradeSetups(), "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to encode trade setups", err)
	}

	if err := os.WriteFile(filepath.Join(path, "trade_setups.json"), setups, 0644); err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to write trade setups", err)
	}

	statsYAML, err := yaml.Marshal(stats)
	if err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to encode stats", err)
	}

	if err := os.WriteFile(filepath.Join(path, "stats.yaml"), statsYAML, 0644); err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to write stats", err)
	}

	b.logger.Info("Exported backtest results", zap.String("path", path))

	return nil
}

func (b *BacktestState) Close() error {
	return b.db.Close()
}
