package datasource

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-bracket/internal/logger"
	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/rxtech-lab/argo-bracket/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type DuckDBDataSource struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewDataSource opens a DuckDB database at path, an empty path keeps it in memory.
// Initialize attaches the market data file to it.
func NewDataSource(path string, log *logger.Logger) (DataSource, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataNotFound, "failed to open duckdb", err)
	}

	return &DuckDBDataSource{
		db:     db,
		logger: log.Named("datasource"),
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

// Initialize implements DataSource.
func (d *DuckDBDataSource) Initialize(path string) error {
	d.logger.Debug("Initializing DuckDB data source", zap.String("path", path))

	reader, err := readerFor(path)
	if err != nil {
		return err
	}

	if _, err := d.db.Exec(`DROP VIEW IF EXISTS market_data;`); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to drop existing view", err)
	}

	// squirrel has no CREATE VIEW
	query := fmt.Sprintf(`
		CREATE VIEW market_data AS
		SELECT * FROM %s('%s');
	`, reader, strings.ReplaceAll(path, "'", "''"))

	if _, err := d.db.Exec(query); err != nil {
		return errors.Wrapf(errors.ErrCodeDataNotFound, err, "failed to load market data from %s", path)
	}

	return nil
}

func readerFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return "read_parquet", nil
	case ".csv":
		return "read_csv_auto", nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidParameter, "unsupported market data file %s", path)
	}
}

func (d *DuckDBDataSource) selectBars(start optional.Option[time.Time], end optional.Option[time.Time]) squirrel.SelectBuilder {
	builder := d.sq.
		Select("time", "symbol", "open", "high", "low", "close", "volume").
		From("market_data")

	if start.IsSome() {
		builder = builder.Where(squirrel.GtOrEq{"time": start.Unwrap()})
	}

	if end.IsSome() {
		builder = builder.Where(squirrel.LtOrEq{"time": end.Unwrap()})
	}

	return builder
}

// Count implements DataSource.
func (d *DuckDBDataSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	builder := d.sq.Select("COUNT(*)").From("market_data")

	if start.IsSome() {
		builder = builder.Where(squirrel.GtOrEq{"time": start.Unwrap()})
	}

	if end.IsSome() {
		builder = builder.Where(squirrel.LtOrEq{"time": end.Unwrap()})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build count query", err)
	}

	var count int
	if err := d.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count market data", err)
	}

	return count, nil
}

// ReadAll implements DataSource. Rows are streamed in time order, symbols breaking ties.
func (d *DuckDBDataSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.Bar, error) bool) {
	return func(yield func(types.Bar, error) bool) {
		query, args, err := d.selectBars(start, end).OrderBy("time ASC", "symbol ASC").ToSql()
		if err != nil {
			yield(types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build query", err))

			return
		}

		rows, err := d.db.Query(query, args...)
		if err != nil {
			yield(types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query market data", err))

			return
		}
		defer rows.Close()

		for rows.Next() {
			bar, err := scanBar(rows)
			if err != nil {
				yield(types.Bar{}, err)

				return
			}

			if !yield(bar, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating rows", err))
		}
	}
}

// ReadLastData implements DataSource.
func (d *DuckDBDataSource) ReadLastData(symbol string) (types.Bar, error) {
	query, args, err := d.selectBars(optional.None[time.Time](), optional.None[time.Time]()).
		Where(squirrel.Eq{"symbol": symbol}).
		OrderBy("time DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build query", err)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query last bar", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return types.Bar{}, errors.Newf(errors.ErrCodeDataNotFound, "no data found for symbol %s", symbol)
	}

	return scanBar(rows)
}

// GetAllSymbols implements DataSource.
func (d *DuckDBDataSource) GetAllSymbols() ([]string, error) {
	query, args, err := d.sq.Select("DISTINCT symbol").From("market_data").OrderBy("symbol").ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build query", err)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query symbols", err)
	}
	defer rows.Close()

	var symbols []string

	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan symbol", err)
		}

		symbols = append(symbols, symbol)
	}

	return symbols, rows.Err()
}

// Close implements DataSource.
func (d *DuckDBDataSource) Close() error {
	return d.db.Close()
}

func scanBar(rows *sql.Rows) (types.Bar, error) {
	var (
		timestamp                      time.Time
		symbol                         string
		open, high, low, close, volume float64
	)

	if err := rows.Scan(&timestamp, &symbol, &open, &high, &low, &close, &volume); err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan row", err)
	}

	return types.Bar{
		Symbol: symbol,
		Time:   timestamp,
		Open:   decimal.NewFromFloat(open),
		High:   decimal.NewFromFloat(high),
		Low:    decimal.NewFromFloat(low),
		Close:  decimal.NewFromFloat(close),
		Volume: decimal.NewFromFloat(volume),
	}, nil
}
