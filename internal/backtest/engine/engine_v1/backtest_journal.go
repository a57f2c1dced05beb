package engine

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/rxtech-lab/argo-bracket/internal/logger"
	"github.com/rxtech-lab/argo-bracket/pkg/errors"
	"go.uber.org/zap"
)

type JournalLevel string

const (
	JournalLevelInfo  JournalLevel = "info"
	JournalLevelWarn  JournalLevel = "warn"
	JournalLevelError JournalLevel = "error"
)

// JournalEntry is one engine decision taken while replaying a data file.
type JournalEntry struct {
	// Time is the bar time the decision was taken at.
	Time    time.Time
	Symbol  string
	Level   JournalLevel
	Event   string
	Message string
	Fields  map[string]string
}

// BacktestJournal keeps the journal of the current run in DuckDB and exports it
// next to the other results.
type BacktestJournal struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
	seq    int
}

func NewBacktestJournal(log *logger.Logger) (*BacktestJournal, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBacktestInitFailed, "failed to open journal database", err)
	}

	journal := &BacktestJournal{
		db:     db,
		logger: log.Named("backtest_journal"),
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := journal.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return journal, nil
}

func (j *BacktestJournal) initialize() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS journal (
			seq INTEGER PRIMARY KEY,
			time TIMESTAMP,
			symbol TEXT,
			level TEXT,
			event TEXT,
			message TEXT,
			fields TEXT
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to create journal table", err)
	}

	return nil
}

// Record appends entry. A failing insert is logged and otherwise ignored so the journal
// never stops a run.
func (j *BacktestJournal) Record(entry JournalEntry) {
	if j == nil {
		return
	}

	var fields any

	if len(entry.Fields) > 0 {
		encoded, err := json.Marshal(entry.Fields)
		if err != nil {
			j.logger.Warn("Failed to encode journal fields", zap.Error(err))
		} else {
			fields = string(encoded)
		}
	}

	j.seq++

	_, err := j.sq.
		Insert("journal").
		Columns("seq", "time", "symbol", "level", "event", "message", "fields").
		Values(j.seq, nullTime(entry.Time), entry.Symbol, string(entry.Level), entry.Event, entry.Message, fields).
		RunWith(j.db).
		Exec()
	if err != nil {
		j.logger.Warn("Failed to record journal entry", zap.String("event", entry.Event), zap.Error(err))
	}
}

// Entries returns the journal in recording order.
func (j *BacktestJournal) Entries() ([]JournalEntry, error) {
	rows, err := j.sq.
		Select("time", "symbol", "level", "event", "message", "fields").
		From("journal").
		OrderBy("seq ASC").
		RunWith(j.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query journal", err)
	}
	defer rows.Close()

	var entries []JournalEntry

	for rows.Next() {
		var (
			entry  JournalEntry
			when   sql.NullTime
			level  string
			fields sql.NullString
		)

		if err := rows.Scan(&when, &entry.Symbol, &level, &entry.Event, &entry.Message, &fields); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan journal entry", err)
		}

		if when.Valid {
			entry.Time = when.Time
		}

		entry.Level = JournalLevel(level)

		if fields.Valid && fields.String != "" {
			if err := json.Unmarshal([]byte(fields.String), &entry.Fields); err != nil {
				return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to decode journal fields", err)
			}
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to iterate journal", err)
	}

	return entries, nil
}

// Write exports the journal to <path>/journal.parquet.
func (j *BacktestJournal) Write(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to create directory", err)
	}

	target := filepath.Join(path, "journal.parquet")
	if _, err := j.db.Exec(fmt.Sprintf(`COPY journal TO '%s' (FORMAT PARQUET)`, target)); err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to export journal to parquet", err)
	}

	j.logger.Debug("Exported journal", zap.String("path", target), zap.Int("entries", j.seq))

	return nil
}

// Cleanup empties the journal for the next run.
func (j *BacktestJournal) Cleanup() error {
	if _, err := j.db.Exec(`DROP TABLE IF EXISTS journal`); err != nil {
		return errors.Wrap(errors.ErrCodeWriteFailed, "failed to cleanup journal", err)
	}

	j.seq = 0

	return j.initialize()
}

func (j *BacktestJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}

	return j.db.Close()
}
