package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-bracket/internal/logger"
	"github.com/stretchr/testify/suite"
)

type BacktestJournalTestSuite struct {
	suite.Suite
	journal *BacktestJournal
}

func TestBacktestJournalSuite(t *testing.T) {
	suite.Run(t, new(BacktestJournalTestSuite))
}

func (suite *BacktestJournalTestSuite) SetupTest() {
	journal, err := NewBacktestJournal(logger.NewNopLogger())
	suite.Require().NoError(err)

	suite.journal = journal
}

func (suite *BacktestJournalTestSuite) TearDownTest() {
	suite.NoError(suite.journal.Close())
}

func (suite *BacktestJournalTestSuite) TestRecordAndEntries() {
	barTime := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	suite.journal.Record(JournalEntry{
		Time:    barTime,
		Symbol:  "EURUSD",
		Level:   JournalLevelInfo,
		Event:   "signal_skipped",
		Message: "reference bar below minimum range",
		Fields:  map[string]string{"range": "0.002"},
	})
	suite.journal.Record(JournalEntry{
		Level:   JournalLevelWarn,
		Event:   "unsettled_trades",
		Message: "trades left unsettled at end of run",
	})

	entries, err := suite.journal.Entries()
	suite.Require().NoError(err)
	suite.Require().Len(entries, 2)

	suite.Equal("signal_skipped", entries[0].Event)
	suite.True(barTime.Equal(entries[0].Time))
	suite.Equal(map[string]string{"range": "0.002"}, entries[0].Fields)

	suite.Equal(JournalLevelWarn, entries[1].Level)
	suite.True(entries[1].Time.IsZero())
	suite.Nil(entries[1].Fields)
}

func (suite *BacktestJournalTestSuite) TestCleanup() {
	suite.journal.Record(JournalEntry{Level: JournalLevelError, Event: "event_failed"})

	suite.Require().NoError(suite.journal.Cleanup())

	entries, err := suite.journal.Entries()
	suite.Require().NoError(err)
	suite.Empty(entries)

	suite.journal.Record(JournalEntry{Level: JournalLevelInfo, Event: "signal_skipped"})

	entries, err = suite.journal.Entries()
	suite.Require().NoError(err)
	suite.Len(entries, 1)
}

func (suite *BacktestJournalTestSuite) TestWrite() {
	suite.journal.Record(JournalEntry{Level: JournalLevelInfo, Event: "signal_skipped", Symbol: "EURUSD"})

	path := filepath.Join(suite.T().TempDir(), "run")
	suite.Require().NoError(suite.journal.Write(path))
	suite.FileExists(filepath.Join(path, "journal.parquet"))
}

func (suite *BacktestJournalTestSuite) TestRecordOnNilJournal() {
	var journal *BacktestJournal

	suite.NotPanics(func() {
		journal.Record(JournalEntry{Event: "signal_skipped"})
	})
}
