package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"
)

type UtilsTestSuite struct {
	suite.Suite
}

func TestUtilsSuite(t *testing.T) {
	suite.Run(t, new(UtilsTestSuite))
}

func (suite *UtilsTestSuite) TestGetResultFolder() {
	tests := []struct {
		name          string
		dataPath      string
		strategyName  string
		resultsFolder string
		startTime     optional.Option[time.Time]
		endTime       optional.Option[time.Time]
		expectedPath  string
	}{
		{
			name:          "Basic case without time range",
			dataPath:      "/path/to/data.csv",
			strategyName:  "inside_bar",
			resultsFolder: "/results",
			startTime:     optional.None[time.Time](),
			endTime:       optional.None[time.Time](),
			expectedPath:  "/results/inside_bar/data",
		},
		{
			name:          "Case with time range",
			dataPath:      "/path/to/data.parquet",
			strategyName:  "inside_bar",
			resultsFolder: "/results",
			startTime:     optional.Some(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)),
			endTime:       optional.Some(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)),
			expectedPath:  "/results/inside_bar/20230101_20231231/data",
		},
		{
			name:          "Case with only start time",
			dataPath:      "/path/to/data.csv",
			strategyName:  "inside_bar",
			resultsFolder: "/results",
			startTime:     optional.Some(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)),
			endTime:       optional.None[time.Time](),
			expectedPath:  "/results/inside_bar/20230101_all/data",
		},
		{
			name:          "Case with only end time",
			dataPath:      "/path/to/data.csv",
			strategyName:  "inside_bar",
			resultsFolder: "/results",
			startTime:     optional.None[time.Time](),
			endTime:       optional.Some(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)),
			expectedPath:  "/results/inside_bar/all_20231231/data",
		},
		{
			name:          "Case with complex file names",
			dataPath:      "/path/to/EURUSD.h1.parquet",
			strategyName:  "inside_bar",
			resultsFolder: "results",
			startTime:     optional.None[time.Time](),
			endTime:       optional.None[time.Time](),
			expectedPath:  "results/inside_bar/EURUSD.h1",
		},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			resultPath := getResultFolder(tc.resultsFolder, tc.strategyName, tc.dataPath, tc.startTime, tc.endTime)

			suite.Equal(filepath.Clean(tc.expectedPath), filepath.Clean(resultPath))
		})
	}
}
