package engine

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/moznion/go-optional"
)

// getResultFolder returns <results>/<strategy>[/<start>_<end>]/<data file name>.
func getResultFolder(resultsFolder string, strategyName string, dataPath string, startTime, endTime optional.Option[time.Time]) string {
	strategyFolder := filepath.Join(resultsFolder, strategyName)

	dataFolder := strategyFolder

	if startTime.IsSome() || endTime.IsSome() {
		startTimeStr := "all"
		endTimeStr := "all"

		if startTime.IsSome() {
			startTimeStr = startTime.Unwrap().Format("20060102")
		}

		if endTime.IsSome() {
			endTimeStr = endTime.Unwrap().Format("20060102")
		}

		dataFolder = filepath.Join(strategyFolder, fmt.Sprintf("%s_%s", startTimeStr, endTimeStr))
	}

	dataFileName := strings.TrimSuffix(filepath.Base(dataPath), filepath.Ext(dataPath))

	return filepath.Join(dataFolder, dataFileName)
}
