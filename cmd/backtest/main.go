package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rxtech-lab/argo-bracket/internal/backtest/engine"
	engine_v1 "github.com/rxtech-lab/argo-bracket/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-bracket/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-bracket/internal/logger"
	"github.com/rxtech-lab/argo-bracket/internal/strategy"
	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/rxtech-lab/argo-bracket/internal/version"
	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment variables used when the matching flag is not given.
const (
	envConfig  = "ARGO_BACKTEST_CONFIG"
	envData    = "ARGO_BACKTEST_DATA"
	envResults = "ARGO_BACKTEST_RESULTS"
)

const defaultEnvFile = ".env"

// envFileArg finds the --env-file value in args. The file has to be loaded before the
// command parses its flags so its variables can fill them.
func envFileArg(args []string) string {
	for i, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name != "env-file" {
			continue
		}

		if hasValue {
			return value
		}

		if i+1 < len(args) {
			return args[i+1]
		}
	}

	return defaultEnvFile
}

func loadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	return godotenv.Load(path)
}

func newLogger(cmd *cli.Command) (*logger.Logger, error) {
	level, err := zapcore.ParseLevel(cmd.String("log-level"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	return logger.NewLoggerWithLevel(level)
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	dataPath := cmd.String("data")
	resultsPath := cmd.String("results")

	if configPath == "" || dataPath == "" {
		return fmt.Errorf("--config and --data are required (or set %s and %s)", envConfig, envData)
	}

	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	config, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	source, err := datasource.NewDataSource("", log)
	if err != nil {
		return err
	}
	defer source.Close()

	backtest, err := engine_v1.NewBacktestEngineV1(log)
	if err != nil {
		return err
	}

	if err := backtest.Initialize(string(config)); err != nil {
		return fmt.Errorf("failed to initialize backtest engine: %w", err)
	}

	if err := backtest.LoadStrategy(strategy.NewInsideBar(decimal.Zero)); err != nil {
		return err
	}

	if err := backtest.SetDataPath(dataPath); err != nil {
		return err
	}

	if err := backtest.SetResultsFolder(resultsPath); err != nil {
		return err
	}

	if err := backtest.SetDataSource(source); err != nil {
		return err
	}

	var bar *progressbar.ProgressBar

	onRunStart := engine.OnRunStartCallback(func(runID string, strategyName string, dataFilePath string, totalDataPoints int) error {
		bar = progressbar.NewOptions(totalDataPoints,
			progressbar.OptionSetDescription(fmt.Sprintf("%s %s", strategyName, dataFilePath)),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWriter(os.Stderr),
		)

		return nil
	})
	onProcessData := engine.OnProcessDataCallback(func(current int, total int) error {
		if bar != nil {
			return bar.Set(current)
		}

		return nil
	})
	onRunEnd := engine.OnRunEndCallback(func(runID string, strategyName string, dataFilePath string, resultFolderPath string) {
		if bar != nil {
			_ = bar.Finish()
		}

		fmt.Fprintf(os.Stderr, "\nresults for %s written to %s\n", dataFilePath, resultFolderPath)
	})
	onTradeSetup := engine.OnTradeSetupCallback(func(setup types.TradeSetupData) {
		log.Debug("Trade setup finished",
			zap.String("symbol", setup.Symbol),
			zap.Stringer("direction", setup.Direction),
			zap.String("pl_pips", setup.ProfitLossPips.StringFixed(1)),
			zap.Bool("canceled", setup.Canceled),
		)
	})

	return backtest.Run(ctx, engine.LifecycleCallbacks{
		OnRunStart:    &onRunStart,
		OnProcessData: &onProcessData,
		OnRunEnd:      &onRunEnd,
		OnTradeSetup:  &onTradeSetup,
	})
}

func schemaAction(_ context.Context, _ *cli.Command) error {
	backtest, err := engine_v1.NewBacktestEngineV1(logger.NewNopLogger())
	if err != nil {
		return err
	}

	schema, err := backtest.GetConfigSchema()
	if err != nil {
		return err
	}

	fmt.Println(schema)

	return nil
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "backtest",
		Usage:   "Backtest bracket trades on historical bars",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the backtest config `FILE`",
				Sources: cli.EnvVars(envConfig),
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Market data files, glob patterns allowed (e.g. data/*.parquet)",
				Sources: cli.EnvVars(envData),
			},
			&cli.StringFlag{
				Name:    "results",
				Aliases: []string{"r"},
				Usage:   "Results output directory",
				Value:   "results",
				Sources: cli.EnvVars(envResults),
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Environment file read before resolving options",
				Value: defaultEnvFile,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
				Value: "warn",
			},
		},
		Action: runAction,
		Commands: []*cli.Command{
			{
				Name:   "schema",
				Usage:  "Print the JSON schema of the backtest config",
				Action: schemaAction,
			},
		},
	}
}

func main() {
	if err := loadEnvFile(envFileArg(os.Args[1:])); err != nil {
		log.Fatalf("failed to load env file: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newCommand().Run(ctx, os.Args)

	stop()

	if err != nil {
		log.Fatal(err)
	}
}
