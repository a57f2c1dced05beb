package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-bracket/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/rxtech-lab/argo-bracket/internal/version"
	"github.com/rxtech-lab/argo-bracket/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) TestEmptyConfig() {
	config := EmptyConfig()

	suite.Equal(0.0, config.InitialCapital)
	suite.Equal("USD", config.AccountCurrency)
	suite.Equal(commission_fee.BrokerForex, config.Broker)
	suite.Equal(types.OrderTypeLimit, config.EntryOrderType)
	suite.Equal(0.01, config.RiskPercent)
	suite.Equal(1.0, config.ConversionRate)
	suite.Equal(0.236, config.Fib.Entry)
	suite.Equal(0.786, config.Fib.Stop)
	suite.Equal(-1.618, config.Fib.Target)
	suite.Equal(-0.382, config.Fib.Expire.Unwrap())
	suite.Equal([]float64{0, -0.382, -0.618, -1, -1.618}, config.Fib.Extensions)
	suite.Equal(PriceModelFib, config.PriceModel)
	suite.Equal(ATRConfig{Period: 14, StopStep: 1.5, TargetStep: 3}, config.ATR)
	suite.True(config.StartTime.IsNone())
	suite.True(config.EndTime.IsNone())
}

func (suite *ConfigTestSuite) TestTestConfig() {
	startTime := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	endTime := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)

	config := TestConfig(startTime, endTime, commission_fee.BrokerZero)

	suite.Equal(10000.0, config.InitialCapital)
	suite.Equal(commission_fee.BrokerZero, config.Broker)
	suite.Equal(startTime, config.StartTime.Unwrap())
	suite.Equal(endTime, config.EndTime.Unwrap())
	suite.NoError(config.Validate())
}

func (suite *ConfigTestSuite) TestGenerateSchema() {
	config := &BacktestEngineV1Config{}
	schema, err := config.GenerateSchema()

	suite.NoError(err)
	suite.NotNil(schema)
	suite.Equal("backtest-engine-v1-config", schema.Title)
	suite.Equal("Configuration schema for BacktestEngineV1", schema.Description)
	suite.Equal("http://json-schema.org/draft-07/schema#", schema.Version)
}

func (suite *ConfigTestSuite) TestGenerateSchemaJSON() {
	config := &BacktestEngineV1Config{}
	schemaJSON, err := config.GenerateSchemaJSON()
	suite.NoError(err)

	var result map[string]any
	suite.NoError(json.Unmarshal([]byte(schemaJSON), &result))
	suite.Equal("backtest-engine-v1-config", result["title"])

	properties, ok := result["properties"].(map[string]any)
	suite.Require().True(ok)
	suite.Contains(properties, "broker")
	suite.Contains(properties, "entry_order_type")
	suite.Contains(properties, "fib")
	suite.Contains(properties, "price_model")
	suite.Contains(properties, "atr")

	broker, ok := properties["broker"].(map[string]any)
	suite.Require().True(ok)
	suite.ElementsMatch([]any{"interactive_broker", "zero_commission", "forex_per_million"}, broker["enum"])
}

func (suite *ConfigTestSuite) TestUnmarshalYAMLComplete() {
	yamlData := `
version: v1.0.0
initial_capital: 50000
account_currency: eur
broker: interactive_broker
entry_order_type: stop_market
risk_percent: 0.02
conversion_rate: 0.9
trailing_stop: true
min_bar_range: 0.001
fib:
  entry: 0.5
  stop: 1
  target: -1
  expire: -0.5
  extensions: [0, -1]
price_model: ATR
atr:
  period: 20
  stop_step: 2
  target_step: 4
start_time: 2023-01-01T00:00:00Z
end_time: 2023-12-31T00:00:00Z
`

	var config BacktestEngineV1Config
	suite.Require().NoError(yaml.Unmarshal([]byte(yamlData), &config))

	suite.Equal("v1.0.0", config.Version)
	suite.Equal(50000.0, config.InitialCapital)
	suite.Equal("EUR", config.AccountCurrency)
	suite.Equal(commission_fee.BrokerInteractiveBroker, config.Broker)
	suite.Equal(types.OrderTypeStopMarket, config.EntryOrderType)
	suite.Equal(0.02, config.RiskPercent)
	suite.Equal(0.9, config.ConversionRate)
	suite.True(config.TrailingStop)
	suite.Equal(0.001, config.MinBarRange)
	suite.Equal(0.5, config.Fib.Entry)
	suite.Equal(1.0, config.Fib.Stop)
	suite.Equal(-1.0, config.Fib.Target)
	suite.Equal(-0.5, config.Fib.Expire.Unwrap())
	suite.Equal([]float64{0, -1}, config.Fib.Extensions)
	suite.Equal(PriceModelATR, config.PriceModel)
	suite.Equal(ATRConfig{Period: 20, StopStep: 2, TargetStep: 4}, config.ATR)
	suite.Equal(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), config.StartTime.Unwrap())
	suite.Equal(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), config.EndTime.Unwrap())
}

func (suite *ConfigTestSuite) TestUnmarshalYAMLKeepsDefaults() {
	yamlData := `
initial_capital: 25000
fib:
  entry: 0.382
atr:
  period: 7
`

	var config BacktestEngineV1Config
	suite.Require().NoError(yaml.Unmarshal([]byte(yamlData), &config))

	suite.Equal(25000.0, config.InitialCapital)
	suite.Equal(commission_fee.BrokerForex, config.Broker)
	suite.Equal(0.01, config.RiskPercent)
	suite.Equal(0.382, config.Fib.Entry)
	suite.Equal(0.786, config.Fib.Stop)
	suite.True(config.Fib.Expire.IsSome())
	suite.Equal(PriceModelFib, config.PriceModel)
	suite.Equal(7, config.ATR.Period)
	suite.Equal(1.5, config.ATR.StopStep)
	suite.True(config.StartTime.IsNone())
	suite.True(config.EndTime.IsNone())
}

func (suite *ConfigTestSuite) TestUnmarshalYAMLInvalid() {
	var config BacktestEngineV1Config
	suite.Error(yaml.Unmarshal([]byte("initial_capital: not_a_number"), &config))
}

func (suite *ConfigTestSuite) TestValidate() {
	base := func() BacktestEngineV1Config {
		config := EmptyConfig()
		config.InitialCapital = 10000

		return config
	}

	tests := []struct {
		name    string
		mutate  func(c *BacktestEngineV1Config)
		wantErr bool
	}{
		{"defaults", func(c *BacktestEngineV1Config) {}, false},
		{"fixed quantity only", func(c *BacktestEngineV1Config) { c.RiskPercent = 0; c.FixedQuantity = 1000 }, false},
		{"missing capital", func(c *BacktestEngineV1Config) { c.InitialCapital = 0 }, true},
		{"no sizing", func(c *BacktestEngineV1Config) { c.RiskPercent = 0 }, true},
		{"risk above one", func(c *BacktestEngineV1Config) { c.RiskPercent = 1.5 }, true},
		{"zero conversion", func(c *BacktestEngineV1Config) { c.ConversionRate = 0 }, true},
		{"bad currency", func(c *BacktestEngineV1Config) { c.AccountCurrency = "DOLLAR" }, true},
		{"bad entry type", func(c *BacktestEngineV1Config) { c.EntryOrderType = "TRAILING" }, true},
		{"atr price model", func(c *BacktestEngineV1Config) { c.PriceModel = PriceModelATR }, false},
		{"unknown price model", func(c *BacktestEngineV1Config) { c.PriceModel = "pivot" }, true},
		{"zero atr period", func(c *BacktestEngineV1Config) { c.ATR.Period = 0 }, true},
		{"negative atr stop step", func(c *BacktestEngineV1Config) { c.ATR.StopStep = -1 }, true},
		{"end before start", func(c *BacktestEngineV1Config) {
			c.StartTime = optional.Some(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
			c.EndTime = optional.Some(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		}, true},
		{"incompatible version", func(c *BacktestEngineV1Config) { c.Version = "v9.0.0" }, true},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			config := base()
			tc.mutate(&config)

			err := config.Validate()
			if tc.wantErr {
				suite.Error(err)
				suite.True(errors.IsConfigurationError(err))
			} else {
				suite.NoError(err)
			}
		})
	}
}

func (suite *ConfigTestSuite) TestValidateVersion() {
	original := version.Version
	defer func() { version.Version = original }()

	version.Version = "v1.2.0"

	config := EmptyConfig()
	config.InitialCapital = 10000

	config.Version = "v1.2.7"
	suite.NoError(config.Validate())

	config.Version = "v1.3.0"
	suite.ErrorContains(config.Validate(), "minor version mismatch")

	config.Version = version.DevelopmentVersion
	suite.NoError(config.Validate())
}

func (suite *ConfigTestSuite) TestFibSettings() {
	config := EmptyConfig()
	settings := config.FibSettings()

	suite.True(decimal.RequireFromString("0.236").Equal(settings.EntryLevel))
	suite.True(decimal.RequireFromString("0.786").Equal(settings.StopLevel))
	suite.True(decimal.RequireFromString("-1.618").Equal(settings.TargetLevel))
	suite.True(decimal.RequireFromString("-0.382").Equal(settings.ExpireLevel.Unwrap()))
	suite.Len(settings.ExtensionLevels, 5)

	config.Fib.Expire = optional.None[float64]()
	suite.True(config.FibSettings().ExpireLevel.IsNone())
}

func (suite *ConfigTestSuite) TestMarshalYAMLRoundTrip() {
	config := TestConfig(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), commission_fee.BrokerZero)
	config.Fib.Expire = optional.None[float64]()
	config.TrailingStop = true
	config.PriceModel = PriceModelATR
	config.ATR.Period = 21

	out, err := yaml.Marshal(config)
	suite.Require().NoError(err)
	suite.NotContains(string(out), "expire")
	suite.Contains(string(out), "extensions: [0, -0.382, -0.618, -1, -1.618]")

	var decoded BacktestEngineV1Config
	suite.Require().NoError(yaml.Unmarshal(out, &decoded))

	suite.Equal(config.InitialCapital, decoded.InitialCapital)
	suite.Equal(config.Broker, decoded.Broker)
	suite.True(decoded.TrailingStop)
	suite.Equal(PriceModelATR, decoded.PriceModel)
	suite.Equal(config.ATR, decoded.ATR)
	suite.Equal(config.StartTime.Unwrap(), decoded.StartTime.Unwrap())
	suite.Equal(config.EndTime.Unwrap(), decoded.EndTime.Unwrap())
	// unset expire falls back to the default level
	suite.Equal(-0.382, decoded.Fib.Expire.Unwrap())
}
