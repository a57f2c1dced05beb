package engine

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-bracket/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-bracket/internal/pricing"
	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/rxtech-lab/argo-bracket/internal/version"
	"github.com/rxtech-lab/argo-bracket/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// FibConfig holds the retracement ratios of the reference bar. 0 is the end of the swing,
// 1 its start, negative values project beyond the end.
type FibConfig struct {
	Entry  float64                  `yaml:"entry" json:"entry" jsonschema:"title=Entry,description=Retracement ratio of the entry price"`
	Stop   float64                  `yaml:"stop" json:"stop" jsonschema:"title=Stop,description=Retracement ratio of the stop-loss price"`
	Target float64                  `yaml:"target" json:"target" jsonschema:"title=Target,description=Retracement ratio of the take-profit price"`
	Expire optional.Option[float64] `yaml:"expire" json:"expire" jsonschema:"title=Expire,description=A pending entry is canceled once price trades past this ratio"`
	// Extensions is the trailing-stop ladder.
	Extensions []float64 `yaml:"extensions" json:"extensions" jsonschema:"title=Extensions,description=Ratios of the trailing stop ladder"`
}

// PriceModel selects how entry, stop and target are derived from a signal.
type PriceModel string

const (
	// PriceModelFib retraces the swing of the reference bar.
	PriceModelFib PriceModel = "fib"
	// PriceModelATR enters at the close and brackets it with multiples of the average true range.
	PriceModelATR PriceModel = "atr"
)

// ATRConfig configures the average true range price model.
type ATRConfig struct {
	Period     int     `yaml:"period" json:"period" validate:"gt=0" jsonschema:"title=Period,description=Number of bars averaged,minimum=1"`
	StopStep   float64 `yaml:"stop_step" json:"stop_step" validate:"gt=0" jsonschema:"title=Stop Step,description=Stop distance in multiples of the ATR"`
	TargetStep float64 `yaml:"target_step" json:"target_step" validate:"gt=0" jsonschema:"title=Target Step,description=Target distance in multiples of the ATR"`
}

type BacktestEngineV1Config struct {
	Version         string                     `yaml:"version" json:"version" jsonschema:"title=Version,description=Engine version the config was written for"`
	InitialCapital  float64                    `yaml:"initial_capital" json:"initial_capital" validate:"gt=0" jsonschema:"title=Initial Capital,description=Starting capital in account currency,minimum=0"`
	AccountCurrency string                     `yaml:"account_currency" json:"account_currency" validate:"required,len=3" jsonschema:"title=Account Currency,description=ISO currency code of the account"`
	Broker          commission_fee.Broker      `yaml:"broker" json:"broker" validate:"required" jsonschema:"title=Broker,description=The broker to use for commission calculations"`
	EntryOrderType  types.OrderType            `yaml:"entry_order_type" json:"entry_order_type" validate:"required,oneof=MARKET LIMIT STOP_MARKET" jsonschema:"title=Entry Order Type,description=Order type used to enter trades"`
	RiskPercent     float64                    `yaml:"risk_percent" json:"risk_percent" validate:"gte=0,lte=1" jsonschema:"title=Risk Percent,description=Fraction of remaining margin risked per trade,minimum=0,maximum=1"`
	FixedQuantity   float64                    `yaml:"fixed_quantity" json:"fixed_quantity" validate:"gte=0" jsonschema:"title=Fixed Quantity,description=Trade a constant number of units instead of risk based sizing,minimum=0"`
	ConversionRate  float64                    `yaml:"conversion_rate" json:"conversion_rate" validate:"gt=0" jsonschema:"title=Conversion Rate,description=Quote to account currency rate used for sizing and P&L"`
	TrailingStop    bool                       `yaml:"trailing_stop" json:"trailing_stop" jsonschema:"title=Trailing Stop,description=Move the stop along the extension ladder"`
	MinBarRange     float64                    `yaml:"min_bar_range" json:"min_bar_range" validate:"gte=0" jsonschema:"title=Minimum Bar Range,description=Reference bars with a smaller range are ignored"`
	PriceModel      PriceModel                 `yaml:"price_model" json:"price_model" validate:"oneof=fib atr" jsonschema:"title=Price Model,description=How entry/stop/target are priced,enum=fib,enum=atr"`
	Fib             FibConfig                  `yaml:"fib" json:"fib" jsonschema:"title=Fibonacci Levels"`
	ATR             ATRConfig                  `yaml:"atr" json:"atr" jsonschema:"title=Average True Range"`
	StartTime       optional.Option[time.Time] `yaml:"start_time" json:"start_time" jsonschema:"title=Start Time,description=Optional start time for the backtest period"`
	EndTime         optional.Option[time.Time] `yaml:"end_time" json:"end_time" jsonschema:"title=End Time,description=Optional end time for the backtest period"`
}

// UnmarshalYAML starts from EmptyConfig so omitted keys keep their defaults.
func (c *BacktestEngineV1Config) UnmarshalYAML(value *yaml.Node) error {
	type fib struct {
		Entry      *float64  `yaml:"entry"`
		Stop       *float64  `yaml:"stop"`
		Target     *float64  `yaml:"target"`
		Expire     *float64  `yaml:"expire"`
		Extensions []float64 `yaml:"extensions"`
	}

	type atr struct {
		Period     *int     `yaml:"period"`
		StopStep   *float64 `yaml:"stop_step"`
		TargetStep *float64 `yaml:"target_step"`
	}

	type Config struct {
		Version         string                `yaml:"version"`
		InitialCapital  *float64              `yaml:"initial_capital"`
		AccountCurrency string                `yaml:"account_currency"`
		Broker          commission_fee.Broker `yaml:"broker"`
		EntryOrderType  types.OrderType       `yaml:"entry_order_type"`
		RiskPercent     *float64              `yaml:"risk_percent"`
		FixedQuantity   float64               `yaml:"fixed_quantity"`
		ConversionRate  *float64              `yaml:"conversion_rate"`
		TrailingStop    bool                  `yaml:"trailing_stop"`
		MinBarRange     float64               `yaml:"min_bar_range"`
		PriceModel      PriceModel            `yaml:"price_model"`
		Fib             *fib                  `yaml:"fib"`
		ATR             *atr                  `yaml:"atr"`
		StartTime       *time.Time            `yaml:"start_time"`
		EndTime         *time.Time            `yaml:"end_time"`
	}

	var config Config
	if err := value.Decode(&config); err != nil {
		return err
	}

	*c = EmptyConfig()

	c.Version = config.Version
	c.FixedQuantity = config.FixedQuantity
	c.TrailingStop = config.TrailingStop
	c.MinBarRange = config.MinBarRange

	if config.InitialCapital != nil {
		c.InitialCapital = *config.InitialCapital
	}

	if config.AccountCurrency != "" {
		c.AccountCurrency = strings.ToUpper(config.AccountCurrency)
	}

	if config.Broker != "" {
		c.Broker = config.Broker
	}

	if config.EntryOrderType != "" {
		c.EntryOrderType = types.OrderType(strings.ToUpper(string(config.EntryOrderType)))
	}

	if config.RiskPercent != nil {
		c.RiskPercent = *config.RiskPercent
	}

	if config.ConversionRate != nil {
		c.ConversionRate = *config.ConversionRate
	}

	if config.Fib != nil {
		if config.Fib.Entry != nil {
			c.Fib.Entry = *config.Fib.Entry
		}

		if config.Fib.Stop != nil {
			c.Fib.Stop = *config.Fib.Stop
		}

		if config.Fib.Target != nil {
			c.Fib.Target = *config.Fib.Target
		}

		if config.Fib.Expire != nil {
			c.Fib.Expire = optional.Some(*config.Fib.Expire)
		}

		if config.Fib.Extensions != nil {
			c.Fib.Extensions = config.Fib.Extensions
		}
	}

	if config.PriceModel != "" {
		c.PriceModel = PriceModel(strings.ToLower(string(config.PriceModel)))
	}

	if config.ATR != nil {
		if config.ATR.Period != nil {
			c.ATR.Period = *config.ATR.Period
		}

		if config.ATR.StopStep != nil {
			c.ATR.StopStep = *config.ATR.StopStep
		}

		if config.ATR.TargetStep != nil {
			c.ATR.TargetStep = *config.ATR.TargetStep
		}
	}

	if config.StartTime != nil {
		c.StartTime = optional.Some(*config.StartTime)
	}

	if config.EndTime != nil {
		c.EndTime = optional.Some(*config.EndTime)
	}

	return nil
}

// MarshalYAML writes optional values as plain scalars and leaves unset ones out.
func (c BacktestEngineV1Config) MarshalYAML() (any, error) {
	type fib struct {
		Entry      float64   `yaml:"entry"`
		Stop       float64   `yaml:"stop"`
		Target     float64   `yaml:"target"`
		Expire     *float64  `yaml:"expire,omitempty"`
		Extensions []float64 `yaml:"extensions,flow"`
	}

	type Config struct {
		Version         string                `yaml:"version,omitempty"`
		InitialCapital  float64               `yaml:"initial_capital"`
		AccountCurrency string                `yaml:"account_currency"`
		Broker          commission_fee.Broker `yaml:"broker"`
		EntryOrderType  types.OrderType       `yaml:"entry_order_type"`
		RiskPercent     float64               `yaml:"risk_percent"`
		FixedQuantity   float64               `yaml:"fixed_quantity"`
		ConversionRate  float64               `yaml:"conversion_rate"`
		TrailingStop    bool                  `yaml:"trailing_stop"`
		MinBarRange     float64               `yaml:"min_bar_range"`
		PriceModel      PriceModel            `yaml:"price_model"`
		Fib             fib                   `yaml:"fib"`
		ATR             ATRConfig             `yaml:"atr"`
		StartTime       *time.Time            `yaml:"start_time,omitempty"`
		EndTime         *time.Time            `yaml:"end_time,omitempty"`
	}

	config := Config{
		Version:         c.Version,
		InitialCapital:  c.InitialCapital,
		AccountCurrency: c.AccountCurrency,
		Broker:          c.Broker,
		EntryOrderType:  c.EntryOrderType,
		RiskPercent:     c.RiskPercent,
		FixedQuantity:   c.FixedQuantity,
		ConversionRate:  c.ConversionRate,
		TrailingStop:    c.TrailingStop,
		MinBarRange:     c.MinBarRange,
		PriceModel:      c.PriceModel,
		ATR:             c.ATR,
		Fib: fib{
			Entry:      c.Fib.Entry,
			Stop:       c.Fib.Stop,
			Target:     c.Fib.Target,
			Extensions: c.Fib.Extensions,
		},
	}

	if c.Fib.Expire.IsSome() {
		expire := c.Fib.Expire.Unwrap()
		config.Fib.Expire = &expire
	}

	if c.StartTime.IsSome() {
		start := c.StartTime.Unwrap()
		config.StartTime = &start
	}

	if c.EndTime.IsSome() {
		end := c.EndTime.Unwrap()
		config.EndTime = &end
	}

	return config, nil
}

// Validate checks field ranges, the sizing mode and version compatibility with this engine.
func (c *BacktestEngineV1Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid backtest config", err)
	}

	if c.RiskPercent == 0 && c.FixedQuantity == 0 {
		return errors.New(errors.ErrCodeInvalidParameter, "either risk_percent or fixed_quantity must be set")
	}

	if c.StartTime.IsSome() && c.EndTime.IsSome() && c.EndTime.Unwrap().Before(c.StartTime.Unwrap()) {
		return errors.New(errors.ErrCodeInvalidParameter, "end_time is before start_time")
	}

	return version.CheckVersionCompatibility(version.GetVersion(), c.Version)
}

// FibSettings converts the configured ratios to the pricing model's settings.
func (c *BacktestEngineV1Config) FibSettings() pricing.FibSettings {
	settings := pricing.FibSettings{
		EntryLevel:      decimal.NewFromFloat(c.Fib.Entry),
		StopLevel:       decimal.NewFromFloat(c.Fib.Stop),
		TargetLevel:     decimal.NewFromFloat(c.Fib.Target),
		ExpireLevel:     optional.None[decimal.Decimal](),
		ExtensionLevels: make([]decimal.Decimal, 0, len(c.Fib.Extensions)),
	}

	if c.Fib.Expire.IsSome() {
		settings.ExpireLevel = optional.Some(decimal.NewFromFloat(c.Fib.Expire.Unwrap()))
	}

	for _, level := range c.Fib.Extensions {
		settings.ExtensionLevels = append(settings.ExtensionLevels, decimal.NewFromFloat(level))
	}

	return settings
}

// GenerateSchema generates a JSON schema for the BacktestEngineV1Config
func (c *BacktestEngineV1Config) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			switch {
			case t.String() == "optional.Option[time.Time]":
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			case t.String() == "optional.Option[float64]":
				return &jsonschema.Schema{
					Type: "number",
				}
			case strings.Contains(t.String(), "commission_fee.Broker"):
				return &jsonschema.Schema{
					Type: "string",
					Enum: commission_fee.AllBrokers,
				}
			case strings.Contains(t.String(), "types.OrderType"):
				return &jsonschema.Schema{
					Type: "string",
					Enum: types.AllOrderTypes,
				}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)

	schema.Title = "backtest-engine-v1-config"
	schema.Description = "Configuration schema for BacktestEngineV1"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates a JSON schema string for the BacktestEngineV1Config
func (c *BacktestEngineV1Config) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}

func TestConfig(startTime time.Time, endTime time.Time, broker commission_fee.Broker) BacktestEngineV1Config {
	config := EmptyConfig()
	config.InitialCapital = 10000
	config.Broker = broker
	config.StartTime = optional.Some(startTime)
	config.EndTime = optional.Some(endTime)

	return config
}

// EmptyConfig returns a BacktestEngineV1Config with default values
func EmptyConfig() BacktestEngineV1Config {
	return BacktestEngineV1Config{
		Version:         "",
		InitialCapital:  0,
		AccountCurrency: "USD",
		Broker:          commission_fee.BrokerForex,
		EntryOrderType:  types.OrderTypeLimit,
		RiskPercent:     0.01,
		FixedQuantity:   0,
		ConversionRate:  1,
		TrailingStop:    false,
		MinBarRange:     0,
		PriceModel:      PriceModelFib,
		ATR: ATRConfig{
			Period:     14,
			StopStep:   1.5,
			TargetStep: 3,
		},
		Fib: FibConfig{
			Entry:      0.236,
			Stop:       0.786,
			Target:     -1.618,
			Expire:     optional.Some(-0.382),
			Extensions: []float64{0, -0.382, -0.618, -1, -1.618},
		},
		StartTime: optional.None[time.Time](),
		EndTime:   optional.None[time.Time](),
	}
}
