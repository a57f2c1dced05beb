package mocks

import (
	"math"
	"math/rand"
	"time"

	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/shopspring/decimal"
)

// DataGenerator generates forex-like bars for tests.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a new DataGenerator with the given seed.
// Use a fixed seed for reproducible results in tests.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig configures how bars are generated.
type GeneratorConfig struct {
	// Symbol is the currency pair (e.g., "EURUSD", "USDJPY")
	Symbol string
	// StartTime is the time of the first bar
	StartTime time.Time
	// Interval is the duration between each bar
	Interval time.Duration
	// Count is the number of bars to generate
	Count int
	// InitialPrice is the starting price
	InitialPrice float64
	// Volatility controls price movement per bar (0.001 = 0.1%)
	Volatility float64
	// Trend is the total drift over the series (-0.01 to 0.01 for bearish to bullish)
	Trend float64
	// Decimals is the number of decimals prices are rounded to, the tick size of the pair
	Decimals int32
	// VolumeBase is the average tick volume per bar
	VolumeBase float64
}

// DefaultConfig returns hourly EURUSD bars.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbol:       "EURUSD",
		StartTime:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Interval:     time.Hour,
		Count:        1000,
		InitialPrice: 1.1,
		Volatility:   0.001,
		Trend:        0.0,
		Decimals:     5,
		VolumeBase:   1000,
	}
}

// Generate creates bars following a geometric Brownian motion.
func (g *DataGenerator) Generate(config GeneratorConfig) []types.Bar {
	bars := make([]types.Bar, config.Count)
	currentPrice := config.InitialPrice
	currentTime := config.StartTime

	for i := range config.Count {
		open := currentPrice

		// Box-Muller transform for a normal draw
		u1 := 1 - g.rng.Float64()
		u2 := g.rng.Float64()
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

		drift := config.Trend / float64(config.Count)

		close := open * (1 + config.Volatility*z + drift)
		if close <= 0 {
			close = open * 0.99
		}

		high := math.Max(open, close) + g.rng.Float64()*config.Volatility*open*0.5
		low := math.Min(open, close) - g.rng.Float64()*config.Volatility*open*0.5

		if low <= 0 {
			low = math.Min(open, close) * 0.99
		}

		volume := config.VolumeBase * (0.5 + g.rng.Float64())

		bars[i] = types.Bar{
			Symbol: config.Symbol,
			Time:   currentTime,
			Open:   decimal.NewFromFloat(open).Round(config.Decimals),
			High:   decimal.NewFromFloat(high).Round(config.Decimals),
			Low:    decimal.NewFromFloat(low).Round(config.Decimals),
			Close:  decimal.NewFromFloat(close).Round(config.Decimals),
			Volume: decimal.NewFromFloat(volume).Round(0),
		}

		currentPrice = close
		currentTime = currentTime.Add(config.Interval)
	}

	return bars
}

// GenerateMultiSymbol generates bars for several pairs over the same period.
func (g *DataGenerator) GenerateMultiSymbol(symbols []string, baseConfig GeneratorConfig) []types.Bar {
	var all []types.Bar

	for _, symbol := range symbols {
		config := baseConfig
		config.Symbol = symbol
		config.InitialPrice = baseConfig.InitialPrice * (0.8 + g.rng.Float64()*0.4)
		config.Volatility = baseConfig.Volatility * (0.8 + g.rng.Float64()*0.4)

		all = append(all, g.Generate(config)...)
	}

	return all
}
