package trade

import (
	"maps"
	"slices"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-bracket/internal/logger"
	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/rxtech-lab/argo-bracket/pkg/errors"
	"go.uber.org/zap"
)

// Repository owns the managed trades of a run, keyed by symbol. A symbol has at most one
// trade that is not closed; closed trades stay until Cleanup collects them so late venue
// events still reach them.
type Repository struct {
	log    *logger.Logger
	trades map[string][]*ManagedTrade
}

func NewRepository(log *logger.Logger) *Repository {
	return &Repository{
		log:    log.Named("trade_repository"),
		trades: make(map[string][]*ManagedTrade),
	}
}

// Open executes trade as the active trade of its symbol. A pending trade for the same
// symbol is canceled first; an open one makes Open fail.
func (r *Repository) Open(trade *ManagedTrade, at time.Time) error {
	symbol := trade.Symbol()

	if current := r.Active(symbol); current.IsSome() {
		active := current.Unwrap()
		if active.State() == types.TradeStateOpen {
			r.log.Info("Symbol already has an open trade, skipping setup", zap.String("symbol", symbol))

			return errors.Newf(errors.ErrCodeDuplicateTrade, "%s already has an open trade", symbol)
		}

		r.log.Info("Replacing pending trade", zap.String("symbol", symbol), zap.Int("trade_id", active.TradeID()))

		if err := active.cancel(); err != nil {
			r.log.Error("Failed to close replaced trade", zap.Error(err))
		}
	}

	r.trades[symbol] = append(r.trades[symbol], trade)

	return trade.Execute(at)
}

// Active returns the trade of symbol that is not closed yet.
func (r *Repository) Active(symbol string) optional.Option[*ManagedTrade] {
	for _, trade := range r.trades[symbol] {
		if trade.State() != types.TradeStateClosed {
			return optional.Some(trade)
		}
	}

	return optional.None[*ManagedTrade]()
}

// OnOrderEvent routes a venue event to the trade owning the order.
func (r *Repository) OnOrderEvent(event types.OrderEvent) error {
	for _, trade := range r.trades[event.Symbol] {
		if trade.HasOrderID(event.OrderID) {
			return trade.OnOrderEvent(event)
		}
	}

	r.log.Error("Order event for unknown order", zap.Stringer("event", event))

	return errors.Newf(errors.ErrCodeUnknownOrderID, "no trade owns order %d", event.OrderID)
}

// OnDataUpdate hands bar to every live trade of its symbol. A failing trade does not
// stop the others; the first error is returned.
func (r *Repository) OnDataUpdate(bar types.Bar) error {
	var firstErr error

	for _, trade := range r.trades[bar.Symbol] {
		if trade.State() == types.TradeStateClosed {
			continue
		}

		if err := trade.OnDataUpdate(bar); err != nil {
			r.log.Error("Trade failed to process bar",
				zap.Int("trade_id", trade.TradeID()),
				zap.Error(err),
			)

			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// Cleanup removes settled trades and returns their summaries.
func (r *Repository) Cleanup() []types.TradeSetupData {
	var setups []types.TradeSetupData

	for _, symbol := range slices.Sorted(maps.Keys(r.trades)) {
		remaining := slices.DeleteFunc(r.trades[symbol], func(trade *ManagedTrade) bool {
			if !trade.Settled() {
				return false
			}

			setups = append(setups, trade.GetStats())

			return true
		})

		if len(remaining) == 0 {
			delete(r.trades, symbol)
		} else {
			r.trades[symbol] = remaining
		}
	}

	slices.SortStableFunc(setups, func(a, b types.TradeSetupData) int {
		return a.BarTime.Compare(b.BarTime)
	})

	return setups
}

// CloseAll closes every trade that is still pending or open.
func (r *Repository) CloseAll() error {
	var firstErr error

	for _, symbol := range slices.Sorted(maps.Keys(r.trades)) {
		for _, trade := range r.trades[symbol] {
			if err := trade.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// Len returns the number of trades not collected by Cleanup yet.
func (r *Repository) Len() int {
	count := 0
	for _, trades := range r.trades {
		count += len(trades)
	}

	return count
}
