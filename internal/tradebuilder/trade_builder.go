package tradebuilder

import (
	"slices"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-bracket/internal/logger"
	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/rxtech-lab/argo-bracket/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// position is a trade the builder has not closed yet.
type position struct {
	tradeID      int
	entryOrderID optional.Option[int]
	exitOrderID  optional.Option[int]
	openTime     time.Time
	stopPrice    decimal.Decimal
	targetPrice  decimal.Decimal

	// set once the entry fill is matched
	symbol     string
	direction  types.Direction
	entryTime  time.Time
	entryPrice decimal.Decimal
	quantity   decimal.Decimal
	fees       decimal.Decimal
	minPrice   decimal.Decimal
	maxPrice   decimal.Decimal
}

type pendingFill struct {
	event          types.OrderEvent
	conversionRate decimal.Decimal
	fee            decimal.Decimal
	multiplier     decimal.Decimal
}

// TradeBuilder matches venue fills to the trades that registered their order ids and
// produces closed trade records.
//
// Fills and registrations may arrive in either order: a fill that matches nothing stays
// queued and is retried after every mutating call. A TradeBuilder is not safe for
// concurrent use; the owner serializes calls.
type TradeBuilder struct {
	log         *logger.Logger
	nextTradeID int
	pending     []*position
	open        map[string][]*position
	closed      []types.ClosedTrade
	closedIndex map[int]int
	fills       []pendingFill
}

func NewTradeBuilder(log *logger.Logger) *TradeBuilder {
	return &TradeBuilder{
		log:         log.Named("trade_builder"),
		nextTradeID: 0,
		pending:     nil,
		open:        make(map[string][]*position),
		closed:      nil,
		closedIndex: make(map[int]int),
		fills:       nil,
	}
}

// OpenTrade reserves a trade id for a trade whose entry order has not been placed yet.
func (b *TradeBuilder) OpenTrade(openTime time.Time, stopPrice decimal.Decimal, targetPrice decimal.Decimal) int {
	b.nextTradeID++

	b.pending = append(b.pending, &position{
		tradeID:     b.nextTradeID,
		openTime:    openTime,
		stopPrice:   stopPrice,
		targetPrice: targetPrice,
	})

	b.matchFills()

	return b.nextTradeID
}

// CancelTrade drops a trade that never entered. Trades already open are left alone.
func (b *TradeBuilder) CancelTrade(tradeID int) {
	b.pending = slices.DeleteFunc(b.pending, func(p *position) bool {
		return p.tradeID == tradeID
	})

	b.matchFills()
}

// RegisterTradeEntry attaches the entry order id to a pending trade.
func (b *TradeBuilder) RegisterTradeEntry(tradeID int, entryOrderID int) error {
	defer b.matchFills()

	idx := slices.IndexFunc(b.pending, func(p *position) bool {
		return p.tradeID == tradeID
	})
	if idx < 0 {
		b.log.Error("Entry registered for unknown trade",
			zap.Int("trade_id", tradeID),
			zap.Int("order_id", entryOrderID),
		)

		return errors.Newf(errors.ErrCodeUnknownTradeID, "no pending trade with id %d", tradeID)
	}

	b.pending[idx].entryOrderID = optional.Some(entryOrderID)

	return nil
}

// RegisterTradeExit attaches the exit order id to a pending or open trade.
func (b *TradeBuilder) RegisterTradeExit(tradeID int, exitOrderID int) error {
	defer b.matchFills()

	p := b.findPosition(tradeID)
	if p == nil {
		b.log.Error("Exit registered for unknown trade",
			zap.Int("trade_id", tradeID),
			zap.Int("order_id", exitOrderID),
		)

		return errors.Newf(errors.ErrCodeUnknownTradeID, "no pending or open trade with id %d", tradeID)
	}

	p.exitOrderID = optional.Some(exitOrderID)

	return nil
}

// ProcessFill queues a venue fill and runs the matching pass. conversionRate turns quote
// currency into account currency, fee is already in account currency and multiplier is
// the contract multiplier. Events without a fill are ignored.
func (b *TradeBuilder) ProcessFill(event types.OrderEvent, conversionRate decimal.Decimal, fee decimal.Decimal, multiplier decimal.Decimal) {
	if !event.IsFill() {
		return
	}

	b.fills = append(b.fills, pendingFill{
		event:          event,
		conversionRate: conversionRate,
		fee:            fee,
		multiplier:     multiplier,
	})

	b.SetMarketPrice(event.Symbol, event.FillPrice)
	b.matchFills()
}

// SetMarketPrice widens the excursion range of every open position in symbol.
func (b *TradeBuilder) SetMarketPrice(symbol string, price decimal.Decimal) {
	for _, p := range b.open[symbol] {
		p.minPrice = decimal.Min(p.minPrice, price)
		p.maxPrice = decimal.Max(p.maxPrice, price)
	}
}

// SetBarRange widens the excursion range with the extremes of bar. Positions entered on
// this bar only see its close since the path before the fill is unknown.
func (b *TradeBuilder) SetBarRange(bar types.Bar) {
	for _, p := range b.open[bar.Symbol] {
		if p.entryTime.Before(bar.Time) {
			p.minPrice = decimal.Min(p.minPrice, bar.Low)
			p.maxPrice = decimal.Max(p.maxPrice, bar.High)
		}
	}

	b.SetMarketPrice(bar.Symbol, bar.Close)
}

// matchFills drains the fill queue until a full pass matches nothing.
func (b *TradeBuilder) matchFills() {
	for {
		matched := false
		remaining := make([]pendingFill, 0, len(b.fills))

		for _, fill := range b.fills {
			if b.matchEntry(fill) || b.matchExit(fill) {
				matched = true

				continue
			}

			remaining = append(remaining, fill)
		}

		b.fills = remaining

		if !matched || len(b.fills) == 0 {
			return
		}
	}
}

func (b *TradeBuilder) matchEntry(fill pendingFill) bool {
	orderID := fill.event.OrderID

	idx := slices.IndexFunc(b.pending, func(p *position) bool {
		return p.entryOrderID.IsSome() && p.entryOrderID.Unwrap() == orderID
	})
	if idx >= 0 {
		p := b.pending[idx]
		b.pending = slices.Delete(b.pending, idx, idx+1)

		p.symbol = fill.event.Symbol
		p.direction = types.DirectionFromQuantity(fill.event.FillQuantity)
		p.entryTime = fill.event.Time
		p.entryPrice = fill.event.FillPrice
		p.quantity = fill.event.FillQuantity.Abs()
		p.fees = fill.fee
		p.minPrice = fill.event.FillPrice
		p.maxPrice = fill.event.FillPrice

		b.open[p.symbol] = append(b.open[p.symbol], p)

		b.log.Debug("Trade entered",
			zap.Int("trade_id", p.tradeID),
			zap.Stringer("fill", fill.event),
		)

		return true
	}

	// a further partial fill of an entry that already opened the position
	for _, p := range b.open[fill.event.Symbol] {
		if p.entryOrderID.IsSome() && p.entryOrderID.Unwrap() == orderID {
			quantity := fill.event.FillQuantity.Abs()
			total := p.quantity.Add(quantity)
			p.entryPrice = p.entryPrice.Mul(p.quantity).Add(fill.event.FillPrice.Mul(quantity)).Div(total)
			p.quantity = total
			p.fees = p.fees.Add(fill.fee)

			return true
		}
	}

	return false
}

func (b *TradeBuilder) matchExit(fill pendingFill) bool {
	symbol := fill.event.Symbol
	positions := b.open[symbol]

	idx := slices.IndexFunc(positions, func(p *position) bool {
		return p.exitOrderID.IsSome() && p.exitOrderID.Unwrap() == fill.event.OrderID
	})
	if idx < 0 {
		return false
	}

	p := positions[idx]
	b.open[symbol] = slices.Delete(positions, idx, idx+1)

	if len(b.open[symbol]) == 0 {
		delete(b.open, symbol)
	}

	exitPrice := fill.event.FillPrice
	p.minPrice = decimal.Min(p.minPrice, exitPrice)
	p.maxPrice = decimal.Max(p.maxPrice, exitPrice)

	sign := p.direction.Sign()
	scale := p.quantity.Mul(fill.conversionRate).Mul(fill.multiplier)

	worst, best := p.minPrice, p.maxPrice
	if p.direction == types.DirectionShort {
		worst, best = p.maxPrice, p.minPrice
	}

	record := types.ClosedTrade{
		TradeID:     p.tradeID,
		Symbol:      symbol,
		Direction:   p.direction,
		OpenTime:    p.openTime,
		EntryTime:   p.entryTime,
		EntryPrice:  p.entryPrice,
		ExitTime:    fill.event.Time,
		ExitPrice:   exitPrice,
		Quantity:    p.quantity,
		StopPrice:   p.stopPrice,
		TargetPrice: p.targetPrice,
		ProfitLoss:  exitPrice.Sub(p.entryPrice).Mul(sign).Mul(scale).Round(2),
		MAE:         worst.Sub(p.entryPrice).Mul(sign).Mul(scale).Round(2),
		MFE:         best.Sub(p.entryPrice).Mul(sign).Mul(scale).Round(2),
		TotalFees:   p.fees.Add(fill.fee),
	}

	b.closedIndex[p.tradeID] = len(b.closed)
	b.closed = append(b.closed, record)

	b.log.Debug("Trade closed",
		zap.Int("trade_id", p.tradeID),
		zap.String("symbol", symbol),
		zap.String("profit_loss", record.ProfitLoss.String()),
	)

	return true
}

func (b *TradeBuilder) findPosition(tradeID int) *position {
	for _, p := range b.pending {
		if p.tradeID == tradeID {
			return p
		}
	}

	for _, positions := range b.open {
		for _, p := range positions {
			if p.tradeID == tradeID {
				return p
			}
		}
	}

	return nil
}

// HasOpenPosition reports whether symbol has an entered trade awaiting its exit.
func (b *TradeBuilder) HasOpenPosition(symbol string) bool {
	return len(b.open[symbol]) > 0
}

// ClosedTrades returns a copy of every closed trade record in closing order.
func (b *TradeBuilder) ClosedTrades() []types.ClosedTrade {
	return slices.Clone(b.closed)
}

// ClosedTrade returns the record at index.
func (b *TradeBuilder) ClosedTrade(index int) (types.ClosedTrade, bool) {
	if index < 0 || index >= len(b.closed) {
		return types.ClosedTrade{}, false
	}

	return b.closed[index], true
}

// ClosedTradeIndex returns the record index of a closed trade.
func (b *TradeBuilder) ClosedTradeIndex(tradeID int) optional.Option[int] {
	if index, ok := b.closedIndex[tradeID]; ok {
		return optional.Some(index)
	}

	return optional.None[int]()
}

// UnmatchedFills returns the queued fills no trade has claimed yet.
func (b *TradeBuilder) UnmatchedFills() []types.OrderEvent {
	events := make([]types.OrderEvent, 0, len(b.fills))
	for _, fill := range b.fills {
		events = append(events, fill.event)
	}

	return events
}

func (b *TradeBuilder) PendingFillCount() int {
	return len(b.fills)
}

func (b *TradeBuilder) PendingTradeCount() int {
	return len(b.pending)
}

func (b *TradeBuilder) OpenTradeCount() int {
	count := 0
	for _, positions := range b.open {
		count += len(positions)
	}

	return count
}
