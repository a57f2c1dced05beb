package engine

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rxtech-lab/argo-bracket/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-bracket/internal/logger"
	"github.com/rxtech-lab/argo-bracket/internal/pricing"
	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/rxtech-lab/argo-bracket/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type backtestPosition struct {
	quantity     decimal.Decimal
	averagePrice decimal.Decimal
}

// BacktestTrading simulates a venue on bar data. Orders get sequential ids starting at 1
// and every status change is queued as an OrderEvent for the engine to drain.
//
// Market orders fill at the close of the symbol's current bar. Working orders are checked
// against each later bar of their symbol:
//   - buy limit fills when low <= price, sell limit when high >= price, at the limit price
//   - buy stop fills when high >= price, sell stop when low <= price, at the stop price
//
// Stops are checked before limits, so a bar that spans both legs of a bracket stops out.
// Orders tagged "sl:<id>" and "tp:<id>" cancel each other when one of them fills.
type BacktestTrading struct {
	log        *logger.Logger
	commission commission_fee.CommissionFee
	rates      pricing.RateProvider

	initialBalance decimal.Decimal
	balance        decimal.Decimal
	totalFees      decimal.Decimal
	nextOrderID    int

	marketData    map[string]types.Bar
	pendingOrders []*types.OrderTicket
	positions     map[string]*backtestPosition
	events        []types.OrderEvent
}

func NewBacktestTrading(log *logger.Logger, initialBalance decimal.Decimal, commission commission_fee.CommissionFee, rates pricing.RateProvider) *BacktestTrading {
	b := &BacktestTrading{
		log:        log.Named("backtest_trading"),
		commission: commission,
		rates:      rates,
	}
	b.Reset(initialBalance)

	return b
}

// Reset clears all orders, positions and queued events.
func (b *BacktestTrading) Reset(initialBalance decimal.Decimal) {
	b.initialBalance = initialBalance
	b.balance = initialBalance
	b.totalFees = decimal.Zero
	b.nextOrderID = 1
	b.marketData = make(map[string]types.Bar)
	b.pendingOrders = nil
	b.positions = make(map[string]*backtestPosition)
	b.events = nil
}

// UpdateCurrentMarketData makes bar the current bar of its symbol and fills the working
// orders it triggers.
func (b *BacktestTrading) UpdateCurrentMarketData(bar types.Bar) {
	b.marketData[bar.Symbol] = bar

	for _, orderType := range []types.OrderType{types.OrderTypeStopMarket, types.OrderTypeLimit} {
		for _, order := range slices.Clone(b.pendingOrders) {
			if order.Symbol != bar.Symbol || order.Type != orderType || order.Status.IsClosed() {
				continue
			}

			if triggered(order, bar) {
				b.fill(order, order.Price, bar.Time)
			}
		}
	}

	b.pendingOrders = slices.DeleteFunc(b.pendingOrders, func(order *types.OrderTicket) bool {
		return order.Status.IsClosed()
	})
}

func triggered(order *types.OrderTicket, bar types.Bar) bool {
	buy := order.Quantity.IsPositive()

	switch order.Type {
	case types.OrderTypeLimit:
		if buy {
			return bar.Low.LessThanOrEqual(order.Price)
		}

		return bar.High.GreaterThanOrEqual(order.Price)
	case types.OrderTypeStopMarket:
		if buy {
			return bar.High.GreaterThanOrEqual(order.Price)
		}

		return bar.Low.LessThanOrEqual(order.Price)
	default:
		return false
	}
}

// PlaceOrder implements trading.TradingSystem. Invalid requests are not errors: they come
// back as an INVALID ticket and an INVALID event.
func (b *BacktestTrading) PlaceOrder(request types.OrderRequest) (types.OrderTicket, error) {
	ticket := &types.OrderTicket{
		ID:       b.nextOrderID,
		Symbol:   request.Symbol,
		Type:     request.Type,
		Quantity: request.Quantity,
		Price:    request.Price,
		Tag:      request.Tag,
		Status:   types.OrderStatusSubmitted,
	}
	b.nextOrderID++

	bar, hasData := b.marketData[request.Symbol]

	if err := request.Validate(); err != nil {
		return b.reject(ticket, bar.Time, err.Error()), nil
	}

	if request.Type == types.OrderTypeMarket {
		if !hasData {
			return b.reject(ticket, bar.Time, fmt.Sprintf("no market data for %s", request.Symbol)), nil
		}

		b.log.Debug("Market order placed", zap.Int("order_id", ticket.ID), zap.String("quantity", ticket.Quantity.String()))

		submitted := *ticket
		b.fill(ticket, bar.Close, bar.Time)

		return submitted, nil
	}

	b.log.Debug("Order placed",
		zap.Int("order_id", ticket.ID),
		zap.String("type", string(ticket.Type)),
		zap.String("quantity", ticket.Quantity.String()),
		zap.String("price", ticket.Price.String()),
		zap.String("tag", ticket.Tag),
	)

	b.pendingOrders = append(b.pendingOrders, ticket)

	return *ticket, nil
}

func (b *BacktestTrading) reject(ticket *types.OrderTicket, at time.Time, message string) types.OrderTicket {
	b.log.Warn("Order rejected", zap.Int("order_id", ticket.ID), zap.String("reason", message))

	ticket.Status = types.OrderStatusInvalid
	b.events = append(b.events, types.OrderEvent{
		OrderID: ticket.ID,
		Symbol:  ticket.Symbol,
		Status:  types.OrderStatusInvalid,
		Time:    at,
		Message: message,
	})

	return *ticket
}

// CancelOrder implements trading.TradingSystem. Unknown or finished orders are ignored.
func (b *BacktestTrading) CancelOrder(orderID int) error {
	order := b.findPending(orderID)
	if order == nil {
		return nil
	}

	b.cancel(order, b.marketData[order.Symbol].Time)
	b.pendingOrders = slices.DeleteFunc(b.pendingOrders, func(o *types.OrderTicket) bool {
		return o.ID == orderID
	})

	return nil
}

// UpdateStopPrice implements trading.TradingSystem.
func (b *BacktestTrading) UpdateStopPrice(orderID int, price decimal.Decimal) error {
	order := b.findPending(orderID)
	if order == nil {
		return errors.Newf(errors.ErrCodeOrderNotFound, "no working order %d", orderID)
	}

	if order.Type != types.OrderTypeStopMarket {
		return errors.Newf(errors.ErrCodeInvalidOrder, "order %d is a %s order, not a stop", orderID, order.Type)
	}

	if !price.IsPositive() {
		return errors.Newf(errors.ErrCodeInvalidOrder, "stop price must be greater than zero: %s", price)
	}

	b.log.Debug("Stop price updated",
		zap.Int("order_id", orderID),
		zap.String("from", order.Price.String()),
		zap.String("to", price.String()),
	)

	order.Price = price

	return nil
}

func (b *BacktestTrading) findPending(orderID int) *types.OrderTicket {
	for _, order := range b.pendingOrders {
		if order.ID == orderID && !order.Status.IsClosed() {
			return order
		}
	}

	return nil
}

func (b *BacktestTrading) cancel(order *types.OrderTicket, at time.Time) {
	order.Status = types.OrderStatusCanceled
	b.events = append(b.events, types.OrderEvent{
		OrderID: order.ID,
		Symbol:  order.Symbol,
		Status:  types.OrderStatusCanceled,
		Time:    at,
	})
}

func (b *BacktestTrading) fill(order *types.OrderTicket, price decimal.Decimal, at time.Time) {
	fee := b.commission.Calculate(order.Quantity)

	event := types.OrderEvent{
		OrderID:      order.ID,
		Symbol:       order.Symbol,
		Status:       types.OrderStatusFilled,
		FillPrice:    price,
		FillQuantity: order.Quantity,
		Fee:          fee,
		Time:         at,
	}
	order.Apply(event)
	b.events = append(b.events, event)

	b.applyToPosition(order.Symbol, order.Quantity, price)
	b.balance = b.balance.Sub(fee)
	b.totalFees = b.totalFees.Add(fee)

	b.log.Debug("Order filled",
		zap.Int("order_id", order.ID),
		zap.String("price", price.String()),
		zap.String("quantity", order.Quantity.String()),
		zap.String("fee", fee.String()),
	)

	// the sibling is canceled after the fill is queued so the owner sees the fill first
	if sibling := b.sibling(order); sibling != nil {
		b.cancel(sibling, at)
	}
}

// sibling returns the working OCO partner of a management order.
func (b *BacktestTrading) sibling(order *types.OrderTicket) *types.OrderTicket {
	kind, entryID, ok := strings.Cut(order.Tag, ":")
	if !ok {
		return nil
	}

	var partner string

	switch kind {
	case types.TagStopLoss:
		partner = types.TagTakeProfit + ":" + entryID
	case types.TagTakeProfit:
		partner = types.TagStopLoss + ":" + entryID
	default:
		return nil
	}

	for _, pending := range b.pendingOrders {
		if pending.Tag == partner && pending.Symbol == order.Symbol && !pending.Status.IsClosed() {
			return pending
		}
	}

	return nil
}

// applyToPosition nets quantity into the symbol's position and books realized P&L,
// converted to account currency, on the part that reduces it.
func (b *BacktestTrading) applyToPosition(symbol string, quantity decimal.Decimal, price decimal.Decimal) {
	position, ok := b.positions[symbol]
	if !ok {
		position = &backtestPosition{}
		b.positions[symbol] = position
	}

	if position.quantity.IsZero() || position.quantity.Sign() == quantity.Sign() {
		total := position.quantity.Add(quantity)
		position.averagePrice = position.averagePrice.Mul(position.quantity).Add(price.Mul(quantity)).Div(total)
		position.quantity = total

		return
	}

	closing := decimal.Min(position.quantity.Abs(), quantity.Abs())
	pnl := price.Sub(position.averagePrice).Mul(closing).Mul(decimal.NewFromInt(int64(position.quantity.Sign())))
	b.balance = b.balance.Add(pnl.Mul(b.conversionRate(symbol)))

	remaining := position.quantity.Add(quantity)

	switch {
	case remaining.IsZero():
		position.quantity = decimal.Zero
		position.averagePrice = decimal.Zero
	case remaining.Sign() != position.quantity.Sign():
		// flipped through zero, the rest opens at this price
		position.quantity = remaining
		position.averagePrice = price
	default:
		position.quantity = remaining
	}
}

func (b *BacktestTrading) conversionRate(symbol string) decimal.Decimal {
	if b.rates == nil {
		return decimal.NewFromInt(1)
	}

	return b.rates.ConversionRate(symbol)
}

// DrainEvents returns the queued events in the order they happened and clears the queue.
func (b *BacktestTrading) DrainEvents() []types.OrderEvent {
	events := b.events
	b.events = nil

	return events
}

// MarginRemaining implements pricing.AccountQuery. It is the cash balance: realized P&L
// less fees on top of the initial balance.
func (b *BacktestTrading) MarginRemaining() decimal.Decimal {
	return b.balance
}

func (b *BacktestTrading) Balance() decimal.Decimal {
	return b.balance
}

func (b *BacktestTrading) TotalFees() decimal.Decimal {
	return b.totalFees
}

// Position returns the signed net quantity held in symbol.
func (b *BacktestTrading) Position(symbol string) decimal.Decimal {
	if position, ok := b.positions[symbol]; ok {
		return position.quantity
	}

	return decimal.Zero
}

// PendingOrders returns copies of the working orders.
func (b *BacktestTrading) PendingOrders() []types.OrderTicket {
	orders := make([]types.OrderTicket, 0, len(b.pendingOrders))
	for _, order := range b.pendingOrders {
		orders = append(orders, *order)
	}

	return orders
}
