package trade

import (
	"fmt"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-bracket/internal/logger"
	"github.com/rxtech-lab/argo-bracket/internal/pricing"
	"github.com/rxtech-lab/argo-bracket/internal/trading"
	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/rxtech-lab/argo-bracket/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FillMatcher is the part of the trade builder a managed trade registers its orders with.
type FillMatcher interface {
	OpenTrade(openTime time.Time, stopPrice decimal.Decimal, targetPrice decimal.Decimal) int
	CancelTrade(tradeID int)
	RegisterTradeEntry(tradeID int, entryOrderID int) error
	RegisterTradeExit(tradeID int, exitOrderID int) error
	ClosedTradeIndex(tradeID int) optional.Option[int]
	ClosedTrade(index int) (types.ClosedTrade, bool)
}

// Params configures a ManagedTrade.
type Params struct {
	Symbol         string
	Direction      types.Direction
	EntryOrderType types.OrderType
	// BarTime is the time of the bar the setup was detected on.
	BarTime    time.Time
	PipSize    decimal.Decimal
	PriceModel pricing.PriceModel
	TickSize   pricing.TickSize
	Sizer      pricing.Sizer
	// TrailingStop moves the stop up the price model's extension ladder while the trade is open.
	TrailingStop bool
}

// ManagedTrade drives one bracket trade: an entry order followed by a stop-loss and a
// take-profit that cancel each other. States only move forward, Pending to Open to Closed.
type ManagedTrade struct {
	log     *logger.Logger
	venue   trading.TradingSystem
	matcher FillMatcher
	params  Params

	state    types.TradeState
	levels   pricing.Levels
	quantity decimal.Decimal
	tradeID  int
	now      time.Time

	entry  *types.OrderTicket
	stop   *types.OrderTicket
	target *types.OrderTicket
	exit   *types.OrderTicket
	// dropped is a stop or target the venue canceled while its sibling was still working.
	dropped *types.OrderTicket

	openTime   time.Time
	entryTime  time.Time
	closeTime  time.Time
	fillPrice  decimal.Decimal
	canceled   bool
	riskPips   decimal.Decimal
	rewardPips decimal.Decimal

	trailing  TrailingStopPolicy
	stopIndex int
}

func NewManagedTrade(log *logger.Logger, venue trading.TradingSystem, matcher FillMatcher, params Params) *ManagedTrade {
	return &ManagedTrade{
		log: log.Named("managed_trade").With(
			zap.String("symbol", params.Symbol),
			zap.Stringer("direction", params.Direction),
		),
		venue:     venue,
		matcher:   matcher,
		params:    params,
		state:     types.TradeStatePending,
		tradeID:   -1,
		now:       params.BarTime,
		stopIndex: NoStopLevel,
	}
}

// Execute prices the trade, reserves a trade id with the fill matcher and submits the
// entry order. Configuration problems close the trade and are returned. Market entries
// are treated as filled at the requested price straight away.
func (m *ManagedTrade) Execute(at time.Time) error {
	if m.state == types.TradeStateClosed {
		return errors.New(errors.ErrCodeTradeClosed, "trade is already closed")
	}

	if m.entry != nil {
		m.log.Error("Tried to place duplicate trade", zap.Int("entry_order_id", m.entry.ID))

		return errors.Newf(errors.ErrCodeDuplicateTrade, "entry order %d already submitted", m.entry.ID)
	}

	m.now = at
	m.openTime = at

	if err := m.calculatePrices(); err != nil {
		return m.abort(err)
	}

	switch m.params.EntryOrderType {
	case types.OrderTypeLimit, types.OrderTypeStopMarket, types.OrderTypeMarket:
	default:
		return m.abort(errors.Newf(errors.ErrCodeUnsupportedOrderType, "unsupported entry order type %q", m.params.EntryOrderType))
	}

	m.tradeID = m.matcher.OpenTrade(at, m.levels.Stop, m.levels.Target)

	request := types.OrderRequest{
		Symbol:   m.params.Symbol,
		Type:     m.params.EntryOrderType,
		Quantity: m.quantity,
		Price:    m.levels.Entry,
	}
	if request.Type == types.OrderTypeMarket {
		request.Price = decimal.Zero
	}

	ticket, err := m.venue.PlaceOrder(request)
	if err != nil {
		return m.abort(errors.Wrap(errors.ErrCodeOrderFailed, "failed to place entry order", err))
	}

	m.entry = &ticket

	if ticket.Status == types.OrderStatusInvalid {
		return m.abort(errors.Newf(errors.ErrCodeOrderRejected, "entry order %d rejected by venue", ticket.ID))
	}

	m.log.Info("Trade submitted",
		zap.Int("trade_id", m.tradeID),
		zap.Int("entry_order_id", ticket.ID),
		zap.String("entry_type", string(ticket.Type)),
		zap.String("entry", m.levels.Entry.String()),
		zap.String("stop", m.levels.Stop.String()),
		zap.String("target", m.levels.Target.String()),
		zap.String("risk_pips", m.riskPips.StringFixed(1)),
		zap.String("reward_pips", m.rewardPips.StringFixed(1)),
		zap.String("quantity", m.quantity.String()),
	)

	if request.Type == types.OrderTypeMarket {
		return m.enter(at, m.levels.Entry, m.quantity)
	}

	return nil
}

func (m *ManagedTrade) calculatePrices() error {
	levels, err := m.params.PriceModel.Prices(m.params.Direction)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPriceModel, "price model failed", err)
	}

	levels.Entry = m.round(levels.Entry)
	levels.Stop = m.round(levels.Stop)
	levels.Target = m.round(levels.Target)

	if levels.Expire.IsSome() {
		levels.Expire = optional.Some(m.round(levels.Expire.Unwrap()))
	}

	extensions := make([]decimal.Decimal, len(levels.Extensions))
	for i, level := range levels.Extensions {
		extensions[i] = m.round(level)
	}

	levels.Extensions = extensions

	// rounding can collapse a stop or target onto the entry
	if err := levels.Validate(m.params.Direction); err != nil {
		return err
	}

	m.levels = levels
	m.riskPips = pricing.ToPips(levels.Entry.Sub(levels.Stop), m.params.PipSize)
	m.rewardPips = pricing.ToPips(levels.Target.Sub(levels.Entry), m.params.PipSize)

	if m.params.TrailingStop {
		m.trailing = TrailingStopPolicy{Levels: extensions}
	}

	quantity, err := m.params.Sizer.Size(m.params.Symbol, m.params.Direction, m.riskPips)
	if err != nil {
		return err
	}

	if quantity.IsZero() {
		return errors.Newf(errors.ErrCodeZeroQuantity, "position size is zero for %s pips of risk", m.riskPips.StringFixed(1))
	}

	m.quantity = quantity.Abs().Mul(m.params.Direction.Sign())

	return nil
}

func (m *ManagedTrade) round(price decimal.Decimal) decimal.Decimal {
	if m.params.TickSize == nil {
		return price
	}

	return pricing.RoundToTick(price, m.params.TickSize.MinimumPriceVariation(m.params.Symbol, price))
}

// cancel closes a trade that is given up before its entry filled.
func (m *ManagedTrade) cancel() error {
	if m.state == types.TradeStatePending {
		m.canceled = true
	}

	return m.Close()
}

// abort closes the trade after a configuration or venue error and hands the error back.
func (m *ManagedTrade) abort(cause error) error {
	m.log.Warn("Trade aborted", zap.Error(cause))

	if err := m.Close(); err != nil {
		m.log.Error("Failed to close aborted trade", zap.Error(err))
	}

	return cause
}

// enter moves a pending trade to open and places the stop and target orders.
func (m *ManagedTrade) enter(at time.Time, fillPrice decimal.Decimal, quantity decimal.Decimal) error {
	m.state = types.TradeStateOpen
	m.entryTime = at
	m.fillPrice = fillPrice

	m.log.Info("Trade entered",
		zap.Int("trade_id", m.tradeID),
		zap.String("fill_price", fillPrice.String()),
		zap.String("quantity", quantity.String()),
	)

	if err := m.matcher.RegisterTradeEntry(m.tradeID, m.entry.ID); err != nil {
		m.log.Error("Failed to register trade entry", zap.Error(err))
	}

	exitQuantity := quantity.Neg()

	target, err := m.venue.PlaceOrder(types.OrderRequest{
		Symbol:   m.params.Symbol,
		Type:     types.OrderTypeLimit,
		Quantity: exitQuantity,
		Price:    m.levels.Target,
		Tag:      types.ManagementTag(types.TagTakeProfit, m.entry.ID),
	})
	if err == nil {
		m.target = &target
	}

	stop, stopErr := m.venue.PlaceOrder(types.OrderRequest{
		Symbol:   m.params.Symbol,
		Type:     types.OrderTypeStopMarket,
		Quantity: exitQuantity,
		Price:    m.levels.Stop,
		Tag:      types.ManagementTag(types.TagStopLoss, m.entry.ID),
	})
	if stopErr == nil {
		m.stop = &stop
	}

	if err != nil || stopErr != nil || target.Status == types.OrderStatusInvalid || stop.Status == types.OrderStatusInvalid {
		// an unprotected position is flattened right away
		if closeErr := m.Close(); closeErr != nil {
			m.log.Error("Failed to flatten unprotected trade", zap.Error(closeErr))
		}

		return errors.Newf(errors.ErrCodeOrderRejected, "failed to place management orders for entry %d", m.entry.ID)
	}

	return nil
}

// HasOrderID reports whether orderID belongs to one of this trade's orders.
func (m *ManagedTrade) HasOrderID(orderID int) bool {
	return m.ticket(orderID) != nil
}

func (m *ManagedTrade) ticket(orderID int) *types.OrderTicket {
	for _, ticket := range []*types.OrderTicket{m.entry, m.stop, m.target, m.exit} {
		if ticket != nil && ticket.ID == orderID {
			return ticket
		}
	}

	return nil
}

// OnOrderEvent applies a venue notification to the order it belongs to. An event for an
// order this trade does not own is reported and otherwise ignored.
func (m *ManagedTrade) OnOrderEvent(event types.OrderEvent) error {
	ticket := m.ticket(event.OrderID)
	if ticket == nil {
		m.log.Error("Received unexpected order event", zap.Stringer("event", event))

		return errors.Newf(errors.ErrCodeUnknownOrderID, "order %d does not belong to this trade", event.OrderID)
	}

	if !event.Time.IsZero() {
		m.now = event.Time
	}

	ticket.Apply(event)

	switch ticket {
	case m.entry:
		return m.onEntryEvent(event)
	case m.stop, m.target:
		return m.onExitEvent(ticket, event)
	default:
		if event.IsFill() {
			m.closeTime = event.Time
			m.log.Info("Trade flattened", zap.String("fill_price", event.FillPrice.String()))
		}

		return nil
	}
}

func (m *ManagedTrade) onEntryEvent(event types.OrderEvent) error {
	switch {
	case event.IsFill():
		switch m.state {
		case types.TradeStatePending:
			return m.enter(event.Time, m.entry.AverageFillPrice, m.entry.QuantityFilled)
		case types.TradeStateOpen:
			// confirmation of a market entry, or a later partial fill
			m.fillPrice = m.entry.AverageFillPrice
			m.entryTime = event.Time
		case types.TradeStateClosed:
			m.log.Warn("Entry filled after trade closed", zap.Stringer("event", event))
		}
	case event.Status == types.OrderStatusCanceled || event.Status == types.OrderStatusInvalid:
		if m.state == types.TradeStatePending {
			m.log.Info("Entry order not filled", zap.String("status", string(event.Status)))

			return m.cancel()
		}
	}

	return nil
}

func (m *ManagedTrade) onExitEvent(ticket *types.OrderTicket, event types.OrderEvent) error {
	if m.state == types.TradeStateClosed && event.IsFill() {
		m.log.Error("Exit filled after trade closed",
			zap.Int("trade_id", m.tradeID),
			zap.Stringer("event", event),
		)

		return errors.Newf(errors.ErrCodeDuplicateExit, "order %d filled after trade %d was closed", ticket.ID, m.tradeID)
	}

	if m.state != types.TradeStateOpen {
		return nil
	}

	switch {
	case event.IsFill():
		kind := "Take profit"
		if ticket == m.stop {
			kind = "Stop loss"
		}

		m.log.Info(kind+" hit",
			zap.Int("trade_id", m.tradeID),
			zap.String("fill_price", event.FillPrice.String()),
		)

		m.closeTime = event.Time

		if err := m.matcher.RegisterTradeExit(m.tradeID, ticket.ID); err != nil {
			m.log.Error("Failed to register trade exit", zap.Error(err))
		}

		return m.Close()
	case event.Status == types.OrderStatusCanceled || event.Status == types.OrderStatusInvalid:
		// an OCO cancel can arrive ahead of the sibling fill; wait for the next bar
		if sibling := m.sibling(ticket); event.Status == types.OrderStatusCanceled && sibling != nil && !sibling.Status.IsClosed() {
			m.log.Warn("Management order canceled while sibling is working",
				zap.Stringer("event", event),
				zap.Int("sibling_order_id", sibling.ID),
			)
			m.dropped = ticket

			return nil
		}

		// the bracket is broken, do not leave the position unmanaged
		m.log.Warn("Management order dropped by venue", zap.Stringer("event", event))

		return m.Close()
	}

	return nil
}

func (m *ManagedTrade) sibling(ticket *types.OrderTicket) *types.OrderTicket {
	if ticket == m.stop {
		return m.target
	}

	return m.stop
}

// OnDataUpdate expires a pending entry once price runs past the expiry level and
// trails the stop of an open trade.
func (m *ManagedTrade) OnDataUpdate(bar types.Bar) error {
	if bar.Symbol != "" && bar.Symbol != m.params.Symbol {
		return errors.Newf(errors.ErrCodeSymbolMismatch, "bar for %s sent to %s trade", bar.Symbol, m.params.Symbol)
	}

	m.now = bar.Time
	price := bar.Price()

	switch m.state {
	case types.TradeStatePending:
		if m.entry == nil || m.levels.Expire.IsNone() {
			return nil
		}

		if passed(m.params.Direction, price, m.levels.Expire.Unwrap()) {
			m.log.Info("Entry expired",
				zap.String("price", price.String()),
				zap.String("expire", m.levels.Expire.Unwrap().String()),
			)

			m.canceled = true

			return m.Close()
		}
	case types.TradeStateOpen:
		if m.dropped != nil {
			m.log.Warn("Bracket broken, flattening",
				zap.Int("trade_id", m.tradeID),
				zap.Int("order_id", m.dropped.ID),
			)

			return m.Close()
		}

		if !m.trailing.Enabled() || m.stop == nil {
			return nil
		}

		return m.trailStop(price)
	}

	return nil
}

func (m *ManagedTrade) trailStop(price decimal.Decimal) error {
	advance, err := m.trailing.Evaluate(m.params.Direction, price, m.stopIndex, m.fillPrice)
	if err != nil {
		m.log.Error("Trailing stop failed", zap.Error(err))

		return err
	}

	if !advance.Advanced {
		return nil
	}

	m.stopIndex = advance.Index
	newStop := m.round(advance.Stop)

	// the stop only ever moves toward profit
	if newStop.Sub(m.stop.Price).Mul(m.params.Direction.Sign()).Sign() <= 0 {
		return nil
	}

	if err := m.venue.UpdateStopPrice(m.stop.ID, newStop); err != nil {
		return errors.Wrap(errors.ErrCodeOrderFailed, "failed to move stop", err)
	}

	m.log.Info("Stop moved",
		zap.Int("level", advance.Index),
		zap.String("from", m.stop.Price.String()),
		zap.String("to", newStop.String()),
	)

	m.stop.Price = newStop

	return nil
}

// Close cancels every working order and, when an open position has not been exited by
// its stop or target, flattens it with a market order. Calling Close again does nothing.
func (m *ManagedTrade) Close() error {
	if m.state == types.TradeStateClosed {
		return nil
	}

	var firstErr error

	working := []*types.OrderTicket{m.stop, m.target}
	if m.state == types.TradeStatePending {
		working = append(working, m.entry)
	}

	for _, ticket := range working {
		if ticket == nil || ticket.Status.IsClosed() {
			continue
		}

		if err := m.venue.CancelOrder(ticket.ID); err != nil {
			m.log.Error("Failed to cancel order", zap.Int("order_id", ticket.ID), zap.Error(err))

			if firstErr == nil {
				firstErr = errors.Wrapf(errors.ErrCodeOrderFailed, err, "failed to cancel order %d", ticket.ID)
			}

			continue
		}

		ticket.Status = types.OrderStatusCanceled
	}

	switch m.state {
	case types.TradeStatePending:
		if m.tradeID >= 0 {
			m.matcher.CancelTrade(m.tradeID)
		}
	case types.TradeStateOpen:
		if !m.exitFilled() {
			if err := m.flatten(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	m.state = types.TradeStateClosed
	if m.closeTime.IsZero() {
		m.closeTime = m.now
	}

	m.log.Info("Trade closed",
		zap.Int("trade_id", m.tradeID),
		zap.Bool("canceled", m.canceled),
	)

	return firstErr
}

func (m *ManagedTrade) exitFilled() bool {
	return (m.stop != nil && !m.stop.QuantityFilled.IsZero()) ||
		(m.target != nil && !m.target.QuantityFilled.IsZero())
}

func (m *ManagedTrade) flatten() error {
	quantity := m.quantity
	if m.entry != nil && !m.entry.QuantityFilled.IsZero() {
		quantity = m.entry.QuantityFilled
	}

	ticket, err := m.venue.PlaceOrder(types.OrderRequest{
		Symbol:   m.params.Symbol,
		Type:     types.OrderTypeMarket,
		Quantity: quantity.Neg(),
		Tag:      fmt.Sprintf("close:%d", m.entryOrderID()),
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeOrderFailed, "failed to flatten position", err)
	}

	m.exit = &ticket

	if err := m.matcher.RegisterTradeExit(m.tradeID, ticket.ID); err != nil {
		m.log.Error("Failed to register trade exit", zap.Error(err))
	}

	return nil
}

func (m *ManagedTrade) entryOrderID() int {
	if m.entry == nil {
		return -1
	}

	return m.entry.ID
}

// State returns the lifecycle state.
func (m *ManagedTrade) State() types.TradeState {
	return m.state
}

func (m *ManagedTrade) Symbol() string {
	return m.params.Symbol
}

func (m *ManagedTrade) Direction() types.Direction {
	return m.params.Direction
}

// TradeID is the id reserved with the fill matcher, -1 before Execute.
func (m *ManagedTrade) TradeID() int {
	return m.tradeID
}

// Levels returns the rounded prices the trade was placed with.
func (m *ManagedTrade) Levels() pricing.Levels {
	return m.levels
}

// Quantity is the signed entry size.
func (m *ManagedTrade) Quantity() decimal.Decimal {
	return m.quantity
}

// StopIndex is the trailing ladder index reached so far.
func (m *ManagedTrade) StopIndex() int {
	return m.stopIndex
}

// Settled reports whether the trade is closed and no order it placed is still working.
func (m *ManagedTrade) Settled() bool {
	if m.state != types.TradeStateClosed {
		return false
	}

	return m.exit == nil || m.exit.Status.IsClosed()
}

// GetStats summarises the trade. Fill price is zero when the entry never filled and
// TradeIndex is -1 until the fill matcher has produced a closed trade record.
func (m *ManagedTrade) GetStats() types.TradeSetupData {
	stats := types.TradeSetupData{
		BarTime:        m.params.BarTime,
		Symbol:         m.params.Symbol,
		Direction:      m.params.Direction,
		EntryPrice:     m.levels.Entry,
		StopPrice:      m.levels.Stop,
		TargetPrice:    m.levels.Target,
		EntryTime:      m.entryTime,
		FillPrice:      m.fillPrice,
		CloseTime:      m.closeTime,
		Canceled:       m.canceled,
		RiskPips:       m.riskPips,
		RewardPips:     m.rewardPips,
		ProfitLossPips: decimal.Zero,
		ProfitLoss:     decimal.Zero,
		TradeIndex:     -1,
	}

	if m.tradeID < 0 {
		return stats
	}

	index := m.matcher.ClosedTradeIndex(m.tradeID)
	if index.IsNone() {
		return stats
	}

	record, ok := m.matcher.ClosedTrade(index.Unwrap())
	if !ok {
		return stats
	}

	stats.TradeIndex = index.Unwrap()
	stats.ProfitLoss = record.ProfitLoss

	if m.params.PipSize.IsPositive() {
		stats.ProfitLossPips = record.ExitPrice.Sub(record.EntryPrice).Mul(m.params.Direction.Sign()).Div(m.params.PipSize)
	}

	return stats
}
