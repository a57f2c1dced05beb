package trade

import (
	"fmt"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-bracket/internal/logger"
	"github.com/rxtech-lab/argo-bracket/internal/pricing"
	"github.com/rxtech-lab/argo-bracket/internal/tradebuilder"
	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/rxtech-lab/argo-bracket/mocks"
	"github.com/rxtech-lab/argo-bracket/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

// orderMatcher compares order requests by value; decimals are compared numerically.
type orderMatcher struct {
	orderType types.OrderType
	quantity  decimal.Decimal
	price     decimal.Decimal
	tag       string
}

func isOrder(orderType types.OrderType, quantity string, price string, tag string) gomock.Matcher {
	return orderMatcher{orderType: orderType, quantity: d(quantity), price: d(price), tag: tag}
}

func (m orderMatcher) Matches(x any) bool {
	request, ok := x.(types.OrderRequest)
	if !ok {
		return false
	}

	return request.Symbol == "EURUSD" &&
		request.Type == m.orderType &&
		request.Quantity.Equal(m.quantity) &&
		request.Price.Equal(m.price) &&
		request.Tag == m.tag
}

func (m orderMatcher) String() string {
	return fmt.Sprintf("%s %s @ %s tag=%q", m.orderType, m.quantity, m.price, m.tag)
}

type decimalMatcher decimal.Decimal

func isPrice(value string) gomock.Matcher {
	return decimalMatcher(d(value))
}

func (m decimalMatcher) Matches(x any) bool {
	value, ok := x.(decimal.Decimal)

	return ok && value.Equal(decimal.Decimal(m))
}

func (m decimalMatcher) String() string {
	return decimal.Decimal(m).String()
}

// accept answers a PlaceOrder call with a working ticket carrying id.
func accept(id int) func(types.OrderRequest) (types.OrderTicket, error) {
	return func(request types.OrderRequest) (types.OrderTicket, error) {
		return types.OrderTicket{
			ID:       id,
			Symbol:   request.Symbol,
			Type:     request.Type,
			Quantity: request.Quantity,
			Price:    request.Price,
			Tag:      request.Tag,
			Status:   types.OrderStatusSubmitted,
		}, nil
	}
}

type ManagedTradeTestSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	venue      *mocks.MockTradingSystem
	builder    *tradebuilder.TradeBuilder
	params     Params
	start      time.Time
	conversion decimal.Decimal
}

func TestManagedTradeSuite(t *testing.T) {
	suite.Run(t, new(ManagedTradeTestSuite))
}

func (suite *ManagedTradeTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.venue = mocks.NewMockTradingSystem(suite.ctrl)
	suite.builder = tradebuilder.NewTradeBuilder(logger.NewNopLogger())
	suite.start = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	suite.conversion = decimal.NewFromInt(1)
	suite.params = Params{
		Symbol:         "EURUSD",
		Direction:      types.DirectionLong,
		EntryOrderType: types.OrderTypeLimit,
		BarTime:        suite.start,
		PipSize:        d("0.0001"),
		PriceModel: pricing.FixedPrices{
			Entry:      d("1.200004"),
			Stop:       d("1.19500"),
			Target:     d("1.21000"),
			Expire:     optional.Some(d("1.21764")),
			Extensions: []decimal.Decimal{d("1.21"), d("1.21764"), d("1.22236"), d("1.23"), d("1.24236")},
		},
		TickSize: pricing.FixedTickSize(d("0.00001")),
		Sizer:    pricing.FixedSize(d("100000")),
	}
}

func (suite *ManagedTradeTestSuite) TearDownTest() {
	suite.ctrl.Finish()
}

func (suite *ManagedTradeTestSuite) newTrade() *ManagedTrade {
	return NewManagedTrade(logger.NewNopLogger(), suite.venue, suite.builder, suite.params)
}

func (suite *ManagedTradeTestSuite) at(minutes int) time.Time {
	return suite.start.Add(time.Duration(minutes) * time.Minute)
}

// deliver routes an event the way the engine does: fill matcher first, then the trade.
func (suite *ManagedTradeTestSuite) deliver(trade *ManagedTrade, event types.OrderEvent) error {
	suite.builder.ProcessFill(event, suite.conversion, decimal.Zero, decimal.NewFromInt(1))

	return trade.OnOrderEvent(event)
}

func (suite *ManagedTradeTestSuite) fill(orderID int, price string, quantity string, minutes int) types.OrderEvent {
	return types.OrderEvent{
		OrderID:      orderID,
		Symbol:       "EURUSD",
		Status:       types.OrderStatusFilled,
		FillPrice:    d(price),
		FillQuantity: d(quantity),
		Time:         suite.at(minutes),
	}
}

func (suite *ManagedTradeTestSuite) bar(close string, minutes int) types.Bar {
	price := d(close)

	return types.Bar{Symbol: "EURUSD", Time: suite.at(minutes), Open: price, High: price, Low: price, Close: price}
}

// executeLimit submits the entry as order 1.
func (suite *ManagedTradeTestSuite) executeLimit() *ManagedTrade {
	trade := suite.newTrade()

	suite.venue.EXPECT().PlaceOrder(isOrder(types.OrderTypeLimit, "100000", "1.20000", "")).DoAndReturn(accept(1))
	suite.Require().NoError(trade.Execute(suite.at(0)))

	return trade
}

// enter fills order 1 at 1.20010 and expects the target as order 2 and the stop as order 3.
func (suite *ManagedTradeTestSuite) enter(trade *ManagedTrade) {
	gomock.InOrder(
		suite.venue.EXPECT().PlaceOrder(isOrder(types.OrderTypeLimit, "-100000", "1.21000", "tp:1")).DoAndReturn(accept(2)),
		suite.venue.EXPECT().PlaceOrder(isOrder(types.OrderTypeStopMarket, "-100000", "1.19500", "sl:1")).DoAndReturn(accept(3)),
	)

	suite.Require().NoError(suite.deliver(trade, suite.fill(1, "1.20010", "100000", 1)))
}

func (suite *ManagedTradeTestSuite) TestExecutePlacesRoundedEntry() {
	trade := suite.executeLimit()

	suite.Equal(types.TradeStatePending, trade.State())
	suite.True(trade.HasOrderID(1))
	suite.False(trade.HasOrderID(2))
	suite.Equal(1, suite.builder.PendingTradeCount())
	suite.True(d("100000").Equal(trade.Quantity()))

	stats := trade.GetStats()
	suite.True(d("1.20000").Equal(stats.EntryPrice))
	suite.True(d("50").Equal(stats.RiskPips), stats.RiskPips.String())
	suite.True(d("100").Equal(stats.RewardPips), stats.RewardPips.String())
	suite.True(stats.FillPrice.IsZero())
	suite.Equal(-1, stats.TradeIndex)
}

func (suite *ManagedTradeTestSuite) TestShortQuantityIsNegated() {
	suite.params.Direction = types.DirectionShort
	suite.params.PriceModel = pricing.FixedPrices{Entry: d("1.2"), Stop: d("1.205"), Target: d("1.19")}
	trade := suite.newTrade()

	suite.venue.EXPECT().PlaceOrder(isOrder(types.OrderTypeLimit, "-100000", "1.2", "")).DoAndReturn(accept(1))
	suite.Require().NoError(trade.Execute(suite.at(0)))
	suite.True(d("-100000").Equal(trade.Quantity()))
}

func (suite *ManagedTradeTestSuite) TestEntryFillOpensBracket() {
	trade := suite.executeLimit()
	suite.enter(trade)

	suite.Equal(types.TradeStateOpen, trade.State())
	suite.True(trade.HasOrderID(2))
	suite.True(trade.HasOrderID(3))
	suite.True(suite.builder.HasOpenPosition("EURUSD"))

	stats := trade.GetStats()
	suite.True(d("1.20010").Equal(stats.FillPrice))
	suite.Equal(suite.at(1), stats.EntryTime)
}

func (suite *ManagedTradeTestSuite) TestTargetFillCancelsStop() {
	suite.conversion = d("0.8")
	trade := suite.executeLimit()
	suite.enter(trade)

	suite.venue.EXPECT().CancelOrder(3).Return(nil)
	suite.Require().NoError(suite.deliver(trade, suite.fill(2, "1.21000", "-100000", 30)))

	suite.Equal(types.TradeStateClosed, trade.State())
	suite.True(trade.Settled())

	stats := trade.GetStats()
	suite.Equal(0, stats.TradeIndex)
	// (1.21000 - 1.20010) * 100000 * 0.8
	suite.True(d("792").Equal(stats.ProfitLoss), stats.ProfitLoss.String())
	suite.True(d("99").Equal(stats.ProfitLossPips), stats.ProfitLossPips.String())
	suite.Equal(suite.at(30), stats.CloseTime)
	suite.False(stats.Canceled)

	// the venue confirms the cancel afterwards; nothing changes
	suite.NoError(trade.OnOrderEvent(types.OrderEvent{OrderID: 3, Symbol: "EURUSD", Status: types.OrderStatusCanceled, Time: suite.at(30)}))
	suite.Equal(types.TradeStateClosed, trade.State())
}

func (suite *ManagedTradeTestSuite) TestStopFillCancelsTarget() {
	trade := suite.executeLimit()
	suite.enter(trade)

	suite.venue.EXPECT().CancelOrder(2).Return(nil)
	suite.Require().NoError(suite.deliver(trade, suite.fill(3, "1.19500", "-100000", 12)))

	suite.Equal(types.TradeStateClosed, trade.State())

	stats := trade.GetStats()
	suite.True(d("-510").Equal(stats.ProfitLoss), stats.ProfitLoss.String())
	suite.True(d("-51").Equal(stats.ProfitLossPips), stats.ProfitLossPips.String())
}

func (suite *ManagedTradeTestSuite) TestStopCancelArrivesBeforeTargetFill() {
	trade := suite.executeLimit()
	suite.enter(trade)

	// the venue reports the OCO cancel ahead of the fill that caused it
	suite.NoError(trade.OnOrderEvent(types.OrderEvent{OrderID: 3, Symbol: "EURUSD", Status: types.OrderStatusCanceled, Time: suite.at(30)}))
	suite.Equal(types.TradeStateOpen, trade.State())

	suite.Require().NoError(suite.deliver(trade, suite.fill(2, "1.21000", "-100000", 30)))

	suite.Equal(types.TradeStateClosed, trade.State())
	suite.True(trade.Settled())
	suite.False(trade.HasOrderID(4))

	stats := trade.GetStats()
	suite.Equal(0, stats.TradeIndex)
	suite.True(d("990").Equal(stats.ProfitLoss), stats.ProfitLoss.String())
	suite.Empty(suite.builder.UnmatchedFills())
}

func (suite *ManagedTradeTestSuite) TestDroppedStopFlattensOnNextBar() {
	trade := suite.executeLimit()
	suite.enter(trade)

	suite.NoError(trade.OnOrderEvent(types.OrderEvent{OrderID: 3, Symbol: "EURUSD", Status: types.OrderStatusCanceled, Time: suite.at(30)}))
	suite.Equal(types.TradeStateOpen, trade.State())

	suite.venue.EXPECT().CancelOrder(2).Return(nil)
	suite.venue.EXPECT().PlaceOrder(isOrder(types.OrderTypeMarket, "-100000", "0", "close:1")).DoAndReturn(accept(4))

	suite.NoError(trade.OnDataUpdate(suite.bar("1.20500", 31)))
	suite.Equal(types.TradeStateClosed, trade.State())
	suite.False(trade.Settled())

	suite.Require().NoError(suite.deliver(trade, suite.fill(4, "1.20500", "-100000", 31)))
	suite.True(trade.Settled())
	suite.True(d("490").Equal(trade.GetStats().ProfitLoss), trade.GetStats().ProfitLoss.String())
}

func (suite *ManagedTradeTestSuite) TestRejectedTargetClosesImmediately() {
	trade := suite.executeLimit()
	suite.enter(trade)

	suite.venue.EXPECT().CancelOrder(3).Return(nil)
	suite.venue.EXPECT().PlaceOrder(isOrder(types.OrderTypeMarket, "-100000", "0", "close:1")).DoAndReturn(accept(4))

	suite.NoError(trade.OnOrderEvent(types.OrderEvent{OrderID: 2, Symbol: "EURUSD", Status: types.OrderStatusInvalid, Time: suite.at(30)}))
	suite.Equal(types.TradeStateClosed, trade.State())
}

func (suite *ManagedTradeTestSuite) TestExitFillAfterFlattenIsReported() {
	trade := suite.executeLimit()
	suite.enter(trade)

	suite.venue.EXPECT().CancelOrder(3).Return(nil)
	suite.venue.EXPECT().CancelOrder(2).Return(nil)
	suite.venue.EXPECT().PlaceOrder(isOrder(types.OrderTypeMarket, "-100000", "0", "close:1")).DoAndReturn(accept(4))
	suite.NoError(trade.Close())

	err := suite.deliver(trade, suite.fill(2, "1.21000", "-100000", 9))
	suite.Equal(errors.ErrCodeDuplicateExit, errors.GetCode(err))
	suite.False(errors.IsProtocolViolation(err))
	suite.Equal(types.TradeStateClosed, trade.State())
}

func (suite *ManagedTradeTestSuite) TestShortProfitLossPips() {
	suite.params.Direction = types.DirectionShort
	suite.params.PriceModel = pricing.FixedPrices{Entry: d("1.2"), Stop: d("1.205"), Target: d("1.19")}
	trade := suite.newTrade()

	suite.venue.EXPECT().PlaceOrder(gomock.Any()).DoAndReturn(accept(1))
	suite.Require().NoError(trade.Execute(suite.at(0)))

	suite.venue.EXPECT().PlaceOrder(isOrder(types.OrderTypeLimit, "100000", "1.19", "tp:1")).DoAndReturn(accept(2))
	suite.venue.EXPECT().PlaceOrder(isOrder(types.OrderTypeStopMarket, "100000", "1.205", "sl:1")).DoAndReturn(accept(3))
	suite.Require().NoError(suite.deliver(trade, suite.fill(1, "1.2", "-100000", 1)))

	suite.venue.EXPECT().CancelOrder(3).Return(nil)
	suite.Require().NoError(suite.deliver(trade, suite.fill(2, "1.19", "100000", 5)))

	stats := trade.GetStats()
	suite.True(d("100").Equal(stats.ProfitLossPips), stats.ProfitLossPips.String())
	suite.True(d("1000").Equal(stats.ProfitLoss), stats.ProfitLoss.String())
}

func (suite *ManagedTradeTestSuite) TestPendingEntryExpires() {
	trade := suite.executeLimit()

	suite.NoError(trade.OnDataUpdate(suite.bar("1.21500", 5)))
	suite.Equal(types.TradeStatePending, trade.State())

	suite.venue.EXPECT().CancelOrder(1).Return(nil)
	suite.NoError(trade.OnDataUpdate(suite.bar("1.21800", 6)))

	suite.Equal(types.TradeStateClosed, trade.State())
	suite.Equal(0, suite.builder.PendingTradeCount())

	stats := trade.GetStats()
	suite.True(stats.Canceled)
	suite.True(stats.FillPrice.IsZero())
	suite.True(stats.ProfitLoss.IsZero())
	suite.True(stats.ProfitLossPips.IsZero())
	suite.Equal(-1, stats.TradeIndex)
	suite.Equal(suite.at(6), stats.CloseTime)

	// closed trades ignore further bars
	suite.NoError(trade.OnDataUpdate(suite.bar("1.30000", 7)))
}

func (suite *ManagedTradeTestSuite) TestEntryCanceledByVenue() {
	trade := suite.executeLimit()

	suite.NoError(trade.OnOrderEvent(types.OrderEvent{OrderID: 1, Symbol: "EURUSD", Status: types.OrderStatusCanceled, Time: suite.at(3)}))

	suite.Equal(types.TradeStateClosed, trade.State())
	suite.True(trade.GetStats().Canceled)
	suite.Equal(0, suite.builder.PendingTradeCount())
}

func (suite *ManagedTradeTestSuite) TestEntryRejectedWhilePending() {
	trade := suite.executeLimit()

	suite.NoError(trade.OnOrderEvent(types.OrderEvent{OrderID: 1, Symbol: "EURUSD", Status: types.OrderStatusInvalid, Time: suite.at(3), Message: "margin"}))

	suite.Equal(types.TradeStateClosed, trade.State())
	suite.True(trade.GetStats().Canceled)
	suite.True(trade.Settled())
}

func (suite *ManagedTradeTestSuite) TestEntryRejectedOnPlacement() {
	trade := suite.newTrade()

	suite.venue.EXPECT().PlaceOrder(gomock.Any()).Return(types.OrderTicket{ID: 1, Status: types.OrderStatusInvalid}, nil)

	err := trade.Execute(suite.at(0))
	suite.Error(err)
	suite.Equal(errors.ErrCodeOrderRejected, errors.GetCode(err))
	suite.Equal(types.TradeStateClosed, trade.State())
	suite.Equal(0, suite.builder.PendingTradeCount())
}

func (suite *ManagedTradeTestSuite) TestVenueErrorClosesTrade() {
	trade := suite.newTrade()

	suite.venue.EXPECT().PlaceOrder(gomock.Any()).Return(types.OrderTicket{}, fmt.Errorf("connection reset"))

	err := trade.Execute(suite.at(0))
	suite.Equal(errors.ErrCodeOrderFailed, errors.GetCode(err))
	suite.Equal(types.TradeStateClosed, trade.State())
}

func (suite *ManagedTradeTestSuite) TestZeroQuantityFailsTrade() {
	suite.params.Sizer = pricing.FixedSize(decimal.Zero)
	trade := suite.newTrade()

	err := trade.Execute(suite.at(0))
	suite.Error(err)
	suite.Equal(errors.ErrCodeZeroQuantity, errors.GetCode(err))
	suite.True(errors.IsConfigurationError(err))
	suite.Equal(types.TradeStateClosed, trade.State())
	suite.Equal(0, suite.builder.PendingTradeCount())
}

func (suite *ManagedTradeTestSuite) TestUnsupportedEntryOrderType() {
	suite.params.EntryOrderType = "TRAILING_STOP"
	trade := suite.newTrade()

	err := trade.Execute(suite.at(0))
	suite.Equal(errors.ErrCodeUnsupportedOrderType, errors.GetCode(err))
	suite.Equal(types.TradeStateClosed, trade.State())
}

func (suite *ManagedTradeTestSuite) TestLevelsOnWrongSideFailTrade() {
	// long prices handed to a short trade
	suite.params.Direction = types.DirectionShort
	trade := suite.newTrade()

	err := trade.Execute(suite.at(0))
	suite.Equal(errors.ErrCodeInvalidPriceModel, errors.GetCode(err))
	suite.Equal(types.TradeStateClosed, trade.State())
	suite.False(trade.HasOrderID(1))
	suite.Equal(0, suite.builder.PendingTradeCount())
}

func (suite *ManagedTradeTestSuite) TestStopRoundedOntoEntryFailsTrade() {
	suite.params.PriceModel = pricing.FixedPrices{Entry: d("1.200004"), Stop: d("1.200001"), Target: d("1.21")}
	trade := suite.newTrade()

	err := trade.Execute(suite.at(0))
	suite.Equal(errors.ErrCodeInvalidPriceModel, errors.GetCode(err))
	suite.Equal(types.TradeStateClosed, trade.State())
}

func (suite *ManagedTradeTestSuite) TestPriceModelErrorFailsTrade() {
	suite.params.PriceModel = pricing.PriceModelFunc(func(types.Direction) (pricing.Levels, error) {
		return pricing.Levels{}, errors.New(errors.ErrCodeInvalidPriceModel, "not ready")
	})
	trade := suite.newTrade()

	err := trade.Execute(suite.at(0))
	suite.Equal(errors.ErrCodeInvalidPriceModel, errors.GetCode(err))
	suite.Equal(types.TradeStateClosed, trade.State())
}

func (suite *ManagedTradeTestSuite) TestDuplicateExecute() {
	trade := suite.executeLimit()

	err := trade.Execute(suite.at(1))
	suite.Equal(errors.ErrCodeDuplicateTrade, errors.GetCode(err))
	suite.Equal(types.TradeStatePending, trade.State())

	suite.venue.EXPECT().CancelOrder(1).Return(nil)
	suite.NoError(trade.Close())

	err = trade.Execute(suite.at(2))
	suite.Equal(errors.ErrCodeTradeClosed, errors.GetCode(err))
}

func (suite *ManagedTradeTestSuite) TestUnknownOrderEvent() {
	trade := suite.executeLimit()

	err := trade.OnOrderEvent(suite.fill(77, "1.2", "1", 1))
	suite.Error(err)
	suite.Equal(errors.ErrCodeUnknownOrderID, errors.GetCode(err))
	suite.Equal(types.TradeStatePending, trade.State())
}

func (suite *ManagedTradeTestSuite) TestMarketEntryEntersImmediately() {
	suite.params.EntryOrderType = types.OrderTypeMarket
	trade := suite.newTrade()

	gomock.InOrder(
		suite.venue.EXPECT().PlaceOrder(isOrder(types.OrderTypeMarket, "100000", "0", "")).DoAndReturn(accept(1)),
		suite.venue.EXPECT().PlaceOrder(isOrder(types.OrderTypeLimit, "-100000", "1.21000", "tp:1")).DoAndReturn(accept(2)),
		suite.venue.EXPECT().PlaceOrder(isOrder(types.OrderTypeStopMarket, "-100000", "1.19500", "sl:1")).DoAndReturn(accept(3)),
	)

	suite.Require().NoError(trade.Execute(suite.at(0)))
	suite.Equal(types.TradeStateOpen, trade.State())
	suite.True(d("1.20000").Equal(trade.GetStats().FillPrice))

	// the venue confirmation refreshes the fill price and places nothing new
	suite.Require().NoError(suite.deliver(trade, suite.fill(1, "1.20003", "100000", 0)))
	suite.Equal(types.TradeStateOpen, trade.State())
	suite.True(d("1.20003").Equal(trade.GetStats().FillPrice))
	suite.True(suite.builder.HasOpenPosition("EURUSD"))
}

func (suite *ManagedTradeTestSuite) TestTrailingStopClimbsOneLevelPerBar() {
	suite.params.TrailingStop = true
	trade := suite.executeLimit()
	suite.enter(trade)

	gomock.InOrder(
		suite.venue.EXPECT().UpdateStopPrice(3, isPrice("1.20010")).Return(nil),
		suite.venue.EXPECT().UpdateStopPrice(3, isPrice("1.21764")).Return(nil),
		suite.venue.EXPECT().UpdateStopPrice(3, isPrice("1.22236")).Return(nil),
		suite.venue.EXPECT().UpdateStopPrice(3, isPrice("1.23")).Return(nil),
	)

	for minute := 2; minute < 8; minute++ {
		suite.NoError(trade.OnDataUpdate(suite.bar("1.25000", minute)))
	}

	suite.Equal(3, trade.StopIndex())
	suite.Equal(types.TradeStateOpen, trade.State())
}

func (suite *ManagedTradeTestSuite) TestTrailingStopDisabled() {
	trade := suite.executeLimit()
	suite.enter(trade)

	suite.NoError(trade.OnDataUpdate(suite.bar("1.25000", 2)))
	suite.Equal(NoStopLevel, trade.StopIndex())
}

func (suite *ManagedTradeTestSuite) TestTrailingStopVenueFailure() {
	suite.params.TrailingStop = true
	trade := suite.executeLimit()
	suite.enter(trade)

	suite.venue.EXPECT().UpdateStopPrice(3, gomock.Any()).Return(fmt.Errorf("stop order gone"))

	err := trade.OnDataUpdate(suite.bar("1.21800", 2))
	suite.Equal(errors.ErrCodeOrderFailed, errors.GetCode(err))
}

func (suite *ManagedTradeTestSuite) TestCloseOpenTradeFlattens() {
	trade := suite.executeLimit()
	suite.enter(trade)

	suite.venue.EXPECT().CancelOrder(3).Return(nil)
	suite.venue.EXPECT().CancelOrder(2).Return(nil)
	suite.venue.EXPECT().PlaceOrder(isOrder(types.OrderTypeMarket, "-100000", "0", "close:1")).DoAndReturn(accept(4))

	suite.NoError(trade.Close())
	suite.Equal(types.TradeStateClosed, trade.State())
	suite.False(trade.Settled())
	suite.True(trade.HasOrderID(4))

	// idempotent
	suite.NoError(trade.Close())

	suite.Require().NoError(suite.deliver(trade, suite.fill(4, "1.20510", "-100000", 9)))
	suite.True(trade.Settled())

	stats := trade.GetStats()
	suite.Equal(0, stats.TradeIndex)
	suite.True(d("500").Equal(stats.ProfitLoss), stats.ProfitLoss.String())
	suite.Equal(suite.at(9), stats.CloseTime)
}

func (suite *ManagedTradeTestSuite) TestClosePendingTrade() {
	trade := suite.executeLimit()

	suite.venue.EXPECT().CancelOrder(1).Return(nil)
	suite.NoError(trade.Close())
	suite.NoError(trade.Close())

	suite.Equal(types.TradeStateClosed, trade.State())
	suite.True(trade.Settled())
	suite.Equal(0, suite.builder.PendingTradeCount())
}

func (suite *ManagedTradeTestSuite) TestRejectedStopFlattens() {
	trade := suite.executeLimit()

	suite.venue.EXPECT().PlaceOrder(isOrder(types.OrderTypeLimit, "-100000", "1.21000", "tp:1")).DoAndReturn(accept(2))
	suite.venue.EXPECT().PlaceOrder(isOrder(types.OrderTypeStopMarket, "-100000", "1.19500", "sl:1")).
		Return(types.OrderTicket{ID: 3, Status: types.OrderStatusInvalid}, nil)
	suite.venue.EXPECT().CancelOrder(2).Return(nil)
	suite.venue.EXPECT().PlaceOrder(isOrder(types.OrderTypeMarket, "-100000", "0", "close:1")).DoAndReturn(accept(4))

	err := suite.deliver(trade, suite.fill(1, "1.20010", "100000", 1))
	suite.Equal(errors.ErrCodeOrderRejected, errors.GetCode(err))
	suite.Equal(types.TradeStateClosed, trade.State())
}

func (suite *ManagedTradeTestSuite) TestSymbolMismatch() {
	trade := suite.executeLimit()

	err := trade.OnDataUpdate(types.Bar{Symbol: "GBPUSD", Close: d("1.3")})
	suite.Equal(errors.ErrCodeSymbolMismatch, errors.GetCode(err))
}
