package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeState is the lifecycle state of a managed trade.
type TradeState string

const (
	TradeStatePending TradeState = "PENDING"
	TradeStateOpen    TradeState = "OPEN"
	TradeStateClosed  TradeState = "CLOSED"
)

// TradeSetupData is the summary a managed trade reports to its owner once closed.
type TradeSetupData struct {
	// BarTime is the time of the reference bar the setup was built from.
	BarTime     time.Time       `json:"bar_time" csv:"bar_time"`
	Symbol      string          `json:"symbol" csv:"symbol"`
	Direction   Direction       `json:"direction" csv:"direction"`
	EntryPrice  decimal.Decimal `json:"entry_price" csv:"entry_price"`
	StopPrice   decimal.Decimal `json:"stop_price" csv:"stop_price"`
	TargetPrice decimal.Decimal `json:"target_price" csv:"target_price"`
	EntryTime   time.Time       `json:"entry_time" csv:"entry_time"`
	// FillPrice is zero when the entry never filled.
	FillPrice      decimal.Decimal `json:"fill_price" csv:"fill_price"`
	CloseTime      time.Time       `json:"close_time" csv:"close_time"`
	Canceled       bool            `json:"canceled" csv:"canceled"`
	RiskPips       decimal.Decimal `json:"risk_pips" csv:"risk_pips"`
	RewardPips     decimal.Decimal `json:"reward_pips" csv:"reward_pips"`
	ProfitLossPips decimal.Decimal `json:"pl_pips" csv:"pl_pips"`
	ProfitLoss     decimal.Decimal `json:"profit_loss" csv:"profit_loss"`
	// TradeIndex is the index of the closed trade record, -1 if the trade never completed.
	TradeIndex int `json:"trade_index" csv:"trade_index"`
}

// ClosedTrade is an immutable summary of a round trip matched by the trade builder.
type ClosedTrade struct {
	TradeID     int             `json:"trade_id" csv:"trade_id"`
	Symbol      string          `json:"symbol" csv:"symbol"`
	Direction   Direction       `json:"direction" csv:"direction"`
	OpenTime    time.Time       `json:"open_time" csv:"open_time"`
	EntryTime   time.Time       `json:"entry_time" csv:"entry_time"`
	EntryPrice  decimal.Decimal `json:"entry_price" csv:"entry_price"`
	ExitTime    time.Time       `json:"exit_time" csv:"exit_time"`
	ExitPrice   decimal.Decimal `json:"exit_price" csv:"exit_price"`
	Quantity    decimal.Decimal `json:"quantity" csv:"quantity"`
	StopPrice   decimal.Decimal `json:"stop_price" csv:"stop_price"`
	TargetPrice decimal.Decimal `json:"target_price" csv:"target_price"`
	ProfitLoss  decimal.Decimal `json:"profit_loss" csv:"profit_loss"`
	// MAE is the maximum adverse excursion in account currency (zero or negative).
	MAE decimal.Decimal `json:"mae" csv:"mae"`
	// MFE is the maximum favorable excursion in account currency.
	MFE       decimal.Decimal `json:"mfe" csv:"mfe"`
	TotalFees decimal.Decimal `json:"total_fees" csv:"total_fees"`
}

// Duration returns how long the position was held.
func (c ClosedTrade) Duration() time.Duration {
	return c.ExitTime.Sub(c.EntryTime)
}

// IsWin reports whether the trade closed with a positive profit.
func (c ClosedTrade) IsWin() bool {
	return c.ProfitLoss.IsPositive()
}
