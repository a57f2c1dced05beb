package commission_fee

import "github.com/shopspring/decimal"

type CommissionFee interface {
	// Calculate returns the commission for a fill of quantity units in account currency.
	// The sign of quantity is ignored.
	Calculate(quantity decimal.Decimal) decimal.Decimal
}

type Broker string

const (
	BrokerInteractiveBroker Broker = "interactive_broker"
	BrokerZero              Broker = "zero_commission"
	BrokerForex             Broker = "forex_per_million"
)

var AllBrokers = []any{
	BrokerInteractiveBroker,
	BrokerZero,
	BrokerForex,
}

func GetCommissionFeeHandler(broker Broker) CommissionFee {
	switch broker {
	case BrokerInteractiveBroker:
		return NewInteractiveBrokerCommissionFee()
	case BrokerForex:
		return NewForexCommissionFee(DefaultForexRatePerMillion)
	case BrokerZero:
		return NewZeroCommissionFee()
	default:
		return NewZeroCommissionFee()
	}
}
