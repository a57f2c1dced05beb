package trading

import (
	"github.com/rxtech-lab/argo-bracket/internal/types"
	"github.com/shopspring/decimal"
)

// TradingSystem is the execution venue a managed trade submits its orders to.
// Order status changes are not returned here; the venue reports them as order events.
type TradingSystem interface {
	// PlaceOrder submits an order. A request the venue refuses comes back as a ticket with
	// status INVALID rather than an error; errors are reserved for failures to reach the venue.
	PlaceOrder(order types.OrderRequest) (types.OrderTicket, error)
	// CancelOrder cancels a working order. Canceling an order that is no longer working is a no-op.
	CancelOrder(orderID int) error
	// UpdateStopPrice moves the trigger price of a working stop order.
	UpdateStopPrice(orderID int, price decimal.Decimal) error
}
