package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-bracket/pkg/errors"
	"github.com/shopspring/decimal"
)

type OrderType string

type OrderStatus string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
)

const (
	OrderStatusSubmitted OrderStatus = "SUBMITTED"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
	OrderStatusInvalid   OrderStatus = "INVALID"
)

var AllOrderTypes = []any{
	OrderTypeMarket,
	OrderTypeLimit,
	OrderTypeStopMarket,
}

// IsClosed reports whether the status is terminal.
func (s OrderStatus) IsClosed() bool {
	return s == OrderStatusFilled || s == OrderStatusCanceled || s == OrderStatusInvalid
}

const (
	TagTakeProfit = "tp"
	TagStopLoss   = "sl"
)

// ManagementTag builds the tag attached to stop/target orders, e.g. "sl:12".
func ManagementTag(kind string, entryOrderID int) string {
	return fmt.Sprintf("%s:%d", kind, entryOrderID)
}

// OrderRequest is what the trade controller sends to the venue.
type OrderRequest struct {
	Symbol string    `yaml:"symbol" json:"symbol" validate:"required"`
	Type   OrderType `yaml:"type" json:"type" validate:"required,oneof=MARKET LIMIT STOP_MARKET"`
	// Quantity is signed: positive buys, negative sells.
	Quantity decimal.Decimal `yaml:"quantity" json:"quantity"`
	// Price is the limit price for LIMIT orders and the trigger price for STOP_MARKET orders.
	Price decimal.Decimal `yaml:"price" json:"price"`
	Tag   string          `yaml:"tag" json:"tag"`
}

// Validate validates the OrderRequest struct.
func (r *OrderRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order request", err)
	}

	if r.Quantity.IsZero() {
		return errors.New(errors.ErrCodeZeroQuantity, "order quantity must not be zero")
	}

	if r.Type != OrderTypeMarket && !r.Price.IsPositive() {
		return errors.Newf(errors.ErrCodeInvalidOrder, "%s order price must be greater than zero: %s", r.Type, r.Price)
	}

	return nil
}

// OrderTicket is the handle the venue returns for a submitted order.
// The controller that submitted it keeps it current by applying order events.
type OrderTicket struct {
	ID               int             `json:"id"`
	Symbol           string          `json:"symbol"`
	Type             OrderType       `json:"type"`
	Quantity         decimal.Decimal `json:"quantity"`
	Price            decimal.Decimal `json:"price"`
	Tag              string          `json:"tag"`
	Status           OrderStatus     `json:"status"`
	QuantityFilled   decimal.Decimal `json:"quantity_filled"`
	AverageFillPrice decimal.Decimal `json:"average_fill_price"`
}

// Apply folds an order event into the ticket.
func (t *OrderTicket) Apply(event OrderEvent) {
	if event.OrderID != t.ID {
		return
	}

	if event.Status == OrderStatusFilled && !event.FillQuantity.IsZero() {
		filled := t.QuantityFilled.Add(event.FillQuantity)
		if !filled.IsZero() {
			notional := t.AverageFillPrice.Mul(t.QuantityFilled).Add(event.FillPrice.Mul(event.FillQuantity))
			t.AverageFillPrice = notional.Div(filled)
		}

		t.QuantityFilled = filled
	}

	// terminal statuses are final
	if !t.Status.IsClosed() {
		t.Status = event.Status
	}
}

// OrderEvent is a status notification from the venue.
type OrderEvent struct {
	OrderID      int             `json:"order_id"`
	Symbol       string          `json:"symbol"`
	Status       OrderStatus     `json:"status"`
	FillPrice    decimal.Decimal `json:"fill_price"`
	FillQuantity decimal.Decimal `json:"fill_quantity"`
	Fee          decimal.Decimal `json:"fee"`
	Time         time.Time       `json:"time"`
	Message      string          `json:"message"`
}

// IsFill reports whether the event carries a nonzero fill.
func (e OrderEvent) IsFill() bool {
	return e.Status == OrderStatusFilled && !e.FillQuantity.IsZero()
}

func (e OrderEvent) String() string {
	return fmt.Sprintf("OrderID:%d Symbol:%s Status:%s Quantity:%s Price:%s",
		e.OrderID, e.Symbol, e.Status, e.FillQuantity, e.FillPrice)
}
