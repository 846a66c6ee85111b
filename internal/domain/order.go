package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType selects limit or market execution.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// TimeInForce is how long an order stays working.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "gtc"
)

// OrderIntent is what the decision engine produces: a whole-unit quantity,
// the limit price, and the side. Consumed immediately; never stored.
type OrderIntent struct {
	Quantity   int64
	LimitPrice decimal.Decimal
	Side       Side
}

// OrderRequest is a concrete order handed to the broker port. Quantity is a
// positive magnitude; direction lives in Side. Fractional quantities are
// allowed for market orders that flatten a position.
type OrderRequest struct {
	Symbol      string
	Quantity    decimal.Decimal
	Side        Side
	Type        OrderType
	TimeInForce TimeInForce
	LimitPrice  decimal.Decimal // ignored for market orders
}

// PlacedOrder is the broker's acknowledgment of a submitted order.
type PlacedOrder struct {
	ID          string
	SubmittedAt time.Time
}

// OrderRecord is the journal entry written for every submitted order.
// Telemetry only: nothing in the core reads it back.
type OrderRecord struct {
	ID            string // local id, assigned before submission
	BrokerOrderID string
	User          string
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      decimal.Decimal
	LimitPrice    decimal.Decimal
	SubmittedAt   time.Time
}

// TradeEvent is a terminal state delivered on the trade-update stream.
type TradeEvent string

const (
	TradeEventFill     TradeEvent = "fill"
	TradeEventRejected TradeEvent = "rejected"
	TradeEventCanceled TradeEvent = "canceled"
)

// Terminal reports whether the event closes the order's lifecycle.
func (e TradeEvent) Terminal() bool {
	switch e {
	case TradeEventFill, TradeEventRejected, TradeEventCanceled:
		return true
	}
	return false
}

// TradeUpdate is one event from the broker's order-update stream.
type TradeUpdate struct {
	OrderID string
	Event   TradeEvent
	At      time.Time
}
