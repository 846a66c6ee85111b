package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe is the bar aggregation interval requested from the broker.
type Timeframe string

const (
	TimeframeMinute Timeframe = "1Min"
)

// Bar is one aggregated price bar. Only the close participates in the
// mean-reversion signal; the rest is kept for the journal.
type Bar struct {
	Symbol string
	Time   time.Time
	Close  decimal.Decimal
}

// Clock is the broker's view of the trading session.
type Clock struct {
	IsOpen    bool
	NextClose time.Time
}

// CalendarDay describes one trading day's session times.
type CalendarDay struct {
	Date  time.Time
	Open  time.Time
	Close time.Time
}

// Asset carries the tradability attributes the strategy cares about.
type Asset struct {
	Symbol    string
	Shortable bool
}

// AccountSnapshot is the broker account state at one decision cycle.
// Re-fetched every cycle, never cached.
type AccountSnapshot struct {
	BuyingPower decimal.Decimal
	Equity      decimal.Decimal
	Multiplier  int64
}

// PositionSnapshot is the current holding in one symbol. IntQuantity is the
// whole-unit quantity (floor of Quantity, so -2.5 shares reads as -3).
type PositionSnapshot struct {
	Quantity    decimal.Decimal
	IntQuantity int64
	MarketValue decimal.Decimal
}

// NewPositionSnapshot derives the integer quantity from the fractional one.
func NewPositionSnapshot(quantity, marketValue decimal.Decimal) PositionSnapshot {
	return PositionSnapshot{
		Quantity:    quantity,
		IntQuantity: quantity.Floor().IntPart(),
		MarketValue: marketValue,
	}
}

// Credentials identify one user's broker account.
type Credentials struct {
	Key    string
	Secret string
}
