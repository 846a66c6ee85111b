package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StrategyState is the run loop's current phase, for status reporting.
type StrategyState string

const (
	StateConnecting StrategyState = "connecting"
	StateSeeding    StrategyState = "seeding"
	StateActive     StrategyState = "active"
	StateDraining   StrategyState = "draining"
	StateTerminated StrategyState = "terminated"
)

// StrategyStatus describes one running strategy instance.
type StrategyStatus struct {
	User       string
	Symbol     string
	Allocation decimal.Decimal
	State      StrategyState
	StartedAt  time.Time
}

// UserBalance is one user's remaining tradable allocation.
type UserBalance struct {
	User      string
	Available decimal.Decimal
}

// StatusReport is the snapshot handed to notifiers.
type StatusReport struct {
	Strategies []StrategyStatus
	Balances   []UserBalance
}
