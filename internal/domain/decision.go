package domain

// decision.go — mean-reversion sizing engine.
//
// Pure function of the rolling window and the broker snapshots: the sign of
// (window average - current close) picks the bias, the magnitude scales the
// target position value, and the delta against the current market value is
// what actually gets ordered. All arithmetic is exact decimal; quantities
// truncate to whole units.

import (
	"log/slog"

	"github.com/shopspring/decimal"
)

// DefaultScale is the signal-to-size multiplier applied to the deviation.
var DefaultScale = decimal.NewFromInt(200)

// AllocatedAccount is the slice of the account this strategy may use:
// the raw snapshot already multiplied by the granted allocation fraction.
type AllocatedAccount struct {
	BuyingPower decimal.Decimal
	Equity      decimal.Decimal
	Multiplier  int64
}

// DecisionInput is everything one decision cycle depends on.
type DecisionInput struct {
	Window    *Window
	Close     decimal.Decimal
	Position  PositionSnapshot
	Account   AllocatedAccount
	Shortable bool
	Scale     decimal.Decimal // zero means DefaultScale
}

// Decide turns one price update into at most one order intent. The second
// return is false when nothing should be submitted this cycle: window not
// full, zero-quantity result, or a short blocked by shortability.
func Decide(in DecisionInput) (OrderIntent, bool) {
	if !in.Window.Full() {
		return OrderIntent{}, false
	}
	scale := in.Scale
	if scale.IsZero() {
		scale = DefaultScale
	}

	deviation := in.Window.Average().Sub(in.Close)
	if deviation.Sign() <= 0 {
		return decideShort(in, deviation, scale)
	}
	return decideLong(in, deviation, scale)
}

// decideShort handles a price at or above the rolling average.
func decideShort(in DecisionInput, deviation, scale decimal.Decimal) (OrderIntent, bool) {
	if in.Position.IntQuantity > 0 {
		// Dispose of the existing long before building the short.
		slog.Debug("closing long position before shorting",
			"market_value", in.Position.MarketValue)
		return intent(in.Position.IntQuantity, in.Close, SideSell)
	}

	share := portfolioShare(deviation, in.Close, scale)
	target := in.Account.Equity.Neg().
		Mul(decimal.NewFromInt(in.Account.Multiplier)).
		Mul(share)
	delta := target.Sub(in.Position.MarketValue)

	if delta.Sign() < 0 {
		// Grow the short, bounded by allocated buying power.
		amount := delta.Abs()
		if amount.GreaterThan(in.Account.BuyingPower) {
			amount = in.Account.BuyingPower
		}
		qty := amount.Div(in.Close).IntPart()
		if !in.Shortable {
			slog.Info("short blocked: asset is not shortable", "quantity", qty)
			return OrderIntent{}, false
		}
		return intent(qty, in.Close, SideSell)
	}

	// Shrink the short; never buy back more than is actually short.
	qty := delta.Div(in.Close).IntPart()
	if qty > -in.Position.IntQuantity {
		qty = -in.Position.IntQuantity
	}
	return intent(qty, in.Close, SideBuy)
}

// decideLong handles a price below the rolling average.
func decideLong(in DecisionInput, deviation, scale decimal.Decimal) (OrderIntent, bool) {
	if in.Position.IntQuantity < 0 {
		// Dispose of the existing short before building the long.
		slog.Debug("closing short position before longing",
			"market_value", in.Position.MarketValue)
		return intent(-in.Position.IntQuantity, in.Close, SideBuy)
	}

	share := portfolioShare(deviation, in.Close, scale)
	target := in.Account.Equity.
		Mul(decimal.NewFromInt(in.Account.Multiplier)).
		Mul(share)
	delta := target.Sub(in.Position.MarketValue)

	if delta.Sign() > 0 {
		// Grow the long, bounded by allocated buying power.
		if delta.GreaterThan(in.Account.BuyingPower) {
			delta = in.Account.BuyingPower
		}
		qty := delta.Div(in.Close).IntPart()
		return intent(qty, in.Close, SideBuy)
	}

	// Shrink the long, capped at the held quantity. The shortability gate
	// is kept here on purpose: the sized decrement could overshoot into a
	// short, and the upstream behavior blocks the whole sell in that case.
	qty := delta.Abs().Div(in.Close).IntPart()
	if qty > in.Position.IntQuantity {
		qty = in.Position.IntQuantity
	}
	if !in.Shortable {
		slog.Info("long shrink blocked: asset is not shortable", "quantity", qty)
		return OrderIntent{}, false
	}
	return intent(qty, in.Close, SideSell)
}

// portfolioShare converts a deviation into the fraction of allocated equity
// to target: |deviation| / price * scale.
func portfolioShare(deviation, price, scale decimal.Decimal) decimal.Decimal {
	return deviation.Abs().Div(price).Mul(scale)
}

// intent suppresses zero-quantity orders.
func intent(qty int64, price decimal.Decimal, side Side) (OrderIntent, bool) {
	if qty == 0 {
		return OrderIntent{}, false
	}
	return OrderIntent{Quantity: qty, LimitPrice: price, Side: side}, true
}
