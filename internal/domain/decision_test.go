package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatWindow(value int64) *Window {
	w := NewWindow()
	for i := 0; i < WindowSize; i++ {
		w.Append(decimal.NewFromInt(value))
	}
	return w
}

func account(buyingPower, equity int64) AllocatedAccount {
	return AllocatedAccount{
		BuyingPower: decimal.NewFromInt(buyingPower),
		Equity:      decimal.NewFromInt(equity),
		Multiplier:  1,
	}
}

func TestDecideWaitsForFullWindow(t *testing.T) {
	w := NewWindow()
	w.Append(decimal.NewFromInt(100))

	_, ok := Decide(DecisionInput{
		Window:    w,
		Close:     decimal.NewFromInt(90),
		Account:   account(1000, 1000),
		Shortable: true,
	})
	assert.False(t, ok)
}

func TestDecideBuysBelowAverage(t *testing.T) {
	in := DecisionInput{
		Window:    flatWindow(100),
		Close:     decimal.NewFromInt(90),
		Account:   account(1_000_000_000, 1000),
		Shortable: true,
	}

	intent, ok := Decide(in)
	require.True(t, ok)
	assert.Equal(t, SideBuy, intent.Side)
	// share = 10/90 * 200, target = 1000 * share, qty = target / 90.
	assert.Equal(t, int64(246), intent.Quantity)
	assert.True(t, intent.LimitPrice.Equal(decimal.NewFromInt(90)))
}

func TestDecideBuyCappedByBuyingPower(t *testing.T) {
	in := DecisionInput{
		Window:    flatWindow(100),
		Close:     decimal.NewFromInt(90),
		Account:   account(500, 1000),
		Shortable: true,
	}

	intent, ok := Decide(in)
	require.True(t, ok)
	assert.Equal(t, SideBuy, intent.Side)
	assert.Equal(t, int64(5), intent.Quantity) // 500 / 90, truncated
}

func TestDecideShortsAboveAverage(t *testing.T) {
	in := DecisionInput{
		Window:    flatWindow(100),
		Close:     decimal.NewFromInt(110),
		Account:   account(500, 1000),
		Shortable: true,
	}

	intent, ok := Decide(in)
	require.True(t, ok)
	assert.Equal(t, SideSell, intent.Side)
	assert.Equal(t, int64(4), intent.Quantity) // 500 / 110, truncated
	assert.True(t, intent.LimitPrice.Equal(decimal.NewFromInt(110)))
}

func TestDecideShortBlockedWhenNotShortable(t *testing.T) {
	in := DecisionInput{
		Window:    flatWindow(100),
		Close:     decimal.NewFromInt(110),
		Account:   account(500, 1000),
		Shortable: false,
	}

	_, ok := Decide(in)
	assert.False(t, ok)
}

func TestDecideClosesLongBeforeShorting(t *testing.T) {
	in := DecisionInput{
		Window:    flatWindow(100),
		Close:     decimal.NewFromInt(110),
		Position:  NewPositionSnapshot(decimal.NewFromInt(5), decimal.NewFromInt(550)),
		Account:   account(500, 1000),
		Shortable: true,
	}

	intent, ok := Decide(in)
	require.True(t, ok)
	assert.Equal(t, SideSell, intent.Side)
	assert.Equal(t, int64(5), intent.Quantity)
}

func TestDecideClosesShortBeforeLonging(t *testing.T) {
	in := DecisionInput{
		Window:    flatWindow(100),
		Close:     decimal.NewFromInt(90),
		Position:  NewPositionSnapshot(decimal.NewFromInt(-3), decimal.NewFromInt(-270)),
		Account:   account(500, 1000),
		Shortable: true,
	}

	intent, ok := Decide(in)
	require.True(t, ok)
	assert.Equal(t, SideBuy, intent.Side)
	assert.Equal(t, int64(3), intent.Quantity)
}

func TestDecideShrinksShortCappedAtHeld(t *testing.T) {
	in := DecisionInput{
		Window:    flatWindow(100),
		Close:     decimal.NewFromInt(110),
		Position:  NewPositionSnapshot(decimal.NewFromInt(-10), decimal.NewFromInt(-1100)),
		Account:   account(500, 1),
		Shortable: true,
	}

	intent, ok := Decide(in)
	require.True(t, ok)
	assert.Equal(t, SideBuy, intent.Side)
	// target is near zero, so the buy-back is almost the whole short.
	assert.Equal(t, int64(9), intent.Quantity)
	assert.LessOrEqual(t, intent.Quantity, int64(10))
}

func TestDecideShrinksLong(t *testing.T) {
	in := DecisionInput{
		Window:    flatWindow(100),
		Close:     decimal.NewFromInt(90),
		Position:  NewPositionSnapshot(decimal.NewFromInt(10), decimal.NewFromInt(900)),
		Account:   account(500, 1),
		Shortable: true,
	}

	intent, ok := Decide(in)
	require.True(t, ok)
	assert.Equal(t, SideSell, intent.Side)
	assert.Equal(t, int64(9), intent.Quantity)
}

func TestDecideLongShrinkBlockedWhenNotShortable(t *testing.T) {
	in := DecisionInput{
		Window:    flatWindow(100),
		Close:     decimal.NewFromInt(90),
		Position:  NewPositionSnapshot(decimal.NewFromInt(10), decimal.NewFromInt(900)),
		Account:   account(500, 1),
		Shortable: false,
	}

	_, ok := Decide(in)
	assert.False(t, ok)
}

func TestDecideSuppressesZeroQuantity(t *testing.T) {
	// Price exactly at the average: zero deviation, zero target, no order.
	in := DecisionInput{
		Window:    flatWindow(100),
		Close:     decimal.NewFromInt(100),
		Account:   account(500, 1000),
		Shortable: true,
	}

	_, ok := Decide(in)
	assert.False(t, ok)
}

func TestDecideIsDeterministic(t *testing.T) {
	in := DecisionInput{
		Window:    flatWindow(100),
		Close:     decimal.NewFromInt(93),
		Account:   account(2000, 1500),
		Shortable: true,
	}

	first, ok1 := Decide(in)
	second, ok2 := Decide(in)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, first.Quantity, second.Quantity)
	assert.Equal(t, first.Side, second.Side)
	assert.True(t, first.LimitPrice.Equal(second.LimitPrice))
}

func TestDecideCustomScale(t *testing.T) {
	base := DecisionInput{
		Window:    flatWindow(100),
		Close:     decimal.NewFromInt(90),
		Account:   account(1_000_000_000, 1000),
		Shortable: true,
	}

	small := base
	small.Scale = decimal.NewFromInt(100)

	full, ok := Decide(base)
	require.True(t, ok)
	half, ok := Decide(small)
	require.True(t, ok)
	assert.Less(t, half.Quantity, full.Quantity)
}
