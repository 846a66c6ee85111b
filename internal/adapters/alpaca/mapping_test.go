package alpaca

import (
	"testing"
	"time"

	"github.com/matthewp131/algotrader/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapAccount(t *testing.T) {
	got, err := mapAccount(accountResponse{
		BuyingPower: "80000.50",
		Equity:      "40000.25",
		Multiplier:  "2",
	})
	require.NoError(t, err)
	assert.True(t, got.BuyingPower.Equal(decimal.RequireFromString("80000.50")))
	assert.True(t, got.Equity.Equal(decimal.RequireFromString("40000.25")))
	assert.Equal(t, int64(2), got.Multiplier)
}

func TestMapAccountDefaultsMultiplier(t *testing.T) {
	got, err := mapAccount(accountResponse{BuyingPower: "100", Equity: "100"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Multiplier)
}

func TestMapAccountRejectsBadMoney(t *testing.T) {
	_, err := mapAccount(accountResponse{BuyingPower: "not-a-number", Equity: "100"})
	assert.Error(t, err)
}

func TestMapPositionFloorsTowardNegative(t *testing.T) {
	got, err := mapPosition(positionResponse{
		Symbol:      "AAPL",
		Qty:         "-2.5",
		MarketValue: "-475.20",
	})
	require.NoError(t, err)
	assert.True(t, got.Quantity.Equal(decimal.RequireFromString("-2.5")))
	assert.Equal(t, int64(-3), got.IntQuantity)
	assert.True(t, got.MarketValue.Equal(decimal.RequireFromString("-475.20")))
}

func TestMapCalendar(t *testing.T) {
	got, err := mapCalendar(calendarResponse{
		Date:  "2025-06-02",
		Open:  "09:30",
		Close: "16:00",
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC), got.Open)
	assert.Equal(t, time.Date(2025, 6, 2, 16, 0, 0, 0, time.UTC), got.Close)
}

func TestMapOrderRequestLimit(t *testing.T) {
	body := mapOrderRequest(domain.OrderRequest{
		Symbol:      "AAPL",
		Quantity:    decimal.NewFromInt(10),
		Side:        domain.SideBuy,
		Type:        domain.OrderTypeLimit,
		TimeInForce: domain.TimeInForceGTC,
		LimitPrice:  decimal.RequireFromString("187.35"),
	})
	assert.Equal(t, "AAPL", body.Symbol)
	assert.Equal(t, "10", body.Qty)
	assert.Equal(t, "buy", body.Side)
	assert.Equal(t, "limit", body.Type)
	assert.Equal(t, "gtc", body.TimeInForce)
	assert.Equal(t, "187.35", body.LimitPrice)
}

func TestMapOrderRequestMarketOmitsLimit(t *testing.T) {
	body := mapOrderRequest(domain.OrderRequest{
		Symbol:      "AAPL",
		Quantity:    decimal.RequireFromString("2.5"),
		Side:        domain.SideSell,
		Type:        domain.OrderTypeMarket,
		TimeInForce: domain.TimeInForceGTC,
	})
	assert.Equal(t, "2.5", body.Qty)
	assert.Empty(t, body.LimitPrice)
}

func TestMapTradeEvent(t *testing.T) {
	assert.Equal(t, domain.TradeEventFill, mapTradeEvent("fill"))
	assert.Equal(t, domain.TradeEventRejected, mapTradeEvent("rejected"))
	assert.Equal(t, domain.TradeEventCanceled, mapTradeEvent("canceled"))
	assert.Empty(t, mapTradeEvent("partial_fill"))
	assert.Empty(t, mapTradeEvent("new"))
}
