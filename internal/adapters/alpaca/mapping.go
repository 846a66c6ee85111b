package alpaca

// mapping.go — wire → domain conversions.

import (
	"fmt"
	"time"

	"github.com/matthewp131/algotrader/internal/domain"
	"github.com/shopspring/decimal"
)

func mapAccount(in accountResponse) (domain.AccountSnapshot, error) {
	buyingPower, err := decimal.NewFromString(in.BuyingPower)
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("buying_power %q: %w", in.BuyingPower, err)
	}
	equity, err := decimal.NewFromString(in.Equity)
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("equity %q: %w", in.Equity, err)
	}
	multiplier := int64(1)
	if in.Multiplier != "" {
		m, err := decimal.NewFromString(in.Multiplier)
		if err != nil {
			return domain.AccountSnapshot{}, fmt.Errorf("multiplier %q: %w", in.Multiplier, err)
		}
		multiplier = m.IntPart()
	}
	return domain.AccountSnapshot{
		BuyingPower: buyingPower,
		Equity:      equity,
		Multiplier:  multiplier,
	}, nil
}

func mapPosition(in positionResponse) (domain.PositionSnapshot, error) {
	qty, err := decimal.NewFromString(in.Qty)
	if err != nil {
		return domain.PositionSnapshot{}, fmt.Errorf("qty %q: %w", in.Qty, err)
	}
	marketValue := decimal.Zero
	if in.MarketValue != "" {
		marketValue, err = decimal.NewFromString(in.MarketValue)
		if err != nil {
			return domain.PositionSnapshot{}, fmt.Errorf("market_value %q: %w", in.MarketValue, err)
		}
	}
	return domain.NewPositionSnapshot(qty, marketValue), nil
}

func mapCalendar(in calendarResponse) (domain.CalendarDay, error) {
	date, err := time.Parse("2006-01-02", in.Date)
	if err != nil {
		return domain.CalendarDay{}, fmt.Errorf("date %q: %w", in.Date, err)
	}
	open, err := sessionTime(date, in.Open)
	if err != nil {
		return domain.CalendarDay{}, fmt.Errorf("open %q: %w", in.Open, err)
	}
	close, err := sessionTime(date, in.Close)
	if err != nil {
		return domain.CalendarDay{}, fmt.Errorf("close %q: %w", in.Close, err)
	}
	return domain.CalendarDay{Date: date, Open: open, Close: close}, nil
}

// sessionTime combines a calendar date with an HH:MM session time.
func sessionTime(date time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}

func mapBars(symbol string, in []barResponse) []domain.Bar {
	bars := make([]domain.Bar, 0, len(in))
	for _, b := range in {
		bars = append(bars, domain.Bar{
			Symbol: symbol,
			Time:   b.Time,
			Close:  decimal.NewFromFloat(b.Close),
		})
	}
	return bars
}

func mapOrderRequest(req domain.OrderRequest) orderRequestBody {
	body := orderRequestBody{
		Symbol:      req.Symbol,
		Qty:         req.Quantity.String(),
		Side:        string(req.Side),
		Type:        string(req.Type),
		TimeInForce: string(req.TimeInForce),
	}
	if req.Type == domain.OrderTypeLimit {
		body.LimitPrice = req.LimitPrice.String()
	}
	return body
}

// mapTradeEvent normalizes stream event names; partial fills and other
// non-terminal events map to an empty event the consumer ignores.
func mapTradeEvent(event string) domain.TradeEvent {
	switch event {
	case "fill":
		return domain.TradeEventFill
	case "rejected":
		return domain.TradeEventRejected
	case "canceled":
		return domain.TradeEventCanceled
	}
	return ""
}
