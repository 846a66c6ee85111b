package alpaca

// broker.go — ports.Broker over the Alpaca REST API plus two websocket
// streams (order updates from the trading host, minute bars from the data
// host). One Broker is one authenticated session for one user.

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/matthewp131/algotrader/internal/domain"
	"github.com/matthewp131/algotrader/internal/ports"
)

// Broker implements ports.Broker against Alpaca.
type Broker struct {
	client         *Client
	tradeStreamURL string
	dataStreamURL  string
	creds          domain.Credentials

	mu          sync.Mutex
	tradeStream *stream
	barStream   *stream
}

// Dialer opens Alpaca sessions. Zero-value base URLs use the paper-trading
// environment.
type Dialer struct {
	TradingBase    string
	DataBase       string
	TradeStreamURL string // e.g. wss://paper-api.alpaca.markets/stream
	DataStreamURL  string // e.g. wss://stream.data.alpaca.markets/v2/iex
}

// Dial implements ports.BrokerDialer.
func (d *Dialer) Dial(_ context.Context, creds domain.Credentials) (ports.Broker, error) {
	tradeStreamURL := d.TradeStreamURL
	if tradeStreamURL == "" {
		tradeStreamURL = "wss://paper-api.alpaca.markets/stream"
	}
	dataStreamURL := d.DataStreamURL
	if dataStreamURL == "" {
		dataStreamURL = "wss://stream.data.alpaca.markets/v2/iex"
	}
	return &Broker{
		client:         NewClient(d.TradingBase, d.DataBase, creds),
		tradeStreamURL: tradeStreamURL,
		dataStreamURL:  dataStreamURL,
		creds:          creds,
	}, nil
}

// Connect verifies the credentials with an account probe. The streams are
// dialed lazily by TradeUpdates and SubscribeBars.
func (b *Broker) Connect(ctx context.Context) error {
	if _, err := b.GetAccount(ctx); err != nil {
		return fmt.Errorf("alpaca.Connect: %w", err)
	}
	return nil
}

// Disconnect tears down both streams.
func (b *Broker) Disconnect(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tradeStream != nil {
		b.tradeStream.close()
		b.tradeStream = nil
	}
	if b.barStream != nil {
		b.barStream.close()
		b.barStream = nil
	}
	return nil
}

// CancelAllOrders cancels every open order on the account.
func (b *Broker) CancelAllOrders(ctx context.Context) error {
	return b.client.delete(ctx, b.client.tradingLimiter, b.client.tradingBase+"/v2/orders")
}

// CancelOrder cancels one order by id.
func (b *Broker) CancelOrder(ctx context.Context, orderID string) error {
	return b.client.delete(ctx, b.client.tradingLimiter,
		b.client.tradingBase+"/v2/orders/"+url.PathEscape(orderID))
}

// GetAsset resolves shortability for the symbol.
func (b *Broker) GetAsset(ctx context.Context, symbol string) (domain.Asset, error) {
	var resp assetResponse
	err := b.client.get(ctx, b.client.tradingLimiter,
		b.client.tradingBase+"/v2/assets/"+url.PathEscape(symbol), &resp)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("alpaca.GetAsset: %w", err)
	}
	return domain.Asset{Symbol: resp.Symbol, Shortable: resp.Shortable}, nil
}

// GetClock returns the market clock.
func (b *Broker) GetClock(ctx context.Context) (domain.Clock, error) {
	var resp clockResponse
	err := b.client.get(ctx, b.client.tradingLimiter, b.client.tradingBase+"/v2/clock", &resp)
	if err != nil {
		return domain.Clock{}, fmt.Errorf("alpaca.GetClock: %w", err)
	}
	return domain.Clock{IsOpen: resp.IsOpen, NextClose: resp.NextClose}, nil
}

// GetCalendar returns the session times for the given date.
func (b *Broker) GetCalendar(ctx context.Context, date time.Time) (domain.CalendarDay, error) {
	day := date.Format("2006-01-02")
	var resp []calendarResponse
	err := b.client.get(ctx, b.client.tradingLimiter,
		b.client.tradingBase+"/v2/calendar?start="+day+"&end="+day, &resp)
	if err != nil {
		return domain.CalendarDay{}, fmt.Errorf("alpaca.GetCalendar: %w", err)
	}
	if len(resp) == 0 {
		return domain.CalendarDay{}, fmt.Errorf("alpaca.GetCalendar: no session for %s", day)
	}
	return mapCalendar(resp[0])
}

// GetHistoricalBars fetches recent bars, oldest first.
func (b *Broker) GetHistoricalBars(ctx context.Context, symbol string, tf domain.Timeframe) ([]domain.Bar, error) {
	u := fmt.Sprintf("%s/v2/stocks/%s/bars?timeframe=%s&limit=%d",
		b.client.dataBase, url.PathEscape(symbol), url.QueryEscape(string(tf)), 1000)
	var resp barsResponse
	if err := b.client.get(ctx, b.client.dataLimiter, u, &resp); err != nil {
		return nil, fmt.Errorf("alpaca.GetHistoricalBars: %w", err)
	}
	return mapBars(symbol, resp.Bars), nil
}

// SubscribeBars dials the market-data stream and subscribes to the symbol's
// minute bars.
func (b *Broker) SubscribeBars(ctx context.Context, symbol string) (<-chan domain.Bar, error) {
	s, ch, err := dialBarStream(ctx, b.dataStreamURL, b.creds, symbol)
	if err != nil {
		return nil, fmt.Errorf("alpaca.SubscribeBars: %w", err)
	}
	b.mu.Lock()
	b.barStream = s
	b.mu.Unlock()
	return ch, nil
}

// UnsubscribeBars closes the market-data stream.
func (b *Broker) UnsubscribeBars(_ context.Context, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.barStream != nil {
		b.barStream.close()
		b.barStream = nil
	}
	return nil
}

// TradeUpdates dials the trading stream and listens for order updates.
func (b *Broker) TradeUpdates(ctx context.Context) (<-chan domain.TradeUpdate, error) {
	s, ch, err := dialTradeStream(ctx, b.tradeStreamURL, b.creds)
	if err != nil {
		return nil, fmt.Errorf("alpaca.TradeUpdates: %w", err)
	}
	b.mu.Lock()
	b.tradeStream = s
	b.mu.Unlock()
	return ch, nil
}

// GetAccount fetches the account snapshot.
func (b *Broker) GetAccount(ctx context.Context) (domain.AccountSnapshot, error) {
	var resp accountResponse
	err := b.client.get(ctx, b.client.tradingLimiter, b.client.tradingBase+"/v2/account", &resp)
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("alpaca.GetAccount: %w", err)
	}
	snap, err := mapAccount(resp)
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("alpaca.GetAccount: %w", err)
	}
	return snap, nil
}

// GetPosition fetches the position; a 404 means flat, not an error.
func (b *Broker) GetPosition(ctx context.Context, symbol string) (domain.PositionSnapshot, bool, error) {
	var resp positionResponse
	err := b.client.get(ctx, b.client.tradingLimiter,
		b.client.tradingBase+"/v2/positions/"+url.PathEscape(symbol), &resp)
	if err != nil {
		var nf *errNotFound
		if errors.As(err, &nf) {
			return domain.PositionSnapshot{}, false, nil
		}
		return domain.PositionSnapshot{}, false, fmt.Errorf("alpaca.GetPosition: %w", err)
	}
	pos, err := mapPosition(resp)
	if err != nil {
		return domain.PositionSnapshot{}, false, fmt.Errorf("alpaca.GetPosition: %w", err)
	}
	return pos, true, nil
}

// SubmitOrder places an order.
func (b *Broker) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.PlacedOrder, error) {
	var resp orderResponse
	err := b.client.post(ctx, b.client.tradingLimiter,
		b.client.tradingBase+"/v2/orders", mapOrderRequest(req), &resp)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("alpaca.SubmitOrder: %w", err)
	}
	return domain.PlacedOrder{ID: resp.ID, SubmittedAt: resp.SubmittedAt}, nil
}
