package ports

import (
	"context"
	"time"

	"github.com/matthewp131/algotrader/internal/domain"
)

// Broker is one authenticated brokerage session: trading, historical data,
// and the two push streams (order updates, price bars). Every run loop owns
// exactly one session, opened with its user's credentials.
type Broker interface {
	// Connect establishes and authenticates the session.
	Connect(ctx context.Context) error

	// Disconnect releases every session resource, including open streams.
	Disconnect(ctx context.Context) error

	// CancelAllOrders cancels every open order on the account so stale
	// orders don't distort buying-power calculations.
	CancelAllOrders(ctx context.Context) error

	// CancelOrder cancels one order by broker order id.
	CancelOrder(ctx context.Context, orderID string) error

	// GetAsset resolves tradability attributes, notably shortability.
	GetAsset(ctx context.Context, symbol string) (domain.Asset, error)

	// GetClock returns the market session clock.
	GetClock(ctx context.Context) (domain.Clock, error)

	// GetCalendar returns the trading session times for the given date.
	GetCalendar(ctx context.Context, date time.Time) (domain.CalendarDay, error)

	// GetHistoricalBars returns recent bars for the symbol, oldest first.
	GetHistoricalBars(ctx context.Context, symbol string, tf domain.Timeframe) ([]domain.Bar, error)

	// SubscribeBars starts the push bar stream for the symbol. The channel
	// closes when the stream ends, whether by UnsubscribeBars, Disconnect,
	// or a session failure.
	SubscribeBars(ctx context.Context, symbol string) (<-chan domain.Bar, error)

	// UnsubscribeBars stops the bar stream and unblocks its consumer.
	UnsubscribeBars(ctx context.Context, symbol string) error

	// TradeUpdates starts the order-update stream. Terminal events only.
	TradeUpdates(ctx context.Context) (<-chan domain.TradeUpdate, error)

	// GetAccount returns the current account snapshot.
	GetAccount(ctx context.Context) (domain.AccountSnapshot, error)

	// GetPosition returns the position in the symbol. ok is false when no
	// position exists; that is not an error.
	GetPosition(ctx context.Context, symbol string) (pos domain.PositionSnapshot, ok bool, err error)

	// SubmitOrder places an order and returns the broker's acknowledgment.
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.PlacedOrder, error)
}

// BrokerDialer opens broker sessions. One session per strategy instance,
// authenticated with the owning user's credentials.
type BrokerDialer interface {
	Dial(ctx context.Context, creds domain.Credentials) (Broker, error)
}
