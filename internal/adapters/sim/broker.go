package sim

// broker.go — in-memory broker for paper trading and tests.
//
// Two ways to drive it: tests script it directly (PushBar, PushTradeUpdate,
// SetPosition, error injection per operation), and paper mode gives it a
// synthetic random-walk feed so the whole stack runs without a brokerage
// account. Orders are acknowledged immediately and, when AutoFill is on,
// filled against the last price with the position and account updated.

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matthewp131/algotrader/internal/domain"
	"github.com/matthewp131/algotrader/internal/ports"
	"github.com/shopspring/decimal"
)

// Options configure a simulated session.
type Options struct {
	// StartPrice seeds the synthetic feed and the historical bars.
	StartPrice decimal.Decimal

	// FeedInterval emits a random-walk bar this often. Zero disables the
	// synthetic feed; tests push bars by hand instead.
	FeedInterval time.Duration

	// HistoryBars is how many synthetic historical bars to serve.
	HistoryBars int

	// Shortable is the asset's short-eligibility.
	Shortable bool

	// AutoFill fills submitted orders immediately at the last price and
	// emits the corresponding trade update.
	AutoFill bool

	// Equity and BuyingPower seed the account snapshot.
	Equity      decimal.Decimal
	BuyingPower decimal.Decimal
	Multiplier  int64

	// NextClose is the clock's next market close. Zero means far future.
	NextClose time.Time

	// Seed makes the random walk reproducible.
	Seed int64
}

// Broker is a scriptable in-memory implementation of ports.Broker.
type Broker struct {
	opts Options

	mu        sync.Mutex
	connected bool
	lastPrice decimal.Decimal
	position  decimal.Decimal
	equity    decimal.Decimal
	nextClose time.Time
	history   []domain.Bar

	orders   map[string]domain.OrderRequest // open orders by id
	canceled []string
	all      []domain.OrderRequest // every submitted order, in order

	barCh   chan domain.Bar
	tradeCh chan domain.TradeUpdate
	feedRng *rand.Rand
	stopped chan struct{}

	// Error injection: op name -> error returned by that operation.
	fail map[string]error
}

// New creates a simulated broker session.
func New(opts Options) *Broker {
	if opts.StartPrice.IsZero() {
		opts.StartPrice = decimal.NewFromInt(100)
	}
	if opts.HistoryBars <= 0 {
		opts.HistoryBars = domain.WindowSize + 1
	}
	if opts.Equity.IsZero() {
		opts.Equity = decimal.NewFromInt(100000)
	}
	if opts.BuyingPower.IsZero() {
		opts.BuyingPower = opts.Equity.Mul(decimal.NewFromInt(2))
	}
	if opts.Multiplier == 0 {
		opts.Multiplier = 1
	}
	if opts.NextClose.IsZero() {
		opts.NextClose = time.Now().Add(24 * time.Hour)
	}
	return &Broker{
		opts:      opts,
		lastPrice: opts.StartPrice,
		equity:    opts.Equity,
		nextClose: opts.NextClose,
		orders:    make(map[string]domain.OrderRequest),
		barCh:     make(chan domain.Bar, 64),
		tradeCh:   make(chan domain.TradeUpdate, 64),
		feedRng:   rand.New(rand.NewSource(opts.Seed)),
		stopped:   make(chan struct{}),
		fail:      make(map[string]error),
	}
}

// FailWith makes the named operation return err. Operation names match the
// ports.Broker method names. Pass nil to clear.
func (b *Broker) FailWith(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.fail, op)
		return
	}
	b.fail[op] = err
}

func (b *Broker) failure(op string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fail[op]
}

// Connect marks the session open.
func (b *Broker) Connect(context.Context) error {
	if err := b.failure("Connect"); err != nil {
		return err
	}
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	return nil
}

// Disconnect closes the session and both streams.
func (b *Broker) Disconnect(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil
	}
	b.connected = false
	close(b.stopped)
	close(b.tradeCh)
	b.tradeCh = nil
	return nil
}

// CancelAllOrders drops every open order.
func (b *Broker) CancelAllOrders(context.Context) error {
	if err := b.failure("CancelAllOrders"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.orders {
		b.canceled = append(b.canceled, id)
		delete(b.orders, id)
	}
	return nil
}

// CancelOrder drops one open order and emits a canceled trade update.
func (b *Broker) CancelOrder(_ context.Context, orderID string) error {
	if err := b.failure("CancelOrder"); err != nil {
		return err
	}
	b.mu.Lock()
	_, open := b.orders[orderID]
	delete(b.orders, orderID)
	b.canceled = append(b.canceled, orderID)
	b.mu.Unlock()
	if open {
		b.PushTradeUpdate(domain.TradeUpdate{
			OrderID: orderID,
			Event:   domain.TradeEventCanceled,
			At:      time.Now(),
		})
	}
	return nil
}

// GetAsset reports the configured shortability.
func (b *Broker) GetAsset(_ context.Context, symbol string) (domain.Asset, error) {
	if err := b.failure("GetAsset"); err != nil {
		return domain.Asset{}, err
	}
	return domain.Asset{Symbol: symbol, Shortable: b.opts.Shortable}, nil
}

// GetClock returns an open market with the configured next close.
func (b *Broker) GetClock(context.Context) (domain.Clock, error) {
	if err := b.failure("GetClock"); err != nil {
		return domain.Clock{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return domain.Clock{IsOpen: true, NextClose: b.nextClose}, nil
}

// SetNextClose reschedules the simulated market close.
func (b *Broker) SetNextClose(t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextClose = t
}

// GetCalendar returns today's session closing at the configured next close.
func (b *Broker) GetCalendar(_ context.Context, date time.Time) (domain.CalendarDay, error) {
	if err := b.failure("GetCalendar"); err != nil {
		return domain.CalendarDay{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	day := date.Truncate(24 * time.Hour)
	return domain.CalendarDay{Date: day, Open: day, Close: b.nextClose}, nil
}

// SetHistory scripts the bars served by GetHistoricalBars, oldest first.
// When unset, a synthetic random walk is served instead.
func (b *Broker) SetHistory(bars []domain.Bar) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = make([]domain.Bar, len(bars))
	copy(b.history, bars)
}

// GetHistoricalBars serves the scripted history when set, otherwise a
// synthetic random walk ending at the start price.
func (b *Broker) GetHistoricalBars(_ context.Context, symbol string, _ domain.Timeframe) ([]domain.Bar, error) {
	if err := b.failure("GetHistoricalBars"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.history) > 0 {
		out := make([]domain.Bar, len(b.history))
		copy(out, b.history)
		return out, nil
	}

	now := time.Now()
	bars := make([]domain.Bar, b.opts.HistoryBars)
	price := b.opts.StartPrice
	for i := b.opts.HistoryBars - 1; i >= 0; i-- {
		bars[i] = domain.Bar{
			Symbol: symbol,
			Time:   now.Add(-time.Duration(b.opts.HistoryBars-1-i) * time.Minute),
			Close:  price,
		}
		price = b.step(price)
	}
	return bars, nil
}

// SubscribeBars returns the bar channel; with FeedInterval set it also
// starts the synthetic feed.
func (b *Broker) SubscribeBars(_ context.Context, symbol string) (<-chan domain.Bar, error) {
	if err := b.failure("SubscribeBars"); err != nil {
		return nil, err
	}
	if b.opts.FeedInterval > 0 {
		go b.feed(symbol)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.barCh, nil
}

// feed emits random-walk bars until the session closes or the stream is
// torn down. Delivery happens under the mutex that also guards the close,
// so a send can never race the teardown. The channel is buffered; a full
// buffer drops the bar, like a real feed outrunning its consumer.
func (b *Broker) feed(symbol string) {
	ticker := time.NewTicker(b.opts.FeedInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopped:
			return
		case t := <-ticker.C:
			b.mu.Lock()
			if b.barCh == nil {
				b.mu.Unlock()
				return
			}
			b.lastPrice = b.step(b.lastPrice)
			select {
			case b.barCh <- domain.Bar{Symbol: symbol, Time: t, Close: b.lastPrice}:
			default:
			}
			b.mu.Unlock()
		}
	}
}

// step applies a small random move to the price. Callers hold b.mu or own
// the broker exclusively.
func (b *Broker) step(price decimal.Decimal) decimal.Decimal {
	move := decimal.NewFromFloat((b.feedRng.Float64() - 0.5) * 0.004)
	next := price.Mul(decimal.NewFromInt(1).Add(move))
	return next.Round(4)
}

// UnsubscribeBars closes the bar channel.
func (b *Broker) UnsubscribeBars(_ context.Context, _ string) error {
	if err := b.failure("UnsubscribeBars"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.barCh != nil {
		close(b.barCh)
		b.barCh = nil
	}
	return nil
}

// TradeUpdates returns the trade-update channel.
func (b *Broker) TradeUpdates(context.Context) (<-chan domain.TradeUpdate, error) {
	if err := b.failure("TradeUpdates"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tradeCh, nil
}

// GetAccount returns the configured account scaled by fills so far.
func (b *Broker) GetAccount(context.Context) (domain.AccountSnapshot, error) {
	if err := b.failure("GetAccount"); err != nil {
		return domain.AccountSnapshot{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return domain.AccountSnapshot{
		BuyingPower: b.opts.BuyingPower,
		Equity:      b.equity,
		Multiplier:  b.opts.Multiplier,
	}, nil
}

// GetPosition reports the simulated position; ok=false when flat.
func (b *Broker) GetPosition(context.Context, string) (domain.PositionSnapshot, bool, error) {
	if err := b.failure("GetPosition"); err != nil {
		return domain.PositionSnapshot{}, false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.position.IsZero() {
		return domain.PositionSnapshot{}, false, nil
	}
	return domain.NewPositionSnapshot(b.position, b.position.Mul(b.lastPrice)), true, nil
}

// SetPosition scripts the current position for tests.
func (b *Broker) SetPosition(quantity decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.position = quantity
}

// SubmitOrder acknowledges the order, optionally filling it immediately.
func (b *Broker) SubmitOrder(_ context.Context, req domain.OrderRequest) (domain.PlacedOrder, error) {
	if err := b.failure("SubmitOrder"); err != nil {
		return domain.PlacedOrder{}, err
	}

	id := uuid.New().String()
	b.mu.Lock()
	b.all = append(b.all, req)
	b.orders[id] = req
	if b.opts.AutoFill {
		delete(b.orders, id)
		qty := req.Quantity
		if req.Side == domain.SideSell {
			qty = qty.Neg()
		}
		b.position = b.position.Add(qty)
	}
	b.mu.Unlock()

	if b.opts.AutoFill {
		b.PushTradeUpdate(domain.TradeUpdate{
			OrderID: id,
			Event:   domain.TradeEventFill,
			At:      time.Now(),
		})
	}
	return domain.PlacedOrder{ID: id, SubmittedAt: time.Now()}, nil
}

// PushBar delivers one bar to the subscriber. Tests drive the loop with it.
// Bars pushed after the stream is torn down are dropped.
func (b *Broker) PushBar(bar domain.Bar) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastPrice = bar.Close
	if b.barCh == nil {
		return
	}
	select {
	case b.barCh <- bar:
	default:
	}
}

// PushTradeUpdate delivers one trade update to the subscriber. Updates
// pushed after the session is disconnected are dropped, mirroring a real
// stream going away.
func (b *Broker) PushTradeUpdate(upd domain.TradeUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tradeCh == nil {
		return
	}
	select {
	case b.tradeCh <- upd:
	default:
	}
}

// SubmittedOrders returns every order seen, in submission order.
func (b *Broker) SubmittedOrders() []domain.OrderRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.OrderRequest, len(b.all))
	copy(out, b.all)
	return out
}

// CanceledOrders returns the ids of canceled orders.
func (b *Broker) CanceledOrders() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.canceled))
	copy(out, b.canceled)
	return out
}

// OpenOrders returns how many orders are currently open.
func (b *Broker) OpenOrders() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}

// OpenOrderIDs returns the ids of the currently open orders.
func (b *Broker) OpenOrderIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.orders))
	for id := range b.orders {
		ids = append(ids, id)
	}
	return ids
}

// Dialer hands out simulated sessions. Each Dial creates a fresh broker
// from the same options; Session retrieves it afterward, keyed by the
// credential key, so tests and paper mode can script or inspect it.
type Dialer struct {
	Opts Options

	mu       sync.Mutex
	sessions map[string]*Broker
}

// NewDialer creates a dialer producing sessions with the given options.
func NewDialer(opts Options) *Dialer {
	return &Dialer{Opts: opts, sessions: make(map[string]*Broker)}
}

// Dial implements ports.BrokerDialer.
func (d *Dialer) Dial(_ context.Context, creds domain.Credentials) (ports.Broker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := New(d.Opts)
	d.sessions[creds.Key] = b
	return b, nil
}

// Session returns the most recent session dialed for the credential key.
func (d *Dialer) Session(key string) (*Broker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.sessions[key]
	if !ok {
		return nil, fmt.Errorf("sim.Session: no session for key %q", key)
	}
	return b, nil
}
