package strategy

// runner.go — one strategy instance's run loop.
//
// Connecting → Seeding → Active → Draining → Terminated. The loop owns its
// rolling window and its broker session; the only shared state it touches is
// the ledger, and that happens in the manager's wrapper, not here. Bar
// updates are processed strictly one at a time: the select loop is the only
// consumer of both push streams, so decision cycles never overlap.

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/matthewp131/algotrader/internal/domain"
	"github.com/matthewp131/algotrader/internal/ports"
	"github.com/shopspring/decimal"
)

const (
	// closeBuffer: once the next market close is this near, drain.
	defaultCloseBuffer = 15 * time.Minute

	// seedLookback: seeded closes older than this are discarded.
	seedLookback = time.Hour

	// drainTimeout bounds the flatten-and-cleanup sequence, which runs on
	// a fresh context because the loop's own context may already be done.
	drainTimeout = 30 * time.Second
)

// buyingPowerHaircut keeps sizing well inside the account's raw buying
// power: only 10% of it is ever considered, before the allocation fraction.
var buyingPowerHaircut = decimal.NewFromFloat(0.10)

// Config parameterizes one run loop.
type Config struct {
	Symbol      string
	Allocation  decimal.Decimal
	Scale       decimal.Decimal // zero means domain.DefaultScale
	CloseBuffer time.Duration   // zero means 15 minutes
}

// Runner drives a single strategy instance against one broker session.
type Runner struct {
	user    string
	cfg     Config
	broker  ports.Broker
	journal ports.Journal

	window    *domain.Window
	shortable bool

	// Outstanding-order tracking. Written only from the run loop goroutine;
	// at most one order is working at any time.
	lastOrderID   string
	lastOrderOpen bool

	state atomic.Value // domain.StrategyState
}

// New creates a run loop bound to an already-dialed broker session.
func New(user string, broker ports.Broker, journal ports.Journal, cfg Config) *Runner {
	if cfg.CloseBuffer <= 0 {
		cfg.CloseBuffer = defaultCloseBuffer
	}
	r := &Runner{
		user:    user,
		cfg:     cfg,
		broker:  broker,
		journal: journal,
		window:  domain.NewWindow(),
	}
	r.state.Store(domain.StateConnecting)
	return r
}

// State returns the loop's current phase. Safe to call concurrently.
func (r *Runner) State() domain.StrategyState {
	return r.state.Load().(domain.StrategyState)
}

// Run executes the full lifecycle and returns when the strategy terminates:
// by cancellation, by the approaching market close, or by a session-level
// broker failure. Cleanup runs on every path exactly once.
func (r *Runner) Run(ctx context.Context) (err error) {
	defer func() {
		r.state.Store(domain.StateTerminated)
		if derr := r.broker.Disconnect(context.Background()); derr != nil {
			slog.Warn("broker disconnect failed", "user", r.user, "err", derr)
		}
	}()

	tradeCh, barCh, err := r.connect(ctx)
	if err != nil {
		return fmt.Errorf("strategy.Run: connect: %w", err)
	}
	defer r.drain()

	r.state.Store(domain.StateSeeding)
	lastBar, err := r.seed(ctx)
	if err != nil {
		return fmt.Errorf("strategy.Run: seed: %w", err)
	}

	r.state.Store(domain.StateActive)

	// First decision comes straight off the most recent historical bar.
	if err := r.handleBar(ctx, lastBar); err != nil {
		return fmt.Errorf("strategy.Run: initial bar: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("cancellation requested, closing positions", "user", r.user, "symbol", r.cfg.Symbol)
			return nil

		case upd, ok := <-tradeCh:
			if !ok {
				tradeCh = nil
				continue
			}
			r.applyTradeUpdate(ctx, upd)

		case bar, ok := <-barCh:
			if !ok {
				return fmt.Errorf("strategy.Run: bar stream closed")
			}

			clock, err := r.broker.GetClock(ctx)
			if err != nil {
				return fmt.Errorf("strategy.Run: clock: %w", err)
			}
			if time.Until(clock.NextClose) < r.cfg.CloseBuffer {
				slog.Info("reached the end of the trading window",
					"user", r.user, "symbol", r.cfg.Symbol,
					"next_close", clock.NextClose)
				return nil
			}

			if err := r.handleBar(ctx, bar); err != nil {
				return fmt.Errorf("strategy.Run: bar update: %w", err)
			}
		}
	}
}

// connect is the Connecting phase: open the session, start the order-update
// stream, clear stale orders, resolve shortability, start the bar stream.
func (r *Runner) connect(ctx context.Context) (<-chan domain.TradeUpdate, <-chan domain.Bar, error) {
	if err := r.broker.Connect(ctx); err != nil {
		return nil, nil, err
	}

	tradeCh, err := r.broker.TradeUpdates(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("trade updates: %w", err)
	}

	// Pre-existing open orders would distort buying-power math.
	if err := r.broker.CancelAllOrders(ctx); err != nil {
		return nil, nil, fmt.Errorf("cancel open orders: %w", err)
	}

	asset, err := r.broker.GetAsset(ctx, r.cfg.Symbol)
	if err != nil {
		return nil, nil, fmt.Errorf("asset %q: %w", r.cfg.Symbol, err)
	}
	r.shortable = asset.Shortable

	barCh, err := r.broker.SubscribeBars(ctx, r.cfg.Symbol)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe bars: %w", err)
	}

	slog.Info("broker session opened",
		"user", r.user, "symbol", r.cfg.Symbol, "shortable", r.shortable)
	return tradeCh, barCh, nil
}

// seed is the Seeding phase: fill the window from the most recent historical
// minute bars that fall inside the last trading hour, and return the single
// newest bar as the first decision input.
func (r *Runner) seed(ctx context.Context) (domain.Bar, error) {
	if day, err := r.broker.GetCalendar(ctx, time.Now()); err != nil {
		slog.Warn("calendar lookup failed", "user", r.user, "err", err)
	} else {
		slog.Debug("trading session", "date", day.Date.Format("2006-01-02"), "close", day.Close)
	}

	bars, err := r.broker.GetHistoricalBars(ctx, r.cfg.Symbol, domain.TimeframeMinute)
	if err != nil {
		return domain.Bar{}, err
	}
	if len(bars) == 0 {
		return domain.Bar{}, fmt.Errorf("no historical bars for %q", r.cfg.Symbol)
	}

	// Window candidates: the 20 bars preceding the newest one.
	candidates := bars
	if len(candidates) > domain.WindowSize+1 {
		candidates = candidates[len(candidates)-domain.WindowSize-1:]
	}
	if len(candidates) > domain.WindowSize {
		candidates = candidates[:domain.WindowSize]
	}

	cutoff := time.Now().Add(-seedLookback)
	for _, b := range candidates {
		if !b.Time.Before(cutoff) {
			r.window.Append(b.Close)
		}
	}

	slog.Info("initialized historical price window",
		"user", r.user, "symbol", r.cfg.Symbol, "points", r.window.Len())
	return bars[len(bars)-1], nil
}

// handleBar runs one decision cycle. Returned errors are session-level and
// terminate the loop; order-level failures are logged and swallowed.
func (r *Runner) handleBar(ctx context.Context, bar domain.Bar) error {
	r.window.Append(bar.Close)

	if !r.window.Full() {
		slog.Info("waiting on more data",
			"user", r.user, "symbol", r.cfg.Symbol,
			"have", r.window.Len(), "need", domain.WindowSize)
		return nil
	}

	slog.Debug("decision cycle",
		"user", r.user, "symbol", r.cfg.Symbol,
		"average", r.window.Average(), "close", bar.Close)

	// At most one outstanding order per instance: cancel the previous one
	// if the stream hasn't reported it terminal yet.
	if r.lastOrderOpen {
		if err := r.broker.CancelOrder(ctx, r.lastOrderID); err != nil {
			slog.Warn("cancel of working order failed",
				"user", r.user, "order_id", r.lastOrderID, "err", err)
		}
	}

	account, err := r.broker.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	position, ok, err := r.broker.GetPosition(ctx, r.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("position: %w", err)
	}
	if !ok {
		slog.Debug("no current position", "user", r.user, "symbol", r.cfg.Symbol)
	}

	intent, ok := domain.Decide(domain.DecisionInput{
		Window:    r.window,
		Close:     bar.Close,
		Position:  position,
		Account:   r.allocate(account),
		Shortable: r.shortable,
		Scale:     r.cfg.Scale,
	})
	if !ok {
		return nil
	}

	r.submit(ctx, intent)
	return nil
}

// allocate scopes the raw account snapshot down to this strategy's slice.
func (r *Runner) allocate(acct domain.AccountSnapshot) domain.AllocatedAccount {
	return domain.AllocatedAccount{
		BuyingPower: acct.BuyingPower.Mul(buyingPowerHaircut).Mul(r.cfg.Allocation),
		Equity:      acct.Equity.Mul(r.cfg.Allocation),
		Multiplier:  acct.Multiplier,
	}
}

// submit places a limit GTC order for the intent. Submission failures are
// order-level: logged, never fatal to the loop.
func (r *Runner) submit(ctx context.Context, intent domain.OrderIntent) {
	localID := uuid.New().String()
	req := domain.OrderRequest{
		Symbol:      r.cfg.Symbol,
		Quantity:    decimal.NewFromInt(intent.Quantity),
		Side:        intent.Side,
		Type:        domain.OrderTypeLimit,
		TimeInForce: domain.TimeInForceGTC,
		LimitPrice:  intent.LimitPrice,
	}

	placed, err := r.broker.SubmitOrder(ctx, req)
	if err != nil {
		slog.Warn("order submission failed",
			"user", r.user, "symbol", r.cfg.Symbol,
			"side", intent.Side, "quantity", intent.Quantity, "err", err)
		return
	}

	r.lastOrderID = placed.ID
	r.lastOrderOpen = true
	slog.Info("order submitted",
		"user", r.user, "symbol", r.cfg.Symbol,
		"side", intent.Side, "quantity", intent.Quantity,
		"limit", intent.LimitPrice, "order_id", placed.ID)

	r.record(ctx, domain.OrderRecord{
		ID:            localID,
		BrokerOrderID: placed.ID,
		User:          r.user,
		Symbol:        r.cfg.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		LimitPrice:    req.LimitPrice,
		SubmittedAt:   placed.SubmittedAt,
	})
}

// applyTradeUpdate clears the outstanding-order flag on terminal events for
// the order this instance is tracking.
func (r *Runner) applyTradeUpdate(ctx context.Context, upd domain.TradeUpdate) {
	if upd.OrderID != r.lastOrderID {
		return
	}
	if !upd.Event.Terminal() {
		return
	}
	slog.Info("trade update",
		"user", r.user, "order_id", upd.OrderID, "event", upd.Event)
	r.lastOrderOpen = false
	if r.journal != nil {
		if err := r.journal.RecordTradeUpdate(ctx, upd); err != nil {
			slog.Warn("journal write failed", "user", r.user, "err", err)
		}
	}
}

// drain is the Draining phase: flatten whatever position remains and stop
// the price stream. It runs on its own context and never fails the caller.
func (r *Runner) drain() {
	r.state.Store(domain.StateDraining)

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	r.flatten(ctx)

	if err := r.broker.UnsubscribeBars(ctx, r.cfg.Symbol); err != nil {
		slog.Warn("bar unsubscribe failed", "user", r.user, "err", err)
	}
}

// flatten submits a market order closing the full current position, long or
// short, fractional quantities included.
func (r *Runner) flatten(ctx context.Context) {
	position, ok, err := r.broker.GetPosition(ctx, r.cfg.Symbol)
	if err != nil {
		slog.Warn("position lookup during drain failed", "user", r.user, "err", err)
		return
	}
	if !ok || position.Quantity.IsZero() {
		slog.Info("no position to flatten", "user", r.user, "symbol", r.cfg.Symbol)
		return
	}

	side := domain.SideSell
	if position.Quantity.Sign() < 0 {
		side = domain.SideBuy
	}
	req := domain.OrderRequest{
		Symbol:      r.cfg.Symbol,
		Quantity:    position.Quantity.Abs(),
		Side:        side,
		Type:        domain.OrderTypeMarket,
		TimeInForce: domain.TimeInForceGTC,
	}

	slog.Info("closing position at market",
		"user", r.user, "symbol", r.cfg.Symbol,
		"quantity", position.Quantity, "side", side)

	placed, err := r.broker.SubmitOrder(ctx, req)
	if err != nil {
		slog.Warn("flatten order failed", "user", r.user, "err", err)
		return
	}

	r.record(ctx, domain.OrderRecord{
		ID:            uuid.New().String(),
		BrokerOrderID: placed.ID,
		User:          r.user,
		Symbol:        r.cfg.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		SubmittedAt:   placed.SubmittedAt,
	})
}

// record writes to the journal when one is configured.
func (r *Runner) record(ctx context.Context, rec domain.OrderRecord) {
	if r.journal == nil {
		return
	}
	if err := r.journal.RecordOrder(ctx, rec); err != nil {
		slog.Warn("journal write failed", "user", r.user, "err", err)
	}
}
