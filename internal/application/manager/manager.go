package manager

// manager.go — owns the set of running strategies per user.
//
// Start reserves allocation, registers a handle, then spawns the run loop;
// the reservation is returned and the handle removed by the loop's own exit
// path, never by the manager while the loop might still be executing. A
// single mutex serializes handle-set mutations, so racing starts for the
// same user can't lose updates.

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matthewp131/algotrader/internal/application/strategy"
	"github.com/matthewp131/algotrader/internal/domain"
	"github.com/matthewp131/algotrader/internal/ledger"
	"github.com/matthewp131/algotrader/internal/ports"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Config carries run-loop settings shared by every strategy the manager starts.
type Config struct {
	Scale       decimal.Decimal
	CloseBuffer time.Duration
}

// handle is one accepted strategy instance.
type handle struct {
	id         string
	symbol     string
	allocation decimal.Decimal
	startedAt  time.Time
	runner     *strategy.Runner
	cancel     context.CancelFunc
	done       chan struct{} // closed when the run loop has fully finished
}

// Manager starts, tracks, and stops strategy instances for all users.
type Manager struct {
	ledger  *ledger.Ledger
	dialer  ports.BrokerDialer
	journal ports.Journal
	cfg     Config

	// shutdown fires once after StopAll has drained every strategy.
	shutdown context.CancelFunc

	mu      sync.Mutex
	handles map[string][]*handle // user -> running instances
}

// New creates a Manager. shutdown may be nil; when set, StopAll invokes it
// after the last strategy has terminated.
func New(led *ledger.Ledger, dialer ports.BrokerDialer, journal ports.Journal, cfg Config, shutdown context.CancelFunc) *Manager {
	return &Manager{
		ledger:   led,
		dialer:   dialer,
		journal:  journal,
		cfg:      cfg,
		shutdown: shutdown,
		handles:  make(map[string][]*handle),
	}
}

// Start validates the request, reserves the allocation, and schedules a run
// loop. It returns once the loop is scheduled; it does not wait for the
// strategy to finish. Rejections are typed and carry no side effects.
func (m *Manager) Start(ctx context.Context, user, symbol string, allocation decimal.Decimal) error {
	if allocation.Sign() <= 0 || allocation.GreaterThan(one) {
		return &domain.RejectionError{User: user, Reason: domain.ErrInvalidAllocation}
	}

	rec, ok := m.ledger.Get(user)
	if !ok {
		return &domain.RejectionError{User: user, Reason: domain.ErrUnknownUser}
	}

	if !m.ledger.Reserve(user, allocation) {
		return &domain.RejectionError{User: user, Reason: domain.ErrInsufficientCapital}
	}

	broker, err := m.dialer.Dial(ctx, rec.Credentials())
	if err != nil {
		m.ledger.Release(user, allocation)
		return fmt.Errorf("manager.Start: dial broker for %q: %w", user, err)
	}

	// The run loop's lifetime is independent of the caller's context; only
	// its own cancellation signal (Stop/StopAll) ends it early.
	runCtx, cancel := context.WithCancel(context.Background())

	runner := strategy.New(user, broker, m.journal, strategy.Config{
		Symbol:      symbol,
		Allocation:  allocation,
		Scale:       m.cfg.Scale,
		CloseBuffer: m.cfg.CloseBuffer,
	})
	h := &handle{
		id:         uuid.New().String(),
		symbol:     symbol,
		allocation: allocation,
		startedAt:  time.Now(),
		runner:     runner,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	// Register before the goroutine can be observed running.
	m.mu.Lock()
	m.handles[user] = append(m.handles[user], h)
	m.mu.Unlock()

	slog.Info("starting strategy",
		"user", user, "symbol", symbol, "allocation", allocation)

	go m.run(runCtx, user, h)

	return nil
}

// run executes one strategy to completion and performs its exit protocol:
// release the allocation first, then deregister. The handle disappearing
// implies the capital is already back, so a caller who no longer sees the
// strategy can always re-reserve its slice. A panic in one strategy is
// contained here; it never reaches other instances or the manager.
func (m *Manager) run(ctx context.Context, user string, h *handle) {
	defer close(h.done)
	defer func() {
		if p := recover(); p != nil {
			slog.Error("strategy panicked", "user", user, "symbol", h.symbol, "panic", p)
		}
		m.ledger.Release(user, h.allocation)
		m.deregister(user, h)
	}()

	if err := h.runner.Run(ctx); err != nil {
		slog.Error("strategy exited with error",
			"user", user, "symbol", h.symbol, "err", err)
		return
	}
	slog.Info("strategy completed", "user", user, "symbol", h.symbol)
}

// deregister removes a finished handle from the user's set.
func (m *Manager) deregister(user string, h *handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hs := m.handles[user]
	for i, other := range hs {
		if other.id == h.id {
			m.handles[user] = slices.Delete(hs, i, i+1)
			break
		}
	}
	if len(m.handles[user]) == 0 {
		delete(m.handles, user)
	}
}

// Stop cancels every strategy the user is running and blocks until each run
// loop has fully finished, cleanup included. Returns how many were stopped;
// zero with a nil error means there was nothing to stop.
func (m *Manager) Stop(ctx context.Context, user string) (int, error) {
	m.mu.Lock()
	hs := slices.Clone(m.handles[user])
	m.mu.Unlock()

	if len(hs) == 0 {
		slog.Info("no active strategies to stop", "user", user)
		return 0, nil
	}

	for _, h := range hs {
		slog.Info("stopping strategy", "user", user, "symbol", h.symbol)
		h.cancel()
	}
	for _, h := range hs {
		select {
		case <-h.done:
		case <-ctx.Done():
			return 0, fmt.Errorf("manager.Stop %q: %w", user, ctx.Err())
		}
	}
	return len(hs), nil
}

// StopAll stops every running strategy for every user, then fires the
// process-wide shutdown signal. Intended to run exactly once, at teardown.
func (m *Manager) StopAll(ctx context.Context) error {
	slog.Info("stopping all active strategies")

	m.mu.Lock()
	users := make([]string, 0, len(m.handles))
	for user := range m.handles {
		users = append(users, user)
	}
	m.mu.Unlock()

	for _, user := range users {
		if _, err := m.Stop(ctx, user); err != nil {
			return fmt.Errorf("manager.StopAll: %w", err)
		}
	}

	if m.shutdown != nil {
		m.shutdown()
	}
	return nil
}

// Active returns a snapshot of every running strategy.
func (m *Manager) Active() []domain.StrategyStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.StrategyStatus
	for user, hs := range m.handles {
		for _, h := range hs {
			out = append(out, domain.StrategyStatus{
				User:       user,
				Symbol:     h.symbol,
				Allocation: h.allocation,
				State:      h.runner.State(),
				StartedAt:  h.startedAt,
			})
		}
	}
	slices.SortFunc(out, func(a, b domain.StrategyStatus) int {
		if a.User != b.User {
			if a.User < b.User {
				return -1
			}
			return 1
		}
		return a.StartedAt.Compare(b.StartedAt)
	})
	return out
}

// Report builds the full status snapshot for notifiers.
func (m *Manager) Report() domain.StatusReport {
	return domain.StatusReport{
		Strategies: m.Active(),
		Balances:   m.ledger.Balances(),
	}
}
