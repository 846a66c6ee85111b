package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matthewp131/algotrader/internal/adapters/sim"
	"github.com/matthewp131/algotrader/internal/domain"
	"github.com/matthewp131/algotrader/internal/ledger"
	"github.com/matthewp131/algotrader/internal/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestManager(t *testing.T) (*Manager, *ledger.Ledger, *sim.Dialer) {
	t.Helper()
	led := ledger.New()
	led.AddUser("alice", "alice-key", "alice-secret")
	led.AddUser("bob", "bob-key", "bob-secret")

	dialer := sim.NewDialer(sim.Options{Shortable: true})
	m := New(led, dialer, nil, Config{}, nil)
	return m, led, dialer
}

func available(t *testing.T, led *ledger.Ledger, user string) decimal.Decimal {
	t.Helper()
	rec, ok := led.Get(user)
	require.True(t, ok)
	return rec.Available
}

func TestStartRejectsInvalidAllocation(t *testing.T) {
	m, led, _ := newTestManager(t)

	for _, alloc := range []string{"0", "-0.5", "1.5"} {
		err := m.Start(context.Background(), "alice", "AAPL", dec(alloc))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidAllocation)

		var rej *domain.RejectionError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, "alice", rej.User)
	}

	// Rejections must not touch the ledger.
	assert.True(t, available(t, led, "alice").Equal(dec("1")))
}

func TestStartRejectsUnknownUser(t *testing.T) {
	m, _, _ := newTestManager(t)

	err := m.Start(context.Background(), "mallory", "AAPL", dec("0.5"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownUser)
}

func TestStartRejectsInsufficientCapital(t *testing.T) {
	m, led, _ := newTestManager(t)
	t.Cleanup(func() { _ = m.StopAll(context.Background()) })

	require.NoError(t, m.Start(context.Background(), "alice", "AAPL", dec("0.8")))

	err := m.Start(context.Background(), "alice", "MSFT", dec("0.5"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientCapital)
	assert.True(t, available(t, led, "alice").Equal(dec("0.2")))
}

type failDialer struct{ err error }

func (d failDialer) Dial(context.Context, domain.Credentials) (ports.Broker, error) {
	return nil, d.err
}

func TestStartReleasesAllocationWhenDialFails(t *testing.T) {
	led := ledger.New()
	led.AddUser("alice", "k", "s")
	dialErr := errors.New("broker unreachable")
	m := New(led, failDialer{err: dialErr}, nil, Config{}, nil)

	err := m.Start(context.Background(), "alice", "AAPL", dec("0.5"))
	require.Error(t, err)
	assert.ErrorIs(t, err, dialErr)

	rec, _ := led.Get("alice")
	assert.True(t, rec.Available.Equal(dec("1")))
}

func TestStopWithNothingRunning(t *testing.T) {
	m, _, _ := newTestManager(t)

	n, err := m.Stop(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStartStopLifecycle(t *testing.T) {
	m, led, _ := newTestManager(t)

	require.NoError(t, m.Start(context.Background(), "alice", "AAPL", dec("0.5")))
	assert.True(t, available(t, led, "alice").Equal(dec("0.5")))

	active := m.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "alice", active[0].User)
	assert.Equal(t, "AAPL", active[0].Symbol)
	assert.True(t, active[0].Allocation.Equal(dec("0.5")))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := m.Stop(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Exit protocol: deregister, then release.
	assert.Empty(t, m.Active())
	assert.Eventually(t, func() bool {
		return available(t, led, "alice").Equal(dec("1"))
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStopOnlyAffectsOneUser(t *testing.T) {
	m, _, _ := newTestManager(t)
	t.Cleanup(func() { _ = m.StopAll(context.Background()) })

	require.NoError(t, m.Start(context.Background(), "alice", "AAPL", dec("0.3")))
	require.NoError(t, m.Start(context.Background(), "bob", "MSFT", dec("0.3")))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := m.Stop(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active := m.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "bob", active[0].User)
}

func TestStopAllFiresShutdown(t *testing.T) {
	led := ledger.New()
	led.AddUser("alice", "k1", "s1")
	led.AddUser("bob", "k2", "s2")

	shutdownCtx, shutdown := context.WithCancel(context.Background())
	dialer := sim.NewDialer(sim.Options{Shortable: true})
	m := New(led, dialer, nil, Config{}, shutdown)

	require.NoError(t, m.Start(context.Background(), "alice", "AAPL", dec("0.4")))
	require.NoError(t, m.Start(context.Background(), "bob", "TSLA", dec("0.4")))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, m.StopAll(ctx))

	assert.Empty(t, m.Active())
	select {
	case <-shutdownCtx.Done():
	default:
		t.Fatal("shutdown signal not fired")
	}

	assert.True(t, available(t, led, "alice").Equal(dec("1")))
	assert.True(t, available(t, led, "bob").Equal(dec("1")))
}

func TestRestartAfterSelfTermination(t *testing.T) {
	led := ledger.New()
	led.AddUser("alice", "k", "s")

	// A market close in the past makes the run loop drain on its own bar.
	dialer := sim.NewDialer(sim.Options{
		Shortable:    true,
		FeedInterval: 2 * time.Millisecond,
		NextClose:    time.Now(),
	})
	m := New(led, dialer, nil, Config{}, nil)
	t.Cleanup(func() { _ = m.StopAll(context.Background()) })

	require.NoError(t, m.Start(context.Background(), "alice", "AAPL", dec("1")))

	require.Eventually(t, func() bool {
		return len(m.Active()) == 0
	}, 10*time.Second, 2*time.Millisecond)

	// Exit protocol releases before deregistering: once the handle is gone,
	// the full allocation must already be reservable again.
	require.NoError(t, m.Start(context.Background(), "alice", "AAPL", dec("1")))
}

func TestMultipleStrategiesPerUser(t *testing.T) {
	m, led, _ := newTestManager(t)
	t.Cleanup(func() { _ = m.StopAll(context.Background()) })

	require.NoError(t, m.Start(context.Background(), "alice", "AAPL", dec("0.3")))
	require.NoError(t, m.Start(context.Background(), "alice", "MSFT", dec("0.3")))

	assert.Len(t, m.Active(), 2)
	assert.True(t, available(t, led, "alice").Equal(dec("0.4")))

	report := m.Report()
	assert.Len(t, report.Strategies, 2)
	require.Len(t, report.Balances, 2)
	assert.Equal(t, "alice", report.Balances[0].User)
}
