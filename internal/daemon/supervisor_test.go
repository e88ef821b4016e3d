package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/engine"
	"github.com/alejandrodnm/kalshibot/internal/lifecycle"
	"github.com/alejandrodnm/kalshibot/internal/ports"
	"github.com/alejandrodnm/kalshibot/internal/risk"
	"github.com/alejandrodnm/kalshibot/internal/signals"
)

type fakeFeed struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) (map[string]domain.Snapshot, error)
}

func (f *fakeFeed) FetchSnapshots(_ context.Context, _ []string) (map[string]domain.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call)
}

type fakeExec struct {
	orders []ports.OrderRequest
	reject map[string]bool // ticker → reject
}

func (e *fakeExec) PlaceOrder(_ context.Context, req ports.OrderRequest) (ports.Fill, error) {
	if e.reject[req.Ticker] {
		return ports.Fill{}, domain.ErrRejected
	}
	e.orders = append(e.orders, req)
	return ports.Fill{
		OrderID: req.ID,
		Ticker:  req.Ticker,
		Side:    req.Side,
		Size:    req.Size,
		Price:   req.Price,
	}, nil
}

func (e *fakeExec) CancelOrder(context.Context, string) error { return nil }

type fakeStore struct {
	mu     sync.Mutex
	snap   ports.StateSnapshot
	saves  int
	cycles []domain.CycleSummary
}

func (s *fakeStore) SaveSnapshot(_ context.Context, snap ports.StateSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.saves++
	return nil
}

func (s *fakeStore) LoadSnapshot(context.Context) (ports.StateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, nil
}

func (s *fakeStore) RecordCycle(_ context.Context, c domain.CycleSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles = append(s.cycles, c)
	return nil
}

func (s *fakeStore) Close() error { return nil }

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, ports.CycleReport) error { return nil }

func testDeps(t *testing.T, feed ports.MarketDataProvider, exec ports.OrderExecutor, store ports.SnapshotStorage) Deps {
	t.Helper()
	reg, err := engine.NewRegistry(
		[]string{"TRUMP", "GOP"},
		[]domain.Constraint{{
			ID:   "trump_gop",
			Type: domain.ConstraintSubset,
			LHS:  []string{"TRUMP"},
			RHS:  []string{"GOP"},
		}},
	)
	require.NoError(t, err)

	return Deps{
		Registry:   reg,
		Propagator: engine.NewPropagator(reg),
		Generator:  signals.NewGenerator(signals.DefaultConfig()),
		Rebalancer: signals.NewRebalancer(reg, 0.01, 0.02),
		Sizer:      risk.NewSizer(risk.DefaultSizerConfig()),
		Risk:       risk.NewManager(risk.DefaultManagerConfig()),
		Lifecycle:  lifecycle.New(lifecycle.DefaultConfig()),
		Feed:       feed,
		Executor:   exec,
		Store:      store,
		Notifier:   noopNotifier{},
	}
}

func fastConfig() Config {
	return Config{
		Interval:     time.Millisecond,
		CycleTimeout: time.Second,
		RestartDelay: time.Millisecond,
		MaxRestarts:  3,
		Capital:      10000,
	}
}

// The subset trades above its superset: both legs signal.
func mispricedSnaps() map[string]domain.Snapshot {
	return map[string]domain.Snapshot{
		"TRUMP": {Ticker: "TRUMP", Price: 0.45, Spread: 0.01},
		"GOP":   {Ticker: "GOP", Price: 0.38, Spread: 0.01},
	}
}

func TestRun_HaltsAfterMaxRestarts(t *testing.T) {
	feed := &fakeFeed{fn: func(int) (map[string]domain.Snapshot, error) {
		return nil, errors.New("exchange down")
	}}
	store := &fakeStore{}
	sup := New(fastConfig(), testDeps(t, feed, &fakeExec{}, store))

	err := sup.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrSupervisorHalted)

	// Exactly MaxRestarts attempts, never one more.
	assert.Equal(t, 3, feed.calls)
	assert.Equal(t, domain.SupervisorHalted, store.snap.Daemon.State)
	assert.False(t, store.snap.Daemon.Running)
	assert.Equal(t, 3, store.snap.Daemon.ConsecutiveFailures)
}

func TestRun_CancelledBeforeFirstCycle(t *testing.T) {
	feed := &fakeFeed{fn: func(int) (map[string]domain.Snapshot, error) {
		return mispricedSnaps(), nil
	}}
	store := &fakeStore{}
	sup := New(fastConfig(), testDeps(t, feed, &fakeExec{}, store))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A dead context means no cycle at all: no market fetch, no orders.
	require.NoError(t, sup.Run(ctx))
	assert.Zero(t, feed.calls)
	assert.False(t, store.snap.Daemon.Running)
	assert.Equal(t, 1, store.saves)
}

func TestRun_SuccessResetsFailureCounter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	feed := &fakeFeed{fn: func(call int) (map[string]domain.Snapshot, error) {
		if call <= 2 {
			return nil, errors.New("transient")
		}
		cancel() // stop cleanly after the first good cycle
		return map[string]domain.Snapshot{}, nil
	}}
	store := &fakeStore{}
	sup := New(fastConfig(), testDeps(t, feed, &fakeExec{}, store))

	err := sup.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, feed.calls)
	assert.Zero(t, store.snap.Daemon.ConsecutiveFailures,
		"a successful cycle resets the restart budget")
}

func TestRunCycle_OpensPositionsFromBoundViolations(t *testing.T) {
	feed := &fakeFeed{fn: func(int) (map[string]domain.Snapshot, error) {
		return mispricedSnaps(), nil
	}}
	exec := &fakeExec{}
	store := &fakeStore{}
	sup := New(fastConfig(), testDeps(t, feed, exec, store))

	require.NoError(t, sup.runCycle(context.Background()))

	// BUY_YES on the underpriced superset, BUY_NO on the overpriced subset.
	require.Len(t, exec.orders, 2)
	require.Len(t, sup.positions, 2)

	bySide := map[domain.Side]domain.Position{}
	for _, p := range sup.positions {
		bySide[p.Side] = p
	}
	assert.Equal(t, "GOP", bySide[domain.SideYes].Ticker)
	assert.InDelta(t, 0.38, bySide[domain.SideYes].EntryPrice, 1e-9)
	assert.Equal(t, "TRUMP", bySide[domain.SideNo].Ticker)
	assert.InDelta(t, 0.55, bySide[domain.SideNo].EntryPrice, 1e-9)

	// Both tickers share the constraint cluster.
	assert.Equal(t, "GOP", bySide[domain.SideYes].Cluster)
	assert.Equal(t, "GOP", bySide[domain.SideNo].Cluster)

	require.Len(t, store.cycles, 1)
	assert.Equal(t, 2, store.cycles[0].Entries)
	assert.Equal(t, 2, store.cycles[0].Signals)
	assert.Equal(t, 1, store.saves)

	// Second cycle with unchanged prices: no doubling up on open tickers.
	require.NoError(t, sup.runCycle(context.Background()))
	assert.Len(t, exec.orders, 2)
	assert.Len(t, sup.positions, 2)
}

func TestRunCycle_RejectionLeavesNoPosition(t *testing.T) {
	feed := &fakeFeed{fn: func(int) (map[string]domain.Snapshot, error) {
		return mispricedSnaps(), nil
	}}
	exec := &fakeExec{reject: map[string]bool{"GOP": true, "TRUMP": true}}
	store := &fakeStore{}
	sup := New(fastConfig(), testDeps(t, feed, exec, store))

	require.NoError(t, sup.runCycle(context.Background()))

	assert.Empty(t, sup.positions)
	require.Len(t, store.cycles, 1)
	assert.Equal(t, 2, store.cycles[0].Rejections)
	assert.Zero(t, store.cycles[0].Entries)
}

func TestRunCycle_SettlementClosesAndBooks(t *testing.T) {
	settled := false
	feed := &fakeFeed{fn: func(int) (map[string]domain.Snapshot, error) {
		if !settled {
			return mispricedSnaps(), nil
		}
		return map[string]domain.Snapshot{
			"TRUMP": {Ticker: "TRUMP", Settled: true, SettleTo: 0},
			"GOP":   {Ticker: "GOP", Settled: true, SettleTo: 1},
		}, nil
	}}
	exec := &fakeExec{}
	store := &fakeStore{}
	sup := New(fastConfig(), testDeps(t, feed, exec, store))

	require.NoError(t, sup.runCycle(context.Background()))
	require.Len(t, sup.positions, 2)
	capitalBefore := sup.acct.Capital

	settled = true
	require.NoError(t, sup.runCycle(context.Background()))

	// Both legs won: YES settled to 1, NO settled against a 0 outcome.
	assert.Empty(t, sup.positions)
	assert.Greater(t, sup.acct.Capital, capitalBefore)
	require.Len(t, store.cycles, 2)
	assert.Equal(t, 2, store.cycles[1].Exits)
	assert.Empty(t, store.snap.Positions)
}

func TestRunCycle_PanicCountsAsFailure(t *testing.T) {
	feed := &fakeFeed{fn: func(int) (map[string]domain.Snapshot, error) {
		panic("boom")
	}}
	sup := New(fastConfig(), testDeps(t, feed, &fakeExec{}, &fakeStore{}))

	err := sup.runCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

func TestRestore_WarmStart(t *testing.T) {
	opened := time.Now().UTC().Add(-time.Hour)
	store := &fakeStore{snap: ports.StateSnapshot{
		Positions: []domain.Position{{
			ID:         "pos-1",
			Ticker:     "GOP",
			Cluster:    "GOP",
			Side:       domain.SideYes,
			EntryPrice: 0.38,
			Size:       100,
			Remaining:  75,
			OpenedAt:   opened,
			State:      domain.StateMonitoring,
			FiredTiers: map[int]bool{0: true},
		}},
		Account: domain.AccountState{
			Capital:         9800,
			PeakValue:       10100,
			ClusterExposure: map[string]float64{"GOP": 75},
		},
		Daemon: domain.DaemonState{ConsecutiveFailures: 2},
	}}
	sup := New(fastConfig(), testDeps(t, &fakeFeed{}, &fakeExec{}, store))

	require.NoError(t, sup.Restore(context.Background()))

	require.Len(t, sup.positions, 1)
	assert.True(t, sup.positions[0].TierFired(0))
	assert.InDelta(t, 75, sup.positions[0].Remaining, 1e-9)
	assert.InDelta(t, 9800, sup.acct.Capital, 1e-9)
	assert.InDelta(t, 10100, sup.acct.PeakValue, 1e-9)
	assert.Equal(t, 2, sup.state.ConsecutiveFailures)
}
