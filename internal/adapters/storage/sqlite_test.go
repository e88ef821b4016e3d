package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/kalshibot/internal/adapters/storage"
	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

func makeSnapshot() ports.StateSnapshot {
	opened := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)
	return ports.StateSnapshot{
		Positions: []domain.Position{
			{
				ID:         "pos-1",
				Ticker:     "GOP-WINS-PRES",
				Cluster:    "GOP-WINS-PRES",
				Side:       domain.SideYes,
				EntryPrice: 0.38,
				Size:       100,
				Remaining:  75,
				OpenedAt:   opened,
				State:      domain.StateTrailing,
				TrailingArmed: true,
				Peak:          0.22,
				FiredTiers:    map[int]bool{0: true, 1: true},
				RealizedPnL:   5.5,
			},
			{
				ID:         "pos-2",
				Ticker:     "TRUMP-GOP-NOM",
				Cluster:    "GOP-WINS-PRES",
				Side:       domain.SideNo,
				EntryPrice: 0.55,
				Size:       50,
				Remaining:  50,
				OpenedAt:   opened,
				State:      domain.StateMonitoring,
				FiredTiers: map[int]bool{},
			},
		},
		Account: domain.AccountState{
			Capital:         9850.25,
			Day:             "2026-08-29",
			DayRealized:     -20,
			DayUnrealized:   12.5,
			LossStopTripped: true,
			PeakValue:       10100,
			ClusterExposure: map[string]float64{"GOP-WINS-PRES": 125},
		},
		Daemon: domain.DaemonState{
			State:               domain.SupervisorRunning,
			Running:             true,
			ConsecutiveFailures: 1,
			LastCycleAt:         time.Now().UTC().Truncate(time.Second),
			UpdatedAt:           time.Now().UTC().Truncate(time.Second),
		},
	}
}

func TestSQLiteStorage_SnapshotRoundTrip(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	want := makeSnapshot()
	require.NoError(t, db.SaveSnapshot(ctx, want))

	got, err := db.LoadSnapshot(ctx)
	require.NoError(t, err)

	require.Len(t, got.Positions, 2)
	byID := map[string]domain.Position{}
	for _, p := range got.Positions {
		byID[p.ID] = p
	}

	p1 := byID["pos-1"]
	assert.Equal(t, domain.SideYes, p1.Side)
	assert.Equal(t, domain.StateTrailing, p1.State)
	assert.True(t, p1.TrailingArmed)
	assert.InDelta(t, 0.22, p1.Peak, 1e-9)
	assert.Equal(t, map[int]bool{0: true, 1: true}, p1.FiredTiers)
	assert.InDelta(t, 75, p1.Remaining, 1e-9)
	assert.InDelta(t, 5.5, p1.RealizedPnL, 1e-9)
	assert.True(t, p1.OpenedAt.Equal(want.Positions[0].OpenedAt))

	p2 := byID["pos-2"]
	assert.Equal(t, domain.SideNo, p2.Side)
	assert.Empty(t, p2.FiredTiers)

	assert.InDelta(t, 9850.25, got.Account.Capital, 1e-9)
	assert.Equal(t, "2026-08-29", got.Account.Day)
	assert.InDelta(t, -20, got.Account.DayRealized, 1e-9)
	assert.True(t, got.Account.LossStopTripped)
	assert.InDelta(t, 125, got.Account.ClusterExposure["GOP-WINS-PRES"], 1e-9)

	assert.Equal(t, domain.SupervisorRunning, got.Daemon.State)
	assert.True(t, got.Daemon.Running)
	assert.Equal(t, 1, got.Daemon.ConsecutiveFailures)
}

func TestSQLiteStorage_SnapshotReplacesPrevious(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	first := makeSnapshot()
	require.NoError(t, db.SaveSnapshot(ctx, first))

	// One position closed since, account and counters moved on.
	second := first
	second.Positions = first.Positions[:1]
	second.Account.Capital = 9900
	second.Daemon.ConsecutiveFailures = 0
	require.NoError(t, db.SaveSnapshot(ctx, second))

	got, err := db.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Positions, 1)
	assert.InDelta(t, 9900, got.Account.Capital, 1e-9)
	assert.Zero(t, got.Daemon.ConsecutiveFailures)
}

func TestSQLiteStorage_ColdStart(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	got, err := db.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.Positions)
	assert.Zero(t, got.Account.Capital)
	assert.Empty(t, got.Daemon.State)
}

func TestSQLiteStorage_RecordCycle(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	err = db.RecordCycle(context.Background(), domain.CycleSummary{
		StartedAt: time.Now().UTC(),
		Duration:  120 * time.Millisecond,
		Tickers:   12,
		Signals:   3,
		Entries:   1,
	})
	assert.NoError(t, err)
}
