package storage

// sqlite.go — durable cycle-end snapshots.
//
// Layout:
//   - `positions`: one row per open position, rewritten wholesale each
//     snapshot. The table is small (open positions only) so a full
//     replace inside the transaction is cheaper than diffing.
//   - `account` / `daemon_state`: single-row tables (id = 1), upserted.
//   - `cycles`: one summary row per completed cycle, pruned at startup.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
    id           TEXT PRIMARY KEY,
    ticker       TEXT NOT NULL,
    cluster      TEXT NOT NULL,
    side         TEXT NOT NULL,
    entry_price  REAL NOT NULL,
    size         REAL NOT NULL,
    remaining    REAL NOT NULL,
    opened_at    DATETIME NOT NULL,
    state        TEXT NOT NULL,
    trailing     INTEGER NOT NULL DEFAULT 0,
    peak         REAL NOT NULL DEFAULT 0,
    fired_tiers  TEXT NOT NULL DEFAULT '[]',
    realized_pnl REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS account (
    id               INTEGER PRIMARY KEY CHECK (id = 1),
    capital          REAL NOT NULL,
    day              TEXT NOT NULL DEFAULT '',
    day_realized     REAL NOT NULL DEFAULT 0,
    day_unrealized   REAL NOT NULL DEFAULT 0,
    loss_stop        INTEGER NOT NULL DEFAULT 0,
    peak_value       REAL NOT NULL DEFAULT 0,
    cluster_exposure TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS daemon_state (
    id                   INTEGER PRIMARY KEY CHECK (id = 1),
    state                TEXT NOT NULL,
    running              INTEGER NOT NULL DEFAULT 0,
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    last_cycle_at        DATETIME,
    updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS cycles (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    tickers    INTEGER NOT NULL DEFAULT 0,
    infeasible INTEGER NOT NULL DEFAULT 0,
    signals    INTEGER NOT NULL DEFAULT 0,
    entries    INTEGER NOT NULL DEFAULT 0,
    exits      INTEGER NOT NULL DEFAULT 0,
    rejections INTEGER NOT NULL DEFAULT 0,
    day_pnl    REAL NOT NULL DEFAULT 0,
    failed     INTEGER NOT NULL DEFAULT 0,
    error      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_cycles_at ON cycles(started_at DESC);
`

// cycles older than this get pruned at startup.
const retentionCycles = 30 * 24 * time.Hour

// SQLiteStorage implements ports.SnapshotStorage using SQLite (pure Go,
// no CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at the given DSN,
// applies the schema and prunes old cycle rows.
func NewSQLiteStorage(dsn string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// NewReadOnly opens the database for status queries without pruning.
func NewReadOnly(dsn string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage.NewReadOnly: open %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db}, nil
}

// SaveSnapshot writes the full cycle-end snapshot in one transaction.
func (s *SQLiteStorage) SaveSnapshot(ctx context.Context, snap ports.StateSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("storage.SaveSnapshot: clear positions: %w", err)
	}
	for _, p := range snap.Positions {
		tiers, err := json.Marshal(firedList(p.FiredTiers))
		if err != nil {
			return fmt.Errorf("storage.SaveSnapshot: marshal tiers %s: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO positions
				(id, ticker, cluster, side, entry_price, size, remaining,
				 opened_at, state, trailing, peak, fired_tiers, realized_pnl)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Ticker, p.Cluster, string(p.Side), p.EntryPrice, p.Size,
			p.Remaining, p.OpenedAt.UTC(), string(p.State), boolInt(p.TrailingArmed),
			p.Peak, string(tiers), p.RealizedPnL,
		); err != nil {
			return fmt.Errorf("storage.SaveSnapshot: insert position %s: %w", p.ID, err)
		}
	}

	exposure, err := json.Marshal(snap.Account.ClusterExposure)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: marshal exposure: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO account
			(id, capital, day, day_realized, day_unrealized, loss_stop, peak_value, cluster_exposure)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			capital          = excluded.capital,
			day              = excluded.day,
			day_realized     = excluded.day_realized,
			day_unrealized   = excluded.day_unrealized,
			loss_stop        = excluded.loss_stop,
			peak_value       = excluded.peak_value,
			cluster_exposure = excluded.cluster_exposure`,
		snap.Account.Capital, snap.Account.Day, snap.Account.DayRealized,
		snap.Account.DayUnrealized, boolInt(snap.Account.LossStopTripped),
		snap.Account.PeakValue, string(exposure),
	); err != nil {
		return fmt.Errorf("storage.SaveSnapshot: upsert account: %w", err)
	}

	var lastCycle *time.Time
	if !snap.Daemon.LastCycleAt.IsZero() {
		t := snap.Daemon.LastCycleAt.UTC()
		lastCycle = &t
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO daemon_state
			(id, state, running, consecutive_failures, last_cycle_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state                = excluded.state,
			running              = excluded.running,
			consecutive_failures = excluded.consecutive_failures,
			last_cycle_at        = excluded.last_cycle_at,
			updated_at           = excluded.updated_at`,
		string(snap.Daemon.State), boolInt(snap.Daemon.Running),
		snap.Daemon.ConsecutiveFailures, lastCycle, snap.Daemon.UpdatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("storage.SaveSnapshot: upsert daemon state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveSnapshot: commit: %w", err)
	}
	return nil
}

// LoadSnapshot restores the last persisted snapshot. An empty database
// returns a zero snapshot (cold start), not an error.
func (s *SQLiteStorage) LoadSnapshot(ctx context.Context) (ports.StateSnapshot, error) {
	var snap ports.StateSnapshot

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticker, cluster, side, entry_price, size, remaining,
		       opened_at, state, trailing, peak, fired_tiers, realized_pnl
		FROM positions`)
	if err != nil {
		return snap, fmt.Errorf("storage.LoadSnapshot: query positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Position
		var side, state, tiersJSON string
		var trailing int
		if err := rows.Scan(&p.ID, &p.Ticker, &p.Cluster, &side, &p.EntryPrice,
			&p.Size, &p.Remaining, &p.OpenedAt, &state, &trailing, &p.Peak,
			&tiersJSON, &p.RealizedPnL,
		); err != nil {
			return snap, fmt.Errorf("storage.LoadSnapshot: scan position: %w", err)
		}
		p.Side = domain.Side(side)
		p.State = domain.LifecycleState(state)
		p.TrailingArmed = trailing != 0
		var fired []int
		if err := json.Unmarshal([]byte(tiersJSON), &fired); err != nil {
			return snap, fmt.Errorf("storage.LoadSnapshot: tiers %s: %w", p.ID, err)
		}
		p.FiredTiers = make(map[int]bool, len(fired))
		for _, n := range fired {
			p.FiredTiers[n] = true
		}
		snap.Positions = append(snap.Positions, p)
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("storage.LoadSnapshot: positions: %w", err)
	}

	var exposureJSON string
	var lossStop int
	err = s.db.QueryRowContext(ctx, `
		SELECT capital, day, day_realized, day_unrealized, loss_stop, peak_value, cluster_exposure
		FROM account WHERE id = 1`,
	).Scan(&snap.Account.Capital, &snap.Account.Day, &snap.Account.DayRealized,
		&snap.Account.DayUnrealized, &lossStop, &snap.Account.PeakValue, &exposureJSON)
	switch {
	case err == sql.ErrNoRows:
		// cold start
	case err != nil:
		return snap, fmt.Errorf("storage.LoadSnapshot: account: %w", err)
	default:
		snap.Account.LossStopTripped = lossStop != 0
		if err := json.Unmarshal([]byte(exposureJSON), &snap.Account.ClusterExposure); err != nil {
			return snap, fmt.Errorf("storage.LoadSnapshot: exposure: %w", err)
		}
	}

	var running int
	var state string
	var lastCycle sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT state, running, consecutive_failures, last_cycle_at, updated_at
		FROM daemon_state WHERE id = 1`,
	).Scan(&state, &running, &snap.Daemon.ConsecutiveFailures, &lastCycle,
		&snap.Daemon.UpdatedAt)
	switch {
	case err == sql.ErrNoRows:
		// cold start
	case err != nil:
		return snap, fmt.Errorf("storage.LoadSnapshot: daemon state: %w", err)
	default:
		snap.Daemon.State = domain.SupervisorState(state)
		snap.Daemon.Running = running != 0
		if lastCycle.Valid {
			snap.Daemon.LastCycleAt = lastCycle.Time
		}
	}

	return snap, nil
}

// RecordCycle appends one summary row.
func (s *SQLiteStorage) RecordCycle(ctx context.Context, c domain.CycleSummary) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles
			(started_at, duration_ms, tickers, infeasible, signals,
			 entries, exits, rejections, day_pnl, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.StartedAt.UTC(), c.Duration.Milliseconds(), c.Tickers, c.Infeasible,
		c.Signals, c.Entries, c.Exits, c.Rejections, c.DayPnL,
		boolInt(c.Failed), c.Error,
	); err != nil {
		return fmt.Errorf("storage.RecordCycle: insert: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld drops cycle rows past retention. Errors are non-fatal.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionCycles)
	s.db.ExecContext(ctx, `DELETE FROM cycles WHERE started_at < ?`, cutoff)
}

func firedList(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for n, fired := range m {
		if fired {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
