package daemon

// supervisor.go — crash-tolerant control loop.
//
// The supervisor is an explicit state machine {RUNNING, FAILED, HALTED}
// with a bounded retry counter. Any fault inside a cycle (including a
// panic) counts toward the restart budget; a successful cycle resets it.
// Once the budget is exhausted the daemon halts permanently without
// liquidating positions: they stay exactly as last persisted.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/engine"
	"github.com/alejandrodnm/kalshibot/internal/lifecycle"
	"github.com/alejandrodnm/kalshibot/internal/ports"
	"github.com/alejandrodnm/kalshibot/internal/risk"
	"github.com/alejandrodnm/kalshibot/internal/signals"
)

// Config controls the supervisor loop.
type Config struct {
	Interval     time.Duration
	CycleTimeout time.Duration
	RestartDelay time.Duration
	MaxRestarts  int
	Paper        bool
	Capital      float64 // initial capital for cold starts
}

// Deps are the collaborators the supervisor drives.
type Deps struct {
	Registry   *engine.Registry
	Propagator *engine.Propagator
	Generator  *signals.Generator
	Rebalancer *signals.Rebalancer
	Sizer      *risk.Sizer
	Risk       *risk.Manager
	Lifecycle  *lifecycle.Manager
	Feed       ports.MarketDataProvider
	Executor   ports.OrderExecutor
	Store      ports.SnapshotStorage
	Notifier   ports.Notifier
}

// Supervisor owns AccountState and the open-position set exclusively; no
// other component mutates them. External status queries read the persisted
// snapshot instead.
type Supervisor struct {
	cfg  Config
	deps Deps

	state     domain.DaemonState
	acct      domain.AccountState
	positions []domain.Position

	derivedTemporal bool
}

// New creates a Supervisor with a cold account.
func New(cfg Config, deps Deps) *Supervisor {
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = 10
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = 30 * time.Second
	}
	return &Supervisor{
		cfg:  cfg,
		deps: deps,
		acct: domain.NewAccountState(cfg.Capital),
		state: domain.DaemonState{
			State: domain.SupervisorRunning,
		},
	}
}

// Restore warm-starts from the persisted snapshot: open positions with
// their fired tiers and trailing peaks, account state, and the restart
// counter all survive a crash. A missing snapshot is a cold start, not an
// error.
func (s *Supervisor) Restore(ctx context.Context) error {
	snap, err := s.deps.Store.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("daemon.Restore: %w", err)
	}
	if snap.Account.Capital > 0 {
		s.acct = snap.Account
	}
	s.positions = snap.Positions
	s.state.ConsecutiveFailures = snap.Daemon.ConsecutiveFailures
	s.state.LastCycleAt = snap.Daemon.LastCycleAt

	if len(s.positions) > 0 || snap.Account.Capital > 0 {
		slog.Info("warm start from snapshot",
			"positions", len(s.positions),
			"capital", s.acct.Capital,
			"consecutive_failures", s.state.ConsecutiveFailures,
			"last_cycle", snap.Daemon.LastCycleAt)
	}
	return nil
}

// Run drives the cycle loop until the context is cancelled or the restart
// budget is exhausted. A termination signal finishes persisting the
// current cycle before stopping; it never interrupts in-flight order
// submissions, only the inter-cycle sleep.
func (s *Supervisor) Run(ctx context.Context) error {
	s.state.Running = true
	s.state.State = domain.SupervisorRunning
	slog.Info("supervisor starting",
		"interval", s.cfg.Interval,
		"max_restarts", s.cfg.MaxRestarts,
		"paper", s.cfg.Paper,
		"capital", s.acct.Capital)

	for {
		if ctx.Err() != nil {
			return s.shutdown(ctx)
		}

		err := s.runCycle(ctx)

		if err != nil {
			s.state.ConsecutiveFailures++
			s.state.State = domain.SupervisorFailed
			slog.Error("cycle failed",
				"err", err,
				"consecutive_failures", s.state.ConsecutiveFailures,
				"max_restarts", s.cfg.MaxRestarts)
			s.persist(ctx)

			if s.state.ConsecutiveFailures >= s.cfg.MaxRestarts {
				s.halt(ctx)
				return fmt.Errorf("daemon.Run: %w", domain.ErrSupervisorHalted)
			}

			if !s.sleep(ctx, s.cfg.RestartDelay) {
				return s.shutdown(ctx)
			}
			continue
		}

		s.state.ConsecutiveFailures = 0
		s.state.State = domain.SupervisorRunning
		s.state.LastCycleAt = time.Now().UTC()

		if !s.sleep(ctx, s.cfg.Interval) {
			return s.shutdown(ctx)
		}
	}
}

// sleep waits for d or until cancellation. Returns false when cancelled.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// halt records the terminal state: restart budget exhausted, positions
// left untouched.
func (s *Supervisor) halt(ctx context.Context) {
	s.state.State = domain.SupervisorHalted
	s.state.Running = false
	s.persist(context.WithoutCancel(ctx))
	slog.Error("supervisor halted permanently: max restarts exceeded, positions left as persisted",
		"open_positions", len(s.positions))
}

// shutdown persists the final state after a termination signal.
func (s *Supervisor) shutdown(ctx context.Context) error {
	s.state.Running = false
	s.persist(context.WithoutCancel(ctx))
	slog.Info("supervisor stopped cleanly", "open_positions", len(s.positions))
	return nil
}

// persist writes the cycle-end snapshot. Persistence errors are logged,
// not fatal: losing one snapshot must not take the loop down.
func (s *Supervisor) persist(ctx context.Context) {
	s.state.UpdatedAt = time.Now().UTC()
	snap := ports.StateSnapshot{
		Positions: s.openPositions(),
		Account:   s.acct,
		Daemon:    s.state,
	}
	if err := s.deps.Store.SaveSnapshot(ctx, snap); err != nil {
		slog.Warn("snapshot persistence failed", "err", err)
	}
}

func (s *Supervisor) openPositions() []domain.Position {
	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		if !p.Closed() {
			out = append(out, p)
		}
	}
	return out
}
