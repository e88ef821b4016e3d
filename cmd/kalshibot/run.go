package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/kalshibot/config"
	"github.com/alejandrodnm/kalshibot/internal/adapters/kalshi"
	"github.com/alejandrodnm/kalshibot/internal/adapters/notify"
	"github.com/alejandrodnm/kalshibot/internal/adapters/storage"
	"github.com/alejandrodnm/kalshibot/internal/daemon"
	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/engine"
	"github.com/alejandrodnm/kalshibot/internal/lifecycle"
	"github.com/alejandrodnm/kalshibot/internal/ports"
	"github.com/alejandrodnm/kalshibot/internal/risk"
	"github.com/alejandrodnm/kalshibot/internal/signals"
)

// runStart wires the daemon together and runs it in the foreground until a
// termination signal or a permanent halt.
func runStart(cfg *config.Config, table bool) error {
	if err := writePIDFile(cfg.Daemon.PIDFile); err != nil {
		return err
	}
	defer removePIDFile(cfg.Daemon.PIDFile)

	reg, err := engine.Load(cfg.Markets.ConstraintsFile, cfg.Markets.Tickers)
	if err != nil {
		return fmt.Errorf("load constraints: %w", err)
	}
	slog.Info("constraint registry loaded",
		"tickers", len(cfg.Markets.Tickers),
		"constraints", reg.Count(),
		"file", cfg.Markets.ConstraintsFile)

	sigCfg := signals.Config{
		MinFee:        cfg.Signals.MinFee,
		SafetyMargin:  cfg.Signals.SafetyMargin,
		SignalTTL:     cfg.SignalTTL(),
		MaxPriceDrift: cfg.Signals.MaxPriceDrift,
	}

	tiers := make([]lifecycle.Tier, 0, len(cfg.Exits.Tiers))
	for _, t := range cfg.Exits.Tiers {
		tiers = append(tiers, lifecycle.Tier{Level: t.Level, Fraction: t.Fraction})
	}
	lcCfg := lifecycle.Config{
		TakeProfitPct:   cfg.Exits.TakeProfitPct,
		StopLossPct:     cfg.Exits.StopLossPct,
		TrailingStopPct: cfg.Exits.TrailingStopPct,
		TrailingEnabled: cfg.Exits.TrailingEnabled,
		MinHold:         cfg.MinHold(),
		Tiers:           tiers,
	}

	client := kalshi.NewClient(cfg.API.BaseURL, cfg.API.APIKey)

	var executor ports.OrderExecutor = client
	if cfg.Paper() {
		executor = kalshi.NewPaperExecutor()
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	sup := daemon.New(daemon.Config{
		Interval:     cfg.CycleInterval(),
		CycleTimeout: cfg.CycleTimeout(),
		RestartDelay: cfg.RestartDelay(),
		MaxRestarts:  cfg.Daemon.MaxRestarts,
		Paper:        cfg.Paper(),
		Capital:      cfg.Trading.InitialCapital,
	}, daemon.Deps{
		Registry:   reg,
		Propagator: engine.NewPropagator(reg),
		Generator:  signals.NewGenerator(sigCfg),
		Rebalancer: signals.NewRebalancer(reg, cfg.Signals.MinFee, cfg.Signals.RebalancingMinProfit),
		Sizer: risk.NewSizer(risk.SizerConfig{
			KellyFraction:        cfg.Trading.KellyFraction,
			MaxPositionFraction:  cfg.Trading.MaxPositionFraction,
			MaxPositionPerMarket: cfg.Trading.MaxPositionPerMarket,
			MaxClusterFraction:   cfg.Trading.MaxClusterFraction,
			MinPositionSize:      cfg.Trading.MinPositionSize,
		}),
		Risk: risk.NewManager(risk.ManagerConfig{
			DailyLossStopPct: cfg.Risk.DailyLossStopPct,
			DrawdownWarning:  cfg.Risk.DrawdownWarning,
			DrawdownReduce:   cfg.Risk.DrawdownReduce,
			DrawdownStop:     cfg.Risk.DrawdownStop,
		}),
		Lifecycle: lifecycle.New(lcCfg),
		Feed:      client,
		Executor:  executor,
		Store:     store,
		Notifier:  notify.NewConsole(table),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sup.Restore(ctx); err != nil {
		return err
	}

	if err := sup.Run(ctx); err != nil {
		if errors.Is(err, domain.ErrSupervisorHalted) {
			slog.Error("daemon halted permanently; open positions untouched")
		}
		return err
	}
	return nil
}

// runStop signals a running daemon and waits for it to exit.
func runStop(cfg *config.Config) error {
	pid, ok := readPIDFile(cfg.Daemon.PIDFile)
	if !ok || !processAlive(pid) {
		slog.Info("no running daemon found", "pid_file", cfg.Daemon.PIDFile)
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal process %d: %w", pid, err)
	}
	slog.Info("sent SIGTERM, waiting for shutdown", "pid", pid)

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			slog.Info("daemon stopped", "pid", pid)
			os.Remove(cfg.Daemon.PIDFile)
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("daemon pid %d did not stop within 30s", pid)
}

// runStatus prints the last persisted snapshot. It never touches live
// state: the daemon's own cycle-end snapshot is the source of truth.
func runStatus(cfg *config.Config) error {
	store, err := storage.NewReadOnly(cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := store.LoadSnapshot(ctx)
	if err != nil {
		return err
	}

	running := snap.Daemon.Running
	pid, ok := readPIDFile(cfg.Daemon.PIDFile)
	switch {
	case !ok:
		running = false
	case !processAlive(pid):
		// stale file from a crashed run
		os.Remove(cfg.Daemon.PIDFile)
		running = false
	}

	state := snap.Daemon.State
	if state == "" {
		state = "never started"
	}

	fmt.Printf("state:     %s (running: %v)\n", state, running)
	if !snap.Daemon.LastCycleAt.IsZero() {
		fmt.Printf("last run:  %s (%s ago)\n",
			snap.Daemon.LastCycleAt.Format(time.RFC3339),
			time.Since(snap.Daemon.LastCycleAt).Round(time.Second))
	}
	fmt.Printf("failures:  %d consecutive\n", snap.Daemon.ConsecutiveFailures)
	fmt.Printf("capital:   $%.2f (day pnl $%.2f, peak $%.2f, drawdown %.1f%%)\n",
		snap.Account.Capital, snap.Account.DayPnL(), snap.Account.PeakValue,
		snap.Account.Drawdown()*100)
	fmt.Printf("positions: %d open\n", len(snap.Positions))
	for _, p := range snap.Positions {
		fmt.Printf("  %-30s %-3s entry %.2f size $%.2f left $%.2f state %s\n",
			p.Ticker, p.Side, p.EntryPrice, p.Size, p.Remaining, p.State)
	}
	return nil
}
