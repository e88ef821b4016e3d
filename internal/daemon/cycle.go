package daemon

// cycle.go — one scan → decide → execute → monitor pass.
//
// A cycle is atomic with respect to the next: entries and exits happen
// fully within it, and the snapshot persisted at its end is the only state
// the next cycle (or a restart) starts from.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

// runCycle executes one full pass. Any error or panic inside it is a cycle
// failure counted against the restart budget.
func (s *Supervisor) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("daemon.runCycle: panic: %v", r)
		}
	}()

	// The cycle runs under its own timeout, detached from the termination
	// signal: cancellation interrupts only inter-cycle sleeps, never an
	// in-flight order submission.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CycleTimeout)
	defer cancel()

	start := time.Now()
	now := start.UTC()

	snaps, err := s.deps.Feed.FetchSnapshots(cctx, s.deps.Registry.Tickers())
	if err != nil {
		return fmt.Errorf("daemon.runCycle: fetch snapshots: %w", err)
	}

	// Temporal nesting is derived once per run, from the first snapshot
	// with expirations. The registry stays immutable afterwards.
	if !s.derivedTemporal {
		if derived := s.deps.Registry.DeriveTemporal(snaps); len(derived) > 0 {
			slog.Info("derived temporal constraints", "count", len(derived))
		}
		s.derivedTemporal = true
	}

	s.acct.RollDay(now)

	prices := make(map[string]float64, len(snaps))
	for t, snap := range snaps {
		if !snap.Settled {
			prices[t] = snap.Price
		}
	}

	res := s.deps.Propagator.Propagate(prices)

	sigs := s.deps.Generator.Generate(res.Bounds, snaps)
	sigs = append(sigs, s.deps.Rebalancer.Scan(snaps)...)
	sigs = s.deps.Generator.FilterExecutable(sigs, snaps)

	summary := domain.CycleSummary{
		StartedAt:  start,
		Tickers:    len(snaps),
		Infeasible: len(res.Infeasible),
		Signals:    len(sigs),
	}

	if err := s.enterPositions(cctx, sigs, snaps, now, &summary); err != nil {
		return err
	}
	if err := s.manageExits(cctx, snaps, now, &summary); err != nil {
		return err
	}
	s.markToMarket(snaps)

	summary.Duration = time.Since(start)
	summary.DayPnL = s.acct.DayPnL()

	s.persist(cctx)
	if err := s.deps.Store.RecordCycle(cctx, summary); err != nil {
		slog.Warn("cycle record failed", "err", err)
	}

	report := ports.CycleReport{
		Summary:    summary,
		Signals:    sigs,
		Positions:  s.openPositions(),
		Prices:     prices,
		Infeasible: res.Infeasible,
		Account:    s.acct,
	}
	if err := s.deps.Notifier.Notify(cctx, report); err != nil {
		slog.Warn("notify failed", "err", err)
	}
	return nil
}

// enterPositions walks executable signals in confidence order and opens
// positions for the approved ones. A gateway rejection skips the signal; a
// blocked approval (daily loss stop, drawdown stop) ends all entries for
// the cycle. Exits are never gated here.
func (s *Supervisor) enterPositions(ctx context.Context, sigs []domain.Signal, snaps map[string]domain.Snapshot, now time.Time, summary *domain.CycleSummary) error {
	for _, sig := range sigs {
		if s.hasOpenPosition(sig.Ticker) {
			continue
		}
		snap, ok := snaps[sig.Ticker]
		if !ok || snap.Settled {
			continue
		}
		if !s.deps.Generator.Validate(sig, snap.Price, now) {
			continue
		}

		dec := s.deps.Risk.ApproveEntry(&s.acct)
		if !dec.Allow {
			slog.Warn("new entries blocked for cycle", "reason", dec.Reason)
			break
		}

		cluster := s.deps.Registry.ClusterOf(sig.Ticker)
		size := s.deps.Sizer.Size(sig, s.acct, cluster) * dec.SizeMult
		if size <= 0 {
			continue
		}

		req := ports.OrderRequest{
			ID:     uuid.NewString(),
			Ticker: sig.Ticker,
			Side:   sideFor(sig.Direction),
			Size:   size,
			Price:  sig.EntryPrice(),
		}
		fill, err := s.deps.Executor.PlaceOrder(ctx, req)
		if err != nil {
			if errors.Is(err, domain.ErrRejected) {
				summary.Rejections++
				slog.Warn("entry rejected",
					"ticker", sig.Ticker, "direction", sig.Direction, "err", err)
				continue
			}
			return fmt.Errorf("daemon.enterPositions: %s: %w", sig.Ticker, err)
		}

		pos := domain.Position{
			ID:         req.ID,
			Ticker:     sig.Ticker,
			Cluster:    cluster,
			Side:       fill.Side,
			EntryPrice: fill.Price,
			Size:       fill.Size,
			Remaining:  fill.Size,
			OpenedAt:   now,
			State:      domain.StateOpen,
			FiredTiers: make(map[int]bool),
		}
		s.positions = append(s.positions, pos)
		s.acct.AddExposure(cluster, fill.Size)
		summary.Entries++

		slog.Info("position opened",
			"ticker", pos.Ticker,
			"side", pos.Side,
			"size", pos.Size,
			"price", pos.EntryPrice,
			"net_edge", sig.NetEdge,
			"confidence", sig.Confidence,
			"kind", sig.Kind,
			"cluster", cluster)
	}
	return nil
}

// manageExits evaluates every open position against its fresh snapshot and
// executes the resulting close actions. Position state (fired tiers,
// remaining size) commits only on confirmed fills, so a rejected tier
// close leaves the tier unfired and it retries next cycle. A position with
// a data gap this cycle is skipped, never closed.
func (s *Supervisor) manageExits(ctx context.Context, snaps map[string]domain.Snapshot, now time.Time, summary *domain.CycleSummary) error {
	for i := range s.positions {
		pos := &s.positions[i]
		if pos.Closed() {
			continue
		}
		snap, ok := snaps[pos.Ticker]
		if !ok {
			slog.Warn("data gap: skipping position this cycle", "ticker", pos.Ticker)
			continue
		}

		for _, action := range s.deps.Lifecycle.Evaluate(pos, snap, now) {
			if action.Kind == domain.ExitSettlement {
				// Settlement is booked directly: the exchange settles the
				// contracts, no order goes out.
				closeSize := action.CloseSize
				realized := s.deps.Lifecycle.Apply(pos, action, now)
				s.book(pos, realized, closeSize)
				summary.Exits++
				slog.Info("position settled",
					"ticker", pos.Ticker, "settle_to", snap.SettleTo, "pnl", realized)
				continue
			}

			req := ports.OrderRequest{
				ID:     uuid.NewString(),
				Ticker: pos.Ticker,
				Side:   opposite(pos.Side),
				Size:   action.CloseSize,
				Price:  closePrice(pos.Side, snap.Price),
			}
			if _, err := s.deps.Executor.PlaceOrder(ctx, req); err != nil {
				if errors.Is(err, domain.ErrRejected) {
					summary.Rejections++
					slog.Warn("exit rejected, retrying next cycle",
						"ticker", pos.Ticker, "kind", action.Kind, "err", err)
					continue
				}
				return fmt.Errorf("daemon.manageExits: %s: %w", pos.Ticker, err)
			}

			closeSize := action.CloseSize
			realized := s.deps.Lifecycle.Apply(pos, action, now)
			s.book(pos, realized, closeSize)
			summary.Exits++

			slog.Info("position exit",
				"ticker", pos.Ticker,
				"kind", action.Kind,
				"size", closeSize,
				"pct", action.Pct,
				"pnl", realized,
				"remaining", pos.Remaining,
				"reason", action.Reason)
		}
	}

	s.positions = s.openPositions()
	return nil
}

// book commits a realized close into the account.
func (s *Supervisor) book(pos *domain.Position, realized, closeSize float64) {
	s.acct.DayRealized += realized
	s.acct.Capital += realized
	s.acct.AddExposure(pos.Cluster, -closeSize)
}

// markToMarket refreshes the day's unrealized P&L and the drawdown
// high-water mark from the cycle's prices.
func (s *Supervisor) markToMarket(snaps map[string]domain.Snapshot) {
	unrealized := 0.0
	for _, pos := range s.positions {
		if pos.Closed() {
			continue
		}
		if snap, ok := snaps[pos.Ticker]; ok && !snap.Settled {
			unrealized += pos.UnrealizedPnL(snap.Price)
		}
	}
	s.acct.DayUnrealized = unrealized
	if v := s.acct.Value(); v > s.acct.PeakValue {
		s.acct.PeakValue = v
	}
}

func (s *Supervisor) hasOpenPosition(ticker string) bool {
	for _, p := range s.positions {
		if p.Ticker == ticker && !p.Closed() {
			return true
		}
	}
	return false
}

func sideFor(d domain.Direction) domain.Side {
	if d == domain.BuyNo {
		return domain.SideNo
	}
	return domain.SideYes
}

// opposite returns the side bought to flatten a position.
func opposite(side domain.Side) domain.Side {
	if side == domain.SideYes {
		return domain.SideNo
	}
	return domain.SideYes
}

// closePrice returns the per-contract price of the flattening side.
func closePrice(side domain.Side, yesPrice float64) float64 {
	if side == domain.SideYes {
		return clampPrice(1 - yesPrice)
	}
	return clampPrice(yesPrice)
}

func clampPrice(p float64) float64 {
	if p < 0.01 {
		return 0.01
	}
	if p > 0.99 {
		return 0.99
	}
	return p
}
