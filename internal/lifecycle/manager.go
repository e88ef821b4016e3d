package lifecycle

// manager.go — per-position exit state machine.
//
// Rules are evaluated in fixed priority each cycle: forced settlement,
// min-hold, stop-loss, tiers in ascending level order, take-profit /
// trailing arm, trailing stop. Evaluate decides, Apply commits: a decided
// close only mutates the position once the gateway confirms the fill, so a
// rejected tier close stays unfired and is retried next cycle.

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// Tier is a (profit level, close fraction) pair: at unrealized profit
// ≥ Level, close Fraction of the remaining size.
type Tier struct {
	Level    float64 `yaml:"level"`
	Fraction float64 `yaml:"fraction"`
}

// Config is the exit policy.
type Config struct {
	TakeProfitPct   float64
	StopLossPct     float64
	TrailingStopPct float64
	TrailingEnabled bool
	MinHold         time.Duration
	Tiers           []Tier
}

// DefaultConfig returns the production exit policy.
func DefaultConfig() Config {
	return Config{
		TakeProfitPct:   0.15,
		StopLossPct:     0.10,
		TrailingStopPct: 0.05,
		TrailingEnabled: true,
		MinHold:         60 * time.Second,
		Tiers: []Tier{
			{Level: 0.10, Fraction: 0.25},
			{Level: 0.20, Fraction: 0.50},
			{Level: 0.30, Fraction: 0.75},
		},
	}
}

// Manager evaluates open positions against the exit policy.
type Manager struct {
	cfg Config
}

// New creates a Manager. Tiers are kept in ascending level order.
func New(cfg Config) *Manager {
	tiers := append([]Tier{}, cfg.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Level < tiers[j].Level })
	cfg.Tiers = tiers
	return &Manager{cfg: cfg}
}

// Evaluate runs one cycle of the exit rules for a position and returns the
// close actions to execute. It updates trailing bookkeeping (arming, peak)
// on the position but never reduces size or fires tiers; that happens in
// Apply once fills confirm.
func (m *Manager) Evaluate(pos *domain.Position, snap domain.Snapshot, now time.Time) []domain.ExitAction {
	if pos.Closed() {
		return nil
	}

	// Settlement overrides everything, including min-hold.
	if snap.Settled {
		pct := pos.UnrealizedPct(snap.SettleTo)
		return []domain.ExitAction{fullClose(pos, domain.ExitSettlement, pct,
			fmt.Sprintf("settled at %.0f", snap.SettleTo))}
	}

	if pos.HeldFor(now) < m.cfg.MinHold {
		return nil
	}

	if pos.State == domain.StateOpen {
		pos.State = domain.StateMonitoring
	}

	pct := pos.UnrealizedPct(snap.Price)

	// Stop-loss, checked before any tier.
	if pct <= -m.cfg.StopLossPct {
		return []domain.ExitAction{fullClose(pos, domain.ExitStopLoss, pct,
			fmt.Sprintf("stop loss at %.1f%%", pct*100))}
	}

	var actions []domain.ExitAction

	// Tiers fire ascending, each against the size remaining after the
	// previous tier this cycle. Fired tiers never re-fire.
	remaining := pos.Remaining
	for i, tier := range m.cfg.Tiers {
		if pos.TierFired(i) || pct < tier.Level {
			continue
		}
		closeSize := remaining * tier.Fraction
		if closeSize <= 0 {
			continue
		}
		actions = append(actions, domain.ExitAction{
			PositionID: pos.ID,
			Ticker:     pos.Ticker,
			Kind:       domain.ExitTier,
			Tier:       i,
			CloseSize:  closeSize,
			Pct:        pct,
			Reason:     fmt.Sprintf("tier %d: %.0f%% target hit", i+1, tier.Level*100),
		})
		remaining -= closeSize
	}

	// Take-profit: arm the trailing stop, or close outright when trailing
	// is disabled.
	if pct >= m.cfg.TakeProfitPct && pos.State != domain.StateTrailing {
		if m.cfg.TrailingEnabled {
			pos.State = domain.StateTrailing
			pos.TrailingArmed = true
			pos.Peak = pct
			slog.Info("trailing stop armed",
				"ticker", pos.Ticker, "peak", pct)
		} else {
			actions = append(actions, fullClose(pos, domain.ExitTakeProfit, pct,
				fmt.Sprintf("take profit at %.1f%%", pct*100)))
			return actions
		}
	}

	if pos.State == domain.StateTrailing {
		if pct > pos.Peak {
			pos.Peak = pct
		}
		if pct <= pos.Peak-m.cfg.TrailingStopPct {
			actions = append(actions, fullClose(pos, domain.ExitTrailing, pct,
				fmt.Sprintf("trailing stop: %.1f%% off peak %.1f%%",
					(pos.Peak-pct)*100, pos.Peak*100)))
		}
	}

	return actions
}

// Apply commits a confirmed exit fill to the position: reduces remaining
// size, realizes P&L, fires the tier, and closes the position on a full
// exit. Partial closes keep the position open with its fired-tier set and
// trailing peak intact.
func (m *Manager) Apply(pos *domain.Position, action domain.ExitAction, now time.Time) float64 {
	closeSize := action.CloseSize
	if action.Full || closeSize > pos.Remaining {
		closeSize = pos.Remaining
	}

	realized := action.Pct * closeSize
	pos.RealizedPnL += realized
	pos.Remaining -= closeSize

	if action.Kind == domain.ExitTier {
		pos.MarkTierFired(action.Tier)
	}

	if action.Full || pos.Remaining <= 0 {
		pos.Remaining = 0
		pos.State = domain.StateClosed
		closedAt := now
		pos.ClosedAt = &closedAt
	}

	slog.Info("position exit applied",
		"ticker", pos.Ticker, "kind", action.Kind,
		"closed", closeSize, "remaining", pos.Remaining,
		"realized", realized, "reason", action.Reason)
	return realized
}

func fullClose(pos *domain.Position, kind domain.ExitKind, pct float64, reason string) domain.ExitAction {
	return domain.ExitAction{
		PositionID: pos.ID,
		Ticker:     pos.Ticker,
		Kind:       kind,
		Tier:       -1,
		CloseSize:  pos.Remaining,
		Full:       true,
		Pct:        pct,
		Reason:     reason,
	}
}
