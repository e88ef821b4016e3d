package risk

// manager.go — portfolio-level entry gating.
//
// Two layers sit above the sizer: the daily loss stop (no new entries for
// the rest of the trading day once the day's realized+unrealized loss
// exceeds the configured fraction of capital) and the drawdown ladder from
// the account high-water mark. Both gate entries only; open positions keep
// being managed.

import (
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// DrawdownAction is the escalating response to account drawdown.
type DrawdownAction string

const (
	DrawdownNone    DrawdownAction = "none"
	DrawdownWarning DrawdownAction = "warning"
	DrawdownReduce  DrawdownAction = "reduce"
	DrawdownStop    DrawdownAction = "stop"
)

// ManagerConfig controls the entry gates.
type ManagerConfig struct {
	DailyLossStopPct float64 // day loss as fraction of capital halting entries

	DrawdownWarning float64
	DrawdownReduce  float64
	DrawdownStop    float64
}

// DefaultManagerConfig returns production risk thresholds.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		DailyLossStopPct: 0.05,
		DrawdownWarning:  0.10,
		DrawdownReduce:   0.20,
		DrawdownStop:     0.30,
	}
}

// Decision is the outcome of an entry approval check.
type Decision struct {
	Allow    bool
	SizeMult float64 // 1.0 normally, 0.5 under drawdown reduce
	Reason   string
}

// Manager approves or rejects new entries from account state.
type Manager struct {
	cfg ManagerConfig
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{cfg: cfg}
}

// ApproveEntry gates a prospective entry. It never blocks exits.
//
// The daily loss stop latches: the first crossing trips a flag on the
// account that holds entries closed for the rest of the trading day, even
// if unrealized P&L later recovers above the threshold. The flag is
// persisted with the snapshot and cleared on day roll.
func (m *Manager) ApproveEntry(acct *domain.AccountState) Decision {
	if m.cfg.DailyLossStopPct > 0 && acct.Capital > 0 {
		if acct.DayPnL() <= -m.cfg.DailyLossStopPct*acct.Capital {
			acct.LossStopTripped = true
		}
		if acct.LossStopTripped {
			return Decision{
				Allow: false,
				Reason: fmt.Sprintf("%v: day pnl %.2f",
					domain.ErrDailyLossStop, acct.DayPnL()),
			}
		}
	}

	switch m.drawdownAction(acct.Drawdown()) {
	case DrawdownStop:
		return Decision{
			Allow:  false,
			Reason: fmt.Sprintf("drawdown stop: %.1f%% from peak", acct.Drawdown()*100),
		}
	case DrawdownReduce:
		slog.Warn("drawdown reduce: halving new entries",
			"drawdown", acct.Drawdown(), "peak", acct.PeakValue)
		return Decision{Allow: true, SizeMult: 0.5, Reason: "drawdown reduce"}
	case DrawdownWarning:
		slog.Warn("drawdown warning", "drawdown", acct.Drawdown(), "peak", acct.PeakValue)
	}

	return Decision{Allow: true, SizeMult: 1.0}
}

func (m *Manager) drawdownAction(dd float64) DrawdownAction {
	switch {
	case m.cfg.DrawdownStop > 0 && dd >= m.cfg.DrawdownStop:
		return DrawdownStop
	case m.cfg.DrawdownReduce > 0 && dd >= m.cfg.DrawdownReduce:
		return DrawdownReduce
	case m.cfg.DrawdownWarning > 0 && dd >= m.cfg.DrawdownWarning:
		return DrawdownWarning
	}
	return DrawdownNone
}
