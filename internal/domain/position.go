package domain

import "time"

// Side of a position: which contract was bought.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// LifecycleState is the per-position sub-state driven by the lifecycle
// manager. Terminal closes are recorded as the ExitKind of the closing
// action; the position itself only distinguishes open, trailing, closed.
type LifecycleState string

const (
	StateOpen       LifecycleState = "OPEN"
	StateMonitoring LifecycleState = "MONITORING"
	StateTrailing   LifecycleState = "TRAILING"
	StateClosed     LifecycleState = "CLOSED"
)

// ExitKind identifies which rule closed (part of) a position.
type ExitKind string

const (
	ExitStopLoss   ExitKind = "STOP_LOSS_CLOSE"
	ExitTakeProfit ExitKind = "TAKE_PROFIT_CLOSE"
	ExitTrailing   ExitKind = "TRAILING_CLOSE"
	ExitTier       ExitKind = "TIER_CLOSE"
	ExitSettlement ExitKind = "SETTLEMENT_CLOSE"
)

// Position is an open directional position, created on a confirmed fill and
// mutated only by the lifecycle manager.
type Position struct {
	ID         string
	Ticker     string
	Cluster    string // constraint cluster for exposure capping
	Side       Side
	EntryPrice float64 // price paid per contract (NO positions store 1-yes)
	Size       float64 // original size in dollars
	Remaining  float64 // remaining size in dollars after partial closes
	OpenedAt   time.Time

	State LifecycleState

	// Trailing stop bookkeeping. Peak is the best unrealized pct seen since
	// the trailing stop armed; it survives partial closes.
	TrailingArmed bool
	Peak          float64

	// FiredTiers holds tier indices that already closed their fraction.
	// Firing is permanent: a tier never re-fires on price retrace.
	FiredTiers map[int]bool

	RealizedPnL float64
	ClosedAt    *time.Time
}

// UnrealizedPct returns the fractional gain/loss of the position at the
// current YES price. NO positions gain when the YES price falls.
func (p Position) UnrealizedPct(yesPrice float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	current := yesPrice
	if p.Side == SideNo {
		current = 1 - yesPrice
	}
	return (current - p.EntryPrice) / p.EntryPrice
}

// UnrealizedPnL returns the dollar unrealized P&L on the remaining size.
func (p Position) UnrealizedPnL(yesPrice float64) float64 {
	return p.UnrealizedPct(yesPrice) * p.Remaining
}

// TierFired reports whether tier n already closed its fraction.
func (p Position) TierFired(n int) bool {
	return p.FiredTiers != nil && p.FiredTiers[n]
}

// MarkTierFired permanently records tier n as fired.
func (p *Position) MarkTierFired(n int) {
	if p.FiredTiers == nil {
		p.FiredTiers = make(map[int]bool)
	}
	p.FiredTiers[n] = true
}

// Closed reports whether the position has fully exited.
func (p Position) Closed() bool {
	return p.State == StateClosed || p.Remaining <= 0
}

// HeldFor returns how long the position has been open.
func (p Position) HeldFor(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}

// ExitAction is a close instruction produced by the lifecycle manager for
// the supervisor to execute through the gateway.
type ExitAction struct {
	PositionID string
	Ticker     string
	Kind       ExitKind
	Tier       int     // tier index for ExitTier, -1 otherwise
	CloseSize  float64 // dollars of remaining size to close
	Full       bool
	Pct        float64 // unrealized pct at decision time
	Reason     string
}
