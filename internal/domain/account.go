package domain

import "time"

// AccountState is the single explicit state value threaded through the
// control loop. It is mutated once per cycle by the loop and persisted at
// cycle end; nothing else writes to it.
type AccountState struct {
	Capital float64

	// Day-scoped realized + unrealized P&L, keyed by the trading day so a
	// restart mid-day does not reset the daily loss stop.
	Day           string // "2006-01-02" UTC
	DayRealized   float64
	DayUnrealized float64

	// LossStopTripped latches the daily loss stop: once the day's loss
	// crosses the threshold, entries stay halted for the rest of the day
	// even if unrealized P&L recovers. Cleared on day roll.
	LossStopTripped bool

	// PeakValue is the account high-water mark for drawdown tracking.
	PeakValue float64

	// ClusterExposure tracks deployed dollars per constraint cluster.
	ClusterExposure map[string]float64
}

// NewAccountState returns an account with the given starting capital.
func NewAccountState(capital float64) AccountState {
	return AccountState{
		Capital:         capital,
		PeakValue:       capital,
		ClusterExposure: make(map[string]float64),
	}
}

// DayPnL returns the day's realized + unrealized P&L.
func (a AccountState) DayPnL() float64 {
	return a.DayRealized + a.DayUnrealized
}

// Value returns capital plus open unrealized P&L.
func (a AccountState) Value() float64 {
	return a.Capital + a.DayUnrealized
}

// Drawdown returns the fractional decline from the peak account value.
func (a AccountState) Drawdown() float64 {
	if a.PeakValue <= 0 {
		return 0
	}
	dd := (a.PeakValue - a.Value()) / a.PeakValue
	if dd < 0 {
		return 0
	}
	return dd
}

// RollDay resets day-scoped P&L when the UTC trading day changes.
func (a *AccountState) RollDay(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	if a.Day == day {
		return
	}
	a.Day = day
	a.DayRealized = 0
	a.DayUnrealized = 0
	a.LossStopTripped = false
}

// AddExposure records deployed dollars against a cluster.
func (a *AccountState) AddExposure(cluster string, dollars float64) {
	if a.ClusterExposure == nil {
		a.ClusterExposure = make(map[string]float64)
	}
	a.ClusterExposure[cluster] += dollars
	if a.ClusterExposure[cluster] < 0 {
		a.ClusterExposure[cluster] = 0
	}
}

// SupervisorState is the explicit daemon state machine.
type SupervisorState string

const (
	SupervisorRunning SupervisorState = "RUNNING"
	SupervisorFailed  SupervisorState = "FAILED"
	SupervisorHalted  SupervisorState = "HALTED"
)

// DaemonState is the supervisor's persisted restart bookkeeping, written at
// the end of every cycle and read back on warm start.
type DaemonState struct {
	State               SupervisorState
	Running             bool
	ConsecutiveFailures int
	LastCycleAt         time.Time
	UpdatedAt           time.Time
}
