package domain

import "errors"

// Sentinel errors for the per-cycle error taxonomy. Load-time errors are
// fatal; the rest are per-ticker or per-order and never abort a cycle on
// their own.
var (
	// ErrUnknownTicker: a constraint references a ticker the registry does
	// not know. Fatal at load time.
	ErrUnknownTicker = errors.New("constraint references unknown ticker")

	// ErrInfeasibleBound: merged lower > upper. The ticker is excluded from
	// signaling for the cycle.
	ErrInfeasibleBound = errors.New("infeasible bound: lower > upper")

	// ErrDataGap: the feed omitted price/volume for a ticker this cycle.
	ErrDataGap = errors.New("data gap: ticker missing from snapshot")

	// ErrRejected: the execution gateway rejected an order. No state is
	// mutated; the trigger is re-evaluated next cycle.
	ErrRejected = errors.New("order rejected by gateway")

	// ErrDailyLossStop: the daily loss stop is active, new entries halted.
	ErrDailyLossStop = errors.New("daily loss stop reached")

	// ErrSupervisorHalted: the restart budget is exhausted.
	ErrSupervisorHalted = errors.New("supervisor halted: max restarts exceeded")
)
