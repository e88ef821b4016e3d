package ports

import (
	"context"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// CycleReport is what the notifier renders after each cycle.
type CycleReport struct {
	Summary    domain.CycleSummary
	Signals    []domain.Signal
	Positions  []domain.Position
	Prices     map[string]float64
	Infeasible []string // tickers excluded this cycle
	Account    domain.AccountState
}

// Notifier presents the cycle result to the user.
type Notifier interface {
	Notify(ctx context.Context, report CycleReport) error
}
