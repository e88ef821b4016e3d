package ports

import (
	"context"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// StateSnapshot is the durable cycle-end snapshot: everything the daemon
// needs to resume warm after a crash.
type StateSnapshot struct {
	Positions []domain.Position
	Account   domain.AccountState
	Daemon    domain.DaemonState
}

// SnapshotStorage persists the state snapshot at the end of every cycle and
// restores it at startup. External status queries read this snapshot rather
// than live state.
type SnapshotStorage interface {
	SaveSnapshot(ctx context.Context, snap StateSnapshot) error
	LoadSnapshot(ctx context.Context) (StateSnapshot, error)

	// RecordCycle appends a one-row summary of a completed cycle.
	RecordCycle(ctx context.Context, summary domain.CycleSummary) error

	// Close closes the underlying database cleanly.
	Close() error
}
