package ports

import (
	"context"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// MarketDataProvider returns the current snapshot for each known ticker.
// A ticker missing from the result is a per-ticker data gap, not an error;
// the caller skips it for the cycle.
type MarketDataProvider interface {
	FetchSnapshots(ctx context.Context, tickers []string) (map[string]domain.Snapshot, error)
}
