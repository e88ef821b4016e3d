package signals

// rebalancing.go — partition-sum arbitrage.
//
// When the prices of a full partition sum away from 1, buying every member
// on the cheap side locks in the deviation. sum < 1 → buy all YES;
// sum > 1 → buy all NO.

import (
	"log/slog"
	"time"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/engine"
)

// partitionTolerance is the band around 1.0 inside which a partition sum is
// treated as balanced. Documented constant rather than a guess at intent.
const partitionTolerance = 0.01

// Rebalancer scans partitions for price-sum deviations.
type Rebalancer struct {
	reg       *engine.Registry
	minFee    float64
	minProfit float64
}

// NewRebalancer creates a Rebalancer. minProfit is the post-fee deviation
// required before signaling.
func NewRebalancer(reg *engine.Registry, minFee, minProfit float64) *Rebalancer {
	return &Rebalancer{reg: reg, minFee: minFee, minProfit: minProfit}
}

// Scan emits one signal per member of each deviating partition. A partition
// with any member missing from the snapshot is skipped for the cycle: a
// partial sum says nothing about the whole.
func (r *Rebalancer) Scan(snaps map[string]domain.Snapshot) []domain.Signal {
	now := time.Now().UTC()
	var out []domain.Signal

	for _, c := range r.reg.All() {
		if c.Type != domain.ConstraintPartition {
			continue
		}
		out = append(out, r.scanPartition(c, snaps, now)...)
	}
	return out
}

func (r *Rebalancer) scanPartition(c domain.Constraint, snaps map[string]domain.Snapshot, now time.Time) []domain.Signal {
	members := c.Members()
	prices := make([]float64, 0, len(members))
	sum := 0.0
	for _, m := range members {
		snap, ok := snaps[m]
		if !ok {
			return nil
		}
		prices = append(prices, snap.Price)
		sum += snap.Price
	}

	deviation := sum - 1.0
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation <= partitionTolerance {
		return nil
	}

	profit := deviation - TotalFees(prices, r.minFee)
	if profit < r.minProfit {
		return nil
	}

	direction := domain.BuyYes
	if sum > 1 {
		direction = domain.BuyNo
	}
	perMember := profit / float64(len(members))

	slog.Info("partition rebalancing opportunity",
		"constraint", c.ID, "sum", sum,
		"deviation", deviation, "profit_post_fee", profit,
		"direction", direction)

	sigs := make([]domain.Signal, 0, len(members))
	for i, m := range members {
		sigs = append(sigs, domain.Signal{
			Ticker:     m,
			Direction:  direction,
			Kind:       domain.KindRebalancing,
			Price:      prices[i],
			BoundPrice: 1.0 / float64(len(members)),
			RawEdge:    perMember + FeeEstimate(prices[i], r.minFee),
			Fee:        FeeEstimate(prices[i], r.minFee),
			NetEdge:    perMember,
			Confidence: perMember,
			Sources:    []string{c.ID},
			CreatedAt:  now,
			ExpiresAt:  now.Add(5 * time.Minute),
		})
	}
	return sigs
}
