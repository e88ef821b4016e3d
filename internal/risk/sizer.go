package risk

// sizer.go — capped fractional Kelly.
//
// Binary payoffs make sizing the risk management: the Kelly fraction is
// scaled down by a fixed factor and clipped by per-market, per-cluster and
// portfolio caps. Confidence never enters here.

import (
	"log/slog"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// SizerConfig controls position sizing.
type SizerConfig struct {
	KellyFraction        float64 // K, scales the full Kelly bet
	MaxPositionFraction  float64 // cap as fraction of capital
	MaxPositionPerMarket float64 // hard dollar cap per market
	MaxClusterFraction   float64 // cap on total cluster exposure vs capital
	MinPositionSize      float64 // dollars below which no position is taken
}

// DefaultSizerConfig returns production sizing parameters.
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{
		KellyFraction:        0.25,
		MaxPositionFraction:  0.05,
		MaxPositionPerMarket: 500,
		MaxClusterFraction:   0.10,
		MinPositionSize:      10,
	}
}

// Sizer converts an approved signal into a dollar order size.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer creates a Sizer.
func NewSizer(cfg SizerConfig) *Sizer {
	if cfg.KellyFraction <= 0 {
		cfg.KellyFraction = 0.25
	}
	return &Sizer{cfg: cfg}
}

// Size returns the dollar size for a signal, or 0 when no position should
// be taken. cluster is the signal ticker's constraint cluster; its current
// exposure caps the result regardless of the individual sizing.
//
// f = min(K·edge/(1−price), max_position_fraction, max_per_market/capital),
// monotonic in the effective edge.
func (s *Sizer) Size(sig domain.Signal, acct domain.AccountState, cluster string) float64 {
	edge := sig.NetEdge
	if edge <= 0 || acct.Capital <= 0 {
		return 0
	}

	price := sig.EntryPrice()
	if price <= 0 || price >= 1 {
		return 0
	}

	f := s.cfg.KellyFraction * edge / (1 - price)
	if s.cfg.MaxPositionFraction > 0 && f > s.cfg.MaxPositionFraction {
		f = s.cfg.MaxPositionFraction
	}
	if s.cfg.MaxPositionPerMarket > 0 {
		perMarket := s.cfg.MaxPositionPerMarket / acct.Capital
		if f > perMarket {
			f = perMarket
		}
	}

	size := f * acct.Capital

	// Cluster exposure cap, enforced even when the individual sizing passed.
	if s.cfg.MaxClusterFraction > 0 {
		maxCluster := s.cfg.MaxClusterFraction * acct.Capital
		available := maxCluster - acct.ClusterExposure[cluster]
		if available <= 0 {
			slog.Debug("cluster exposure cap reached",
				"ticker", sig.Ticker, "cluster", cluster,
				"exposure", acct.ClusterExposure[cluster])
			return 0
		}
		if size > available {
			size = available
		}
	}

	if size < s.cfg.MinPositionSize {
		return 0
	}
	return size
}

// Contracts converts a dollar size to a whole contract count at the given
// per-contract price.
func Contracts(size, price float64) int {
	if price <= 0 || size <= 0 {
		return 0
	}
	return int(size / price)
}
