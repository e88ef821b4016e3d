package signals

// generator.go — directional signal generation from bound violations.
//
// A signal fires when the market price sits outside its propagated bound by
// more than fees + spread + safety margin. Confidence is a ranking score
// only: agreeing constraints raise it additively up to a cap, and it never
// touches position sizing.

import (
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

const (
	// confidenceStep is added per extra constraint agreeing on direction.
	confidenceStep = 0.1
	// confidenceCap bounds the additive part of the confidence score.
	confidenceCap = 0.3

	// finalHourMinEdge: do not enter a market inside its final hour unless
	// the net edge clears this.
	finalHourMinEdge = 0.03
	// spreadEdgeMult: crossing the spread requires edge > this many spreads.
	spreadEdgeMult = 2.0
)

// Config controls signal thresholds.
type Config struct {
	MinFee        float64       // floor for the fee estimate
	SafetyMargin  float64       // extra cost buffer on top of fee + spread
	SignalTTL     time.Duration // signal validity window
	MaxPriceDrift float64       // max price move between creation and execution
}

// DefaultConfig returns production thresholds.
func DefaultConfig() Config {
	return Config{
		MinFee:        0.01,
		SafetyMargin:  0.01,
		SignalTTL:     5 * time.Minute,
		MaxPriceDrift: 0.02,
	}
}

// Generator turns propagated bounds plus a price snapshot into ranked
// directional candidates.
type Generator struct {
	cfg Config
}

// NewGenerator creates a Generator.
func NewGenerator(cfg Config) *Generator {
	if cfg.SignalTTL <= 0 {
		cfg.SignalTTL = 5 * time.Minute
	}
	return &Generator{cfg: cfg}
}

// Generate emits one signal per ticker whose price violates its merged
// bound beyond the cost threshold. Tickers without a bound (infeasible or
// unconstrained this cycle) and tickers without a snapshot are skipped.
// The result is ranked by confidence, best first.
func (g *Generator) Generate(bounds map[string]domain.ProbabilityBound, snaps map[string]domain.Snapshot) []domain.Signal {
	now := time.Now().UTC()
	var out []domain.Signal

	for ticker, bound := range bounds {
		snap, ok := snaps[ticker]
		if !ok {
			continue // data gap, skip this cycle
		}
		if sig, ok := g.evaluate(ticker, snap, bound, now); ok {
			out = append(out, sig)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// evaluate applies the edge/threshold rule to a single ticker.
func (g *Generator) evaluate(ticker string, snap domain.Snapshot, bound domain.ProbabilityBound, now time.Time) (domain.Signal, bool) {
	price := snap.Price
	fee := FeeEstimate(price, g.cfg.MinFee)
	threshold := fee + snap.Spread + g.cfg.SafetyMargin

	edgeUp := bound.Lower - price
	edgeDown := price - bound.Upper

	var direction domain.Direction
	var rawEdge, boundPrice float64
	switch {
	case edgeUp > threshold && edgeUp >= edgeDown:
		direction = domain.BuyYes
		rawEdge = edgeUp
		boundPrice = bound.Lower
	case edgeDown > threshold && edgeDown > edgeUp:
		direction = domain.BuyNo
		rawEdge = edgeDown
		boundPrice = bound.Upper
	default:
		return domain.Signal{}, false
	}

	netEdge := rawEdge - threshold

	sig := domain.Signal{
		Ticker:     ticker,
		Direction:  direction,
		Kind:       domain.KindBoundViolation,
		Price:      price,
		BoundPrice: boundPrice,
		RawEdge:    rawEdge,
		Fee:        fee,
		Spread:     snap.Spread,
		NetEdge:    netEdge,
		Confidence: confidence(netEdge, len(bound.Sources)),
		Sources:    bound.Sources,
		CreatedAt:  now,
		ExpiresAt:  now.Add(g.cfg.SignalTTL),
	}

	slog.Debug("signal candidate",
		"ticker", ticker, "direction", direction,
		"raw_edge", rawEdge, "net_edge", netEdge,
		"sources", len(bound.Sources))
	return sig, true
}

// confidence is the capped additive ranking score: the net edge plus a
// fixed step per extra agreeing constraint. It orders candidates only.
func confidence(netEdge float64, sources int) float64 {
	bonus := 0.0
	if sources > 1 {
		bonus = confidenceStep * float64(sources-1)
		if bonus > confidenceCap {
			bonus = confidenceCap
		}
	}
	return netEdge + bonus
}

// FilterExecutable drops signals that fail the execution rules: a spread
// must be paid for at least twice over, and final-hour markets need a 3%
// edge.
func (g *Generator) FilterExecutable(sigs []domain.Signal, snaps map[string]domain.Snapshot) []domain.Signal {
	out := sigs[:0:0]
	for _, s := range sigs {
		if s.Spread > 0 && s.NetEdge < spreadEdgeMult*s.Spread {
			continue
		}
		if snap, ok := snaps[s.Ticker]; ok && snap.InFinalHour() && s.NetEdge < finalHourMinEdge {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Validate re-checks a signal just before submission: not expired, price
// has not drifted past the limit, and for bound-violation signals the
// bound is still violated at the current price. Invalid signals are
// dropped, not retried.
//
// Rebalancing signals skip the bound re-check: their profit comes from the
// partition sum, not from any individual price crossing a bound, so every
// leg of the basket must go out as long as its price holds. Dropping one
// leg would turn the locked-in deviation into a directional bet.
func (g *Generator) Validate(sig domain.Signal, currentPrice float64, now time.Time) bool {
	if sig.Expired(now) {
		return false
	}
	drift := currentPrice - sig.Price
	if drift < 0 {
		drift = -drift
	}
	if drift > g.cfg.MaxPriceDrift {
		return false
	}
	if sig.Kind == domain.KindRebalancing {
		return true
	}
	if sig.Direction == domain.BuyYes && currentPrice >= sig.BoundPrice {
		return false
	}
	if sig.Direction == domain.BuyNo && currentPrice <= sig.BoundPrice {
		return false
	}
	return true
}
