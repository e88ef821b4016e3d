package engine

// bounds.go — bound propagation.
//
// Each cycle the propagator derives a hard probability interval per ticker
// from every applicable constraint and intersects them. Subset chains
// (A ⊂ B ⊂ C) are closed transitively by iterating to a fixed point; the
// pass count is bounded by the constraint count, which guarantees
// termination because each pass either tightens some bound or changes
// nothing.

import (
	"log/slog"
	"sort"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// boundEps is the tolerance below which a bound change does not count as
// progress for the fixed-point loop, and above which lower > upper is
// reported infeasible.
const boundEps = 1e-9

// Result is the output of one propagation pass over a price snapshot.
type Result struct {
	// Bounds holds the merged feasible bound per ticker. Infeasible tickers
	// are excluded.
	Bounds map[string]domain.ProbabilityBound

	// Infeasible lists tickers whose merged interval collapsed
	// (lower > upper). They are excluded from signaling this cycle.
	Infeasible []string
}

// Propagator computes per-ticker probability bounds from the registry and a
// price snapshot.
type Propagator struct {
	reg *Registry
}

// NewPropagator creates a Propagator over the given registry.
func NewPropagator(reg *Registry) *Propagator {
	return &Propagator{reg: reg}
}

// Propagate derives and merges bounds for all known tickers at the given
// prices. Tickers absent from prices contribute nothing (data gap) but can
// still receive bounds from constraints whose other members have prices.
// Propagation is idempotent: the same snapshot always yields the same
// fixed point.
func (p *Propagator) Propagate(prices map[string]float64) Result {
	bounds := make(map[string]domain.ProbabilityBound, len(p.reg.known))
	for t := range p.reg.known {
		bounds[t] = domain.NewBound(t)
	}

	// Fixed-point closure: one extra pass over the direct application per
	// constraint is enough for any chain the registry can express.
	maxPasses := p.reg.Count() + 1
	for pass := 0; pass < maxPasses; pass++ {
		changed := false
		for _, c := range p.reg.All() {
			if p.apply(c, prices, bounds) {
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	var infeasible []string
	for t, b := range bounds {
		if b.Lower > b.Upper+boundEps {
			infeasible = append(infeasible, t)
			slog.Warn("infeasible bound, excluding ticker from signaling",
				"ticker", t, "lower", b.Lower, "upper", b.Upper,
				"sources", b.Sources)
		}
	}
	sort.Strings(infeasible)
	for _, t := range infeasible {
		delete(bounds, t)
	}

	return Result{Bounds: bounds, Infeasible: infeasible}
}

// apply tightens bounds from one constraint. Returns true if any bound moved.
func (p *Propagator) apply(c domain.Constraint, prices map[string]float64, bounds map[string]domain.ProbabilityBound) bool {
	switch c.Type {
	case domain.ConstraintSubset, domain.ConstraintTemporal:
		return p.applySubset(c, prices, bounds)
	case domain.ConstraintPartition:
		return p.applyPartition(c, prices, bounds)
	}
	return false
}

// applySubset handles A ⊂ B: p(A) ≤ p(B).
//
// From prices: bound(B).lower ≥ price(A), bound(A).upper ≤ price(B).
// From bounds (transitive step): bound(B).lower ≥ bound(A).lower and
// bound(A).upper ≤ bound(B).upper.
func (p *Propagator) applySubset(c domain.Constraint, prices map[string]float64, bounds map[string]domain.ProbabilityBound) bool {
	sub, super := c.Subset()
	changed := false

	if price, ok := prices[sub]; ok {
		changed = tightenLower(bounds, super, price, c.ID) || changed
	}
	if price, ok := prices[super]; ok {
		changed = tightenUpper(bounds, sub, price, c.ID) || changed
	}

	subBound := bounds[sub]
	superBound := bounds[super]
	changed = tightenLower(bounds, super, subBound.Lower, c.ID) || changed
	changed = tightenUpper(bounds, sub, superBound.Upper, c.ID) || changed

	return changed
}

// applyPartition handles Σ p_i = 1 over mutually exclusive members:
// upper(i) ≤ 1 − Σ_{j≠i} price(j) and lower(i) ≥ 1 − Σ_{j≠i} upper(j).
// Members without prices are skipped; at least two priced members are
// required before the price-sum rule contributes anything.
func (p *Propagator) applyPartition(c domain.Constraint, prices map[string]float64, bounds map[string]domain.ProbabilityBound) bool {
	members := c.Members()

	priced := 0
	priceSum := 0.0
	for _, m := range members {
		if v, ok := prices[m]; ok {
			priced++
			priceSum += v
		}
	}

	changed := false

	if priced >= 2 {
		for _, m := range members {
			v, ok := prices[m]
			if !ok {
				continue
			}
			otherSum := priceSum - v
			upper := clamp01(1 - otherSum)
			changed = tightenUpper(bounds, m, upper, c.ID) || changed
		}
	}

	// Lower bounds come from the other members' uppers, so they tighten as
	// the closure progresses.
	for _, m := range members {
		otherUpper := 0.0
		for _, o := range members {
			if o == m {
				continue
			}
			otherUpper += bounds[o].Upper
		}
		lower := 1 - otherUpper
		if lower < 0 {
			lower = 0
		}
		changed = tightenLower(bounds, m, lower, c.ID) || changed
	}

	return changed
}

func tightenLower(bounds map[string]domain.ProbabilityBound, ticker string, lower float64, source string) bool {
	b, ok := bounds[ticker]
	if !ok || lower <= b.Lower+boundEps {
		return false
	}
	b.Lower = lower
	b.Sources = addSource(b.Sources, source)
	bounds[ticker] = b
	return true
}

func tightenUpper(bounds map[string]domain.ProbabilityBound, ticker string, upper float64, source string) bool {
	b, ok := bounds[ticker]
	if !ok || upper >= b.Upper-boundEps {
		return false
	}
	b.Upper = upper
	b.Sources = addSource(b.Sources, source)
	bounds[ticker] = b
	return true
}

func addSource(sources []string, id string) []string {
	for _, s := range sources {
		if s == id {
			return sources
		}
	}
	out := append(append([]string{}, sources...), id)
	sort.Strings(out)
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
