package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/engine"
)

func subset(id, sub, super string) domain.Constraint {
	return domain.Constraint{
		ID:   id,
		Type: domain.ConstraintSubset,
		LHS:  []string{sub},
		RHS:  []string{super},
	}
}

func partition(id string, members ...string) domain.Constraint {
	return domain.Constraint{
		ID:   id,
		Type: domain.ConstraintPartition,
		LHS:  members,
	}
}

func TestPropagate_SubsetTightensBothSides(t *testing.T) {
	// The classic mispricing: the subset trades above its superset.
	reg, err := engine.NewRegistry(
		[]string{"TRUMP-GOP-NOM", "GOP-WINS-PRES"},
		[]domain.Constraint{subset("trump_gop", "TRUMP-GOP-NOM", "GOP-WINS-PRES")},
	)
	require.NoError(t, err)

	res := engine.NewPropagator(reg).Propagate(map[string]float64{
		"TRUMP-GOP-NOM": 0.42,
		"GOP-WINS-PRES": 0.38,
	})
	require.Empty(t, res.Infeasible)

	super := res.Bounds["GOP-WINS-PRES"]
	assert.InDelta(t, 0.42, super.Lower, 1e-9, "superset lower must rise to subset price")
	assert.Contains(t, super.Sources, "trump_gop")

	sub := res.Bounds["TRUMP-GOP-NOM"]
	assert.InDelta(t, 0.38, sub.Upper, 1e-9, "subset upper must fall to superset price")
	assert.Contains(t, sub.Sources, "trump_gop")
}

func TestPropagate_TransitiveChain(t *testing.T) {
	// A ⊂ B ⊂ C: A's price must reach C's bound without a declared A ⊂ C.
	reg, err := engine.NewRegistry(
		[]string{"A", "B", "C"},
		[]domain.Constraint{subset("ab", "A", "B"), subset("bc", "B", "C")},
	)
	require.NoError(t, err)

	res := engine.NewPropagator(reg).Propagate(map[string]float64{
		"A": 0.45,
		"C": 0.50,
	})
	require.Empty(t, res.Infeasible)

	// lower(C) ≥ lower(B) ≥ price(A)
	c := res.Bounds["C"]
	assert.InDelta(t, 0.45, c.Lower, 1e-9)
	assert.Contains(t, c.Sources, "bc")

	// upper(A) ≤ upper(B) ≤ price(C)
	a := res.Bounds["A"]
	assert.InDelta(t, 0.50, a.Upper, 1e-9)
}

func TestPropagate_ChainMiddleCollapses(t *testing.T) {
	// A ⊂ B ⊂ C with price(A) > price(C): the unpriced middle market is
	// squeezed into an empty interval and excluded.
	reg, err := engine.NewRegistry(
		[]string{"A", "B", "C"},
		[]domain.Constraint{subset("ab", "A", "B"), subset("bc", "B", "C")},
	)
	require.NoError(t, err)

	res := engine.NewPropagator(reg).Propagate(map[string]float64{
		"A": 0.50,
		"C": 0.30,
	})

	assert.Contains(t, res.Infeasible, "B")
	assert.NotContains(t, res.Bounds, "B")
}

func TestPropagate_PartitionBounds(t *testing.T) {
	reg, err := engine.NewRegistry(
		[]string{"DEM", "REP", "IND"},
		[]domain.Constraint{partition("pres", "DEM", "REP", "IND")},
	)
	require.NoError(t, err)

	res := engine.NewPropagator(reg).Propagate(map[string]float64{
		"DEM": 0.55,
		"REP": 0.40,
		"IND": 0.02,
	})
	require.Empty(t, res.Infeasible)

	// upper(DEM) ≤ 1 − (0.40 + 0.02)
	assert.InDelta(t, 0.58, res.Bounds["DEM"].Upper, 1e-9)
	// upper(REP) ≤ 1 − (0.55 + 0.02), upper(IND) ≤ 1 − (0.55 + 0.40)
	assert.InDelta(t, 0.43, res.Bounds["REP"].Upper, 1e-9)
	assert.InDelta(t, 0.05, res.Bounds["IND"].Upper, 1e-9)
	// lower(DEM) ≥ 1 − upper(REP) − upper(IND)
	assert.InDelta(t, 1-0.43-0.05, res.Bounds["DEM"].Lower, 1e-9)
}

func TestPropagate_PartitionNeedsTwoPricedMembers(t *testing.T) {
	reg, err := engine.NewRegistry(
		[]string{"DEM", "REP", "IND"},
		[]domain.Constraint{partition("pres", "DEM", "REP", "IND")},
	)
	require.NoError(t, err)

	// Only one member priced: the price-sum rule must not fire.
	res := engine.NewPropagator(reg).Propagate(map[string]float64{"DEM": 0.55})
	require.Empty(t, res.Infeasible)

	assert.InDelta(t, 1.0, res.Bounds["REP"].Upper, 1e-9)
	assert.InDelta(t, 0.0, res.Bounds["REP"].Lower, 1e-9)
}

func TestPropagate_InfeasibleExcluded(t *testing.T) {
	// Two-member partition priced at 0.9 + 0.8: both bounds collapse.
	reg, err := engine.NewRegistry(
		[]string{"A", "B"},
		[]domain.Constraint{partition("p", "A", "B")},
	)
	require.NoError(t, err)

	res := engine.NewPropagator(reg).Propagate(map[string]float64{
		"A": 0.9,
		"B": 0.8,
	})

	assert.Equal(t, []string{"A", "B"}, res.Infeasible)
	assert.NotContains(t, res.Bounds, "A")
	assert.NotContains(t, res.Bounds, "B")
}

func TestPropagate_Idempotent(t *testing.T) {
	reg, err := engine.NewRegistry(
		[]string{"A", "B", "C", "D"},
		[]domain.Constraint{
			subset("ab", "A", "B"),
			subset("bc", "B", "C"),
			partition("p", "C", "D"),
		},
	)
	require.NoError(t, err)

	prices := map[string]float64{"A": 0.4, "B": 0.5, "C": 0.6, "D": 0.35}
	p := engine.NewPropagator(reg)

	first := p.Propagate(prices)
	second := p.Propagate(prices)

	require.Equal(t, first.Infeasible, second.Infeasible)
	require.Len(t, second.Bounds, len(first.Bounds))
	for ticker, b := range first.Bounds {
		assert.InDelta(t, b.Lower, second.Bounds[ticker].Lower, 1e-12, ticker)
		assert.InDelta(t, b.Upper, second.Bounds[ticker].Upper, 1e-12, ticker)
		assert.Equal(t, b.Sources, second.Bounds[ticker].Sources, ticker)
	}
}

func TestPropagate_DataGapStillBoundsOthers(t *testing.T) {
	// A has no price this cycle; B must still get its vacuous bound, and A
	// keeps a bound derived from B's price.
	reg, err := engine.NewRegistry(
		[]string{"A", "B"},
		[]domain.Constraint{subset("ab", "A", "B")},
	)
	require.NoError(t, err)

	res := engine.NewPropagator(reg).Propagate(map[string]float64{"B": 0.25})
	require.Empty(t, res.Infeasible)

	assert.InDelta(t, 0.25, res.Bounds["A"].Upper, 1e-9)
	assert.InDelta(t, 0.0, res.Bounds["B"].Lower, 1e-9)
	assert.InDelta(t, 1.0, res.Bounds["B"].Upper, 1e-9)
}
