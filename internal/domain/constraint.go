package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ConstraintType is the closed set of logical relation kinds between markets.
type ConstraintType string

const (
	// ConstraintSubset: A ⊂ B, so p(A) ≤ p(B).
	ConstraintSubset ConstraintType = "subset"
	// ConstraintPartition: mutually exclusive outcomes, Σ p_i = 1.
	ConstraintPartition ConstraintType = "partition"
	// ConstraintTemporal: earlier expiration ⊂ later expiration.
	// Propagates exactly like a subset constraint.
	ConstraintTemporal ConstraintType = "temporal"
)

// Valid reports whether t is one of the recognized constraint types.
func (t ConstraintType) Valid() bool {
	switch t {
	case ConstraintSubset, ConstraintPartition, ConstraintTemporal:
		return true
	}
	return false
}

// Constraint is a declared logical relation between tickers.
// Immutable once the registry is loaded.
//
// Subset/Temporal use LHS[0] ⊂ RHS[0]. Partition uses LHS as the member set.
type Constraint struct {
	ID          string
	Type        ConstraintType
	LHS         []string
	RHS         []string
	Description string
}

// Members returns the partition member set. Only meaningful for partitions.
func (c Constraint) Members() []string { return c.LHS }

// Subset returns the (subset, superset) pair for subset/temporal constraints.
func (c Constraint) Subset() (sub, super string) {
	return c.LHS[0], c.RHS[0]
}

// AllTickers returns every ticker referenced by the constraint, deduplicated.
func (c Constraint) AllTickers() []string {
	seen := make(map[string]bool, len(c.LHS)+len(c.RHS))
	out := make([]string, 0, len(c.LHS)+len(c.RHS))
	for _, t := range append(append([]string{}, c.LHS...), c.RHS...) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func (c Constraint) String() string {
	if c.Description != "" {
		return c.Description
	}
	switch c.Type {
	case ConstraintPartition:
		return fmt.Sprintf("partition{%s}", strings.Join(c.LHS, ", "))
	default:
		sub, super := c.Subset()
		return fmt.Sprintf("%s ⊂ %s", sub, super)
	}
}

// ProbabilityBound is the merged hard probability interval for one ticker,
// tagged with the constraint IDs it was derived from.
type ProbabilityBound struct {
	Ticker  string
	Lower   float64
	Upper   float64
	Sources []string
}

// NewBound returns the vacuous [0,1] bound for a ticker.
func NewBound(ticker string) ProbabilityBound {
	return ProbabilityBound{Ticker: ticker, Lower: 0, Upper: 1}
}

// Merge intersects two bounds for the same ticker: the max lower and min
// upper win, and source constraint IDs are unioned for auditability.
func (b ProbabilityBound) Merge(other ProbabilityBound) ProbabilityBound {
	merged := ProbabilityBound{
		Ticker: b.Ticker,
		Lower:  b.Lower,
		Upper:  b.Upper,
	}
	if other.Lower > merged.Lower {
		merged.Lower = other.Lower
	}
	if other.Upper < merged.Upper {
		merged.Upper = other.Upper
	}
	merged.Sources = unionSources(b.Sources, other.Sources)
	return merged
}

// Infeasible reports whether the merged interval is empty (lower > upper).
// Infeasible tickers are excluded from signaling for the cycle.
func (b ProbabilityBound) Infeasible() bool {
	return b.Lower > b.Upper
}

// Contains reports whether price lies inside the bound.
func (b ProbabilityBound) Contains(price float64) bool {
	return price >= b.Lower && price <= b.Upper
}

// Violation returns how far price sits outside the bound: positive when below
// the lower bound or above the upper bound, 0 when inside.
func (b ProbabilityBound) Violation(price float64) float64 {
	if price < b.Lower {
		return b.Lower - price
	}
	if price > b.Upper {
		return price - b.Upper
	}
	return 0
}

func unionSources(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
