package engine

// registry.go — constraint registry.
//
// Constraints are declared in a YAML file and loaded once at startup; the
// registry is immutable for the rest of the run. Validation is fatal:
// unknown tickers, malformed types, and degenerate partitions abort the
// load. Temporal constraints for expiration-nested markets in the same
// series can additionally be derived from the first snapshot, before the
// control loop starts.

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// constraintFile is the YAML shape of the constraints file.
type constraintFile struct {
	Constraints []constraintEntry `yaml:"constraints"`
}

type constraintEntry struct {
	ID          string   `yaml:"id"`
	Type        string   `yaml:"type"`
	Subset      string   `yaml:"subset"`
	Superset    string   `yaml:"superset"`
	Members     []string `yaml:"members"`
	Earlier     string   `yaml:"earlier"`
	Later       string   `yaml:"later"`
	Description string   `yaml:"description"`
}

// Registry holds the declared constraints, an index by ticker, and the
// constraint-cluster partition of the ticker universe.
type Registry struct {
	constraints []domain.Constraint
	byTicker    map[string][]int // ticker → indices into constraints
	known       map[string]bool
	parent      map[string]string // union-find for clusters
}

// Load reads and validates the constraints file against the known ticker
// universe. Any malformed constraint is fatal.
func Load(path string, tickers []string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine.Load: read %q: %w", path, err)
	}

	var file constraintFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("engine.Load: parse YAML: %w", err)
	}

	reg := newRegistry(tickers)
	for i, entry := range file.Constraints {
		c, err := parseEntry(entry, i)
		if err != nil {
			return nil, fmt.Errorf("engine.Load: constraint %d: %w", i, err)
		}
		if err := reg.add(c); err != nil {
			return nil, fmt.Errorf("engine.Load: constraint %q: %w", c.ID, err)
		}
	}
	return reg, nil
}

// NewRegistry builds a registry directly from constraints. Used by tests
// and by programmatic setups; applies the same validation as Load.
func NewRegistry(tickers []string, constraints []domain.Constraint) (*Registry, error) {
	reg := newRegistry(tickers)
	for _, c := range constraints {
		if err := reg.add(c); err != nil {
			return nil, fmt.Errorf("engine.NewRegistry: constraint %q: %w", c.ID, err)
		}
	}
	return reg, nil
}

func newRegistry(tickers []string) *Registry {
	known := make(map[string]bool, len(tickers))
	parent := make(map[string]string, len(tickers))
	for _, t := range tickers {
		known[t] = true
		parent[t] = t
	}
	return &Registry{
		byTicker: make(map[string][]int),
		known:    known,
		parent:   parent,
	}
}

func parseEntry(e constraintEntry, idx int) (domain.Constraint, error) {
	t := domain.ConstraintType(e.Type)
	if !t.Valid() {
		return domain.Constraint{}, fmt.Errorf("unrecognized type %q", e.Type)
	}

	c := domain.Constraint{ID: e.ID, Type: t, Description: e.Description}
	switch t {
	case domain.ConstraintSubset:
		c.LHS = []string{e.Subset}
		c.RHS = []string{e.Superset}
	case domain.ConstraintTemporal:
		c.LHS = []string{e.Earlier}
		c.RHS = []string{e.Later}
	case domain.ConstraintPartition:
		c.LHS = append([]string{}, e.Members...)
	}
	if c.ID == "" {
		c.ID = fmt.Sprintf("%s_%d", t, idx)
	}
	return c, nil
}

// add validates a constraint and indexes it.
func (r *Registry) add(c domain.Constraint) error {
	switch c.Type {
	case domain.ConstraintSubset, domain.ConstraintTemporal:
		if len(c.LHS) != 1 || len(c.RHS) != 1 || c.LHS[0] == "" || c.RHS[0] == "" {
			return fmt.Errorf("%s requires exactly one ticker per side", c.Type)
		}
		if c.LHS[0] == c.RHS[0] {
			return fmt.Errorf("%s relates a ticker to itself", c.Type)
		}
	case domain.ConstraintPartition:
		if len(c.LHS) < 2 {
			return fmt.Errorf("partition requires at least 2 members, got %d", len(c.LHS))
		}
	default:
		return fmt.Errorf("unrecognized type %q", c.Type)
	}

	for _, t := range c.AllTickers() {
		if !r.known[t] {
			return fmt.Errorf("%w: %q", domain.ErrUnknownTicker, t)
		}
	}

	idx := len(r.constraints)
	r.constraints = append(r.constraints, c)
	for _, t := range c.AllTickers() {
		r.byTicker[t] = append(r.byTicker[t], idx)
	}

	// All tickers of one constraint share a cluster.
	all := c.AllTickers()
	for _, t := range all[1:] {
		r.union(all[0], t)
	}
	return nil
}

// DeriveTemporal derives subset constraints for expiration-nested markets
// within the same series, from the given snapshots. Must be called before
// the control loop starts; the registry is immutable afterwards.
func (r *Registry) DeriveTemporal(snaps map[string]domain.Snapshot) []domain.Constraint {
	bySeries := make(map[string][]domain.Snapshot)
	for _, s := range snaps {
		if !r.known[s.Ticker] || s.Expiration.IsZero() {
			continue
		}
		series := s.SeriesTicker()
		bySeries[series] = append(bySeries[series], s)
	}

	var derived []domain.Constraint
	for series, members := range bySeries {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			return members[i].Expiration.Before(members[j].Expiration)
		})
		for i := 0; i < len(members)-1; i++ {
			earlier, later := members[i], members[i+1]
			if earlier.Expiration.Equal(later.Expiration) {
				continue
			}
			if r.hasSubsetPair(earlier.Ticker, later.Ticker) {
				continue
			}
			c := domain.Constraint{
				ID:   fmt.Sprintf("temporal_%s_%d", series, earlier.Expiration.Unix()),
				Type: domain.ConstraintTemporal,
				LHS:  []string{earlier.Ticker},
				RHS:  []string{later.Ticker},
				Description: fmt.Sprintf("%s expires before %s",
					earlier.Ticker, later.Ticker),
			}
			if err := r.add(c); err != nil {
				continue
			}
			derived = append(derived, c)
		}
	}
	return derived
}

// hasSubsetPair reports whether a subset/temporal constraint already links
// sub ⊂ super.
func (r *Registry) hasSubsetPair(sub, super string) bool {
	for _, idx := range r.byTicker[sub] {
		c := r.constraints[idx]
		if c.Type == domain.ConstraintPartition {
			continue
		}
		s, sup := c.Subset()
		if s == sub && sup == super {
			return true
		}
	}
	return false
}

// All returns every registered constraint.
func (r *Registry) All() []domain.Constraint {
	return r.constraints
}

// ForTicker returns the constraints involving a ticker.
func (r *Registry) ForTicker(ticker string) []domain.Constraint {
	out := make([]domain.Constraint, 0, len(r.byTicker[ticker]))
	for _, idx := range r.byTicker[ticker] {
		out = append(out, r.constraints[idx])
	}
	return out
}

// Count returns the number of registered constraints.
func (r *Registry) Count() int { return len(r.constraints) }

// Tickers returns the known ticker universe, sorted.
func (r *Registry) Tickers() []string {
	out := make([]string, 0, len(r.known))
	for t := range r.known {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ClusterOf returns the constraint cluster a ticker belongs to. Tickers
// linked by shared constraints map to the same cluster name; unconstrained
// tickers form singleton clusters.
func (r *Registry) ClusterOf(ticker string) string {
	if _, ok := r.parent[ticker]; !ok {
		return ticker
	}
	// Cluster name is the lexicographically smallest member, so names are
	// stable across runs regardless of load order.
	root := r.find(ticker)
	minName := ""
	for t := range r.parent {
		if r.find(t) != root {
			continue
		}
		if minName == "" || t < minName {
			minName = t
		}
	}
	return minName
}

func (r *Registry) find(t string) string {
	for r.parent[t] != t {
		r.parent[t] = r.parent[r.parent[t]]
		t = r.parent[t]
	}
	return t
}

func (r *Registry) union(a, b string) {
	ra, rb := r.find(a), r.find(b)
	if ra != rb {
		r.parent[ra] = rb
	}
}
