package domain

import "time"

// Direction of a trading signal.
type Direction string

const (
	BuyYes Direction = "BUY_YES"
	BuyNo  Direction = "BUY_NO"
)

// SignalKind records what produced the signal.
type SignalKind string

const (
	// KindBoundViolation: price violates a propagated probability bound.
	KindBoundViolation SignalKind = "bound_violation"
	// KindRebalancing: a partition's price sum drifted away from 1.
	KindRebalancing SignalKind = "rebalancing"
)

// Signal is a directional trade candidate produced within a cycle.
// Signals are ephemeral: they are never persisted past the cycle that
// created them.
type Signal struct {
	Ticker     string
	Direction  Direction
	Kind       SignalKind
	Price      float64 // price at signal creation
	BoundPrice float64 // violated bound (lower for BUY_YES, upper for BUY_NO)
	RawEdge    float64 // bound violation before costs
	Fee        float64
	Spread     float64
	NetEdge    float64 // RawEdge - fee - spread - safety margin

	// Confidence is a capped additive ranking score. Multiple constraints
	// agreeing on the direction raise it. It orders candidates and must
	// never scale position size.
	Confidence float64

	Sources   []string // originating constraint IDs
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the signal's TTL has passed.
func (s Signal) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// EntryPrice returns the price paid per contract for the signaled side.
// BUY_NO contracts cost the complement of the YES price.
func (s Signal) EntryPrice() float64 {
	if s.Direction == BuyNo {
		return 1 - s.Price
	}
	return s.Price
}
