package risk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/risk"
)

func yesSignal(ticker string, price, netEdge float64) domain.Signal {
	return domain.Signal{
		Ticker:    ticker,
		Direction: domain.BuyYes,
		Price:     price,
		NetEdge:   netEdge,
	}
}

func account(capital float64) domain.AccountState {
	return domain.NewAccountState(capital)
}

func TestSize_KellyFraction(t *testing.T) {
	s := risk.NewSizer(risk.SizerConfig{
		KellyFraction:       0.25,
		MaxPositionFraction: 0.50, // high enough not to bind
		MinPositionSize:     10,
	})

	// f = 0.25 · 0.06 / (1 − 0.40) = 0.025 → $250 on $10k.
	size := s.Size(yesSignal("A", 0.40, 0.06), account(10000), "A")
	assert.InDelta(t, 250, size, 1e-6)
}

func TestSize_MonotonicInEdge(t *testing.T) {
	s := risk.NewSizer(risk.DefaultSizerConfig())
	acct := account(10000)

	small := s.Size(yesSignal("A", 0.40, 0.03), acct, "A")
	big := s.Size(yesSignal("A", 0.40, 0.06), acct, "A")
	assert.Greater(t, big, small, "larger edge can never size smaller")
}

func TestSize_CapsApply(t *testing.T) {
	s := risk.NewSizer(risk.SizerConfig{
		KellyFraction:        0.25,
		MaxPositionFraction:  0.05,
		MaxPositionPerMarket: 300,
		MinPositionSize:      10,
	})
	acct := account(10000)

	// Uncapped Kelly would be 0.25·0.60/0.40 = 37.5% of capital; the
	// per-market dollar cap binds first.
	size := s.Size(yesSignal("A", 0.60, 0.60), acct, "A")
	assert.InDelta(t, 300, size, 1e-6)
}

func TestSize_ClusterExposureCap(t *testing.T) {
	s := risk.NewSizer(risk.SizerConfig{
		KellyFraction:       0.25,
		MaxPositionFraction: 0.50,
		MaxClusterFraction:  0.10,
		MinPositionSize:     10,
	})

	acct := account(10000)
	acct.AddExposure("elections", 900) // $1000 cluster budget, $100 left

	size := s.Size(yesSignal("A", 0.40, 0.06), acct, "elections")
	assert.InDelta(t, 100, size, 1e-6, "clipped to remaining cluster budget")

	acct.AddExposure("elections", 100)
	assert.Zero(t, s.Size(yesSignal("A", 0.40, 0.06), acct, "elections"),
		"cluster budget exhausted")
}

func TestSize_BelowMinimumIsZero(t *testing.T) {
	s := risk.NewSizer(risk.SizerConfig{
		KellyFraction:       0.25,
		MaxPositionFraction: 0.05,
		MinPositionSize:     50,
	})

	// f = 0.25·0.005/0.6 ≈ 0.21% → $20.83 on $10k, under the $50 floor.
	assert.Zero(t, s.Size(yesSignal("A", 0.40, 0.005), account(10000), "A"))
}

func TestSize_NoEdgeNoPosition(t *testing.T) {
	s := risk.NewSizer(risk.DefaultSizerConfig())
	assert.Zero(t, s.Size(yesSignal("A", 0.40, 0), account(10000), "A"))
	assert.Zero(t, s.Size(yesSignal("A", 0.40, -0.02), account(10000), "A"))
}

func TestContracts(t *testing.T) {
	assert.Equal(t, 250, risk.Contracts(100, 0.40))
	assert.Equal(t, 0, risk.Contracts(100, 0))
	assert.Equal(t, 0, risk.Contracts(0, 0.40))
}
