package kalshi

// paper.go — simulated execution for paper mode.
//
// Fills every order at its limit price, rounded down to whole contracts,
// without touching the exchange. Decision logic upstream cannot tell it
// apart from the live executor.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

// PaperExecutor implements ports.OrderExecutor with simulated fills.
type PaperExecutor struct{}

// NewPaperExecutor creates a PaperExecutor.
func NewPaperExecutor() *PaperExecutor {
	return &PaperExecutor{}
}

// PlaceOrder fills the order at its limit price.
func (e *PaperExecutor) PlaceOrder(_ context.Context, req ports.OrderRequest) (ports.Fill, error) {
	count := contracts(req.Size, req.Price)
	if count <= 0 {
		return ports.Fill{}, fmt.Errorf("kalshi.PaperExecutor: %s: size %.2f below one contract: %w",
			req.Ticker, req.Size, domain.ErrRejected)
	}

	fill := ports.Fill{
		OrderID: "paper-" + req.ID,
		Ticker:  req.Ticker,
		Side:    req.Side,
		Size:    float64(count) * req.Price,
		Price:   req.Price,
	}
	slog.Debug("paper fill",
		"ticker", req.Ticker, "side", req.Side, "count", count, "price", req.Price)
	return fill, nil
}

// CancelOrder is a no-op: paper orders fill immediately.
func (e *PaperExecutor) CancelOrder(context.Context, string) error {
	return nil
}
