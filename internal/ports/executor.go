package ports

import (
	"context"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// OrderRequest is a limit order submitted to the execution gateway.
type OrderRequest struct {
	ID     string // local UUID for tracking
	Ticker string
	Side   domain.Side
	Size   float64 // dollars
	Price  float64 // limit price per contract
}

// Fill confirms an executed order.
type Fill struct {
	OrderID string
	Ticker  string
	Side    domain.Side
	Size    float64
	Price   float64
}

// OrderExecutor places and cancels limit orders on the exchange.
// A rejection is returned as an error wrapping domain.ErrRejected; the
// caller surfaces it as a failed-entry/failed-exit event and retries next
// cycle if the trigger still holds.
type OrderExecutor interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (Fill, error)
	CancelOrder(ctx context.Context, orderID string) error
}
