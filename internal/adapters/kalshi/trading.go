package kalshi

// trading.go — live order execution via POST /portfolio/orders.
//
// Implements ports.OrderExecutor. All orders are limit orders; a gateway
// rejection (4xx or an unfilled status) comes back wrapping
// domain.ErrRejected so the caller can treat it as a skipped trade rather
// than a cycle failure.

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

// orderRequestDTO is the JSON body sent to POST /portfolio/orders.
type orderRequestDTO struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Side          string `json:"side"`
	Action        string `json:"action"`
	Type          string `json:"type"`
	Count         int    `json:"count"`
	YesPrice      int    `json:"yes_price,omitempty"`
	NoPrice       int    `json:"no_price,omitempty"`
}

type orderResponseDTO struct {
	Order struct {
		OrderID   string `json:"order_id"`
		Status    string `json:"status"`
		Ticker    string `json:"ticker"`
		Side      string `json:"side"`
		YesPrice  int    `json:"yes_price"`
		NoPrice   int    `json:"no_price"`
		Count     int    `json:"count"`
		FillCount int    `json:"fill_count"`
	} `json:"order"`
}

// PlaceOrder submits a limit order and returns the confirmed fill.
func (c *Client) PlaceOrder(ctx context.Context, req ports.OrderRequest) (ports.Fill, error) {
	count := contracts(req.Size, req.Price)
	if count <= 0 {
		return ports.Fill{}, fmt.Errorf("kalshi.PlaceOrder: %s: size %.2f below one contract: %w",
			req.Ticker, req.Size, domain.ErrRejected)
	}

	dto := orderRequestDTO{
		Ticker:        req.Ticker,
		ClientOrderID: req.ID,
		Action:        "buy",
		Type:          "limit",
		Count:         count,
	}
	cents := int(math.Round(req.Price * 100))
	if req.Side == domain.SideNo {
		dto.Side = "no"
		dto.NoPrice = cents
	} else {
		dto.Side = "yes"
		dto.YesPrice = cents
	}

	var resp orderResponseDTO
	if err := c.post(ctx, "/portfolio/orders", dto, &resp); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			return ports.Fill{}, fmt.Errorf("kalshi.PlaceOrder: %s: %s: %w",
				req.Ticker, apiErr.Body, domain.ErrRejected)
		}
		return ports.Fill{}, fmt.Errorf("kalshi.PlaceOrder: %s: %w", req.Ticker, err)
	}

	status := strings.ToLower(resp.Order.Status)
	if status == "canceled" || status == "rejected" {
		return ports.Fill{}, fmt.Errorf("kalshi.PlaceOrder: %s: order %s: %w",
			req.Ticker, status, domain.ErrRejected)
	}

	filled := resp.Order.FillCount
	if filled <= 0 {
		filled = resp.Order.Count
	}
	price := float64(resp.Order.YesPrice) / 100
	if req.Side == domain.SideNo {
		price = float64(resp.Order.NoPrice) / 100
	}
	if price <= 0 {
		price = req.Price
	}

	return ports.Fill{
		OrderID: resp.Order.OrderID,
		Ticker:  req.Ticker,
		Side:    req.Side,
		Size:    float64(filled) * price,
		Price:   price,
	}, nil
}

// CancelOrder cancels a resting order by exchange order ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.del(ctx, "/portfolio/orders/"+orderID, nil); err != nil {
		return fmt.Errorf("kalshi.CancelOrder: %s: %w", orderID, err)
	}
	return nil
}

// contracts converts a dollar size to a whole contract count.
func contracts(size, price float64) int {
	if price <= 0 || size <= 0 {
		return 0
	}
	return int(size / price)
}
