package kalshi

// markets.go — ports.MarketDataProvider over GET /markets.
//
// Kalshi quotes prices in cents; everything downstream works in decimal
// probabilities, so the mapping divides by 100 here and nowhere else.

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// marketDTO is the subset of the GET /markets response we consume.
type marketDTO struct {
	Ticker     string `json:"ticker"`
	Status     string `json:"status"`
	Result     string `json:"result"`
	YesBid     int    `json:"yes_bid"`
	YesAsk     int    `json:"yes_ask"`
	LastPrice  int    `json:"last_price"`
	Volume     int    `json:"volume"`
	CloseTime  string `json:"close_time"`
	ExpireTime string `json:"expiration_time"`
}

type marketsResponse struct {
	Markets []marketDTO `json:"markets"`
	Cursor  string      `json:"cursor"`
}

// batchSize keeps the tickers query parameter within URL limits.
const batchSize = 50

// FetchSnapshots returns a snapshot per ticker. Tickers the exchange did
// not return are simply absent from the map: the caller treats them as
// per-ticker data gaps.
func (c *Client) FetchSnapshots(ctx context.Context, tickers []string) (map[string]domain.Snapshot, error) {
	out := make(map[string]domain.Snapshot, len(tickers))

	for start := 0; start < len(tickers); start += batchSize {
		end := start + batchSize
		if end > len(tickers) {
			end = len(tickers)
		}
		batch := tickers[start:end]

		var resp marketsResponse
		path := "/markets?tickers=" + url.QueryEscape(strings.Join(batch, ","))
		if err := c.get(ctx, path, &resp); err != nil {
			return nil, fmt.Errorf("kalshi.FetchSnapshots: %w", err)
		}

		for _, m := range resp.Markets {
			snap, ok := mapMarket(m)
			if !ok {
				continue
			}
			out[snap.Ticker] = snap
		}
	}

	if len(out) < len(tickers) {
		slog.Debug("markets missing from response",
			"requested", len(tickers), "received", len(out))
	}
	return out, nil
}

// mapMarket converts a market DTO to a domain snapshot. Markets without a
// usable price are dropped (data gap).
func mapMarket(m marketDTO) (domain.Snapshot, bool) {
	snap := domain.Snapshot{
		Ticker: m.Ticker,
		Volume: m.Volume,
	}

	if t, err := time.Parse(time.RFC3339, m.ExpireTime); err == nil {
		snap.Expiration = t
	} else if t, err := time.Parse(time.RFC3339, m.CloseTime); err == nil {
		snap.Expiration = t
	}

	if m.Status == "settled" || m.Status == "finalized" {
		snap.Settled = true
		if m.Result == "yes" {
			snap.SettleTo = 1
		}
		return snap, true
	}

	switch {
	case m.YesBid > 0 && m.YesAsk > 0:
		snap.Price = float64(m.YesBid+m.YesAsk) / 200
		snap.Spread = float64(m.YesAsk-m.YesBid) / 100
	case m.LastPrice > 0:
		snap.Price = float64(m.LastPrice) / 100
	default:
		return domain.Snapshot{}, false
	}

	return snap, true
}
