package kalshi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alejandrodnm/kalshibot/internal/adapters/kalshi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server) *kalshi.Client {
	return kalshi.NewClient(srv.URL, "test-key")
}

func TestFetchSnapshots_MapsCentsToDecimal(t *testing.T) {
	fixture := `{
		"markets": [
			{
				"ticker": "PRES-2028-DEM",
				"status": "active",
				"yes_bid": 42,
				"yes_ask": 46,
				"volume": 1200,
				"expiration_time": "2028-11-07T15:00:00Z"
			},
			{
				"ticker": "PRES-2028-REP",
				"status": "active",
				"yes_bid": 0,
				"yes_ask": 0,
				"last_price": 38,
				"close_time": "2028-11-07T15:00:00Z"
			}
		]
	}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "tickers=")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(fixture))
	}))
	defer srv.Close()

	client := newTestClient(srv)
	snaps, err := client.FetchSnapshots(context.Background(), []string{"PRES-2028-DEM", "PRES-2028-REP"})
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	dem := snaps["PRES-2028-DEM"]
	assert.InDelta(t, 0.44, dem.Price, 1e-9) // mid of 42/46
	assert.InDelta(t, 0.04, dem.Spread, 1e-9)
	assert.Equal(t, 1200, dem.Volume)
	assert.Equal(t, 2028, dem.Expiration.Year())

	// No book, falls back to last trade.
	rep := snaps["PRES-2028-REP"]
	assert.InDelta(t, 0.38, rep.Price, 1e-9)
	assert.Zero(t, rep.Spread)
}

func TestFetchSnapshots_SettledAndUnpriced(t *testing.T) {
	fixture := `{
		"markets": [
			{"ticker": "DONE-YES", "status": "finalized", "result": "yes"},
			{"ticker": "DONE-NO", "status": "settled", "result": "no"},
			{"ticker": "EMPTY", "status": "active", "yes_bid": 0, "yes_ask": 0, "last_price": 0}
		]
	}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(fixture))
	}))
	defer srv.Close()

	client := newTestClient(srv)
	snaps, err := client.FetchSnapshots(context.Background(), []string{"DONE-YES", "DONE-NO", "EMPTY"})
	require.NoError(t, err)

	require.Contains(t, snaps, "DONE-YES")
	assert.True(t, snaps["DONE-YES"].Settled)
	assert.InDelta(t, 1.0, snaps["DONE-YES"].SettleTo, 1e-9)

	require.Contains(t, snaps, "DONE-NO")
	assert.True(t, snaps["DONE-NO"].Settled)
	assert.Zero(t, snaps["DONE-NO"].SettleTo)

	// Unsettled market with no price at all is a data gap.
	assert.NotContains(t, snaps, "EMPTY")
}

func TestFetchSnapshots_RetriesServerError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"markets": [{"ticker": "A", "status": "active", "last_price": 50}]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv)
	snaps, err := client.FetchSnapshots(context.Background(), []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.InDelta(t, 0.50, snaps["A"].Price, 1e-9)
}
