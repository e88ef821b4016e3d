package domain

import "time"

// Snapshot is the per-ticker market state delivered by the data feed each
// cycle. Price is the YES mid as a decimal probability in [0,1].
type Snapshot struct {
	Ticker     string
	Price      float64
	Spread     float64 // bid-ask spread, 0 if unknown
	Volume     int
	Expiration time.Time
	Settled    bool
	SettleTo   float64 // settlement value (0 or 1), meaningful only when Settled
}

// HoursToExpiration returns hours until the market expires.
// Returns 0 if the expiration is unknown or already past.
func (s Snapshot) HoursToExpiration() float64 {
	if s.Expiration.IsZero() {
		return 0
	}
	h := time.Until(s.Expiration).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// InFinalHour reports whether the market resolves within the next hour.
func (s Snapshot) InFinalHour() bool {
	if s.Expiration.IsZero() {
		return false
	}
	left := time.Until(s.Expiration)
	return left > 0 && left < time.Hour
}

// SeriesTicker returns the series prefix of a ticker ("PRES-24DEC31" → "PRES").
// Tickers without a series separator return themselves.
func (s Snapshot) SeriesTicker() string {
	return SeriesOf(s.Ticker)
}

// SeriesOf extracts the series prefix from a ticker.
func SeriesOf(ticker string) string {
	for i := 0; i < len(ticker); i++ {
		if ticker[i] == '-' {
			return ticker[:i]
		}
	}
	return ticker
}
