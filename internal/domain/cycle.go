package domain

import "time"

// CycleSummary is the one-row record appended per completed cycle.
type CycleSummary struct {
	StartedAt  time.Time
	Duration   time.Duration
	Tickers    int // tickers with fresh data this cycle
	Infeasible int // tickers excluded for infeasible bounds
	Signals    int
	Entries    int
	Exits      int
	Rejections int
	DayPnL     float64
	Failed     bool
	Error      string
}
