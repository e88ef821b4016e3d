package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

// Console implements ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole creates a notifier that writes to stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify prints the cycle report in the configured mode.
func (c *Console) Notify(_ context.Context, report ports.CycleReport) error {
	if c.table {
		c.printFull(report)
	} else {
		c.printCompact(report)
	}
	return nil
}

// printCompact prints the essentials in one line.
func (c *Console) printCompact(r ports.CycleReport) {
	now := time.Now().Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d mkts → sig:%d in:%d out:%d rej:%d pnl:$%.2f pos:%d cap:$%.2f",
		now, r.Summary.Tickers, r.Summary.Signals, r.Summary.Entries,
		r.Summary.Exits, r.Summary.Rejections, r.Summary.DayPnL,
		len(r.Positions), r.Account.Capital)

	if len(r.Infeasible) > 0 {
		fmt.Fprintf(&sb, " | infeasible:%s", strings.Join(r.Infeasible, ","))
	}

	shown := 0
	for _, sig := range r.Signals {
		if shown >= 3 {
			break
		}
		fmt.Fprintf(&sb, " | %s %s edge:%.3f conf:%.2f",
			sig.Direction, truncate(sig.Ticker, 20), sig.NetEdge, sig.Confidence)
		shown++
	}

	fmt.Fprintln(c.out, sb.String())
}

// printFull prints the signals and positions tables.
func (c *Console) printFull(r ports.CycleReport) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] cycle — mkts:%d sig:%d in:%d out:%d rej:%d day pnl:$%.2f\n",
		now, r.Summary.Tickers, r.Summary.Signals, r.Summary.Entries,
		r.Summary.Exits, r.Summary.Rejections, r.Summary.DayPnL)

	if len(r.Infeasible) > 0 {
		fmt.Fprintf(c.out, "  infeasible bounds (excluded): %s\n", strings.Join(r.Infeasible, ", "))
	}

	if len(r.Signals) > 0 {
		c.printSignals(r.Signals)
	}
	if len(r.Positions) > 0 {
		c.printPositions(r.Positions, r.Prices)
	}

	fmt.Fprintf(c.out, "  capital:$%.2f value:$%.2f peak:$%.2f drawdown:%.1f%%\n\n",
		r.Account.Capital, r.Account.Value(), r.Account.PeakValue,
		r.Account.Drawdown()*100)
}

func (c *Console) printSignals(sigs []domain.Signal) {
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Ticker", "Dir", "Kind", "Price", "Bound", "Edge", "Net", "Conf", "Sources")

	for i, sig := range sigs {
		table.Append(
			fmt.Sprintf("%d", i+1),
			truncate(sig.Ticker, 28),
			string(sig.Direction),
			string(sig.Kind),
			fmt.Sprintf("%.2f", sig.Price),
			fmt.Sprintf("%.2f", sig.BoundPrice),
			fmt.Sprintf("%.3f", sig.RawEdge),
			fmt.Sprintf("%.3f", sig.NetEdge),
			fmt.Sprintf("%.2f", sig.Confidence),
			strings.Join(sig.Sources, ","),
		)
	}
	table.Render()
}

func (c *Console) printPositions(positions []domain.Position, prices map[string]float64) {
	sorted := make([]domain.Position, len(positions))
	copy(sorted, positions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OpenedAt.Before(sorted[j].OpenedAt) })

	table := tablewriter.NewWriter(c.out)
	table.Header("Ticker", "Side", "Entry", "Now", "Size", "Left", "PnL%", "State", "Held")

	for _, p := range sorted {
		nowLabel, pnlLabel := "-", "-"
		if price, ok := prices[p.Ticker]; ok {
			nowLabel = fmt.Sprintf("%.2f", price)
			pnlLabel = fmt.Sprintf("%+.1f%%", p.UnrealizedPct(price)*100)
		}
		table.Append(
			truncate(p.Ticker, 28),
			string(p.Side),
			fmt.Sprintf("%.2f", p.EntryPrice),
			nowLabel,
			fmt.Sprintf("$%.2f", p.Size),
			fmt.Sprintf("$%.2f", p.Remaining),
			pnlLabel,
			string(p.State),
			p.HeldFor(time.Now()).Round(time.Second).String(),
		)
	}
	table.Render()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
