// Package notify prints operator-facing reports from the Ledger. It
// reopens its queries against the Ledger on every call rather than caching
// anything, per the reload-before-read discipline spec.md §9 recommends
// for an external reader of the durable image.
package notify

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"

	"github.com/dcaraballo/kalshimm/internal/domain"
	"github.com/dcaraballo/kalshimm/internal/ports"
)

// Console prints CLI reports backed directly by the Ledger.
type Console struct {
	ledger ports.Ledger
}

// NewConsole builds a Console over ledger.
func NewConsole(ledger ports.Ledger) *Console {
	return &Console{ledger: ledger}
}

// PrintSummary prints the PnL summary and pair counts by status.
func (c *Console) PrintSummary(ctx context.Context) error {
	summary, err := c.ledger.PnLSummary(ctx)
	if err != nil {
		return fmt.Errorf("notify: pnl summary: %w", err)
	}

	open, err := c.ledger.CountByStatus(ctx, domain.PairOpen)
	if err != nil {
		return fmt.Errorf("notify: count open: %w", err)
	}
	filled, err := c.ledger.CountByStatus(ctx, domain.PairFilled)
	if err != nil {
		return fmt.Errorf("notify: count filled: %w", err)
	}
	partial, err := c.ledger.CountByStatus(ctx, domain.PairPartial)
	if err != nil {
		return fmt.Errorf("notify: count partial: %w", err)
	}
	cancelled, err := c.ledger.CountByStatus(ctx, domain.PairCancelled)
	if err != nil {
		return fmt.Errorf("notify: count cancelled: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Value")
	rows := [][]string{
		{"Filled pairs", fmt.Sprintf("%d", filled)},
		{"Total realized PnL", fmt.Sprintf("$%.2f", summary.TotalPnL)},
		{"Average PnL / pair", fmt.Sprintf("$%.4f", summary.AveragePnL)},
		{"Total fees", fmt.Sprintf("$%.2f", summary.TotalFees)},
		{"Open pairs", fmt.Sprintf("%d", open)},
		{"Partial pairs", fmt.Sprintf("%d", partial)},
		{"Cancelled pairs", fmt.Sprintf("%d", cancelled)},
	}
	for _, row := range rows {
		table.Append(row)
	}
	return table.Render()
}

// PrintRecent prints the most recent pairs. Recent PnL entries and events
// are not printed.
func (c *Console) PrintRecent(ctx context.Context, limit int) error {
	pairs, err := c.ledger.RecentPairs(ctx, limit)
	if err != nil {
		return fmt.Errorf("notify: recent pairs: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Pair ID", "Ticker", "Asset", "Status", "Active", "Created")
	for _, p := range pairs {
		active := "yes"
		if domain.IsTerminalPair(p.Status) {
			active = "no"
		}
		table.Append([]string{
			truncate(p.PairID, 12), p.Ticker, p.Asset, string(p.Status), active, p.CreatedAt.Format("15:04:05"),
		})
	}
	return table.Render()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
