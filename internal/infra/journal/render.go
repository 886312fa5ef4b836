package journal

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"arbscan/internal/domain"
)

// RenderCycle formats one cycle for the activity log: header, quotes per
// asset, best bid/ask summary, opportunities, skipped pairs, errors, totals.
func RenderCycle(r *domain.ScanCycleResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== Cycle %s | %s ===\n", r.ID, r.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Assets: %s | Venues: %s\n", strings.Join(r.Assets, ", "), joinVenues(r.Venues))

	byAsset := make(map[string][]domain.Opportunity)
	for _, o := range r.Opportunities {
		byAsset[o.Asset] = append(byAsset[o.Asset], o)
	}

	for _, s := range r.Summaries {
		fmt.Fprintf(&b, "--- %s ---\n", s.Asset)
		for _, q := range r.Quotes.ForAsset(s.Asset) {
			fmt.Fprintf(&b, "  %-20s bid %s  ask %s\n", q.Venue(), q.Bid, q.Ask)
		}
		if s.BestBid == nil {
			fmt.Fprintf(&b, "  No quotes for %s.\n", s.Asset)
			continue
		}
		fmt.Fprintf(&b, "  Best bid: %s %s | Best ask: %s %s | Gross spread: %s%%\n",
			s.BestBid.Venue(), s.BestBid.Bid, s.BestAsk.Venue(), s.BestAsk.Ask, s.GrossSpread)

		ops := byAsset[s.Asset]
		if len(ops) == 0 {
			fmt.Fprintf(&b, "  No profitable arbitrage for %s. Gross spread was %s%%.\n", s.Asset, s.GrossSpread)
			continue
		}
		for _, o := range ops {
			fmt.Fprintf(&b, "  OPPORTUNITY buy %s @ %s -> sell %s @ %s | gross $%s fees $%s net $%s (%s%%)\n",
				o.BuyVenue, o.BuyPrice, o.SellVenue, o.SellPrice,
				o.Profit.Gross.StringFixed(2), o.Profit.Fees.StringFixed(2), o.Profit.Net.StringFixed(2), o.Profit.NetPercent)
		}
	}

	for _, sp := range r.Skipped {
		fmt.Fprintf(&b, "Skipped: %s buy %s sell %s (%s)\n", sp.Asset, sp.Buy, sp.Sell, sp.Reason)
	}
	for _, err := range r.Errors {
		fmt.Fprintf(&b, "Error: %v\n", err)
	}

	fmt.Fprintf(&b, "Summary: %d quotes, %d opportunities, %d skipped pairs, %d errors in %s\n\n",
		len(r.Quotes), len(r.Opportunities), len(r.Skipped), len(r.Errors), r.Duration.Round(time.Millisecond))
	return b.String()
}

// WriteTable prints the opportunities of one cycle as an aligned table.
func WriteTable(w io.Writer, r *domain.ScanCycleResult) error {
	if len(r.Opportunities) == 0 {
		_, err := fmt.Fprintf(w, "No profitable arbitrage found (%d quotes, %d errors).\n", len(r.Quotes), len(r.Errors))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ASSET\tBUY\tASK\tSELL\tBID\tGROSS $\tFEES $\tNET $\tNET %")
	for _, o := range r.Opportunities {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.Asset, o.BuyVenue, o.BuyPrice, o.SellVenue, o.SellPrice,
			o.Profit.Gross.StringFixed(2), o.Profit.Fees.StringFixed(2), o.Profit.Net.StringFixed(2), o.Profit.NetPercent)
	}
	return tw.Flush()
}
