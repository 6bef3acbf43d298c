package renderer

import (
	"fmt"
	"io"
	"strings"

	"github.com/etnz/bankroll"
)

// PortfolioMarkdown renders a portfolio view: how it was computed, one row per
// account holding, and the roll-up per instrument.
func PortfolioMarkdown(v bankroll.PortfolioView) string {
	r := &logRenderer{Builder: &strings.Builder{}}
	r.Printf("# Portfolio\n\n")
	renderMeta(r, v.Meta)

	if len(v.Holdings) == 0 {
		r.Printf("No holdings.\n")
		return r.String()
	}

	r.Printf("## Holdings\n\n")
	r.Printf("| Account | Instrument | Quantity | Cost Basis | Price | Market Value | Unrealized | Realized | Flags |\n")
	r.Printf("|:---|:---|---:|---:|---:|---:|---:|---:|:---|\n")
	for _, h := range v.Holdings {
		f := flags(h.Flags)
		if h.Basis == bankroll.SnapshotBasis {
			f = strings.TrimPrefix(f+", snapshot", ", ")
		}
		r.Printf("| %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			cell(h.Account.String()),
			cell(h.Key().String()),
			h.Quantity,
			h.CostBasis,
			amount(h.Price, h.HasPrice),
			amount(h.MarketValue, h.HasPrice),
			signed(h.Unrealized, h.HasPrice),
			h.Realized.SignedString(),
			f,
		)
	}
	r.Printf("\n")

	r.Printf("## Totals\n\n")
	r.Printf("| Instrument | Accounts | Quantity | Cost Basis | Market Value | Unrealized | Realized |\n")
	r.Printf("|:---|---:|---:|---:|---:|---:|---:|\n")
	for _, t := range v.Totals {
		r.Printf("| %s | %d | %s | %s | %s | %s | %s |\n",
			cell(t.Key().String()),
			t.Accounts,
			t.Quantity,
			t.CostBasis,
			amount(t.MarketValue, t.HasPrice),
			signed(t.Unrealized, t.HasPrice),
			t.Realized.SignedString(),
		)
	}
	return r.String()
}

func renderMeta(r *logRenderer, m bankroll.Metadata) {
	r.Printf("*Cost basis: %s, oversell: %s*\n\n", m.Method, m.Mode)
	if m.Partial {
		failed := make([]string, len(m.FailedSources))
		for i, s := range m.FailedSources {
			failed[i] = string(s)
		}
		r.Printf("> **Partial view**: no records from %s.\n\n", strings.Join(failed, ", "))
	}

	ConditionalBlock(r, func(w io.Writer) bool {
		fmt.Fprintf(w, "| Discrepancies | Conflicts | Rejected | Aborted ledgers |\n")
		fmt.Fprintf(w, "|---:|---:|---:|---:|\n")
		fmt.Fprintf(w, "| %d | %d | %d | %d |\n\n", m.Discrepancies, m.Conflicts, m.Rejected, m.AbortedLedgers)
		return m.Discrepancies+m.Conflicts+m.Rejected+m.AbortedLedgers > 0
	})
}
