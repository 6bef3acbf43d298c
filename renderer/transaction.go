package renderer

import (
	"fmt"
	"strings"

	"github.com/etnz/bankroll"
)

// Transaction renders a trade to a one line sentence.
func Transaction(t bankroll.Trade) string {
	switch t.Side {
	case bankroll.Buy:
		return fmt.Sprintf("Bought %s of %s at %s", t.Quantity.Abs(), t.Key(), t.Price)
	case bankroll.Sell:
		return fmt.Sprintf("Sold %s of %s at %s", t.Quantity.Abs(), t.Key(), t.Price)
	default:
		return fmt.Sprintf("%s %s of %s at %s", t.Side, t.Quantity, t.Key(), t.Price)
	}
}

// TradesMarkdown renders the merged trade list, in the order given.
func TradesMarkdown(trades []bankroll.Trade) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Trades\n\n")
	if len(trades) == 0 {
		fmt.Fprintln(&b, "No trades.")
		return b.String()
	}
	fmt.Fprintln(&b, "| Time | Account | Instrument | Side | Quantity | Price | Fees | Record |")
	fmt.Fprintln(&b, "|:---|:---|:---|:---|---:|---:|---:|:---|")
	for _, t := range trades {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
			t.Time.Format("2006-01-02 15:04"),
			cell(t.Account.String()),
			cell(t.Key().String()),
			t.Side,
			t.Quantity,
			t.Price,
			t.Fees,
			cell(t.Ref()),
		)
	}
	return b.String()
}
