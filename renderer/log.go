package renderer

import (
	"fmt"
	"io"
	"strings"

	"github.com/etnz/bankroll"
)

// kinds lists diagnostic kinds in report order: what made the view partial
// first, then what needs a human decision, then data quality.
var kinds = []bankroll.Kind{
	bankroll.AdapterFailure,
	bankroll.OverSell,
	bankroll.ReconciliationDiscrepancy,
	bankroll.ConflictingDuplicate,
	bankroll.AmbiguousIdentifier,
	bankroll.UnresolvableIdentifier,
	bankroll.MalformedRecord,
	bankroll.Unknown,
}

// DiagnosticsMarkdown renders the review log of a run: a count per kind and
// one section per kind listing every diagnostic.
func DiagnosticsMarkdown(diags bankroll.Diagnostics) string {
	r := &logRenderer{Builder: &strings.Builder{}}
	r.Printf("# Review\n\n")
	if len(diags) == 0 {
		r.Printf("No diagnostics.\n")
		return r.String()
	}

	r.Printf("| Kind | Count |\n")
	r.Printf("|:---|---:|\n")
	for _, k := range kinds {
		if n := diags.Count(k); n > 0 {
			r.Printf("| %s | %d |\n", k, n)
		}
	}
	r.Printf("\n")

	for _, k := range kinds {
		r.renderKind(k, diags.Of(k))
	}
	return r.String()
}

// logRenderer formats the review log into a markdown string.
type logRenderer struct {
	*strings.Builder
}

// Printf formats according to a format specifier and writes to the renderer's buffer.
func (r *logRenderer) Printf(format string, args ...any) {
	fmt.Fprintf(r, format, args...)
}

func (r *logRenderer) renderKind(k bankroll.Kind, diags bankroll.Diagnostics) {
	section := Header(func(w io.Writer) {
		fmt.Fprintf(w, "## %s\n\n", k)
		fmt.Fprintf(w, "| Source | Account | Instrument | Records | Detail |\n")
		fmt.Fprintf(w, "|:---|:---|:---|:---|:---|\n")
	}).Footer(func(w io.Writer) {
		fmt.Fprintf(w, "\n")
	})

	for _, d := range diags {
		section.PrintHeader(r)
		account := ""
		if !d.Account.IsZero() {
			account = d.Account.String()
		}
		detail := ""
		if d.Err != nil {
			detail = d.Err.Error()
		}
		r.Printf("| %s | %s | %s | %s | %s |\n",
			cell(string(d.Source)),
			cell(account),
			cell(string(d.Key)),
			cell(strings.Join(d.Refs, ", ")),
			cell(detail),
		)
	}
	section.PrintFooter(r)
}
