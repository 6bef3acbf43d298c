package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/bankroll"
	"github.com/etnz/bankroll/renderer"
	"github.com/google/subcommands"
)

// reviewCmd holds the flags for the 'review' subcommand.
type reviewCmd struct {
	kind string
}

func (*reviewCmd) Name() string { return "review" }

func (*reviewCmd) Synopsis() string { return "list the problems found while reconciling" }
func (*reviewCmd) Usage() string {
	return `bankroll review [-k <kind>]

  Runs a reconciliation and displays its review log: adapter failures,
  oversells, discrepancies with reported positions, conflicting duplicates,
  unresolved instruments and rejected records.
  Exits with a failure status when the log is not empty.
`
}

func (c *reviewCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "k", "", "only show diagnostics of this kind, e.g. OverSell")
}

func (c *reviewCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	res, err := reconcile(ctx, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reconciling: %v\n", err)
		return subcommands.ExitFailure
	}

	diags := res.Diagnostics
	if c.kind != "" {
		diags = diags.Of(bankroll.Kind(c.kind))
	}
	printMarkdown(renderer.DiagnosticsMarkdown(diags))

	if len(diags) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
