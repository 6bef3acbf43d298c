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

// reconcileCmd holds the flags for the 'reconcile' subcommand.
type reconcileCmd struct {
	jsonl  bool
	check  bool
	update bool
}

func (*reconcileCmd) Name() string     { return "reconcile" }
func (*reconcileCmd) Synopsis() string { return "consolidate every source into one portfolio view" }
func (*reconcileCmd) Usage() string {
	return `bankroll reconcile [-u] [-jsonl] [-check]

  Reads every source of the settings file, merges duplicate trades, replays
  them into lots and displays the holdings per account and per instrument.

  With -u, stock and currency prices are fetched from eodhd.com first.
`
}

func (c *reconcileCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.jsonl, "jsonl", false, "print the view and the diagnostics as JSONL instead of markdown")
	f.BoolVar(&c.check, "check", false, "exit with a failure status when the run raised diagnostics")
	f.BoolVar(&c.update, "u", false, "update market prices from eodhd.com")
}

func (c *reconcileCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	res, err := reconcile(ctx, c.update)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reconciling: %v\n", err)
		return subcommands.ExitFailure
	}

	if c.jsonl {
		if err := bankroll.EncodeResult(os.Stdout, res); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding result: %v\n", err)
			return subcommands.ExitFailure
		}
	} else {
		printMarkdown(renderer.PortfolioMarkdown(res.View))
	}

	if c.check && len(res.Diagnostics) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
