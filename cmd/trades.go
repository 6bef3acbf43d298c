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

// tradesCmd holds the flags for the 'trades' subcommand.
type tradesCmd struct {
	jsonl   bool
	oneline bool
	account string
}

func (*tradesCmd) Name() string     { return "trades" }
func (*tradesCmd) Synopsis() string { return "list the merged trades" }
func (*tradesCmd) Usage() string {
	return `bankroll trades [-a <account>] [-jsonl | -oneline]

  Lists the trades left once duplicates reported by several sources have been
  merged, in replay order.
`
}

func (c *tradesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "a", "", "only list the trades of this account, e.g. ibkr:U1234567")
	f.BoolVar(&c.jsonl, "jsonl", false, "print trades as JSONL")
	f.BoolVar(&c.oneline, "oneline", false, "print one sentence per trade")
}

func (c *tradesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	res, err := reconcile(ctx, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reconciling: %v\n", err)
		return subcommands.ExitFailure
	}

	trades := res.Trades
	if c.account != "" {
		account := bankroll.ParseAccount(c.account)
		trades = nil
		for _, t := range res.Trades {
			if t.Account == account {
				trades = append(trades, t)
			}
		}
	}

	switch {
	case c.jsonl:
		if err := bankroll.EncodeTrades(os.Stdout, trades); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding trades: %v\n", err)
			return subcommands.ExitFailure
		}
	case c.oneline:
		for _, t := range trades {
			fmt.Printf("%s %s %s\n", t.Time.Format("2006-01-02"), t.Account, renderer.Transaction(t))
		}
	default:
		printMarkdown(renderer.TradesMarkdown(trades))
	}
	return subcommands.ExitSuccess
}
