// Package cmd implements the CLI application to reconcile brokerage accounts.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/etnz/bankroll"
	"github.com/etnz/bankroll/eodhd"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"
)

// Commands lists the subcommands, in help order.
var Commands = []subcommands.Command{
	&reconcileCmd{},
	&reviewCmd{},
	&tradesCmd{},
	&topicCmd{},
}

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	for _, cmd := range Commands {
		c.Register(cmd, "")
	}
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var settingsFile = flag.String("config", "bankroll.toml", "Path to the settings file (TOML)")
var method = flag.String("method", "", "Cost basis method: fifo or average. Overrides the settings file")
var mode = flag.String("mode", "", "Oversell mode: strict or permissive. Overrides the settings file")

// Verbose enables debug logs.
var Verbose = flag.Bool("v", false, "verbose: log every stage of the run")

// newLogger writes human readable logs on stderr.
func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// loadConfig reads the settings file and applies the global flags.
func loadConfig() (Settings, bankroll.Config, error) {
	s, err := LoadSettings(*settingsFile)
	if err != nil {
		return Settings{}, bankroll.Config{}, err
	}
	if *method != "" {
		s.Reconcile.Method = *method
	}
	if *mode != "" {
		s.Reconcile.Mode = *mode
	}
	cfg, err := s.Config()
	if err != nil {
		return Settings{}, bankroll.Config{}, fmt.Errorf("invalid settings %q: %w", *settingsFile, err)
	}
	return s, cfg, nil
}

// reconcile runs a full reconciliation pass over the configured sources. With
// update, the market prices of the holdings are fetched from eodhd.com and the
// view is aggregated again.
func reconcile(ctx context.Context, update bool) (bankroll.Result, error) {
	log := newLogger(os.Stderr, *Verbose)

	s, cfg, err := loadConfig()
	if err != nil {
		return bankroll.Result{}, err
	}
	prices, err := s.Prices(cfg.DefaultCurrency)
	if err != nil {
		return bankroll.Result{}, err
	}
	var market *eodhd.Client
	if update {
		if market = s.Market(log); market == nil {
			return bankroll.Result{}, fmt.Errorf("cannot update prices: no eodhd_key in the [prices] section of %q", *settingsFile)
		}
	}
	in, err := s.Inputs(log)
	if err != nil {
		return bankroll.Result{}, err
	}
	defer in.Close()
	if len(in.Adapters) == 0 {
		log.Warn().Str("config", *settingsFile).Msg("no source configured")
	}

	var ps bankroll.PriceSource
	if prices != nil {
		ps = prices
	}
	r, err := bankroll.NewReconciler(cfg, ps, log)
	if err != nil {
		return bankroll.Result{}, err
	}
	res, err := r.Run(ctx, in.Adapters...)
	if err != nil || market == nil {
		return res, err
	}

	instruments := make([]bankroll.Instrument, 0, len(res.View.Holdings))
	for _, h := range res.View.Holdings {
		instruments = append(instruments, h.Instrument)
	}
	quoted, err := market.Prices(ctx, instruments)
	if err != nil {
		// the prices that could be fetched are still used.
		log.Warn().Err(err).Msg("cannot fetch every price")
	}
	// configured quotes win
	for k, p := range prices {
		quoted[k] = p
	}
	res.View = bankroll.Aggregate(cfg, res.Entries, res.Snapshots, res.Diagnostics, quoted)
	return res, nil
}

// printMarkdown renders md for the terminal, falling back to the raw markdown.
func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(0))
	if err != nil {
		fmt.Print(md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}
