package cmd

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/etnz/bankroll"
	"github.com/etnz/bankroll/brokercsv"
	"github.com/etnz/bankroll/eodhd"
	"github.com/etnz/bankroll/flex"
	"github.com/etnz/bankroll/liveapi"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Settings is the content of the settings file, bankroll.toml by default.
type Settings struct {
	Reconcile     ReconcileSettings `mapstructure:"reconcile"`
	IBKR          IBKRSettings      `mapstructure:"ibkr"`
	Schwab        BrokerSettings    `mapstructure:"schwab"`
	Fidelity      BrokerSettings    `mapstructure:"fidelity"`
	Vanguard      BrokerSettings    `mapstructure:"vanguard"`
	PriceSettings PriceSettings     `mapstructure:"prices"`
}

// ReconcileSettings holds the policies of a run.
type ReconcileSettings struct {
	Method            string        `mapstructure:"method"`
	Mode              string        `mapstructure:"mode"`
	Priority          []string      `mapstructure:"priority"`
	Disabled          []string      `mapstructure:"disabled"`
	Tolerance         time.Duration `mapstructure:"tolerance"`
	FeeTolerance      string        `mapstructure:"fee_tolerance"`
	QuantityTolerance string        `mapstructure:"quantity_tolerance"`
	Currency          string        `mapstructure:"currency"`
	Timezone          string        `mapstructure:"timezone"`
	SnapshotFallback  bool          `mapstructure:"snapshot_fallback"`
}

// IBKRSettings lists the Interactive Brokers inputs.
type IBKRSettings struct {
	Account  string   `mapstructure:"account"`
	Flex     []string `mapstructure:"flex"`     // Flex query reports
	Live     string   `mapstructure:"live"`     // Client Portal gateway, e.g. https://localhost:5000/v1/api
	Insecure bool     `mapstructure:"insecure"` // skip the gateway certificate check
	JSONL    []string `mapstructure:"jsonl"`
}

// BrokerSettings lists the CSV exports of a retail broker.
type BrokerSettings struct {
	Account   string   `mapstructure:"account"`
	Trades    []string `mapstructure:"trades"`
	Positions []string `mapstructure:"positions"`
	JSONL     []string `mapstructure:"jsonl"`
}

// PriceSettings lists market prices that override the ones reported by
// position snapshots. With an eodhd.com API key, "reconcile -u" fetches the
// others.
type PriceSettings struct {
	Quotes   []Quote `mapstructure:"quote"`
	EODHDKey string  `mapstructure:"eodhd_key"`
	Exchange string  `mapstructure:"exchange"` // eodhd exchange code of stocks with an unknown venue
	Cache    string  `mapstructure:"cache"`    // directory of the daily response cache
	URL      string  `mapstructure:"eodhd_url"`
}

// Quote is the price of one instrument, identified by its key.
type Quote struct {
	Key      string `mapstructure:"key"`
	Price    string `mapstructure:"price"`
	Currency string `mapstructure:"currency"`
}

// LoadSettings reads the TOML settings file at path. Any key can be
// overridden by a BANKROLL_ environment variable, e.g.
// BANKROLL_RECONCILE_METHOD=average. A missing file yields the defaults.
func LoadSettings(path string) (Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	def := bankroll.DefaultConfig()
	v.SetDefault("reconcile.method", def.Method.String())
	v.SetDefault("reconcile.mode", def.Mode.String())
	v.SetDefault("reconcile.tolerance", def.Tolerance)
	v.SetDefault("reconcile.fee_tolerance", def.FeeTolerance.String())
	v.SetDefault("reconcile.quantity_tolerance", def.QuantityTolerance.String())
	v.SetDefault("reconcile.currency", def.DefaultCurrency)
	v.SetDefault("reconcile.timezone", "UTC")
	v.SetDefault("prices.exchange", "US")

	v.SetEnvPrefix("BANKROLL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("cannot read settings %q: %w", path, err)
	}
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("invalid settings %q: %w", path, err)
	}
	return s, nil
}

// Config builds the reconciliation policies.
func (s Settings) Config() (bankroll.Config, error) {
	r := s.Reconcile
	cfg := bankroll.DefaultConfig()
	var errs []error
	var err error

	if cfg.Method, err = bankroll.ParseCostBasisMethod(r.Method); err != nil {
		errs = append(errs, err)
	}
	if cfg.Mode, err = bankroll.ParseOversellMode(r.Mode); err != nil {
		errs = append(errs, err)
	}
	for _, p := range r.Priority {
		cfg.SourcePriority = append(cfg.SourcePriority, bankroll.Source(p))
	}
	for _, d := range r.Disabled {
		cfg.Disabled = append(cfg.Disabled, bankroll.Source(d))
	}
	cfg.Tolerance = r.Tolerance
	if cfg.FeeTolerance, err = bankroll.ParseQuantity(r.FeeTolerance); err != nil {
		errs = append(errs, fmt.Errorf("fee_tolerance: %w", err))
	}
	if cfg.QuantityTolerance, err = bankroll.ParseQuantity(r.QuantityTolerance); err != nil {
		errs = append(errs, fmt.Errorf("quantity_tolerance: %w", err))
	}
	cfg.DefaultCurrency = strings.ToUpper(r.Currency)
	if cfg.Location, err = time.LoadLocation(r.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	cfg.SnapshotFallback = r.SnapshotFallback

	if err := errors.Join(errs...); err != nil {
		return bankroll.Config{}, err
	}
	return cfg, cfg.Validate()
}

// Prices returns the configured quotes.
func (s Settings) Prices(currency string) (bankroll.Prices, error) {
	if len(s.PriceSettings.Quotes) == 0 {
		return nil, nil
	}
	prices := make(bankroll.Prices, len(s.PriceSettings.Quotes))
	for _, q := range s.PriceSettings.Quotes {
		cur := q.Currency
		if cur == "" {
			cur = currency
		}
		m, err := bankroll.ParseMoney(q.Price, strings.ToUpper(cur))
		if err != nil {
			return nil, fmt.Errorf("price of %q: %w", q.Key, err)
		}
		prices[bankroll.Key(q.Key)] = m
	}
	return prices, nil
}

// Market returns the eodhd.com client, or nil when no API key is set.
func (s Settings) Market(log zerolog.Logger) *eodhd.Client {
	if s.PriceSettings.EODHDKey == "" {
		return nil
	}
	return &eodhd.Client{
		APIKey:   s.PriceSettings.EODHDKey,
		Exchange: strings.ToUpper(s.PriceSettings.Exchange),
		URL:      s.PriceSettings.URL,
		HTTP:     eodhd.NewCachingClient(s.PriceSettings.Cache, log.With().Str("component", "eodhd").Logger()),
		Log:      log.With().Str("component", "eodhd").Logger(),
	}
}

// Inputs holds the adapters of a run and the files they read.
type Inputs struct {
	Adapters []bankroll.Adapter
	files    []io.Closer
}

// Close closes every opened file.
func (in *Inputs) Close() error {
	var errs []error
	for _, f := range in.files {
		errs = append(errs, f.Close())
	}
	in.files = nil
	return errors.Join(errs...)
}

func (in *Inputs) open(name string) (io.Reader, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	in.files = append(in.files, f)
	return f, nil
}

// Inputs opens every configured source. Each file becomes one adapter so
// that a broken file only removes its own records.
func (s Settings) Inputs(log zerolog.Logger) (*Inputs, error) {
	in := &Inputs{}
	fail := func(err error) (*Inputs, error) {
		in.Close()
		return nil, err
	}

	ibkr := bankroll.Account{Broker: flex.Broker, Number: s.IBKR.Account}
	for _, name := range s.IBKR.Flex {
		r, err := in.open(name)
		if err != nil {
			return fail(err)
		}
		in.Adapters = append(in.Adapters, flex.New(r))
	}
	if s.IBKR.Live != "" {
		client := http.DefaultClient
		if s.IBKR.Insecure {
			// the local gateway serves a self-signed certificate
			client = &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}}
		}
		l := log.With().Str("component", "liveapi").Logger()
		positions := liveapi.PositionsEndpoint(client, s.IBKR.Live, s.IBKR.Account)
		positions.Log = l
		trades := liveapi.TradesEndpoint(client, s.IBKR.Live)
		trades.Log = l
		in.Adapters = append(in.Adapters,
			&liveapi.Adapter{Account: ibkr, Kind: bankroll.PositionRecord, Fetcher: positions},
			&liveapi.Adapter{Account: ibkr, Kind: bankroll.TradeRecord, Fetcher: trades},
		)
	}
	if err := in.jsonl("ibkr", ibkr, s.IBKR.JSONL); err != nil {
		return fail(err)
	}

	brokers := []struct {
		name      string
		settings  BrokerSettings
		trades    brokercsv.Format
		positions *brokercsv.Format
	}{
		{"schwab", s.Schwab, brokercsv.Schwab, &brokercsv.SchwabPositions},
		{"fidelity", s.Fidelity, brokercsv.Fidelity, &brokercsv.FidelityPositions},
		{"vanguard", s.Vanguard, brokercsv.Vanguard, nil},
	}
	for _, b := range brokers {
		account := bankroll.Account{Broker: b.name, Number: b.settings.Account}
		for _, name := range b.settings.Trades {
			r, err := in.open(name)
			if err != nil {
				return fail(err)
			}
			in.Adapters = append(in.Adapters, &brokercsv.Adapter{Name: bankroll.Source(b.name), Account: account, Format: b.trades, R: r})
		}
		for _, name := range b.settings.Positions {
			if b.positions == nil {
				return fail(fmt.Errorf("%s: position exports are not supported", b.name))
			}
			r, err := in.open(name)
			if err != nil {
				return fail(err)
			}
			in.Adapters = append(in.Adapters, &brokercsv.Adapter{Name: bankroll.Source(b.name), Account: account, Format: *b.positions, R: r})
		}
		if err := in.jsonl(b.name, account, b.settings.JSONL); err != nil {
			return fail(err)
		}
	}
	return in, nil
}

func (in *Inputs) jsonl(source string, account bankroll.Account, names []string) error {
	for _, name := range names {
		r, err := in.open(name)
		if err != nil {
			return err
		}
		in.Adapters = append(in.Adapters, bankroll.JSONLAdapter{Name: bankroll.Source(source), Account: account, R: r})
	}
	return nil
}
