// Package eodhd fetches market prices from eodhd.com.
//
// Stocks are quoted as SYMBOL.EXCHANGE ("AAPL.US", "VOD.LSE") and currency
// pairs as BASEQUOTE.FOREX ("EURUSD.FOREX"). Other asset classes are not
// quoted and keep the price reported by the brokers.
package eodhd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/etnz/bankroll"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
)

// DefaultURL is the address of the API.
const DefaultURL = "https://eodhd.com/api"

// exchanges maps the venues used by brokers to eodhd exchange codes.
var exchanges = map[string]string{
	"NASDAQ": "US", "NYSE": "US", "NMS": "US", "ARCA": "US", "AMEX": "US", "BATS": "US", "SMART": "US", "ISLAND": "US",
	"L": "LSE", "LN": "LSE", "LSE": "LSE",
	"DE": "XETRA", "IBIS": "XETRA", "XETRA": "XETRA",
	"PA": "PA", "SBF": "PA",
	"AS": "AS", "AEB": "AS",
	"TO": "TO", "TSX": "TO",
	"V": "V", "F": "F",
}

// Ticker returns the eodhd ticker of an instrument. exchange applies to stocks
// whose venue is unknown.
func Ticker(in bankroll.Instrument, exchange string) (string, bool) {
	switch in.Class() {
	case bankroll.Stock:
		if code, ok := exchanges[strings.ToUpper(in.Venue())]; ok {
			exchange = code
		}
		// share classes are dashed: BRK-B.US
		return strings.ReplaceAll(in.Symbol(), ".", "-") + "." + exchange, true
	case bankroll.Forex:
		return in.Symbol() + ".FOREX", true
	}
	return "", false
}

// Client fetches the last close of instruments.
type Client struct {
	APIKey   string
	Exchange string       // default exchange code, "US" if empty
	URL      string       // DefaultURL if empty
	HTTP     *http.Client // http.DefaultClient if nil
	Log      zerolog.Logger
}

type quote struct {
	key   bankroll.Key
	price bankroll.Money
}

// Prices fetches the price of every quoted instrument concurrently. A price
// that cannot be fetched is left out and its error is joined to the returned
// one, so the result is usable even when err is not nil.
func (c *Client) Prices(ctx context.Context, instruments []bankroll.Instrument) (bankroll.Prices, error) {
	exchange := c.Exchange
	if exchange == "" {
		exchange = "US"
	}

	p := pool.NewWithResults[quote]().WithContext(ctx).WithMaxGoroutines(4)
	seen := make(map[bankroll.Key]bool)
	for _, in := range instruments {
		if seen[in.Key()] {
			continue
		}
		seen[in.Key()] = true
		ticker, ok := Ticker(in, exchange)
		if !ok {
			continue
		}
		p.Go(func(ctx context.Context) (quote, error) {
			price, err := c.last(ctx, ticker)
			if err != nil {
				return quote{}, fmt.Errorf("%s: %w", in.Key(), err)
			}
			return quote{key: in.Key(), price: bankroll.M(price, in.Currency())}, nil
		})
	}
	quotes, err := p.Wait()

	prices := make(bankroll.Prices, len(quotes))
	for _, q := range quotes {
		prices[q.key] = q.price
	}
	c.Log.Debug().Int("quoted", len(prices)).Int("instruments", len(seen)).Msg("prices fetched")
	return prices, err
}

// last returns the last close of ticker, from the real-time endpoint:
//
//	{"code":"AAPL.US","timestamp":1737147600,"open":232.12,"close":229.98,...}
func (c *Client) last(ctx context.Context, ticker string) (decimal.Decimal, error) {
	base := c.URL
	if base == "" {
		base = DefaultURL
	}
	addr := fmt.Sprintf("%s/real-time/%s?fmt=json&api_token=%s", strings.TrimSuffix(base, "/"), url.PathEscape(ticker), url.QueryEscape(c.APIKey))

	var content struct {
		Code  string          `json:"code"`
		Close json.RawMessage `json:"close"`
	}
	if err := c.jwget(ctx, addr, &content); err != nil {
		return decimal.Zero, err
	}
	// unknown tickers get "NA"
	price, err := decimal.NewFromString(strings.Trim(string(content.Close), `"`))
	if err != nil {
		return decimal.Zero, fmt.Errorf("no price for %s: %s", ticker, content.Close)
	}
	return price, nil
}

// jwget performs an HTTP GET request to the given address and unmarshals the
// JSON response body into the provided data structure.
func (c *Client) jwget(ctx context.Context, addr string, data any) error {
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cannot http GET %v%v: %v", req.URL.Host, req.URL.Path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(data)
}
