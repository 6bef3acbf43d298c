package bankroll

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AssetClass is the kind of instrument.
type AssetClass string

const (
	Stock        AssetClass = "STK"  // Stocks and ETFs.
	Bond         AssetClass = "BOND" // Bonds, identified by CUSIP.
	Option       AssetClass = "OPT"  // Equity options.
	Future       AssetClass = "FUT"  // Futures contracts.
	FutureOption AssetClass = "FOP"  // Options on futures.
	Forex        AssetClass = "CASH" // Currency pairs.
)

// ParseAssetClass maps the vocabularies used by brokers onto an AssetClass.
func ParseAssetClass(s string) (AssetClass, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STK", "STOCK", "STOCKS", "EQUITY", "ETF", "ETFS", "MUTUAL FUND", "FUND":
		return Stock, nil
	case "BOND", "BONDS", "BILL", "FIXED INCOME":
		return Bond, nil
	case "OPT", "OPTION", "OPTIONS", "EQUITY AND INDEX OPTIONS":
		return Option, nil
	case "FUT", "FUTURE", "FUTURES":
		return Future, nil
	case "FOP", "FUTURE OPTION", "OPTIONS ON FUTURES":
		return FutureOption, nil
	case "CASH", "FX", "FOREX", "FXCFD":
		return Forex, nil
	}
	return "", fmt.Errorf("unknown asset class %q", s)
}

// OptionRight is the right conferred by an option.
type OptionRight string

const (
	Put  OptionRight = "P"
	Call OptionRight = "C"
)

// ParseOptionRight accepts P, C, PUT or CALL in any case.
func ParseOptionRight(s string) (OptionRight, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "P", "PUT":
		return Put, nil
	case "C", "CALL":
		return Call, nil
	}
	return "", fmt.Errorf("unknown option right %q", s)
}

// Key is the canonical identity of an instrument. Two identifiers denoting the
// same economic instrument produce the same Key.
type Key string

func (k Key) String() string { return string(k) }

// Class returns the asset class encoded in the key.
func (k Key) Class() AssetClass {
	class, _, _ := strings.Cut(string(k), ":")
	return AssetClass(class)
}

var (
	strikeQuantum     = decimal.New(1, -3)
	multiplierQuantum = decimal.New(1, -1)
)

// Instrument is a canonical, immutable instrument description. Only the
// economic identity takes part in the Key: the venue and the currency are
// informative.
type Instrument struct {
	key        Key
	class      AssetClass
	symbol     string
	venue      string
	currency   string
	multiplier decimal.Decimal

	// derivatives
	underlying string
	expiry     time.Time
	strike     decimal.Decimal
	right      OptionRight

	// optional cross references
	cusip string
	isin  string
}

func (i Instrument) Key() Key               { return i.key }
func (i Instrument) Class() AssetClass      { return i.class }
func (i Instrument) Symbol() string         { return i.symbol }
func (i Instrument) Venue() string          { return i.venue }
func (i Instrument) Currency() string       { return i.currency }
func (i Instrument) Underlying() string     { return i.underlying }
func (i Instrument) Expiry() time.Time      { return i.expiry }
func (i Instrument) Strike() decimal.Decimal { return i.strike }
func (i Instrument) Right() OptionRight     { return i.right }
func (i Instrument) CUSIP() string          { return i.cusip }
func (i Instrument) ISIN() string           { return i.isin }

// Multiplier returns the contract multiplier, 1 for cash instruments.
func (i Instrument) Multiplier() Quantity {
	if i.multiplier.IsZero() {
		return Q(1)
	}
	return Q(i.multiplier)
}

// String returns the key.
func (i Instrument) String() string { return string(i.key) }

// IsZero reports whether the instrument was never resolved.
func (i Instrument) IsZero() bool { return i.key == "" }

// WithCurrency returns a copy of the instrument quoted in currency.
func (i Instrument) WithCurrency(currency string) Instrument {
	i.currency = currency
	return i
}

// MarshalJSON implements the json.Marshaler interface for Instrument.
func (i Instrument) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("key", i.key)
	w.Append("class", i.class)
	w.Append("symbol", i.symbol)
	w.Optional("venue", i.venue)
	w.Optional("currency", i.currency)
	if !i.multiplier.IsZero() && !i.multiplier.Equal(decimal.NewFromInt(1)) {
		w.Append("multiplier", i.multiplier)
	}
	w.Optional("underlying", i.underlying)
	if !i.expiry.IsZero() {
		w.Append("expiry", i.expiry.Format(time.DateOnly))
	}
	if !i.strike.IsZero() {
		w.Append("strike", i.strike)
	}
	w.Optional("right", i.right)
	w.Optional("cusip", i.cusip)
	w.Optional("isin", i.isin)
	return w.MarshalJSON()
}

// occSymbol formats an option in the OCC symbology: the underlying padded to
// six characters, the expiry as yymmdd, the right and the strike times 1000
// on eight digits.
func occSymbol(underlying string, expiry time.Time, right OptionRight, strike decimal.Decimal) string {
	milli := strike.Shift(3).Round(0).IntPart()
	return fmt.Sprintf("%-6s%s%s%08d", underlying, expiry.Format("060102"), right, milli)
}

// newStock builds a stock, ETF or fund.
func newStock(symbol, venue, currency string) Instrument {
	return Instrument{
		key:      Key(string(Stock) + ":" + symbol),
		class:    Stock,
		symbol:   symbol,
		venue:    venue,
		currency: currency,
	}
}

// newBond builds a bond, keyed by its CUSIP when it has one.
func newBond(symbol, cusip, currency string) Instrument {
	id := cusip
	if id == "" {
		id = symbol
	}
	if symbol == "" {
		symbol = cusip
	}
	return Instrument{
		key:      Key(string(Bond) + ":" + id),
		class:    Bond,
		symbol:   symbol,
		currency: currency,
		cusip:    cusip,
	}
}

// newOption builds an equity option or an option on a future.
func newOption(class AssetClass, underlying string, expiry time.Time, strike decimal.Decimal, right OptionRight, multiplier decimal.Decimal, currency string) Instrument {
	strike = strike.RoundBank(3)
	if multiplier.IsZero() {
		multiplier = decimal.NewFromInt(100)
	}
	multiplier = multiplier.RoundBank(1)
	expiry = time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, time.UTC)

	in := Instrument{
		class:      class,
		underlying: underlying,
		expiry:     expiry,
		strike:     strike,
		right:      right,
		multiplier: multiplier,
		currency:   currency,
	}
	switch class {
	case FutureOption:
		in.symbol = fmt.Sprintf("%s %s %s %s", underlying, expiry.Format("20060102"), strike.String(), right)
		in.key = Key(fmt.Sprintf("%s:%s:%s:%s:%s", FutureOption, underlying, expiry.Format("20060102"), right, strike.String()))
	default:
		in.symbol = occSymbol(underlying, expiry, right, strike)
		in.key = Key(string(Option) + ":" + in.symbol)
	}
	return in
}

// newFuture builds a futures contract.
func newFuture(symbol string, expiry time.Time, multiplier decimal.Decimal, currency string) Instrument {
	if !multiplier.IsZero() {
		multiplier = multiplier.RoundBank(1)
	}
	return Instrument{
		key:        Key(string(Future) + ":" + symbol),
		class:      Future,
		symbol:     symbol,
		expiry:     expiry,
		multiplier: multiplier,
		currency:   currency,
	}
}

// newForex builds a currency pair priced in its quote currency.
func newForex(base, quote string) Instrument {
	return Instrument{
		key:      Key(string(Forex) + ":" + base + quote),
		class:    Forex,
		symbol:   base + quote,
		currency: quote,
	}
}
