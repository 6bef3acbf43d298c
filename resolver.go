package bankroll

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Resolver maps heterogeneous identifiers onto canonical instruments.
//
// Resolution is a pure function of the identifying fields and of the CUSIP
// and ISIN bindings observed during the run. All identifiers of a run are
// observed before any is resolved, so the order in which sources deliver
// them never changes a key or an ambiguity verdict.
type Resolver struct {
	mu       sync.RWMutex
	currency string                     // default currency
	cusips   map[string]map[string]bool // cusip -> symbols seen with it
	isins    map[string]map[string]bool // isin -> symbols seen with it
}

// NewResolver returns an empty resolver. Instruments without a currency are
// quoted in defaultCurrency.
func NewResolver(defaultCurrency string) *Resolver {
	return &Resolver{
		currency: defaultCurrency,
		cusips:   make(map[string]map[string]bool),
		isins:    make(map[string]map[string]bool),
	}
}

// Observe records the cross references carried by id. Only identifiers that
// name both a symbol and a CUSIP or ISIN teach the resolver something.
func (r *Resolver) Observe(id Identifier) {
	class, _ := ParseAssetClass(id.AssetClass)
	if class == Option || class == FutureOption {
		return
	}
	symbol := normalizeSymbol(id.Symbol, id.Exchange)
	if symbol == "" {
		return
	}
	cusip, isin := r.crossReferences(id)

	r.mu.Lock()
	defer r.mu.Unlock()
	if cusip != "" {
		bind(r.cusips, cusip, symbol)
	}
	if isin != "" {
		bind(r.isins, isin, symbol)
	}
}

func bind(index map[string]map[string]bool, ref, symbol string) {
	symbols, ok := index[ref]
	if !ok {
		symbols = make(map[string]bool)
		index[ref] = symbols
	}
	symbols[symbol] = true
}

// crossReferences returns the normalized CUSIP and ISIN of id. A CUSIP is
// derived from a US or Canadian ISIN when missing.
func (r *Resolver) crossReferences(id Identifier) (cusip, isin string) {
	cusip = strings.ToUpper(strings.TrimSpace(id.CUSIP))
	isin = strings.ToUpper(strings.TrimSpace(id.ISIN))
	if cusip == "" && isin != "" {
		cusip, _ = CUSIPFromISIN(isin)
	}
	return cusip, isin
}

// lookup returns the single symbol bound to ref, or an error when there are several.
func (r *Resolver) lookup(index map[string]map[string]bool, kind, ref string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	symbols := slices.Sorted(maps.Keys(index[ref]))
	switch len(symbols) {
	case 0:
		return "", nil
	case 1:
		return symbols[0], nil
	default:
		return "", &IdentifierError{
			Err:    ErrAmbiguousIdentifier,
			Fields: ref,
			Reason: fmt.Sprintf("%s %s maps to symbols %s", kind, ref, strings.Join(symbols, ", ")),
		}
	}
}

// Resolve returns the canonical instrument for id.
func (r *Resolver) Resolve(id Identifier) (Instrument, error) {
	currency := strings.ToUpper(strings.TrimSpace(id.Currency))
	if currency == "" {
		currency = r.currency
	}

	class, err := r.assetClass(id)
	if err != nil {
		return Instrument{}, err
	}

	switch class {
	case Option, FutureOption:
		return r.resolveOption(class, id, currency)
	case Forex:
		return r.resolveForex(id)
	case Future:
		return r.resolveFuture(id, currency)
	}

	cusip, isin := r.crossReferences(id)
	if cusip != "" {
		if err := ValidateCUSIP(cusip); err != nil {
			return Instrument{}, unresolvable(id, fmt.Sprintf("cusip %s: %v", cusip, err))
		}
	}
	if isin != "" {
		if err := ValidateISIN(isin); err != nil {
			return Instrument{}, unresolvable(id, fmt.Sprintf("isin %s: %v", isin, err))
		}
	}

	symbol := normalizeSymbol(id.Symbol, id.Exchange)
	// cross references must agree with each other and with the symbol.
	var bound []string
	if cusip != "" {
		s, err := r.lookup(r.cusips, "cusip", cusip)
		if err != nil {
			return Instrument{}, err
		}
		bound = append(bound, s)
	}
	if isin != "" {
		s, err := r.lookup(r.isins, "isin", isin)
		if err != nil {
			return Instrument{}, err
		}
		bound = append(bound, s)
	}
	for _, s := range bound {
		if s == "" {
			continue
		}
		if symbol == "" {
			symbol = s
		}
		if s != symbol {
			return Instrument{}, &IdentifierError{
				Err:    ErrAmbiguousIdentifier,
				Fields: describe(id),
				Reason: fmt.Sprintf("symbol %s disagrees with %s bound to its cross reference", symbol, s),
			}
		}
	}

	if class == Bond {
		if cusip == "" && symbol == "" {
			return Instrument{}, unresolvable(id, "bond without cusip nor symbol")
		}
		in := newBond(symbol, cusip, currency)
		in.isin = isin
		return in, nil
	}

	if symbol == "" {
		return Instrument{}, unresolvable(id, "no symbol and no known cross reference")
	}
	in := newStock(symbol, strings.ToUpper(strings.TrimSpace(id.Exchange)), currency)
	in.cusip, in.isin = cusip, isin
	return in, nil
}

// assetClass returns the declared class, or infers one from the shape of the identifier.
func (r *Resolver) assetClass(id Identifier) (AssetClass, error) {
	if strings.TrimSpace(id.AssetClass) != "" {
		class, err := ParseAssetClass(id.AssetClass)
		if err != nil {
			return "", unresolvable(id, err.Error())
		}
		return class, nil
	}
	switch {
	case id.Strike != "" || id.Right != "":
		return Option, nil
	case id.Symbol != "":
		if _, ok := parseOCC(id.Symbol); ok {
			return Option, nil
		}
		if _, ok := parseOptionDescription(id.Symbol); ok {
			return Option, nil
		}
	case id.CUSIP != "" && id.ISIN == "" && !r.hasBinding(id.CUSIP):
		// a CUSIP alone that no source ties to a ticker is a bond.
		return Bond, nil
	}
	return Stock, nil
}

func (r *Resolver) hasBinding(cusip string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cusips[strings.ToUpper(strings.TrimSpace(cusip))]) > 0
}

// resolveOption canonicalizes the option descriptor from explicit fields, an
// OCC symbol or a broker description, and checks that they agree.
func (r *Resolver) resolveOption(class AssetClass, id Identifier, currency string) (Instrument, error) {
	var candidates []optionDescriptor
	for _, s := range []string{id.Symbol, id.Description} {
		if d, ok := parseOCC(s); ok {
			candidates = append(candidates, d)
		} else if d, ok := parseOptionDescription(s); ok {
			candidates = append(candidates, d)
		}
	}

	explicit, complete, err := explicitOption(id)
	if err != nil {
		return Instrument{}, unresolvable(id, err.Error())
	}
	if complete {
		candidates = append([]optionDescriptor{explicit}, candidates...)
	}
	if len(candidates) == 0 {
		return Instrument{}, unresolvable(id, "option requires underlying, expiry, strike and right")
	}

	d := candidates[0]
	for _, c := range candidates[1:] {
		if !c.equal(d) {
			return Instrument{}, &IdentifierError{
				Err:    ErrAmbiguousIdentifier,
				Fields: describe(id),
				Reason: "option fields disagree with the option symbol",
			}
		}
	}
	if !d.strike.IsPositive() {
		return Instrument{}, unresolvable(id, "option strike must be positive")
	}

	multiplier := decimal.Zero
	if id.Multiplier != "" {
		if multiplier, err = decimal.NewFromString(id.Multiplier); err != nil || !multiplier.IsPositive() {
			return Instrument{}, unresolvable(id, fmt.Sprintf("invalid multiplier %q", id.Multiplier))
		}
	}
	underlying := normalizeSymbol(d.underlying, "")
	return newOption(class, underlying, d.expiry, d.strike, d.right, multiplier, currency), nil
}

// explicitOption reads the option descriptor from the dedicated fields. It
// reports whether all four were present.
func explicitOption(id Identifier) (d optionDescriptor, complete bool, err error) {
	underlying := strings.ToUpper(strings.TrimSpace(id.Underlying))
	if underlying == "" && id.Symbol != "" {
		if _, ok := parseOCC(id.Symbol); !ok {
			if _, ok := parseOptionDescription(id.Symbol); !ok {
				underlying = strings.ToUpper(strings.TrimSpace(id.Symbol))
			}
		}
	}
	if underlying == "" || id.Expiry == "" || id.Strike == "" || id.Right == "" {
		return d, false, nil
	}
	expiry, err := parseExpiry(id.Expiry)
	if err != nil {
		return d, false, err
	}
	strike, err := decimal.NewFromString(strings.TrimSpace(id.Strike))
	if err != nil {
		return d, false, fmt.Errorf("invalid strike %q", id.Strike)
	}
	right, err := ParseOptionRight(id.Right)
	if err != nil {
		return d, false, err
	}
	return optionDescriptor{underlying: underlying, expiry: expiry, strike: strike, right: right}, true, nil
}

func (r *Resolver) resolveFuture(id Identifier, currency string) (Instrument, error) {
	symbol := normalizeSymbol(id.Symbol, id.Exchange)
	if symbol == "" {
		return Instrument{}, unresolvable(id, "future without symbol")
	}
	in := newFuture(symbol, time.Time{}, decimal.Zero, currency)
	if id.Expiry != "" {
		expiry, err := parseExpiry(id.Expiry)
		if err != nil {
			return Instrument{}, unresolvable(id, err.Error())
		}
		in.expiry = expiry
	}
	if id.Multiplier != "" {
		m, err := decimal.NewFromString(id.Multiplier)
		if err != nil || !m.IsPositive() {
			return Instrument{}, unresolvable(id, fmt.Sprintf("invalid multiplier %q", id.Multiplier))
		}
		in.multiplier = m.RoundBank(1)
	}
	return in, nil
}

// resolveForex accepts "EUR.USD", "EUR/USD" or "EURUSD".
func (r *Resolver) resolveForex(id Identifier) (Instrument, error) {
	s := strings.ToUpper(strings.TrimSpace(id.Symbol))
	s = strings.NewReplacer(".", "", "/", "", " ", "").Replace(s)
	if len(s) != 6 {
		return Instrument{}, unresolvable(id, fmt.Sprintf("invalid currency pair %q", id.Symbol))
	}
	base, quote := s[:3], s[3:]
	if ValidateCurrency(base) != nil || ValidateCurrency(quote) != nil {
		return Instrument{}, unresolvable(id, fmt.Sprintf("invalid currency pair %q", id.Symbol))
	}
	if base == quote {
		return Instrument{}, unresolvable(id, "currency pair must be composed of different currencies")
	}
	return newForex(base, quote), nil
}

func unresolvable(id Identifier, reason string) error {
	return &IdentifierError{Err: ErrUnresolvableIdentifier, Fields: describe(id), Reason: reason}
}

// describe renders the non empty fields of an identifier for error messages.
func describe(id Identifier) string {
	var parts []string
	add := func(name, value string) {
		if value != "" {
			parts = append(parts, name+"="+value)
		}
	}
	add("symbol", id.Symbol)
	add("exchange", id.Exchange)
	add("class", id.AssetClass)
	add("cusip", id.CUSIP)
	add("isin", id.ISIN)
	add("underlying", id.Underlying)
	add("expiry", id.Expiry)
	add("strike", id.Strike)
	add("right", id.Right)
	return strings.Join(parts, " ")
}
