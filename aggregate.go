package bankroll

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// PriceSource supplies the current market price of instruments. It is an
// external collaborator: the core never fetches prices.
type PriceSource interface {
	Price(key Key) (Money, bool)
}

// Prices is a PriceSource backed by a map.
type Prices map[Key]Money

func (p Prices) Price(key Key) (Money, bool) {
	m, ok := p[key]
	return m, ok
}

// Basis tells where the figures of a holding come from.
type Basis string

const (
	LedgerBasis   Basis = "ledger"   // replayed from trades
	SnapshotBasis Basis = "snapshot" // reported by a source, no trade history
)

// Holding is one row of the portfolio view: an instrument held in an account.
type Holding struct {
	Account    Account
	Instrument Instrument
	Basis      Basis

	Quantity  Quantity
	CostBasis Money
	Realized  Money

	// Price, MarketValue and Unrealized are set only when HasPrice.
	HasPrice    bool
	Price       Money
	MarketValue Money
	Unrealized  Money

	// Flags lists the kinds of diagnostics raised for this row.
	Flags []Kind
}

// Key returns the instrument key of the holding.
func (h Holding) Key() Key { return h.Instrument.Key() }

// Currency returns the currency of the holding.
func (h Holding) Currency() string { return h.Instrument.Currency() }

// MarshalJSON implements the json.Marshaler interface for Holding.
func (h Holding) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("account", h.Account.String())
	w.Append("key", h.Key())
	w.Append("basis", h.Basis)
	w.Append("quantity", h.Quantity)
	w.Append("currency", h.Currency())
	w.Append("costBasis", h.CostBasis.Decimal())
	w.Append("realized", h.Realized.Decimal())
	if h.HasPrice {
		w.Append("price", h.Price.Decimal())
		w.Append("marketValue", h.MarketValue.Decimal())
		w.Append("unrealized", h.Unrealized.Decimal())
	}
	if len(h.Flags) > 0 {
		w.Append("flags", h.Flags)
	}
	return w.MarshalJSON()
}

// InstrumentTotal rolls the holdings of one instrument up across accounts.
type InstrumentTotal struct {
	Instrument Instrument
	Accounts   int

	Quantity  Quantity
	CostBasis Money
	Realized  Money

	// MarketValue and Unrealized are set only when every holding has a price.
	HasPrice    bool
	MarketValue Money
	Unrealized  Money
}

// Key returns the instrument key of the total.
func (t InstrumentTotal) Key() Key { return t.Instrument.Key() }

// Metadata describes how a view was computed.
type Metadata struct {
	Method         CostBasisMethod
	Mode           OversellMode
	Partial        bool     // some source failed, coverage is partial
	FailedSources  []Source // sources whose contribution was removed
	Discrepancies  int
	Conflicts      int
	Rejected       int
	AbortedLedgers int
}

// PortfolioView is the consolidated result of a run.
type PortfolioView struct {
	Holdings []Holding
	Totals   []InstrumentTotal
	Meta     Metadata
}

// Holding returns the row of an (account, instrument) pair.
func (v PortfolioView) Holding(account Account, key Key) (Holding, bool) {
	for _, h := range v.Holdings {
		if h.Account == account && h.Key() == key {
			return h, true
		}
	}
	return Holding{}, false
}

// Total returns the roll-up of an instrument.
func (v PortfolioView) Total(key Key) (InstrumentTotal, bool) {
	for _, t := range v.Totals {
		if t.Key() == key {
			return t, true
		}
	}
	return InstrumentTotal{}, false
}

// Aggregate folds ledger entries into a portfolio view. It is pure: the same
// inputs always give the same view.
//
// prices may be nil; the latest market price reported by a snapshot is used
// when prices has none. Diagnostics are propagated into row flags and the
// view metadata. When cfg.SnapshotFallback is set, positions known only from
// snapshots are included with a snapshot basis.
func Aggregate(cfg Config, entries []LedgerEntry, snapshots []PositionSnapshot, diags Diagnostics, prices PriceSource) PortfolioView {
	v := PortfolioView{Meta: metadata(cfg, diags)}

	flags := make(map[group][]Kind)
	aborted := make(map[group]bool)
	for _, d := range diags {
		if d.Account.IsZero() || d.Key == "" {
			continue
		}
		g := group{d.Account, d.Key}
		if !slices.Contains(flags[g], d.Kind) {
			flags[g] = append(flags[g], d.Kind)
		}
		if d.Kind == OverSell {
			aborted[g] = true
		}
	}

	latest := latestSnapshots(cfg, snapshots)
	quote := func(in Instrument) (Money, bool) {
		if prices != nil {
			if p, ok := prices.Price(in.Key()); ok && p.Currency() == in.Currency() {
				return p, true
			}
		}
		var best PositionSnapshot
		for _, s := range latest {
			if s.Key() != in.Key() || s.Price.IsZero() || s.Price.Currency() != in.Currency() {
				continue
			}
			if best.ID == "" || later(s.Time, best.Time) || (s.Time.Equal(best.Time) && s.Ref() < best.Ref()) {
				best = s
			}
		}
		return best.Price, best.ID != ""
	}

	ledgered := make(map[group]bool)
	for _, e := range entries {
		g := group{e.Account, e.Key()}
		ledgered[g] = true
		v.Holdings = append(v.Holdings, Holding{
			Account:    e.Account,
			Instrument: e.Instrument,
			Basis:      LedgerBasis,
			Quantity:   e.Quantity,
			CostBasis:  e.CostBasis,
			Realized:   e.Realized,
			Flags:      sortedKinds(flags[g]),
		})
	}

	if cfg.SnapshotFallback {
		for g, s := range latest {
			if ledgered[g] || aborted[g] {
				continue
			}
			v.Holdings = append(v.Holdings, Holding{
				Account:    s.Account,
				Instrument: s.Instrument,
				Basis:      SnapshotBasis,
				Quantity:   s.Quantity,
				CostBasis:  s.CostBasis.In(s.Instrument.Currency()),
				Realized:   M(0, s.Instrument.Currency()),
				Flags:      sortedKinds(flags[g]),
			})
		}
	}

	for i, h := range v.Holdings {
		p, ok := quote(h.Instrument)
		if !ok {
			continue
		}
		h.HasPrice = true
		h.Price = p
		h.MarketValue = p.Mul(h.Quantity).Mul(h.Instrument.Multiplier()).Round()
		h.Unrealized = h.MarketValue.Sub(h.CostBasis)
		v.Holdings[i] = h
	}

	slices.SortFunc(v.Holdings, func(a, b Holding) int {
		return group{a.Account, a.Key()}.compare(group{b.Account, b.Key()})
	})
	v.Totals = rollUp(v.Holdings)
	return v
}

// rollUp sums holdings per instrument and currency, in key order.
func rollUp(holdings []Holding) []InstrumentTotal {
	type rollKey struct {
		key      Key
		currency string
	}
	index := make(map[rollKey]int)
	var totals []InstrumentTotal
	for _, h := range holdings {
		k := rollKey{h.Key(), h.Currency()}
		i, ok := index[k]
		if !ok {
			i = len(totals)
			index[k] = i
			totals = append(totals, InstrumentTotal{
				Instrument:  h.Instrument,
				CostBasis:   M(0, k.currency),
				Realized:    M(0, k.currency),
				MarketValue: M(0, k.currency),
				Unrealized:  M(0, k.currency),
				HasPrice:    true,
			})
		}
		t := &totals[i]
		t.Accounts++
		t.Quantity = t.Quantity.Add(h.Quantity)
		t.CostBasis = t.CostBasis.Add(h.CostBasis)
		t.Realized = t.Realized.Add(h.Realized)
		if h.HasPrice {
			t.MarketValue = t.MarketValue.Add(h.MarketValue)
			t.Unrealized = t.Unrealized.Add(h.Unrealized)
		} else {
			t.HasPrice = false
		}
	}
	for i := range totals {
		if !totals[i].HasPrice {
			totals[i].MarketValue = Money{}
			totals[i].Unrealized = Money{}
		}
	}
	slices.SortFunc(totals, func(a, b InstrumentTotal) int {
		return cmp.Or(
			strings.Compare(string(a.Key()), string(b.Key())),
			strings.Compare(a.Instrument.Currency(), b.Instrument.Currency()),
		)
	})
	return totals
}

// latestSnapshots keeps the most recent snapshot of each group. An undated
// snapshot is as recent as it gets; equal dates are broken by source priority
// then reference.
func latestSnapshots(cfg Config, snapshots []PositionSnapshot) map[group]PositionSnapshot {
	latest := make(map[group]PositionSnapshot)
	for _, s := range snapshots {
		g := group{s.Account, s.Key()}
		cur, ok := latest[g]
		if !ok || later(s.Time, cur.Time) {
			latest[g] = s
			continue
		}
		if s.Time.Equal(cur.Time) {
			if c := cmp.Or(
				cmp.Compare(cfg.Rank(s.Source), cfg.Rank(cur.Source)),
				strings.Compare(s.Ref(), cur.Ref()),
			); c < 0 {
				latest[g] = s
			}
		}
	}
	return latest
}

// later reports whether a is strictly more recent than b, zero being the most
// recent.
func later(a, b time.Time) bool {
	switch {
	case a.IsZero():
		return !b.IsZero()
	case b.IsZero():
		return false
	}
	return a.After(b)
}

func sortedKinds(kinds []Kind) []Kind {
	out := slices.Clone(kinds)
	slices.Sort(out)
	return out
}

func metadata(cfg Config, diags Diagnostics) Metadata {
	m := Metadata{
		Method:         cfg.Method,
		Mode:           cfg.Mode,
		Discrepancies:  diags.Count(ReconciliationDiscrepancy),
		Conflicts:      diags.Count(ConflictingDuplicate),
		Rejected:       diags.Count(MalformedRecord) + diags.Count(AmbiguousIdentifier) + diags.Count(UnresolvableIdentifier),
		AbortedLedgers: diags.Count(OverSell),
	}
	for _, d := range diags.Of(AdapterFailure) {
		m.Partial = true
		if !slices.Contains(m.FailedSources, d.Source) {
			m.FailedSources = append(m.FailedSources, d.Source)
		}
	}
	slices.Sort(m.FailedSources)
	return m
}
