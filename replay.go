package bankroll

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sourcegraph/conc/iter"
)

// LedgerEntry is the state of one (account, instrument) ledger after replaying
// its trades.
type LedgerEntry struct {
	Account    Account
	Instrument Instrument
	Method     CostBasisMethod

	Quantity  Quantity
	CostBasis Money
	Realized  Money
	Trades    int
	Lots      []Lot

	// history holds the quantity after each trade, for point in time checks.
	history []checkpoint
}

type checkpoint struct {
	time     time.Time
	quantity Quantity
}

// Key returns the instrument key of the entry.
func (e LedgerEntry) Key() Key { return e.Instrument.Key() }

// Currency returns the currency of the ledger.
func (e LedgerEntry) Currency() string { return e.CostBasis.Currency() }

// QuantityAt returns the quantity held right after the last trade at or before
// t. A zero t stands for the end of the history.
func (e LedgerEntry) QuantityAt(t time.Time) Quantity {
	if t.IsZero() {
		return e.Quantity
	}
	var q Quantity
	for _, c := range e.history {
		if c.time.After(t) {
			break
		}
		q = c.quantity
	}
	return q
}

// MarshalJSON implements the json.Marshaler interface for LedgerEntry.
func (e LedgerEntry) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("account", e.Account.String())
	w.Append("key", e.Key())
	w.Append("method", e.Method.String())
	w.Append("quantity", e.Quantity)
	w.Append("currency", e.Currency())
	w.Append("costBasis", e.CostBasis.Decimal())
	w.Append("realized", e.Realized.Decimal())
	w.Append("trades", e.Trades)
	return w.MarshalJSON()
}

// Replay computes the ledger of every (account, instrument) group of trades.
// Groups are independent and replayed in parallel. A group aborted by an
// oversell in strict mode produces no entry; every other group does.
func Replay(cfg Config, trades []Trade) ([]LedgerEntry, Diagnostics) {
	type replayed struct {
		entry LedgerEntry
		ok    bool
		diags Diagnostics
	}
	results := iter.Map(groupTrades(trades), func(g *[]Trade) replayed {
		e, d, err := replayGroup(cfg, *g)
		if err != nil {
			d = append(d, groupDiagnostic(err, (*g)[0]))
			return replayed{diags: d}
		}
		return replayed{entry: e, ok: true, diags: d}
	})

	var entries []LedgerEntry
	var diags Diagnostics
	for _, r := range results {
		if r.ok {
			entries = append(entries, r.entry)
		}
		diags = append(diags, r.diags...)
	}
	diags.sort()
	return entries, diags
}

func groupDiagnostic(err error, t Trade) Diagnostic {
	d := newDiagnostic(err)
	d.Account, d.Key = t.Account, t.Key()
	var os *OverSellError
	if errors.As(err, &os) {
		d.Refs = []string{os.TradeID}
	}
	return d
}

// replayGroup replays the trades of a single group from an empty ledger. It
// returns an *OverSellError when a sell exceeds the quantity held in strict
// mode.
func replayGroup(cfg Config, trades []Trade) (LedgerEntry, Diagnostics, error) {
	trades = slices.Clone(trades)
	sortTrades(cfg, trades)

	first := trades[0]
	currency := first.Currency()
	e := LedgerEntry{
		Account:    first.Account,
		Instrument: first.Instrument,
		Method:     cfg.Method,
		Realized:   M(0, currency),
	}

	var held lots
	var diags Diagnostics
	for _, t := range trades {
		if t.Currency() != currency {
			diags = append(diags, Diagnostic{
				Kind:    MalformedRecord,
				Source:  t.Source,
				Account: t.Account,
				Key:     t.Key(),
				Refs:    []string{t.Ref()},
				Err:     malformed(FieldCurrency, t.Currency(), fmt.Errorf("ledger is in %s", currency)),
			})
			continue
		}

		var realized Money
		var err error
		held, realized, err = apply(cfg, held, t)
		if err != nil {
			return LedgerEntry{}, diags, err
		}
		e.Realized = e.Realized.Add(realized)
		e.Trades++
		e.history = append(e.history, checkpoint{time: t.Time, quantity: held.quantity()})
	}

	e.Quantity = held.quantity()
	e.CostBasis = held.cost(currency)
	e.Lots = slices.Clip(held)
	return e, diags, nil
}

// apply applies one trade to the open lots and returns the new lots and the
// gain realized by the trade.
//
// The trade's cash flow is q × price × multiplier + fees, q signed: a buy
// costs its gross amount plus fees, a sell brings its gross amount minus fees
// (a negative flow). The part of the trade that closes lots of the opposite
// sign realizes -(flow + cost removed); the rest opens a new lot.
func apply(cfg Config, held lots, t Trade) (lots, Money, error) {
	currency := t.Currency()
	q := t.Quantity
	flow := t.Price.Mul(q).Mul(t.Instrument.Multiplier()).Add(t.Fees).Round()
	realized := M(0, currency)

	position := held.quantity()
	closing := Q(0)
	if !position.IsZero() && position.Sign() != q.Sign() {
		closing = q.Abs().Min(position.Abs())
	}

	if q.IsNegative() && q.Abs().GreaterThan(closing) && cfg.Mode == Strict {
		return held, realized, &OverSellError{TradeID: t.Ref(), Held: position, Quantity: q.Abs()}
	}

	if closing.IsPositive() {
		closingFlow := flow
		if closing.LessThan(q.Abs()) {
			closingFlow = flow.Mul(closing).Div(q.Abs()).Round()
		}
		var removed Money
		held, removed = held.remove(closing)
		realized = closingFlow.Add(removed).Neg()
		flow = flow.Sub(closingFlow)
	}

	if opening := q.Abs().Sub(closing); opening.IsPositive() {
		if q.IsNegative() {
			opening = opening.Neg()
		}
		held = append(slices.Clone(held), Lot{Time: t.Time, Ref: t.Ref(), Quantity: opening, Cost: flow})
		if cfg.Method == AverageCost {
			held = held.pool()
		}
	}
	return held, realized, nil
}
