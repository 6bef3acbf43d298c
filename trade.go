package bankroll

import (
	"fmt"
	"strings"
	"time"
)

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// ParseSide understands the action vocabularies of the supported brokers:
// "BUY", "BOT", "Sell to Close", "YOU SOLD", ...
func ParseSide(s string) (Side, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	switch u {
	case "B", "BUY", "BOT", "BOUGHT":
		return Buy, nil
	case "S", "SELL", "SLD", "SOLD":
		return Sell, nil
	}
	switch {
	case strings.Contains(u, "BUY"), strings.Contains(u, "BOUGHT"):
		return Buy, nil
	case strings.Contains(u, "SELL"), strings.Contains(u, "SOLD"):
		return Sell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// Entity is a normalized record: a Trade or a PositionSnapshot.
type Entity interface {
	// Ref returns "source:id", unique within a run.
	Ref() string
	entity()
}

// Trade is an executed transaction. It is created by the Normalizer and never
// mutated afterwards.
type Trade struct {
	ID         string
	Source     Source
	Account    Account
	Instrument Instrument
	Side       Side
	Quantity   Quantity // signed, nonzero: positive for buys
	Price      Money    // per unit, non-negative
	Fees       Money    // commission and fees, non-negative
	Time       time.Time
	Seq        int // order within the source, see RawRecord.Seq
}

func (Trade) entity() {}

func (t Trade) Ref() string { return string(t.Source) + ":" + t.ID }

// Key returns the instrument key of the trade.
func (t Trade) Key() Key { return t.Instrument.Key() }

// Currency returns the currency the trade settles in.
func (t Trade) Currency() string { return t.Price.Currency() }

// Gross returns |quantity| × price × multiplier.
func (t Trade) Gross() Money {
	return t.Price.Mul(t.Quantity.Abs()).Mul(t.Instrument.Multiplier())
}

// sameContent reports whether two trades carry the same economic content.
func (t Trade) sameContent(o Trade) bool {
	return t.Account == o.Account &&
		t.Instrument.Key() == o.Instrument.Key() &&
		t.Side == o.Side &&
		t.Quantity.Equal(o.Quantity) &&
		t.Price.Equal(o.Price) &&
		t.Fees.Equal(o.Fees) &&
		t.Time.Equal(o.Time)
}

// MarshalJSON implements the json.Marshaler interface for Trade.
func (t Trade) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("source", t.Source)
	w.Append("id", t.ID)
	w.Append("account", t.Account.String())
	w.Append("key", t.Instrument.Key())
	w.Append("time", t.Time.Format(time.RFC3339))
	w.Append("side", t.Side)
	w.Append("quantity", t.Quantity)
	w.Append("price", t.Price.Decimal())
	w.Append("currency", t.Currency())
	if !t.Fees.IsZero() {
		w.Append("fees", t.Fees.Decimal())
	}
	return w.MarshalJSON()
}

// PositionSnapshot is a source's direct assertion of the quantity held in an
// account. It only cross-validates the replayed ledger.
type PositionSnapshot struct {
	ID         string
	Source     Source
	Account    Account
	Instrument Instrument
	Quantity   Quantity
	CostBasis  Money     // zero when not reported
	Price      Money     // market price when reported
	Time       time.Time // zero when the source does not date it
}

func (PositionSnapshot) entity() {}

func (p PositionSnapshot) Ref() string { return string(p.Source) + ":" + p.ID }

// Key returns the instrument key of the snapshot.
func (p PositionSnapshot) Key() Key { return p.Instrument.Key() }

// group identifies the ledger a record belongs to.
type group struct {
	Account Account
	Key     Key
}

func (g group) String() string { return g.Account.String() + "/" + string(g.Key) }

func (g group) compare(o group) int {
	if c := g.Account.Compare(o.Account); c != 0 {
		return c
	}
	return strings.Compare(string(g.Key), string(o.Key))
}
