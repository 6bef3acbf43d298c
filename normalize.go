package bankroll

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Normalizer turns raw records into canonical trades and position snapshots.
// It is safe for concurrent use once the resolver has observed every record.
type Normalizer struct {
	cfg      Config
	resolver *Resolver
}

// NewNormalizer returns a normalizer resolving instruments with r.
func NewNormalizer(cfg Config, r *Resolver) *Normalizer {
	return &Normalizer{cfg: cfg, resolver: r}
}

// Observe feeds the resolver with the identifiers of rec. Every record of a run
// must be observed before the first one is normalized.
func (n *Normalizer) Observe(rec RawRecord) {
	n.resolver.Observe(canonicalize(rec.Fields).identifier())
}

// Rejected is a record the Normalizer could not turn into an entity.
type Rejected struct {
	Record RawRecord
	Err    error
}

// Normalize converts rec into a Trade or a PositionSnapshot. Errors are either
// *IdentifierError or *MalformedRecordError.
func (n *Normalizer) Normalize(rec RawRecord) (Entity, error) {
	f := canonicalize(rec.Fields)

	account := rec.Account
	if number := f.text(FieldAccount); number != "" {
		account.Number = number
	}
	if account.IsZero() {
		return nil, malformed(FieldAccount, nil, errors.New("missing account"))
	}

	in, err := n.resolver.Resolve(f.identifier())
	if err != nil {
		return nil, err
	}

	id := f.text(FieldID)
	if id == "" {
		id = syntheticID(rec.Kind, account, f)
	}

	var e Entity
	switch rec.Kind {
	case TradeRecord:
		var t Trade
		t, err = n.trade(rec.Source, id, account, in, f)
		t.Seq = rec.Seq
		e = t
	case PositionRecord:
		e, err = n.position(rec.Source, id, account, in, f)
	default:
		err = malformed("kind", rec.Kind, errors.New("unknown record kind"))
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (n *Normalizer) currency(in Instrument, f fields) (string, error) {
	currency := strings.ToUpper(f.text(FieldCurrency))
	if currency == "" {
		currency = in.Currency()
	}
	if currency == "" {
		currency = n.cfg.currency()
	}
	if err := ValidateCurrency(currency); err != nil {
		return "", malformed(FieldCurrency, currency, err)
	}
	return currency, nil
}

func (n *Normalizer) trade(source Source, id string, account Account, in Instrument, f fields) (Trade, error) {
	currency, err := n.currency(in, f)
	if err != nil {
		return Trade{}, err
	}
	in = in.WithCurrency(currency)

	when, ok, err := f.timestamp(n.cfg.location())
	if err != nil {
		return Trade{}, err
	}
	if !ok {
		return Trade{}, malformed(FieldTime, nil, errors.New("missing timestamp"))
	}

	qty, ok, err := f.decimal(FieldQuantity)
	if err != nil {
		return Trade{}, err
	}
	if !ok || qty.IsZero() {
		return Trade{}, malformed(FieldQuantity, f[FieldQuantity], errors.New("trade quantity must be nonzero"))
	}

	// the side signs unsigned quantities; a signed quantity must agree with it.
	side := Buy
	if qty.IsNegative() {
		side = Sell
	}
	if f.has(FieldSide) {
		declared, err := ParseSide(f.text(FieldSide))
		if err != nil {
			return Trade{}, malformed(FieldSide, f[FieldSide], err)
		}
		if declared == Buy && qty.IsNegative() {
			return Trade{}, malformed(FieldQuantity, f[FieldQuantity], fmt.Errorf("negative quantity on a %s", declared))
		}
		side = declared
	}
	quantity := Q(qty.Abs())
	if side == Sell {
		quantity = quantity.Neg()
	}

	price, ok, err := f.decimal(FieldPrice)
	if err != nil {
		return Trade{}, err
	}
	if !ok {
		// derive the price from the proceeds when the source only gives amounts.
		proceeds, has, err := f.decimal(FieldProceeds)
		if err != nil {
			return Trade{}, err
		}
		if !has {
			return Trade{}, malformed(FieldPrice, nil, errors.New("missing price"))
		}
		price = proceeds.Abs().Div(qty.Abs().Mul(in.Multiplier().Decimal()))
	}
	if price.IsNegative() {
		return Trade{}, malformed(FieldPrice, f[FieldPrice], errors.New("price must not be negative"))
	}

	fees := M(0, currency)
	for _, name := range []string{FieldCommission, FieldFees, FieldTaxes} {
		d, _, err := f.decimal(name)
		if err != nil {
			return Trade{}, err
		}
		fees = fees.Add(M(d.Abs(), currency))
	}

	return Trade{
		ID:         id,
		Source:     source,
		Account:    account,
		Instrument: in,
		Side:       side,
		Quantity:   quantity,
		Price:      M(price, currency),
		Fees:       fees,
		Time:       when,
	}, nil
}

func (n *Normalizer) position(source Source, id string, account Account, in Instrument, f fields) (PositionSnapshot, error) {
	currency, err := n.currency(in, f)
	if err != nil {
		return PositionSnapshot{}, err
	}
	in = in.WithCurrency(currency)

	when, _, err := f.timestamp(n.cfg.location())
	if err != nil {
		return PositionSnapshot{}, err
	}
	if !f.has(FieldTime) && f.has(FieldDate) {
		// a position reported for a day holds at the end of that day.
		when = when.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	qty, ok, err := f.decimal(FieldQuantity)
	if err != nil {
		return PositionSnapshot{}, err
	}
	if !ok {
		return PositionSnapshot{}, malformed(FieldQuantity, nil, errors.New("missing quantity"))
	}
	quantity := Q(qty)

	p := PositionSnapshot{
		ID:         id,
		Source:     source,
		Account:    account,
		Instrument: in,
		Quantity:   quantity,
		Time:       when,
	}

	if cost, ok, err := f.decimal(FieldCostBasis); err != nil {
		return PositionSnapshot{}, err
	} else if ok {
		p.CostBasis = M(cost, currency)
	} else if avg, ok, err := f.decimal(FieldAverageCost); err != nil {
		return PositionSnapshot{}, err
	} else if ok {
		p.CostBasis = M(avg, currency).Mul(quantity).Mul(in.Multiplier()).Round()
	}

	for _, name := range []string{FieldMarketPrice, FieldPrice} {
		price, ok, err := f.decimal(name)
		if err != nil {
			return PositionSnapshot{}, err
		}
		if !ok {
			continue
		}
		if price.IsNegative() {
			return PositionSnapshot{}, malformed(name, f[name], errors.New("price must not be negative"))
		}
		p.Price = M(price, currency)
		break
	}
	return p, nil
}

// NormalizeAll observes then normalizes recs in order. It never fails: records
// that cannot be normalized are returned as rejected with their error.
func (n *Normalizer) NormalizeAll(recs []RawRecord) (trades []Trade, snapshots []PositionSnapshot, rejected []Rejected) {
	for _, rec := range recs {
		n.Observe(rec)
	}
	for _, rec := range recs {
		e, err := n.Normalize(rec)
		if err != nil {
			rejected = append(rejected, Rejected{Record: rec, Err: err})
			continue
		}
		switch v := e.(type) {
		case Trade:
			trades = append(trades, v)
		case PositionSnapshot:
			snapshots = append(snapshots, v)
		}
	}
	return trades, snapshots, rejected
}
