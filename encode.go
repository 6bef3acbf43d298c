package bankroll

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// EncodeResult writes a run result as JSONL: one line per holding, then one
// per instrument total, then one per diagnostic. Each line has a "type".
func EncodeResult(w io.Writer, res Result) error {
	bw := bufio.NewWriter(w)
	write := func(kind string, v any) error {
		var o jsonObjectWriter
		o.Append("type", kind)
		o.EmbedFrom(v)
		line, err := o.MarshalJSON()
		if err != nil {
			return err
		}
		bw.Write(line)
		bw.WriteByte('\n')
		return nil
	}

	if err := write("meta", res.View.Meta); err != nil {
		return err
	}
	for _, h := range res.View.Holdings {
		if err := write("holding", h); err != nil {
			return fmt.Errorf("could not encode holding %s/%s: %w", h.Account, h.Key(), err)
		}
	}
	for _, t := range res.View.Totals {
		if err := write("total", t); err != nil {
			return fmt.Errorf("could not encode total %s: %w", t.Key(), err)
		}
	}
	for _, d := range res.Diagnostics {
		if err := write("diagnostic", d); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// EncodeTrades writes trades as JSONL, one trade per line.
func EncodeTrades(w io.Writer, trades []Trade) error {
	bw := bufio.NewWriter(w)
	for _, t := range trades {
		line, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("could not encode trade %s: %w", t.Ref(), err)
		}
		bw.Write(line)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// MarshalJSON implements the json.Marshaler interface for Metadata.
func (m Metadata) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("method", m.Method.String())
	w.Append("mode", m.Mode.String())
	w.Optional("partial", m.Partial)
	if len(m.FailedSources) > 0 {
		w.Append("failedSources", m.FailedSources)
	}
	w.Optional("discrepancies", m.Discrepancies)
	w.Optional("conflicts", m.Conflicts)
	w.Optional("rejected", m.Rejected)
	w.Optional("abortedLedgers", m.AbortedLedgers)
	return w.MarshalJSON()
}

// MarshalJSON implements the json.Marshaler interface for InstrumentTotal.
func (t InstrumentTotal) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("key", t.Key())
	w.Append("accounts", t.Accounts)
	w.Append("quantity", t.Quantity)
	w.Append("currency", t.Instrument.Currency())
	w.Append("costBasis", t.CostBasis.Decimal())
	w.Append("realized", t.Realized.Decimal())
	if t.HasPrice {
		w.Append("marketValue", t.MarketValue.Decimal())
		w.Append("unrealized", t.Unrealized.Decimal())
	}
	return w.MarshalJSON()
}

// JSONLAdapter reads raw records from a JSONL stream, one record per line:
//
//	{"kind":"trade","account":"ibkr:U123","symbol":"AAPL","quantity":10,"price":100,"time":"2025-01-17T10:00:00Z"}
//
// "kind" defaults to trade and "account" to Account. Every other member is a
// field of the record.
type JSONLAdapter struct {
	Name    Source
	Account Account
	R       io.Reader
}

func (a JSONLAdapter) Source() Source { return a.Name }

func (a JSONLAdapter) Records(ctx context.Context) iter.Seq2[RawRecord, error] {
	return func(yield func(RawRecord, error) bool) {
		scanner := bufio.NewScanner(a.R)
		n := 0
		for scanner.Scan() {
			n++
			if err := ctx.Err(); err != nil {
				yield(RawRecord{}, err)
				return
			}
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			rec, err := a.decode(line)
			if err != nil {
				yield(RawRecord{}, fmt.Errorf("format error on line %d: %w", n, err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(RawRecord{}, err)
		}
	}
}

func (a JSONLAdapter) decode(line []byte) (RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return RawRecord{}, err
	}
	rec := RawRecord{Source: a.Name, Kind: TradeRecord, Account: a.Account, Fields: fields}
	if k, ok := fields["kind"].(string); ok {
		kind, err := ParseRecordKind(k)
		if err != nil {
			return RawRecord{}, err
		}
		rec.Kind = kind
		delete(fields, "kind")
	}
	if acc, ok := fields["account"].(string); ok {
		rec.Account = ParseAccount(acc)
		if rec.Account.Broker == "" {
			rec.Account.Broker = a.Account.Broker
		}
		delete(fields, "account")
	}
	return rec, nil
}
