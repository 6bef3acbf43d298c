// Package liveapi decodes the JSON documents of a broker's live trading API.
//
// Documents are arrays of objects, one per position or per execution. A
// Mapping tells, with jsonpath expressions, where each canonical field lives
// in an item. The default mappings follow the Client Portal API of
// Interactive Brokers: Positions for portfolio/{accountId}/positions and
// Trades for iserver/account/trades.
package liveapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"maps"
	"slices"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/bankroll"
)

// Mapping locates records in a document.
type Mapping struct {
	// Items selects the records, e.g. "$[*]".
	Items string
	// Fields maps canonical field names to jsonpath expressions evaluated on
	// each item. An expression that selects nothing leaves the field unset.
	Fields map[string]string
}

// Positions maps the portfolio positions endpoint.
var Positions = Mapping{
	Items: "$[*]",
	Fields: map[string]string{
		bankroll.FieldAccount:     "$.acctId",
		bankroll.FieldSymbol:      "$.ticker",
		bankroll.FieldDescription: "$.contractDesc",
		bankroll.FieldAssetClass:  "$.assetClass",
		bankroll.FieldCurrency:    "$.currency",
		bankroll.FieldExpiry:      "$.expiry",
		bankroll.FieldStrike:      "$.strike",
		bankroll.FieldRight:       "$.putOrCall",
		bankroll.FieldMultiplier:  "$.multiplier",
		bankroll.FieldQuantity:    "$.position",
		bankroll.FieldAverageCost: "$.avgPrice",
		bankroll.FieldMarketPrice: "$.mktPrice",
	},
}

// Trades maps the executions endpoint. trade_time_r is in milliseconds since
// the epoch.
var Trades = Mapping{
	Items: "$[*]",
	Fields: map[string]string{
		bankroll.FieldID:          "$.execution_id",
		bankroll.FieldAccount:     "$.account",
		bankroll.FieldSymbol:      "$.symbol",
		bankroll.FieldAssetClass:  "$.sec_type",
		bankroll.FieldSide:        "$.side",
		bankroll.FieldQuantity:    "$.size",
		bankroll.FieldPrice:       "$.price",
		bankroll.FieldCommission:  "$.commission",
		bankroll.FieldTime:        "$.trade_time_r",
		bankroll.FieldDescription: "$.contract_description_1",
	},
}

// Fetcher returns the JSON document to decode.
type Fetcher interface {
	Fetch(ctx context.Context) (any, error)
}

// Document is a Fetcher reading an already downloaded document.
type Document struct {
	R io.Reader
}

func (d Document) Fetch(ctx context.Context) (any, error) {
	return decode(d.R)
}

// decode parses JSON keeping numbers as json.Number, so amounts are never
// rounded through float64.
func decode(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid json document: %w", err)
	}
	return v, nil
}

// Adapter turns a live API document into raw records.
type Adapter struct {
	Name    bankroll.Source // defaults to "live"
	Account bankroll.Account
	Kind    bankroll.RecordKind
	Mapping Mapping // defaults to Positions or Trades according to Kind
	Fetcher Fetcher
}

func (a *Adapter) Source() bankroll.Source {
	if a.Name == "" {
		return "live"
	}
	return a.Name
}

func (a *Adapter) mapping() Mapping {
	if a.Mapping.Items != "" {
		return a.Mapping
	}
	if a.Kind == bankroll.TradeRecord {
		return Trades
	}
	return Positions
}

// Records fetches the document once and yields one record per item.
func (a *Adapter) Records(ctx context.Context) iter.Seq2[bankroll.RawRecord, error] {
	return func(yield func(bankroll.RawRecord, error) bool) {
		doc, err := a.Fetcher.Fetch(ctx)
		if err != nil {
			yield(bankroll.RawRecord{}, err)
			return
		}
		items, err := Extract(a.mapping(), doc)
		if err != nil {
			yield(bankroll.RawRecord{}, err)
			return
		}
		recs := make([]bankroll.RawRecord, len(items))
		for i, fields := range items {
			recs[i] = bankroll.RawRecord{Kind: a.Kind, Account: a.Account, Fields: fields}
		}
		for rec, err := range (bankroll.StaticAdapter{Name: a.Source(), Recs: recs}).Records(ctx) {
			if !yield(rec, err) {
				return
			}
		}
	}
}

// Extract applies m to doc and returns the fields of every item.
func Extract(m Mapping, doc any) ([]map[string]any, error) {
	selected, err := jsonpath.Get(m.Items, doc)
	if err != nil {
		return nil, fmt.Errorf("cannot select items with %q: %w", m.Items, err)
	}
	items, ok := selected.([]any)
	if !ok {
		items = []any{selected}
	}

	// evaluate fields in a stable order
	names := slices.Sorted(maps.Keys(m.Fields))
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		fields := make(map[string]any, len(names))
		for _, name := range names {
			v, err := jsonpath.Get(m.Fields[name], item)
			if err != nil {
				// unknown key: the field is absent from this item
				continue
			}
			if list, ok := v.([]any); ok {
				if len(list) == 0 {
					continue
				}
				v = list[0]
			}
			if v == nil {
				continue
			}
			fields[name] = v
		}
		out = append(out, fields)
	}
	return out, nil
}

// compact re-encodes a document, for logging.
func compact(doc any) string {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	if err := enc.Encode(doc); err != nil {
		return fmt.Sprint(doc)
	}
	return string(bytes.TrimSpace(b.Bytes()))
}
