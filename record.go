package bankroll

import (
	"context"
	"fmt"
	"iter"
	"strings"
)

// Source tags the provenance of a record, e.g. "flex" or "schwab-csv".
type Source string

func (s Source) String() string { return string(s) }

// RecordKind distinguishes executed trades from position assertions.
type RecordKind int

const (
	TradeRecord RecordKind = iota
	PositionRecord
)

func (k RecordKind) String() string {
	switch k {
	case TradeRecord:
		return "trade"
	case PositionRecord:
		return "position"
	}
	return fmt.Sprintf("RecordKind(%d)", int(k))
}

// ParseRecordKind accepts "trade" and "position" (and their plurals).
func ParseRecordKind(s string) (RecordKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trade", "trades", "execution", "executions":
		return TradeRecord, nil
	case "position", "positions", "snapshot":
		return PositionRecord, nil
	}
	return 0, fmt.Errorf("unknown record kind %q", s)
}

// Account identifies a brokerage account.
type Account struct {
	Broker string
	Number string
}

// ParseAccount parses the "broker:number" form. A string without a colon is a
// bare account number.
func ParseAccount(s string) Account {
	s = strings.TrimSpace(s)
	if broker, number, ok := strings.Cut(s, ":"); ok {
		return Account{Broker: strings.ToLower(broker), Number: number}
	}
	return Account{Number: s}
}

func (a Account) String() string {
	if a.Broker == "" {
		return a.Number
	}
	return a.Broker + ":" + a.Number
}

// IsZero reports whether the account has no number.
func (a Account) IsZero() bool { return a.Number == "" }

// Compare orders accounts by broker then number.
func (a Account) Compare(b Account) int {
	if c := strings.Compare(a.Broker, b.Broker); c != 0 {
		return c
	}
	return strings.Compare(a.Number, b.Number)
}

// RawRecord is the common intermediate form produced by every adapter.
//
// Fields maps the source's native field names to values; values may be
// strings, numbers, decimal.Decimal or time.Time. The Normalizer understands
// the vocabularies of the supported sources.
type RawRecord struct {
	Source  Source
	Kind    RecordKind
	Account Account
	Fields  map[string]any

	// Seq is the position of the record in its adapter's stream, set when
	// collected. It orders the records of one source that share a timestamp,
	// such as the trades of a day in a date-only export.
	Seq int
}

// Adapter produces the raw records of one source.
//
// Records yields a finite sequence of records. A non-nil error is terminal: it
// is reported as an adapter failure and every record the adapter produced in
// this run is discarded.
type Adapter interface {
	Source() Source
	Records(ctx context.Context) iter.Seq2[RawRecord, error]
}

// StaticAdapter serves an already materialized list of records.
type StaticAdapter struct {
	Name Source
	Recs []RawRecord
	Err  error // if set, reported after the records
}

func (a StaticAdapter) Source() Source { return a.Name }

func (a StaticAdapter) Records(ctx context.Context) iter.Seq2[RawRecord, error] {
	return func(yield func(RawRecord, error) bool) {
		for _, r := range a.Recs {
			if err := ctx.Err(); err != nil {
				yield(RawRecord{}, err)
				return
			}
			if r.Source == "" {
				r.Source = a.Name
			}
			if !yield(r, nil) {
				return
			}
		}
		if a.Err != nil {
			yield(RawRecord{}, a.Err)
		}
	}
}
