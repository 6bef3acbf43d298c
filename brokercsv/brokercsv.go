// Package brokercsv decodes the CSV exports of retail brokers.
//
// Exports are not plain CSV files: they start with title lines, end with
// totals and disclaimers, and mix trades with dividends, transfers and fees.
// A Format describes how to find the header row of an export and which rows
// are records. Native column names are kept as record fields: the normalizer
// understands them, and Format.Columns renames the few it does not.
package brokercsv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"
	"strings"

	"github.com/etnz/bankroll"
)

// ErrNoHeader is returned when no row of the export looks like the header of
// its format.
var ErrNoHeader = errors.New("header row not found")

// Format describes the layout of one kind of export.
type Format struct {
	Name string
	Kind bankroll.RecordKind
	// Header lists columns that must all be present in the header row.
	Header []string
	// Columns renames native columns to canonical field names.
	Columns map[string]string
	// Keep selects the rows that are records. Nil keeps every row.
	Keep func(row map[string]string) bool
}

// isTrade keeps rows whose column names a buy or a sell.
func isTrade(column string) func(map[string]string) bool {
	return func(row map[string]string) bool {
		_, err := bankroll.ParseSide(row[column])
		return err == nil
	}
}

// hasSymbol keeps rows holding a security, dropping cash and total lines.
func hasSymbol(row map[string]string) bool {
	s := strings.ToUpper(strings.TrimSpace(row["Symbol"]))
	switch {
	case s == "", strings.Contains(s, "TOTAL"), strings.Contains(s, "CASH"), strings.HasPrefix(s, "PENDING"):
		return false
	case strings.HasSuffix(s, "**"): // money market sweep
		return false
	}
	return true
}

var (
	// Schwab is the transaction history export of Charles Schwab.
	Schwab = Format{
		Name:   "schwab",
		Kind:   bankroll.TradeRecord,
		Header: []string{"Date", "Action", "Symbol", "Quantity", "Price"},
		Keep:   isTrade("Action"),
	}
	// SchwabPositions is the positions export of Charles Schwab.
	SchwabPositions = Format{
		Name:    "schwab-positions",
		Kind:    bankroll.PositionRecord,
		Header:  []string{"Symbol", "Price"},
		Columns: map[string]string{"Qty (Quantity)": bankroll.FieldQuantity, "Price": bankroll.FieldMarketPrice, "Security Type": ""},
		Keep:    hasSymbol,
	}
	// Fidelity is the account history export of Fidelity.
	Fidelity = Format{
		Name:    "fidelity",
		Kind:    bankroll.TradeRecord,
		Header:  []string{"Run Date", "Action", "Symbol", "Quantity"},
		Columns: map[string]string{"Account": ""},
		Keep:    isTrade("Action"),
	}
	// FidelityPositions is the portfolio positions export of Fidelity.
	FidelityPositions = Format{
		Name:    "fidelity-positions",
		Kind:    bankroll.PositionRecord,
		Header:  []string{"Account Number", "Symbol", "Quantity"},
		Columns: map[string]string{"Last Price": bankroll.FieldMarketPrice, "Cost Basis Total": bankroll.FieldCostBasis, "Average Cost Basis": ""},
		Keep:    hasSymbol,
	}
	// Vanguard is the transaction history export of Vanguard brokerage accounts.
	Vanguard = Format{
		Name:    "vanguard",
		Kind:    bankroll.TradeRecord,
		Header:  []string{"Account Number", "Trade Date", "Transaction Type", "Symbol", "Shares"},
		Columns: map[string]string{"Commissions and Fees": bankroll.FieldFees, "Principal Amount": "", "Transaction Description": ""},
		Keep:    isTrade("Transaction Type"),
	}
)

// Formats lists the built-in formats by name.
var Formats = map[string]Format{
	Schwab.Name:            Schwab,
	SchwabPositions.Name:   SchwabPositions,
	Fidelity.Name:          Fidelity,
	FidelityPositions.Name: FidelityPositions,
	Vanguard.Name:          Vanguard,
}

// Lookup returns the built-in format called name.
func Lookup(name string) (Format, error) {
	f, ok := Formats[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Format{}, fmt.Errorf("unknown csv format %q", name)
	}
	return f, nil
}

// Adapter reads one CSV export.
type Adapter struct {
	Name    bankroll.Source
	Account bankroll.Account // used when rows do not name their account
	Format  Format
	R       io.Reader
}

func (a *Adapter) Source() bankroll.Source { return a.Name }

// Records yields the records of the export, skipping everything before the
// header row and every row the format does not keep.
func (a *Adapter) Records(ctx context.Context) iter.Seq2[bankroll.RawRecord, error] {
	return func(yield func(bankroll.RawRecord, error) bool) {
		r := csv.NewReader(a.R)
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		r.TrimLeadingSpace = true

		var header []string
		for {
			if err := ctx.Err(); err != nil {
				yield(bankroll.RawRecord{}, err)
				return
			}
			row, err := r.Read()
			if err == io.EOF {
				if header == nil {
					yield(bankroll.RawRecord{}, fmt.Errorf("%s: %w", a.Format.Name, ErrNoHeader))
				}
				return
			}
			if err != nil {
				yield(bankroll.RawRecord{}, fmt.Errorf("%s: %w", a.Format.Name, err))
				return
			}

			if header == nil {
				if a.isHeader(row) {
					header = trim(row)
				}
				continue
			}
			values, ok := a.row(header, row)
			if !ok {
				continue
			}
			if !yield(a.record(values), nil) {
				return
			}
		}
	}
}

func (a *Adapter) isHeader(row []string) bool {
	cols := trim(row)
	for _, h := range a.Format.Header {
		if !slices.Contains(cols, h) {
			return false
		}
	}
	return true
}

// row maps a data row onto the header. Short rows are footers or blank lines.
func (a *Adapter) row(header, row []string) (map[string]string, bool) {
	if len(row) < len(header) {
		return nil, false
	}
	values := make(map[string]string, len(header))
	for i, name := range header {
		if name == "" {
			continue
		}
		values[name] = strings.TrimSpace(row[i])
	}
	if a.Format.Keep != nil && !a.Format.Keep(values) {
		return nil, false
	}
	return values, true
}

func (a *Adapter) record(values map[string]string) bankroll.RawRecord {
	fields := make(map[string]any, len(values))
	for name, v := range values {
		if canonical, ok := a.Format.Columns[name]; ok {
			if canonical == "" {
				continue
			}
			name = canonical
		}
		fields[name] = v
	}
	return bankroll.RawRecord{
		Source:  a.Name,
		Kind:    a.Format.Kind,
		Account: a.Account,
		Fields:  fields,
	}
}

func trim(row []string) []string {
	out := make([]string, len(row))
	for i, s := range row {
		out[i] = strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
	}
	return out
}
