// Package flex decodes Interactive Brokers Flex query reports.
//
// A Flex report is an XML document:
//
//	<FlexQueryResponse queryName="trades" type="AF">
//	  <FlexStatements count="1">
//	    <FlexStatement accountId="U1234567" fromDate="20250101" toDate="20250131">
//	      <Trades>
//	        <Trade tradeID="1" symbol="AAPL" assetCategory="STK" quantity="10" .../>
//	      </Trades>
//	      <OpenPositions>
//	        <OpenPosition symbol="AAPL" position="6" markPrice="130" reportDate="20250131" .../>
//	      </OpenPositions>
//	    </FlexStatement>
//	  </FlexStatements>
//	</FlexQueryResponse>
//
// Every attribute of a Trade, TradeConfirm or OpenPosition element becomes a
// field of a raw record. The document is streamed: elements outside of these
// are skipped without being held in memory.
package flex

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/etnz/bankroll"
)

// Broker is the broker name of Flex accounts.
const Broker = "ibkr"

// ErrStatementFailed is returned when the document is an error response
// instead of a statement.
var ErrStatementFailed = errors.New("flex statement failed")

// Adapter reads one Flex report.
type Adapter struct {
	Name bankroll.Source // defaults to "flex"
	R    io.Reader
}

// New returns an adapter reading the Flex report r.
func New(r io.Reader) *Adapter {
	return &Adapter{Name: "flex", R: r}
}

func (a *Adapter) Source() bankroll.Source {
	if a.Name == "" {
		return "flex"
	}
	return a.Name
}

// Records streams the executions and open positions of every statement in the
// report.
func (a *Adapter) Records(ctx context.Context) iter.Seq2[bankroll.RawRecord, error] {
	return func(yield func(bankroll.RawRecord, error) bool) {
		dec := xml.NewDecoder(a.R)
		var account bankroll.Account
		for {
			if err := ctx.Err(); err != nil {
				yield(bankroll.RawRecord{}, err)
				return
			}
			tok, err := dec.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(bankroll.RawRecord{}, fmt.Errorf("invalid flex document: %w", err))
				return
			}
			start, ok := tok.(xml.StartElement)
			if !ok {
				continue
			}

			switch start.Name.Local {
			case "FlexStatementResponse":
				yield(bankroll.RawRecord{}, statementError(dec, start))
				return
			case "FlexStatement":
				account = bankroll.Account{Broker: Broker, Number: attr(start, "accountId")}
				continue
			}

			kind, ok := recordKind(start)
			if !ok {
				continue
			}
			rec := bankroll.RawRecord{
				Source:  a.Source(),
				Kind:    kind,
				Account: account,
				Fields:  make(map[string]any, len(start.Attr)),
			}
			for _, at := range start.Attr {
				rec.Fields[at.Name.Local] = at.Value
			}
			if err := dec.Skip(); err != nil {
				yield(bankroll.RawRecord{}, fmt.Errorf("invalid flex document: %w", err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// recordKind tells whether an element is a record, and of which kind.
//
// Trades can be reported at several levels of detail: only executions are
// records, orders and closed lots would count the same quantity twice. Open
// positions are records at the summary level only.
func recordKind(e xml.StartElement) (bankroll.RecordKind, bool) {
	level := strings.ToUpper(attr(e, "levelOfDetail"))
	switch e.Name.Local {
	case "Trade", "TradeConfirm":
		return bankroll.TradeRecord, level == "" || level == "EXECUTION"
	case "OpenPosition":
		return bankroll.PositionRecord, level == "" || level == "SUMMARY"
	}
	return 0, false
}

func attr(e xml.StartElement, name string) string {
	for _, a := range e.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// statementError decodes the body of an error response.
func statementError(dec *xml.Decoder, start xml.StartElement) error {
	var resp struct {
		Status       string `xml:"Status"`
		ErrorCode    string `xml:"ErrorCode"`
		ErrorMessage string `xml:"ErrorMessage"`
	}
	if err := dec.DecodeElement(&resp, &start); err != nil {
		return fmt.Errorf("invalid flex document: %w", err)
	}
	return fmt.Errorf("%w: %s %s: %s", ErrStatementFailed, resp.Status, resp.ErrorCode, resp.ErrorMessage)
}
