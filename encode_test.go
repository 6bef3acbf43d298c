package bankroll

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONLAdapter(t *testing.T) {
	input := `{"kind":"trade","account":"ibkr:U1234567","symbol":"AAPL","quantity":10,"price":100.25,"time":"2025-01-17T10:00:00Z"}

{"kind":"position","account":"U7654321","symbol":"MSFT","position":"5"}
{"symbol":"GOOG","quantity":1,"price":150,"date":"2025-01-17"}
`
	a := JSONLAdapter{Name: "jsonl", Account: Account{Broker: "ibkr", Number: "U0000000"}, R: strings.NewReader(input)}

	var recs []RawRecord
	for rec, err := range a.Records(context.Background()) {
		if err != nil {
			t.Fatalf("Records() unexpected error: %v", err)
		}
		recs = append(recs, rec)
	}
	if len(recs) != 3 {
		t.Fatalf("Records() yielded %d records, want 3", len(recs))
	}

	testCases := []struct {
		kind    RecordKind
		account Account
	}{
		{TradeRecord, ibkr},
		{PositionRecord, Account{Broker: "ibkr", Number: "U7654321"}},
		{TradeRecord, Account{Broker: "ibkr", Number: "U0000000"}},
	}
	for i, tc := range testCases {
		if recs[i].Kind != tc.kind || recs[i].Account != tc.account {
			t.Errorf("record %d = %s %v, want %s %v", i, recs[i].Kind, recs[i].Account, tc.kind, tc.account)
		}
		if _, ok := recs[i].Fields["kind"]; ok {
			t.Errorf("record %d still carries the kind field", i)
		}
	}
	if _, ok := recs[0].Fields["price"].(json.Number); !ok {
		t.Errorf("price decoded as %T, want json.Number", recs[0].Fields["price"])
	}

	trades, snaps, rejected := NewNormalizer(DefaultConfig(), NewResolver("USD")).NormalizeAll(recs)
	if len(trades) != 2 || len(snaps) != 1 || len(rejected) != 0 {
		t.Fatalf("NormalizeAll() = %d trades %d snapshots %v", len(trades), len(snaps), rejected)
	}
	if !trades[0].Price.Equal(USD(100.25)) {
		t.Errorf("Price = %v, want 100.25", trades[0].Price)
	}
}

func TestJSONLAdapter_FormatError(t *testing.T) {
	a := JSONLAdapter{Name: "jsonl", R: strings.NewReader("{\"symbol\":\"AAPL\"}\n{not json}\n")}
	n := 0
	var last error
	for _, err := range a.Records(context.Background()) {
		if err != nil {
			last = err
			break
		}
		n++
	}
	if n != 1 || last == nil || !strings.Contains(last.Error(), "line 2") {
		t.Errorf("Records() = %d records, error %v, want 1 record then an error on line 2", n, last)
	}
}

func TestEncodeResult(t *testing.T) {
	cfg := DefaultConfig()
	trades := []Trade{
		trade("flex", "1", ibkr, AAPL, day(17, 10, 0), 10, 100, 1),
		trade("flex", "2", ibkr, AAPL, day(18, 10, 0), -4, 120, 1),
	}
	entries, _ := Replay(cfg, trades)
	diags := Reconcile(cfg, entries, []PositionSnapshot{{ID: "p", Source: "live", Account: ibkr, Instrument: AAPL, Quantity: Q(5)}})
	res := Result{
		Trades:      trades,
		Entries:     entries,
		Diagnostics: diags,
		View:        Aggregate(cfg, entries, nil, diags, Prices{AAPL.Key(): USD(130)}),
	}

	var buf bytes.Buffer
	if err := EncodeResult(&buf, res); err != nil {
		t.Fatalf("EncodeResult() unexpected error: %v", err)
	}
	want := `{"type":"meta","method":"fifo","mode":"strict","discrepancies":1}
{"type":"holding","account":"ibkr:U1234567","key":"STK:AAPL","basis":"ledger","quantity":6,"currency":"USD","costBasis":600.6,"realized":78.6,"price":130,"marketValue":780,"unrealized":179.4,"flags":["ReconciliationDiscrepancy"]}
{"type":"total","key":"STK:AAPL","accounts":1,"quantity":6,"currency":"USD","costBasis":600.6,"realized":78.6,"marketValue":780,"unrealized":179.4}
{"type":"diagnostic","kind":"ReconciliationDiscrepancy","source":"live","account":"ibkr:U1234567","key":"STK:AAPL","refs":["live:p"],"error":"` + diags[0].Err.Error() + `"}
`
	if got := buf.String(); got != want {
		t.Errorf("EncodeResult() =\n%s\nwant\n%s", got, want)
	}
}

func TestEncodeTrades(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeTrades(&buf, []Trade{trade("flex", "1", ibkr, AAPL, day(17, 10, 0), 10, 100, 1)})
	if err != nil {
		t.Fatalf("EncodeTrades() unexpected error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON line %q: %v", buf.String(), err)
	}
	if got["key"] != "STK:AAPL" || got["quantity"] != 10.0 || got["fees"] != 1.0 {
		t.Errorf("EncodeTrades() = %v", got)
	}
}
