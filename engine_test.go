package bankroll

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func flexAdapter() StaticAdapter {
	return StaticAdapter{Name: "flex", Recs: []RawRecord{
		record("", ibkr, map[string]any{"tradeID": "T1", "symbol": "AAPL", "dateTime": "20250117;100000", "quantity": "10", "tradePrice": "100", "ibCommission": "-1"}),
		record("", ibkr, map[string]any{"tradeID": "T2", "symbol": "AAPL", "dateTime": "20250118;100000", "quantity": "-4", "tradePrice": "120", "ibCommission": "-1"}),
	}}
}

func liveAdapter(held float64) StaticAdapter {
	return StaticAdapter{Name: "live", Recs: []RawRecord{
		record("", ibkr, map[string]any{"execution_id": "L1", "symbol": "AAPL", "time": "2025-01-17T10:00:00.5Z", "side": "B", "size": "10", "price": "100", "commission": "1"}),
		position("", ibkr, map[string]any{"conid": "265598", "ticker": "AAPL", "position": held, "mktPrice": 130}),
	}}
}

func prioritized() Config {
	cfg := DefaultConfig()
	cfg.SourcePriority = []Source{"flex", "live"}
	return cfg
}

func TestReconciler_Run(t *testing.T) {
	cfg := prioritized()
	var logs bytes.Buffer
	r, err := NewReconciler(cfg, nil, zerolog.New(&logs))
	if err != nil {
		t.Fatalf("NewReconciler() unexpected error: %v", err)
	}

	failing := StaticAdapter{
		Name: "schwab",
		Recs: []RawRecord{record("", schwab, map[string]any{"Symbol": "MSFT", "Quantity": "1", "Price": "400", "Date": "01/17/2025"})},
		Err:  errors.New("connection reset"),
	}
	res, err := r.Run(context.Background(), flexAdapter(), liveAdapter(6), failing)
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	if got := refs(res.Trades); !slices.Equal(got, []string{"flex:T1", "flex:T2"}) {
		t.Errorf("Trades = %v, want the flex trades only", got)
	}
	h, ok := res.View.Holding(ibkr, AAPL.Key())
	if !ok {
		t.Fatal("missing AAPL holding")
	}
	if !h.Quantity.Equal(Q(6)) || !h.CostBasis.Equal(USD(600.60)) || !h.Realized.Equal(USD(78.60)) {
		t.Errorf("holding = %v %v %v, want 6 600.60 78.60", h.Quantity, h.CostBasis, h.Realized)
	}
	if !h.HasPrice || !h.MarketValue.Equal(USD(780)) {
		t.Errorf("MarketValue = %v, want 780 from the snapshot price", h.MarketValue)
	}
	if _, ok := res.View.Holding(schwab, MSFT.Key()); ok {
		t.Errorf("the failed adapter's records must be discarded")
	}
	if !res.View.Meta.Partial || !slices.Equal(res.View.Meta.FailedSources, []Source{"schwab"}) {
		t.Errorf("Meta = %+v, want partial with schwab failed", res.View.Meta)
	}
	if n := res.Diagnostics.Count(ReconciliationDiscrepancy); n != 0 {
		t.Errorf("unexpected discrepancies: %v", res.Diagnostics)
	}
	if d := res.Diagnostics.Of(AdapterFailure); len(d) != 1 || !errors.Is(d[0], ErrAdapterFailure) {
		t.Errorf("AdapterFailure diagnostics = %v", d)
	}
	if !strings.Contains(logs.String(), `"message":"adapter failed"`) {
		t.Errorf("adapter failure was not logged: %s", logs.String())
	}
}

func TestReconciler_RunDiscrepancy(t *testing.T) {
	r, err := NewReconciler(prioritized(), nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	res, err := r.Run(context.Background(), flexAdapter(), liveAdapter(8))
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	h, _ := res.View.Holding(ibkr, AAPL.Key())
	if !h.Quantity.Equal(Q(6)) {
		t.Errorf("Quantity = %v, want the replayed 6", h.Quantity)
	}
	if !slices.Contains(h.Flags, ReconciliationDiscrepancy) {
		t.Errorf("Flags = %v, want a discrepancy", h.Flags)
	}
}

func TestReconciler_RunRejectsMalformed(t *testing.T) {
	r, err := NewReconciler(DefaultConfig(), nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	bad := StaticAdapter{Name: "csv", Recs: []RawRecord{
		record("", schwab, map[string]any{"Symbol": "AAPL", "Quantity": "0", "Price": "100", "Date": "01/17/2025"}),
		record("", schwab, map[string]any{"Symbol": "AAPL", "Quantity": "3", "Price": "100", "Date": "01/17/2025"}),
	}}
	res, err := r.Run(context.Background(), bad)
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if len(res.Rejected) != 1 || res.View.Meta.Rejected != 1 {
		t.Errorf("rejected %d records (meta %d), want 1", len(res.Rejected), res.View.Meta.Rejected)
	}
	if h, _ := res.View.Holding(schwab, AAPL.Key()); !h.Quantity.Equal(Q(3)) {
		t.Errorf("Quantity = %v, want 3", h.Quantity)
	}
}

func TestReconciler_RunSameDayTrades(t *testing.T) {
	row := func(date, action string, qty, price string) RawRecord {
		return record("", schwab, map[string]any{"Date": date, "Action": action, "Symbol": "AAPL", "Quantity": qty, "Price": price})
	}
	testCases := []struct {
		name string
		recs []RawRecord
	}{
		{
			name: "oldest first",
			recs: []RawRecord{
				row("01/16/2025", "Buy", "5", "90"),
				row("01/17/2025", "Buy", "10", "100"),
				row("01/17/2025", "Sell", "10", "120"),
				row("01/18/2025", "Sell", "5", "120"),
			},
		},
		{
			name: "newest first",
			recs: []RawRecord{
				row("01/18/2025", "Sell", "5", "120"),
				row("01/17/2025", "Sell", "10", "120"),
				row("01/17/2025", "Buy", "10", "100"),
				row("01/16/2025", "Buy", "5", "90"),
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := NewReconciler(DefaultConfig(), nil, zerolog.Nop())
			if err != nil {
				t.Fatal(err)
			}
			res, err := r.Run(context.Background(), StaticAdapter{Name: "schwab", Recs: tc.recs})
			if err != nil {
				t.Fatalf("Run() unexpected error: %v", err)
			}
			if len(res.Diagnostics) != 0 {
				t.Fatalf("unexpected diagnostics: %v", res.Diagnostics)
			}
			h, ok := res.View.Holding(schwab, AAPL.Key())
			if !ok {
				t.Fatal("missing AAPL holding")
			}
			if !h.Quantity.IsZero() || !h.Realized.Equal(USD(350)) {
				t.Errorf("holding = %v realized %v, want 0 realized 350", h.Quantity, h.Realized)
			}
		})
	}
}

func TestReconciler_RunDisabledSource(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Disabled = []Source{"live"}
	r, err := NewReconciler(cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	res, err := r.Run(context.Background(), flexAdapter(), liveAdapter(50))
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if len(res.Snapshots) != 0 || len(res.Diagnostics) != 0 {
		t.Errorf("disabled source contributed: %d snapshots, %v", len(res.Snapshots), res.Diagnostics)
	}
}

func TestReconciler_RunCancelled(t *testing.T) {
	r, err := NewReconciler(DefaultConfig(), nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := r.Run(ctx, flexAdapter())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(res.View.Holdings) != 0 {
		t.Errorf("Run() returned a partial result after cancellation")
	}
}

func TestNewReconciler_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultCurrency = "dollars"
	if _, err := NewReconciler(cfg, nil, zerolog.Nop()); err == nil {
		t.Errorf("NewReconciler() accepted an invalid configuration")
	}
}
