package bankroll

import (
	"errors"
	"math/rand/v2"
	"testing"
)

// resolve observes all ids then resolves each of them.
func resolve(ids ...Identifier) ([]Key, []error) {
	r := NewResolver("USD")
	for _, id := range ids {
		r.Observe(id)
	}
	keys := make([]Key, len(ids))
	errs := make([]error, len(ids))
	for i, id := range ids {
		in, err := r.Resolve(id)
		keys[i], errs[i] = in.Key(), err
	}
	return keys, errs
}

func TestResolver_SameInstrument(t *testing.T) {
	testCases := []struct {
		name string
		ids  []Identifier
		want Key
	}{
		{
			name: "stock spellings",
			ids: []Identifier{
				{Symbol: "AAPL"},
				{Symbol: "aapl", Exchange: "NASDAQ"},
				{Symbol: "AAPL.US"},
				{Symbol: "AAPL", AssetClass: "STK", CUSIP: "037833100"},
				{CUSIP: "037833100"},   // bound to AAPL by the previous one
				{ISIN: "US0378331005"}, // its CUSIP is embedded
				{Symbol: "AAPL@SMART", AssetClass: "Equity"},
			},
			want: "STK:AAPL",
		},
		{
			name: "share classes",
			ids: []Identifier{
				{Symbol: "BRK B"},
				{Symbol: "BRK/B"},
				{Symbol: "BRK.B"},
			},
			want: "STK:BRK.B",
		},
		{
			name: "option descriptors",
			ids: []Identifier{
				{Symbol: "AAPL  250117C00150000", AssetClass: "OPT"},
				{Symbol: "AAPL250117C00150000"},
				{Symbol: "AAPL 17JAN25 150 C", AssetClass: "Option"},
				{Symbol: "AAPL", AssetClass: "OPT", Expiry: "20250117", Strike: "150", Right: "C"},
				{Symbol: "AAPL  250117C00150000", AssetClass: "OPT", Underlying: "AAPL", Expiry: "2025-01-17", Strike: "150.000", Right: "CALL", Multiplier: "100"},
				{Description: "AAPL 17JAN25 150 C", Underlying: "AAPL", AssetClass: "OPT"},
			},
			want: "OPT:AAPL  250117C00150000",
		},
		{
			name: "forex",
			ids: []Identifier{
				{Symbol: "EUR.USD", AssetClass: "CASH"},
				{Symbol: "EUR/USD", AssetClass: "FX"},
				{Symbol: "eurusd", AssetClass: "forex"},
			},
			want: "CASH:EURUSD",
		},
		{
			name: "future options",
			ids: []Identifier{
				{Symbol: "ES", AssetClass: "FOP", Expiry: "20250321", Strike: "5000", Right: "P"},
				{Underlying: "ES", AssetClass: "FOP", Expiry: "2025-03-21", Strike: "5000.0", Right: "PUT"},
			},
			want: "FOP:ES:20250321:P:5000",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			keys, errs := resolve(tc.ids...)
			for i := range tc.ids {
				if errs[i] != nil {
					t.Errorf("Resolve(%+v) unexpected error: %v", tc.ids[i], errs[i])
					continue
				}
				if keys[i] != tc.want {
					t.Errorf("Resolve(%+v) = %q, want %q", tc.ids[i], keys[i], tc.want)
				}
			}
		})
	}
}

func TestResolver_DistinctInstruments(t *testing.T) {
	keys, errs := resolve(
		Identifier{Symbol: "AAPL"},
		Identifier{Symbol: "AAPL  250117C00150000"},
		Identifier{Symbol: "AAPL  250117P00150000"},
		Identifier{Symbol: "AAPL  250117C00155000"},
		Identifier{CUSIP: "594918104", AssetClass: "BOND"},
		Identifier{Symbol: "ES", AssetClass: "FUT"},
		Identifier{Symbol: "MKC", Exchange: "NYSE"},
		Identifier{Symbol: "MKC.V", Exchange: "NYSE"},
		Identifier{Symbol: "BF B", Exchange: "NYSE"},
		Identifier{Symbol: "F", Exchange: "NYSE"},
	)
	seen := make(map[Key]bool)
	for i, k := range keys {
		if errs[i] != nil {
			t.Fatalf("unexpected error: %v", errs[i])
		}
		if seen[k] {
			t.Errorf("key %q assigned twice", k)
		}
		seen[k] = true
	}
}

func TestResolver_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		ids     []Identifier // observed first; the last one is resolved
		wantErr error
	}{
		{
			name:    "option without strike",
			ids:     []Identifier{{Symbol: "AAPL", AssetClass: "OPT", Expiry: "20250117", Right: "C"}},
			wantErr: ErrUnresolvableIdentifier,
		},
		{
			name:    "option without expiry",
			ids:     []Identifier{{Underlying: "AAPL", AssetClass: "OPT", Strike: "150", Right: "C"}},
			wantErr: ErrUnresolvableIdentifier,
		},
		{
			name:    "option fields disagree with its symbol",
			ids:     []Identifier{{Symbol: "AAPL  250117C00150000", AssetClass: "OPT", Underlying: "AAPL", Expiry: "20250117", Strike: "155", Right: "C"}},
			wantErr: ErrAmbiguousIdentifier,
		},
		{
			name: "cusip bound to two symbols",
			ids: []Identifier{
				{Symbol: "AAPL", CUSIP: "037833100"},
				{Symbol: "APPL", CUSIP: "037833100"},
				{CUSIP: "037833100"},
			},
			wantErr: ErrAmbiguousIdentifier,
		},
		{
			name:    "unknown cusip alone is not a stock",
			ids:     []Identifier{{AssetClass: "STK", CUSIP: "037833100"}},
			wantErr: ErrUnresolvableIdentifier,
		},
		{
			name:    "invalid cusip",
			ids:     []Identifier{{Symbol: "AAPL", CUSIP: "037833101"}},
			wantErr: ErrUnresolvableIdentifier,
		},
		{
			name:    "nothing to resolve",
			ids:     []Identifier{{Exchange: "NASDAQ"}},
			wantErr: ErrUnresolvableIdentifier,
		},
		{
			name:    "same currency pair",
			ids:     []Identifier{{Symbol: "USD.USD", AssetClass: "CASH"}},
			wantErr: ErrUnresolvableIdentifier,
		},
		{
			name:    "unknown asset class",
			ids:     []Identifier{{Symbol: "XYZ", AssetClass: "CRYPTO-ART"}},
			wantErr: ErrUnresolvableIdentifier,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, errs := resolve(tc.ids...)
			err := errs[len(errs)-1]
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Resolve() error = %v, want %v", err, tc.wantErr)
			}
			var ie *IdentifierError
			if !errors.As(err, &ie) {
				t.Errorf("Resolve() error %T is not an *IdentifierError", err)
			}
		})
	}
}

func TestResolver_OrderIndependence(t *testing.T) {
	ids := []Identifier{
		{Symbol: "AAPL", CUSIP: "037833100"},
		{CUSIP: "037833100"},
		{ISIN: "US0378331005"},
		{Symbol: "MSFT", ISIN: "US5949181045"},
		{CUSIP: "594918104"},
		{Symbol: "AAPL 17JAN25 150 C"},
		{Symbol: "AAPL", AssetClass: "OPT", Expiry: "20250117", Strike: "150", Right: "C"},
		{Symbol: "GOOG", CUSIP: "02079K107"},
		{Symbol: "GOOGL", CUSIP: "02079K107"}, // makes the CUSIP ambiguous
		{CUSIP: "02079K107"},
	}
	want := make(map[int]string)
	keys, errs := resolve(ids...)
	for i := range ids {
		want[i] = outcome(keys[i], errs[i])
	}

	rng := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 20; round++ {
		perm := rng.Perm(len(ids))
		shuffled := make([]Identifier, len(ids))
		for i, p := range perm {
			shuffled[i] = ids[p]
		}
		keys, errs := resolve(shuffled...)
		for i, p := range perm {
			if got := outcome(keys[i], errs[i]); got != want[p] {
				t.Errorf("round %d: Resolve(%+v) = %q, want %q", round, ids[p], got, want[p])
			}
		}
	}
}

func outcome(k Key, err error) string {
	if err != nil {
		return string(KindOf(err))
	}
	return string(k)
}
