package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/etnz/bankroll"
	"github.com/rs/zerolog"
)

const flexReport = `<FlexQueryResponse queryName="bankroll" type="AF">
<FlexStatements count="1">
<FlexStatement accountId="U1234567">
<Trades>
<Trade currency="USD" assetCategory="STK" symbol="AAPL" tradeID="101" dateTime="20250117;100000" quantity="10" tradePrice="100" ibCommission="-1" levelOfDetail="EXECUTION"/>
<Trade currency="USD" assetCategory="STK" symbol="AAPL" tradeID="102" dateTime="20250118;100000" quantity="-4" tradePrice="120" ibCommission="-1" levelOfDetail="EXECUTION"/>
</Trades>
</FlexStatement>
</FlexStatements>
</FlexQueryResponse>
`

const schwabExport = `"Transactions  for account Individual XXXX-1234 as of 01/31/2025 10:00:00 ET"
"Date","Action","Symbol","Description","Quantity","Price","Fees & Comm","Amount"
"01/17/2025","Buy","AAPL","APPLE INC","10","$100.00","$1.00","-$1,001.00"
"01/18/2025","Sell","AAPL","APPLE INC","4","$120.00","$1.00","$479.00"
`

// workspace writes the settings file and the exports it names into a
// temporary directory and returns the settings path.
func workspace(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return filepath.ToSlash(p)
	}
	flex := write("flex.xml", flexReport)
	schwab := write("schwab.csv", schwabExport)

	return write("bankroll.toml", `
[reconcile]
priority = ["flex", "schwab"]
tolerance = "2s"
fee_tolerance = "0.05"
timezone = "America/New_York"

[ibkr]
account = "U1234567"
flex = ["`+flex+`"]

[schwab]
account = "XXXX-1234"
trades = ["`+schwab+`"]
`+extra)
}

func TestLoadSettings(t *testing.T) {
	s, err := LoadSettings(workspace(t, ""))
	if err != nil {
		t.Fatalf("LoadSettings() unexpected error: %v", err)
	}
	cfg, err := s.Config()
	if err != nil {
		t.Fatalf("Config() unexpected error: %v", err)
	}

	if cfg.Tolerance != 2*time.Second {
		t.Errorf("Tolerance = %v, want 2s", cfg.Tolerance)
	}
	if !cfg.FeeTolerance.Equal(bankroll.Q(0.05)) {
		t.Errorf("FeeTolerance = %v, want 0.05", cfg.FeeTolerance)
	}
	if cfg.Location.String() != "America/New_York" {
		t.Errorf("Location = %v", cfg.Location)
	}
	// defaults for what the file does not set
	if cfg.Method != bankroll.FIFO || cfg.Mode != bankroll.Strict || cfg.DefaultCurrency != "USD" {
		t.Errorf("Config = %+v, want fifo, strict, USD", cfg)
	}
	if cfg.Rank("flex") != 0 || cfg.Rank("schwab") != 1 {
		t.Errorf("SourcePriority = %v", cfg.SourcePriority)
	}
	if len(s.Schwab.Trades) != 1 || s.IBKR.Account != "U1234567" {
		t.Errorf("Settings = %+v", s)
	}
}

func TestLoadSettings_Missing(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "bankroll.toml"))
	if err != nil {
		t.Fatalf("LoadSettings() unexpected error: %v", err)
	}
	cfg, err := s.Config()
	if err != nil {
		t.Fatalf("Config() unexpected error: %v", err)
	}
	def := bankroll.DefaultConfig()
	if cfg.Method != def.Method || cfg.Tolerance != def.Tolerance || !cfg.FeeTolerance.Equal(def.FeeTolerance) {
		t.Errorf("Config() = %+v, want the defaults", cfg)
	}
}

func TestLoadSettings_Env(t *testing.T) {
	t.Setenv("BANKROLL_RECONCILE_METHOD", "average")
	s, err := LoadSettings(workspace(t, ""))
	if err != nil {
		t.Fatalf("LoadSettings() unexpected error: %v", err)
	}
	if s.Reconcile.Method != "average" {
		t.Errorf("Method = %q, want the environment to override the file", s.Reconcile.Method)
	}
}

func TestSettings_ConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		patch func(*ReconcileSettings)
		want  string
	}{
		{"method", func(r *ReconcileSettings) { r.Method = "lifo" }, "cost basis method"},
		{"mode", func(r *ReconcileSettings) { r.Mode = "lenient" }, "oversell mode"},
		{"timezone", func(r *ReconcileSettings) { r.Timezone = "Mars/Olympus" }, "timezone"},
		{"currency", func(r *ReconcileSettings) { r.Currency = "dollars" }, "currency"},
		{"fees", func(r *ReconcileSettings) { r.FeeTolerance = "a cent" }, "fee_tolerance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := LoadSettings(filepath.Join(t.TempDir(), "none.toml"))
			if err != nil {
				t.Fatal(err)
			}
			tt.patch(&s.Reconcile)
			if _, err := s.Config(); err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Config() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestSettings_Prices(t *testing.T) {
	s, err := LoadSettings(workspace(t, `
[[prices.quote]]
key = "STK:AAPL"
price = "150"

[[prices.quote]]
key = "STK:SAP"
price = "240.5"
currency = "eur"
`))
	if err != nil {
		t.Fatalf("LoadSettings() unexpected error: %v", err)
	}
	prices, err := s.Prices("USD")
	if err != nil {
		t.Fatalf("Prices() unexpected error: %v", err)
	}
	if p, ok := prices.Price("STK:AAPL"); !ok || !p.Equal(bankroll.M(150, "USD")) {
		t.Errorf("Price(AAPL) = %v, %v", p, ok)
	}
	if p, ok := prices.Price("STK:SAP"); !ok || !p.Equal(bankroll.M(240.5, "EUR")) {
		t.Errorf("Price(SAP) = %v, %v", p, ok)
	}
}

func TestSettings_Inputs(t *testing.T) {
	s, err := LoadSettings(workspace(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	in, err := s.Inputs(zerolog.Nop())
	if err != nil {
		t.Fatalf("Inputs() unexpected error: %v", err)
	}
	defer in.Close()

	var sources []string
	for _, a := range in.Adapters {
		sources = append(sources, string(a.Source()))
	}
	if got := strings.Join(sources, ","); got != "flex,schwab" {
		t.Errorf("sources = %s, want flex,schwab", got)
	}

	s.Vanguard.Trades = []string{filepath.Join(t.TempDir(), "missing.csv")}
	if _, err := s.Inputs(zerolog.Nop()); err == nil {
		t.Error("Inputs() should fail on a missing export")
	}
}

func TestReconcile(t *testing.T) {
	old := *settingsFile
	defer func() { *settingsFile = old }()
	*settingsFile = workspace(t, `
[[prices.quote]]
key = "STK:AAPL"
price = "150"
`)

	res, err := reconcile(context.Background(), false)
	if err != nil {
		t.Fatalf("reconcile() unexpected error: %v", err)
	}
	if len(res.Diagnostics) > 0 {
		t.Errorf("unexpected diagnostics: %v", res.Diagnostics)
	}

	ibkr := bankroll.Account{Broker: "ibkr", Number: "U1234567"}
	h, ok := res.View.Holding(ibkr, "STK:AAPL")
	if !ok || !h.Quantity.Equal(bankroll.Q(6)) || !h.CostBasis.Equal(bankroll.M(600.60, "USD")) {
		t.Errorf("ibkr holding = %+v", h)
	}
	total, ok := res.View.Total("STK:AAPL")
	if !ok {
		t.Fatal("missing AAPL total")
	}
	if total.Accounts != 2 || !total.Quantity.Equal(bankroll.Q(12)) || !total.MarketValue.Equal(bankroll.M(1800, "USD")) {
		t.Errorf("total = %d accounts, %v, %v; want 2, 12, 1800", total.Accounts, total.Quantity, total.MarketValue)
	}
}

func TestReconcile_Update(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/real-time/AAPL.US" || r.URL.Query().Get("api_token") != "demo" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"code":"AAPL.US","close":140}`))
	}))
	defer srv.Close()

	old := *settingsFile
	defer func() { *settingsFile = old }()
	*settingsFile = workspace(t, `
[prices]
eodhd_key = "demo"
eodhd_url = "`+srv.URL+`"
cache = "`+filepath.ToSlash(t.TempDir())+`"
`)

	res, err := reconcile(context.Background(), true)
	if err != nil {
		t.Fatalf("reconcile() unexpected error: %v", err)
	}
	ibkr := bankroll.Account{Broker: "ibkr", Number: "U1234567"}
	h, ok := res.View.Holding(ibkr, "STK:AAPL")
	if !ok || !h.HasPrice || !h.MarketValue.Equal(bankroll.M(840, "USD")) {
		t.Errorf("ibkr holding = %+v, want a market value of 840", h)
	}
}

func TestReconcile_UpdateWithoutKey(t *testing.T) {
	old := *settingsFile
	defer func() { *settingsFile = old }()
	*settingsFile = workspace(t, "")

	if _, err := reconcile(context.Background(), true); err == nil || !strings.Contains(err.Error(), "eodhd_key") {
		t.Errorf("reconcile() error = %v, want a missing eodhd_key error", err)
	}
}
