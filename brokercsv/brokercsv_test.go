package brokercsv

import (
	"context"
	"strings"
	"testing"

	"github.com/etnz/bankroll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, a *Adapter) ([]bankroll.RawRecord, error) {
	t.Helper()
	var recs []bankroll.RawRecord
	for rec, err := range a.Records(context.Background()) {
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

var schwabAccount = bankroll.Account{Broker: "schwab", Number: "XXXX-1234"}

func normalize(t *testing.T, recs []bankroll.RawRecord) ([]bankroll.Trade, []bankroll.PositionSnapshot) {
	t.Helper()
	trades, snaps, rejected := bankroll.NewNormalizer(bankroll.DefaultConfig(), bankroll.NewResolver("USD")).NormalizeAll(recs)
	require.Empty(t, rejected)
	return trades, snaps
}

func TestSchwab(t *testing.T) {
	export := `"Transactions  for account Individual XXXX-1234 as of 01/31/2025 10:00:00 ET"
"Date","Action","Symbol","Description","Quantity","Price","Fees & Comm","Amount"
"01/17/2025","Buy","AAPL","APPLE INC","10","$100.00","$1.00","-$1,001.00"
"01/18/2025 as of 01/17/2025","Sell","AAPL","APPLE INC","4","$120.00","$1.00","$479.00"
"01/20/2025","Qualified Dividend","AAPL","APPLE INC","","","","$1.50"
"01/21/2025","MoneyLink Transfer","","Tfr BANK","","","","$5,000.00"
"Transactions Total","","","","","","","$3,479.50"
`
	recs, err := collect(t, &Adapter{Name: "schwab", Account: schwabAccount, Format: Schwab, R: strings.NewReader(export)})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, bankroll.Source("schwab"), recs[0].Source)
	assert.Equal(t, schwabAccount, recs[0].Account)

	trades, _ := normalize(t, recs)
	require.Len(t, trades, 2)
	assert.True(t, trades[0].Quantity.Equal(bankroll.Q(10)))
	assert.True(t, trades[1].Quantity.Equal(bankroll.Q(-4)))
	assert.True(t, trades[1].Price.Equal(bankroll.M(120, "USD")))
	assert.True(t, trades[1].Fees.Equal(bankroll.M(1, "USD")))
	assert.Equal(t, 18, trades[1].Time.Day())
}

func TestSchwabPositions(t *testing.T) {
	export := `"Positions for account Individual ...234 as of 10:00 AM ET, 2025/01/31"

"Symbol","Description","Qty (Quantity)","Price","Mkt Val (Market Value)","Cost Basis","Security Type"
"AAPL","APPLE INC","6","$130.00","$780.00","$600.60","Equity"
"Cash & Cash Investments","--","--","--","$4,000.00","--","Cash and Money Market"
"Account Total","--","--","--","$4,780.00","$600.60","--"
`
	recs, err := collect(t, &Adapter{Name: "schwab", Account: schwabAccount, Format: SchwabPositions, R: strings.NewReader(export)})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, bankroll.PositionRecord, recs[0].Kind)

	_, snaps := normalize(t, recs)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Quantity.Equal(bankroll.Q(6)))
	assert.True(t, snaps[0].Price.Equal(bankroll.M(130, "USD")))
	assert.True(t, snaps[0].CostBasis.Equal(bankroll.M(600.60, "USD")))
}

func TestFidelity(t *testing.T) {
	export := "\ufeff\n\nRun Date,Account,Action,Symbol,Description,Type,Quantity,Price ($),Commission ($),Fees ($),Accrued Interest ($),Amount ($),Settlement Date\n" +
		`01/17/2025,"Individual X12345678","YOU BOUGHT APPLE INC (AAPL) (Cash)",AAPL,"APPLE INC",Cash,10,100,,0.05,,-1000.05,01/21/2025` + "\n" +
		`01/18/2025,"Individual X12345678","YOU SOLD APPLE INC (AAPL) (Cash)",AAPL,"APPLE INC",Cash,-4,120,,0.02,,479.98,01/22/2025` + "\n" +
		`01/20/2025,"Individual X12345678","DIVIDEND RECEIVED APPLE INC (AAPL) (Cash)",AAPL,"APPLE INC",Cash,,,,,,1.50,` + "\n" +
		"\n\"The data and information in this spreadsheet is provided to you solely for your use.\"\n"

	account := bankroll.Account{Broker: "fidelity", Number: "X12345678"}
	recs, err := collect(t, &Adapter{Name: "fidelity", Account: account, Format: Fidelity, R: strings.NewReader(export)})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.NotContains(t, recs[0].Fields, "Account")

	trades, _ := normalize(t, recs)
	assert.Equal(t, account, trades[0].Account)
	assert.True(t, trades[0].Fees.Equal(bankroll.M(0.05, "USD")))
	assert.Equal(t, bankroll.Sell, trades[1].Side)
	assert.True(t, trades[1].Quantity.Equal(bankroll.Q(-4)))
}

func TestVanguard(t *testing.T) {
	export := `Account Number,Trade Date,Settlement Date,Transaction Type,Transaction Description,Investment Name,Symbol,Shares,Share Price,Principal Amount,Commissions and Fees,Net Amount,Accrued Interest,Account Type
12345678,2025-01-17,2025-01-21,Buy,Buy,VANGUARD TOTAL STOCK MARKET ETF,VTI,5.0000,280.00,-1400.00,0.00,-1400.00,0.00,CASH,
12345678,2025-01-20,2025-01-20,Dividend,Dividend Received,VANGUARD TOTAL STOCK MARKET ETF,VTI,0.0000,1.0,10.00,0.00,10.00,0.00,CASH,
`
	recs, err := collect(t, &Adapter{Name: "vanguard", Account: bankroll.Account{Broker: "vanguard"}, Format: Vanguard, R: strings.NewReader(export)})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	trades, _ := normalize(t, recs)
	require.Len(t, trades, 1)
	assert.Equal(t, "vanguard:12345678", trades[0].Account.String())
	assert.Equal(t, bankroll.Key("STK:VTI"), trades[0].Key())
	assert.True(t, trades[0].Price.Equal(bankroll.M(280, "USD")))
}

func TestNoHeader(t *testing.T) {
	_, err := collect(t, &Adapter{Name: "schwab", Format: Schwab, R: strings.NewReader("a,b,c\n1,2,3\n")})
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestLookup(t *testing.T) {
	f, err := Lookup(" Fidelity ")
	require.NoError(t, err)
	assert.Equal(t, "fidelity", f.Name)

	_, err = Lookup("etrade")
	assert.Error(t, err)
}
