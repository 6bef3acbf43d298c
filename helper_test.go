package bankroll

import (
	"time"
)

// EUR is a helper for test to create euro money from const
func EUR(v float64) Money { return M(v, "EUR") }

// USD is a helper for test to create usd money from const
func USD(v float64) Money { return M(v, "USD") }

var (
	ibkr   = Account{Broker: "ibkr", Number: "U1234567"}
	schwab = Account{Broker: "schwab", Number: "XXXX-1234"}

	AAPL = newStock("AAPL", "", "USD")
	MSFT = newStock("MSFT", "", "USD")
)

// day returns 2025-01-<d> at hh:mm UTC.
func day(d, hh, mm int) time.Time {
	return time.Date(2025, time.January, d, hh, mm, 0, 0, time.UTC)
}

// trade is a helper for test to create a trade without going through the
// normalizer. fees are positive.
func trade(source Source, id string, account Account, in Instrument, when time.Time, qty, price, fees float64) Trade {
	side := Buy
	if qty < 0 {
		side = Sell
	}
	return Trade{
		ID:         id,
		Source:     source,
		Account:    account,
		Instrument: in,
		Side:       side,
		Quantity:   Q(qty),
		Price:      USD(price),
		Fees:       USD(fees),
		Time:       when,
	}
}

// sequenced sets the position of a trade in its source's stream.
func sequenced(t Trade, seq int) Trade {
	t.Seq = seq
	return t
}

// record is a helper for test to create a raw trade record.
func record(source Source, account Account, fields map[string]any) RawRecord {
	return RawRecord{Source: source, Kind: TradeRecord, Account: account, Fields: fields}
}

// position is a helper for test to create a raw position record.
func position(source Source, account Account, fields map[string]any) RawRecord {
	return RawRecord{Source: source, Kind: PositionRecord, Account: account, Fields: fields}
}
