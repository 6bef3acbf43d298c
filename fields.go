package bankroll

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Canonical field names understood by the Normalizer.
const (
	FieldID          = "id"
	FieldAccount     = "account"
	FieldTime        = "time"
	FieldDate        = "date"
	FieldSymbol      = "symbol"
	FieldExchange    = "exchange"
	FieldAssetClass  = "assetClass"
	FieldCurrency    = "currency"
	FieldCUSIP       = "cusip"
	FieldISIN        = "isin"
	FieldUnderlying  = "underlying"
	FieldExpiry      = "expiry"
	FieldStrike      = "strike"
	FieldRight       = "right"
	FieldMultiplier  = "multiplier"
	FieldDescription = "description"
	FieldSide        = "side"
	FieldQuantity    = "quantity"
	FieldPrice       = "price"
	FieldProceeds    = "proceeds"
	FieldCommission  = "commission"
	FieldFees        = "fees"
	FieldTaxes       = "taxes"
	FieldCostBasis   = "costBasis"
	FieldAverageCost = "averageCost"
	FieldMarketPrice = "marketPrice"
)

// aliases maps folded native field names onto canonical names. Folding keeps
// only lower-case letters and digits, so "Commission ($)", "commission" and
// "COMMISSION" all fold to "commission".
var aliases = map[string]string{
	// identity of the record
	"id": FieldID, "tradeid": FieldID, "transactionid": FieldID, "execid": FieldID,
	"ibexecid": FieldID, "executionid": FieldID, "conid": "", "orderid": "",
	"account": FieldAccount, "accountid": FieldAccount, "accountnumber": FieldAccount, "acctid": FieldAccount,

	// time
	"time": FieldTime, "datetime": FieldTime, "timestamp": FieldTime, "executiontime": FieldTime,
	"date": FieldDate, "tradedate": FieldDate, "rundate": FieldDate, "reportdate": FieldDate, "asof": FieldDate,

	// instrument
	"symbol": FieldSymbol, "ticker": FieldSymbol, "contractdesc": FieldDescription,
	"exchange": FieldExchange, "listingexchange": FieldExchange, "listingexchg": FieldExchange,
	"assetclass": FieldAssetClass, "assetcategory": FieldAssetClass, "sectype": FieldAssetClass,
	"securitytype": FieldAssetClass, "investmenttype": FieldAssetClass,
	"currency": FieldCurrency, "currencyprimary": FieldCurrency,
	"cusip": FieldCUSIP, "isin": FieldISIN, "securityid": "",
	"underlying": FieldUnderlying, "underlyingsymbol": FieldUnderlying,
	"expiry": FieldExpiry, "expiration": FieldExpiry, "expirationdate": FieldExpiry,
	"strike": FieldStrike, "strikeprice": FieldStrike,
	"right": FieldRight, "putcall": FieldRight,
	"multiplier": FieldMultiplier,
	"description": FieldDescription, "securitydescription": FieldDescription, "investmentname": FieldDescription,

	// economics
	"side": FieldSide, "buysell": FieldSide, "action": FieldSide, "transactiontype": FieldSide,
	"quantity": FieldQuantity, "qty": FieldQuantity, "shares": FieldQuantity, "size": FieldQuantity, "position": FieldQuantity,
	"price": FieldPrice, "tradeprice": FieldPrice, "executionprice": FieldPrice, "shareprice": FieldPrice,
	"proceeds": FieldProceeds, "amount": FieldProceeds, "netamount": FieldProceeds,
	"commission": FieldCommission, "ibcommission": FieldCommission, "commissions": FieldCommission,
	"fees": FieldFees, "fee": FieldFees, "otherfees": FieldFees, "commissionsfees": FieldFees, "feescomm": FieldFees,
	"taxes": FieldTaxes,
	"costbasis": FieldCostBasis, "costbasismoney": FieldCostBasis, "costbasistotal": FieldCostBasis, "totalcost": FieldCostBasis,
	"averagecost": FieldAverageCost, "avgcost": FieldAverageCost, "averagecostbasis": FieldAverageCost, "costbasisprice": FieldAverageCost,
	"marketprice": FieldMarketPrice, "markprice": FieldMarketPrice, "mktprice": FieldMarketPrice, "lastprice": FieldMarketPrice,
}

// fold reduces a field name to lower-case letters and digits.
func fold(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// canonicalName returns the canonical name of a native field, or "" when the
// field is unknown or deliberately ignored.
func canonicalName(name string) string {
	return aliases[fold(name)]
}

// fields is a record's content indexed by canonical name.
type fields map[string]any

// preferred lists native names that win over the other aliases of their
// canonical field: a trade is dated by its trade date, not by its report.
var preferred = map[string]bool{"tradedate": true}

// precedence ranks the native name of a canonical field.
func precedence(name, canonical string) int {
	switch {
	case name == canonical:
		return 2
	case preferred[fold(name)]:
		return 1
	}
	return 0
}

// canonicalize maps native names onto canonical names. When several native
// fields map to the same canonical name, the one spelled canonically wins,
// then a preferred one, then the first in lexical order; empty values never
// shadow set ones.
func canonicalize(raw map[string]any) fields {
	names := slices.Sorted(maps.Keys(raw))
	f := make(fields, len(raw))
	rank := make(map[string]int)
	for _, name := range names {
		v := raw[name]
		if isEmpty(v) {
			continue
		}
		c := canonicalName(name)
		if c == "" {
			continue
		}
		p := precedence(name, c)
		if current, set := rank[c]; set && current >= p {
			continue
		}
		f[c] = v
		rank[c] = p
	}
	return f
}

func isEmpty(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(v)
		return s == "" || s == "--" || s == "-" || strings.EqualFold(s, "n/a")
	}
	return false
}

// has reports whether the canonical field is set.
func (f fields) has(name string) bool {
	_, ok := f[name]
	return ok
}

// text returns the field as a trimmed string.
func (f fields) text(name string) string {
	switch v := f[name].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// decimal parses the field as a number. The second result is false when the
// field is absent.
func (f fields) decimal(name string) (decimal.Decimal, bool, error) {
	v, ok := f[name]
	if !ok {
		return decimal.Zero, false, nil
	}
	d, err := parseDecimal(v)
	if err != nil {
		return decimal.Zero, true, malformed(name, v, err)
	}
	return d, true, nil
}

// parseDecimal accepts numbers and broker formatted amounts: "$1,234.50",
// "(12.00)", "+3".
func parseDecimal(v any) (decimal.Decimal, error) {
	switch v := v.(type) {
	case decimal.Decimal:
		return v, nil
	case json.Number:
		return decimal.NewFromString(string(v))
	case Quantity:
		return v.Decimal(), nil
	case Money:
		return v.Decimal(), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case int32:
		return decimal.NewFromInt32(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, fmt.Errorf("not a finite number")
		}
		return decimal.NewFromFloat(v), nil
	case string:
		s := strings.TrimSpace(v)
		negative := false
		if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
			negative = true
			s = s[1 : len(s)-1]
		}
		s = strings.NewReplacer("$", "", ",", "", " ", "", "\u00a0", "").Replace(s)
		s = strings.TrimPrefix(s, "+")
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("not a number")
		}
		if negative {
			d = d.Neg()
		}
		return d, nil
	}
	return decimal.Zero, fmt.Errorf("unsupported type %T", v)
}

// timeLayouts are tried in order on textual timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"20060102;150405",
	"20060102 150405",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02, 15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
}

// dateLayouts are date-only layouts, interpreted at midnight.
var dateLayouts = []string{
	time.DateOnly,
	"20060102",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"02-Jan-2006",
	"Jan 2, 2006",
}

// parseTime parses a timestamp in any of the supported layouts. Zone-less
// values are interpreted in loc.
func parseTime(v any, loc *time.Location) (time.Time, error) {
	switch v := v.(type) {
	case time.Time:
		return v, nil
	case int64:
		return time.UnixMilli(v).In(loc), nil
	case json.Number:
		ms, err := v.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("not an epoch in milliseconds")
		}
		return time.UnixMilli(ms).In(loc), nil
	case float64:
		return time.UnixMilli(int64(v)).In(loc), nil
	case string:
		s := strings.TrimSpace(v)
		// "01/17/2025 as of 01/16/2025": the first date is the trade date.
		if head, _, ok := strings.Cut(s, " as of "); ok {
			s = strings.TrimSpace(head)
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, nil
		}
		for _, layout := range slices.Concat(timeLayouts[1:], dateLayouts) {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, nil
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil && len(s) == 13 {
			return time.UnixMilli(ms).In(loc), nil
		}
		return time.Time{}, fmt.Errorf("unknown time format")
	}
	return time.Time{}, fmt.Errorf("unsupported type %T", v)
}

// timestamp returns the record time from the time field, falling back to the
// date field. The second result is false when neither is present.
func (f fields) timestamp(loc *time.Location) (time.Time, bool, error) {
	for _, name := range []string{FieldTime, FieldDate} {
		v, ok := f[name]
		if !ok {
			continue
		}
		t, err := parseTime(v, loc)
		if err != nil {
			return time.Time{}, true, malformed(FieldTime, v, err)
		}
		return t, true, nil
	}
	return time.Time{}, false, nil
}

// identifier extracts the instrument identifying fields.
func (f fields) identifier() Identifier {
	return Identifier{
		Symbol:      f.text(FieldSymbol),
		Exchange:    f.text(FieldExchange),
		AssetClass:  f.text(FieldAssetClass),
		Currency:    f.text(FieldCurrency),
		CUSIP:       f.text(FieldCUSIP),
		ISIN:        f.text(FieldISIN),
		Underlying:  f.text(FieldUnderlying),
		Expiry:      f.text(FieldExpiry),
		Strike:      f.text(FieldStrike),
		Right:       f.text(FieldRight),
		Multiplier:  f.text(FieldMultiplier),
		Description: f.text(FieldDescription),
	}
}

// syntheticID derives a deterministic identifier from the record content, for
// sources that do not supply one.
func syntheticID(kind RecordKind, account Account, f fields) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s", kind, account)
	for _, name := range slices.Sorted(maps.Keys(f)) {
		fmt.Fprintf(h, "|%s=%s", name, f.text(name))
	}
	return fmt.Sprintf("h%016x", h.Sum64())
}
