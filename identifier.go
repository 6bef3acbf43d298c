package bankroll

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Identifier gathers the identifying fields a source supplies for an
// instrument. Any subset may be set; the Resolver decides whether they are
// enough and consistent.
type Identifier struct {
	Symbol      string
	Exchange    string
	AssetClass  string
	Currency    string
	CUSIP       string
	ISIN        string
	Underlying  string
	Expiry      string
	Strike      string
	Right       string
	Multiplier  string
	Description string
}

// isinRegex checks for the basic structure: 2 letters, 9 alphanumeric, 1 digit.
var isinRegex = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)

// cusipRegex checks for 8 alphanumeric characters and a check digit.
var cusipRegex = regexp.MustCompile(`^[0-9A-Z*@#]{8}[0-9]$`)

// currencyCodeRegex checks for the format: 3 uppercase letters.
var currencyCodeRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// occRegex matches an OCC option symbol, with or without the padding of the underlying.
var occRegex = regexp.MustCompile(`^([A-Z0-9.]{1,6})\s*(\d{6})([CP])(\d{8})$`)

// descriptionRegex matches the "AAPL 17JAN25 150 C" style used in broker descriptions.
var descriptionRegex = regexp.MustCompile(`^([A-Z0-9.]+)\s+(\d{1,2}[A-Z]{3}\d{2})\s+(\d+(?:\.\d+)?)\s+([CP]|CALL|PUT)$`)

// venueSuffixes are the exchange and country suffixes brokers append to symbols.
var venueSuffixes = map[string]bool{
	"US": true, "L": true, "LN": true, "DE": true, "F": true, "PA": true, "AS": true, "TO": true, "V": true,
	"NYSE": true, "NASDAQ": true, "NMS": true, "ARCA": true, "AMEX": true, "BATS": true, "SMART": true,
	"ISLAND": true, "IBIS": true, "LSE": true, "TSX": true, "XETRA": true, "SBF": true, "AEB": true,
}

// usVenues list the exchanges whose tickers use one letter share classes
// ("MKC.V", "BF.B") that look like venue suffixes.
var usVenues = map[string]bool{
	"US": true, "NYSE": true, "NASDAQ": true, "NMS": true, "ARCA": true, "AMEX": true, "BATS": true, "SMART": true, "ISLAND": true,
}

// isVenueSuffix reports whether tail, appended to a symbol traded on
// exchange, names a venue rather than a share class.
func isVenueSuffix(tail, exchange string) bool {
	switch {
	case tail == "":
		return false
	case exchange != "" && tail == exchange:
		return true
	case len(tail) == 1 && usVenues[exchange]:
		return false
	}
	return venueSuffixes[tail]
}

// ValidateISIN checks if a string is a validly formatted ISIN, check digit included.
func ValidateISIN(isin string) error {
	if len(isin) != 12 {
		return fmt.Errorf("invalid length: must be 12 characters, got %d", len(isin))
	}
	if !isinRegex.MatchString(isin) {
		return fmt.Errorf("invalid format: must be 2 uppercase letters, 9 alphanumeric chars, and 1 digit")
	}

	// letters count as two digits (A=10 ... Z=35) then Luhn applies.
	var numericStr strings.Builder
	for _, char := range isin[:11] {
		if char >= 'A' && char <= 'Z' {
			numericStr.WriteString(strconv.Itoa(int(char - 'A' + 10)))
		} else {
			numericStr.WriteRune(char)
		}
	}

	sum := 0
	isSecond := true
	digits := numericStr.String()
	for i := len(digits) - 1; i >= 0; i-- {
		digit := int(digits[i] - '0')
		if isSecond {
			digit *= 2
		}
		sum += (digit / 10) + (digit % 10)
		isSecond = !isSecond
	}

	expectedCheckDigit := (10 - (sum % 10)) % 10
	actualCheckDigit := int(isin[11] - '0')
	if expectedCheckDigit != actualCheckDigit {
		return fmt.Errorf("invalid check digit: expected %d, got %d", expectedCheckDigit, actualCheckDigit)
	}
	return nil
}

// ValidateCUSIP checks the format and the check digit of a CUSIP.
func ValidateCUSIP(cusip string) error {
	if len(cusip) != 9 {
		return fmt.Errorf("invalid length: must be 9 characters, got %d", len(cusip))
	}
	if !cusipRegex.MatchString(cusip) {
		return fmt.Errorf("invalid format: must be 8 alphanumeric chars and 1 digit")
	}
	sum := 0
	for i := 0; i < 8; i++ {
		c := cusip[i]
		var v int
		switch {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c >= 'A' && c <= 'Z':
			v = int(c-'A') + 10
		case c == '*':
			v = 36
		case c == '@':
			v = 37
		case c == '#':
			v = 38
		}
		if i%2 == 1 {
			v *= 2
		}
		sum += v/10 + v%10
	}
	expected := (10 - sum%10) % 10
	if actual := int(cusip[8] - '0'); actual != expected {
		return fmt.Errorf("invalid check digit: expected %d, got %d", expected, actual)
	}
	return nil
}

// ValidateCurrency checks for a 3 uppercase letters currency code.
func ValidateCurrency(currency string) error {
	if !currencyCodeRegex.MatchString(currency) {
		return fmt.Errorf("invalid currency code %q: must be 3 uppercase letters", currency)
	}
	return nil
}

// CUSIPFromISIN extracts the CUSIP embedded in a US or Canadian ISIN.
func CUSIPFromISIN(isin string) (string, bool) {
	if len(isin) != 12 || (!strings.HasPrefix(isin, "US") && !strings.HasPrefix(isin, "CA")) {
		return "", false
	}
	return isin[2:11], true
}

// normalizeSymbol applies the fixed normalization order: trim, upper-case,
// strip venue suffixes, unify share class separators.
func normalizeSymbol(symbol, exchange string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	exchange = strings.ToUpper(strings.TrimSpace(exchange))

	// "AAPL@SMART", "AAPL:NASDAQ"
	for _, sep := range []string{"@", ":"} {
		if head, tail, ok := strings.Cut(s, sep); ok && isVenueSuffix(tail, exchange) {
			s = head
		}
	}
	// "AAPL.US", "VOD.L" but not "BRK.B", nor "MKC.V" on a US venue
	if i := strings.LastIndexAny(s, ". "); i > 0 && isVenueSuffix(s[i+1:], exchange) {
		s = strings.TrimSpace(s[:i])
	}
	// share classes: "BRK B", "BRK/B", "BRK-B" => "BRK.B"
	if i := strings.LastIndexAny(s, " /-"); i > 0 && len(s)-i == 2 {
		s = s[:i] + "." + s[i+1:]
	}
	return strings.Join(strings.Fields(s), " ")
}

// parseExpiry accepts the expiry layouts used by the supported sources.
func parseExpiry(s string) (time.Time, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range []string{"20060102", time.DateOnly, "060102", "02Jan06", "01/02/2006", "Jan 02 2006", "2006-01"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
		// month abbreviations are parsed case sensitively
		if t, err := time.Parse(layout, titleMonth(s)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid expiry %q", s)
}

// titleMonth turns "17JAN25" into "17Jan25" so that time.Parse accepts it.
func titleMonth(s string) string {
	b := []byte(s)
	for i := 1; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' && b[i-1] >= 'A' && b[i-1] <= 'Z' {
			b[i] = b[i] - 'A' + 'a'
		}
	}
	return string(b)
}

// optionDescriptor is the canonical (underlying, expiry, strike, right) form.
type optionDescriptor struct {
	underlying string
	expiry     time.Time
	strike     decimal.Decimal
	right      OptionRight
}

func (d optionDescriptor) equal(o optionDescriptor) bool {
	return d.underlying == o.underlying && d.expiry.Equal(o.expiry) && d.strike.Equal(o.strike) && d.right == o.right
}

// parseOCC parses "AAPL  250117C00150000" or its unpadded form.
func parseOCC(s string) (optionDescriptor, bool) {
	m := occRegex.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil {
		return optionDescriptor{}, false
	}
	expiry, err := time.Parse("060102", m[2])
	if err != nil {
		return optionDescriptor{}, false
	}
	milli, err := strconv.ParseInt(m[4], 10, 64)
	if err != nil {
		return optionDescriptor{}, false
	}
	return optionDescriptor{
		underlying: m[1],
		expiry:     expiry,
		strike:     decimal.New(milli, -3),
		right:      OptionRight(m[3]),
	}, true
}

// parseOptionDescription parses "AAPL 17JAN25 150 C" style descriptions.
func parseOptionDescription(s string) (optionDescriptor, bool) {
	m := descriptionRegex.FindStringSubmatch(strings.ToUpper(strings.Join(strings.Fields(s), " ")))
	if m == nil {
		return optionDescriptor{}, false
	}
	expiry, err := time.Parse("02Jan06", titleMonth(m[2]))
	if err != nil {
		return optionDescriptor{}, false
	}
	strike, err := decimal.NewFromString(m[3])
	if err != nil {
		return optionDescriptor{}, false
	}
	right, err := ParseOptionRight(m[4])
	if err != nil {
		return optionDescriptor{}, false
	}
	return optionDescriptor{underlying: m[1], expiry: expiry, strike: strike, right: right}, true
}
