package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// currency symbols and codes recognized in price text. Symbols that several
// currencies share resolve to the most common web-retail usage.
var currencySymbols = []struct {
	token string
	code  string
}{
	{"US$", "USD"},
	{"CA$", "CAD"},
	{"A$", "AUD"},
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₹", "INR"},
	{"₩", "KRW"},
	{"zł", "PLN"},
	{"kr", "SEK"},
	{"R$", "BRL"},
	{"CHF", "CHF"},
}

var currencyCodeRe = regexp.MustCompile(`\b(USD|EUR|GBP|JPY|CAD|AUD|CHF|SEK|NOK|DKK|PLN|BRL|INR|KRW|CNY|NZD)\b`)

var numberRe = regexp.MustCompile(`\d[\d.,\s\x{00a0}]*\d|\d`)

// ParsePrice extracts a decimal amount and a 3-letter currency code from
// free-form price text. It tolerates thousands separators in dot, comma, and
// space conventions. Currency defaults to USD when undetectable.
func ParsePrice(text string) (float64, string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, "", false
	}

	currency := detectCurrency(text)

	raw := numberRe.FindString(text)
	if raw == "" {
		return 0, "", false
	}
	value, ok := parseAmount(raw)
	if !ok {
		return 0, "", false
	}
	return value, currency, true
}

func detectCurrency(text string) string {
	if m := currencyCodeRe.FindString(strings.ToUpper(text)); m != "" {
		return m
	}
	for _, s := range currencySymbols {
		if strings.Contains(text, s.token) {
			return s.code
		}
	}
	return "USD"
}

// parseAmount normalizes a raw numeric token. The last dot or comma is the
// decimal separator when it is followed by one or two digits; everything
// else is treated as grouping.
func parseAmount(raw string) (float64, bool) {
	raw = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, raw)

	lastDot := strings.LastIndexByte(raw, '.')
	lastComma := strings.LastIndexByte(raw, ',')

	sep := -1
	if lastDot > lastComma {
		sep = lastDot
	} else if lastComma > lastDot {
		sep = lastComma
	}

	if sep >= 0 {
		frac := len(raw) - sep - 1
		if frac >= 1 && frac <= 2 {
			intPart := stripSeparators(raw[:sep])
			raw = intPart + "." + raw[sep+1:]
		} else {
			// Trailing group of 3 (or more) digits: a thousands separator.
			raw = stripSeparators(raw)
		}
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '.' || r == ',' {
			return -1
		}
		return r
	}, s)
}
