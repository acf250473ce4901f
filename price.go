package productmeta

import (
	"fmt"
	"html"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Plausibility bounds for an extracted price, inclusive
var (
	MinPlausiblePrice = decimal.NewFromFloat(1.0)
	MaxPlausiblePrice = decimal.NewFromFloat(100000.0)
)

// NormalizePrice converts a raw price token such as "49,99", "1 234,50 €" or
// "EUR 1,299.00" into a decimal. The value is rejected with ErrPriceOutOfRange
// unless it lies within [MinPlausiblePrice, MaxPlausiblePrice].
func NormalizePrice(raw string) (decimal.Decimal, error) {
	cleaned := cleanPriceToken(raw)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnparseablePrice, raw)
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q: %v", ErrUnparseablePrice, raw, err)
	}

	if !IsPlausiblePrice(value) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrPriceOutOfRange, value.String())
	}

	return value, nil
}

// IsPlausiblePrice reports whether p lies within the plausibility range
func IsPlausiblePrice(p decimal.Decimal) bool {
	return p.GreaterThanOrEqual(MinPlausiblePrice) && p.LessThanOrEqual(MaxPlausiblePrice)
}

// cleanPriceToken strips whitespace (including non-breaking spaces), currency
// symbols and letters, then rewrites locale separators so that the result is a
// plain "1234.50" style number. Returns "" when no digit is present.
func cleanPriceToken(raw string) string {
	s := html.UnescapeString(raw)

	var b strings.Builder
	hasDigit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
			b.WriteRune(r)
		case r == ',' || r == '.':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '\'':
			// thousands grouping
		}
	}
	if !hasDigit {
		return ""
	}

	s = b.String()
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		// Whichever separator comes last is the decimal separator
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	s = strings.TrimRight(s, ".")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	} else if strings.HasPrefix(s, "-.") {
		s = "-0" + s[1:]
	}
	if s == "" || s == "-" {
		return ""
	}
	return s
}
