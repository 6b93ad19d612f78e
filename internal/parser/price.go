package parser

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	priceRe  = regexp.MustCompile(`(?i)(?:\bCA\$|\bC\$|\bCAD\b|\$)\s*\d{1,3}(?:[,\s]\d{3})*(?:\.\d{1,2})?`)
	amountRe = regexp.MustCompile(`\d{1,3}(?:[,\s]\d{3})*(?:\.\d{1,2})?`)
)

// ParsePrice returns the first currency-prefixed amount in text, e.g.
// "CA$1,200.00" out of "CA$1,200.00 obo".
func ParsePrice(text string) (string, bool) {
	m := priceRe.FindString(text)
	if m == "" {
		return "", false
	}
	return strings.TrimSpace(m), true
}

// PriceAmount extracts the numeric value of a price string produced by
// ParsePrice. Thousands separators are dropped.
func PriceAmount(price string) (float64, bool) {
	m := amountRe.FindString(price)
	if m == "" {
		return 0, false
	}
	digits := strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, m)
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
