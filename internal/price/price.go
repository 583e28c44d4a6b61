// Package price parses monetary amounts out of arbitrary storefront text.
package price

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// currency matches the symbols and codes used by the supported storefronts.
const currency = `(?:ZAR|R|\$|€|£)`

// patterns are tried in order of decreasing specificity: a currency-anchored
// match beats a bare number, and a decimal beats an integer. The first match
// that survives numeric conversion wins.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(currency + `\s*([0-9][0-9,]*\.[0-9]+)`), // currency-prefixed decimal
	regexp.MustCompile(currency + `\s*([0-9][0-9,]*)`),         // currency-prefixed integer
	regexp.MustCompile(`([0-9][0-9,]*\.[0-9]+)\s*` + currency), // currency-suffixed decimal
	regexp.MustCompile(`([0-9][0-9,]*)\s*` + currency),         // currency-suffixed integer
	regexp.MustCompile(`([0-9][0-9,]*\.[0-9]+)`),               // bare decimal
	regexp.MustCompile(`([0-9][0-9,]*)`),                       // bare integer
}

// Parse extracts a numeric amount from price-bearing text.
//
// Text with no parseable price is a common, valid outcome (sold-out cards,
// "Contact us" placeholders), so Parse reports it with ok=false rather than
// an error.
func Parse(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}

	// Collapse runs of whitespace so "R  24 999" style spacing does not
	// defeat the currency anchors.
	text = strings.Join(strings.Fields(text), " ")

	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		raw := strings.ReplaceAll(m[1], ",", "")
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			continue
		}
		return v, true
	}

	return 0, false
}
