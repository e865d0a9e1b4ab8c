package normalize

// price.go parses listing prices as scraped from property portals:
//
//	"₦5,000,000"         -> 5000000 NGN
//	"N 5.5m"             -> 5500000 NGN
//	"5M - 7M"            -> 5000000 (first bound of a range)
//	"$1,200/month"       -> 1200 USD (period suffix stripped)
//	"₦2.5bn per annum"   -> 2500000000 NGN
//	"Price on request"   -> missing
//	"(5,000)"            -> missing (a price must be positive)

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/JonMunkholm/consolidator/internal/core"
)

var (
	// periodSuffixRegex strips rental periods; the period itself feeds
	// listing type detection separately.
	periodSuffixRegex = regexp.MustCompile(`\s*(?:/|\bper\b|\ba\b)\s*(?:annum|year|yr|month|mth|mo|week|wk|night|day|sqm|m2)\b\.?`)
	paSuffixRegex     = regexp.MustCompile(`\s*\bp\.?\s?a\.?$`)

	// rangeSplitRegex separates range bounds: "5M - 7M", "5M to 7M", "5M–7M".
	rangeSplitRegex = regexp.MustCompile(`\s*(?:-|–|—|\bto\b)\s*`)

	// boundRegex captures a number with optional scale suffix.
	boundRegex = regexp.MustCompile(`^([0-9][0-9,. ]*)\s*(million|billion|thousand|mn|bn|k|m|b)?\b`)

	nairaPrefixRegex = regexp.MustCompile(`^n\s*([0-9])`)
)

var scaleFactors = map[string]float64{
	"":         1,
	"k":        1e3,
	"thousand": 1e3,
	"m":        1e6,
	"mn":       1e6,
	"million":  1e6,
	"b":        1e9,
	"bn":       1e9,
	"billion":  1e9,
}

// currencyMarkers are checked in order; longer codes before symbols.
var currencyMarkers = []struct {
	marker string
	code   string
}{
	{"ngn", "NGN"},
	{"naira", "NGN"},
	{"₦", "NGN"},
	{"usd", "USD"},
	{"us$", "USD"},
	{"$", "USD"},
	{"eur", "EUR"},
	{"€", "EUR"},
	{"gbp", "GBP"},
	{"£", "GBP"},
}

// ParsePrice returns the whole-unit amount and currency code of s.
// The currency falls back to defaultCurrency when s has no marker.
// ok is false when s holds no positive amount.
func ParsePrice(s, defaultCurrency string) (amount int64, currency string, ok bool) {
	s = strings.ToLower(core.CollapseSpace(core.CleanCell(s)))
	if s == "" {
		return 0, "", false
	}

	// Accounting negatives "(123)" and signed values are not prices
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") || strings.HasPrefix(s, "-") {
		return 0, "", false
	}

	currency = defaultCurrency
	for _, cm := range currencyMarkers {
		if strings.Contains(s, cm.marker) {
			currency = cm.code
			s = strings.ReplaceAll(s, cm.marker, " ")
			break
		}
	}
	s = strings.TrimSpace(s)
	if m := nairaPrefixRegex.FindStringSubmatchIndex(s); m != nil {
		currency = "NGN"
		s = s[m[2]:]
	}

	s = periodSuffixRegex.ReplaceAllString(s, "")
	s = paSuffixRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	bounds := rangeSplitRegex.Split(s, 2)
	first := strings.TrimSpace(bounds[0])
	value, scale, found := parseBound(first)
	if !found {
		return 0, "", false
	}

	// "5 - 7M": an unscaled first bound borrows the second bound's scale
	if scale == "" && len(bounds) == 2 {
		if _, s2, ok2 := parseBound(strings.TrimSpace(bounds[1])); ok2 {
			scale = s2
		}
	}

	amount = int64(math.Round(value * scaleFactors[scale]))
	if amount <= 0 {
		return 0, "", false
	}
	return amount, currency, true
}

// parseBound reads one number and its scale suffix from the start of s.
func parseBound(s string) (float64, string, bool) {
	m := boundRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, "", false
	}

	num := strings.TrimRight(strings.NewReplacer(",", "", " ", "").Replace(m[1]), ".")
	// "5.000.000" uses dots as thousands separators
	if strings.Count(num, ".") > 1 {
		num = strings.ReplaceAll(num, ".", "")
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, "", false
	}
	return v, m[2], true
}

// ParseCurrency normalizes an explicit currency cell to a 3-letter code.
// Returns "" when the cell is not recognized.
func ParseCurrency(s string) string {
	s = strings.ToLower(core.CleanCell(s))
	if s == "" {
		return ""
	}
	for _, cm := range currencyMarkers {
		if s == cm.marker {
			return cm.code
		}
	}
	if len(s) == 3 && isASCIILetters(s) {
		return strings.ToUpper(s)
	}
	return ""
}

func isASCIILetters(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}
