package normalize

import (
	"regexp"
	"strings"

	"github.com/JonMunkholm/consolidator/internal/core"
)

type keywordRule struct {
	value string
	re    *regexp.Regexp
}

// rule matches whole words; extra, when set, is an unanchored alternative
// for forms that start with punctuation such as "/night".
func rule(value, words, extra string) keywordRule {
	pattern := `\b(?:` + words + `)\b`
	if extra != "" {
		pattern += `|` + extra
	}
	return keywordRule{value: value, re: regexp.MustCompile(pattern)}
}

// propertyRules are tried in order; more specific building forms first.
var propertyRules = []keywordRule{
	rule(core.PropertySemiDetached, `semi[\s-]?detached`, ""),
	rule(core.PropertyDetached, `fully[\s-]?detached|detached`, ""),
	rule(core.PropertyTerrace, `terraced?|townhouse`, ""),
	rule(core.PropertyDuplex, `duplex|maisonette`, ""),
	rule(core.PropertyBungalow, `bungalow`, ""),
	rule(core.PropertyApartment, `apartments?|flats?|mini[\s-]?flat|self[\s-]?contain(?:ed)?|studio|penthouse|condo`, ""),
	rule(core.PropertyLand, `land|plots?|acres?`, ""),
	rule(core.PropertyCommercial, `commercial|office|shops?|warehouse|plaza|hotel|event\s+cent(?:re|er)|filling\s+station`, ""),
	rule(core.PropertyHouse, `house|mansion|home`, ""),
}

// listingRules are tried in order.
var listingRules = []keywordRule{
	rule(core.ListingShortlet, `short[\s-]?lets?|nightly`, `(?:/|\bper\s+)(?:night|day)\b`),
	rule(core.ListingRent, `rent(?:al)?|to\s+let|lease|letting|yearly|monthly`, `(?:/|\bper\s+)(?:annum|year|yr|month|mth)\b|\bp\.?a\.?(?:$|\s)`),
	rule(core.ListingSale, `sale|sell(?:ing)?|buy|outright`, ""),
}

// ClassifyProperty returns the first property type any text matches, trying
// texts in order (explicit column, title, description).
func ClassifyProperty(texts ...string) string {
	if v := classify(propertyRules, texts); v != "" {
		return v
	}
	return core.PropertyOther
}

// ClassifyListing returns sale, rent or shortlet, or unknown.
func ClassifyListing(texts ...string) string {
	if v := classify(listingRules, texts); v != "" {
		return v
	}
	return core.ListingUnknown
}

func classify(rules []keywordRule, texts []string) string {
	for _, t := range texts {
		t = strings.ToLower(t)
		if strings.TrimSpace(t) == "" {
			continue
		}
		for _, r := range rules {
			if r.re.MatchString(t) {
				return r.value
			}
		}
	}
	return ""
}
