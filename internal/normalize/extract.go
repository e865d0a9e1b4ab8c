package normalize

import (
	"regexp"
	"strconv"

	"github.com/JonMunkholm/consolidator/internal/core"
)

// maxCount bounds plausible room counts; larger numbers are prices or ids.
const maxCount = 50

// countCellRegex accepts "3", "3.0", "3 beds", "3+".
var countCellRegex = regexp.MustCompile(`^(\d+)(?:\.0+)?(?:\+|\s|$|[a-zA-Z])`)

// countPatterns recover counts from free text. Each pattern's first
// capture group is the count.
var countPatterns = map[string][]*regexp.Regexp{
	FieldBedrooms: {
		regexp.MustCompile(`(?i)\b(\d+)\s*[-\s]?\s*(?:bed(?:room)?s?|bdrms?|br)\b`),
		regexp.MustCompile(`(?i)\b(?:bed(?:room)?s?|bdrms?)\s*[:=]\s*(\d+)\b`),
	},
	FieldBathrooms: {
		regexp.MustCompile(`(?i)\b(\d+)\s*[-\s]?\s*(?:bath(?:room)?s?)\b`),
		regexp.MustCompile(`(?i)\b(?:bath(?:room)?s?)\s*[:=]\s*(\d+)\b`),
	},
	FieldToilets: {
		regexp.MustCompile(`(?i)\b(\d+)\s*[-\s]?\s*(?:toilets?|wcs?)\b`),
		regexp.MustCompile(`(?i)\b(?:toilets?)\s*[:=]\s*(\d+)\b`),
	},
}

// ParseCount reads a structured count cell. Returns nil when the cell is
// blank or holds no leading integer.
func ParseCount(s string) *int {
	s = core.CleanCell(s)
	m := countCellRegex.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	return boundedCount(m[1])
}

// ExtractCount finds an integer adjacent to the field's keyword
// ("3 bedroom", "3-bed", "3br", "bedrooms: 3"), trying texts in order.
func ExtractCount(field string, texts ...string) *int {
	patterns := countPatterns[field]
	for _, t := range texts {
		if t == "" {
			continue
		}
		for _, re := range patterns {
			if m := re.FindStringSubmatch(t); m != nil {
				if n := boundedCount(m[1]); n != nil {
					return n
				}
			}
		}
	}
	return nil
}

func boundedCount(digits string) *int {
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 || n > maxCount {
		return nil
	}
	return &n
}
