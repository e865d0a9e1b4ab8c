package normalize

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/JonMunkholm/consolidator/internal/core"
)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Timestamp layouts split by year format for proper 2-digit year handling.
// Numeric dates are day first (02/01/2006 is 2 January), with or without a
// time part, as the listing sites publish them.
var (
	timestampLayouts = []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02 15:04",
		"2006/01/02 15:04:05", "2/1/2006 15:04:05", "2/1/2006 15:04",
	}
	fourDigitYearLayouts = []string{
		"2/1/2006", "2-1-2006", "2.1.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006", "January 2, 2006", "2 January 2006",
		"20060102",
	}
	twoDigitYearLayouts = []string{
		"2/1/06", "2-1-06", "2.1.06",
	}
)

var imageSplitRegex = regexp.MustCompile(`[,|\s]+`)

// CleanText applies CleanCell and collapses whitespace.
func CleanText(s string) string {
	return core.CollapseSpace(core.CleanCell(s))
}

// ParseURL returns s when it is an absolute http(s) URL with a host.
func ParseURL(s string) string {
	s = core.CleanCell(s)
	if s == "" {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

// ParseImages splits a media cell on commas, pipes and whitespace, keeps
// absolute http(s) URLs and drops repeats, preserving order.
func ParseImages(s string) []string {
	s = strings.Trim(core.CleanCell(s), "[]")
	if s == "" {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, part := range imageSplitRegex.Split(s, -1) {
		u := ParseURL(strings.Trim(part, `"'[]`))
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// ParseTimestamp accepts RFC3339, common datetime layouts and the date
// families used by spreadsheet exports. Results are UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = core.CleanCell(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	// Try 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	// Try 2-digit year layouts with pivot year adjustment
	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}
