package normalize

import (
	"sort"
	"strings"
	"unicode"

	"github.com/JonMunkholm/consolidator/internal/core"
)

// Mapping binds input columns to canonical fields.
type Mapping struct {
	Columns  map[string]string  // canonical field -> input column
	Matches  []core.ColumnMatch // bound columns in header order
	Unmapped []string           // dropped columns in header order
}

// Column returns the input column bound to field, if any.
func (m Mapping) Column(field string) (string, bool) {
	c, ok := m.Columns[field]
	return c, ok
}

// CanonicalKey lowercases a header, turns every run of non-alphanumerics
// into one underscore and trims underscores at both ends.
func CanonicalKey(h string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(core.CleanCell(h)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

type candidate struct {
	column string
	field  string
	kind   core.MatchKind
	score  float64
}

// MapHeader matches each header column, in order of preference: exact
// canonical field name, then the Aliases table, then (only for columns
// neither of those matched) similarity at or above threshold against every
// field name and alias, ties going to the earlier-declared field.
// A field binds at most one column; explicit matches beat fuzzy ones and
// the first column wins among equals.
func MapHeader(header []string, threshold float64) Mapping {
	m := Mapping{Columns: make(map[string]string)}
	bound := make(map[string]core.ColumnMatch) // column -> match

	var explicit, fuzzy []candidate
	explicitCols := make(map[string]bool)
	for _, col := range header {
		key := CanonicalKey(col)
		if key == "" {
			continue
		}
		if _, ok := Get(key); ok {
			explicit = append(explicit, candidate{column: col, field: key, kind: core.MatchExact, score: 1})
			explicitCols[col] = true
			continue
		}
		if f, ok := Aliases[key]; ok {
			explicit = append(explicit, candidate{column: col, field: f, kind: core.MatchAlias, score: 1})
			explicitCols[col] = true
		}
	}

	for _, col := range header {
		if explicitCols[col] {
			continue
		}
		key := CanonicalKey(col)
		if key == "" {
			continue
		}
		if identifierTokens[lastToken(key)] {
			continue
		}
		if f, score := bestFuzzy(key, threshold); f != "" && score >= threshold {
			fuzzy = append(fuzzy, candidate{column: col, field: f, kind: core.MatchFuzzy, score: score})
		}
	}

	for _, group := range [][]candidate{explicit, fuzzy} {
		for _, c := range group {
			if _, taken := m.Columns[c.field]; taken {
				continue
			}
			m.Columns[c.field] = c.column
			match := core.ColumnMatch{Column: c.column, Field: c.field, Kind: c.kind}
			if c.kind == core.MatchFuzzy {
				match.Score = c.score
			}
			bound[c.column] = match
		}
	}

	for _, col := range header {
		if match, ok := bound[col]; ok {
			m.Matches = append(m.Matches, match)
		} else {
			m.Unmapped = append(m.Unmapped, col)
		}
	}
	return m
}

// identifierTokens end the keys of record id columns. Those never match
// fuzzily: listing_id is one edit away from listing_type in spirit only.
var identifierTokens = map[string]bool{
	"id":        true,
	"uuid":      true,
	"guid":      true,
	"ref":       true,
	"reference": true,
	"sku":       true,
	"key":       true,
}

// bestFuzzy scores key against each field's name and aliases. A name only
// counts when its last token is itself similar to key's last token, so
// shared prefixes such as listing_ cannot carry a match.
func bestFuzzy(key string, threshold float64) (string, float64) {
	names := aliasesByField()
	best, bestScore := "", 0.0
	for _, f := range All() {
		score := fuzzyScore(key, f.Name, threshold)
		for _, alias := range names[f.Name] {
			if s := fuzzyScore(key, alias, threshold); s > score {
				score = s
			}
		}
		if score > bestScore {
			best, bestScore = f.Name, score
		}
	}
	return best, bestScore
}

func fuzzyScore(key, name string, threshold float64) float64 {
	if Similarity(lastToken(key), lastToken(name)) < threshold {
		return 0
	}
	return Similarity(key, name)
}

func lastToken(key string) string {
	if i := strings.LastIndexByte(key, '_'); i >= 0 {
		return key[i+1:]
	}
	return key
}

func aliasesByField() map[string][]string {
	out := make(map[string][]string)
	for alias, f := range Aliases {
		out[f] = append(out[f], alias)
	}
	for f := range out {
		sort.Strings(out[f])
	}
	return out
}
