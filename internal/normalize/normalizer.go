package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/consolidator/internal/core"
)

// Default tuning values.
const (
	DefaultFuzzyThreshold = 0.82
	DefaultCurrency       = "NGN"
)

// Options configures a Normalizer.
type Options struct {
	FuzzyThreshold  float64
	DefaultCurrency string
	Now             func() time.Time
}

// Normalizer converts raw rows into canonical records.
// It holds no state between calls and is safe for concurrent use.
type Normalizer struct {
	threshold float64
	currency  string
	now       func() time.Time
}

// New creates a Normalizer, filling zero options with defaults.
func New(opts Options) *Normalizer {
	n := &Normalizer{
		threshold: opts.FuzzyThreshold,
		currency:  strings.ToUpper(opts.DefaultCurrency),
		now:       opts.Now,
	}
	if n.threshold <= 0 {
		n.threshold = DefaultFuzzyThreshold
	}
	if n.currency == "" {
		n.currency = DefaultCurrency
	}
	if n.now == nil {
		n.now = time.Now
	}
	return n
}

// NormalizeFile normalizes a scanned file, stamping SourceFile.
func (n *Normalizer) NormalizeFile(raw *core.RawFile) ([]core.CanonicalRecord, core.QualityReport) {
	records, q := n.Normalize(raw.Rows, raw.Header, raw.Partition)
	for i := range records {
		records[i].SourceFile = raw.Path
	}
	return records, q
}

// Normalize maps header onto canonical fields and converts every row.
// Rows missing a required field are dropped and counted in the report under
// the first missing one in declaration order; they are never errors.
func (n *Normalizer) Normalize(rows []core.RawRow, header []string, partition string) ([]core.CanonicalRecord, core.QualityReport) {
	mapping := MapHeader(header, n.threshold)
	q := core.QualityReport{
		Mapped:   mapping.Matches,
		Unmapped: mapping.Unmapped,
	}

	ingested := n.now().UTC()
	records := make([]core.CanonicalRecord, 0, len(rows))
	for _, row := range rows {
		q.RowsIn++

		rec, reason, ok := n.normalizeRow(mapping, row)
		if !ok {
			q.Reject(reason)
			continue
		}
		rec.Partition = partition
		rec.IngestedAt = ingested
		rec.Fingerprint = core.Fingerprint(rec)

		records = append(records, rec)
		q.RowsNormalized++
	}
	return records, q
}

// cells applies each bound field's Normalizer to its raw cell.
func cells(m Mapping, row core.RawRow) map[string]string {
	out := make(map[string]string, len(m.Columns))
	for _, spec := range All() {
		col, ok := m.Column(spec.Name)
		if !ok {
			continue
		}
		if raw := row.Values[col]; raw != "" {
			out[spec.Name] = spec.Normalizer(raw)
		}
	}
	return out
}

func (n *Normalizer) normalizeRow(m Mapping, row core.RawRow) (core.CanonicalRecord, core.RejectReason, bool) {
	if isBlankRow(row) {
		return core.CanonicalRecord{}, core.RejectEmptyRow, false
	}
	values := cells(m, row)
	get := func(field string) string { return values[field] }

	rawPrice := get(FieldPrice)
	price, currency, _ := ParsePrice(rawPrice, "")
	if currency == "" {
		currency = ParseCurrency(get(FieldCurrency))
	}
	if currency == "" {
		currency = n.currency
	}

	loc := n.location(get)
	title := get(FieldTitle)
	description := get(FieldDescription)

	rec := core.CanonicalRecord{
		Title:       title,
		URL:         ParseURL(get(FieldURL)),
		Price:       price,
		Currency:    currency,
		Location:    loc.Text,
		Area:        loc.Area,
		City:        loc.City,
		State:       loc.State,
		Description: description,
		Images:      ParseImages(get(FieldImages)),
	}

	if field, missing := missingRequired(&rec); missing {
		return core.CanonicalRecord{}, MissingReason(field), false
	}

	rec.PropertyType = ClassifyProperty(get(FieldPropertyType), title, description)
	rec.ListingType = ClassifyListing(get(FieldListingType), title, rawPrice, description)

	rec.Bedrooms = count(get(FieldBedrooms), FieldBedrooms, title, description)
	rec.Bathrooms = count(get(FieldBathrooms), FieldBathrooms, title, description)
	rec.Toilets = count(get(FieldToilets), FieldToilets, title, description)

	if ts, ok := ParseTimestamp(get(FieldScrapedAt)); ok {
		rec.ScrapedAt = ts
	}

	if rec.Title == "" {
		rec.Title = DeriveTitle(rec)
	}
	return rec, "", true
}

// location resolves the location column, falling back to area then city
// when it is blank. Explicit area, city and state columns win over values
// derived from the location text.
func (n *Normalizer) location(get func(string) string) Location {
	area := CleanText(get(FieldArea))
	city := CleanText(get(FieldCity))
	state := CleanText(get(FieldState))

	text := get(FieldLocation)
	if core.CleanCell(text) == "" {
		text = area
	}
	if core.CleanCell(text) == "" {
		text = city
	}
	loc := ParseLocation(text)

	if area != "" {
		loc.Area = ResolveLocation(area)
	}
	if city != "" {
		loc.City = ResolveLocation(city)
	}
	if state != "" {
		if s, ok := NormalizeState(state); ok {
			loc.State = s
		} else {
			loc.State = ResolveLocation(state)
		}
	}
	return loc
}

func count(cell, field string, texts ...string) *int {
	if v := ParseCount(cell); v != nil {
		return v
	}
	return ExtractCount(field, texts...)
}

// DeriveTitle builds a deterministic title for rows that carry none,
// e.g. "3 Bedroom Apartment in Victoria Island".
func DeriveTitle(rec core.CanonicalRecord) string {
	kind := "Property"
	if rec.PropertyType != "" && rec.PropertyType != core.PropertyOther {
		kind = titleCase(rec.PropertyType)
	}

	var b strings.Builder
	if rec.Bedrooms != nil && *rec.Bedrooms > 0 {
		fmt.Fprintf(&b, "%d Bedroom ", *rec.Bedrooms)
	}
	b.WriteString(kind)
	if rec.Location != "" {
		b.WriteString(" in ")
		b.WriteString(rec.Location)
	}
	return b.String()
}

// HeaderScore counts cells naming a canonical field or alias. The decoder
// uses it to pick the header row.
func HeaderScore(cells []string) int {
	n := 0
	for _, c := range cells {
		key := CanonicalKey(c)
		if key == "" {
			continue
		}
		if _, ok := Get(key); ok {
			n++
			continue
		}
		if _, ok := Aliases[key]; ok {
			n++
		}
	}
	return n
}

func isBlankRow(row core.RawRow) bool {
	for _, v := range row.Values {
		if core.CleanCell(v) != "" {
			return false
		}
	}
	return true
}
