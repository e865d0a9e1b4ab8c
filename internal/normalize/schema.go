package normalize

import (
	"fmt"
	"sync"

	"github.com/JonMunkholm/consolidator/internal/core"
)

// FieldKind selects the normalization rule applied to a canonical field.
type FieldKind int

const (
	KindText FieldKind = iota
	KindURL
	KindMagnitude
	KindCurrency
	KindLocation
	KindCategory
	KindCount
	KindImages
	KindTimestamp
)

// FieldSpec declares one canonical field.
type FieldSpec struct {
	Name       string
	Kind       FieldKind
	Required   bool                // rows without it are rejected
	Normalizer func(string) string // cell cleaner; defaults by Kind
}

// Canonical field names.
const (
	FieldTitle        = "title"
	FieldURL          = "url"
	FieldPropertyType = "property_type"
	FieldListingType  = "listing_type"
	FieldPrice        = "price"
	FieldCurrency     = "currency"
	FieldLocation     = "location"
	FieldArea         = "area"
	FieldCity         = "city"
	FieldState        = "state"
	FieldBedrooms     = "bedrooms"
	FieldBathrooms    = "bathrooms"
	FieldToilets      = "toilets"
	FieldDescription  = "description"
	FieldImages       = "images"
	FieldScrapedAt    = "scraped_at"
)

var (
	fields   []FieldSpec
	fieldIdx = make(map[string]int)
	fieldsMu sync.RWMutex
)

func init() {
	for _, spec := range []FieldSpec{
		{Name: FieldTitle, Kind: KindText},
		{Name: FieldURL, Kind: KindURL},
		{Name: FieldPropertyType, Kind: KindCategory},
		{Name: FieldListingType, Kind: KindCategory},
		{Name: FieldPrice, Kind: KindMagnitude, Required: true},
		{Name: FieldCurrency, Kind: KindCurrency},
		{Name: FieldLocation, Kind: KindLocation, Required: true},
		{Name: FieldArea, Kind: KindLocation},
		{Name: FieldCity, Kind: KindLocation},
		{Name: FieldState, Kind: KindLocation},
		{Name: FieldBedrooms, Kind: KindCount},
		{Name: FieldBathrooms, Kind: KindCount},
		{Name: FieldToilets, Kind: KindCount},
		{Name: FieldDescription, Kind: KindText},
		{Name: FieldImages, Kind: KindImages},
		{Name: FieldScrapedAt, Kind: KindTimestamp},
	} {
		Register(spec)
	}
}

// Register adds a canonical field. Declaration order breaks ties in
// fuzzy header matching and orders required-field rejections.
// Panics if a field with the same name is already registered.
func Register(spec FieldSpec) {
	fieldsMu.Lock()
	defer fieldsMu.Unlock()

	if spec.Normalizer == nil {
		spec.Normalizer = cleanerFor(spec.Kind)
	}
	if _, exists := fieldIdx[spec.Name]; exists {
		panic(fmt.Sprintf("field already registered: %s", spec.Name))
	}
	fieldIdx[spec.Name] = len(fields)
	fields = append(fields, spec)
}

// cleanerFor returns the default cell cleaner of a kind. Free text and
// locations also collapse inner whitespace.
func cleanerFor(kind FieldKind) func(string) string {
	switch kind {
	case KindText, KindLocation, KindCategory:
		return CleanText
	default:
		return core.CleanCell
	}
}

// Get returns a field spec by name.
// Returns false if not found.
func Get(name string) (FieldSpec, bool) {
	fieldsMu.RLock()
	defer fieldsMu.RUnlock()

	i, ok := fieldIdx[name]
	if !ok {
		return FieldSpec{}, false
	}
	return fields[i], true
}

// All returns every field in declaration order.
func All() []FieldSpec {
	fieldsMu.RLock()
	defer fieldsMu.RUnlock()

	out := make([]FieldSpec, len(fields))
	copy(out, fields)
	return out
}

// Required returns the names of mandatory fields.
func Required() []string {
	var out []string
	for _, f := range All() {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// MissingReason is the rejection counted for a row lacking a required field.
func MissingReason(field string) core.RejectReason {
	return core.RejectReason("missing_" + field)
}

// Populated lists the canonical fields r carries a value for, in
// declaration order.
func Populated(r *core.CanonicalRecord) []string {
	have := map[string]bool{
		FieldTitle:        r.Title != "",
		FieldURL:          r.URL != "",
		FieldPropertyType: r.PropertyType != "" && r.PropertyType != core.PropertyOther,
		FieldListingType:  r.ListingType != "" && r.ListingType != core.ListingUnknown,
		FieldPrice:        r.Price > 0,
		FieldCurrency:     r.Currency != "",
		FieldLocation:     r.Location != "",
		FieldArea:         r.Area != "",
		FieldCity:         r.City != "",
		FieldState:        r.State != "",
		FieldBedrooms:     r.Bedrooms != nil,
		FieldBathrooms:    r.Bathrooms != nil,
		FieldToilets:      r.Toilets != nil,
		FieldDescription:  r.Description != "",
		FieldImages:       len(r.Images) > 0,
		FieldScrapedAt:    !r.ScrapedAt.IsZero(),
	}

	var out []string
	for _, f := range All() {
		if have[f.Name] {
			out = append(out, f.Name)
		}
	}
	return out
}

// missingRequired returns the first required field r lacks.
func missingRequired(r *core.CanonicalRecord) (string, bool) {
	have := make(map[string]bool)
	for _, f := range Populated(r) {
		have[f] = true
	}
	for _, f := range All() {
		if f.Required && !have[f.Name] {
			return f.Name, true
		}
	}
	return "", false
}
