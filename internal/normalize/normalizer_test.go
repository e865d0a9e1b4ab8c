package normalize

import (
	"testing"
	"time"

	"github.com/JonMunkholm/consolidator/internal/core"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return New(Options{Now: func() time.Time { return fixedNow }})
}

func rows(header []string, lines ...[]string) []core.RawRow {
	out := make([]core.RawRow, 0, len(lines))
	for i, cells := range lines {
		values := make(map[string]string, len(header))
		for j, h := range header {
			if j < len(cells) {
				values[h] = cells[j]
			}
		}
		out = append(out, core.RawRow{Line: i + 2, Values: values})
	}
	return out
}

func TestNormalize_ShortFormsConverge(t *testing.T) {
	n := newTestNormalizer()

	headerA := []string{"beds", "addr", "cost"}
	recsA, qa := n.Normalize(rows(headerA, []string{"3", "VI", "₦5,000,000"}), headerA, "propertypro")

	headerB := []string{"bedrooms", "location", "price"}
	recsB, qb := n.Normalize(rows(headerB, []string{"3", "Victoria Island", "5M"}), headerB, "propertypro")

	if len(recsA) != 1 || len(recsB) != 1 {
		t.Fatalf("got %d and %d records, want 1 each (reports %+v, %+v)", len(recsA), len(recsB), qa, qb)
	}
	a, b := recsA[0], recsB[0]

	if a.Bedrooms == nil || *a.Bedrooms != 3 {
		t.Errorf("Bedrooms = %v, want 3", a.Bedrooms)
	}
	if a.Location != "Victoria Island" {
		t.Errorf("Location = %q, want %q", a.Location, "Victoria Island")
	}
	if a.Price != 5000000 {
		t.Errorf("Price = %d, want 5000000", a.Price)
	}
	if a.Title != b.Title || a.Location != b.Location || a.Price != b.Price || *a.Bedrooms != *b.Bedrooms {
		t.Errorf("records differ:\n a=%+v\n b=%+v", a, b)
	}
	if a.Fingerprint == "" || a.Fingerprint != b.Fingerprint {
		t.Errorf("Fingerprint a = %q, b = %q, want equal and non-empty", a.Fingerprint, b.Fingerprint)
	}
	if a.Title != "3 Bedroom Property in Victoria Island" {
		t.Errorf("Title = %q, want derived title", a.Title)
	}
	if a.State != "Lagos" || a.City != "Lagos" {
		t.Errorf("City, State = %q, %q; want Lagos, Lagos", a.City, a.State)
	}
}

func TestNormalize_Rejections(t *testing.T) {
	n := newTestNormalizer()
	header := []string{"title", "price", "location"}

	recs, q := n.Normalize(rows(header,
		[]string{"Good flat", "₦1,000,000", "Yaba"},
		[]string{"No price", "Price on request", "Yaba"},
		[]string{"No location", "2M", ""},
		[]string{"Neither", "", ""},
		[]string{"", "", ""},
	), header, "p")

	if len(recs) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(recs))
	}
	if q.RowsIn != 5 || q.RowsNormalized != 1 || q.RowsRejected != 4 {
		t.Errorf("report = in %d, normalized %d, rejected %d; want 5, 1, 4", q.RowsIn, q.RowsNormalized, q.RowsRejected)
	}

	want := map[core.RejectReason]int{
		core.RejectMissingPrice:    2,
		core.RejectMissingLocation: 1,
		core.RejectEmptyRow:        1,
	}
	for reason, count := range want {
		if q.Rejections[reason] != count {
			t.Errorf("Rejections[%s] = %d, want %d", reason, q.Rejections[reason], count)
		}
	}
}

func TestNormalize_FullRow(t *testing.T) {
	n := newTestNormalizer()
	header := []string{"Title", "Link", "Type", "Price", "Location", "Baths", "Description", "Photos", "Scraped At", "Agent"}
	line := []string{
		"Luxury 4 bedroom semi-detached duplex",
		"https://example.com/l/1",
		"",
		"₦85,000,000",
		"Lekki Ph 1, Lagos",
		"4",
		"Comes with 5 toilets. For sale.",
		"https://img.example.com/1.jpg|https://img.example.com/2.jpg",
		"2024-02-28T08:00:00Z",
		"Jane",
	}

	recs, q := n.Normalize(rows(header, line), header, "nigeriapropertycentre")
	if len(recs) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(recs))
	}
	r := recs[0]

	checks := []struct {
		name      string
		got, want any
	}{
		{"Title", r.Title, "Luxury 4 bedroom semi-detached duplex"},
		{"URL", r.URL, "https://example.com/l/1"},
		{"PropertyType", r.PropertyType, core.PropertySemiDetached},
		{"ListingType", r.ListingType, core.ListingSale},
		{"Price", r.Price, int64(85000000)},
		{"Currency", r.Currency, "NGN"},
		{"Location", r.Location, "Lekki Phase 1"},
		{"State", r.State, "Lagos"},
		{"Bedrooms", *r.Bedrooms, 4},
		{"Bathrooms", *r.Bathrooms, 4},
		{"Toilets", *r.Toilets, 5},
		{"Images", len(r.Images), 2},
		{"ScrapedAt", r.ScrapedAt, time.Date(2024, 2, 28, 8, 0, 0, 0, time.UTC)},
		{"IngestedAt", r.IngestedAt, fixedNow},
		{"Partition", r.Partition, "nigeriapropertycentre"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if len(q.Unmapped) != 1 || q.Unmapped[0] != "Agent" {
		t.Errorf("Unmapped = %v, want [Agent]", q.Unmapped)
	}
}

func TestNormalize_VolatileFieldsIgnoredByFingerprint(t *testing.T) {
	n := newTestNormalizer()
	header := []string{"title", "price", "location", "bedrooms", "description", "scraped_at", "images"}

	recs, _ := n.Normalize(rows(header,
		[]string{"2 bed flat", "1.5m", "Yaba", "2", "first crawl", "2024-01-01", "https://a.com/1.jpg"},
		[]string{"2 Bed  Flat", "₦1,500,000", "yaba", "2", "second crawl", "2024-02-01", ""},
	), header, "p")

	if len(recs) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(recs))
	}
	if recs[0].Fingerprint != recs[1].Fingerprint {
		t.Errorf("fingerprints differ for rows differing only in volatile fields")
	}
}

func TestNormalize_Currency(t *testing.T) {
	n := New(Options{DefaultCurrency: "ngn"})
	header := []string{"price", "currency", "location"}

	recs, _ := n.Normalize(rows(header,
		[]string{"1200", "USD", "Ikoyi"},
		[]string{"$900", "NGN", "Ikoyi"},
		[]string{"900", "", "Ikoyi"},
	), header, "p")

	want := []string{"USD", "USD", "NGN"}
	for i, r := range recs {
		if r.Currency != want[i] {
			t.Errorf("records[%d].Currency = %q, want %q", i, r.Currency, want[i])
		}
	}
}

func TestNormalize_LocationFallsBackToArea(t *testing.T) {
	n := newTestNormalizer()
	header := []string{"price", "location", "district", "region"}

	recs, _ := n.Normalize(rows(header, []string{"5m", "", "oniru", "lagos state"}), header, "p")
	if len(recs) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(recs))
	}
	if recs[0].Location != "Oniru" || recs[0].Area != "Oniru" || recs[0].State != "Lagos" {
		t.Errorf("location = %+v", recs[0])
	}
}

func TestNormalizeFile_SetsSourceFile(t *testing.T) {
	n := newTestNormalizer()
	raw := &core.RawFile{
		Path:      "propertypro/2024-03-01.csv",
		Partition: "propertypro",
		Header:    []string{"price", "location"},
	}
	raw.Rows = rows(raw.Header, []string{"5m", "Ajah"})

	recs, _ := n.NormalizeFile(raw)
	if len(recs) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(recs))
	}
	if recs[0].SourceFile != raw.Path || recs[0].Partition != "propertypro" {
		t.Errorf("SourceFile, Partition = %q, %q", recs[0].SourceFile, recs[0].Partition)
	}
}

func TestDeriveTitle(t *testing.T) {
	three := 3
	tests := []struct {
		rec  core.CanonicalRecord
		want string
	}{
		{core.CanonicalRecord{Bedrooms: &three, PropertyType: core.PropertyApartment, Location: "Victoria Island"}, "3 Bedroom Apartment in Victoria Island"},
		{core.CanonicalRecord{PropertyType: core.PropertyOther, Location: "Yaba"}, "Property in Yaba"},
		{core.CanonicalRecord{PropertyType: core.PropertyLand, Location: "Epe"}, "Land in Epe"},
	}

	for _, tt := range tests {
		if got := DeriveTitle(tt.rec); got != tt.want {
			t.Errorf("DeriveTitle() = %q, want %q", got, tt.want)
		}
	}
}

func TestNormalize_UpperCaseLocationConverges(t *testing.T) {
	n := newTestNormalizer()
	header := []string{"bedrooms", "location", "price"}

	recs, _ := n.Normalize(rows(header,
		[]string{"3", "YABA", "2M"},
		[]string{"3", "Yaba", "2M"},
	), header, "p")

	if len(recs) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(recs))
	}
	for _, r := range recs {
		if r.Location != "Yaba" {
			t.Errorf("Location = %q, want %q", r.Location, "Yaba")
		}
		if r.Title != "3 Bedroom Property in Yaba" {
			t.Errorf("Title = %q, want %q", r.Title, "3 Bedroom Property in Yaba")
		}
	}
	if recs[0].Fingerprint != recs[1].Fingerprint {
		t.Errorf("Fingerprint = %q and %q, want equal", recs[0].Fingerprint, recs[1].Fingerprint)
	}
}

func TestNormalize_RejectsFollowRequiredFields(t *testing.T) {
	var required []string
	for _, f := range All() {
		if f.Required {
			required = append(required, f.Name)
		}
	}

	n := newTestNormalizer()
	header := []string{"title", "price", "location"}
	_, q := n.Normalize(rows(header, []string{"Only a title", "", ""}), header, "p")

	if q.RowsRejected != 1 {
		t.Fatalf("RowsRejected = %d, want 1", q.RowsRejected)
	}
	if got := q.Rejections[MissingReason(required[0])]; got != 1 {
		t.Errorf("Rejections = %v, want one under %q", q.Rejections, MissingReason(required[0]))
	}
	if MissingReason(FieldPrice) != core.RejectMissingPrice || MissingReason(FieldLocation) != core.RejectMissingLocation {
		t.Errorf("MissingReason() does not match the core reject reasons")
	}
}

func TestFieldSpec_DefaultNormalizer(t *testing.T) {
	tests := []struct {
		field string
		input string
		want  string
	}{
		{FieldTitle, "  Spacious   3 bed\n flat ", "Spacious 3 bed flat"},
		{FieldLocation, " Lekki   Phase 1 ", "Lekki Phase 1"},
		{FieldPrice, "  ₦1,000,000 ", "₦1,000,000"},
	}

	for _, tt := range tests {
		spec, ok := Get(tt.field)
		if !ok || spec.Normalizer == nil {
			t.Fatalf("Get(%q) has no normalizer", tt.field)
		}
		if got := spec.Normalizer(tt.input); got != tt.want {
			t.Errorf("%s Normalizer(%q) = %q, want %q", tt.field, tt.input, got, tt.want)
		}
	}
}

func TestPopulated(t *testing.T) {
	beds := 2
	rec := core.CanonicalRecord{Title: "t", Price: 10, Location: "Yaba", Bedrooms: &beds}
	got := Populated(&rec)
	want := []string{FieldTitle, FieldPrice, FieldLocation, FieldBedrooms}
	if len(got) != len(want) {
		t.Fatalf("Populated() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Populated()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
