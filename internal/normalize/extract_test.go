package normalize

import "testing"

func TestParseCount(t *testing.T) {
	tests := []struct {
		input string
		want  int
		ok    bool
	}{
		{"3", 3, true},
		{"3.0", 3, true},
		{"3 beds", 3, true},
		{"4+", 4, true},
		{" 2 ", 2, true},
		{"", 0, false},
		{"three", 0, false},
		{"2.5", 0, false},
		{"500", 0, false},
	}

	for _, tt := range tests {
		got := ParseCount(tt.input)
		if (got != nil) != tt.ok {
			t.Errorf("ParseCount(%q) = %v, want ok=%v", tt.input, got, tt.ok)
			continue
		}
		if got != nil && *got != tt.want {
			t.Errorf("ParseCount(%q) = %d, want %d", tt.input, *got, tt.want)
		}
	}
}

func TestExtractCount(t *testing.T) {
	tests := []struct {
		name  string
		field string
		texts []string
		want  int
		ok    bool
	}{
		{"bedroom word", FieldBedrooms, []string{"Newly built 4 bedroom duplex"}, 4, true},
		{"hyphenated", FieldBedrooms, []string{"3-bed flat"}, 3, true},
		{"br suffix", FieldBedrooms, []string{"2br apartment"}, 2, true},
		{"label form", FieldBedrooms, []string{"Bedrooms: 5"}, 5, true},
		{"falls through to description", FieldBedrooms, []string{"Duplex", "Has 5 bedrooms"}, 5, true},
		{"baths", FieldBathrooms, []string{"4 bed, 3 baths"}, 3, true},
		{"toilets", FieldToilets, []string{"4 toilets and a BQ"}, 4, true},
		{"no keyword", FieldBedrooms, []string{"Lovely home in Ikoyi"}, 0, false},
		{"unknown field", FieldPrice, []string{"3 bedroom"}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCount(tt.field, tt.texts...)
			if (got != nil) != tt.ok {
				t.Fatalf("ExtractCount() = %v, want ok=%v", got, tt.ok)
			}
			if got != nil && *got != tt.want {
				t.Errorf("ExtractCount() = %d, want %d", *got, tt.want)
			}
		})
	}
}
