package dedupe

import (
	"testing"

	"github.com/JonMunkholm/consolidator/internal/core"
)

func recs(fps ...string) []core.CanonicalRecord {
	out := make([]core.CanonicalRecord, len(fps))
	for i, fp := range fps {
		out[i] = core.CanonicalRecord{Fingerprint: fp, Title: fp + "-" + string(rune('a'+i))}
	}
	return out
}

func fingerprints(rs []core.CanonicalRecord) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Fingerprint
	}
	return out
}

func TestDedupe(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		existing Set
		want     []string
		stats    Stats
	}{
		{
			name:  "no duplicates",
			input: []string{"a", "b", "c"},
			want:  []string{"a", "b", "c"},
			stats: Stats{Kept: 3},
		},
		{
			name:  "in batch keeps first",
			input: []string{"a", "b", "a", "a"},
			want:  []string{"a", "b"},
			stats: Stats{InBatch: 2, Kept: 2},
		},
		{
			name:     "against store",
			input:    []string{"a", "b", "c"},
			existing: Set{"b": {}},
			want:     []string{"a", "c"},
			stats:    Stats{InStore: 1, Kept: 2},
		},
		{
			name:     "both levels",
			input:    []string{"x", "a", "x", "a"},
			existing: Set{"x": {}},
			want:     []string{"a"},
			stats:    Stats{InBatch: 1, InStore: 2, Kept: 1},
		},
		{
			name:  "empty",
			input: nil,
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var idx Index
			if tt.existing != nil {
				idx = tt.existing
			}
			got, stats := Dedupe(recs(tt.input...), idx)

			gotFPs := fingerprints(got)
			if len(gotFPs) != len(tt.want) {
				t.Fatalf("Dedupe() = %v, want %v", gotFPs, tt.want)
			}
			for i := range gotFPs {
				if gotFPs[i] != tt.want[i] {
					t.Errorf("Dedupe()[%d] = %q, want %q", i, gotFPs[i], tt.want[i])
				}
			}
			if stats != tt.stats {
				t.Errorf("Stats = %+v, want %+v", stats, tt.stats)
			}
		})
	}
}

func TestDedupe_FirstWriteWins(t *testing.T) {
	in := recs("a", "a")
	got, _ := Dedupe(in, nil)
	if len(got) != 1 || got[0].Title != in[0].Title {
		t.Errorf("Dedupe() kept %+v, want the first record", got)
	}
}

func TestOverlay(t *testing.T) {
	o := NewOverlay(Set{"base": {}})
	if !o.Has("base") {
		t.Error("Has(base) = false, want true")
	}
	if o.Has("new") {
		t.Error("Has(new) = true before Add")
	}

	o.Add(recs("new"))
	if !o.Has("new") {
		t.Error("Has(new) = false after Add")
	}

	out, stats := Dedupe(recs("new", "base", "other"), o)
	if len(out) != 1 || out[0].Fingerprint != "other" || stats.InStore != 2 {
		t.Errorf("Dedupe over overlay = %v, %+v", fingerprints(out), stats)
	}

	if NewOverlay(nil).Has("x") {
		t.Error("nil base overlay reported membership")
	}
}
