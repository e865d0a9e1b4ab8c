// Package dedupe removes records whose content fingerprint is already known,
// either earlier in the same batch or in the partition store.
package dedupe

import "github.com/JonMunkholm/consolidator/internal/core"

// Index answers fingerprint membership for a partition.
type Index interface {
	Has(fingerprint string) bool
}

// Stats splits removed records by where their duplicate was found.
type Stats struct {
	InBatch int
	InStore int
	Kept    int
}

// Removed returns the total number of dropped records.
func (s Stats) Removed() int {
	return s.InBatch + s.InStore
}

// Dedupe keeps the first record for each fingerprint not present in
// existing. Output order is input order minus removed records.
// A nil existing index is treated as empty.
func Dedupe(records []core.CanonicalRecord, existing Index) ([]core.CanonicalRecord, Stats) {
	var stats Stats
	seen := make(map[string]struct{}, len(records))
	out := make([]core.CanonicalRecord, 0, len(records))

	for _, r := range records {
		if _, dup := seen[r.Fingerprint]; dup {
			stats.InBatch++
			continue
		}
		if existing != nil && existing.Has(r.Fingerprint) {
			stats.InStore++
			continue
		}
		seen[r.Fingerprint] = struct{}{}
		out = append(out, r)
	}
	stats.Kept = len(out)
	return out, stats
}

// Set is an in-memory Index.
type Set map[string]struct{}

// Has reports whether fp is in the set.
func (s Set) Has(fp string) bool {
	_, ok := s[fp]
	return ok
}

// Add inserts fingerprints.
func (s Set) Add(fps ...string) {
	for _, fp := range fps {
		s[fp] = struct{}{}
	}
}

// Overlay answers Has from base and then from pending, so a dry run can
// count records it would have added in earlier files of the same run.
type Overlay struct {
	Base    Index
	Pending Set
}

// NewOverlay wraps base with an empty pending set.
func NewOverlay(base Index) *Overlay {
	return &Overlay{Base: base, Pending: make(Set)}
}

// Has reports membership in either layer.
func (o *Overlay) Has(fp string) bool {
	if o.Pending.Has(fp) {
		return true
	}
	return o.Base != nil && o.Base.Has(fp)
}

// Add records fingerprints in the pending layer.
func (o *Overlay) Add(records []core.CanonicalRecord) {
	for _, r := range records {
		o.Pending.Add(r.Fingerprint)
	}
}
