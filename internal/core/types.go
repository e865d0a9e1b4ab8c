package core

import (
	"time"
)

// FileStatus classifies a discovered file against persisted state.
type FileStatus string

const (
	StatusNew       FileStatus = "new"
	StatusChanged   FileStatus = "changed"
	StatusUnchanged FileStatus = "unchanged"
)

// RawRow is one data row keyed by its original (cleaned) header name.
type RawRow struct {
	Line   int               // 1-indexed line or sheet row in the source file
	Values map[string]string // header -> raw cell
}

// RawFile is one export file as discovered by the scanner.
// It is read once per distinct fingerprint and never mutated.
type RawFile struct {
	Path        string // slash-separated, relative to the input root
	AbsPath     string
	Fingerprint string // hex BLAKE3-256 of the file content
	Partition   string // inferred source id
	Size        int64
	ModTime     time.Time
	Header      []string // header row in column order
	Rows        []RawRow
}

// FileState is the persisted record of a fully merged file.
type FileState struct {
	Path        string    `json:"path"`
	Fingerprint string    `json:"fingerprint"`
	Partition   string    `json:"partition"`
	ProcessedAt time.Time `json:"processed_at"`
	RecordCount int       `json:"record_count"`
}

// Matches reports whether the stored state covers a file with fingerprint fp.
func (s *FileState) Matches(fp string) bool {
	return s != nil && s.Fingerprint == fp
}

// Closed vocabularies for categorical fields.
const (
	PropertyApartment    = "apartment"
	PropertyDuplex       = "duplex"
	PropertyTerrace      = "terrace"
	PropertyBungalow     = "bungalow"
	PropertyDetached     = "detached"
	PropertySemiDetached = "semi-detached"
	PropertyHouse        = "house"
	PropertyLand         = "land"
	PropertyCommercial   = "commercial"
	PropertyOther        = "other"

	ListingSale     = "sale"
	ListingRent     = "rent"
	ListingShortlet = "shortlet"
	ListingUnknown  = "unknown"
)

// CanonicalRecord is the fixed normalized shape all input converges to.
type CanonicalRecord struct {
	Seq uint64 `json:"seq,omitempty"` // assigned by the store on append

	// Identity
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	Partition string `json:"partition"`

	// Classification
	PropertyType string `json:"property_type"`
	ListingType  string `json:"listing_type"`

	// Magnitude
	Price    int64  `json:"price"`
	Currency string `json:"currency"`

	// Location
	Location string `json:"location"`
	Area     string `json:"area,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`

	// Quantities; nil means unknown
	Bedrooms  *int `json:"bedrooms,omitempty"`
	Bathrooms *int `json:"bathrooms,omitempty"`
	Toilets   *int `json:"toilets,omitempty"`

	// Descriptive
	Description string   `json:"description,omitempty"`
	Images      []string `json:"images,omitempty"`

	// Volatile; never part of the fingerprint
	ScrapedAt  time.Time `json:"scraped_at,omitempty"`
	SourceFile string    `json:"source_file,omitempty"`
	IngestedAt time.Time `json:"ingested_at,omitempty"`

	Fingerprint string `json:"fingerprint"`
}

// RejectReason names why a row was excluded by the normalizer.
type RejectReason string

const (
	RejectMissingPrice    RejectReason = "missing_price"
	RejectMissingLocation RejectReason = "missing_location"
	RejectEmptyRow        RejectReason = "empty_row"
)

// MatchKind says how an input column was bound to a canonical field.
type MatchKind string

const (
	MatchExact MatchKind = "exact"
	MatchAlias MatchKind = "alias"
	MatchFuzzy MatchKind = "fuzzy"
)

// ColumnMatch records the binding of one input column.
type ColumnMatch struct {
	Column string    `json:"column"`
	Field  string    `json:"field"`
	Kind   MatchKind `json:"kind"`
	Score  float64   `json:"score,omitempty"`
}

// QualityReport holds derived, non-persisted per-batch counts.
type QualityReport struct {
	RowsIn            int                  `json:"rows_in"`
	RowsNormalized    int                  `json:"rows_normalized"`
	RowsRejected      int                  `json:"rows_rejected"`
	Rejections        map[RejectReason]int `json:"rejections,omitempty"`
	DuplicatesInBatch int                  `json:"duplicates_in_batch"`
	DuplicatesInStore int                  `json:"duplicates_in_store"`
	Mapped            []ColumnMatch        `json:"mapped,omitempty"`
	Unmapped          []string             `json:"unmapped,omitempty"`
}

// Reject counts one excluded row.
func (q *QualityReport) Reject(reason RejectReason) {
	if q.Rejections == nil {
		q.Rejections = make(map[RejectReason]int)
	}
	q.Rejections[reason]++
	q.RowsRejected++
}

// Duplicates returns the total duplicates skipped at both levels.
func (q QualityReport) Duplicates() int {
	return q.DuplicatesInBatch + q.DuplicatesInStore
}

// FileOutcome is the run-log status of one file.
type FileOutcome string

const (
	OutcomeAccepted FileOutcome = "accepted"
	OutcomeSkipped  FileOutcome = "skipped"
	OutcomeError    FileOutcome = "error"
)

// FileReport is the run log entry for one file.
type FileReport struct {
	RunID      string        `json:"run_id"`
	Path       string        `json:"path"`
	Partition  string        `json:"partition,omitempty"`
	Status     FileStatus    `json:"status,omitempty"`
	Outcome    FileOutcome   `json:"outcome"`
	RowsIn     int           `json:"rows_in"`
	Normalized int           `json:"normalized"`
	Rejected   int           `json:"rejected"`
	Duplicates int           `json:"duplicates"`
	Merged     int           `json:"merged"`
	Total      int           `json:"total"`
	Quality    QualityReport `json:"quality"`
	Duration   time.Duration `json:"duration_ns"`
	Code       string        `json:"code,omitempty"`
	Error      string        `json:"error,omitempty"`
	DryRun     bool          `json:"dry_run,omitempty"`
}

// RunReport aggregates one pass over the input tree.
type RunReport struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	DryRun     bool         `json:"dry_run"`
	Files      []FileReport `json:"files"`
}

// Counts totals the run by outcome.
func (r RunReport) Counts() (accepted, skipped, failed, merged int) {
	for _, f := range r.Files {
		switch f.Outcome {
		case OutcomeAccepted:
			accepted++
		case OutcomeSkipped:
			skipped++
		case OutcomeError:
			failed++
		}
		merged += f.Merged
	}
	return accepted, skipped, failed, merged
}

// PartitionSummary is the machine-readable monitoring view of a partition.
type PartitionSummary struct {
	Key          string         `json:"key"`
	Records      int            `json:"records"`
	FilesMerged  int            `json:"files_merged"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Completeness map[string]int `json:"completeness,omitempty"` // field -> non-empty count
	Exports      []string       `json:"exports,omitempty"`
}
