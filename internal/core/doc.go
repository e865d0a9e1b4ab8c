// Package core defines the data model shared by every stage of the export
// consolidation pipeline.
//
// The package is the vocabulary of the pipeline and carries no I/O. Stages
// exchange these types:
//
//   - [RawFile]: one discovered export file with its ordered raw rows.
//   - [FileState]: persisted bookkeeping deciding whether a file is reprocessed.
//   - [CanonicalRecord]: the fixed normalized shape every row converges to.
//   - [QualityReport]: per-batch counts emitted by the normalizer and deduplicator.
//   - [FileReport] and [RunReport]: the run log.
//
// # Fingerprints
//
// A record's content fingerprint is computed by [Fingerprint] from a stable
// identity subset (title, price, location, bedrooms). Volatile fields such as
// ScrapedAt and SourceFile never participate, so the same listing scraped
// twice hashes identically.
//
// # Error Codes
//
// [Classify] maps pipeline errors to stable codes used as run-log fields and
// metric labels:
//
//	FILE001  - file could not be read
//	FILE002  - file is not valid tabular data
//	FILE003  - file exceeds the configured size limit
//	FILE004  - file has no data rows
//	STORE001 - partition merge failed
//	STATE001 - file state commit failed
//	ERR000   - anything else
package core
