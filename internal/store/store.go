// Package store is the consolidated store: one append-only partition per
// source, each a bbolt database holding records in sequence order, a
// fingerprint index and summary metadata, plus derived flat exports.
//
// Layout under the store root:
//
//	partitions/<key>/partition.db
//	partitions/<key>/exports/records.csv
//	partitions/<key>/exports/records.parquet
//	summary.json
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/JonMunkholm/consolidator/internal/core"
	"github.com/JonMunkholm/consolidator/internal/dedupe"
	"github.com/JonMunkholm/consolidator/internal/normalize"
)

// PartitionsDir and SummaryFile are fixed names under the store root.
const (
	PartitionsDir = "partitions"
	SummaryFile   = "summary.json"
)

var (
	// ErrCorrupt is returned for an unreadable partition database, a meta
	// version mismatch or an undecodable record.
	ErrCorrupt = errors.New("partition store is corrupt")

	// ErrLocked is returned when a partition file lock cannot be taken.
	ErrLocked = errors.New("partition is locked")

	// ErrReadOnly is returned by Merge on a read-only Manager.
	ErrReadOnly = errors.New("store opened read-only")
)

// Options configures a Manager.
type Options struct {
	CSV         bool
	Parquet     bool
	LockTimeout time.Duration
	ReadOnly    bool
	Now         func() time.Time
}

// MergeResult reports one merge.
type MergeResult struct {
	Added   int
	Total   int
	Exports []string
}

// Summary is the machine-readable view of the whole store.
type Summary struct {
	GeneratedAt time.Time               `json:"generated_at"`
	Partitions  []core.PartitionSummary `json:"partitions"`
}

// Manager owns every partition under a store root. Calls for the same
// partition are serialized; distinct partitions may merge in parallel.
type Manager struct {
	root string
	opts Options

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	summaryMu sync.Mutex
}

// New creates a Manager rooted at root. Nothing is created on disk until
// the first non-empty merge.
func New(root string, opts Options) *Manager {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{root: root, opts: opts, locks: make(map[string]*sync.Mutex)}
}

// Root returns the store root directory.
func (m *Manager) Root() string {
	return m.root
}

// lock serializes access to one partition within the process.
func (m *Manager) lock(key string) func() {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (m *Manager) dir(key string) string {
	return filepath.Join(m.root, PartitionsDir, key)
}

func (m *Manager) rel(path string) string {
	rel, err := filepath.Rel(m.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (m *Manager) now() time.Time {
	return m.opts.Now().UTC()
}

// open opens a partition; read-only opens of a missing partition return nil.
func (m *Manager) open(key string, readOnly bool) (*partition, error) {
	return openPartition(key, m.dir(key), readOnly, m.opts.LockTimeout, m.now())
}

// Index loads the fingerprint index of a partition without creating
// anything. A missing partition yields an empty index.
func (m *Manager) Index(key string) (dedupe.Set, error) {
	unlock := m.lock(key)
	defer unlock()

	p, err := m.open(key, true)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return dedupe.Set{}, nil
	}
	defer p.close()

	fps, err := p.fingerprints()
	if err != nil {
		return nil, fmt.Errorf("load fingerprint index for %s: %w", key, err)
	}
	return dedupe.Set(fps), nil
}

// Merge appends records to the partition, regenerates its exports and
// rewrites summary.json. An empty batch performs no writes unless an earlier
// merge left the exports stale, in which case only the exports are rebuilt.
// Records already indexed are skipped, so the partition never holds two
// records with the same fingerprint.
func (m *Manager) Merge(ctx context.Context, key string, records []core.CanonicalRecord) (MergeResult, error) {
	if m.opts.ReadOnly {
		return MergeResult{}, ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return MergeResult{}, err
	}

	res, err := m.merge(key, records)
	if err != nil {
		return res, fmt.Errorf("%w: partition %s: %w", core.ErrMergeFailed, key, err)
	}
	return res, nil
}

func (m *Manager) merge(key string, records []core.CanonicalRecord) (MergeResult, error) {
	unlock := m.lock(key)
	released := false
	release := func() {
		if !released {
			released = true
			unlock()
		}
	}
	defer release()

	if len(records) == 0 {
		ro, err := m.open(key, true)
		if err != nil || ro == nil {
			return MergeResult{}, err
		}
		md, err := ro.meta()
		ro.close()
		if err != nil {
			return MergeResult{}, err
		}
		if !md.ExportsDirty {
			return MergeResult{Total: md.Records, Exports: md.Exports}, nil
		}
	}

	p, err := m.open(key, false)
	if err != nil {
		return MergeResult{}, err
	}
	defer p.close()

	res := MergeResult{}
	if len(records) > 0 {
		added, total, err := m.appendRecords(p, records)
		if err != nil {
			return res, err
		}
		res.Added, res.Total = added, total
		if added == 0 {
			md, err := p.meta()
			if err != nil {
				return res, err
			}
			if !md.ExportsDirty {
				res.Exports = md.Exports
				return res, nil
			}
		}
	}

	exports, err := m.exports(p)
	if err != nil {
		return res, err
	}
	total, err := m.markExported(p, exports)
	if err != nil {
		return res, err
	}
	res.Total, res.Exports = total, exports

	p.close()
	release()

	if err := m.WriteSummary(); err != nil {
		return res, fmt.Errorf("write summary: %w", err)
	}
	return res, nil
}

// errNothingAdded rolls back a transaction in which every record was
// already indexed.
var errNothingAdded = errors.New("nothing added")

// appendRecords writes records, index entries and metadata in one
// transaction and marks the exports dirty.
func (m *Manager) appendRecords(p *partition, records []core.CanonicalRecord) (added, total int, err error) {
	now := m.now()
	err = p.db.Update(func(tx *bolt.Tx) error {
		md, err := getMeta(tx, p.key)
		if err != nil {
			return err
		}
		recs := tx.Bucket(bucketRecords)
		fps := tx.Bucket(bucketFingerprints)

		for i := range records {
			r := records[i]
			if fps.Get([]byte(r.Fingerprint)) != nil {
				continue
			}
			seq, err := recs.NextSequence()
			if err != nil {
				return err
			}
			r.Seq = seq
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			if err := recs.Put(itob(seq), data); err != nil {
				return err
			}
			if err := fps.Put([]byte(r.Fingerprint), itob(seq)); err != nil {
				return err
			}
			for _, f := range normalize.Populated(&r) {
				md.Completeness[f]++
			}
			md.LastSeq = seq
			added++
		}

		total = md.Records + added
		if added == 0 {
			return errNothingAdded
		}
		md.Records = total
		md.FilesMerged++
		md.UpdatedAt = now
		md.ExportsDirty = true
		return putMeta(tx, md)
	})
	if errors.Is(err, errNothingAdded) {
		err = nil
	}
	return added, total, err
}

// markExported clears the dirty flag after exports were rebuilt.
func (m *Manager) markExported(p *partition, exports []string) (int, error) {
	total := 0
	err := p.db.Update(func(tx *bolt.Tx) error {
		md, err := getMeta(tx, p.key)
		if err != nil {
			return err
		}
		md.ExportsDirty = false
		md.ExportGeneration++
		md.Exports = exports
		total = md.Records
		return putMeta(tx, md)
	})
	return total, err
}

// Keys lists existing partitions in lexical order.
func (m *Manager) Keys() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(m.root, PartitionsDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	var keys []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(m.root, PartitionsDir, e.Name(), partitionFile)); err == nil {
			keys = append(keys, e.Name())
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// PartitionSummary returns the summary of one partition; ok is false when
// the partition does not exist.
func (m *Manager) PartitionSummary(key string) (core.PartitionSummary, bool, error) {
	unlock := m.lock(key)
	defer unlock()

	p, err := m.open(key, true)
	if err != nil || p == nil {
		return core.PartitionSummary{}, false, err
	}
	defer p.close()

	md, err := p.meta()
	if err != nil {
		return core.PartitionSummary{}, false, err
	}
	return md.summary(), true, nil
}

// Summary returns the summaries of every partition.
func (m *Manager) Summary() (Summary, error) {
	keys, err := m.Keys()
	if err != nil {
		return Summary{}, err
	}

	s := Summary{GeneratedAt: m.now(), Partitions: []core.PartitionSummary{}}
	for _, key := range keys {
		ps, ok, err := m.PartitionSummary(key)
		if err != nil {
			return Summary{}, err
		}
		if ok {
			s.Partitions = append(s.Partitions, ps)
		}
	}
	return s, nil
}

// WriteSummary rewrites summary.json from the current partition metadata.
func (m *Manager) WriteSummary() error {
	m.summaryMu.Lock()
	defer m.summaryMu.Unlock()

	s, err := m.Summary()
	if err != nil {
		return err
	}
	return WriteFileAtomic(filepath.Join(m.root, SummaryFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	})
}

// Records yields the partition's records with seq greater than afterSeq,
// in seq order. A missing partition yields nothing.
func (m *Manager) Records(key string, afterSeq uint64) iter.Seq2[core.CanonicalRecord, error] {
	return func(yield func(core.CanonicalRecord, error) bool) {
		unlock := m.lock(key)
		defer unlock()

		p, err := m.open(key, true)
		if err != nil {
			yield(core.CanonicalRecord{}, err)
			return
		}
		if p == nil {
			return
		}
		defer p.close()

		errStop := errors.New("stop")
		err = p.forEach(afterSeq, func(r core.CanonicalRecord) error {
			if !yield(r, nil) {
				return errStop
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStop) {
			yield(core.CanonicalRecord{}, err)
		}
	}
}
