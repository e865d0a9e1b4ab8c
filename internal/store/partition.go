package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/JonMunkholm/consolidator/internal/core"
)

// MetaVersion is the layout version recorded in every partition.
const MetaVersion = 1

const partitionFile = "partition.db"

var (
	bucketRecords      = []byte("records")
	bucketFingerprints = []byte("fingerprints")
	bucketMeta         = []byte("meta")
	keyMeta            = []byte("partition")
)

// meta is the summary metadata persisted with each partition.
type meta struct {
	Version          int            `json:"version"`
	Key              string         `json:"key"`
	Records          int            `json:"records"`
	LastSeq          uint64         `json:"last_seq"`
	FilesMerged      int            `json:"files_merged"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Completeness     map[string]int `json:"completeness"`
	ExportsDirty     bool           `json:"exports_dirty"`
	ExportGeneration int            `json:"export_generation"`
	Exports          []string       `json:"exports,omitempty"`
}

func (m *meta) summary() core.PartitionSummary {
	return core.PartitionSummary{
		Key:          m.Key,
		Records:      m.Records,
		FilesMerged:  m.FilesMerged,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		Completeness: m.Completeness,
		Exports:      m.Exports,
	}
}

// partition is an open partition database.
type partition struct {
	key string
	dir string
	db  *bolt.DB
}

// openPartition opens the partition under dir. Writable opens create the
// directory, buckets and metadata if absent; read-only opens of a missing
// partition return (nil, nil).
func openPartition(key, dir string, readOnly bool, timeout time.Duration, now time.Time) (*partition, error) {
	path := filepath.Join(dir, partitionFile)
	if readOnly {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create partition directory: %w", err)
	}

	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: timeout, ReadOnly: readOnly})
	if err != nil {
		switch {
		case errors.Is(err, bolt.ErrTimeout):
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		case errors.Is(err, bolt.ErrInvalid), errors.Is(err, bolt.ErrVersionMismatch), errors.Is(err, bolt.ErrChecksum):
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
		}
		return nil, fmt.Errorf("open partition %s: %w", key, err)
	}
	p := &partition{key: key, dir: dir, db: db}

	if !readOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			for _, b := range [][]byte{bucketRecords, bucketFingerprints, bucketMeta} {
				if _, err := tx.CreateBucketIfNotExists(b); err != nil {
					return fmt.Errorf("create bucket %s: %w", b, err)
				}
			}
			if tx.Bucket(bucketMeta).Get(keyMeta) != nil {
				return nil
			}
			return putMeta(tx, &meta{
				Version:      MetaVersion,
				Key:          key,
				CreatedAt:    now,
				UpdatedAt:    now,
				Completeness: map[string]int{},
			})
		})
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	// Surface corruption at open rather than mid-merge
	if _, err := p.meta(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *partition) close() error {
	return p.db.Close()
}

func (p *partition) meta() (*meta, error) {
	var m *meta
	err := p.db.View(func(tx *bolt.Tx) error {
		var err error
		m, err = getMeta(tx, p.key)
		return err
	})
	return m, err
}

func getMeta(tx *bolt.Tx, key string) (*meta, error) {
	b := tx.Bucket(bucketMeta)
	if b == nil || tx.Bucket(bucketRecords) == nil || tx.Bucket(bucketFingerprints) == nil {
		return nil, fmt.Errorf("%w: partition %s: missing buckets", ErrCorrupt, key)
	}
	v := b.Get(keyMeta)
	if v == nil {
		return nil, fmt.Errorf("%w: partition %s: missing metadata", ErrCorrupt, key)
	}
	var m meta
	if err := json.Unmarshal(v, &m); err != nil {
		return nil, fmt.Errorf("%w: partition %s: %v", ErrCorrupt, key, err)
	}
	if m.Version != MetaVersion {
		return nil, fmt.Errorf("%w: partition %s: meta version %d, want %d", ErrCorrupt, key, m.Version, MetaVersion)
	}
	if m.Completeness == nil {
		m.Completeness = map[string]int{}
	}
	return &m, nil
}

func putMeta(tx *bolt.Tx, m *meta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode partition metadata: %w", err)
	}
	return tx.Bucket(bucketMeta).Put(keyMeta, data)
}

// fingerprints loads the fingerprint index into memory.
func (p *partition) fingerprints() (map[string]struct{}, error) {
	out := make(map[string]struct{})
	err := p.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFingerprints).ForEach(func(k, _ []byte) error {
			out[string(k)] = struct{}{}
			return nil
		})
	})
	return out, err
}

// forEach calls fn for every record with seq > after, in seq order.
func (p *partition) forEach(after uint64, fn func(core.CanonicalRecord) error) error {
	return p.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRecords).Cursor()
		for k, v := c.Seek(itob(after + 1)); k != nil; k, v = c.Next() {
			var rec core.CanonicalRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("%w: partition %s record %d: %v", ErrCorrupt, p.key, btoi(k), err)
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// all returns every record in seq order.
func (p *partition) all() ([]core.CanonicalRecord, error) {
	var out []core.CanonicalRecord
	err := p.forEach(0, func(r core.CanonicalRecord) error {
		out = append(out, r)
		return nil
	})
	return out, err
}

// itob returns an 8-byte big endian representation of v.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
