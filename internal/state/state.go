// Package state persists the FileState table: which input files have been
// fully merged, keyed by path relative to the input root.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/JonMunkholm/consolidator/internal/core"
)

// SchemaVersion is the on-disk layout version of state.db.
const SchemaVersion = 1

// FileName is the state database name under the store root.
const FileName = "state.db"

var (
	// ErrLocked is returned when another process holds the state file lock.
	ErrLocked = errors.New("state table is locked by another process")

	// ErrCorrupt is returned for an unreadable database, a schema version
	// mismatch or an undecodable entry.
	ErrCorrupt = errors.New("state table is corrupt")

	// ErrReadOnly is returned by mutations on a read-only table.
	ErrReadOnly = errors.New("state table opened read-only")
)

var (
	bucketFiles = []byte("files")
	bucketMeta  = []byte("meta")
	keyVersion  = []byte("schema_version")
)

// Options configures Open.
type Options struct {
	// LockTimeout bounds the wait for the file lock (default 1s).
	LockTimeout time.Duration

	// ReadOnly opens with a shared lock and never creates the file;
	// a missing file reads as an empty table.
	ReadOnly bool
}

// Table is the FileState table. Holding a writable Table holds the
// process-level single-writer lock.
type Table struct {
	db       *bolt.DB // nil for a read-only view of a missing file
	path     string
	readOnly bool
}

// Open opens or creates the table at path.
func Open(path string, opts Options) (*Table, error) {
	timeout := opts.LockTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	t := &Table{path: path, readOnly: opts.ReadOnly}

	if opts.ReadOnly {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return t, nil
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: timeout, ReadOnly: opts.ReadOnly})
	if err != nil {
		return nil, openError(path, err)
	}
	t.db = db

	if err := t.init(); err != nil {
		db.Close()
		return nil, err
	}
	return t, nil
}

// openError maps bbolt open failures onto the package sentinels.
func openError(path string, err error) error {
	switch {
	case errors.Is(err, bolt.ErrTimeout):
		return fmt.Errorf("%w: %s", ErrLocked, path)
	case errors.Is(err, bolt.ErrInvalid), errors.Is(err, bolt.ErrVersionMismatch), errors.Is(err, bolt.ErrChecksum):
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	default:
		return fmt.Errorf("open state table %s: %w", path, err)
	}
}

// init creates buckets on first use and verifies the schema version.
func (t *Table) init() error {
	check := func(meta *bolt.Bucket) error {
		v := meta.Get(keyVersion)
		if v == nil {
			return nil
		}
		if n, err := strconv.Atoi(string(v)); err != nil || n != SchemaVersion {
			return fmt.Errorf("%w: schema version %q, want %d", ErrCorrupt, v, SchemaVersion)
		}
		return nil
	}

	if t.readOnly {
		return t.db.View(func(tx *bolt.Tx) error {
			if meta := tx.Bucket(bucketMeta); meta != nil {
				return check(meta)
			}
			return nil
		})
	}

	return t.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(bucketFiles); err != nil {
			return fmt.Errorf("create files bucket: %w", err)
		}
		if err := check(meta); err != nil {
			return err
		}
		return meta.Put(keyVersion, []byte(strconv.Itoa(SchemaVersion)))
	})
}

// Path returns the database file path.
func (t *Table) Path() string {
	return t.path
}

// Close releases the file lock.
func (t *Table) Close() error {
	if t.db == nil {
		return nil
	}
	return t.db.Close()
}

// Get returns the state for path, or nil when the file was never merged.
func (t *Table) Get(path string) (*core.FileState, error) {
	if t.db == nil {
		return nil, nil
	}

	var fs *core.FileState
	err := t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFiles)
		if b == nil {
			return nil
		}
		v := b.Get([]byte(path))
		if v == nil {
			return nil
		}
		var decoded core.FileState
		if err := json.Unmarshal(v, &decoded); err != nil {
			return fmt.Errorf("%w: entry %s: %v", ErrCorrupt, path, err)
		}
		fs = &decoded
		return nil
	})
	return fs, err
}

// Put records a fully merged file, replacing any earlier state for its path.
func (t *Table) Put(fs core.FileState) error {
	if t.readOnly || t.db == nil {
		return ErrReadOnly
	}
	data, err := json.Marshal(fs)
	if err != nil {
		return fmt.Errorf("encode state for %s: %w", fs.Path, err)
	}
	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).Put([]byte(fs.Path), data)
	})
}

// All returns every entry in path order.
func (t *Table) All() ([]core.FileState, error) {
	if t.db == nil {
		return nil, nil
	}

	var out []core.FileState
	err := t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFiles)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var fs core.FileState
			if err := json.Unmarshal(v, &fs); err != nil {
				return fmt.Errorf("%w: entry %s: %v", ErrCorrupt, k, err)
			}
			out = append(out, fs)
			return nil
		})
	})
	return out, err
}

// Reset discards every FileState so all files are reprocessed on the next
// run. Partition indexes are untouched, so reprocessing adds nothing that
// is already stored. Returns the number of entries removed.
func (t *Table) Reset() (int, error) {
	if t.readOnly || t.db == nil {
		return 0, ErrReadOnly
	}

	n := 0
	err := t.db.Update(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketFiles).Stats().KeyN
		if err := tx.DeleteBucket(bucketFiles); err != nil {
			return fmt.Errorf("delete files bucket: %w", err)
		}
		_, err := tx.CreateBucket(bucketFiles)
		return err
	})
	return n, err
}
