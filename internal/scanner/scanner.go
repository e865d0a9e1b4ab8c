// Package scanner discovers export files and classifies them against the
// persisted FileState table.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/JonMunkholm/consolidator/internal/core"
	"github.com/JonMunkholm/consolidator/internal/tabular"
)

// DefaultExtensions are the accepted file types when none are configured.
var DefaultExtensions = []string{".csv", ".tsv", ".txt", ".xlsx", ".xlsm"}

// StateReader looks up the persisted state of a file by its relative path.
// A nil state with nil error means the file was never merged.
type StateReader interface {
	Get(path string) (*core.FileState, error)
}

// Entry is one discovered file.
// File carries rows only when Status is new or changed.
type Entry struct {
	Status core.FileStatus
	File   *core.RawFile
	Prior  *core.FileState
}

// FileError is a per-file failure. The walk continues past it and no state
// is recorded, so the file is retried on the next run.
type FileError struct {
	Path      string
	Partition string
	Err       error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Options configures a Scanner.
type Options struct {
	MaxFileSize int64
	Extensions  []string
	// SkipDirs are absolute directories never descended into, such as the
	// store root when it lives inside the input tree.
	SkipDirs []string
	Decode   tabular.Options
}

// Scanner walks an export tree. It holds no state between scans.
type Scanner struct {
	maxSize  int64
	exts     map[string]bool
	skipDirs []string
	decode   tabular.Options
}

// New creates a Scanner.
func New(opts Options) *Scanner {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	s := &Scanner{
		maxSize: opts.MaxFileSize,
		exts:    make(map[string]bool, len(exts)),
		decode:  opts.Decode,
	}
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		s.exts[e] = true
	}
	for _, d := range opts.SkipDirs {
		if abs, err := filepath.Abs(d); err == nil {
			s.skipDirs = append(s.skipDirs, abs)
		}
	}
	return s
}

// Scan walks root in lexical order and yields one Entry per accepted file.
// Per-file failures are yielded as *FileError and the walk continues; any
// other error (unreadable root, state lookup failure, cancellation) ends
// the sequence. Scan has no side effects and can be called repeatedly.
func (s *Scanner) Scan(ctx context.Context, root string, states StateReader) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			yield(Entry{}, fmt.Errorf("resolve input root %s: %w", root, err))
			return
		}
		info, err := os.Stat(absRoot)
		if err != nil {
			yield(Entry{}, fmt.Errorf("input root: %w", err))
			return
		}
		if !info.IsDir() {
			yield(Entry{}, fmt.Errorf("input root %s is not a directory", root))
			return
		}

		stopped := false
		walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			rel := relPath(absRoot, path)
			if err != nil {
				if path == absRoot {
					return err
				}
				if !yield(Entry{}, &FileError{Path: rel, Partition: InferPartition(rel), Err: fmt.Errorf("%w: %v", core.ErrUnreadable, err)}) {
					stopped = true
					return filepath.SkipAll
				}
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				if path != absRoot && (isHidden(d.Name()) || slices.Contains(s.skipDirs, path)) {
					return filepath.SkipDir
				}
				return nil
			}
			if isHidden(d.Name()) || !s.exts[strings.ToLower(filepath.Ext(path))] {
				return nil
			}

			entry, err := s.scanFile(path, rel, states)
			var fe *FileError
			if err != nil && !errors.As(err, &fe) {
				return err
			}
			if !yield(entry, err) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		})

		if walkErr != nil && !stopped {
			yield(Entry{}, walkErr)
		}
	}
}

func (s *Scanner) scanFile(path, rel string, states StateReader) (Entry, error) {
	partition := InferPartition(rel)
	fileErr := func(err error) error {
		return &FileError{Path: rel, Partition: partition, Err: err}
	}

	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, fileErr(fmt.Errorf("%w: %v", core.ErrUnreadable, err))
	}
	if s.maxSize > 0 && info.Size() > s.maxSize {
		return Entry{}, fileErr(fmt.Errorf("%w: %d bytes exceeds limit of %d", core.ErrFileTooLarge, info.Size(), s.maxSize))
	}

	fp, err := hashFile(path)
	if err != nil {
		return Entry{}, fileErr(fmt.Errorf("%w: %v", core.ErrUnreadable, err))
	}

	prior, err := states.Get(rel)
	if err != nil {
		return Entry{}, fmt.Errorf("lookup state for %s: %w", rel, err)
	}

	raw := &core.RawFile{
		Path:        rel,
		AbsPath:     path,
		Fingerprint: fp,
		Partition:   partition,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
	}
	entry := Entry{File: raw, Prior: prior}

	switch {
	case prior == nil:
		entry.Status = core.StatusNew
	case prior.Matches(fp):
		entry.Status = core.StatusUnchanged
		return entry, nil
	default:
		entry.Status = core.StatusChanged
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, fileErr(fmt.Errorf("%w: %v", core.ErrUnreadable, err))
	}
	// The file may have been rewritten since it was hashed
	raw.Fingerprint = core.HashBytes(data)
	raw.Size = int64(len(data))

	table, err := tabular.Decode(rel, data, s.decode)
	if err != nil {
		return Entry{}, fileErr(err)
	}
	raw.Header = table.Header
	raw.Rows = table.Rows
	return entry, nil
}

// hashFile streams the file through BLAKE3 without holding it in memory.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
