package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/consolidator/internal/core"
)

type fakeStates map[string]*core.FileState

func (f fakeStates) Get(path string) (*core.FileState, error) {
	return f[path], nil
}

type failingStates struct{}

func (failingStates) Get(string) (*core.FileState, error) {
	return nil, errors.New("state table corrupt")
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func collect(t *testing.T, s *Scanner, root string, states StateReader) ([]Entry, []error) {
	t.Helper()
	var entries []Entry
	var errs []error
	for e, err := range s.Scan(context.Background(), root, states) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, errs
}

const listing = "title,price,location\nFlat,5M,VI\n"

func TestScan_ClassifiesFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "propertypro/a.csv", listing)
	writeFile(t, root, "propertypro/b.csv", listing+"Duplex,7M,Ikoyi\n")
	writeFile(t, root, "propertypro/c.csv", listing)

	unchangedFP := core.HashBytes([]byte(listing))
	states := fakeStates{
		"propertypro/a.csv": {Path: "propertypro/a.csv", Fingerprint: unchangedFP},
		"propertypro/b.csv": {Path: "propertypro/b.csv", Fingerprint: unchangedFP},
	}

	entries, errs := collect(t, New(Options{}), root, states)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}

	want := []struct {
		path   string
		status core.FileStatus
		rows   int
	}{
		{"propertypro/a.csv", core.StatusUnchanged, 0},
		{"propertypro/b.csv", core.StatusChanged, 2},
		{"propertypro/c.csv", core.StatusNew, 1},
	}
	for i, w := range want {
		e := entries[i]
		if e.File.Path != w.path {
			t.Errorf("entries[%d].Path = %q, want %q", i, e.File.Path, w.path)
		}
		if e.Status != w.status {
			t.Errorf("entries[%d].Status = %q, want %q", i, e.Status, w.status)
		}
		if len(e.File.Rows) != w.rows {
			t.Errorf("entries[%d] rows = %d, want %d", i, len(e.File.Rows), w.rows)
		}
		if e.File.Partition != "propertypro" {
			t.Errorf("entries[%d].Partition = %q, want propertypro", i, e.File.Partition)
		}
	}
	if entries[0].File.Fingerprint != unchangedFP {
		t.Errorf("streamed fingerprint differs from HashBytes")
	}
	if entries[1].Prior == nil {
		t.Error("changed entry carries no prior state")
	}
}

func TestScan_FileErrorsDoNotStopWalk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/good.csv", listing)
	writeFile(t, root, "a/empty.csv", "")
	writeFile(t, root, "a/big.csv", listing+listing+listing)
	writeFile(t, root, "b/good.csv", listing)

	s := New(Options{MaxFileSize: int64(len(listing)) * 2})
	entries, errs := collect(t, s, root, fakeStates{})

	if len(entries) != 2 {
		t.Errorf("len(entries) = %d, want 2", len(entries))
	}
	if len(errs) != 2 {
		t.Fatalf("len(errs) = %d, want 2: %v", len(errs), errs)
	}

	var fe *FileError
	if !errors.As(errs[0], &fe) || fe.Path != "a/big.csv" || !errors.Is(errs[0], core.ErrFileTooLarge) {
		t.Errorf("errs[0] = %v, want FileError for a/big.csv wrapping ErrFileTooLarge", errs[0])
	}
	if !errors.As(errs[1], &fe) || fe.Path != "a/empty.csv" || !errors.Is(errs[1], core.ErrEmptyFile) {
		t.Errorf("errs[1] = %v, want FileError for a/empty.csv wrapping ErrEmptyFile", errs[1])
	}
	if fe.Partition != "a" {
		t.Errorf("FileError.Partition = %q, want a", fe.Partition)
	}
}

func TestScan_SkipsHiddenStoreAndForeignFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.csv", listing)
	writeFile(t, root, "src/notes.md", "# notes")
	writeFile(t, root, "src/.partial.csv", listing)
	writeFile(t, root, ".git/x.csv", listing)
	writeFile(t, root, "store/partitions/src/exports/records.csv", listing)

	s := New(Options{SkipDirs: []string{filepath.Join(root, "store")}})
	entries, errs := collect(t, s, root, fakeStates{})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(entries) != 1 || entries[0].File.Path != "src/a.csv" {
		t.Errorf("entries = %v, want only src/a.csv", entries)
	}
}

func TestScan_HardErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.csv", listing)

	t.Run("missing root", func(t *testing.T) {
		_, errs := collect(t, New(Options{}), filepath.Join(root, "nope"), fakeStates{})
		if len(errs) != 1 {
			t.Fatalf("len(errs) = %d, want 1", len(errs))
		}
		var fe *FileError
		if errors.As(errs[0], &fe) {
			t.Errorf("missing root reported as FileError")
		}
	})

	t.Run("state lookup failure", func(t *testing.T) {
		_, errs := collect(t, New(Options{}), root, failingStates{})
		if len(errs) != 1 {
			t.Fatalf("len(errs) = %d, want 1", len(errs))
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var got error
		for _, err := range New(Options{}).Scan(ctx, root, fakeStates{}) {
			got = err
		}
		if !errors.Is(got, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", got)
		}
	})
}

func TestScan_Restartable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.csv", listing)
	writeFile(t, root, "b.csv", listing)

	s := New(Options{})
	seq := s.Scan(context.Background(), root, fakeStates{})

	for range seq {
		break
	}
	n := 0
	for _, err := range seq {
		if err != nil {
			t.Fatal(err)
		}
		n++
	}
	if n != 2 {
		t.Errorf("second iteration yielded %d entries, want 2", n)
	}
}

func TestInferPartition(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"propertypro/2024/03.csv", "propertypro"},
		{"PropertyPro/a.csv", "propertypro"},
		{"nigeriapropertycentre_0301.csv", "nigeriapropertycentre"},
		{"jiji-lagos.csv", "jiji"},
		{"Private Property.xlsx", "private_property"},
		{"Naija Homes/a.csv", "naija_homes"},
		{"!!!.csv", "default"},
	}

	for _, tt := range tests {
		if got := InferPartition(tt.input); got != tt.want {
			t.Errorf("InferPartition(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
