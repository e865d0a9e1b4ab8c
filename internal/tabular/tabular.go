// Package tabular decodes export files into a header and ordered rows.
//
// Delimited text (comma, semicolon, tab, pipe) and XLSX workbooks are
// supported. The header row is searched within the first
// MaxHeaderSearchRows rows so preamble lines emitted by some scrapers
// ("Exported on ...") are skipped.
package tabular

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/consolidator/internal/core"
)

// MaxHeaderSearchRows is the maximum number of rows to scan for the header.
var MaxHeaderSearchRows = 20

// HeaderScorer rates how header-like a row is; higher is better and zero
// rejects the row. The normalizer supplies one that counts known columns.
type HeaderScorer func(cells []string) int

// Options controls decoding.
type Options struct {
	HeaderScore HeaderScorer
}

// Table is a decoded file.
type Table struct {
	Header    []string
	Rows      []core.RawRow
	Format    string // "delimited" or "spreadsheet"
	Encoding  string // delimited only
	Delimiter rune   // delimited only
	Sheet     string // spreadsheet only
}

type record struct {
	line  int
	cells []string
}

var zipMagic = []byte("PK\x03\x04")

// Decode parses data using the file name's extension as a format hint.
// Errors wrap core.ErrInvalidTabular or core.ErrEmptyFile.
func Decode(name string, data []byte, opts Options) (*Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, core.ErrEmptyFile
	}

	t := &Table{}
	var records []record

	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".xlsx" || ext == ".xlsm" || bytes.HasPrefix(data, zipMagic) {
		recs, sheet, err := parseSpreadsheet(data)
		if err != nil {
			return nil, err
		}
		t.Format, t.Sheet, records = "spreadsheet", sheet, recs
	} else {
		text, enc, err := DecodeText(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrInvalidTabular, err)
		}
		delim := SniffDelimiter(text)
		if ext == ".tsv" {
			delim = '\t'
		}
		recs, err := parseDelimited(text, delim)
		if err != nil {
			return nil, err
		}
		t.Format, t.Encoding, t.Delimiter, records = "delimited", enc, delim, recs
	}

	score := opts.HeaderScore
	if score == nil {
		score = DefaultHeaderScore
	}

	headerIdx := findHeader(records, score)
	if headerIdx < 0 {
		return nil, fmt.Errorf("%w: header not found in first %d rows", core.ErrInvalidTabular, MaxHeaderSearchRows)
	}

	t.Header = cleanHeader(records[headerIdx].cells)
	for _, rec := range records[headerIdx+1:] {
		if core.IsEmptyRow(rec.cells) {
			continue
		}
		t.Rows = append(t.Rows, toRawRow(t.Header, rec))
	}

	if len(t.Rows) == 0 {
		return nil, fmt.Errorf("%w: no data rows after header", core.ErrEmptyFile)
	}
	return t, nil
}

// findHeader returns the index of the best-scoring row within the search
// window; the earliest row wins ties. Returns -1 when no row scores.
func findHeader(records []record, score HeaderScorer) int {
	maxRows := MaxHeaderSearchRows
	if len(records) < maxRows {
		maxRows = len(records)
	}

	best, bestScore := -1, 0
	for i := 0; i < maxRows; i++ {
		if core.IsEmptyRow(records[i].cells) {
			continue
		}
		if s := score(records[i].cells); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// DefaultHeaderScore counts non-empty, non-numeric cells. Rows with fewer
// than two such cells are rejected, so single-cell preambles never win.
func DefaultHeaderScore(cells []string) int {
	n := 0
	for _, c := range cells {
		c = core.CleanCell(c)
		if c == "" {
			continue
		}
		if _, err := strconv.ParseFloat(strings.ReplaceAll(c, ",", ""), 64); err == nil {
			return 0
		}
		n++
	}
	if n < 2 {
		return 0
	}
	return n
}

// cleanHeader applies CleanCell, names blank columns column_N and
// suffixes repeated names so every key in a RawRow is unique.
func cleanHeader(cells []string) []string {
	header := make([]string, len(cells))
	seen := make(map[string]int, len(cells))
	for i, c := range cells {
		h := core.CleanCell(c)
		if h == "" {
			h = "column_" + strconv.Itoa(i+1)
		}
		key := strings.ToLower(h)
		seen[key]++
		if n := seen[key]; n > 1 {
			h = h + "_" + strconv.Itoa(n)
		}
		header[i] = h
	}
	return header
}

func toRawRow(header []string, rec record) core.RawRow {
	values := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(rec.cells) {
			values[h] = rec.cells[i]
		} else {
			values[h] = ""
		}
	}
	return core.RawRow{Line: rec.line, Values: values}
}
