package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/consolidator/internal/core"
)

// candidateDelimiters in preference order for ties.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// sniffLines is how many non-blank lines SniffDelimiter inspects.
const sniffLines = 10

// SniffDelimiter picks the delimiter that occurs most often, outside quotes,
// across the first non-blank lines. Comma wins ties and empty input.
// Preamble lines carry no delimiters and so do not skew the choice.
func SniffDelimiter(text []byte) rune {
	counts := make(map[rune]int, len(candidateDelimiters))
	for _, line := range nonBlankLines(text, sniffLines) {
		inQuotes := false
		for _, r := range string(line) {
			if r == '"' {
				inQuotes = !inQuotes
				continue
			}
			if !inQuotes {
				counts[r]++
			}
		}
	}

	best := ','
	for _, d := range candidateDelimiters {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}

func nonBlankLines(text []byte, limit int) [][]byte {
	var lines [][]byte
	for len(text) > 0 && len(lines) < limit {
		line := text
		if i := bytes.IndexByte(text, '\n'); i >= 0 {
			line, text = text[:i], text[i+1:]
		} else {
			text = nil
		}
		if len(bytes.TrimSpace(line)) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}

// parseDelimited reads every record with its 1-indexed starting line.
func parseDelimited(text []byte, delim rune) ([]record, error) {
	r := csv.NewReader(bytes.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records []record
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrInvalidTabular, err)
		}
		line, _ := r.FieldPos(0)
		records = append(records, record{line: line, cells: row})
	}
	return records, nil
}
