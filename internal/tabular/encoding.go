package tabular

// encoding.go turns raw export bytes into UTF-8 text.
//
// Scraper exports arrive from many toolchains:
//   - UTF-8, with or without the BOM Excel adds
//   - UTF-16 LE/BE with a BOM (Excel "Unicode text")
//   - Windows-1252 / Latin-1 from older desktop tools
//
// BOM-marked input is decoded as marked. Input without a BOM is taken as
// UTF-8 when valid and as Windows-1252 otherwise, which maps every byte.

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names reported in Table.Encoding.
const (
	EncodingUTF8        = "utf-8"
	EncodingUTF8BOM     = "utf-8-bom"
	EncodingUTF16LE     = "utf-16le"
	EncodingUTF16BE     = "utf-16be"
	EncodingWindows1252 = "windows-1252"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DecodeText converts data to UTF-8 and reports the detected source encoding.
func DecodeText(data []byte) ([]byte, string, error) {
	name := detectBOM(data)
	if name != "" {
		out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
		if err != nil {
			return nil, name, fmt.Errorf("decode %s: %w", name, err)
		}
		return out, name, nil
	}

	if utf8.Valid(data) {
		return data, EncodingUTF8, nil
	}

	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return nil, EncodingWindows1252, fmt.Errorf("decode %s: %w", EncodingWindows1252, err)
	}
	return out, EncodingWindows1252, nil
}

func detectBOM(data []byte) string {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return EncodingUTF8BOM
	case bytes.HasPrefix(data, bomUTF16LE):
		return EncodingUTF16LE
	case bytes.HasPrefix(data, bomUTF16BE):
		return EncodingUTF16BE
	}
	return ""
}
