package tabular

import (
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/JonMunkholm/consolidator/internal/core"
)

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		name string
		text string
		want rune
	}{
		{"comma", "a,b,c\n1,2,3", ','},
		{"semicolon", "a;b;c\n1;2;3", ';'},
		{"tab", "a\tb\tc\n", '\t'},
		{"pipe", "a|b|c", '|'},
		{"leading blank lines", "\n\n  \na;b\n", ';'},
		{"quoted commas ignored", `"a,b,c";d;e`, ';'},
		{"empty defaults to comma", "", ','},
		{"no delimiter defaults to comma", "title", ','},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SniffDelimiter([]byte(tt.text)); got != tt.want {
				t.Errorf("SniffDelimiter() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeText(t *testing.T) {
	utf16le, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes([]byte("title,price\nFlat,₦5\n"))
	if err != nil {
		t.Fatalf("encode utf-16: %v", err)
	}
	latin, err := charmap.Windows1252.NewEncoder().Bytes([]byte("location\nCafé Road\n"))
	if err != nil {
		t.Fatalf("encode windows-1252: %v", err)
	}

	tests := []struct {
		name     string
		data     []byte
		want     string
		wantName string
	}{
		{"plain utf-8", []byte("a,b\n"), "a,b\n", EncodingUTF8},
		{"utf-8 bom stripped", append([]byte{0xEF, 0xBB, 0xBF}, "a,b\n"...), "a,b\n", EncodingUTF8BOM},
		{"utf-16le bom", utf16le, "title,price\nFlat,₦5\n", EncodingUTF16LE},
		{"windows-1252 fallback", latin, "location\nCafé Road\n", EncodingWindows1252},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, name, err := DecodeText(tt.data)
			if err != nil {
				t.Fatalf("DecodeText() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("DecodeText() = %q, want %q", got, tt.want)
			}
			if name != tt.wantName {
				t.Errorf("DecodeText() encoding = %q, want %q", name, tt.wantName)
			}
		})
	}
}

func TestDecode_Delimited(t *testing.T) {
	data := "Exported by crawler v2\n\ntitle;price;location\nFlat;\"5,000,000\";VI\n;;\nDuplex;7M;Ikoyi\n"

	tbl, err := Decode("lagos.csv", []byte(data), Options{})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if tbl.Delimiter != ';' {
		t.Errorf("Delimiter = %q, want ';'", tbl.Delimiter)
	}
	wantHeader := []string{"title", "price", "location"}
	if strings.Join(tbl.Header, "|") != strings.Join(wantHeader, "|") {
		t.Errorf("Header = %v, want %v", tbl.Header, wantHeader)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2 (blank row skipped)", len(tbl.Rows))
	}
	if tbl.Rows[0].Values["price"] != "5,000,000" {
		t.Errorf("Rows[0][price] = %q, want %q", tbl.Rows[0].Values["price"], "5,000,000")
	}
	if tbl.Rows[0].Line != 4 {
		t.Errorf("Rows[0].Line = %d, want 4", tbl.Rows[0].Line)
	}
	if tbl.Rows[1].Line != 6 {
		t.Errorf("Rows[1].Line = %d, want 6", tbl.Rows[1].Line)
	}
}

func TestDecode_RaggedRowsAndHeaders(t *testing.T) {
	data := "title,,title\nFlat\nDuplex,x,5,extra\n"

	tbl, err := Decode("a.csv", []byte(data), Options{})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := []string{"title", "column_2", "title_2"}
	if strings.Join(tbl.Header, "|") != strings.Join(want, "|") {
		t.Errorf("Header = %v, want %v", tbl.Header, want)
	}
	if v, ok := tbl.Rows[0].Values["title_2"]; !ok || v != "" {
		t.Errorf("short row should pad missing cells, got %q, %v", v, ok)
	}
	if tbl.Rows[1].Values["title_2"] != "5" {
		t.Errorf("Rows[1][title_2] = %q, want 5", tbl.Rows[1].Values["title_2"])
	}
}

func TestDecode_TSVExtensionForcesTab(t *testing.T) {
	data := "title\tprice, with comma\nFlat\t5M\n"
	tbl, err := Decode("a.tsv", []byte(data), Options{})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if tbl.Delimiter != '\t' {
		t.Errorf("Delimiter = %q, want tab", tbl.Delimiter)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"empty", "", core.ErrEmptyFile},
		{"whitespace only", "  \n\n", core.ErrEmptyFile},
		{"header only", "title,price\n", core.ErrEmptyFile},
		{"no header", "1,2,3\n4,5,6\n", core.ErrInvalidTabular},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode("a.csv", []byte(tt.data), Options{})
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecode_CustomHeaderScore(t *testing.T) {
	// Preamble has more text cells than the real header; the scorer
	// only counts known column names.
	data := "report,generated,by,crawler,team\nprice,location\n5M,VI\n"
	known := map[string]bool{"price": true, "location": true}
	score := func(cells []string) int {
		n := 0
		for _, c := range cells {
			if known[strings.ToLower(c)] {
				n++
			}
		}
		return n
	}

	tbl, err := Decode("a.csv", []byte(data), Options{HeaderScore: score})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if tbl.Header[0] != "price" {
		t.Errorf("Header = %v, want price first", tbl.Header)
	}
}

func TestDecode_HeaderSearchWindow(t *testing.T) {
	var b strings.Builder
	for i := 0; i < MaxHeaderSearchRows; i++ {
		b.WriteString("1\n")
	}
	b.WriteString("title,price\nFlat,5M\n")

	_, err := Decode("a.csv", []byte(b.String()), Options{})
	if !errors.Is(err, core.ErrInvalidTabular) {
		t.Errorf("Decode() error = %v, want ErrInvalidTabular", err)
	}
}

func TestDecode_Spreadsheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]any{
		{"Title", "Price", "Location"},
		{"Flat", "₦5,000,000", "VI"},
		{"Duplex", "7M", "Ikoyi"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}

	tbl, err := Decode("lagos.xlsx", buf.Bytes(), Options{})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if tbl.Format != "spreadsheet" || tbl.Sheet != "Sheet1" {
		t.Errorf("Format/Sheet = %q/%q, want spreadsheet/Sheet1", tbl.Format, tbl.Sheet)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(tbl.Rows))
	}
	if tbl.Rows[0].Values["Price"] != "₦5,000,000" {
		t.Errorf("Rows[0][Price] = %q", tbl.Rows[0].Values["Price"])
	}
	if tbl.Rows[1].Line != 3 {
		t.Errorf("Rows[1].Line = %d, want 3", tbl.Rows[1].Line)
	}
}

func TestDecode_CorruptSpreadsheet(t *testing.T) {
	_, err := Decode("bad.xlsx", []byte("this is not a zip archive"), Options{})
	if !errors.Is(err, core.ErrInvalidTabular) {
		t.Errorf("Decode() error = %v, want ErrInvalidTabular", err)
	}
}
