package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/apache/arrow/go/v10/parquet"
	"github.com/apache/arrow/go/v10/parquet/pqarrow"

	"github.com/JonMunkholm/consolidator/internal/core"
)

// Export file names under a partition's exports/ directory.
const (
	ExportDir     = "exports"
	CSVExport     = "records.csv"
	ParquetExport = "records.parquet"
)

// exportColumn describes one flat export column. Exactly one getter is set.
type exportColumn struct {
	name string
	str  func(*core.CanonicalRecord) string
	num  func(*core.CanonicalRecord) *int64
	ts   func(*core.CanonicalRecord) time.Time
}

func optInt(p *int) *int64 {
	if p == nil {
		return nil
	}
	v := int64(*p)
	return &v
}

var exportColumns = []exportColumn{
	{name: "seq", num: func(r *core.CanonicalRecord) *int64 { v := int64(r.Seq); return &v }},
	{name: "fingerprint", str: func(r *core.CanonicalRecord) string { return r.Fingerprint }},
	{name: "title", str: func(r *core.CanonicalRecord) string { return r.Title }},
	{name: "url", str: func(r *core.CanonicalRecord) string { return r.URL }},
	{name: "partition", str: func(r *core.CanonicalRecord) string { return r.Partition }},
	{name: "property_type", str: func(r *core.CanonicalRecord) string { return r.PropertyType }},
	{name: "listing_type", str: func(r *core.CanonicalRecord) string { return r.ListingType }},
	{name: "price", num: func(r *core.CanonicalRecord) *int64 { return &r.Price }},
	{name: "currency", str: func(r *core.CanonicalRecord) string { return r.Currency }},
	{name: "location", str: func(r *core.CanonicalRecord) string { return r.Location }},
	{name: "area", str: func(r *core.CanonicalRecord) string { return r.Area }},
	{name: "city", str: func(r *core.CanonicalRecord) string { return r.City }},
	{name: "state", str: func(r *core.CanonicalRecord) string { return r.State }},
	{name: "bedrooms", num: func(r *core.CanonicalRecord) *int64 { return optInt(r.Bedrooms) }},
	{name: "bathrooms", num: func(r *core.CanonicalRecord) *int64 { return optInt(r.Bathrooms) }},
	{name: "toilets", num: func(r *core.CanonicalRecord) *int64 { return optInt(r.Toilets) }},
	{name: "description", str: func(r *core.CanonicalRecord) string { return r.Description }},
	{name: "images", str: func(r *core.CanonicalRecord) string { return strings.Join(r.Images, "|") }},
	{name: "scraped_at", ts: func(r *core.CanonicalRecord) time.Time { return r.ScrapedAt }},
	{name: "source_file", str: func(r *core.CanonicalRecord) string { return r.SourceFile }},
	{name: "ingested_at", ts: func(r *core.CanonicalRecord) time.Time { return r.IngestedAt }},
}

// ExportHeader returns the flat export column names in order.
func ExportHeader() []string {
	out := make([]string, len(exportColumns))
	for i, c := range exportColumns {
		out[i] = c.name
	}
	return out
}

// cell renders one column of r for delimited output.
func (c exportColumn) cell(r *core.CanonicalRecord) string {
	switch {
	case c.str != nil:
		return c.str(r)
	case c.num != nil:
		if v := c.num(r); v != nil {
			return strconv.FormatInt(*v, 10)
		}
	case c.ts != nil:
		if t := c.ts(r); !t.IsZero() {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return ""
}

func (c exportColumn) arrowType() arrow.DataType {
	switch {
	case c.num != nil:
		return arrow.PrimitiveTypes.Int64
	case c.ts != nil:
		return arrow.FixedWidthTypes.Timestamp_ms
	default:
		return arrow.BinaryTypes.String
	}
}

// writeCSV writes records with a header row.
func writeCSV(w io.Writer, records []core.CanonicalRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader()); err != nil {
		return err
	}
	row := make([]string, len(exportColumns))
	for i := range records {
		for j, c := range exportColumns {
			row[j] = c.cell(&records[i])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// exportSchema is the columnar schema of the parquet export.
func exportSchema() *arrow.Schema {
	fields := make([]arrow.Field, len(exportColumns))
	for i, c := range exportColumns {
		fields[i] = arrow.Field{Name: c.name, Type: c.arrowType(), Nullable: c.str == nil}
	}
	return arrow.NewSchema(fields, nil)
}

// writeParquet writes records as a single-row-group parquet table.
func writeParquet(w io.Writer, records []core.CanonicalRecord) error {
	mem := memory.NewGoAllocator()
	schema := exportSchema()

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for i := range records {
		r := &records[i]
		for j, c := range exportColumns {
			switch fb := b.Field(j).(type) {
			case *array.StringBuilder:
				fb.Append(c.str(r))
			case *array.Int64Builder:
				if v := c.num(r); v != nil {
					fb.Append(*v)
				} else {
					fb.AppendNull()
				}
			case *array.TimestampBuilder:
				if t := c.ts(r); !t.IsZero() {
					fb.Append(arrow.Timestamp(t.UnixMilli()))
				} else {
					fb.AppendNull()
				}
			default:
				return fmt.Errorf("unsupported export column type for %s", c.name)
			}
		}
	}

	rec := b.NewRecord()
	defer rec.Release()
	table := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer table.Release()

	props := parquet.NewWriterProperties(parquet.WithDictionaryDefault(false))
	return pqarrow.WriteTable(table, w, 64*1024, props, pqarrow.DefaultWriterProps())
}

// exports regenerates the enabled flat exports for p and returns their
// paths relative to storeRoot.
func (m *Manager) exports(p *partition) ([]string, error) {
	if !m.opts.CSV && !m.opts.Parquet {
		return nil, nil
	}

	records, err := p.all()
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(p.dir, ExportDir)
	var written []string
	if m.opts.CSV {
		path := filepath.Join(dir, CSVExport)
		if err := WriteFileAtomic(path, func(w io.Writer) error { return writeCSV(w, records) }); err != nil {
			return nil, fmt.Errorf("write csv export: %w", err)
		}
		written = append(written, m.rel(path))
	}
	if m.opts.Parquet {
		path := filepath.Join(dir, ParquetExport)
		if err := WriteFileAtomic(path, func(w io.Writer) error { return writeParquet(w, records) }); err != nil {
			return nil, fmt.Errorf("write parquet export: %w", err)
		}
		written = append(written, m.rel(path))
	}
	return written, nil
}
