package tabular

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/consolidator/internal/core"
)

// parseSpreadsheet reads the first sheet holding any non-blank row.
func parseSpreadsheet(data []byte) ([]record, string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: open workbook: %v", core.ErrInvalidTabular, err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, "", fmt.Errorf("%w: read sheet %q: %v", core.ErrInvalidTabular, sheet, err)
		}

		records := make([]record, 0, len(rows))
		nonBlank := false
		for i, row := range rows {
			if !core.IsEmptyRow(row) {
				nonBlank = true
			}
			records = append(records, record{line: i + 1, cells: row})
		}
		if nonBlank {
			return records, sheet, nil
		}
	}
	return nil, "", core.ErrEmptyFile
}
