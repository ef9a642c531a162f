package reports

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportResult renders a report payload as a spreadsheet: one header row
// from the column names, one row per report row, columns in the given order.
func ExportResult(result *ReportResult, columns []string) (*excelize.File, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("export needs at least one column")
	}

	f := excelize.NewFile()
	const sheet = "Sheet1"

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return nil, err
		}
	}

	for r, row := range result.Data {
		for c, col := range columns {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			val, ok := row[col]
			if !ok {
				continue
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return nil, err
			}
		}
	}

	return f, nil
}
