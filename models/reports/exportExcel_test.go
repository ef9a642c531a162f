package reports

import (
	"testing"
)

func TestExportResult(t *testing.T) {
	result := &ReportResult{
		Data: []map[string]interface{}{
			{"category_id": int64(4), "items_sold": int64(10), "net_revenue": 100.5},
			{"category_id": int64(9), "items_sold": int64(3)},
		},
		Total: 2,
	}

	f, err := ExportResult(result, []string{"category_id", "items_sold", "net_revenue"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	header, err := f.GetCellValue("Sheet1", "B1")
	if err != nil || header != "items_sold" {
		t.Fatalf("header cell wrong: %q %v", header, err)
	}
	cell, err := f.GetCellValue("Sheet1", "C2")
	if err != nil || cell != "100.5" {
		t.Fatalf("data cell wrong: %q %v", cell, err)
	}
	// Missing column on the second row stays blank.
	blank, err := f.GetCellValue("Sheet1", "C3")
	if err != nil || blank != "" {
		t.Fatalf("missing value should leave the cell empty: %q %v", blank, err)
	}
}

func TestExportResultNeedsColumns(t *testing.T) {
	if _, err := ExportResult(&ReportResult{}, nil); err == nil {
		t.Fatalf("expected an error for an empty column list")
	}
}
