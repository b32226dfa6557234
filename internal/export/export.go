// Package export serializes rendered tables into the deliverable formats.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/docmapper/docmapper/internal/template"
	"github.com/xuri/excelize/v2"
)

// Output formats accepted for order deliverables.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// ValidFormat reports whether format names a supported deliverable.
func ValidFormat(format string) bool {
	return format == FormatCSV || format == FormatXLSX
}

// Extension returns the file extension for a format.
func Extension(format string) string {
	if format == FormatXLSX {
		return ".xlsx"
	}
	return ".csv"
}

// WriteCSV serializes a table as CSV bytes. Output is deterministic: the
// same table always produces the same bytes.
func WriteCSV(table *template.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if errHeader := w.Write(table.Columns); errHeader != nil {
		return nil, fmt.Errorf("export csv: write header: %w", errHeader)
	}
	for i, row := range table.Rows {
		if errRow := w.Write(row); errRow != nil {
			return nil, fmt.Errorf("export csv: write row %d: %w", i+1, errRow)
		}
	}
	w.Flush()
	if errFlush := w.Error(); errFlush != nil {
		return nil, fmt.Errorf("export csv: flush: %w", errFlush)
	}
	return buf.Bytes(), nil
}

// WriteXLSX serializes a table as a single-sheet workbook.
func WriteXLSX(table *template.Table, sheetName string) ([]byte, error) {
	if sheetName == "" {
		sheetName = "Sheet1"
	}

	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	defaultSheet := f.GetSheetName(0)
	if defaultSheet != sheetName {
		if errRename := f.SetSheetName(defaultSheet, sheetName); errRename != nil {
			return nil, fmt.Errorf("export xlsx: rename sheet: %w", errRename)
		}
	}

	writeRow := func(rowIdx int, cells []string) error {
		cell, errCell := excelize.CoordinatesToCellName(1, rowIdx)
		if errCell != nil {
			return fmt.Errorf("export xlsx: cell name for row %d: %w", rowIdx, errCell)
		}
		values := make([]any, len(cells))
		for i, c := range cells {
			values[i] = c
		}
		if errWrite := f.SetSheetRow(sheetName, cell, &values); errWrite != nil {
			return fmt.Errorf("export xlsx: write row %d: %w", rowIdx, errWrite)
		}
		return nil
	}

	if errHeader := writeRow(1, table.Columns); errHeader != nil {
		return nil, errHeader
	}
	for i, row := range table.Rows {
		if errRow := writeRow(i+2, row); errRow != nil {
			return nil, errRow
		}
	}

	var buf bytes.Buffer
	if errWrite := f.Write(&buf); errWrite != nil {
		return nil, fmt.Errorf("export xlsx: write workbook: %w", errWrite)
	}
	return buf.Bytes(), nil
}

// Write serializes a table in the requested format.
func Write(table *template.Table, format, sheetName string) ([]byte, error) {
	switch format {
	case FormatCSV:
		return WriteCSV(table)
	case FormatXLSX:
		return WriteXLSX(table, sheetName)
	}
	return nil, fmt.Errorf("export: unsupported format %q", format)
}
