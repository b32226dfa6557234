package export

import (
	"bytes"
	"testing"

	"github.com/docmapper/docmapper/internal/template"
	"github.com/xuri/excelize/v2"
)

func sampleTable() *template.Table {
	return &template.Table{
		Columns: []string{"Account", "Plan"},
		Rows: [][]string{
			{"123", "Gold"},
			{"456", "with,comma"},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	data, err := WriteCSV(sampleTable())
	if err != nil {
		t.Fatalf("write csv: %v", err)
	}
	want := "Account,Plan\n123,Gold\n456,\"with,comma\"\n"
	if string(data) != want {
		t.Fatalf("unexpected csv output:\n%s", data)
	}

	again, err := WriteCSV(sampleTable())
	if err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Fatalf("csv output must be deterministic")
	}
}

func TestWriteXLSX(t *testing.T) {
	data, err := WriteXLSX(sampleTable(), "Order 42")
	if err != nil {
		t.Fatalf("write xlsx: %v", err)
	}

	f, errOpen := excelize.OpenReader(bytes.NewReader(data))
	if errOpen != nil {
		t.Fatalf("reopen workbook: %v", errOpen)
	}
	defer func() {
		_ = f.Close()
	}()

	rows, errRows := f.GetRows("Order 42")
	if errRows != nil {
		t.Fatalf("read sheet: %v", errRows)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Account" || rows[0][1] != "Plan" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[2][1] != "with,comma" {
		t.Fatalf("unexpected cell %v", rows[2])
	}
}

func TestWrite_UnsupportedFormat(t *testing.T) {
	if _, err := Write(sampleTable(), "pdf", ""); err == nil {
		t.Fatalf("expected an error for unsupported formats")
	}
	if ValidFormat("pdf") {
		t.Fatalf("pdf must not be a valid format")
	}
	if Extension(FormatXLSX) != ".xlsx" || Extension(FormatCSV) != ".csv" {
		t.Fatalf("unexpected extensions")
	}
}
