package template

import (
	log "github.com/sirupsen/logrus"
)

// Table is a rendered output table: column headers plus one row per input
// row, in input order.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Render produces the output table for a validated document. Rendering is
// 1:1 with the input rows: it never filters or duplicates. Expression
// failures degrade to the column's default value and are logged, never
// fatal.
func (d *Document) Render(rows []map[string]string) *Table {
	table := &Table{
		Columns: append([]string(nil), d.ColumnOrder...),
		Rows:    make([][]string, 0, len(rows)),
	}

	for _, row := range rows {
		out := make([]string, len(d.ColumnOrder))
		for i, name := range d.ColumnOrder {
			out[i] = d.renderCell(name, row)
		}
		table.Rows = append(table.Rows, out)
	}

	return table
}

// renderCell evaluates one column for one row.
func (d *Document) renderCell(name string, row map[string]string) string {
	def := d.ColumnDefinitions[name]
	switch def.Type {
	case ColumnConstant:
		return def.Value
	case ColumnSource:
		if v, ok := row[def.SourceColumn]; ok && v != "" {
			return v
		}
		return def.DefaultValue
	case ColumnComputed:
		compiled, ok := d.compiled[name]
		if !ok {
			return def.DefaultValue
		}
		v, errEval := compiled.Eval(row)
		if errEval != nil {
			log.WithError(errEval).Warnf("template render: column %q fell back to default", name)
			return def.DefaultValue
		}
		return v
	}
	return def.DefaultValue
}
