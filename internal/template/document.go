// Package template implements the uploaded template.json column language:
// declarative source/computed/constant columns rendered over joined rows.
package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/docmapper/docmapper/internal/expr"
)

// Column types accepted by column_definitions.
const (
	// ColumnSource copies a column from the joined row.
	ColumnSource = "source"
	// ColumnComputed evaluates an expression with the row as context.
	ColumnComputed = "computed"
	// ColumnConstant emits a literal value unconditionally.
	ColumnConstant = "constant"
)

// ColumnDef describes one output column.
type ColumnDef struct {
	Type         string `json:"type"`
	SourceColumn string `json:"source_column,omitempty"`
	Expression   string `json:"expression,omitempty"`
	Value        string `json:"value,omitempty"`
	DefaultValue string `json:"default_value,omitempty"`
}

// Document is a parsed, validated template.json.
type Document struct {
	TemplateName      string               `json:"template_name"`
	Version           string               `json:"version"`
	ColumnOrder       []string             `json:"column_order"`
	ColumnDefinitions map[string]ColumnDef `json:"column_definitions"`
	SourceData        string               `json:"source_data,omitempty"`

	// compiled expressions for computed columns, keyed by column name.
	compiled map[string]*expr.Expr
}

// ParseDocument decodes and validates a template document. All validation
// problems are reported in a single aggregated error. knownColumns, when
// non-empty, restricts computed-expression placeholders to known mapped
// column names.
func ParseDocument(data []byte, knownColumns []string) (*Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("template document: empty document")
	}

	var doc Document
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if errDecode := decoder.Decode(&doc); errDecode != nil {
		return nil, fmt.Errorf("template document: decode: %w", errDecode)
	}

	var problems []string
	if strings.TrimSpace(doc.TemplateName) == "" {
		problems = append(problems, "template_name is required")
	}
	if !validVersion(doc.Version) {
		problems = append(problems, fmt.Sprintf("version %q must be alphanumeric plus '.', '-', '_'", doc.Version))
	}
	if len(doc.ColumnOrder) == 0 {
		problems = append(problems, "column_order must name at least one column")
	}

	// Missing definitions are collected and reported together.
	var missing []string
	for _, name := range doc.ColumnOrder {
		if _, ok := doc.ColumnDefinitions[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		problems = append(problems, fmt.Sprintf("column_order names undefined columns: %s", strings.Join(missing, ", ")))
	}

	known := make(map[string]struct{}, len(knownColumns))
	for _, c := range knownColumns {
		known[c] = struct{}{}
	}

	doc.compiled = make(map[string]*expr.Expr)
	for name, def := range doc.ColumnDefinitions {
		switch def.Type {
		case ColumnSource:
			if strings.TrimSpace(def.SourceColumn) == "" {
				problems = append(problems, fmt.Sprintf("column %q: source_column is required for source columns", name))
			}
		case ColumnComputed:
			compiled, errParse := expr.Parse(def.Expression)
			if errParse != nil {
				problems = append(problems, fmt.Sprintf("column %q: %v", name, errParse))
				continue
			}
			if len(known) > 0 {
				for _, field := range compiled.Placeholders() {
					if _, ok := known[field]; !ok {
						problems = append(problems, fmt.Sprintf("column %q references unknown field %q", name, field))
					}
				}
			}
			doc.compiled[name] = compiled
		case ColumnConstant:
		default:
			problems = append(problems, fmt.Sprintf("column %q has unknown type %q", name, def.Type))
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("template document: %s", strings.Join(problems, "; "))
	}
	return &doc, nil
}

// validVersion restricts version strings to characters safe in storage keys.
func validVersion(v string) bool {
	if strings.TrimSpace(v) == "" {
		return false
	}
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
