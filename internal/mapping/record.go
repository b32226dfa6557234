package mapping

// Record is the OCR-extracted structured data for one source file: a flat
// field map plus the storage location it was extracted from. Records are
// produced by the extraction collaborator and never mutated by mapping.
type Record struct {
	Fields     map[string]string `json:"fields"`
	SourcePath string            `json:"source_path"`
	Filename   string            `json:"filename"`
}

// Field returns the named extracted field, empty when absent.
func (r Record) Field(name string) string {
	return r.Fields[name]
}
