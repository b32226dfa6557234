package mapping

import (
	"sort"
	"strings"
)

// RunContext carries per-run identifiers exposed to output_meta "ctx:"
// columns.
type RunContext struct {
	OrderID string
	ItemID  string
	Company string
	DocType string
}

// value resolves a context key, empty when unknown.
func (c RunContext) value(key string) string {
	switch key {
	case "order_id":
		return c.OrderID
	case "item_id":
		return c.ItemID
	case "company":
		return c.Company
	case "doc_type":
		return c.DocType
	}
	return ""
}

// JoinedRow is the result of merging a primary record with zero or one
// matched master row plus any resolved attachment records. Unmatched rows
// are still emitted, with Matched false and no master columns.
type JoinedRow struct {
	Fields  map[string]string
	Columns []string
	Matched bool
}

// Get returns a joined column value, empty when absent.
func (r JoinedRow) Get(name string) string {
	return r.Fields[name]
}

// Join merges a primary extracted record against the master index and, for
// multi-source items, the resolved attachment map. It is a pure function of
// its inputs: no I/O and no mutation of the shared master index.
func Join(primary Record, attachmentMap map[string]Record, master *MasterIndex, cfg *TemplateConfig, runCtx RunContext) JoinedRow {
	row := JoinedRow{Fields: make(map[string]string, len(primary.Fields))}

	appendField := func(name, value string) {
		if _, exists := row.Fields[name]; !exists {
			row.Columns = append(row.Columns, name)
		}
		row.Fields[name] = value
	}

	for _, name := range sortedFieldNames(primary.Fields) {
		appendField(name, primary.Fields[name])
	}

	suffix := cfg.EffectiveMergeSuffix()
	mergeMasterRow := func(masterRow map[string]string) {
		for _, h := range master.Headers {
			value, ok := masterRow[h]
			if !ok {
				continue
			}
			name := h
			if _, collides := row.Fields[name]; collides {
				name = h + suffix
			}
			appendField(name, value)
		}
	}

	tuple := primaryJoinTuple(primary, cfg)
	if masterRow, ok := master.Lookup(tuple); ok {
		row.Matched = true
		mergeMasterRow(masterRow)
	}

	if len(attachmentMap) > 0 {
		internalKey := cfg.InternalJoinKey
		internalValue := cfg.JoinNormalize.Normalize(primary.Field(resolveAliasSource(cfg, internalKey)), internalKey)
		if internalValue != "" {
			if att, ok := attachmentMap[internalValue]; ok {
				for _, name := range sortedFieldNames(att.Fields) {
					merged := name
					if _, collides := row.Fields[merged]; collides {
						merged = name + suffix
					}
					appendField(merged, att.Fields[name])
				}
			}
		}
	}

	for _, name := range sortedFieldNames(cfg.OutputMeta) {
		source := cfg.OutputMeta[name]
		switch {
		case strings.HasPrefix(source, MetaSourceContext):
			appendField(name, runCtx.value(strings.TrimPrefix(source, MetaSourceContext)))
		case strings.HasPrefix(source, MetaSourceColumn):
			// Missing referenced columns produce an empty value, not an error.
			appendField(name, row.Fields[strings.TrimPrefix(source, MetaSourceColumn)])
		}
	}

	return row
}

// primaryJoinTuple computes the normalized external join-key tuple for the
// primary record, mapping extracted field names through column_aliases.
func primaryJoinTuple(primary Record, cfg *TemplateConfig) []string {
	tuple := make([]string, len(cfg.ExternalJoinKeys))
	for i, key := range cfg.ExternalJoinKeys {
		raw := primary.Field(resolveAliasSource(cfg, key))
		tuple[i] = cfg.JoinNormalize.Normalize(raw, key)
	}
	return tuple
}

// resolveAliasSource finds the extracted-field name aliased to a master key,
// falling back to the key name itself when no alias is configured. Validate
// rejects duplicate targets; should one slip through, the lexically smallest
// alias wins so re-runs stay byte-identical.
func resolveAliasSource(cfg *TemplateConfig, masterKey string) string {
	for _, extracted := range sortedFieldNames(cfg.ColumnAliases) {
		if cfg.ColumnAliases[extracted] == masterKey {
			return extracted
		}
	}
	return masterKey
}

// sortedFieldNames returns map keys in a stable order so joined column
// order, and therefore output bytes, are identical across re-runs.
func sortedFieldNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
