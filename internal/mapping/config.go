package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Item types supported by mapping templates.
const (
	// ItemTypeSingleSource maps a primary record against the master dataset.
	ItemTypeSingleSource = "single_source"
	// ItemTypeMultiSource additionally merges attachment records resolved by
	// an internal join key.
	ItemTypeMultiSource = "multi_source"
)

// DefaultMergeSuffix is appended to master-side columns on name collisions
// when the template does not configure a suffix.
const DefaultMergeSuffix = "_master"

// Output meta source prefixes.
const (
	// MetaSourceContext pulls the value from the run context.
	MetaSourceContext = "ctx:"
	// MetaSourceColumn pulls the value from an already-joined column.
	MetaSourceColumn = "col:"
)

// AttachmentRule selects which attachments supply secondary join data for a
// multi-source item.
type AttachmentRule struct {
	Path             string `json:"path"`                        // Storage path prefix to match.
	FilenameContains string `json:"filename_contains,omitempty"` // Optional filename substring filter.
	JoinKey          string `json:"join_key,omitempty"`          // Attachment field holding the internal join key.
	Label            string `json:"label,omitempty"`             // Optional label for logs and outputs.
}

// TemplateConfig is the structured mapping configuration carried by a
// template (and partially overridden by a mapping default).
type TemplateConfig struct {
	MasterCSVPath     string            `json:"master_csv_path"`
	ExternalJoinKeys  []string          `json:"external_join_keys"`
	InternalJoinKey   string            `json:"internal_join_key,omitempty"`
	ColumnAliases     map[string]string `json:"column_aliases,omitempty"`
	JoinNormalize     NormalizePolicy   `json:"join_normalize,omitempty"`
	OutputMeta        map[string]string `json:"output_meta,omitempty"`
	MergeSuffix       string            `json:"merge_suffix,omitempty"`
	AttachmentSources []AttachmentRule  `json:"attachment_sources,omitempty"`
}

// ParseConfig decodes a raw template config document.
func ParseConfig(data []byte) (*TemplateConfig, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("mapping config: empty document")
	}
	var cfg TemplateConfig
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if errDecode := decoder.Decode(&cfg); errDecode != nil {
		return nil, fmt.Errorf("mapping config: decode: %w", errDecode)
	}
	return &cfg, nil
}

// EffectiveMergeSuffix returns the configured suffix or the default.
func (c *TemplateConfig) EffectiveMergeSuffix() string {
	if strings.TrimSpace(c.MergeSuffix) == "" {
		return DefaultMergeSuffix
	}
	return c.MergeSuffix
}

// ruleJoinKey resolves the join key for a rule, falling back to the
// config-level internal join key.
func (c *TemplateConfig) ruleJoinKey(rule AttachmentRule) string {
	if strings.TrimSpace(rule.JoinKey) != "" {
		return rule.JoinKey
	}
	return c.InternalJoinKey
}

// Validate checks a config for itemType at save time. All problems are
// reported in one aggregated error so admins can fix everything at once.
func (c *TemplateConfig) Validate(itemType string) error {
	var problems []string

	switch itemType {
	case ItemTypeSingleSource, ItemTypeMultiSource:
	default:
		problems = append(problems, fmt.Sprintf("unknown item_type %q", itemType))
	}

	if strings.TrimSpace(c.MasterCSVPath) == "" {
		problems = append(problems, "master_csv_path is required")
	}
	if len(c.ExternalJoinKeys) == 0 {
		problems = append(problems, "external_join_keys must name at least one key")
	}
	for i, key := range c.ExternalJoinKeys {
		if strings.TrimSpace(key) == "" {
			problems = append(problems, fmt.Sprintf("external_join_keys[%d] is empty", i))
		}
	}
	aliasTargets := make(map[string]string, len(c.ColumnAliases))
	for _, alias := range sortedFieldNames(c.ColumnAliases) {
		target := c.ColumnAliases[alias]
		if strings.TrimSpace(alias) == "" || strings.TrimSpace(target) == "" {
			problems = append(problems, fmt.Sprintf("column_aliases entry %q -> %q has an empty side", alias, target))
		}
		if prev, dup := aliasTargets[target]; dup {
			problems = append(problems, fmt.Sprintf("column_aliases entries %q and %q both target %q", prev, alias, target))
			continue
		}
		aliasTargets[target] = alias
	}
	if z := c.JoinNormalize.Zfill; z.Global != nil && *z.Global < 0 {
		problems = append(problems, "join_normalize.zfill must not be negative")
	}
	for key, width := range c.JoinNormalize.Zfill.PerKey {
		if width < 0 {
			problems = append(problems, fmt.Sprintf("join_normalize.zfill[%q] must not be negative", key))
		}
	}
	for name, source := range c.OutputMeta {
		if strings.TrimSpace(name) == "" {
			problems = append(problems, "output_meta contains an empty column name")
			continue
		}
		if !strings.HasPrefix(source, MetaSourceContext) && !strings.HasPrefix(source, MetaSourceColumn) {
			problems = append(problems, fmt.Sprintf("output_meta[%q] must use a %q or %q source", name, MetaSourceContext, MetaSourceColumn))
		}
	}

	switch itemType {
	case ItemTypeSingleSource:
		if len(c.AttachmentSources) > 0 {
			problems = append(problems, "attachment_sources is only valid for multi_source templates")
		}
	case ItemTypeMultiSource:
		if len(c.AttachmentSources) == 0 {
			problems = append(problems, "multi_source templates require at least one attachment source")
		}
		// The primary side of the attachment merge always resolves through
		// internal_join_key; a rule's join_key only renames the attachment
		// side.
		if strings.TrimSpace(c.InternalJoinKey) == "" {
			problems = append(problems, "internal_join_key is required for multi_source templates")
		}
		for i, rule := range c.AttachmentSources {
			if strings.TrimSpace(rule.Path) == "" {
				problems = append(problems, fmt.Sprintf("attachment_sources[%d].path is required", i))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("mapping config: %s", strings.Join(problems, "; "))
	}
	return nil
}
