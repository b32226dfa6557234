package mapping

import (
	"encoding/json"
	"fmt"
)

// ResolveEffectiveConfig layers an optional partial override from a mapping
// default on top of a template config and returns the merged result.
//
// Merge rules:
//   - scalar fields: an override value replaces the template value when
//     present; JSON null (or an absent key) means "inherit". An explicit
//     empty string is a valid override.
//   - map-shaped fields (column_aliases, output_meta, zfill key maps):
//     merged key by key, override entries win, template-only keys survive.
//   - list-shaped fields (attachment_sources, external_join_keys): replaced
//     wholesale when non-empty, since element order and identity matter. An
//     empty list inherits like null.
//   - type mismatches (e.g. a scalar zfill overriding a per-key map, or the
//     reverse): the override replaces the template value wholesale.
//
// The function is a pure combinator: identical inputs always produce the
// same effective config.
func ResolveEffectiveConfig(templateConfig, override []byte) (*TemplateConfig, error) {
	if len(templateConfig) == 0 {
		return nil, fmt.Errorf("effective config: empty template config")
	}

	base := make(map[string]any)
	if errDecode := json.Unmarshal(templateConfig, &base); errDecode != nil {
		return nil, fmt.Errorf("effective config: decode template config: %w", errDecode)
	}

	if len(override) > 0 && string(override) != "null" && string(override) != "{}" {
		patch := make(map[string]any)
		if errDecode := json.Unmarshal(override, &patch); errDecode != nil {
			return nil, fmt.Errorf("effective config: decode override: %w", errDecode)
		}
		overlayConfig(base, patch)
	}

	merged, errEncode := json.Marshal(base)
	if errEncode != nil {
		return nil, fmt.Errorf("effective config: encode merged config: %w", errEncode)
	}
	cfg, errParse := ParseConfig(merged)
	if errParse != nil {
		return nil, fmt.Errorf("effective config: %w", errParse)
	}
	return cfg, nil
}

// overlayConfig applies src onto dst. Maps merge recursively, everything
// else replaces; nil values and empty lists are skipped so those fields
// inherit.
func overlayConfig(dst, src map[string]any) {
	for key, value := range src {
		if value == nil {
			continue
		}
		if list, okList := value.([]any); okList && len(list) == 0 {
			continue
		}
		incomingMap, okIncoming := value.(map[string]any)
		if !okIncoming {
			dst[key] = value
			continue
		}
		existingMap, okExisting := dst[key].(map[string]any)
		if !okExisting {
			dst[key] = value
			continue
		}
		overlayConfig(existingMap, incomingMap)
	}
}
