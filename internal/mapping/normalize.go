package mapping

import (
	"encoding/json"
	"strings"
)

// ZfillSpec is either a single pad width applied to every join key or a
// per-key width map. Per-key entries take precedence over the global width.
type ZfillSpec struct {
	Global *int           `json:"-"`
	PerKey map[string]int `json:"-"`
}

// UnmarshalJSON accepts either a bare integer or an object of key widths.
func (z *ZfillSpec) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	var width int
	if err := json.Unmarshal(data, &width); err == nil {
		z.Global = &width
		z.PerKey = nil
		return nil
	}

	var perKey map[string]int
	if err := json.Unmarshal(data, &perKey); err != nil {
		return err
	}
	z.Global = nil
	z.PerKey = perKey
	return nil
}

// MarshalJSON emits the scalar form when no per-key map is set.
func (z ZfillSpec) MarshalJSON() ([]byte, error) {
	if z.PerKey != nil {
		return json.Marshal(z.PerKey)
	}
	if z.Global != nil {
		return json.Marshal(*z.Global)
	}
	return []byte("null"), nil
}

// IsZero reports whether no padding is configured.
func (z ZfillSpec) IsZero() bool {
	return z.Global == nil && len(z.PerKey) == 0
}

// widthFor resolves the pad width for keyName, zero meaning no padding.
func (z ZfillSpec) widthFor(keyName string) int {
	if width, ok := z.PerKey[keyName]; ok {
		return width
	}
	if z.Global != nil {
		return *z.Global
	}
	return 0
}

// NormalizePolicy canonicalizes join key values before comparison.
type NormalizePolicy struct {
	StripNonDigits bool      `json:"strip_non_digits,omitempty"`
	Zfill          ZfillSpec `json:"zfill,omitempty"`
}

// Normalize canonicalizes value for keyName. The same policy is applied to
// both sides of a join so comparison stays symmetric. Empty input always
// normalizes to the empty string and must never match a non-empty key.
func (p NormalizePolicy) Normalize(value, keyName string) string {
	out := strings.TrimSpace(value)
	if out == "" {
		return ""
	}

	if p.StripNonDigits {
		var b strings.Builder
		b.Grow(len(out))
		for _, r := range out {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		out = b.String()
		if out == "" {
			return ""
		}
	}

	if width := p.Zfill.widthFor(keyName); width > len(out) {
		out = strings.Repeat("0", width-len(out)) + out
	}
	return out
}
