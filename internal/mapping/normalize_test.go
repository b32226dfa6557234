package mapping

import (
	"encoding/json"
	"testing"
)

func TestNormalize_StripAndPad(t *testing.T) {
	width := 10
	policy := NormalizePolicy{
		StripNonDigits: true,
		Zfill:          ZfillSpec{Global: &width},
	}

	got := policy.Normalize("(555) 123-4567", "phone")
	if got != "5551234567" {
		t.Fatalf("expected 5551234567, got %q", got)
	}
	if policy.Normalize("555-1234", "phone") != "0005551234" {
		t.Fatalf("expected zero padding up to width 10")
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	width := 8
	policy := NormalizePolicy{StripNonDigits: true, Zfill: ZfillSpec{Global: &width}}

	once := policy.Normalize(" A-12 34 ", "acct")
	twice := policy.Normalize(once, "acct")
	if once != twice {
		t.Fatalf("normalize must be idempotent: %q vs %q", once, twice)
	}
	if once != "00001234" {
		t.Fatalf("unexpected normalized value %q", once)
	}
}

func TestNormalize_EmptyNeverMatches(t *testing.T) {
	width := 6
	policy := NormalizePolicy{StripNonDigits: true, Zfill: ZfillSpec{Global: &width}}

	if policy.Normalize("", "acct") != "" {
		t.Fatalf("empty input must normalize to empty")
	}
	if policy.Normalize("   ", "acct") != "" {
		t.Fatalf("whitespace input must normalize to empty")
	}
	// All characters stripped leaves nothing to pad.
	if policy.Normalize("N/A", "acct") != "" {
		t.Fatalf("digit-free input must normalize to empty, not %q", policy.Normalize("N/A", "acct"))
	}
}

func TestNormalize_PerKeyWidthWins(t *testing.T) {
	global := 8
	policy := NormalizePolicy{
		StripNonDigits: true,
		Zfill: ZfillSpec{
			Global: &global,
			PerKey: map[string]int{"phone": 10},
		},
	}

	if got := policy.Normalize("42", "phone"); got != "0000000042" {
		t.Fatalf("per-key width must win: got %q", got)
	}
	if got := policy.Normalize("42", "acct"); got != "00000042" {
		t.Fatalf("global width applies to other keys: got %q", got)
	}
}

func TestNormalize_NoPolicyPassthrough(t *testing.T) {
	var policy NormalizePolicy
	if got := policy.Normalize(" ABC-123 ", "ref"); got != "ABC-123" {
		t.Fatalf("expected trim-only passthrough, got %q", got)
	}
}

func TestZfillSpec_DecodeScalarAndMap(t *testing.T) {
	var scalar ZfillSpec
	if err := json.Unmarshal([]byte(`8`), &scalar); err != nil {
		t.Fatalf("decode scalar: %v", err)
	}
	if scalar.Global == nil || *scalar.Global != 8 || scalar.PerKey != nil {
		t.Fatalf("unexpected scalar spec %+v", scalar)
	}

	var perKey ZfillSpec
	if err := json.Unmarshal([]byte(`{"acct":8,"phone":10}`), &perKey); err != nil {
		t.Fatalf("decode map: %v", err)
	}
	if perKey.Global != nil || perKey.PerKey["acct"] != 8 || perKey.PerKey["phone"] != 10 {
		t.Fatalf("unexpected per-key spec %+v", perKey)
	}

	var null ZfillSpec
	if err := json.Unmarshal([]byte(`null`), &null); err != nil {
		t.Fatalf("decode null: %v", err)
	}
	if !null.IsZero() {
		t.Fatalf("null must decode to the zero spec")
	}
}
