package mapping

import (
	"strings"
	"testing"
)

func TestValidate_AggregatesProblems(t *testing.T) {
	cfg := &TemplateConfig{
		OutputMeta: map[string]string{"Run": "env:order_id"},
	}

	err := cfg.Validate(ItemTypeSingleSource)
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	msg := err.Error()
	for _, want := range []string{"master_csv_path", "external_join_keys", "output_meta"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("aggregated error must mention %q, got %q", want, msg)
		}
	}
}

func TestValidate_SingleSourceRejectsAttachmentSources(t *testing.T) {
	cfg := &TemplateConfig{
		MasterCSVPath:     "masters/a.csv",
		ExternalJoinKeys:  []string{"acct"},
		AttachmentSources: []AttachmentRule{{Path: "uploads/notes"}},
	}

	if err := cfg.Validate(ItemTypeSingleSource); err == nil || !strings.Contains(err.Error(), "attachment_sources") {
		t.Fatalf("expected attachment_sources rejection, got %v", err)
	}
}

func TestValidate_MultiSourceNeedsJoinKey(t *testing.T) {
	cfg := &TemplateConfig{
		MasterCSVPath:     "masters/a.csv",
		ExternalJoinKeys:  []string{"acct"},
		AttachmentSources: []AttachmentRule{{Path: "uploads/notes"}},
	}

	if err := cfg.Validate(ItemTypeMultiSource); err == nil || !strings.Contains(err.Error(), "join_key") {
		t.Fatalf("expected join key requirement, got %v", err)
	}

	cfg.InternalJoinKey = "delivery_id"
	if err := cfg.Validate(ItemTypeMultiSource); err != nil {
		t.Fatalf("internal_join_key default must satisfy the rule: %v", err)
	}
}

func TestValidate_MultiSourceRequiresInternalJoinKey(t *testing.T) {
	// Per-rule join keys rename the attachment side only; without an
	// internal_join_key the primary side has nothing to look up with.
	cfg := &TemplateConfig{
		MasterCSVPath:     "masters/a.csv",
		ExternalJoinKeys:  []string{"acct"},
		AttachmentSources: []AttachmentRule{{Path: "atts", JoinKey: "REF"}},
	}

	if err := cfg.Validate(ItemTypeMultiSource); err == nil || !strings.Contains(err.Error(), "internal_join_key") {
		t.Fatalf("expected internal_join_key requirement, got %v", err)
	}
}

func TestValidate_DuplicateAliasTargets(t *testing.T) {
	cfg := &TemplateConfig{
		MasterCSVPath:    "masters/a.csv",
		ExternalJoinKeys: []string{"phone"},
		ColumnAliases:    map[string]string{"PHONE": "phone", "TEL": "phone"},
	}

	err := cfg.Validate(ItemTypeSingleSource)
	if err == nil || !strings.Contains(err.Error(), "both target") {
		t.Fatalf("expected duplicate alias target rejection, got %v", err)
	}
	if !strings.Contains(err.Error(), `"PHONE"`) || !strings.Contains(err.Error(), `"TEL"`) {
		t.Fatalf("error must name both aliases, got %v", err)
	}
}

func TestValidate_NegativeZfill(t *testing.T) {
	bad := -1
	cfg := &TemplateConfig{
		MasterCSVPath:    "masters/a.csv",
		ExternalJoinKeys: []string{"acct"},
		JoinNormalize:    NormalizePolicy{Zfill: ZfillSpec{Global: &bad}},
	}

	if err := cfg.Validate(ItemTypeSingleSource); err == nil || !strings.Contains(err.Error(), "zfill") {
		t.Fatalf("expected zfill rejection, got %v", err)
	}
}
