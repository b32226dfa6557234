package mapping

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// ResolveAttachments selects the attachment records that supply secondary
// join data for a multi-source item. Each configured rule matches
// attachments by storage path prefix and optional filename substring; the
// matched attachment's join-key field (the rule's join_key, or the
// config-level internal_join_key) is normalized and becomes the map key.
//
// If two attachments resolve to the same join-key value, the later one in
// processing order wins. That is deterministic and logged, not an error.
func ResolveAttachments(cfg *TemplateConfig, attachments []Record) map[string]Record {
	resolved := make(map[string]Record)

	for _, rule := range cfg.AttachmentSources {
		joinKey := cfg.ruleJoinKey(rule)
		if joinKey == "" {
			// Rules without a resolvable join key are rejected at save time.
			continue
		}
		for _, att := range attachments {
			if !ruleMatches(rule, att) {
				continue
			}
			raw := att.Field(joinKey)
			normalized := cfg.JoinNormalize.Normalize(raw, joinKey)
			if normalized == "" {
				continue
			}
			if prev, exists := resolved[normalized]; exists {
				log.Warnf("attachment resolver: join key %q matched by %s and %s, last wins", normalized, prev.Filename, att.Filename)
			}
			resolved[normalized] = att
		}
	}

	return resolved
}

// ruleMatches reports whether an attachment falls under a rule's path and
// filename filter.
func ruleMatches(rule AttachmentRule, att Record) bool {
	rulePath := normalizePathPrefix(rule.Path)
	attPath := normalizePathPrefix(att.SourcePath)
	if rulePath != "" && !strings.HasPrefix(attPath, rulePath) {
		return false
	}
	if rule.FilenameContains != "" && !strings.Contains(att.Filename, rule.FilenameContains) {
		return false
	}
	return true
}

// normalizePathPrefix strips surrounding slashes so prefix comparison does
// not depend on how paths were written in the config.
func normalizePathPrefix(p string) string {
	return strings.Trim(strings.TrimSpace(p), "/")
}
