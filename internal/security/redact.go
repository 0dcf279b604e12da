// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bastion Contributors

package security

import (
	"regexp"
	"sync"
)

// redactedMarker replaces matched secret material in tool output and
// history content before it is persisted or returned.
const redactedMarker = "[REDACTED]"

type redactRule struct {
	name    string
	pattern *regexp.Regexp
}

var (
	redactRulesOnce  sync.Once
	redactRulesCache []redactRule
)

// redactRules returns the cached compiled redaction patterns.
// Patterns are compiled exactly once on first call.
func redactRules() []redactRule {
	redactRulesOnce.Do(func() {
		redactRulesCache = []redactRule{
			{
				name:    "key_value_secret",
				pattern: regexp.MustCompile(`(?i)(api[_-]?key|access[_-]?key|auth[_-]?token|token|secret|password|passwd|authorization)\s*[=:]\s*\S+`),
			},
			{
				name:    "bearer_token",
				pattern: regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.]{20,}`),
			},
			{
				name:    "anthropic_api_key",
				pattern: regexp.MustCompile(`sk-ant-api\d{2}-[A-Za-z0-9_-]{20,}`),
			},
			{
				name:    "openai_api_key",
				pattern: regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),
			},
			{
				name:    "google_api_key",
				pattern: regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
			},
			{
				name:    "database_connection_string",
				pattern: regexp.MustCompile(`(?i)(postgres(?:ql)?|mysql|mongodb|redis)://[^\s:@]+:[^@\s]+@[^\s]+`),
			},
			{
				// Broad token-run fallback. Intentionally aggressive: false
				// positives are acceptable, leaked credentials are not.
				name:    "long_token_run",
				pattern: regexp.MustCompile(`\b[A-Za-z0-9_-]{32,}\b`),
			},
		}
	})
	return redactRulesCache
}

// Redact replaces recognizable secret material in s with a redaction marker.
func Redact(s string) string {
	if s == "" {
		return s
	}
	for _, rule := range redactRules() {
		s = rule.pattern.ReplaceAllString(s, redactedMarker)
	}
	return s
}
