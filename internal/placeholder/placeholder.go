// Package placeholder scans and substitutes {{token}} placeholders in
// template bodies. Substitution is textual: it knows nothing about HTML and
// never escapes values. Callers that inject untrusted values go through
// internal/renderer, which escapes or sanitizes first.
package placeholder

import (
	"regexp"
	"strings"
)

// Pattern matches a placeholder token. Identifiers are \w+.
var Pattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Substitute replaces every {{key}} whose value is present and non-empty.
// Tokens without a usable value are kept byte-for-byte so callers can detect
// incomplete documents.
func Substitute(content string, values map[string]string) string {
	if len(values) == 0 || !strings.Contains(content, "{{") {
		return content
	}
	return Pattern.ReplaceAllStringFunc(content, func(token string) string {
		key := token[2 : len(token)-2]
		if v, ok := values[key]; ok && v != "" {
			return v
		}
		return token
	})
}

// Tokens returns the distinct token names in order of first appearance
func Tokens(content string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range Pattern.FindAllStringSubmatch(content, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Remaining is Tokens applied to substituted output: the fields the document
// still needs.
func Remaining(content string) []string {
	return Tokens(content)
}

// HasNested reports whether a value carries placeholder syntax. Such values
// make substitution non-idempotent and are rejected before rendering.
func HasNested(value string) bool {
	return strings.Contains(value, "{{")
}

// Missing returns the names from fields that have no non-empty value
func Missing(names []string, values map[string]string) []string {
	var missing []string
	for _, name := range names {
		if strings.TrimSpace(values[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
