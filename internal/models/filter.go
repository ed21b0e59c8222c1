package models

import "strings"

// TemplateFilter narrows the template catalogue. Every non-empty criterion
// must match.
type TemplateFilter struct {
	Status string   `json:"status,omitempty"` // defaults to "verified"
	Type   string   `json:"type,omitempty"`
	Tags   []string `json:"tags,omitempty"` // all must be present, case-insensitive
	Query  string   `json:"query,omitempty"`
}

// Matches evaluates the filter against a template
func (f TemplateFilter) Matches(t *Template) bool {
	status := f.Status
	if status == "" {
		status = StatusVerified
	}
	if status != "all" && t.Status != status {
		return false
	}
	if f.Type != "" && !strings.EqualFold(t.Type, f.Type) {
		return false
	}
	for _, want := range f.Tags {
		if !containsTag(t.Tags, want) {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if strings.Contains(strings.ToLower(t.Name), q) {
			return true
		}
		for _, tag := range t.Tags {
			if strings.Contains(strings.ToLower(tag), q) {
				return true
			}
		}
		return false
	}
	return true
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
