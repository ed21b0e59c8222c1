package models

import (
	"regexp"
	"strings"
	"time"
)

// Template status and type values used by the catalogue filter
const (
	StatusVerified = "verified"
	StatusDraft    = "draft"

	FormatHTML     = "html"
	FormatMarkdown = "markdown"
)

// Field input kinds
const (
	FieldText     = "text"
	FieldTextarea = "textarea"
	FieldEmail    = "email"
	FieldDate     = "date"
	FieldNumber   = "number"
)

var tokenPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Template represents a legal document scaffold with named fields
type Template struct {
	// Frontmatter fields
	ID          string      `yaml:"id" json:"id"`
	Version     string      `yaml:"version,omitempty" json:"version,omitempty"`
	Name        string      `yaml:"name" json:"name"`
	Summary     string      `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string      `yaml:"author,omitempty" json:"author,omitempty"`
	Tags        []string    `yaml:"tags,omitempty" json:"tags,omitempty"`
	Status      string      `yaml:"status,omitempty" json:"status,omitempty"` // "verified", "draft"
	Type        string      `yaml:"type,omitempty" json:"type,omitempty"`     // "agreement", "policy", ...
	Format      string      `yaml:"format,omitempty" json:"format,omitempty"` // "html" or "markdown"
	Fields      []FieldSpec `yaml:"fields" json:"fields"`
	UpdatedAt   time.Time   `yaml:"updated_at" json:"updated_at"`

	// Content fields
	Content  string `yaml:"-" json:"content"` // Body with {{field}} tokens
	FilePath string `yaml:"-" json:"-"`
}

// FieldSpec describes one user-supplied value of a template
type FieldSpec struct {
	Name        string     `yaml:"name" json:"name"`
	Label       string     `yaml:"label" json:"label"`
	Type        string     `yaml:"type,omitempty" json:"type,omitempty"`
	Required    bool       `yaml:"required" json:"required"`
	Placeholder string     `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Hint        string     `yaml:"hint,omitempty" json:"hint,omitempty"`
	RichText    bool       `yaml:"rich_text,omitempty" json:"rich_text,omitempty"`
	Validation  FieldRules `yaml:"validation,omitempty" json:"validation,omitempty"`
}

// FieldRules are the optional constraints checked by the validation engine
type FieldRules struct {
	Pattern       string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	MinLength     int    `yaml:"min_length,omitempty" json:"min_length,omitempty"`
	MaxLength     int    `yaml:"max_length,omitempty" json:"max_length,omitempty"`
	CustomMessage string `yaml:"custom_message,omitempty" json:"custom_message,omitempty"`
}

// DisplayLabel falls back to the field name when no label is set
func (f FieldSpec) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// Field returns the spec with the given name
func (t *Template) Field(name string) (FieldSpec, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// ContentFormat returns the body format, defaulting to HTML
func (t *Template) ContentFormat() string {
	if t.Format == FormatMarkdown {
		return FormatMarkdown
	}
	return FormatHTML
}

// UnknownTokens lists tokens in the body that no field declares, in order of
// first appearance.
func (t *Template) UnknownTokens() []string {
	var unknown []string
	seen := make(map[string]bool)
	for _, m := range tokenPattern.FindAllStringSubmatch(t.Content, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := t.Field(name); !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// Clone returns a deep copy so callers cannot mutate the catalogue
func (t *Template) Clone() *Template {
	c := *t
	c.Tags = append([]string(nil), t.Tags...)
	c.Fields = append([]FieldSpec(nil), t.Fields...)
	return &c
}

// Implement list.Item interface for bubbles list component

// FilterValue returns the value used for filtering in lists
func (t Template) FilterValue() string {
	return cleanString(t.Name + " " + strings.Join(t.Tags, " "))
}

// Title satisfies the list.Item interface
func (t Template) Title() string {
	if t.Name != "" {
		return cleanString(t.Name)
	}
	return cleanString(t.ID)
}

// Description satisfies the list.Item interface
func (t Template) Description() string {
	var parts []string
	if t.Author != "" {
		parts = append(parts, "by "+t.Author)
	}
	if !t.UpdatedAt.IsZero() {
		parts = append(parts, "Updated: "+t.UpdatedAt.Format("2006-01-02"))
	}
	if len(t.Tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(t.Tags, ", "))
	}

	result := cleanString(strings.Join(parts, " • "))
	maxTotalLength := 100
	if len(result) > maxTotalLength {
		result = result[:maxTotalLength-3] + "..."
	}
	return result
}

// cleanString removes problematic characters that might cause rendering issues
func cleanString(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(' ')
		} else if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
