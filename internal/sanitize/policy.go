package sanitize

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

var (
	classPattern    = regexp.MustCompile(`^[\w\- ]+$`)
	editablePattern = regexp.MustCompile(`^(true|false)$`)

	documentPolicy = newDocumentPolicy()
)

// newDocumentPolicy is the UGC policy plus what document bodies and the
// editor's field markers use: class names, field data attributes and a set of
// layout styles. Scripts, event handlers and url() styles never pass.
func newDocumentPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(classPattern).Globally()
	p.AllowAttrs(FieldNameAttr, FieldValueAttr).Globally()
	p.AllowAttrs(EditableAttr).Matching(editablePattern).Globally()
	p.AllowStyles(
		"color", "background-color",
		"font-family", "font-size", "font-style", "font-weight", "line-height",
		"text-align", "text-decoration", "text-indent", "vertical-align",
		"margin", "margin-top", "margin-right", "margin-bottom", "margin-left",
		"padding", "border", "border-radius", "border-collapse", "width",
		"cursor", "user-select",
	).Globally()
	return p
}

// Document strips active content from document HTML: scripts, event handler
// attributes, javascript: URLs, frames and forms. Field markers are kept so
// Clean can still replace them.
func Document(content string) string {
	return documentPolicy.Sanitize(content)
}
