package renderer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/doclast/docfill/internal/errors"
	"github.com/doclast/docfill/internal/models"
	"github.com/doclast/docfill/internal/placeholder"
	"github.com/doclast/docfill/internal/sanitize"
)

// lockedFieldStyle is the inline styling the editor gives locked fields
const lockedFieldStyle = "background-color: #fef3c7; border: 1px solid #fbbf24; border-radius: 4px; " +
	"padding: 2px 8px; color: #92400e; cursor: not-allowed; user-select: none"

var (
	markdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)
	richTextPolicy = bluemonday.UGCPolicy()
)

// Renderer turns a template plus field values into document HTML
type Renderer struct {
	template *models.Template
	raw      bool
}

// Option configures a Renderer
type Option func(*Renderer)

// WithRawValues injects values verbatim. Only for values that are already
// trusted markup.
func WithRawValues() Option {
	return func(r *Renderer) { r.raw = true }
}

// NewRenderer creates a new renderer instance
func NewRenderer(tmpl *models.Template, opts ...Option) *Renderer {
	r := &Renderer{template: tmpl}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rendered is the populated document
type Rendered struct {
	HTML string `json:"html"`
	// Remaining lists tokens that had no value. They are left in HTML as-is.
	Remaining []string `json:"remaining,omitempty"`
}

// Complete reports whether every token was filled
func (r *Rendered) Complete() bool {
	return len(r.Remaining) == 0
}

// Body returns the template body as HTML, converting markdown templates
func (r *Renderer) Body() (string, error) {
	if r.template.ContentFormat() != models.FormatMarkdown {
		return r.template.Content, nil
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(r.template.Content), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	return buf.String(), nil
}

// Render substitutes values into the body
func (r *Renderer) Render(values map[string]string) (*Rendered, error) {
	return r.render(values, false)
}

// RenderDecorated substitutes values wrapped in the editor's locked-field
// markup, which sanitize.Clean removes again before export.
func (r *Renderer) RenderDecorated(values map[string]string) (*Rendered, error) {
	return r.render(values, true)
}

func (r *Renderer) render(values map[string]string, decorate bool) (*Rendered, error) {
	body, err := r.Body()
	if err != nil {
		return nil, err
	}

	prepared, err := r.prepareValues(values, decorate)
	if err != nil {
		return nil, err
	}

	out := placeholder.Substitute(body, prepared)
	return &Rendered{HTML: out, Remaining: placeholder.Remaining(out)}, nil
}

// prepareValues escapes or sanitizes each value for injection into HTML
func (r *Renderer) prepareValues(values map[string]string, decorate bool) (map[string]string, error) {
	prepared := make(map[string]string, len(values))
	for name, value := range values {
		if placeholder.HasNested(value) {
			return nil, errors.NestedPlaceholderError(name)
		}
		if value == "" {
			continue
		}

		field, _ := r.template.Field(name)
		markup := r.valueMarkup(field, value)
		if decorate {
			markup = decorateValue(name, value, markup, field.RichText)
		}
		prepared[name] = markup
	}
	return prepared, nil
}

func (r *Renderer) valueMarkup(field models.FieldSpec, value string) string {
	switch {
	case r.raw:
		return value
	case field.RichText:
		return richTextPolicy.Sanitize(value)
	case field.Type == models.FieldTextarea:
		return strings.ReplaceAll(html.EscapeString(value), "\n", "<br>")
	default:
		return html.EscapeString(value)
	}
}

func decorateValue(name, value, markup string, rich bool) string {
	plain := value
	if rich {
		plain = sanitize.PlainText(value)
	}
	return fmt.Sprintf(`<span class="%s" %s="%s" %s="%s" contenteditable="false" style="%s">%s %s</span>`,
		sanitize.MarkerClass,
		sanitize.FieldNameAttr, html.EscapeString(name),
		sanitize.FieldValueAttr, html.EscapeString(plain),
		lockedFieldStyle,
		sanitize.LockGlyph, markup)
}

// RenderText renders the document as plain text
func (r *Renderer) RenderText(values map[string]string) (string, error) {
	rendered, err := r.Render(values)
	if err != nil {
		return "", err
	}
	return sanitize.PlainText(rendered.HTML), nil
}

// Document is the JSON form of a rendered template
type Document struct {
	TemplateID string   `json:"template_id"`
	Name       string   `json:"name"`
	HTML       string   `json:"html"`
	Text       string   `json:"text"`
	Remaining  []string `json:"remaining,omitempty"`
}

// RenderJSON renders the document with its plain-text form as JSON
func (r *Renderer) RenderJSON(values map[string]string) (string, error) {
	rendered, err := r.Render(values)
	if err != nil {
		return "", err
	}

	doc := Document{
		TemplateID: r.template.ID,
		Name:       r.template.Name,
		HTML:       rendered.HTML,
		Text:       sanitize.PlainText(rendered.HTML),
		Remaining:  rendered.Remaining,
	}

	jsonBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}

	return string(jsonBytes), nil
}
