package renderer

import (
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/doclast/docfill/internal/errors"
	"github.com/doclast/docfill/internal/models"
	"github.com/doclast/docfill/internal/placeholder"
	"github.com/doclast/docfill/internal/sanitize"
)

// NewTermRenderer creates a glamour renderer matched to the terminal background
func NewTermRenderer(wordWrap int) (*glamour.TermRenderer, error) {
	if style := os.Getenv("GLAMOUR_STYLE"); style != "" {
		return glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(wordWrap),
		)
	}

	profile := termenv.ColorProfile()
	styleOption := glamour.WithAutoStyle()
	if profile == termenv.TrueColor || profile == termenv.ANSI256 {
		if lipgloss.HasDarkBackground() {
			styleOption = glamour.WithStandardStyle("dark")
		} else {
			styleOption = glamour.WithStandardStyle("light")
		}
	}

	return glamour.NewTermRenderer(
		styleOption,
		glamour.WithColorProfile(profile),
		glamour.WithWordWrap(wordWrap),
	)
}

// TerminalPreview renders the filled document for a terminal. Markdown
// templates keep their formatting through glamour; HTML templates are shown
// as plain text.
func (r *Renderer) TerminalPreview(values map[string]string, wordWrap int) (string, error) {
	if r.template.ContentFormat() != models.FormatMarkdown {
		return r.RenderText(values)
	}

	for name, value := range values {
		if placeholder.HasNested(value) {
			return "", errors.NestedPlaceholderError(name)
		}
	}
	source := placeholder.Substitute(r.template.Content, values)

	term, err := NewTermRenderer(wordWrap)
	if err != nil {
		return sanitize.PlainText(source), nil
	}
	return term.Render(source)
}
