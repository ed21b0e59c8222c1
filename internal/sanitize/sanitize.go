// Package sanitize strips editor-only decorations from document HTML before
// export. The editor wraps every substituted field in a locked-field marker
// (class, data attributes, lock glyph, yellow styling); Clean replaces each
// marker with a plain span holding the field's value and removes the marker
// attributes and styles from everything else.
package sanitize

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Markup used by the editor for locked fields
const (
	LockGlyph        = "🔒"
	MarkerClass      = "locked-field-node"
	FieldNameAttr    = "data-field-name"
	FieldValueAttr   = "data-field-value"
	EditableAttr     = "contenteditable"
	markerTextColor  = "#92400e"
	markerTextColor2 = "rgb(146, 64, 14)"
)

var (
	yellowBackgrounds = []string{"fef3c7", "fde68a"}
	yellowBorder      = "fbbf24"
)

// Clean returns the HTML with every locked-field marker replaced by its value
// and all editor residue removed. Clean is idempotent.
func Clean(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", nil
	}

	nodes, err := ParseFragment(content)
	if err != nil {
		return "", err
	}

	for i, n := range nodes {
		if isMarker(n) {
			nodes[i] = replacement(n)
			continue
		}
		cleanTree(n)
	}

	return RenderNodes(nodes)
}

// ParseFragment parses HTML in a <body> context
func ParseFragment(content string) ([]*html.Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	return html.ParseFragment(strings.NewReader(content), body)
}

// RenderNodes serialises a parsed fragment
func RenderNodes(nodes []*html.Node) (string, error) {
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func cleanTree(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		n.Data = strings.ReplaceAll(n.Data, LockGlyph, "")
		return
	case html.ElementNode:
		cleanAttributes(n)
	}

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if isMarker(c) {
			n.InsertBefore(replacement(c), c)
			n.RemoveChild(c)
		} else {
			cleanTree(c)
		}
		c = next
	}
}

func isMarker(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if hasClass(n, MarkerClass) {
		return true
	}
	if n.DataAtom == atom.Span {
		_, ok := attr(n, FieldNameAttr)
		return ok
	}
	return false
}

// replacement builds the plain span that stands in for a marker
func replacement(marker *html.Node) *html.Node {
	text := strings.TrimSpace(strings.ReplaceAll(textContent(marker), LockGlyph, ""))
	if v, ok := attr(marker, FieldValueAttr); ok && v != "" {
		text = v
	}

	span := &html.Node{Type: html.ElementNode, Data: "span", DataAtom: atom.Span}
	if styleAttr, ok := attr(marker, "style"); ok {
		if color, ok := ParseStyle(styleAttr).Get("color"); ok && !isMarkerColor(color) {
			span.Attr = []html.Attribute{{Key: "style", Val: "color: " + color}}
		}
	}
	span.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return span
}

func isMarkerColor(color string) bool {
	c := strings.ToLower(strings.TrimSpace(color))
	return c == markerTextColor || c == markerTextColor2 || strings.ReplaceAll(c, " ", "") == strings.ReplaceAll(markerTextColor2, " ", "")
}

func cleanAttributes(n *html.Node) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		switch a.Key {
		case FieldNameAttr, FieldValueAttr, EditableAttr:
			continue
		case "class":
			a.Val = removeClass(a.Val, MarkerClass)
			if a.Val == "" {
				continue
			}
		case "style":
			cleaned, changed := cleanStyle(a.Val)
			if changed {
				if cleaned == "" {
					continue
				}
				a.Val = cleaned
			}
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

// cleanStyle removes the editor's locked-field declarations. The attribute is
// left untouched when nothing matched.
func cleanStyle(attrVal string) (string, bool) {
	style := ParseStyle(attrVal)
	var drop []string

	for _, d := range style {
		v := strings.ToLower(d.Value)
		switch {
		case strings.HasPrefix(d.Property, "background") && containsAny(v, yellowBackgrounds...):
			drop = append(drop, d.Property)
		case strings.HasPrefix(d.Property, "border") && strings.Contains(v, yellowBorder):
			drop = append(drop, d.Property)
		case d.Property == "cursor" && v == "not-allowed":
			drop = append(drop, d.Property)
		case strings.HasSuffix(d.Property, "user-select") && v == "none":
			drop = append(drop, d.Property)
		}
	}

	radius, hasRadius := style.Get("border-radius")
	padding, hasPadding := style.Get("padding")
	if hasRadius && hasPadding && radius == "4px" && padding == "2px 8px" {
		drop = append(drop, "border-radius", "padding")
	}

	if len(drop) == 0 {
		return attrVal, false
	}
	return style.Remove(drop...).String(), true
}

// Validate reports whether content is free of known editor residue. It is a
// pre-export guard: passing is necessary but not sufficient for clean output.
func Validate(content string) bool {
	return len(Issues(content)) == 0
}

// Issues lists the residue signatures found in content. Only markup counts:
// the parsed tree is searched for marker classes, field attributes and
// locked-field styles, so document text that mentions them is not residue.
func Issues(content string) []string {
	nodes, err := ParseFragment(content)
	if err != nil {
		return []string{"content could not be parsed"}
	}

	var found residue
	for _, n := range nodes {
		found.scan(n)
	}

	var issues []string
	if found.glyph {
		issues = append(issues, "lock glyph still present")
	}
	if found.class {
		issues = append(issues, "locked field classes still present")
	}
	if found.style {
		issues = append(issues, "locked field styling still present")
	}
	if found.attrs {
		issues = append(issues, "locked field attributes still present")
	}
	return issues
}

type residue struct {
	glyph, class, style, attrs bool
}

func (r *residue) scan(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if strings.Contains(n.Data, LockGlyph) {
			r.glyph = true
		}
	case html.ElementNode:
		for _, a := range n.Attr {
			switch a.Key {
			case FieldNameAttr, FieldValueAttr:
				r.attrs = true
			case "class":
				if hasClass(n, MarkerClass) {
					r.class = true
				}
			case "style":
				if _, changed := cleanStyle(a.Val); changed {
					r.style = true
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.scan(c)
	}
}

// PlainText extracts readable text, one line per block element
func PlainText(content string) string {
	if content == "" {
		return ""
	}
	nodes, err := ParseFragment(content)
	if err != nil {
		return strings.TrimSpace(strings.ReplaceAll(content, LockGlyph, ""))
	}

	var b strings.Builder
	for _, n := range nodes {
		writeText(&b, n)
	}

	lines := strings.Split(strings.ReplaceAll(b.String(), LockGlyph, ""), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
			return
		}
		if n.DataAtom == atom.Br {
			b.WriteByte('\n')
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if n.Type == html.ElementNode && IsBlock(n.DataAtom) {
		b.WriteByte('\n')
	}
}

// IsBlock reports whether an element starts a new line in flow layout
func IsBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Ul, atom.Ol, atom.Li, atom.Blockquote, atom.Pre, atom.Table, atom.Tr,
		atom.Section, atom.Article, atom.Header, atom.Footer, atom.Hr:
		return true
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	v, ok := attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

func removeClass(classes, class string) string {
	fields := strings.Fields(classes)
	kept := fields[:0]
	for _, c := range fields {
		if c != class {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(fields) {
		return classes
	}
	return strings.Join(kept, " ")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
