package rasterize

import (
	"html"
	"strconv"
	"strings"

	nethtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/doclast/docfill/internal/sanitize"
)

// ContainerID is the id of the element wrapping the document on the surface
const ContainerID = "docfill-page"

// HeadingSelector matches every heading inside the container
const HeadingSelector = "#" + ContainerID + " h1, #" + ContainerID + " h2, #" + ContainerID + " h3, #" +
	ContainerID + " h4, #" + ContainerID + " h5, #" + ContainerID + " h6"

type decl = sanitize.Declaration

var elementRules = map[atom.Atom][]decl{
	atom.H1: {
		{Property: "font-size", Value: "20px"},
		{Property: "font-weight", Value: "bold"},
		{Property: "margin-top", Value: "0"},
		{Property: "margin-bottom", Value: "30px"},
		{Property: "padding-bottom", Value: "15px"},
		{Property: "line-height", Value: "1.3"},
	},
	atom.H2: {
		{Property: "font-size", Value: "18px"},
		{Property: "font-weight", Value: "bold"},
		{Property: "margin-top", Value: "35px"},
		{Property: "margin-bottom", Value: "18px"},
		{Property: "padding-bottom", Value: "8px"},
		{Property: "line-height", Value: "1.4"},
	},
	atom.H3: {
		{Property: "font-size", Value: "16px"},
		{Property: "font-weight", Value: "bold"},
		{Property: "margin-top", Value: "25px"},
		{Property: "margin-bottom", Value: "12px"},
		{Property: "line-height", Value: "1.4"},
	},
	atom.P: {
		{Property: "margin-bottom", Value: "16px"},
		{Property: "line-height", Value: "1.8"},
		{Property: "text-align", Value: "justify"},
	},
	atom.Ul: listRules,
	atom.Ol: listRules,
	atom.Li: {
		{Property: "margin-bottom", Value: "10px"},
		{Property: "line-height", Value: "1.5"},
	},
	atom.Strong: strongRules,
	atom.B:      strongRules,
}

var listRules = []decl{
	{Property: "margin-top", Value: "12px"},
	{Property: "margin-bottom", Value: "20px"},
	{Property: "padding-left", Value: "30px"},
	{Property: "line-height", Value: "1.5"},
}

var strongRules = []decl{
	{Property: "font-weight", Value: "bold"},
	{Property: "color", Value: "#000"},
}

var panelRules = []decl{
	{Property: "margin-top", Value: "25px"},
	{Property: "margin-bottom", Value: "25px"},
	{Property: "padding", Value: "20px"},
}

// ApplyStyles inlines the print styling onto every element of the fragment.
// The same input always yields the same output, so captures are repeatable.
func ApplyStyles(fragment string) (string, error) {
	nodes, err := sanitize.ParseFragment(fragment)
	if err != nil {
		return "", err
	}
	for _, n := range nodes {
		styleTree(n)
	}
	return sanitize.RenderNodes(nodes)
}

func styleTree(n *nethtml.Node) {
	if n.Type == nethtml.ElementNode {
		styleElement(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		styleTree(c)
	}
}

func styleElement(n *nethtml.Node) {
	idx := -1
	raw := ""
	for i, a := range n.Attr {
		if a.Key == "style" {
			idx, raw = i, a.Val
			break
		}
	}
	style := sanitize.ParseStyle(raw)

	for _, d := range elementRules[n.DataAtom] {
		style = style.Set(d.Property, d.Value)
	}
	if n.DataAtom == atom.Div && hasBackground(style) {
		for _, d := range panelRules {
			style = style.Set(d.Property, d.Value)
		}
	}
	if c, ok := style.Get("color"); ok && isTransparent(c) {
		style = style.Set("color", "#000")
	}
	style = style.Set("user-select", "auto").Set("-webkit-user-select", "auto")

	if idx >= 0 {
		n.Attr[idx].Val = style.String()
		return
	}
	n.Attr = append(n.Attr, nethtml.Attribute{Key: "style", Val: style.String()})
}

func hasBackground(style sanitize.Style) bool {
	for _, prop := range []string{"background-color", "background"} {
		if v, ok := style.Get(prop); ok && !isTransparent(v) {
			return true
		}
	}
	return false
}

func isTransparent(v string) bool {
	v = strings.ToLower(strings.ReplaceAll(v, " ", ""))
	return v == "" || v == "transparent" || v == "none" || v == "rgba(0,0,0,0)"
}

// Document wraps styled content in the page container used for capture
func Document(title, styled string, width int) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><meta charset=\"UTF-8\"><title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title><style>html, body { margin: 0; padding: 0; background: #fff; }</style></head><body>")
	b.WriteString(`<div id="` + ContainerID + `" style="`)
	b.WriteString("box-sizing: border-box; width: " + strconv.Itoa(width) + "px; padding: 60px; background: white; ")
	b.WriteString("font-family: Georgia, serif; font-size: 14px; line-height: 1.8; color: #000;\">")
	b.WriteString(styled)
	b.WriteString("</div></body></html>")
	return b.String()
}
