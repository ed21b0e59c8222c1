package structured

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/doclast/docfill/internal/sanitize"
)

// Kind is the type of a block
type Kind int

const (
	KindParagraph Kind = iota
	KindHeading
	KindList
	KindListItem
	KindQuote
	KindRule
	KindPre
	// KindBlock is text flattened out of elements without a dedicated style
	KindBlock
)

func (k Kind) String() string {
	switch k {
	case KindParagraph:
		return "paragraph"
	case KindHeading:
		return "heading"
	case KindList:
		return "list"
	case KindListItem:
		return "list-item"
	case KindQuote:
		return "quote"
	case KindRule:
		return "rule"
	case KindPre:
		return "pre"
	default:
		return "block"
	}
}

// Run is a span of text sharing one inline format
type Run struct {
	Text      string
	Bold      bool
	Italic    bool
	Underline bool
}

func (r Run) sameFormat(o Run) bool {
	return r.Bold == o.Bold && r.Italic == o.Italic && r.Underline == o.Underline
}

// Block is one element of the page model
type Block struct {
	Kind    Kind
	Level   int // heading level, or nesting depth for lists
	Ordered bool
	Runs    []Run
	Items   []Block // list items, or the nested list of an item
}

// Text returns the concatenated text of the block's runs
func (b Block) Text() string {
	var sb strings.Builder
	for _, r := range b.Runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// KeepWithNext reports whether the block must start on the same page as
// the block after it.
func (b Block) KeepWithNext() bool {
	return b.Kind == KindHeading || b.Kind == KindList
}

// Build converts an HTML fragment into the page model
func Build(fragment string) ([]Block, error) {
	nodes, err := sanitize.ParseFragment(fragment)
	if err != nil {
		return nil, err
	}
	b := &builder{}
	for _, n := range nodes {
		b.node(n)
	}
	b.flush()
	return b.blocks, nil
}

type builder struct {
	blocks []Block
	// pending collects loose inline content between blocks
	pending []Run
}

func (b *builder) flush() {
	if runs := normalize(b.pending); len(runs) > 0 {
		b.blocks = append(b.blocks, Block{Kind: KindParagraph, Runs: runs})
	}
	b.pending = nil
}

func (b *builder) add(block Block) {
	b.flush()
	b.blocks = append(b.blocks, block)
}

func (b *builder) node(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.pending = append(b.pending, Run{Text: collapse(n.Data)})
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			b.node(c)
		}
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Img, atom.Head, atom.Template, atom.Noscript:
		return
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		if runs := normalize(inlineRuns(n, Run{})); len(runs) > 0 {
			b.add(Block{Kind: KindHeading, Level: int(n.Data[1] - '0'), Runs: runs})
		}
	case atom.P:
		if runs := normalize(inlineRuns(n, Run{})); len(runs) > 0 {
			b.add(Block{Kind: KindParagraph, Runs: runs})
		}
	case atom.Ul, atom.Ol:
		if list, ok := buildList(n, 0); ok {
			b.add(list)
		}
	case atom.Blockquote:
		if runs := normalize(inlineRuns(n, Run{Italic: true})); len(runs) > 0 {
			b.add(Block{Kind: KindQuote, Runs: runs})
		}
	case atom.Hr:
		b.add(Block{Kind: KindRule})
	case atom.Pre:
		if text := strings.Trim(textOf(n), "\n"); strings.TrimSpace(text) != "" {
			b.add(Block{Kind: KindPre, Runs: []Run{{Text: text}}})
		}
	case atom.Table:
		b.flush()
		b.table(n)
	case atom.Br:
		b.pending = append(b.pending, Run{Text: "\n"})
	default:
		if sanitize.IsBlock(n.DataAtom) || hasBlockChild(n) {
			b.flush()
			if !hasBlockChild(n) {
				if runs := normalize(inlineRuns(n, Run{})); len(runs) > 0 {
					b.blocks = append(b.blocks, Block{Kind: KindBlock, Runs: runs})
				}
				return
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				b.node(c)
			}
			b.flush()
			return
		}
		b.pending = append(b.pending, inlineRuns(n, Run{})...)
	}
}

// table flattens each row into one block with cells separated by a bar
func (b *builder) table(n *html.Node) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
					cells = append(cells, collapse(textOf(c)))
				}
			}
			if row := strings.TrimSpace(strings.Join(cells, " | ")); row != "" && strings.Trim(row, "| ") != "" {
				b.blocks = append(b.blocks, Block{Kind: KindBlock, Runs: []Run{{Text: row}}})
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
}

func buildList(n *html.Node, depth int) (Block, bool) {
	list := Block{Kind: KindList, Level: depth, Ordered: n.DataAtom == atom.Ol}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Li {
			continue
		}
		item := Block{Kind: KindListItem, Level: depth}
		var runs []Run
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			if gc.Type == html.ElementNode && (gc.DataAtom == atom.Ul || gc.DataAtom == atom.Ol) {
				if nested, ok := buildList(gc, depth+1); ok {
					item.Items = append(item.Items, nested)
				}
				continue
			}
			runs = append(runs, inlineRuns(gc, Run{})...)
		}
		item.Runs = normalize(runs)
		if len(item.Runs) > 0 || len(item.Items) > 0 {
			list.Items = append(list.Items, item)
		}
	}
	return list, len(list.Items) > 0
}

// inlineRuns collects the text under n with inherited formatting. Block
// descendants are flattened into the same run list, separated by breaks.
func inlineRuns(n *html.Node, f Run) []Run {
	switch n.Type {
	case html.TextNode:
		return []Run{{Text: collapse(n.Data), Bold: f.Bold, Italic: f.Italic, Underline: f.Underline}}
	case html.ElementNode:
	default:
		return nil
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Img, atom.Template, atom.Noscript:
		return nil
	case atom.Br:
		return []Run{{Text: "\n", Bold: f.Bold, Italic: f.Italic, Underline: f.Underline}}
	case atom.Strong, atom.B, atom.Th:
		f.Bold = true
	case atom.Em, atom.I, atom.Cite:
		f.Italic = true
	case atom.U, atom.Ins:
		f.Underline = true
	}
	if style, ok := attr(n, "style"); ok {
		s := sanitize.ParseStyle(style)
		if w, ok := s.Get("font-weight"); ok && isBoldWeight(w) {
			f.Bold = true
		}
		if v, ok := s.Get("font-style"); ok && v == "italic" {
			f.Italic = true
		}
		if v, ok := s.Get("text-decoration"); ok && strings.Contains(v, "underline") {
			f.Underline = true
		}
	}

	var runs []Run
	block := sanitize.IsBlock(n.DataAtom)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		runs = append(runs, inlineRuns(c, f)...)
	}
	if block && len(runs) > 0 {
		runs = append([]Run{{Text: "\n"}}, runs...)
	}
	return runs
}

// normalize turns runs of exactly "\n" into line breaks, merges runs with
// equal formatting and trims the ends. It returns nil when no visible text
// remains.
func normalize(runs []Run) []Run {
	var out []Run
	for _, r := range runs {
		if r.Text == "\n" {
			if len(out) > 0 && !strings.HasSuffix(out[len(out)-1].Text, "\n") {
				out[len(out)-1].Text = strings.TrimRight(out[len(out)-1].Text, " ") + "\n"
			}
			continue
		}
		text := collapse(r.Text)
		if text == "" {
			continue
		}
		if len(out) > 0 {
			prev := &out[len(out)-1]
			if strings.HasSuffix(prev.Text, " ") || strings.HasSuffix(prev.Text, "\n") {
				text = strings.TrimLeft(text, " ")
				if text == "" {
					continue
				}
			}
			if prev.sameFormat(r) {
				prev.Text += text
				continue
			}
		} else {
			text = strings.TrimLeft(text, " ")
			if text == "" {
				continue
			}
		}
		r.Text = text
		out = append(out, r)
	}

	for len(out) > 0 {
		last := &out[len(out)-1]
		last.Text = strings.TrimRight(last.Text, " \n")
		if last.Text != "" {
			break
		}
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// collapse folds runs of whitespace into a single space
func collapse(s string) string {
	var sb strings.Builder
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			if !space {
				sb.WriteByte(' ')
			}
			space = true
		default:
			sb.WriteRune(r)
			space = false
		}
	}
	return sb.String()
}

func isBoldWeight(w string) bool {
	if w == "bold" || w == "bolder" {
		return true
	}
	n, err := strconv.Atoi(w)
	return err == nil && n >= 600
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Br {
			sb.WriteByte('\n')
			continue
		}
		sb.WriteString(textOf(c))
	}
	return sb.String()
}

func hasBlockChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.P, atom.Ul, atom.Ol,
			atom.Blockquote, atom.Hr, atom.Pre, atom.Table:
			return true
		}
		if sanitize.IsBlock(c.DataAtom) || hasBlockChild(c) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
