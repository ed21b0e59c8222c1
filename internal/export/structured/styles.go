package structured

import "strings"

// ptToMM converts a font size in points to millimetres
const ptToMM = 25.4 / 72

// Style is a named paragraph style. Sizes are points; spacing is millimetres.
type Style struct {
	Family      string
	FontStyle   string // gofpdf style letters: B, I, U
	Size        float64
	LineSpacing float64 // multiple of the font size
	SpaceBefore float64
	SpaceAfter  float64
	Indent      float64
	Gray        int // text gray level, 0 is black
}

// LineHeight returns the height of one line in millimetres
func (s Style) LineHeight() float64 {
	spacing := s.LineSpacing
	if spacing <= 0 {
		spacing = 1.2
	}
	return s.Size * ptToMM * spacing
}

// Styles maps style names to styles
type Styles map[string]Style

// Style names
const (
	StyleBody     = "body"
	StyleHeading1 = "heading1"
	StyleHeading2 = "heading2"
	StyleHeading3 = "heading3"
	StyleList     = "list"
	StyleQuote    = "quote"
	StylePre      = "pre"
	StyleBlock    = "block"
	StyleHeader   = "header"
	StyleFooter   = "footer"
)

// DefaultStyles is a serif legal-document look
func DefaultStyles() Styles {
	return Styles{
		StyleBody:     {Family: "Times", Size: 11, LineSpacing: 1.5, SpaceAfter: 4},
		StyleHeading1: {Family: "Times", FontStyle: "B", Size: 16, LineSpacing: 1.3, SpaceAfter: 8},
		StyleHeading2: {Family: "Times", FontStyle: "B", Size: 14, LineSpacing: 1.4, SpaceBefore: 8, SpaceAfter: 5},
		StyleHeading3: {Family: "Times", FontStyle: "B", Size: 12, LineSpacing: 1.4, SpaceBefore: 6, SpaceAfter: 3},
		StyleList:     {Family: "Times", Size: 11, LineSpacing: 1.4, SpaceBefore: 2, SpaceAfter: 4, Indent: 8},
		StyleQuote:    {Family: "Times", FontStyle: "I", Size: 11, LineSpacing: 1.5, SpaceBefore: 2, SpaceAfter: 4, Indent: 8, Gray: 60},
		StylePre:      {Family: "Courier", Size: 9, LineSpacing: 1.4, SpaceBefore: 2, SpaceAfter: 4},
		StyleBlock:    {Family: "Times", Size: 11, LineSpacing: 1.5, SpaceAfter: 3},
		StyleHeader:   {Family: "Times", FontStyle: "I", Size: 9, Gray: 110},
		StyleFooter:   {Family: "Times", Size: 8, Gray: 110},
	}
}

// Get returns the named style, falling back to the body style
func (s Styles) Get(name string) Style {
	if st, ok := s[name]; ok {
		return st
	}
	if st, ok := s[StyleBody]; ok {
		return st
	}
	return DefaultStyles()[StyleBody]
}

// For returns the style used for a block
func (s Styles) For(b Block) Style {
	switch b.Kind {
	case KindHeading:
		switch {
		case b.Level <= 1:
			return s.Get(StyleHeading1)
		case b.Level == 2:
			return s.Get(StyleHeading2)
		default:
			return s.Get(StyleHeading3)
		}
	case KindList, KindListItem:
		return s.Get(StyleList)
	case KindQuote:
		return s.Get(StyleQuote)
	case KindPre:
		return s.Get(StylePre)
	case KindBlock:
		return s.Get(StyleBlock)
	default:
		return s.Get(StyleBody)
	}
}

// fontStyle merges a style's letters with a run's formatting
func fontStyle(base string, r Run) string {
	letters := strings.ToUpper(base)
	add := func(l string, on bool) {
		if on && !strings.Contains(letters, l) {
			letters += l
		}
	}
	add("B", r.Bold)
	add("I", r.Italic)
	add("U", r.Underline)
	return letters
}
