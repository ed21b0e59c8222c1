package structured

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Meta describes the document being rendered
type Meta struct {
	Title     string
	Generated time.Time
}

// RenderOptions control page geometry and styling
type RenderOptions struct {
	MarginMM   float64
	DateLayout string
	Styles     Styles
}

// DefaultRenderOptions returns A4 with 20mm margins
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{MarginMM: 20, DateLayout: "January 2, 2006", Styles: DefaultStyles()}
}

type document struct {
	pdf    *gofpdf.Fpdf
	tr     func(string) string
	styles Styles
	margin float64
}

// Render writes blocks as a paginated PDF and returns the page count
func Render(w io.Writer, blocks []Block, meta Meta, opts RenderOptions) (int, error) {
	def := DefaultRenderOptions()
	if opts.MarginMM <= 0 {
		opts.MarginMM = def.MarginMM
	}
	if opts.DateLayout == "" {
		opts.DateLayout = def.DateLayout
	}
	if opts.Styles == nil {
		opts.Styles = def.Styles
	}
	if meta.Generated.IsZero() {
		meta.Generated = time.Now()
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(opts.MarginMM, opts.MarginMM, opts.MarginMM)
	pdf.SetAutoPageBreak(true, opts.MarginMM)
	pdf.SetCreator("docfill", true)
	pdf.SetCreationDate(meta.Generated)
	if meta.Title != "" {
		pdf.SetTitle(meta.Title, true)
	}
	pdf.AliasNbPages("")

	d := &document{
		pdf:    pdf,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
		styles: opts.Styles,
		margin: opts.MarginMM,
	}

	pdf.SetHeaderFunc(func() { d.header(meta.Title) })
	pdf.SetFooterFunc(func() { d.footer(meta.Generated.Format(opts.DateLayout)) })

	pdf.AddPage()
	for i, b := range blocks {
		if b.KeepWithNext() {
			need := d.height(b, true)
			if b.Kind == KindHeading && i+1 < len(blocks) {
				need += d.height(blocks[i+1], true)
			}
			d.ensure(need)
		}
		d.block(b)
		if pdf.Err() {
			return 0, fmt.Errorf("block %d (%s): %w", i, b.Kind, pdf.Error())
		}
	}

	pages := pdf.PageCount()
	if err := pdf.Output(w); err != nil {
		return 0, err
	}
	return pages, nil
}

func (d *document) contentWidth() float64 {
	pageW, _ := d.pdf.GetPageSize()
	left, _, right, _ := d.pdf.GetMargins()
	return pageW - left - right
}

func (d *document) setStyle(st Style, r Run) {
	d.pdf.SetFont(st.Family, fontStyle(st.FontStyle, r), st.Size)
	d.pdf.SetTextColor(st.Gray, st.Gray, st.Gray)
}

func (d *document) header(title string) {
	if title == "" {
		return
	}
	st := d.styles.Get(StyleHeader)
	d.setStyle(st, Run{})
	d.pdf.SetY(d.margin / 2)
	d.pdf.CellFormat(d.contentWidth(), 5, d.tr(title), "", 0, "L", false, 0, "")
	d.pdf.SetY(d.margin)
}

func (d *document) footer(date string) {
	st := d.styles.Get(StyleFooter)
	d.setStyle(st, Run{})
	half := d.contentWidth() / 2
	d.pdf.SetY(-d.margin / 1.6)
	page := "Page " + strconv.Itoa(d.pdf.PageNo()) + " of {nb}"
	d.pdf.CellFormat(half, 5, page, "", 0, "L", false, 0, "")
	d.pdf.CellFormat(half, 5, d.tr(date), "", 0, "R", false, 0, "")
}

// height estimates the vertical space a block needs. With first set only the
// first line (or first list item) is counted.
func (d *document) height(b Block, first bool) float64 {
	st := d.styles.For(b)
	switch b.Kind {
	case KindRule:
		return 6
	case KindList:
		if len(b.Items) == 0 {
			return 0
		}
		h := st.SpaceBefore
		items := b.Items
		if first {
			items = items[:1]
		}
		for _, item := range items {
			h += d.height(item, first)
		}
		return h
	}

	d.setStyle(st, Run{})
	width := d.contentWidth() - st.Indent - float64(b.Level)*st.Indent
	lines := len(d.pdf.SplitLines([]byte(d.tr(b.Text())), width))
	if lines == 0 {
		lines = 1
	}
	if first {
		lines = 1
	}
	return st.SpaceBefore + float64(lines)*st.LineHeight()
}

// ensure starts a new page when need does not fit below the cursor
func (d *document) ensure(need float64) {
	_, pageH := d.pdf.GetPageSize()
	_, top, _, bottom := d.pdf.GetMargins()
	y := d.pdf.GetY()
	if y+need > pageH-bottom && y > top+0.5 {
		d.pdf.AddPage()
	}
}

func (d *document) block(b Block) {
	st := d.styles.For(b)
	switch b.Kind {
	case KindRule:
		d.rule()
	case KindList:
		d.pdf.Ln(st.SpaceBefore)
		d.list(b, st)
		d.pdf.Ln(st.SpaceAfter)
	case KindPre:
		d.pdf.Ln(st.SpaceBefore)
		d.setStyle(st, Run{})
		d.pdf.SetFillColor(245, 245, 245)
		d.pdf.MultiCell(d.contentWidth(), st.LineHeight(), d.tr(b.Text()), "", "L", true)
		d.pdf.Ln(st.SpaceAfter)
	case KindQuote:
		d.pdf.Ln(st.SpaceBefore)
		left, _, _, _ := d.pdf.GetMargins()
		page, startY := d.pdf.PageNo(), d.pdf.GetY()
		d.runs(b.Runs, st, st.Indent)
		if d.pdf.PageNo() == page {
			d.pdf.SetDrawColor(190, 190, 190)
			d.pdf.SetLineWidth(0.6)
			d.pdf.Line(left+st.Indent/3, startY, left+st.Indent/3, d.pdf.GetY())
			d.pdf.SetDrawColor(0, 0, 0)
			d.pdf.SetLineWidth(0.2)
		}
		d.pdf.Ln(st.SpaceAfter)
	default:
		d.pdf.Ln(st.SpaceBefore)
		d.runs(b.Runs, st, 0)
		d.pdf.Ln(st.SpaceAfter)
	}
}

// runs writes mixed-format text that wraps at the margins
func (d *document) runs(runs []Run, st Style, indent float64) {
	left, _, _, _ := d.pdf.GetMargins()
	d.pdf.SetLeftMargin(left + indent)
	d.pdf.SetX(left + indent)
	lh := st.LineHeight()
	for _, r := range runs {
		d.setStyle(st, r)
		d.pdf.Write(lh, d.tr(r.Text))
	}
	d.pdf.SetLeftMargin(left)
	d.pdf.Ln(lh)
}

func (d *document) list(b Block, st Style) {
	left, _, _, _ := d.pdf.GetMargins()
	indent := st.Indent * float64(b.Level+1)
	lh := st.LineHeight()
	for i, item := range b.Items {
		marker := "•"
		if b.Ordered {
			marker = strconv.Itoa(i+1) + "."
		}
		if len(item.Runs) > 0 {
			d.setStyle(st, Run{})
			d.pdf.SetX(left + indent - st.Indent*0.75)
			d.pdf.CellFormat(st.Indent*0.75, lh, d.tr(marker), "", 0, "L", false, 0, "")
			d.runs(item.Runs, st, indent)
			d.pdf.Ln(1)
		}
		for _, nested := range item.Items {
			d.list(nested, st)
		}
	}
}

func (d *document) rule() {
	pageW, _ := d.pdf.GetPageSize()
	left, _, right, _ := d.pdf.GetMargins()
	d.pdf.Ln(2)
	y := d.pdf.GetY()
	d.pdf.SetDrawColor(180, 180, 180)
	d.pdf.SetLineWidth(0.3)
	d.pdf.Line(left, y, pageW-right, y)
	d.pdf.SetDrawColor(0, 0, 0)
	d.pdf.SetLineWidth(0.2)
	d.pdf.Ln(4)
}

// Summary lists the block kinds in order, for logging
func Summary(blocks []Block) string {
	kinds := make([]string, 0, len(blocks))
	for _, b := range blocks {
		kinds = append(kinds, b.Kind.String())
	}
	return strings.Join(kinds, ",")
}
