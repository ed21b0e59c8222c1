package rasterize

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// A4 dimensions in millimetres
const (
	pageWidthMM  = 210.0
	pageHeightMM = 297.0
)

// Band is one page-high strip of the capture
type Band struct {
	Image  *image.RGBA
	Height int
}

// Slice cuts a PNG capture into bands of bandHeight pixels. The last band
// holds whatever is left.
func Slice(capture []byte, bandHeight int) ([]Band, image.Rectangle, error) {
	if bandHeight <= 0 {
		return nil, image.Rectangle{}, fmt.Errorf("invalid band height %d", bandHeight)
	}
	src, err := png.Decode(bytes.NewReader(capture))
	if err != nil {
		return nil, image.Rectangle{}, fmt.Errorf("decode capture: %w", err)
	}
	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, bounds, fmt.Errorf("empty capture")
	}

	var bands []Band
	for y := bounds.Min.Y; y < bounds.Max.Y; y += bandHeight {
		h := bandHeight
		if y+h > bounds.Max.Y {
			h = bounds.Max.Y - y
		}
		dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), h))
		draw.Draw(dst, dst.Bounds(), src, image.Point{X: bounds.Min.X, Y: y}, draw.Src)
		bands = append(bands, Band{Image: dst, Height: h})
	}
	return bands, bounds, nil
}

// Meta is written into the PDF info dictionary
type Meta struct {
	Title   string
	Created time.Time
}

// WritePDF places each band full-bleed on its own A4 page and returns the
// page count.
func WritePDF(w io.Writer, bands []Band, pixelWidth int, meta Meta) (int, error) {
	if pixelWidth <= 0 {
		return 0, fmt.Errorf("invalid pixel width %d", pixelWidth)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCompression(true)
	pdf.SetCreator("docfill", true)
	if meta.Title != "" {
		pdf.SetTitle(meta.Title, true)
	}
	if !meta.Created.IsZero() {
		pdf.SetCreationDate(meta.Created)
	}

	mmPerPixel := pageWidthMM / float64(pixelWidth)
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	for i, band := range bands {
		var buf bytes.Buffer
		if err := png.Encode(&buf, band.Image); err != nil {
			return 0, fmt.Errorf("encode page %d: %w", i+1, err)
		}
		name := fmt.Sprintf("page-%d", i+1)
		pdf.AddPage()
		pdf.RegisterImageOptionsReader(name, opts, &buf)
		height := float64(band.Height) * mmPerPixel
		if height > pageHeightMM {
			height = pageHeightMM
		}
		pdf.ImageOptions(name, 0, 0, pageWidthMM, height, false, opts, 0, "")
		if pdf.Err() {
			return 0, pdf.Error()
		}
	}

	if err := pdf.Output(w); err != nil {
		return 0, err
	}
	return len(bands), nil
}
