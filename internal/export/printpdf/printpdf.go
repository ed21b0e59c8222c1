// Package printpdf exports a document through the browser's own print
// engine, using a stylesheet written for paged media.
package printpdf

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/doclast/docfill/internal/browser"
	"github.com/doclast/docfill/internal/export"
)

var printPage = template.Must(template.New("print").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
      @page { size: A4; margin: 20mm; }
      body {
        font-family: Georgia, serif;
        font-size: 12pt;
        line-height: 1.8;
        color: #000;
        background: white;
        margin: 0;
        padding: 20mm;
        -webkit-print-color-adjust: exact;
        print-color-adjust: exact;
      }
      h1 { font-size: 24px; font-weight: bold; margin: 0 0 30px 0; padding-bottom: 15px; page-break-after: avoid; }
      h2 { font-size: 18px; font-weight: bold; margin: 35px 0 18px 0; padding-bottom: 8px; page-break-after: avoid; }
      h3 { font-size: 16px; font-weight: bold; margin: 25px 0 12px 0; page-break-after: avoid; }
      p { margin: 0 0 16px 0; text-align: justify; orphans: 3; widows: 3; }
      ul, ol { margin: 12px 0 20px 0; padding-left: 30px; }
      li { margin-bottom: 10px; }
      div { margin: 15px 0; }
      strong, b { font-weight: bold; }
      img { max-width: 100%; page-break-inside: avoid; }
      table { page-break-inside: avoid; }
      @media print {
        body { padding: 0; }
      }
    </style>
  </head>
  <body>
{{.Body}}
  </body>
</html>
`))

// Document renders the print page for an already sanitized body
func Document(title, body string) (string, error) {
	var buf bytes.Buffer
	err := printPage.Execute(&buf, struct {
		Title string
		Body  template.HTML
	}{Title: title, Body: template.HTML(body)})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Options control timing around the print call
type Options struct {
	// Settle is how long the page may lay out before printing
	Settle time.Duration
	// Grace delays closing the surface after the file is produced
	Grace    time.Duration
	MarginMM float64
}

// DefaultOptions returns the standard print timing
func DefaultOptions() Options {
	return Options{Settle: 500 * time.Millisecond, Grace: time.Second, MarginMM: 20}
}

// Strategy is the print export strategy
type Strategy struct {
	surfaces browser.Factory
	opts     Options
	logger   *zap.Logger
}

// New creates the strategy
func New(surfaces browser.Factory, opts Options, logger *zap.Logger) *Strategy {
	if opts.MarginMM <= 0 {
		opts.MarginMM = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Strategy{surfaces: surfaces, opts: opts, logger: logger.Named("print")}
}

func (s *Strategy) Name() string { return export.Print }

func (s *Strategy) CanRun(ctx context.Context) bool {
	return s.surfaces != nil && s.surfaces.Available(ctx)
}

func (s *Strategy) Run(ctx context.Context, job *export.Job) (*export.Result, error) {
	doc, err := Document(job.Title, job.HTML)
	if err != nil {
		return nil, fmt.Errorf("build print document: %w", err)
	}

	surface, err := s.surfaces.NewSurface(ctx)
	if err != nil {
		return nil, err
	}
	defer s.teardown(surface)

	if err := surface.Load(ctx, doc, 794); err != nil {
		return nil, err
	}
	if err := sleep(ctx, s.opts.Settle); err != nil {
		return nil, err
	}

	data, err := surface.PrintPDF(ctx, browser.A4(s.opts.MarginMM))
	if err != nil {
		return nil, err
	}

	return &export.Result{
		Strategy:    export.Print,
		Data:        data,
		ContentType: export.ContentTypePDF,
		Filename:    job.Filename + ".pdf",
		Pages:       CountPages(data),
	}, nil
}

// teardown closes the surface after the grace period. Errors are only logged.
func (s *Strategy) teardown(surface browser.Surface) {
	closeSurface := func() {
		if err := surface.Close(); err != nil {
			s.logger.Debug("surface close failed", zap.Error(err))
		}
	}
	if s.opts.Grace <= 0 {
		closeSurface()
		return
	}
	time.AfterFunc(s.opts.Grace, closeSurface)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var pageObject = regexp.MustCompile(`/Type\s*/Page\b`)

// CountPages estimates the page count of a PDF by counting page objects
func CountPages(pdf []byte) int {
	return len(pageObject.FindAll(pdf, -1))
}
