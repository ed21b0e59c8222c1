// Package rasterize exports a document by rendering it on a surface,
// capturing it as a bitmap and slicing the bitmap into A4 pages. Headings
// that would be stranded at the bottom of a page are pushed to the next one
// before the capture is taken.
package rasterize

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/doclast/docfill/internal/browser"
	"github.com/doclast/docfill/internal/export"
	"github.com/doclast/docfill/internal/export/images"
	"github.com/doclast/docfill/internal/layout"
)

// Options control the capture
type Options struct {
	Width int     // surface width in CSS pixels
	Scale float64 // device scale of the capture
	// KeepWithNext is the space in CSS pixels that must follow a heading on
	// the same page.
	KeepWithNext float64
}

// DefaultOptions matches an A4 page at 96 DPI captured at 2x
func DefaultOptions() Options {
	return Options{Width: 794, Scale: 2, KeepWithNext: 50}
}

// Strategy is the rasterize export strategy
type Strategy struct {
	surfaces browser.Factory
	inliner  *images.Inliner
	opts     Options
	logger   *zap.Logger
}

// New creates the strategy. inliner may be nil to leave image sources alone.
func New(surfaces browser.Factory, inliner *images.Inliner, opts Options, logger *zap.Logger) *Strategy {
	def := DefaultOptions()
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.Scale <= 0 {
		opts.Scale = def.Scale
	}
	if opts.KeepWithNext < 0 {
		opts.KeepWithNext = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Strategy{surfaces: surfaces, inliner: inliner, opts: opts, logger: logger.Named("rasterize")}
}

func (s *Strategy) Name() string { return export.Rasterize }

func (s *Strategy) CanRun(ctx context.Context) bool {
	return s.surfaces != nil && s.surfaces.Available(ctx)
}

func (s *Strategy) Run(ctx context.Context, job *export.Job) (*export.Result, error) {
	body := job.HTML
	if s.inliner != nil {
		inlined, report, err := s.inliner.Inline(ctx, body)
		if err != nil {
			return nil, fmt.Errorf("inline images: %w", err)
		}
		if len(report.Failed) > 0 {
			s.logger.Debug("some images kept their source", zap.Strings("failed", report.Failed))
		}
		body = inlined
	}

	styled, err := ApplyStyles(body)
	if err != nil {
		return nil, fmt.Errorf("apply styles: %w", err)
	}

	surface, err := s.surfaces.NewSurface(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := surface.Close(); cerr != nil {
			s.logger.Debug("surface close failed", zap.Error(cerr))
		}
	}()

	if err := surface.Load(ctx, Document(job.Title, styled, s.opts.Width), s.opts.Width); err != nil {
		return nil, err
	}

	page := layout.Page{
		Height:       layout.PageHeightForWidth(float64(s.opts.Width)),
		KeepWithNext: s.opts.KeepWithNext,
	}
	boxes, err := surface.Measure(ctx, HeadingSelector)
	if err != nil {
		return nil, err
	}
	adjustments := layout.Adjust(boxes, page)
	if err := surface.ApplyMargins(ctx, HeadingSelector, adjustments); err != nil {
		return nil, err
	}

	height, err := surface.ContentHeight(ctx)
	if err != nil {
		return nil, err
	}
	capture, err := surface.Capture(ctx, float64(s.opts.Width), height, s.opts.Scale)
	if err != nil {
		return nil, err
	}

	bands, bounds, err := Slice(capture, int(page.Height*s.opts.Scale))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	pages, err := WritePDF(&buf, bands, bounds.Dx(), Meta{Title: job.Title, Created: job.GeneratedAt})
	if err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	s.logger.Debug("rasterized",
		zap.Int("headings", len(boxes)),
		zap.Int("pushed", len(adjustments)),
		zap.Float64("height", height),
		zap.Int("pages", pages))

	return &export.Result{
		Strategy:    export.Rasterize,
		Data:        buf.Bytes(),
		ContentType: export.ContentTypePDF,
		Filename:    job.Filename + ".pdf",
		Pages:       pages,
	}, nil
}
