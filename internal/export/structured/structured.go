// Package structured exports a document without a browser. The HTML is
// converted into a model of headings, paragraphs, lists and other blocks,
// which is then laid out on A4 pages with named styles, a running header
// and a page-numbered footer.
package structured

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/doclast/docfill/internal/export"
)

// ErrNothingToRender is returned when the content has no renderable blocks
var ErrNothingToRender = errors.New("document has no renderable content")

// Strategy is the structured export strategy
type Strategy struct {
	opts   RenderOptions
	logger *zap.Logger
}

// New creates the strategy
func New(opts RenderOptions, logger *zap.Logger) *Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Strategy{opts: opts, logger: logger.Named("structured")}
}

func (s *Strategy) Name() string { return export.Structured }

// CanRun is always true; the strategy needs nothing outside the process.
func (s *Strategy) CanRun(context.Context) bool { return true }

func (s *Strategy) Run(ctx context.Context, job *export.Job) (*export.Result, error) {
	blocks, err := Build(job.HTML)
	if err != nil {
		return nil, fmt.Errorf("build page model: %w", err)
	}
	if len(blocks) == 0 {
		return nil, ErrNothingToRender
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	pages, err := Render(&buf, blocks, Meta{Title: job.Title, Generated: job.GeneratedAt}, s.opts)
	if err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	s.logger.Debug("rendered", zap.Int("blocks", len(blocks)), zap.String("kinds", Summary(blocks)), zap.Int("pages", pages))

	return &export.Result{
		Strategy:    export.Structured,
		Data:        buf.Bytes(),
		ContentType: export.ContentTypePDF,
		Filename:    job.Filename + ".pdf",
		Pages:       pages,
	}, nil
}
