// Package export turns a filled document into a downloadable file. A Pipeline
// runs an ordered list of strategies and returns the first result that
// succeeds; the HTML download is offered separately and is never attempted
// automatically.
package export

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/doclast/docfill/internal/errors"
	"github.com/doclast/docfill/internal/renderer"
	"github.com/doclast/docfill/internal/sanitize"
)

// Strategy names
const (
	Rasterize  = "rasterize"
	Structured = "structured"
	Print      = "print"
	HTML       = "html"
)

// Content types
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeHTML = "text/html; charset=utf-8"
)

// emptyEditorContent is what an untouched editor emits
const emptyEditorContent = "<p></p>"

// Job is one export request
type Job struct {
	Title       string
	Filename    string // without extension
	HTML        string
	GeneratedAt time.Time
}

// Result is a produced file
type Result struct {
	Strategy    string
	Data        []byte
	ContentType string
	Filename    string
	Pages       int
}

// Strategy produces a file from sanitized HTML
type Strategy interface {
	Name() string
	// CanRun reports whether the strategy's dependencies are present
	CanRun(ctx context.Context) bool
	Run(ctx context.Context, job *Job) (*Result, error)
}

// CheckContent rejects documents with nothing to export
func CheckContent(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || trimmed == emptyEditorContent {
		return errors.EmptyContentError()
	}
	return nil
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the pipeline logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithStrictSanitize makes leftover editor markup after cleaning fatal.
// When disabled the residue is only logged.
func WithStrictSanitize(strict bool) Option {
	return func(p *Pipeline) { p.strict = strict }
}

// WithClock overrides the generation timestamp source
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline runs strategies in order until one succeeds
type Pipeline struct {
	strategies []Strategy
	logger     *zap.Logger
	strict     bool
	now        func() time.Time
}

// NewPipeline creates a pipeline. Order matters: the first strategy is the
// primary one and each following strategy is a fallback.
func NewPipeline(strategies []Strategy, opts ...Option) *Pipeline {
	p := &Pipeline{
		strategies: strategies,
		logger:     zap.NewNop(),
		strict:     true,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("export")
	return p
}

// Strategies returns the names of the configured strategies in order
func (p *Pipeline) Strategies() []string {
	names := make([]string, 0, len(p.strategies))
	for _, s := range p.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Prepare validates and sanitizes a job in place. Active content is removed
// before any strategy sees the document.
func (p *Pipeline) Prepare(job *Job) error {
	if err := CheckContent(job.HTML); err != nil {
		return err
	}

	clean, err := sanitize.Clean(sanitize.Document(job.HTML))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExportFailed, "failed to sanitize content")
	}
	if issues := sanitize.Issues(clean); len(issues) > 0 {
		if p.strict {
			return errors.NewAppError(errors.ErrCodeSanitizeResidue, "editor markup remained after sanitizing").
				WithDetails(strings.Join(issues, "; "))
		}
		p.logger.Warn("editor markup remained after sanitizing", zap.Strings("issues", issues))
	}
	// Cleaning can leave nothing behind, e.g. a document of empty markers.
	if err := CheckContent(clean); err != nil {
		return err
	}

	job.HTML = clean
	if job.GeneratedAt.IsZero() {
		job.GeneratedAt = p.now()
	}
	if job.Filename == "" {
		job.Filename = "document"
	}
	return nil
}

// Export runs the strategies against job and returns the first success
func (p *Pipeline) Export(ctx context.Context, job *Job) (*Result, error) {
	return p.run(ctx, job, p.strategies)
}

// ExportWith runs only the named strategy, without fallback. An empty name
// behaves like Export.
func (p *Pipeline) ExportWith(ctx context.Context, job *Job, name string) (*Result, error) {
	if name == "" {
		return p.Export(ctx, job)
	}
	for _, s := range p.strategies {
		if s.Name() == name {
			return p.run(ctx, job, []Strategy{s})
		}
	}
	return nil, errors.ValidationError(fmt.Sprintf("Export strategy '%s' is not configured", name)).
		WithContext("configured", p.Strategies())
}

func (p *Pipeline) run(ctx context.Context, job *Job, strategies []Strategy) (*Result, error) {
	if err := p.Prepare(job); err != nil {
		return nil, err
	}

	var failures []error
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log := p.logger.With(zap.String("strategy", s.Name()), zap.String("filename", job.Filename))

		if !s.CanRun(ctx) {
			log.Info("strategy unavailable, skipping")
			failures = append(failures, fmt.Errorf("%s: unavailable", s.Name()))
			continue
		}

		start := time.Now()
		res, err := s.Run(ctx, job)
		if err != nil {
			log.Warn("strategy failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
			failures = append(failures, errors.RenderError(s.Name(), err))
			continue
		}

		if res.Strategy == "" {
			res.Strategy = s.Name()
		}
		if res.Filename == "" {
			res.Filename = job.Filename + ".pdf"
		}
		if res.ContentType == "" {
			res.ContentType = ContentTypePDF
		}
		log.Info("export complete",
			zap.Int("bytes", len(res.Data)),
			zap.Int("pages", res.Pages),
			zap.Duration("elapsed", time.Since(start)))
		return res, nil
	}

	if len(failures) == 0 {
		return nil, errors.ExportError(stderrors.New("no export strategies configured"))
	}
	return nil, errors.ExportError(stderrors.Join(failures...))
}

// HTMLDownload renders the job as a standalone HTML file. It is the manual
// fallback offered to the user after every PDF strategy has failed.
func (p *Pipeline) HTMLDownload(job *Job) (*Result, error) {
	if err := p.Prepare(job); err != nil {
		return nil, err
	}
	data, err := renderer.StandaloneHTML(job.Title, job.HTML)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExportFailed, "failed to build html download")
	}
	return &Result{
		Strategy:    HTML,
		Data:        data,
		ContentType: ContentTypeHTML,
		Filename:    job.Filename + ".html",
	}, nil
}
