// Package service holds the application state: the template catalogue, the
// drafts being filled with their autosavers, the export pipeline and the
// archive that finalized files go to. Every interface (CLI, API, TUI) goes
// through it.
package service

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"

	"github.com/doclast/docfill/internal/autosave"
	"github.com/doclast/docfill/internal/errors"
	"github.com/doclast/docfill/internal/export"
	"github.com/doclast/docfill/internal/importer"
	"github.com/doclast/docfill/internal/models"
	"github.com/doclast/docfill/internal/storage"
)

// Service provides business logic for templates, drafts and documents
type Service struct {
	storage  *storage.Storage
	pipeline *export.Pipeline
	archive  storage.Archive
	recovery *errors.ErrorRecovery
	logger   *zap.Logger
	now      func() time.Time
	autosave autosave.Options
	closers  []func() error

	mu        sync.Mutex
	templates []*models.Template // cached metadata, nil until first load
	open      map[string]*openDraft
}

// openDraft is a draft being edited together with its autosaver
type openDraft struct {
	draft *models.DocumentDraft
	saver *autosave.Saver
}

// Option configures a Service
type Option func(*Service)

// WithPipeline sets the export pipeline
func WithPipeline(p *export.Pipeline) Option {
	return func(s *Service) { s.pipeline = p }
}

// WithArchive sets where finalized exports are stored. Without one the
// document record carries no location.
func WithArchive(a storage.Archive) Option {
	return func(s *Service) { s.archive = a }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAutosave sets the autosave timings used for every draft
func WithAutosave(opts autosave.Options) Option {
	return func(s *Service) { s.autosave = opts }
}

// WithRecovery sets the retry policy for archive uploads
func WithRecovery(r *errors.ErrorRecovery) Option {
	return func(s *Service) { s.recovery = r }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCloser registers a function run by Close after the drafts are flushed
func WithCloser(fn func() error) Option {
	return func(s *Service) { s.closers = append(s.closers, fn) }
}

// New creates a service over store
func New(store *storage.Storage, opts ...Option) *Service {
	s := &Service{
		storage:  store,
		recovery: errors.NewErrorRecovery(3, 1),
		logger:   zap.NewNop(),
		now:      time.Now,
		autosave: autosave.DefaultOptions(),
		open:     make(map[string]*openDraft),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pipeline == nil {
		s.pipeline = export.NewPipeline(nil, export.WithLogger(s.logger))
	}
	s.logger = s.logger.Named("service")
	return s
}

// InitLibrary creates the library directories and seeds the samples
func (s *Service) InitLibrary() error {
	if err := s.storage.InitLibrary(); err != nil {
		return errors.StorageError("init library", err)
	}
	s.ReloadTemplates()
	return nil
}

// Storage exposes the underlying store
func (s *Service) Storage() *storage.Storage { return s.storage }

// Pipeline exposes the export pipeline
func (s *Service) Pipeline() *export.Pipeline { return s.pipeline }

// ReloadTemplates drops the cached catalogue; the next read lists the
// library again
func (s *Service) ReloadTemplates() {
	s.mu.Lock()
	s.templates = nil
	s.mu.Unlock()
}

func (s *Service) catalogue() ([]*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.templates == nil {
		templates, err := s.storage.ListTemplates()
		if err != nil {
			return nil, errors.StorageError("list templates", err)
		}
		s.templates = templates
	}
	return s.templates, nil
}

// ListTemplates returns metadata for every template, without bodies
func (s *Service) ListTemplates() ([]*models.Template, error) {
	templates, err := s.catalogue()
	if err != nil {
		return nil, err
	}
	out := make([]*models.Template, len(templates))
	for i, t := range templates {
		out[i] = t.Clone()
	}
	return out, nil
}

// FilterTemplates returns the templates matching filter
func (s *Service) FilterTemplates(filter models.TemplateFilter) ([]*models.Template, error) {
	templates, err := s.ListTemplates()
	if err != nil {
		return nil, err
	}
	var out []*models.Template
	for _, t := range templates {
		if filter.Matches(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// SearchTemplates ranks templates by fuzzy match against name, summary, id
// and tags. An empty query returns every template.
func (s *Service) SearchTemplates(query string) ([]*models.Template, error) {
	templates, err := s.ListTemplates()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return templates, nil
	}

	searchStrings := make([]string, len(templates))
	for i, t := range templates {
		searchStrings[i] = fmt.Sprintf("%s %s %s %s", t.Name, t.Summary, t.ID, strings.Join(t.Tags, " "))
	}

	matches := fuzzy.Find(query, searchStrings)
	results := make([]*models.Template, 0, len(matches))
	for _, match := range matches {
		results = append(results, templates[match.Index])
	}
	return results, nil
}

// AllTags returns every tag in use, lower-cased and sorted
func (s *Service) AllTags() ([]string, error) {
	templates, err := s.catalogue()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var tags []string
	for _, t := range templates {
		for _, tag := range t.Tags {
			tag = strings.ToLower(tag)
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	sort.Strings(tags)
	return tags, nil
}

// GetTemplate returns a copy of a template with its body loaded
func (s *Service) GetTemplate(id string) (*models.Template, error) {
	templates, err := s.catalogue()
	if err != nil {
		return nil, err
	}
	for _, t := range templates {
		if t.ID != id {
			continue
		}
		full, err := s.storage.LoadTemplate(t.FilePath)
		if err != nil {
			return nil, errors.StorageError("load template", err)
		}
		return full, nil
	}
	return nil, errors.NotFoundError(fmt.Sprintf("Template '%s'", id))
}

// ImportTemplates copies the template files under dir into the library and
// reloads the catalogue
func (s *Service) ImportTemplates(dir string, opts importer.Options) (*importer.Result, error) {
	result, err := importer.New(s.storage, s.logger).ImportDir(dir, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "Template import failed")
	}
	if len(result.Imported) > 0 && !opts.DryRun {
		s.ReloadTemplates()
	}
	return result, nil
}

// Close flushes every open draft and releases resources
func (s *Service) Close() error {
	s.mu.Lock()
	open := make([]*openDraft, 0, len(s.open))
	for _, od := range s.open {
		open = append(open, od)
	}
	s.mu.Unlock()

	for _, od := range open {
		s.closeDraft(od)
	}
	s.mu.Lock()
	s.open = make(map[string]*openDraft)
	s.mu.Unlock()

	var errs []error
	for _, fn := range s.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.storage.Close(); err != nil {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}
