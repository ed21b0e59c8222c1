package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doclast/docfill/internal/errors"
	"github.com/doclast/docfill/internal/export"
	"github.com/doclast/docfill/internal/models"
	"github.com/doclast/docfill/internal/renderer"
	"github.com/doclast/docfill/internal/sanitize"
	"github.com/doclast/docfill/internal/validation"
)

// documentHTML returns the draft's body: the edited content when there is
// one, otherwise the template rendered with the field values. Edited content
// is untrusted and loses any active markup.
func documentHTML(d *models.DocumentDraft, tmpl *models.Template, decorated bool) (*renderer.Rendered, error) {
	if d.Content != "" {
		return &renderer.Rendered{HTML: sanitize.Document(d.Content)}, nil
	}
	r := renderer.NewRenderer(tmpl)
	if decorated {
		return r.RenderDecorated(d.FieldValues)
	}
	return r.Render(d.FieldValues)
}

// PreviewDraft renders the draft. Decorated output carries the editor's
// locked-field markup.
func (s *Service) PreviewDraft(id string, decorated bool) (*renderer.Rendered, error) {
	d, tmpl, err := s.draftWithTemplate(id)
	if err != nil {
		return nil, err
	}
	return documentHTML(d, tmpl, decorated)
}

// PreviewText renders the draft for a terminal
func (s *Service) PreviewText(id string, wordWrap int) (string, error) {
	d, tmpl, err := s.draftWithTemplate(id)
	if err != nil {
		return "", err
	}
	if d.Content != "" {
		return sanitize.PlainText(d.Content), nil
	}
	return renderer.NewRenderer(tmpl).TerminalPreview(d.FieldValues, wordWrap)
}

func (s *Service) exportJob(id string) (*models.DocumentDraft, *export.Job, error) {
	d, tmpl, err := s.draftWithTemplate(id)
	if err != nil {
		return nil, nil, err
	}
	rendered, err := documentHTML(d, tmpl, false)
	if err != nil {
		return nil, nil, err
	}
	return d, &export.Job{
		Title:       d.Name,
		Filename:    d.ExportName(),
		HTML:        rendered.HTML,
		GeneratedAt: s.now(),
	}, nil
}

// ExportDraft produces a PDF of the draft through the export pipeline
func (s *Service) ExportDraft(ctx context.Context, id string) (*export.Result, error) {
	return s.ExportDraftWith(ctx, id, "")
}

// ExportDraftWith exports using only the named strategy; "" uses the whole
// pipeline
func (s *Service) ExportDraftWith(ctx context.Context, id, strategy string) (*export.Result, error) {
	_, job, err := s.exportJob(id)
	if err != nil {
		return nil, err
	}
	return s.pipeline.ExportWith(ctx, job, strategy)
}

// ExportDraftHTML produces the standalone HTML download
func (s *Service) ExportDraftHTML(id string) (*export.Result, error) {
	_, job, err := s.exportJob(id)
	if err != nil {
		return nil, err
	}
	return s.pipeline.HTMLDownload(job)
}

// FinalizeDraft validates and exports the draft, archives the file and
// records the document. The draft accepts no edits afterwards.
func (s *Service) FinalizeDraft(ctx context.Context, id string) (*models.Document, *export.Result, error) {
	d, tmpl, err := s.draftWithTemplate(id)
	if err != nil {
		return nil, nil, err
	}
	if d.IsFinalized() {
		return nil, nil, errors.DraftFinalizedError(id)
	}
	if result := validation.ValidateAll(tmpl.Fields, d.FieldValues); result.HasErrors() {
		return nil, nil, result.ToAppError()
	}

	res, err := s.ExportDraft(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	doc := &models.Document{
		ID:         uuid.NewString(),
		DraftID:    d.ID,
		TemplateID: d.TemplateID,
		Name:       d.Name,
		Filename:   res.Filename,
		Strategy:   res.Strategy,
		Size:       int64(len(res.Data)),
		CreatedAt:  s.now(),
	}
	if s.archive != nil {
		location, err := s.archiveWithRetry(ctx, res)
		if err != nil {
			return nil, nil, err
		}
		doc.Location = location
	}
	if err := s.storage.SaveDocument(doc); err != nil {
		return nil, nil, errors.StorageError("save document", err)
	}

	if err := s.markFinalized(id); err != nil {
		return nil, nil, err
	}
	s.logger.Info("draft finalized",
		zap.String("draft", id),
		zap.String("document", doc.ID),
		zap.String("strategy", doc.Strategy),
		zap.String("location", doc.Location))
	return doc, res, nil
}

// markFinalized saves the draft as finalized and closes its autosaver
func (s *Service) markFinalized(id string) error {
	s.mu.Lock()
	od, err := s.openLocked(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	// Pending field changes land before the status flips.
	s.closeDraft(od)
	s.mu.Lock()
	delete(s.open, id)
	s.mu.Unlock()

	d := cloneDraft(od.draft)
	d.Status = models.DraftFinalized
	d.UpdatedAt = s.now()
	if err := s.storage.SaveDraft(d); err != nil {
		return errors.StorageError("save draft", err)
	}
	if err := od.saver.ClearBackup(); err != nil {
		s.logger.Warn("failed to clear emergency backup", zap.String("draft", id), zap.Error(err))
	}
	return nil
}

// ArchiveResult stores an exported file in the configured archive and
// returns its location
func (s *Service) ArchiveResult(ctx context.Context, res *export.Result) (string, error) {
	if s.archive == nil {
		return "", errors.ValidationError("No archive is configured")
	}
	return s.archiveWithRetry(ctx, res)
}

// ArchiveKind names the configured archive, or "" when there is none
func (s *Service) ArchiveKind() string {
	if s.archive == nil {
		return ""
	}
	return s.archive.Kind()
}

func (s *Service) archiveWithRetry(ctx context.Context, res *export.Result) (string, error) {
	for attempt := 0; ; attempt++ {
		location, err := s.archive.Put(ctx, res.Filename, res.Data, res.ContentType)
		if err == nil {
			return location, nil
		}
		appErr := errors.StorageError(fmt.Sprintf("archive to %s", s.archive.Kind()), err)
		if !s.recovery.ShouldRetry(appErr, attempt+1) {
			return "", appErr
		}

		delay := time.Duration(s.recovery.GetRetryDelay(attempt)) * time.Second
		s.logger.Warn("archive failed, retrying",
			zap.String("archive", s.archive.Kind()),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
}

// ListDocuments returns the finalized documents, newest first
func (s *Service) ListDocuments() ([]*models.Document, error) {
	docs, err := s.storage.ListDocuments()
	if err != nil {
		return nil, errors.StorageError("list documents", err)
	}
	return docs, nil
}
