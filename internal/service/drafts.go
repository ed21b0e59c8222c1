package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doclast/docfill/internal/autosave"
	"github.com/doclast/docfill/internal/errors"
	"github.com/doclast/docfill/internal/models"
	"github.com/doclast/docfill/internal/placeholder"
	"github.com/doclast/docfill/internal/sanitize"
	"github.com/doclast/docfill/internal/storage"
	"github.com/doclast/docfill/internal/validation"
)

// DraftDetails are the optional draft properties edited outside the form.
// Nil fields are left unchanged.
type DraftDetails struct {
	Name     *string `json:"name,omitempty"`
	Filename *string `json:"filename,omitempty"`
	Summary  *string `json:"description,omitempty"`
	// Content replaces the rendered body with edited HTML. An empty string
	// goes back to rendering from the template.
	Content *string `json:"content,omitempty"`
}

// FieldUpdate is the outcome of UpdateDraftFields
type FieldUpdate struct {
	Draft *models.DocumentDraft `json:"draft"`
	// Errors holds the messages for the fields that were just changed. The
	// values are stored either way.
	Errors validation.Result `json:"errors,omitempty"`
}

func formKey(draftID string) string { return "draft-" + draftID }

// CreateDraft starts filling a template
func (s *Service) CreateDraft(templateID, name string) (*models.DocumentDraft, error) {
	tmpl, err := s.GetTemplate(templateID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	name = strings.TrimSpace(name)
	if name == "" {
		name = models.DefaultDraftName
	}
	draft := &models.DocumentDraft{
		ID:          uuid.NewString(),
		TemplateID:  tmpl.ID,
		Name:        name,
		FieldValues: make(map[string]string, len(tmpl.Fields)),
		Status:      models.DraftOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, f := range tmpl.Fields {
		draft.FieldValues[f.Name] = ""
	}

	if err := s.storage.SaveDraft(draft); err != nil {
		return nil, errors.StorageError("save draft", err)
	}
	s.logger.Info("draft created", zap.String("draft", draft.ID), zap.String("template", tmpl.ID))
	return cloneDraft(draft), nil
}

// GetDraft returns the current state of a draft, including edits not yet
// autosaved
func (s *Service) GetDraft(id string) (*models.DocumentDraft, error) {
	s.mu.Lock()
	if od, ok := s.open[id]; ok {
		d := cloneDraft(od.draft)
		s.mu.Unlock()
		return d, nil
	}
	s.mu.Unlock()
	return s.loadDraft(id)
}

func (s *Service) loadDraft(id string) (*models.DocumentDraft, error) {
	d, err := s.storage.LoadDraft(id)
	if stderrors.Is(err, storage.ErrNotFound) {
		return nil, errors.NotFoundError(fmt.Sprintf("Draft '%s'", id))
	}
	if err != nil {
		return nil, errors.StorageError("load draft", err)
	}
	if d.FieldValues == nil {
		d.FieldValues = make(map[string]string)
	}
	return d, nil
}

// ListDrafts returns every draft, most recently updated first
func (s *Service) ListDrafts() ([]*models.DocumentDraft, error) {
	drafts, err := s.storage.ListDrafts()
	if err != nil {
		return nil, errors.StorageError("list drafts", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range drafts {
		if od, ok := s.open[d.ID]; ok {
			drafts[i] = cloneDraft(od.draft)
		}
	}
	return drafts, nil
}

// openLocked returns the open entry for a draft, loading it and starting its
// autosaver on first use. Callers hold s.mu.
func (s *Service) openLocked(id string) (*openDraft, error) {
	if od, ok := s.open[id]; ok {
		return od, nil
	}
	d, err := s.loadDraft(id)
	if err != nil {
		return nil, err
	}
	od := &openDraft{draft: d}
	od.saver = autosave.New(formKey(id), s.persistFunc(id), s.storage, s.autosave, s.logger)
	s.open[id] = od
	return od, nil
}

// persistFunc writes the autosaved values of one draft
func (s *Service) persistFunc(id string) autosave.SaveFunc {
	return func(ctx context.Context, values map[string]string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mu.Lock()
		od, ok := s.open[id]
		var d *models.DocumentDraft
		if ok {
			d = cloneDraft(od.draft)
		}
		s.mu.Unlock()
		if !ok {
			return fmt.Errorf("draft %s is no longer open", id)
		}
		d.FieldValues = values
		return s.storage.SaveDraft(d)
	}
}

// UpdateDraftFields merges values into a draft and schedules an autosave.
// Unknown fields and values containing a placeholder are rejected; values
// that fail validation are stored and reported in the result.
func (s *Service) UpdateDraftFields(id string, values map[string]string) (*FieldUpdate, error) {
	s.mu.Lock()
	od, err := s.openLocked(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if od.draft.IsFinalized() {
		s.mu.Unlock()
		return nil, errors.DraftFinalizedError(id)
	}
	templateID := od.draft.TemplateID
	s.mu.Unlock()

	tmpl, err := s.GetTemplate(templateID)
	if err != nil {
		return nil, err
	}

	cleaned := make(map[string]string, len(values))
	result := validation.Result{}
	for name, value := range values {
		field, ok := tmpl.Field(name)
		if !ok {
			return nil, errors.ValidationError(fmt.Sprintf("Template '%s' has no field '%s'", tmpl.ID, name)).
				WithContext("field", name)
		}
		if placeholder.HasNested(value) {
			return nil, errors.NestedPlaceholderError(name)
		}
		value = validation.SanitizeInput(field, value)
		cleaned[name] = value
		if msg := validation.ValidateField(field, value); msg != "" {
			result[name] = msg
		}
	}

	s.mu.Lock()
	// The draft may have been finalized or closed while the template loaded.
	od, err = s.openLocked(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if od.draft.IsFinalized() {
		s.mu.Unlock()
		return nil, errors.DraftFinalizedError(id)
	}
	for name, value := range cleaned {
		od.draft.FieldValues[name] = value
	}
	od.draft.UpdatedAt = s.now()
	snapshot := od.draft.Values()
	draft := cloneDraft(od.draft)
	s.mu.Unlock()

	od.saver.Schedule(snapshot)

	if len(result) == 0 {
		result = nil
	}
	return &FieldUpdate{Draft: draft, Errors: result}, nil
}

// UpdateDraftDetails changes name, filename, summary or edited content and
// saves right away
func (s *Service) UpdateDraftDetails(id string, details DraftDetails) (*models.DocumentDraft, error) {
	s.mu.Lock()
	od, err := s.openLocked(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if od.draft.IsFinalized() {
		s.mu.Unlock()
		return nil, errors.DraftFinalizedError(id)
	}
	d := od.draft
	if details.Name != nil {
		name := strings.TrimSpace(*details.Name)
		if name == "" {
			name = models.DefaultDraftName
		}
		d.Name = name
	}
	if details.Filename != nil {
		d.Filename = strings.TrimSuffix(strings.TrimSpace(*details.Filename), ".pdf")
	}
	if details.Summary != nil {
		d.Summary = *details.Summary
	}
	if details.Content != nil {
		d.Content = sanitize.Document(*details.Content)
	}
	d.UpdatedAt = s.now()
	out := cloneDraft(d)
	s.mu.Unlock()

	if err := s.storage.SaveDraft(out); err != nil {
		return nil, errors.StorageError("save draft", err)
	}
	return cloneDraft(out), nil
}

// FlushDraft saves pending field changes now, after any save already running
func (s *Service) FlushDraft(ctx context.Context, id string) error {
	s.mu.Lock()
	od, ok := s.open[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return od.saver.Flush(ctx)
}

// AutosaveStatus describes when the draft was last saved, or "" if it has
// not been saved since it was opened
func (s *Service) AutosaveStatus(id string) string {
	s.mu.Lock()
	od, ok := s.open[id]
	s.mu.Unlock()
	if !ok {
		return ""
	}
	return od.saver.Since(s.now())
}

// RestoreBackup merges the draft's emergency backup, if one exists and has
// not expired, and returns the restored values
func (s *Service) RestoreBackup(id string) (map[string]string, error) {
	s.mu.Lock()
	od, err := s.openLocked(id)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	values, err := od.saver.Restore()
	if err != nil {
		return nil, errors.StorageError("restore backup", err)
	}
	if values == nil {
		return nil, nil
	}

	if _, err := s.UpdateDraftFields(id, values); err != nil {
		return nil, err
	}
	if err := od.saver.ClearBackup(); err != nil {
		s.logger.Warn("failed to clear emergency backup", zap.String("draft", id), zap.Error(err))
	}
	s.logger.Info("emergency backup restored", zap.String("draft", id), zap.Int("fields", len(values)))
	return values, nil
}

// DeleteDraft discards a draft and its emergency backup
func (s *Service) DeleteDraft(id string) error {
	s.mu.Lock()
	od, ok := s.open[id]
	delete(s.open, id)
	s.mu.Unlock()
	if ok {
		od.saver.Stop()
	}

	err := s.storage.DeleteDraft(id)
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.NotFoundError(fmt.Sprintf("Draft '%s'", id))
	}
	if err != nil {
		return errors.StorageError("delete draft", err)
	}
	if err := s.storage.DeleteBackup(formKey(id)); err != nil {
		s.logger.Warn("failed to delete emergency backup", zap.String("draft", id), zap.Error(err))
	}
	return nil
}

// ValidateDraft runs every field's rules against the draft's values
func (s *Service) ValidateDraft(id string) (validation.Result, error) {
	d, tmpl, err := s.draftWithTemplate(id)
	if err != nil {
		return nil, err
	}
	return validation.ValidateAll(tmpl.Fields, d.FieldValues), nil
}

func (s *Service) draftWithTemplate(id string) (*models.DocumentDraft, *models.Template, error) {
	d, err := s.GetDraft(id)
	if err != nil {
		return nil, nil, err
	}
	tmpl, err := s.GetTemplate(d.TemplateID)
	if err != nil {
		return nil, nil, err
	}
	return d, tmpl, nil
}

// closeDraft flushes and stops a draft's autosaver
func (s *Service) closeDraft(od *openDraft) {
	timeout := s.autosave.SaveTimeout
	if timeout <= 0 {
		timeout = autosave.DefaultOptions().SaveTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := od.saver.Flush(ctx); err != nil {
		s.logger.Warn("final save failed", zap.String("draft", od.draft.ID), zap.Error(err))
	}
	od.saver.Stop()
}

func cloneDraft(d *models.DocumentDraft) *models.DocumentDraft {
	c := *d
	c.FieldValues = d.Values()
	return &c
}
