package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/doclast/docfill/internal/models"
	"github.com/doclast/docfill/internal/service"
	"github.com/doclast/docfill/internal/validation"
)

// Version is reported by the health endpoint. The CLI overrides it at startup.
var Version = "dev"

type createDraftRequest struct {
	TemplateID  string `json:"template_id"`
	Name        string `json:"name"`
	Filename    string `json:"filename"`
	Description string `json:"description"`
}

type updateDetailsRequest struct {
	Name        *string `json:"name"`
	Filename    *string `json:"filename"`
	Description *string `json:"description"`
	Content     *string `json:"content"`
}

type updateFieldsRequest struct {
	Values map[string]string `json:"values"`
}

type validateResponse struct {
	Valid  bool              `json:"valid"`
	Errors validation.Result `json:"errors,omitempty"`
}

type finalizeResponse struct {
	Document *models.Document `json:"document"`
	Pages    int              `json:"pages,omitempty"`
}

// handleHealth handles GET /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, map[string]interface{}{
		"status":     "ok",
		"version":    Version,
		"strategies": s.service.Pipeline().Strategies(),
		"archive":    s.service.ArchiveKind(),
	}, "", http.StatusOK)
}

// handleListTemplates handles GET /api/v1/templates
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	data := validation.ValidatedData(r)
	filter := models.TemplateFilter{}
	filter.Status, _ = data["status"].(string)
	filter.Type, _ = data["type"].(string)
	filter.Query, _ = data["query"].(string)
	if tags, ok := data["tags"].([]interface{}); ok {
		for _, tag := range tags {
			if str, ok := tag.(string); ok && str != "" {
				filter.Tags = append(filter.Tags, str)
			}
		}
	}
	if err := validation.ValidateTags(filter.Tags); err != nil {
		s.writeError(w, err)
		return
	}

	var (
		templates []*models.Template
		err       error
	)
	if search := r.URL.Query().Get("search"); search != "" {
		templates, err = s.service.SearchTemplates(search)
	} else {
		templates, err = s.service.FilterTemplates(filter)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, templates, "", http.StatusOK)
}

// handleGetTemplate handles GET /api/v1/templates/{id}
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := validation.ValidateIdentifier(id); err != nil {
		s.writeError(w, err)
		return
	}
	tmpl, err := s.service.GetTemplate(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, tmpl, "", http.StatusOK)
}

// handleTags handles GET /api/v1/tags
func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.service.AllTags()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, tags, "", http.StatusOK)
}

// handleListDrafts handles GET /api/v1/drafts
func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := s.service.ListDrafts()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, drafts, "", http.StatusOK)
}

// handleCreateDraft handles POST /api/v1/drafts
func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var req createDraftRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	draft, err := s.service.CreateDraft(req.TemplateID, req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.Filename != "" || req.Description != "" {
		details := service.DraftDetails{}
		if req.Filename != "" {
			details.Filename = &req.Filename
		}
		if req.Description != "" {
			details.Summary = &req.Description
		}
		if draft, err = s.service.UpdateDraftDetails(draft.ID, details); err != nil {
			s.writeError(w, err)
			return
		}
	}
	s.writeResponse(w, draft, "Draft created", http.StatusCreated)
}

// handleGetDraft handles GET /api/v1/drafts/{id}
func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := s.service.GetDraft(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, draft, "", http.StatusOK)
}

// handleUpdateDraft handles PATCH /api/v1/drafts/{id}
func (s *Server) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req updateDetailsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	draft, err := s.service.UpdateDraftDetails(chi.URLParam(r, "id"), service.DraftDetails{
		Name:     req.Name,
		Filename: req.Filename,
		Summary:  req.Description,
		Content:  req.Content,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, draft, "Draft updated", http.StatusOK)
}

// handleDeleteDraft handles DELETE /api/v1/drafts/{id}
func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteDraft(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, nil, "Draft deleted", http.StatusOK)
}

// handleUpdateFields handles PUT /api/v1/drafts/{id}/fields. Values are
// saved even when some fail validation; the failures come back in the body.
func (s *Server) handleUpdateFields(w http.ResponseWriter, r *http.Request) {
	var req updateFieldsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	update, err := s.service.UpdateDraftFields(chi.URLParam(r, "id"), req.Values)
	if err != nil {
		s.writeError(w, err)
		return
	}
	message := "Saved"
	if update.Errors.HasErrors() {
		message = "Saved with validation errors"
	}
	s.writeResponse(w, update, message, http.StatusOK)
}

// handleValidateDraft handles GET /api/v1/drafts/{id}/validate
func (s *Server) handleValidateDraft(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.ValidateDraft(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, validateResponse{Valid: !result.HasErrors(), Errors: result}, "", http.StatusOK)
}

// handlePreview handles GET /api/v1/drafts/{id}/preview
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	decorated, _ := strconv.ParseBool(r.URL.Query().Get("decorated"))
	rendered, err := s.service.PreviewDraft(chi.URLParam(r, "id"), decorated)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, rendered, "", http.StatusOK)
}

// handleExport handles POST /api/v1/drafts/{id}/export. The file is
// returned directly; archive=true also stores a copy.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data := validation.ValidatedData(r)
	strategy, _ := data["strategy"].(string)
	archive, _ := data["archive"].(bool)

	res, err := s.service.ExportDraftWith(r.Context(), chi.URLParam(r, "id"), strategy)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("X-Export-Strategy", res.Strategy)

	if archive {
		location, err := s.service.ArchiveResult(r.Context(), res)
		if err != nil {
			s.writeError(w, err)
			return
		}
		w.Header().Set("X-Archive-Location", location)
	}
	s.writeFile(w, res.Filename, res.ContentType, res.Data)
}

// handleExportHTML handles GET /api/v1/drafts/{id}/export.html
func (s *Server) handleExportHTML(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.ExportDraftHTML(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeFile(w, res.Filename, res.ContentType, res.Data)
}

// handleFinalize handles POST /api/v1/drafts/{id}/finalize
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, res, err := s.service.FinalizeDraft(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("document finalized", zap.String("draft", id), zap.String("document", doc.ID))
	s.writeResponse(w, finalizeResponse{Document: doc, Pages: res.Pages}, "Document finalized", http.StatusCreated)
}

// handleRestore handles POST /api/v1/drafts/{id}/restore
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	values, err := s.service.RestoreBackup(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if values == nil {
		s.writeResponse(w, nil, "No backup to restore", http.StatusOK)
		return
	}
	s.writeResponse(w, values, "Backup restored", http.StatusOK)
}

// handleAutosaveStatus handles GET /api/v1/drafts/{id}/autosave
func (s *Server) handleAutosaveStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.service.GetDraft(id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, map[string]string{"status": s.service.AutosaveStatus(id)}, "", http.StatusOK)
}

// handleListDocuments handles GET /api/v1/documents
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.service.ListDocuments()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResponse(w, docs, "", http.StatusOK)
}
