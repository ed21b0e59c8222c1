// Package api provides the RESTful HTTP API server for docfill.
//
// SYSTEM ARCHITECTURE ROLE:
// This module implements the HTTP interface layer of the system. It exposes
// the template catalogue, draft editing, previews, exports and finalized
// documents to browser editors and other HTTP clients.
//
// KEY RESPONSIBILITIES:
// - Route /api/v1 requests to the service layer through a chi router
// - Validate request parameters and bodies with validation.RequestValidator
// - Standardize JSON responses (APIResponse) and error bodies
// - Stream exported files (PDF or HTML) as attachments
//
// INTEGRATION POINTS:
// - internal/service: every handler calls one Service operation
// - internal/errors/handlers.go: Server.errorHandler (HTTPErrorHandler) formats error responses
// - internal/validation/middleware.go: routes wrap handlers with ValidateRequest(schema)
// - internal/api/openapi.go: documentation at /api/docs and /api/openapi.json
//
// ENDPOINT STRUCTURE:
// - /api/v1/templates: catalogue listing, filtering and detail
// - /api/v1/drafts: draft CRUD, field updates, preview, export, finalize
// - /api/v1/documents: finalized documents
// - /api/v1/tags, /api/v1/health
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/doclast/docfill/internal/config"
	"github.com/doclast/docfill/internal/errors"
	"github.com/doclast/docfill/internal/service"
	"github.com/doclast/docfill/internal/validation"
)

// Server is the docfill HTTP API
type Server struct {
	service      *service.Service
	errorHandler *errors.HTTPErrorHandler
	validator    *validation.RequestValidator
	logger       *zap.Logger
	cfg          config.ServerConfig
	server       *http.Server
	now          func() time.Time
}

// NewServer creates a new API server instance. Error bodies carry details
// and context only when cfg.ErrorDetails is set.
func NewServer(svc *service.Service, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")
	return &Server{
		service:      svc,
		errorHandler: errors.NewHTTPErrorHandler(cfg.ErrorDetails, logger),
		validator:    validation.NewRequestValidator(logger),
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Routes builds the router. It is exported for tests and embedding.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(corsMiddleware)

	r.Get("/api/docs", s.handleOpenAPI)
	r.Get("/api/openapi.json", s.handleOpenAPISpec)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.With(s.validator.ValidateRequest("template_filter")).Get("/templates", s.handleListTemplates)
		r.Get("/templates/{id}", s.handleGetTemplate)
		r.Get("/tags", s.handleTags)

		r.Get("/drafts", s.handleListDrafts)
		r.With(s.validator.ValidateRequest("create_draft")).Post("/drafts", s.handleCreateDraft)
		r.Route("/drafts/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetDraft)
			r.With(s.validator.ValidateRequest("update_details")).Patch("/", s.handleUpdateDraft)
			r.Delete("/", s.handleDeleteDraft)
			r.With(s.validator.ValidateRequest("update_fields")).Put("/fields", s.handleUpdateFields)
			r.Get("/validate", s.handleValidateDraft)
			r.Get("/preview", s.handlePreview)
			r.With(s.validator.ValidateRequest("export_draft")).Post("/export", s.handleExport)
			r.Get("/export.html", s.handleExportHTML)
			r.Post("/finalize", s.handleFinalize)
			r.Post("/restore", s.handleRestore)
			r.Get("/autosave", s.handleAutosaveStatus)
		})

		r.Get("/documents", s.handleListDocuments)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, errors.NotFoundError("Route '"+r.URL.Path+"'"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, errors.NewAppError(errors.ErrCodeInvalidInput, "Method not allowed"))
	})
	return r
}

// Start begins serving HTTP requests. It blocks until the server stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting",
		zap.String("addr", s.cfg.Addr),
		zap.String("docs", "/api/docs"),
		zap.Strings("strategies", s.service.Pipeline().Strategies()))

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// APIResponse represents a standardized API response
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Error     interface{} `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// writeResponse writes a standardized JSON response
func (s *Server) writeResponse(w http.ResponseWriter, data interface{}, message string, statusCode int) {
	response := APIResponse{
		Success:   statusCode < 400,
		Data:      data,
		Message:   message,
		Timestamp: s.now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	jsonData, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		json.NewEncoder(w).Encode(response)
		return
	}
	w.Write(jsonData)
}

// writeError writes an error response using the error handler
func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.errorHandler.WriteHTTPError(w, err)
}

// writeFile sends an exported artifact as an attachment
func (s *Server) writeFile(w http.ResponseWriter, filename, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// decodeJSON reads a JSON body into v. The validator middleware has already
// checked its shape.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.ValidationError("Invalid JSON in request body").WithDetails(err.Error())
	}
	return nil
}
